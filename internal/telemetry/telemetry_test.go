//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

package telemetry

import "testing"

func TestNewConn(t *testing.T) {
	// grpc.NewClient is lazy, so a connection object comes back without a
	// collector listening.
	conn, err := NewConn("localhost:4317")
	if err != nil {
		t.Fatalf("NewConn returned error: %v", err)
	}
	if conn == nil {
		t.Fatal("expected non-nil connection")
	}
	_ = conn.Close()
}
