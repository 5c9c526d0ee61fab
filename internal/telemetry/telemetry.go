//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

// Package telemetry holds the shared identity constants and collector
// connection helper used by the metric exporter setup.
package telemetry

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Telemetry service constants.
const (
	ServiceName      = "phone-agent"
	ServiceVersion   = "v0.1.0"
	ServiceNamespace = "trpc-phone-agent"
	InstrumentName   = "trpc.phone.agent"
)

// NewConn creates a new gRPC connection to the OpenTelemetry Collector.
func NewConn(endpoint string) (*grpc.ClientConn, error) {
	// Note the use of insecure transport here. TLS is recommended in
	// production.
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to collector: %w", err)
	}
	return conn, nil
}
