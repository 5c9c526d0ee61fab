//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

package debug

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"trpc.group/trpc-go/trpc-phone-agent/memory"
	sqlitestore "trpc.group/trpc-go/trpc-phone-agent/storage/sqlite"
)

func newStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store, err := sqlitestore.NewStore(db)
	require.NoError(t, err)
	return store
}

func get(t *testing.T, srv *Server, path string, out any) *http.Response {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealthz(t *testing.T) {
	var body map[string]string
	resp := get(t, New(), "/healthz", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestRunsEndpoint(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.RunStarted(ctx, "run-1", "set an alarm"))
	require.NoError(t, store.StepExecuted(ctx, "run-1", 0,
		memory.WorkAction{Kind: memory.KindTap, Description: "Tap A0"}, true))
	require.NoError(t, store.RunFinished(ctx, "run-1", true, 1, "done"))

	srv := New(WithRunStore(store))
	var runs []runView
	resp := get(t, srv, "/api/runs", &runs)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, runs, 1)
	assert.Equal(t, "set an alarm", runs[0].Task)
	assert.True(t, runs[0].Finished)

	var steps []stepView
	get(t, srv, "/api/runs/run-1/steps", &steps)
	require.Len(t, steps, 1)
	assert.Equal(t, memory.KindTap, steps[0].Kind)
}

func TestRunsWithoutStoreIs404(t *testing.T) {
	resp := get(t, New(), "/api/runs", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMemoryEndpoint(t *testing.T) {
	mem := memory.New(t.TempDir())
	g := mem.GetOrCreateGraph("com.android.deskclock")
	g.CreateNode(nil, "set an alarm")

	var view memoryView
	resp := get(t, New(WithMemory(mem)), "/api/memory", &view)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, view.Graphs, 1)
	assert.Equal(t, "com.android.deskclock", view.Graphs[0].App)
	assert.Equal(t, 1, view.Graphs[0].Nodes)
}
