//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"trpc.group/trpc-go/trpc-phone-agent/memory"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store, err := NewStore(db)
	require.NoError(t, err)
	return store
}

func TestNewStoreNilDB(t *testing.T) {
	_, err := NewStore(nil)
	assert.Error(t, err)
}

func TestRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	require.NoError(t, store.RunStarted(ctx, "run-1", "set an alarm"))
	acts := []memory.WorkAction{
		{Kind: memory.KindTap, ZonePath: "A1", Description: "Tap A1"},
		{Kind: memory.KindType, ZonePath: "A2", Text: "7:30", Description: "Type 7:30"},
		{Kind: memory.KindFinish, Description: "done"},
	}
	for i, a := range acts {
		require.NoError(t, store.StepExecuted(ctx, "run-1", i, a, true))
	}
	require.NoError(t, store.RunFinished(ctx, "run-1", true, len(acts), "alarm created"))

	rows, err := store.Steps(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, r := range rows {
		assert.Equal(t, i, r.Step)
		assert.Equal(t, acts[i].Kind, r.Kind)
		assert.Equal(t, acts[i], r.Action)
		assert.True(t, r.Success)
	}
}

func TestRunsListing(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	require.NoError(t, store.RunStarted(ctx, "run-a", "task a"))
	require.NoError(t, store.RunStarted(ctx, "run-b", "task b"))
	require.NoError(t, store.RunFinished(ctx, "run-b", true, 4, "done"))

	runs, err := store.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	byID := map[string]RunRow{}
	for _, r := range runs {
		byID[r.RunID] = r
	}
	assert.False(t, byID["run-a"].Finished)
	assert.True(t, byID["run-b"].Finished)
	assert.Equal(t, 4, byID["run-b"].StepCount)
	assert.Equal(t, "done", byID["run-b"].ResultMessage)
	assert.False(t, byID["run-b"].StartedAt.IsZero())
}

func TestStepsEmptyRun(t *testing.T) {
	store := openStore(t)
	rows, err := store.Steps(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, rows)
}
