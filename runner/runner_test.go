//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-phone-agent/agent"
)

// stubAgent records the tasks it ran and tracks concurrent use.
type stubAgent struct {
	mu      sync.Mutex
	tasks   []string
	busy    atomic.Bool
	delay   time.Duration
	err     error
	overlap *atomic.Bool
}

func (s *stubAgent) Run(ctx context.Context, task string) (*agent.RunResult, error) {
	if !s.busy.CompareAndSwap(false, true) && s.overlap != nil {
		s.overlap.Store(true)
	}
	defer s.busy.Store(false)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &agent.RunResult{Finished: true, ResultMessage: "ok", StepCount: 2}, nil
}

func TestRunDistributesAllTasks(t *testing.T) {
	var overlap atomic.Bool
	a1 := &stubAgent{delay: 5 * time.Millisecond, overlap: &overlap}
	a2 := &stubAgent{delay: 5 * time.Millisecond, overlap: &overlap}
	r, err := NewRunner([]TaskRunner{a1, a2})
	require.NoError(t, err)

	tasks := []Task{
		{ID: "t1", Description: "set an alarm"},
		{ID: "t2", Description: "send a message"},
		{ID: "t3", Description: "open settings"},
		{ID: "t4", Description: "take a photo"},
	}
	results, err := r.Run(context.Background(), tasks)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for i, res := range results {
		assert.Equal(t, tasks[i].ID, res.Task.ID)
		require.NoError(t, res.Err)
		assert.True(t, res.Result.Finished)
	}
	assert.Equal(t, 4, len(a1.tasks)+len(a2.tasks))
	assert.False(t, overlap.Load(), "an agent ran two tasks concurrently")
}

func TestRunReportsPerTaskErrors(t *testing.T) {
	ok := &stubAgent{}
	r, err := NewRunner([]TaskRunner{ok, &stubAgent{err: errors.New("device lost")}})
	require.NoError(t, err)

	results, err := r.Run(context.Background(), []Task{
		{Description: "a"}, {Description: "b"}, {Description: "c"}, {Description: "d"},
	})
	require.NoError(t, err)
	errored := 0
	for _, res := range results {
		if res.Err != nil {
			errored++
			assert.Contains(t, res.Err.Error(), "device lost")
		}
	}
	assert.Positive(t, errored)
}

func TestRunDefaultsTaskID(t *testing.T) {
	r, err := NewRunner([]TaskRunner{&stubAgent{}})
	require.NoError(t, err)
	results, err := r.Run(context.Background(), []Task{{Description: "only task"}})
	require.NoError(t, err)
	assert.Equal(t, "only task", results[0].Task.ID)
}

func TestNewRunnerValidation(t *testing.T) {
	_, err := NewRunner(nil)
	assert.Error(t, err)
	_, err = NewRunner([]TaskRunner{nil})
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	results := []TaskResult{
		{Result: &agent.RunResult{Finished: true, StepCount: 3}},
		{Result: &agent.RunResult{Finished: false, StepCount: 5}},
		{Err: errors.New("boom")},
	}
	s := Summarize(results)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Finished)
	assert.Equal(t, 1, s.Unfinished)
	assert.Equal(t, 1, s.Errored)
	assert.Equal(t, 8, s.TotalSteps)
}
