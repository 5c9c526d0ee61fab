//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

// Package runner executes task suites across a pool of agents, one agent
// per device. Tasks are distributed over an ants worker pool; an agent is
// never shared between two in-flight tasks.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/trpc-phone-agent/agent"
	"trpc.group/trpc-go/trpc-phone-agent/log"
)

// TaskRunner runs one task to completion. *agent.Agent implements it.
type TaskRunner interface {
	Run(ctx context.Context, task string) (*agent.RunResult, error)
}

// Task is one suite entry.
type Task struct {
	// ID names the task in results; defaults to the description.
	ID string
	// Description is the natural-language task handed to the agent.
	Description string
}

// TaskResult pairs a task with its outcome.
type TaskResult struct {
	Task   Task
	Result *agent.RunResult
	Err    error
}

// Summary aggregates a suite run.
type Summary struct {
	Total      int
	Finished   int
	Unfinished int
	Errored    int
	TotalSteps int
}

// Runner distributes tasks over a fixed set of agents.
type Runner struct {
	agents chan TaskRunner
	size   int
}

// NewRunner creates a suite runner over the given agents. Parallelism
// equals the number of agents.
func NewRunner(agents []TaskRunner) (*Runner, error) {
	if len(agents) == 0 {
		return nil, errors.New("runner needs at least one agent")
	}
	pool := make(chan TaskRunner, len(agents))
	for _, a := range agents {
		if a == nil {
			return nil, errors.New("nil agent")
		}
		pool <- a
	}
	return &Runner{agents: pool, size: len(agents)}, nil
}

// Run executes every task and returns results in task order. Individual
// task failures are reported per result, not as the returned error.
func (r *Runner) Run(ctx context.Context, tasks []Task) ([]TaskResult, error) {
	pool, err := ants.NewPool(r.size)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	results := make([]TaskResult, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		if task.ID == "" {
			task.ID = task.Description
		}
		idx, t := i, task
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			results[idx] = r.runOne(ctx, t)
		})
		if err != nil {
			wg.Done()
			results[idx] = TaskResult{Task: t, Err: fmt.Errorf("submit task: %w", err)}
		}
	}
	wg.Wait()
	return results, nil
}

// runOne borrows an agent, runs the task and returns the agent to the
// pool.
func (r *Runner) runOne(ctx context.Context, t Task) TaskResult {
	var a TaskRunner
	select {
	case a = <-r.agents:
	case <-ctx.Done():
		return TaskResult{Task: t, Err: ctx.Err()}
	}
	defer func() { r.agents <- a }()

	log.Infof("runner: task %s starting", t.ID)
	res, err := a.Run(ctx, t.Description)
	if err != nil {
		log.Errorf("runner: task %s errored: %v", t.ID, err)
		return TaskResult{Task: t, Err: err}
	}
	log.Infof("runner: task %s finished=%v steps=%d", t.ID, res.Finished, res.StepCount)
	return TaskResult{Task: t, Result: res}
}

// Summarize folds results into suite totals.
func Summarize(results []TaskResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch {
		case r.Err != nil:
			s.Errored++
		case r.Result != nil && r.Result.Finished:
			s.Finished++
			s.TotalSteps += r.Result.StepCount
		default:
			s.Unfinished++
			if r.Result != nil {
				s.TotalSteps += r.Result.StepCount
			}
		}
	}
	return s
}
