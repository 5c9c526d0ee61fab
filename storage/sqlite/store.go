//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

// Package sqlite provides SQLite-backed persistence of agent run events:
// one row per run and one row per executed step, for later inspection and
// evaluation of agent behavior.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trpc.group/trpc-go/trpc-phone-agent/memory"
)

const (
	createRuns = "CREATE TABLE IF NOT EXISTS runs (" +
		"run_id TEXT NOT NULL, " +
		"task TEXT NOT NULL, " +
		"started_ts INTEGER NOT NULL, " +
		"finished_ts INTEGER, " +
		"finished INTEGER, " +
		"step_count INTEGER, " +
		"result_message TEXT, " +
		"PRIMARY KEY (run_id)" +
		")"

	createSteps = "CREATE TABLE IF NOT EXISTS run_steps (" +
		"run_id TEXT NOT NULL, " +
		"step INTEGER NOT NULL, " +
		"ts INTEGER NOT NULL, " +
		"kind TEXT NOT NULL, " +
		"success INTEGER NOT NULL, " +
		"action_json BLOB NOT NULL, " +
		"PRIMARY KEY (run_id, step)" +
		")"

	insertRun = "INSERT OR REPLACE INTO runs (run_id, task, started_ts) VALUES (?, ?, ?)"

	finishRun = "UPDATE runs SET finished_ts = ?, finished = ?, step_count = ?, " +
		"result_message = ? WHERE run_id = ?"

	insertStep = "INSERT OR REPLACE INTO run_steps (run_id, step, ts, kind, success, action_json) " +
		"VALUES (?, ?, ?, ?, ?, ?)"

	selectSteps = "SELECT step, kind, success, action_json FROM run_steps " +
		"WHERE run_id = ? ORDER BY step ASC"

	selectRuns = "SELECT run_id, task, started_ts, finished, step_count, result_message " +
		"FROM runs ORDER BY started_ts DESC LIMIT ?"
)

// RunRow is one recorded run read back from the store.
type RunRow struct {
	RunID         string
	Task          string
	StartedAt     time.Time
	Finished      bool
	StepCount     int
	ResultMessage string
}

// StepRow is one recorded step read back from the store.
type StepRow struct {
	Step    int
	Kind    memory.ActionKind
	Success bool
	Action  memory.WorkAction
}

// Store records agent run events. It expects an initialized *sql.DB using
// a SQLite driver and creates the required schema.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over the provided DB, creating tables if
// needed.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if _, err := db.Exec(createRuns); err != nil {
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	if _, err := db.Exec(createSteps); err != nil {
		return nil, fmt.Errorf("create run_steps table: %w", err)
	}
	return &Store{db: db}, nil
}

// RunStarted records the start of a run.
func (s *Store) RunStarted(ctx context.Context, runID, task string) error {
	_, err := s.db.ExecContext(ctx, insertRun, runID, task, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	return nil
}

// StepExecuted records one executed step.
func (s *Store) StepExecuted(ctx context.Context, runID string, step int,
	act memory.WorkAction, success bool) error {
	blob, err := json.Marshal(act)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}
	_, err = s.db.ExecContext(ctx, insertStep,
		runID, step, time.Now().UnixMilli(), string(act.Kind), boolInt(success), blob)
	if err != nil {
		return fmt.Errorf("record step: %w", err)
	}
	return nil
}

// RunFinished records the final outcome of a run.
func (s *Store) RunFinished(ctx context.Context, runID string,
	finished bool, stepCount int, resultMessage string) error {
	_, err := s.db.ExecContext(ctx, finishRun,
		time.Now().UnixMilli(), boolInt(finished), stepCount, resultMessage, runID)
	if err != nil {
		return fmt.Errorf("record run end: %w", err)
	}
	return nil
}

// Runs lists the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, selectRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		var started int64
		var finished, stepCount sql.NullInt64
		var msg sql.NullString
		if err := rows.Scan(&r.RunID, &r.Task, &started, &finished, &stepCount, &msg); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		r.Finished = finished.Int64 != 0
		r.StepCount = int(stepCount.Int64)
		r.ResultMessage = msg.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Steps reads back the recorded steps of a run in order.
func (s *Store) Steps(ctx context.Context, runID string) ([]StepRow, error) {
	rows, err := s.db.QueryContext(ctx, selectSteps, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	var out []StepRow
	for rows.Next() {
		var r StepRow
		var success int
		var blob []byte
		if err := rows.Scan(&r.Step, &r.Kind, &success, &blob); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		r.Success = success != 0
		if err := json.Unmarshal(blob, &r.Action); err != nil {
			return nil, fmt.Errorf("unmarshal action: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
