//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-phone-agent/log"
	"trpc.group/trpc-go/trpc-phone-agent/memory/embedder"
)

// ActionMemory owns all work graphs and workflows of one agent.
//
// Runtime graphs and workflows are created during a task and are the
// exclusive write targets. Historical graphs and workflows are filled by
// LoadFromStore and are read-only afterwards, so concurrent readers
// (speculation) always see a consistent snapshot.
type ActionMemory struct {
	mu sync.RWMutex

	dir      string
	embedder embedder.Embedder

	runtimeGraphs    map[string]*WorkGraph
	runtimeWorkflows []*Workflow

	historicalGraphs    map[string]*WorkGraph
	historicalWorkflows []*Workflow
	historicalIDs       map[string]bool

	loadParallelism int
}

// Option configures an ActionMemory.
type Option func(*ActionMemory)

// WithEmbedder sets the embedder used for task and tag embeddings.
// Defaults to the deterministic local embedder.
func WithEmbedder(e embedder.Embedder) Option {
	return func(m *ActionMemory) {
		m.embedder = e
	}
}

// WithLoadParallelism bounds the worker pool used to scan workflow files.
func WithLoadParallelism(n int) Option {
	return func(m *ActionMemory) {
		if n > 0 {
			m.loadParallelism = n
		}
	}
}

// New creates an ActionMemory persisting under dir.
func New(dir string, opts ...Option) *ActionMemory {
	m := &ActionMemory{
		dir:              dir,
		embedder:         embedder.NewLocal(),
		runtimeGraphs:    make(map[string]*WorkGraph),
		historicalGraphs: make(map[string]*WorkGraph),
		historicalIDs:    make(map[string]bool),
		loadParallelism:  4,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetOrCreateGraph returns the runtime graph for the app, creating it on
// first use. Idempotent by app name.
func (m *ActionMemory) GetOrCreateGraph(app string) *WorkGraph {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.runtimeGraphs[app]; ok {
		return g
	}
	g := NewWorkGraph(app)
	m.runtimeGraphs[app] = g
	return g
}

// CreateWorkflow allocates a new runtime workflow for the task and encodes
// its task embedding.
func (m *ActionMemory) CreateWorkflow(ctx context.Context, task string) *Workflow {
	w := &Workflow{
		ID:   uuid.NewString(),
		Task: task,
	}
	if emb, err := m.embedder.GetEmbedding(ctx, task); err != nil {
		log.Warnf("memory: task embedding failed: %v", err)
	} else {
		w.TaskEmbedding = emb
	}
	m.mu.Lock()
	m.runtimeWorkflows = append(m.runtimeWorkflows, w)
	m.mu.Unlock()
	return w
}

// SetWorkflowTag sets the tag and tag embedding on a workflow.
func (m *ActionMemory) SetWorkflowTag(ctx context.Context, w *Workflow, tag string) {
	w.Tag = tag
	if tag == "" {
		return
	}
	if emb, err := m.embedder.GetEmbedding(ctx, tag); err != nil {
		log.Warnf("memory: tag embedding failed: %v", err)
	} else {
		w.TagEmbedding = emb
	}
}

// FindRuntimeWorkflows returns runtime workflows with an exact task match.
func (m *ActionMemory) FindRuntimeWorkflows(task string) []*Workflow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterByTask(m.runtimeWorkflows, task)
}

// FindHistoricalWorkflows returns historical workflows with an exact task
// match.
func (m *ActionMemory) FindHistoricalWorkflows(task string) []*Workflow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterByTask(m.historicalWorkflows, task)
}

// HistoricalWorkflows returns the loaded historical workflows.
func (m *ActionMemory) HistoricalWorkflows() []*Workflow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Workflow, len(m.historicalWorkflows))
	copy(out, m.historicalWorkflows)
	return out
}

// HistoricalNode resolves a node id across all historical graphs.
func (m *ActionMemory) HistoricalNode(id string) *WorkNode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, g := range m.historicalGraphs {
		if n := g.Node(id); n != nil {
			return n
		}
	}
	return nil
}

// HistoricalGraph returns the historical graph for an app, or nil.
func (m *ActionMemory) HistoricalGraph(app string) *WorkGraph {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.historicalGraphs[app]
}

// RuntimeGraphs returns a snapshot of the runtime graphs keyed by app.
func (m *ActionMemory) RuntimeGraphs() map[string]*WorkGraph {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*WorkGraph, len(m.runtimeGraphs))
	for app, g := range m.runtimeGraphs {
		out[app] = g
	}
	return out
}

func filterByTask(ws []*Workflow, task string) []*Workflow {
	var out []*Workflow
	for _, w := range ws {
		if w.Task == task {
			out = append(out, w)
		}
	}
	return out
}

// NewRecorder borrows a workflow for transition recording during one run.
func (m *ActionMemory) NewRecorder(w *Workflow) *WorkflowRecorder {
	return &WorkflowRecorder{workflow: w, start: time.Now()}
}
