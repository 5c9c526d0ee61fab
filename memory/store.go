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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/trpc-phone-agent/log"
	"trpc.group/trpc-go/trpc-phone-agent/memory/embedder"
)

// Store layout directory names.
const (
	graphDir    = "graph"
	workflowDir = "workflow"

	// defaultTag names the workflow file for workflows without a tag.
	defaultTag = "general.task"
)

// Load thresholds.
const (
	// DefaultEmbedThreshold is the minimum task-embedding cosine for a
	// stored workflow record to load.
	DefaultEmbedThreshold = 0.5
	// DefaultTagThreshold is the minimum tag-embedding cosine for a
	// workflow file or node tag to match a target tag.
	DefaultTagThreshold = 0.8
)

// LoadOption configures LoadFromStore.
type LoadOption func(*loadOptions)

type loadOptions struct {
	targetTag      string
	embedThreshold float64
	tagThreshold   float64
}

// WithTargetTag restricts loading to workflow files and nodes whose tag
// matches the given tag exactly or by embedding similarity.
func WithTargetTag(tag string) LoadOption {
	return func(o *loadOptions) {
		o.targetTag = tag
	}
}

// WithEmbedThreshold overrides the task-embedding acceptance threshold.
func WithEmbedThreshold(t float64) LoadOption {
	return func(o *loadOptions) {
		o.embedThreshold = t
	}
}

// WithTagThreshold overrides the tag-embedding acceptance threshold.
func WithTagThreshold(t float64) LoadOption {
	return func(o *loadOptions) {
		o.tagThreshold = t
	}
}

// Sanitize maps a tag or app name to its on-disk file stem:
// spaces, slashes and dots become underscores.
func Sanitize(name string) string {
	r := strings.NewReplacer(" ", "_", "/", "_", ".", "_")
	return r.Replace(name)
}

// Persist writes runtime graphs and workflows under the memory directory.
// Graph files merge by node id (new overrides old); workflow files append
// records whose id is not yet present. A failure on a single file is logged
// and never aborts the rest.
func (m *ActionMemory) Persist() error {
	m.mu.RLock()
	graphs := make([]*WorkGraph, 0, len(m.runtimeGraphs))
	for _, g := range m.runtimeGraphs {
		graphs = append(graphs, g)
	}
	workflows := make([]*Workflow, len(m.runtimeWorkflows))
	copy(workflows, m.runtimeWorkflows)
	m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Join(m.dir, graphDir), 0o755); err != nil {
		return fmt.Errorf("memory: create graph dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(m.dir, workflowDir), 0o755); err != nil {
		return fmt.Errorf("memory: create workflow dir: %w", err)
	}

	sort.Slice(graphs, func(i, j int) bool { return graphs[i].App < graphs[j].App })
	for _, g := range graphs {
		if err := m.persistGraph(g); err != nil {
			log.Errorf("memory: persist graph %q: %v", g.App, err)
		}
	}

	byTag := make(map[string][]*Workflow)
	for _, w := range workflows {
		tag := w.Tag
		if tag == "" {
			tag = defaultTag
		}
		byTag[tag] = append(byTag[tag], w)
	}
	tags := make([]string, 0, len(byTag))
	for tag := range byTag {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		if err := m.persistWorkflows(tag, byTag[tag]); err != nil {
			log.Errorf("memory: persist workflows %q: %v", tag, err)
		}
	}
	return nil
}

func (m *ActionMemory) persistGraph(g *WorkGraph) error {
	path := filepath.Join(m.dir, graphDir, Sanitize(g.App)+".json")
	merged := NewWorkGraph(g.App)
	if data, err := os.ReadFile(path); err == nil {
		var old WorkGraph
		if err := json.Unmarshal(data, &old); err != nil {
			log.Warnf("memory: corrupt graph file %s, overwriting: %v", path, err)
		} else {
			for id, n := range old.Nodes {
				merged.Nodes[id] = n
			}
		}
	}
	for id, n := range g.Nodes {
		merged.Nodes[id] = n
	}
	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (m *ActionMemory) persistWorkflows(tag string, ws []*Workflow) error {
	path := filepath.Join(m.dir, workflowDir, Sanitize(tag)+".json")
	var existing []*Workflow
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &existing); err != nil {
			log.Warnf("memory: corrupt workflow file %s, overwriting: %v", path, err)
			existing = nil
		}
	}
	present := make(map[string]bool, len(existing))
	for _, w := range existing {
		present[w.ID] = true
	}
	for _, w := range ws {
		if !present[w.ID] {
			existing = append(existing, w)
			present[w.ID] = true
		}
	}
	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadFromStore populates the historical views for a task.
//
// Loading is two-pass: workflow files are filtered by tag and task
// similarity first, then only the graph nodes referenced by an accepted
// workflow path are loaded. That bounds memory and keeps retrieval
// task-relevant rather than app-global. Corrupt or mismatched files are
// logged and skipped.
func (m *ActionMemory) LoadFromStore(ctx context.Context, task string, opts ...LoadOption) error {
	o := &loadOptions{
		embedThreshold: DefaultEmbedThreshold,
		tagThreshold:   DefaultTagThreshold,
	}
	for _, opt := range opts {
		opt(o)
	}

	taskEmb, err := m.embedder.GetEmbedding(ctx, task)
	if err != nil {
		log.Warnf("memory: embedding query task failed: %v", err)
	}
	var targetTagEmb []float64
	if o.targetTag != "" {
		if targetTagEmb, err = m.embedder.GetEmbedding(ctx, o.targetTag); err != nil {
			log.Warnf("memory: embedding target tag failed: %v", err)
		}
	}

	files, err := m.acceptedWorkflowFiles(ctx, o, targetTagEmb)
	if err != nil {
		return err
	}
	records := m.readWorkflowFiles(files)

	m.mu.Lock()
	referenced := make(map[string]bool)
	for _, ws := range records {
		for _, w := range ws {
			if m.historicalIDs[w.ID] {
				continue
			}
			if w.ID == "" || w.Task == "" {
				log.Warnf("memory: skipping workflow record without id or task")
				continue
			}
			if len(w.TaskEmbedding) > 0 {
				if embedder.CosineSimilarity(w.TaskEmbedding, taskEmb) < o.embedThreshold {
					continue
				}
			}
			m.historicalWorkflows = append(m.historicalWorkflows, w)
			m.historicalIDs[w.ID] = true
			for id := range w.NodeIDs() {
				referenced[id] = true
			}
		}
	}
	m.mu.Unlock()

	return m.loadReferencedNodes(ctx, referenced, o, targetTagEmb)
}

// acceptedWorkflowFiles lists workflow files passing the tag rule, sorted by
// name.
func (m *ActionMemory) acceptedWorkflowFiles(ctx context.Context, o *loadOptions, targetTagEmb []float64) ([]string, error) {
	dir := filepath.Join(m.dir, workflowDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("memory: read workflow dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		fileTag := strings.TrimSuffix(e.Name(), ".json")
		if o.targetTag != "" && !m.tagMatches(ctx, fileTag, o, targetTagEmb) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// tagMatches applies the tag-accept rule: exact match after sanitization or
// embedding cosine above the tag threshold.
func (m *ActionMemory) tagMatches(ctx context.Context, tag string, o *loadOptions, targetTagEmb []float64) bool {
	if tag == o.targetTag || tag == Sanitize(o.targetTag) {
		return true
	}
	emb, err := m.embedder.GetEmbedding(ctx, tag)
	if err != nil {
		log.Warnf("memory: embedding tag %q failed: %v", tag, err)
		return false
	}
	return embedder.CosineSimilarity(emb, targetTagEmb) >= o.tagThreshold
}

// readWorkflowFiles parses files on a bounded worker pool, preserving file
// order in the result.
func (m *ActionMemory) readWorkflowFiles(files []string) [][]*Workflow {
	results := make([][]*Workflow, len(files))
	pool, err := ants.NewPool(m.loadParallelism)
	if err != nil {
		for i, f := range files {
			results[i] = readWorkflowFile(f)
		}
		return results
	}
	defer pool.Release()
	var wg sync.WaitGroup
	for i, f := range files {
		i, f := i, f
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			results[i] = readWorkflowFile(f)
		}); err != nil {
			results[i] = readWorkflowFile(f)
			wg.Done()
		}
	}
	wg.Wait()
	return results
}

func readWorkflowFile(path string) []*Workflow {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warnf("memory: read workflow file %s: %v", path, err)
		return nil
	}
	var ws []*Workflow
	if err := json.Unmarshal(data, &ws); err != nil {
		log.Warnf("memory: corrupt workflow file %s: %v", path, err)
		return nil
	}
	return ws
}

// loadReferencedNodes scans graph files and loads only nodes referenced by
// an accepted workflow, applying the tag rule to tagged nodes.
func (m *ActionMemory) loadReferencedNodes(ctx context.Context, referenced map[string]bool, o *loadOptions, targetTagEmb []float64) error {
	if len(referenced) == 0 {
		return nil
	}
	dir := filepath.Join(m.dir, graphDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("memory: read graph dir: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("memory: read graph file %s: %v", path, err)
			continue
		}
		var g WorkGraph
		if err := json.Unmarshal(data, &g); err != nil || g.Nodes == nil {
			log.Warnf("memory: corrupt graph file %s: %v", path, err)
			continue
		}
		for id, n := range g.Nodes {
			if !referenced[id] {
				continue
			}
			if o.targetTag != "" && n.Tag != "" && !m.tagMatches(ctx, n.Tag, o, targetTagEmb) {
				continue
			}
			hg, ok := m.historicalGraphs[g.App]
			if !ok {
				hg = NewWorkGraph(g.App)
				m.historicalGraphs[g.App] = hg
			}
			hg.Nodes[id] = n
		}
	}
	return nil
}
