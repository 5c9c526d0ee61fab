//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

// Package speculation predicts the near-future UI from historical
// workflows to bias the model toward paths that worked before.
//
// Speculation is strictly read-only over the historical memory view; it
// never mutates graphs or workflows.
package speculation

import (
	"fmt"
	"math/rand"
	"strings"

	"trpc.group/trpc-go/trpc-phone-agent/log"
	"trpc.group/trpc-go/trpc-phone-agent/memory"
	"trpc.group/trpc-go/trpc-phone-agent/uielement"
)

// Default thresholds.
const (
	// DefaultSimilarityThreshold gates the screen match against a
	// historical node.
	DefaultSimilarityThreshold = 0.7
	// DefaultConfidenceThreshold gates emitted candidates.
	DefaultConfidenceThreshold = 0.6
	// maxCandidates bounds the rendered predictions.
	maxCandidates = 2
)

// Predictor produces speculative context blocks from historical memory.
type Predictor struct {
	mem           *memory.ActionMemory
	simThreshold  float64
	confThreshold float64
	rng           *rand.Rand
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithSimilarityThreshold overrides the screen match threshold.
func WithSimilarityThreshold(v float64) Option {
	return func(p *Predictor) { p.simThreshold = v }
}

// WithConfidenceThreshold overrides the candidate confidence threshold.
func WithConfidenceThreshold(v float64) Option {
	return func(p *Predictor) { p.confThreshold = v }
}

// WithRand injects the jitter source, fixed in tests.
func WithRand(r *rand.Rand) Option {
	return func(p *Predictor) { p.rng = r }
}

// New creates a Predictor over a memory view.
func New(mem *memory.ActionMemory, opts ...Option) *Predictor {
	p := &Predictor{
		mem:           mem,
		simThreshold:  DefaultSimilarityThreshold,
		confThreshold: DefaultConfidenceThreshold,
		rng:           rand.New(rand.NewSource(rand.Int63())),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// candidate is one predicted future state.
type candidate struct {
	node       *memory.WorkNode
	step       int // 1 = next, 2 = next-next
	confidence float64
}

// Speculate returns the speculative context text for the current screen,
// or empty when no historical position matches well enough.
func (p *Predictor) Speculate(currentApp string, elements []uielement.Info) string {
	graph := p.mem.HistoricalGraph(currentApp)
	if graph == nil || len(elements) == 0 {
		return ""
	}

	bestSim := p.simThreshold
	var bestWorkflow *memory.Workflow
	bestPos := -1
	for _, w := range p.mem.HistoricalWorkflows() {
		if !touchesGraph(w, graph) {
			continue
		}
		for i, tr := range w.Path {
			node := p.mem.HistoricalNode(tr.FromNodeID)
			if node == nil {
				continue
			}
			sim := jaccard(elements, node.ElementsInfo)
			if sim > bestSim {
				bestSim = sim
				bestWorkflow = w
				bestPos = i
			}
		}
	}
	if bestWorkflow == nil {
		return ""
	}
	log.Debugf("speculation: matched workflow %s position %d (similarity %.2f)",
		bestWorkflow.ID, bestPos, bestSim)

	var candidates []candidate
	for j := 1; j <= maxCandidates; j++ {
		idx := bestPos + j
		if idx >= len(bestWorkflow.Path) {
			break
		}
		tr := bestWorkflow.Path[idx]
		node := p.mem.HistoricalNode(tr.FromNodeID)
		if node == nil {
			continue
		}
		conf := p.confidence(j, tr.Success)
		if conf < p.confThreshold {
			continue
		}
		candidates = append(candidates, candidate{node: node, step: j, confidence: conf})
	}
	return render(candidates)
}

// confidence scores a candidate by lookahead depth, historical success and
// a small jitter, clamped to [0,1].
func (p *Predictor) confidence(step int, success bool) float64 {
	conf := 0.8 - 0.1*float64(step-1)
	if success {
		conf += 0.1
	} else {
		conf -= 0.2
	}
	conf += p.rng.Float64()*0.1 - 0.05
	if conf < 0 {
		return 0
	}
	if conf > 1 {
		return 1
	}
	return conf
}

// touchesGraph reports whether a workflow references any node of the graph.
func touchesGraph(w *memory.Workflow, g *memory.WorkGraph) bool {
	for id := range w.NodeIDs() {
		if g.Node(id) != nil {
			return true
		}
	}
	return false
}

// jaccard computes |A∩B| / |A∪B| over non-empty element contents.
func jaccard(a, b []uielement.Info) float64 {
	setA := contentSet(a)
	setB := contentSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for c := range setA {
		if setB[c] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func contentSet(infos []uielement.Info) map[string]bool {
	set := make(map[string]bool, len(infos))
	for _, info := range infos {
		if info.Content != "" {
			set[info.Content] = true
		}
	}
	return set
}

// render emits one block per candidate, elements labeled B<j> for the next
// state and C<j> for the one after.
func render(candidates []candidate) string {
	if len(candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, c := range candidates {
		prefix := "B"
		title := "Likely next screen"
		if c.step == 2 {
			prefix = "C"
			title = "Likely screen after next"
		}
		fmt.Fprintf(&b, "%s (confidence %.2f):\n", title, c.confidence)
		j := 1
		for _, info := range c.node.ElementsInfo {
			if info.Content == "" {
				continue
			}
			fmt.Fprintf(&b, "  %s%d: %s\n", prefix, j, info.Content)
			j++
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
