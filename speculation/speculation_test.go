//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

package speculation

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-phone-agent/memory"
	"trpc.group/trpc-go/trpc-phone-agent/uielement"
)

func infos(contents ...string) []uielement.Info {
	out := make([]uielement.Info, 0, len(contents))
	for _, c := range contents {
		out = append(out, uielement.Info{Path: "android.widget.Button::" + c, Content: c})
	}
	return out
}

// historicalMemory persists a clock workflow and reloads it into the
// historical view: Alarm screen -> editor screen -> saved screen.
func historicalMemory(t *testing.T, success bool) *memory.ActionMemory {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()
	m := memory.New(dir)

	g := m.GetOrCreateGraph("clock")
	n1 := g.CreateNode(infos("Alarm", "Timer", "Stopwatch"), "set an alarm")
	n2 := g.CreateNode(infos("Hour", "Minute", "Save"), "set an alarm")
	n3 := g.CreateNode(infos("Alarm saved"), "set an alarm")

	w := m.CreateWorkflow(ctx, "set an alarm")
	r := m.NewRecorder(w)
	r.RecordAction(n1.ID, memory.WorkAction{Kind: memory.KindTap, Description: "tap Alarm"}, true)
	r.OnNewNode(n2.ID)
	r.RecordAction(n2.ID, memory.WorkAction{Kind: memory.KindTap, Description: "tap Save"}, success)
	r.OnNewNode(n3.ID)
	r.Flush()
	require.NoError(t, m.Persist())

	loaded := memory.New(dir)
	require.NoError(t, loaded.LoadFromStore(ctx, "set an alarm",
		memory.WithEmbedThreshold(0), memory.WithTagThreshold(0)))
	return loaded
}

func fixedPredictor(m *memory.ActionMemory, opts ...Option) *Predictor {
	opts = append(opts, WithRand(rand.New(rand.NewSource(1))))
	return New(m, opts...)
}

func TestSpeculateMatchesAndRendersNextState(t *testing.T) {
	p := fixedPredictor(historicalMemory(t, true))
	out := p.Speculate("clock", infos("Alarm", "Timer", "Stopwatch"))
	require.NotEmpty(t, out)
	assert.Contains(t, out, "Likely next screen")
	assert.Contains(t, out, "B1: Hour")
	assert.Contains(t, out, "B3: Save")
	// Matched at position 0 of a 2-transition path: nothing at p+2.
	assert.NotContains(t, out, "C1:")
}

func TestSpeculateNoMatchBelowThreshold(t *testing.T) {
	p := fixedPredictor(historicalMemory(t, true))
	assert.Empty(t, p.Speculate("clock", infos("Compose", "Inbox", "Archive")))
}

func TestSpeculateEmptyScreenReturnsNothing(t *testing.T) {
	p := fixedPredictor(historicalMemory(t, true))
	assert.Empty(t, p.Speculate("clock", nil))
}

func TestSpeculateUnknownAppReturnsNothing(t *testing.T) {
	p := fixedPredictor(historicalMemory(t, true))
	assert.Empty(t, p.Speculate("com.other.app", infos("Alarm", "Timer", "Stopwatch")))
}

func TestSpeculateTerminalPositionHasNoCandidates(t *testing.T) {
	p := fixedPredictor(historicalMemory(t, true))
	// The editor screen matches the last transition's origin; p+1 is past
	// the end of the path.
	out := p.Speculate("clock", infos("Hour", "Minute", "Save"))
	assert.Empty(t, out)
}

func TestSpeculateFailedTransitionFallsBelowConfidence(t *testing.T) {
	p := fixedPredictor(historicalMemory(t, false))
	// Failure drops confidence to ~0.5, below the 0.6 gate.
	out := p.Speculate("clock", infos("Alarm", "Timer", "Stopwatch"))
	assert.Empty(t, out)
}

func TestJaccard(t *testing.T) {
	a := infos("x", "y", "z")
	b := infos("x", "y", "w")
	assert.InDelta(t, 0.5, jaccard(a, b), 1e-9)
	assert.Zero(t, jaccard(nil, b))
	assert.InDelta(t, 1.0, jaccard(a, a), 1e-9)
}

func TestConfidenceClamp(t *testing.T) {
	p := fixedPredictor(historicalMemory(t, true))
	for i := 0; i < 100; i++ {
		c := p.confidence(1, true)
		assert.GreaterOrEqual(t, c, 0.0)
		assert.LessOrEqual(t, c, 1.0)
	}
}
