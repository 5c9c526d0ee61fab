//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

package reflection

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-phone-agent/device"
	"trpc.group/trpc-go/trpc-phone-agent/memory"
	"trpc.group/trpc-go/trpc-phone-agent/model"
	"trpc.group/trpc-go/trpc-phone-agent/uielement"
)

type reflectClient struct {
	body  string
	err   error
	calls int
}

func (c *reflectClient) Stream(ctx context.Context, req *model.Request) (<-chan model.Chunk, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	ch := make(chan model.Chunk, 2)
	ch <- model.Chunk{Content: c.body}
	ch <- model.Chunk{Done: true}
	close(ch)
	return ch, nil
}

func elem(content string, x, y int, checked, focused bool) uielement.Element {
	b := uielement.Bounds{X1: x, Y1: y, X2: x + 100, Y2: y + 40}
	e := uielement.Element{
		Bounds: b, Center: b.Center(), Text: content,
		ClassPath: "android.widget.Button", Checked: checked, Focused: focused,
	}
	return e
}

func screen(elems ...uielement.Element) *device.Screenshot {
	return &device.Screenshot{PNG: []byte{137, 80}, Width: 1080, Height: 1920, Elements: elems}
}

func tapAction() memory.WorkAction {
	return memory.WorkAction{Kind: memory.KindTap, Description: "Tap Login"}
}

func TestFastPathOnObviousChange(t *testing.T) {
	client := &reflectClient{}
	e := New(model.NewCaller(client))

	before := screen(
		elem("Login", 0, 0, false, false), elem("User", 0, 50, false, false),
	)
	after := screen(
		elem("Welcome", 0, 0, false, false), elem("Feed", 0, 50, false, false),
		elem("Profile", 0, 100, false, false), elem("Search", 0, 150, false, false),
		elem("Logout", 0, 200, false, false), elem("News", 0, 250, false, false),
	)
	rec := e.Reflect(context.Background(), before, after, tapAction(), false, true)
	assert.Equal(t, memory.TristateTrue, rec.ActionSuccessful)
	assert.Equal(t, memory.ResultSuccess, rec.ExecutionResult)
	assert.InDelta(t, 0.9, rec.Confidence, 1e-9)
	assert.False(t, rec.UsedModelAnalysis)
	assert.Equal(t, 2, rec.ElementsBefore)
	assert.Equal(t, 6, rec.ElementsAfter)
	assert.Zero(t, client.calls)
}

func TestFastPathOnFocusChange(t *testing.T) {
	client := &reflectClient{}
	e := New(model.NewCaller(client))

	a := elem("Field", 0, 0, false, false)
	b := elem("Field", 0, 0, false, true)
	before := screen(a)
	before.Focused = nil
	after := screen(b)
	after.Focused = &b

	rec := e.Reflect(context.Background(), before, after, tapAction(), false, true)
	assert.Equal(t, memory.TristateTrue, rec.ActionSuccessful)
	assert.Zero(t, client.calls)
}

func TestSlowPathParsesModelJSON(t *testing.T) {
	client := &reflectClient{body: "```json\n" + `{
		"execution_result": "failure",
		"ui_changes": "nothing moved",
		"goal_achievement": "none",
		"abnormal_states": "element not clickable",
		"reasoning": "the tap had no effect",
		"improvement_suggestions": "try long press",
		"confidence": 1.7
	}` + "\n```"}
	e := New(model.NewCaller(client))

	same := screen(elem("Login", 0, 0, false, false))
	rec := e.Reflect(context.Background(), same, same, tapAction(), false, false)
	require.Equal(t, 1, client.calls)
	assert.Equal(t, memory.TristateFalse, rec.ActionSuccessful)
	assert.Equal(t, memory.ResultFailure, rec.ExecutionResult)
	assert.Equal(t, "element not clickable", rec.AbnormalStates)
	assert.True(t, rec.UsedModelAnalysis)
	// Out-of-range confidence clamps.
	assert.InDelta(t, 1.0, rec.Confidence, 1e-9)
}

func TestSlowPathModelErrorYieldsUnknown(t *testing.T) {
	client := &reflectClient{err: errors.New("unreachable")}
	e := New(model.NewCaller(client))
	same := screen(elem("Login", 0, 0, false, false))
	rec := e.Reflect(context.Background(), same, same, tapAction(), false, false)
	assert.Equal(t, memory.TristateUnknown, rec.ActionSuccessful)
	assert.Zero(t, rec.Confidence)
}

func TestSlowPathUnparseableYieldsUnknown(t *testing.T) {
	client := &reflectClient{body: "I think it went fine."}
	e := New(model.NewCaller(client))
	same := screen(elem("Login", 0, 0, false, false))
	rec := e.Reflect(context.Background(), same, same, tapAction(), false, false)
	assert.Equal(t, memory.TristateUnknown, rec.ActionSuccessful)
	assert.Zero(t, rec.Confidence)
}

func TestSkillReflectionAlwaysUsesModel(t *testing.T) {
	client := &reflectClient{body: `{"execution_result": "success", "confidence": 0.8}`}
	e := New(model.NewCaller(client))

	before := screen(elem("A", 0, 0, false, false))
	after := screen(
		elem("B", 0, 0, false, false), elem("C", 0, 50, false, false),
		elem("D", 0, 100, false, false), elem("E", 0, 150, false, false),
	)
	rec := e.Reflect(context.Background(), before, after,
		memory.WorkAction{Kind: memory.KindSkillExecution, SkillName: "alarm_create"}, true, true)
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, memory.TristateTrue, rec.ActionSuccessful)
	assert.True(t, rec.UsedModelAnalysis)
}

func TestFailureOnlySkipsModelOnSuccess(t *testing.T) {
	client := &reflectClient{}
	e := New(model.NewCaller(client), WithFailureOnly())
	same := screen(elem("Login", 0, 0, false, false))
	rec := e.Reflect(context.Background(), same, same, tapAction(), false, true)
	assert.Zero(t, client.calls)
	assert.Equal(t, memory.TristateUnknown, rec.ActionSuccessful)
}

func TestComputeDelta(t *testing.T) {
	before := []uielement.Element{
		elem("Login", 0, 0, false, false), elem("User", 0, 50, false, false),
	}
	after := []uielement.Element{
		elem("Welcome", 0, 0, false, false), elem("User", 0, 50, false, false),
	}
	d := computeDelta(before, after)
	assert.Zero(t, d.ElementCountDiff)
	assert.Equal(t, []string{"Welcome"}, d.NewContents)
	assert.Equal(t, []string{"Login"}, d.RemovedContents)
}

func TestStateChanges(t *testing.T) {
	before := []uielement.Element{elem("Vibrate", 0, 0, false, false)}
	after := []uielement.Element{elem("Vibrate", 0, 0, true, false)}
	changes := stateChanges(before, after)
	require.Len(t, changes, 1)
	assert.Contains(t, changes[0], `"Vibrate" enabled`)
}

func TestObviousChangeRules(t *testing.T) {
	assert.True(t, obviousChange(&Delta{ElementCountDiff: 3}))
	assert.True(t, obviousChange(&Delta{ElementCountDiff: -4}))
	assert.True(t, obviousChange(&Delta{NewContents: []string{"a", "b", "c", "d"}}))
	assert.True(t, obviousChange(&Delta{NewContents: []string{"Saved"}}))
	assert.True(t, obviousChange(&Delta{NewContents: []string{"Settings"}}))
	assert.False(t, obviousChange(&Delta{NewContents: []string{"Settings"}, RemovedContents: []string{"Back"}}))
	assert.True(t, obviousChange(&Delta{StateChanges: []string{"x"}}))
	assert.False(t, obviousChange(&Delta{ElementCountDiff: 1, NewContents: []string{"misc"}}))
}
