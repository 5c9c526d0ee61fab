//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-phone-agent/action"
	"trpc.group/trpc-go/trpc-phone-agent/model"
	"trpc.group/trpc-go/trpc-phone-agent/skill"
)

// scriptedClient returns canned bodies in order, then repeats the last.
type scriptedClient struct {
	bodies []string
	err    error
	calls  int
}

func (s *scriptedClient) Stream(ctx context.Context, req *model.Request) (<-chan model.Chunk, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	i := s.calls - 1
	if i >= len(s.bodies) {
		i = len(s.bodies) - 1
	}
	ch := make(chan model.Chunk, 2)
	ch <- model.Chunk{Content: s.bodies[i]}
	ch <- model.Chunk{Done: true}
	close(ch)
	return ch, nil
}

func libraryWithAlarm(t *testing.T) *skill.Library {
	t.Helper()
	l := skill.NewLibrary(t.TempDir())
	l.RegisterNative(skill.Meta{
		FunctionName: "alarm_create",
		Tag:          "clock.alarm",
		Description:  "Create an alarm",
		Parameters: []skill.Param{
			{Name: "hour"}, {Name: "minute"}, {Name: "days"}, {Name: "vibrate_enabled", Default: true},
		},
	}, func(skill.Params) ([]*action.Action, error) { return nil, nil })
	return l
}

func TestPlanUseSkill(t *testing.T) {
	client := &scriptedClient{bodies: []string{
		"<decision>use_skill</decision>\n" +
			`<execution>alarm_create(hour=7, minute=30, days=["M","W"], vibrate_enabled=false)</execution>`,
	}}
	p := New(model.NewCaller(client), libraryWithAlarm(t))

	plan := p.Plan(context.Background(), "set an alarm for 7:30 AM every Monday and Wednesday with vibration off", "")
	require.Equal(t, DecisionUseSkill, plan.Decision)
	assert.Equal(t, "alarm_create", plan.SkillName)
	assert.Equal(t, int64(7), plan.SkillParams["hour"])
	assert.Equal(t, int64(30), plan.SkillParams["minute"])
	assert.Equal(t, []any{"M", "W"}, plan.SkillParams["days"])
	assert.Equal(t, false, plan.SkillParams["vibrate_enabled"])
}

func TestPlanAtomic(t *testing.T) {
	client := &scriptedClient{bodies: []string{"<decision>use_atomic_actions</decision>"}}
	p := New(model.NewCaller(client), libraryWithAlarm(t))
	plan := p.Plan(context.Background(), "do something unusual", "")
	assert.Equal(t, DecisionAtomicActions, plan.Decision)
}

func TestPlanCachesByNormalizedTask(t *testing.T) {
	client := &scriptedClient{bodies: []string{"<decision>use_atomic_actions</decision>"}}
	p := New(model.NewCaller(client), libraryWithAlarm(t))

	p.Plan(context.Background(), "Open  Settings", "")
	p.Plan(context.Background(), "open settings", "")
	assert.Equal(t, 1, client.calls)

	p.Invalidate("open settings")
	p.Plan(context.Background(), "open settings", "")
	assert.Equal(t, 2, client.calls)
}

func TestPlanDegradesToAtomicOnModelError(t *testing.T) {
	client := &scriptedClient{err: errors.New("model down")}
	p := New(model.NewCaller(client), libraryWithAlarm(t))
	plan := p.Plan(context.Background(), "task", "")
	assert.Equal(t, DecisionAtomicActions, plan.Decision)
}

func TestPlanRejectsUnknownSkill(t *testing.T) {
	client := &scriptedClient{bodies: []string{
		"<decision>use_skill</decision><execution>ghost_skill(x=1)</execution>",
	}}
	p := New(model.NewCaller(client), libraryWithAlarm(t))
	// Unknown skill degrades to atomic, and the failure is not cached.
	plan := p.Plan(context.Background(), "task", "")
	assert.Equal(t, DecisionAtomicActions, plan.Decision)
	p.Plan(context.Background(), "task", "")
	assert.Equal(t, 2, client.calls)
}

func TestDecompose(t *testing.T) {
	client := &scriptedClient{bodies: []string{
		"```json\n" +
			`{"is_decomposed": true, "subtasks": [` +
			`{"description": "open the clock app", "tag": "clock.open"},` +
			`{"description": "create the alarm", "tag": "clock.alarm"}]}` + "\n```",
	}}
	p := New(model.NewCaller(client), libraryWithAlarm(t))
	plan := p.Decompose(context.Background(), "set an alarm")
	require.True(t, plan.IsDecomposed)
	require.Len(t, plan.Subtasks, 2)
	assert.Equal(t, "clock.alarm", plan.Subtasks[1].Tag)
	assert.Equal(t, 0, plan.CurrentIndex)
}

func TestDecomposeFallback(t *testing.T) {
	client := &scriptedClient{bodies: []string{"no json to be found"}}
	p := New(model.NewCaller(client), libraryWithAlarm(t))
	plan := p.Decompose(context.Background(), "water the plants")
	assert.False(t, plan.IsDecomposed)
	require.Len(t, plan.Subtasks, 1)
	assert.Equal(t, "general.task", plan.Subtasks[0].Tag)
	assert.Equal(t, "water the plants", plan.Subtasks[0].Description)
}

func TestExtractTag(t *testing.T) {
	assert.Equal(t, "x", extractTag("<a>x</a>", "a"))
	assert.Equal(t, "tail", extractTag("<a>tail", "a"))
	assert.Empty(t, extractTag("nothing", "a"))
}
