//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

// Package reflection judges whether an executed action achieved its
// intent: a cheap screen-diff fast path first, a model call with the
// before/after screenshots when the diff is inconclusive.
package reflection

import (
	"context"
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-phone-agent/device"
	"trpc.group/trpc-go/trpc-phone-agent/log"
	"trpc.group/trpc-go/trpc-phone-agent/memory"
	"trpc.group/trpc-go/trpc-phone-agent/model"
)

// fastPathConfidence is assigned to heuristic success judgments.
const fastPathConfidence = 0.9

const reflectSystemPrompt = `You judge whether a phone automation action achieved its intent. You receive the action description, the screen before the action and the screen after it.

Reply with a single strict JSON object and nothing else:
{
  "execution_result": "success" | "partial_success" | "failure",
  "ui_changes": "what changed on screen",
  "goal_achievement": "how far the action's goal was reached",
  "abnormal_states": "error dialogs, unexpected screens, empty string if none",
  "reasoning": "short reasoning",
  "improvement_suggestions": "what to try instead on failure, empty string if none",
  "confidence": 0.0
}`

// Engine produces reflection records for executed actions.
type Engine struct {
	caller *model.Caller
	// failureOnly skips model reflection when the handler already reported
	// success and the fast path did not fire.
	failureOnly bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithFailureOnly restricts model reflection to failed actions.
func WithFailureOnly() Option {
	return func(e *Engine) { e.failureOnly = true }
}

// New creates a reflection engine.
func New(caller *model.Caller, opts ...Option) *Engine {
	e := &Engine{caller: caller}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reflect judges one executed action. isSkill forces the model path:
// skills span multiple screens, so a single diff cannot prove success.
// handlerSuccess is the dispatch-level outcome.
func (e *Engine) Reflect(ctx context.Context, before, after *device.Screenshot,
	act memory.WorkAction, isSkill, handlerSuccess bool) *memory.ReflectionRecord {
	delta := computeDelta(before.Elements, after.Elements)

	if !isSkill && (obviousChange(delta) || focusChanged(before, after)) {
		return &memory.ReflectionRecord{
			ActionSuccessful:  memory.TristateTrue,
			ExecutionResult:   memory.ResultSuccess,
			InterfaceChanges:  summarizeDelta(delta),
			Confidence:        fastPathConfidence,
			UsedModelAnalysis: false,
			ElementsBefore:    len(before.Elements),
			ElementsAfter:     len(after.Elements),
		}
	}

	if e.failureOnly && handlerSuccess && !isSkill {
		return unknownRecord(delta, before, after, "screen diff inconclusive, model reflection skipped")
	}
	return e.modelReflect(ctx, before, after, act, delta)
}

// modelReflect runs the slow path: a three-message prompt carrying both
// screenshots, demanding strict JSON back.
func (e *Engine) modelReflect(ctx context.Context, before, after *device.Screenshot,
	act memory.WorkAction, delta *Delta) *memory.ReflectionRecord {
	req := &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage(reflectSystemPrompt),
			model.NewImageMessage(
				fmt.Sprintf("Action: %s\nScreen BEFORE the action:", act.Description),
				&model.Image{Data: before.PNG, Format: "png"}),
			model.NewImageMessage("Screen AFTER the action:",
				&model.Image{Data: after.PNG, Format: "png"}),
		},
		Mode: model.ModeReflect,
	}
	res, err := e.caller.Call(ctx, req)
	if err != nil {
		log.Warnf("reflection: model call: %v", err)
		return unknownRecord(delta, before, after, "model reflection failed: "+err.Error())
	}
	obj, err := model.ExtractJSON(res.Answer)
	if err != nil {
		log.Warnf("reflection: parse response: %v", err)
		return unknownRecord(delta, before, after, "model reflection unparseable: "+err.Error())
	}
	rec := recordFromJSON(obj)
	rec.ElementsBefore = len(before.Elements)
	rec.ElementsAfter = len(after.Elements)
	return rec
}

// recordFromJSON maps the model's JSON onto a record, tolerating missing
// fields.
func recordFromJSON(obj map[string]any) *memory.ReflectionRecord {
	str := func(key string) string {
		v, _ := obj[key].(string)
		return v
	}
	rec := &memory.ReflectionRecord{
		ExecutionResult:        memory.ExecutionResult(str("execution_result")),
		InterfaceChanges:       str("ui_changes"),
		GoalAchievement:        str("goal_achievement"),
		AbnormalStates:         str("abnormal_states"),
		Reasoning:              str("reasoning"),
		ImprovementSuggestions: str("improvement_suggestions"),
		UsedModelAnalysis:      true,
	}
	switch rec.ExecutionResult {
	case memory.ResultSuccess:
		rec.ActionSuccessful = memory.TristateTrue
	case memory.ResultFailure:
		rec.ActionSuccessful = memory.TristateFalse
	default:
		rec.ActionSuccessful = memory.TristateUnknown
	}
	if conf, ok := obj["confidence"].(float64); ok {
		rec.Confidence = clamp01(conf)
	}
	return rec
}

// unknownRecord is the zero-confidence fallback on any reflection error.
func unknownRecord(delta *Delta, before, after *device.Screenshot, reason string) *memory.ReflectionRecord {
	return &memory.ReflectionRecord{
		ActionSuccessful:  memory.TristateUnknown,
		ExecutionResult:   memory.ResultPartialSuccess,
		InterfaceChanges:  summarizeDelta(delta),
		Reasoning:         reason,
		Confidence:        0,
		UsedModelAnalysis: false,
		ElementsBefore:    len(before.Elements),
		ElementsAfter:     len(after.Elements),
	}
}

// focusChanged reports a focus move between the two captures.
func focusChanged(before, after *device.Screenshot) bool {
	switch {
	case before.Focused == nil && after.Focused == nil:
		return false
	case before.Focused == nil || after.Focused == nil:
		return true
	default:
		return before.Focused.Identity() != after.Focused.Identity()
	}
}

func summarizeDelta(d *Delta) string {
	var parts []string
	if d.ElementCountDiff != 0 {
		parts = append(parts, fmt.Sprintf("element count %+d", d.ElementCountDiff))
	}
	if len(d.NewContents) > 0 {
		parts = append(parts, "new: "+strings.Join(d.NewContents, ", "))
	}
	if len(d.RemovedContents) > 0 {
		parts = append(parts, "removed: "+strings.Join(d.RemovedContents, ", "))
	}
	parts = append(parts, d.StateChanges...)
	if len(parts) == 0 {
		return "no visible change"
	}
	return strings.Join(parts, "; ")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
