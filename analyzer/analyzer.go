//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

// Package analyzer tracks action failures, detects recurring error
// patterns and emits prevention guidance before risky actions repeat.
//
// The analyzer is private to one agent run; nothing here is shared or
// locked. Guidance goes to the logs, never back into the model prompt.
package analyzer

import (
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-phone-agent/log"
	"trpc.group/trpc-go/trpc-phone-agent/memory"
)

// PatternType classifies a detected error pattern.
type PatternType string

// Detected pattern types.
const (
	PatternRepeatedFailure PatternType = "repeated_failure"
	PatternWrongElement    PatternType = "wrong_element"
	PatternTimingIssue     PatternType = "timing_issue"
	PatternInputValidation PatternType = "input_validation"
)

// ErrorPattern is one recognized failure pattern with remediation hints.
type ErrorPattern struct {
	Type          PatternType `json:"pattern_type"`
	Description   string      `json:"description"`
	FailedActions []string    `json:"failed_actions"`
	ContextConds  []string    `json:"context_conditions"`
	Suggestions   []string    `json:"suggestions"`
	Confidence    float64     `json:"confidence"`
}

// UIContext carries the screen facts pattern conditions are derived from.
type UIContext struct {
	App          string
	ElementCount int
}

// Element count boundaries for context conditions.
const (
	complexUIThreshold = 20
	simpleUIThreshold  = 5
)

// repeatedFailureFloor is the failure count that triggers prevention
// guidance on its own.
const repeatedFailureFloor = 2

type actionKey struct {
	kind    memory.ActionKind
	element string
}

func keyOf(act memory.WorkAction) actionKey {
	return actionKey{kind: act.Kind, element: act.ZonePath}
}

func (k actionKey) String() string {
	if k.element == "" {
		return string(k.kind)
	}
	return fmt.Sprintf("%s on %s", k.kind, k.element)
}

type failureRecord struct {
	key    actionKey
	action memory.WorkAction
}

// ErrorAnalyzer accumulates failures for one agent run.
type ErrorAnalyzer struct {
	errorHistory []failureRecord
	failureCount map[actionKey]int
	patterns     map[PatternType]*ErrorPattern
}

// New creates an empty analyzer.
func New() *ErrorAnalyzer {
	return &ErrorAnalyzer{
		failureCount: make(map[actionKey]int),
		patterns:     make(map[PatternType]*ErrorPattern),
	}
}

// RecordActionResult updates the per-action failure counters: failures
// increment, any success resets the counter for that action to zero.
func (a *ErrorAnalyzer) RecordActionResult(act memory.WorkAction, success bool) {
	key := keyOf(act)
	if success {
		a.failureCount[key] = 0
		return
	}
	a.failureCount[key]++
	a.errorHistory = append(a.errorHistory, failureRecord{key: key, action: act})
}

// FailureCount reports the consecutive failure count for an action.
func (a *ErrorAnalyzer) FailureCount(act memory.WorkAction) int {
	return a.failureCount[keyOf(act)]
}

// Patterns returns the patterns detected so far.
func (a *ErrorAnalyzer) Patterns() []*ErrorPattern {
	out := make([]*ErrorPattern, 0, len(a.patterns))
	for _, p := range a.patterns {
		out = append(out, p)
	}
	return out
}

// Keyword lists the detectors match against reflection text.
var (
	wrongElementWords = []string{
		"wrong element", "incorrect target", "element not found",
		"no response", "element not clickable", "element disabled",
	}
	timingWords = []string{
		"loading", "not ready", "still processing", "animation",
		"transition", "delay needed", "too fast", "ui not stable",
	}
	inputValidationWords = []string{
		"invalid format", "validation error", "format required",
		"invalid input", "text rejected", "field validation",
	}
)

// AnalyzeFailure runs the pattern detectors against the most recent
// failure and records every pattern that fires.
func (a *ErrorAnalyzer) AnalyzeFailure(act memory.WorkAction, reflection *memory.ReflectionRecord, uiCtx UIContext) []*ErrorPattern {
	var fired []*ErrorPattern
	text := reflectionText(reflection)

	if p := a.detectRepeatedFailure(act, uiCtx); p != nil {
		fired = append(fired, p)
	}
	if containsAny(text, wrongElementWords) {
		fired = append(fired, a.record(PatternWrongElement,
			"the referenced element did not respond or was the wrong target", act, uiCtx))
	}
	if containsAny(text, timingWords) {
		fired = append(fired, a.record(PatternTimingIssue,
			"the screen was not ready when the action fired", act, uiCtx))
	}
	if act.Kind == memory.KindType && containsAny(text, inputValidationWords) {
		fired = append(fired, a.record(PatternInputValidation,
			"the typed text was rejected by field validation", act, uiCtx))
	}
	for _, p := range fired {
		log.Debugf("analyzer: pattern %s on %s (confidence %.2f)", p.Type, keyOf(act), p.Confidence)
	}
	return fired
}

// detectRepeatedFailure fires when the same action failed at least twice
// within the last three recorded failures.
func (a *ErrorAnalyzer) detectRepeatedFailure(act memory.WorkAction, uiCtx UIContext) *ErrorPattern {
	key := keyOf(act)
	recent := a.errorHistory
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	hits := 0
	for _, r := range recent {
		if r.key == key {
			hits++
		}
	}
	if hits < 2 {
		return nil
	}
	return a.record(PatternRepeatedFailure,
		fmt.Sprintf("%s failed %d times in the recent window", key, hits), act, uiCtx)
}

// record stores (or refreshes) a pattern and returns it.
func (a *ErrorAnalyzer) record(t PatternType, desc string, act memory.WorkAction, uiCtx UIContext) *ErrorPattern {
	key := keyOf(act)
	p, ok := a.patterns[t]
	if !ok {
		p = &ErrorPattern{Type: t, Description: desc}
		a.patterns[t] = p
	}
	p.Description = desc
	p.FailedActions = appendUnique(p.FailedActions, key.String())
	p.ContextConds = mergeConds(p.ContextConds, contextConds(uiCtx))
	p.Suggestions = suggestionsFor(t, act.Kind)
	p.Confidence = clamp(0.5+0.1*float64(a.failureCount[key]), 0, 1)
	return p
}

// contextConds derives the context condition tags for a screen.
func contextConds(uiCtx UIContext) []string {
	var conds []string
	switch {
	case uiCtx.ElementCount > complexUIThreshold:
		conds = append(conds, "COMPLEX_UI")
	case uiCtx.ElementCount < simpleUIThreshold:
		conds = append(conds, "SIMPLE_UI")
	}
	if uiCtx.App != "" {
		conds = append(conds, "APP_"+strings.ToUpper(memorySafe(uiCtx.App)))
	}
	return conds
}

func memorySafe(s string) string {
	return strings.NewReplacer(".", "_", " ", "_", "/", "_").Replace(s)
}

// suggestionsFor is the fixed remediation lookup per pattern and kind.
func suggestionsFor(t PatternType, kind memory.ActionKind) []string {
	switch t {
	case PatternRepeatedFailure:
		switch kind {
		case memory.KindTap:
			return []string{
				"Try long press instead of tap",
				"Verify the element is still on screen before tapping",
				"Consider scrolling to reveal the intended element",
			}
		case memory.KindSwipe:
			return []string{
				"Try a different swipe distance",
				"Swipe from a different element",
			}
		case memory.KindType:
			return []string{
				"Tap the input field before typing",
				"Clear the field and retype",
			}
		default:
			return []string{"Try an alternative action to reach the same goal"}
		}
	case PatternWrongElement:
		return []string{
			"Re-examine the element listing and pick the closest matching target",
			"Check whether the element is disabled or covered",
		}
	case PatternTimingIssue:
		return []string{
			"Insert a Wait action before retrying",
			"Wait for loading indicators to disappear",
		}
	case PatternInputValidation:
		return []string{
			"Match the format the field expects",
			"Clear the field before entering new text",
		}
	}
	return nil
}

// GetPreventionGuidance returns a textual warning when the pending action
// resembles past failures, empty otherwise.
func (a *ErrorAnalyzer) GetPreventionGuidance(act memory.WorkAction, uiCtx UIContext) string {
	key := keyOf(act)
	count := a.failureCount[key]
	var parts []string
	if count >= repeatedFailureFloor {
		parts = append(parts, fmt.Sprintf("%s has failureCount=%d", key, count))
	}
	for _, p := range a.patterns {
		if matchesPattern(p, key) {
			parts = append(parts,
				fmt.Sprintf("matches pattern %s: %s (suggestions: %s)",
					p.Type, p.Description, strings.Join(p.Suggestions, "; ")))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "prevention: " + strings.Join(parts, "; ")
}

func matchesPattern(p *ErrorPattern, key actionKey) bool {
	for _, fa := range p.FailedActions {
		if fa == key.String() {
			return true
		}
	}
	return false
}

func containsAny(text string, words []string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func reflectionText(r *memory.ReflectionRecord) string {
	if r == nil {
		return ""
	}
	return strings.Join([]string{
		r.AbnormalStates, r.InterfaceChanges, r.Reasoning, r.GoalAchievement,
	}, " ")
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func mergeConds(dst, src []string) []string {
	for _, c := range src {
		dst = appendUnique(dst, c)
	}
	return dst
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
