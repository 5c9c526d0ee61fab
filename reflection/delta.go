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
	"fmt"
	"sort"
	"strings"

	"trpc.group/trpc-go/trpc-phone-agent/uielement"
)

// Delta summarizes how the screen changed across one action.
type Delta struct {
	ElementCountDiff int
	NewContents      []string
	RemovedContents  []string
	StateChanges     []string
}

// positionalKey identifies an element across two captures of the same
// screen: content plus coarse position, tolerant to small layout drift.
func positionalKey(e *uielement.Element) string {
	return fmt.Sprintf("%s|%d|%d", e.Content(), e.Bounds.X1/10, e.Bounds.Y1/10)
}

// computeDelta diffs two element sets.
func computeDelta(before, after []uielement.Element) *Delta {
	d := &Delta{ElementCountDiff: len(after) - len(before)}

	beforeContents := make(map[string]bool, len(before))
	for i := range before {
		if c := before[i].Content(); c != "" {
			beforeContents[c] = true
		}
	}
	afterContents := make(map[string]bool, len(after))
	for i := range after {
		if c := after[i].Content(); c != "" {
			afterContents[c] = true
		}
	}
	for c := range afterContents {
		if !beforeContents[c] {
			d.NewContents = append(d.NewContents, c)
		}
	}
	for c := range beforeContents {
		if !afterContents[c] {
			d.RemovedContents = append(d.RemovedContents, c)
		}
	}
	sort.Strings(d.NewContents)
	sort.Strings(d.RemovedContents)

	d.StateChanges = stateChanges(before, after)
	sort.Strings(d.StateChanges)
	return d
}

// stateChanges reports checked and focus transitions on elements common to
// both screens, plus checked elements that appeared or disappeared.
func stateChanges(before, after []uielement.Element) []string {
	beforeByKey := make(map[string]*uielement.Element, len(before))
	for i := range before {
		beforeByKey[positionalKey(&before[i])] = &before[i]
	}
	afterByKey := make(map[string]*uielement.Element, len(after))
	for i := range after {
		afterByKey[positionalKey(&after[i])] = &after[i]
	}

	var changes []string
	for key, b := range beforeByKey {
		a, ok := afterByKey[key]
		if !ok {
			if b.Checked {
				changes = append(changes, fmt.Sprintf("Checked element %q disappeared", b.Content()))
			}
			continue
		}
		if b.Checked != a.Checked {
			if a.Checked {
				changes = append(changes, fmt.Sprintf("Element %q enabled", a.Content()))
			} else {
				changes = append(changes, fmt.Sprintf("Element %q disabled", a.Content()))
			}
		}
		if b.Focused != a.Focused {
			if a.Focused {
				changes = append(changes, fmt.Sprintf("Element %q gained focus", a.Content()))
			} else {
				changes = append(changes, fmt.Sprintf("Element %q lost focus", a.Content()))
			}
		}
	}
	for key, a := range afterByKey {
		if _, ok := beforeByKey[key]; !ok && a.Checked {
			changes = append(changes, fmt.Sprintf("Checked element %q appeared", a.Content()))
		}
	}
	return changes
}

// Word lists backing the obvious-change heuristic.
var (
	successWords = []string{
		"success", "saved", "done", "complete", "completed",
		"created", "sent", "confirmed", "finished",
	}
	navigationWords = []string{
		"back", "home", "menu", "settings", "search",
		"next", "continue", "ok", "cancel",
	}
)

// obviousChange reports whether the delta alone proves the action had an
// effect, with no model call needed.
func obviousChange(d *Delta) bool {
	if d.ElementCountDiff > 2 || d.ElementCountDiff < -2 {
		return true
	}
	if len(d.NewContents) > 3 || len(d.RemovedContents) > 3 {
		return true
	}
	if containsWord(d.NewContents, successWords) {
		return true
	}
	if containsWord(d.NewContents, navigationWords) && !containsWord(d.RemovedContents, navigationWords) {
		return true
	}
	return len(d.StateChanges) > 0
}

func containsWord(contents, words []string) bool {
	for _, c := range contents {
		lc := strings.ToLower(c)
		for _, w := range words {
			if lc == w {
				return true
			}
		}
	}
	return false
}
