//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

// Package prompt assembles the structured model context for one agent run:
// a fixed-order section list rendered into an OpenAI-style message slice.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-phone-agent/model"
)

// Section bounds and rendering thresholds.
const (
	defaultHistoryLimit    = 10
	defaultReflectionLimit = 5
	// reflectionConfidenceFloor keeps the reflection section out of the
	// prompt while recent reflections are confident successes.
	reflectionConfidenceFloor = 0.7
)

// HistoryEntry is one executed step in the history section.
type HistoryEntry struct {
	Step              int
	Thinking          string
	ActionDescription string
	ActionCode        string
	Success           bool
}

// ReflectionEntry is one post-action judgment in the reflection section.
type ReflectionEntry struct {
	Step       int
	Message    string
	Success    bool
	Confidence float64
}

// ElementInfo describes one interactive element in the screen info section.
type ElementInfo struct {
	Index     string `json:"index"`
	ClassName string `json:"class_name"`
	Label     string `json:"label"`
	Bounds    [4]int `json:"bounds"`
}

// ScreenInfo is the structured screen description sent alongside the
// screenshot.
type ScreenInfo struct {
	CurrentApp string        `json:"current_app"`
	Elements   []ElementInfo `json:"elements"`
}

// StructuredContext holds the prompt sections for one running task.
// Rendering is pure: the same section state always yields the same
// message list.
type StructuredContext struct {
	variant  Variant
	language Language
	task     string

	history     []HistoryEntry
	reflections []ReflectionEntry

	speculative string
	screenshot  *model.Image
	screenInfo  *ScreenInfo

	historyLimit    int
	reflectionLimit int
}

// Option configures a StructuredContext.
type Option func(*StructuredContext)

// WithLanguage sets the prompt language.
func WithLanguage(lang Language) Option {
	return func(c *StructuredContext) {
		c.language = lang
	}
}

// WithHistoryLimit bounds the history FIFO.
func WithHistoryLimit(n int) Option {
	return func(c *StructuredContext) {
		if n > 0 {
			c.historyLimit = n
		}
	}
}

// WithReflectionLimit bounds the reflection FIFO.
func WithReflectionLimit(n int) Option {
	return func(c *StructuredContext) {
		if n > 0 {
			c.reflectionLimit = n
		}
	}
}

// NewStructuredContext creates an empty context in action mode.
func NewStructuredContext(opts ...Option) *StructuredContext {
	c := &StructuredContext{
		variant:         VariantAction,
		language:        LanguageEnglish,
		historyLimit:    defaultHistoryLimit,
		reflectionLimit: defaultReflectionLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetVariant switches the system prompt variant for the next render.
func (c *StructuredContext) SetVariant(v Variant) {
	c.variant = v
}

// SetTask sets the task description, once per run.
func (c *StructuredContext) SetTask(task string) {
	c.task = task
}

// AddHistory appends a step to the history FIFO, dropping the oldest entry
// on overflow.
func (c *StructuredContext) AddHistory(e HistoryEntry) {
	c.history = append(c.history, e)
	if len(c.history) > c.historyLimit {
		c.history = c.history[len(c.history)-c.historyLimit:]
	}
}

// AddReflection appends a reflection to its FIFO, dropping the oldest entry
// on overflow.
func (c *StructuredContext) AddReflection(e ReflectionEntry) {
	c.reflections = append(c.reflections, e)
	if len(c.reflections) > c.reflectionLimit {
		c.reflections = c.reflections[len(c.reflections)-c.reflectionLimit:]
	}
}

// SetSpeculative attaches the transient speculative context block.
func (c *StructuredContext) SetSpeculative(text string) {
	c.speculative = text
}

// SetScreenshot attaches the current step's screenshot.
func (c *StructuredContext) SetScreenshot(img *model.Image) {
	c.screenshot = img
}

// SetScreenInfo attaches the current step's structured screen description.
func (c *StructuredContext) SetScreenInfo(info *ScreenInfo) {
	c.screenInfo = info
}

// HistoryLen reports the current history section size.
func (c *StructuredContext) HistoryLen() int {
	return len(c.history)
}

// EndStep clears the per-step sections and restores the action variant.
// History and reflection persist across steps.
func (c *StructuredContext) EndStep() {
	c.screenshot = nil
	c.screenInfo = nil
	c.speculative = ""
	c.variant = VariantAction
}

// RouterSystemPrompt renders the router variant with the given skill
// library listing.
func RouterSystemPrompt(library string) string {
	return fmt.Sprintf(routerSystemPromptEN, library)
}

// Render produces the ordered message list: system prompt, task, history,
// reflection, speculative context, screenshot, screen info.
func (c *StructuredContext) Render() []model.Message {
	msgs := []model.Message{model.NewSystemMessage(systemPrompt(c.variant, c.language))}
	if c.task != "" {
		msgs = append(msgs, model.NewUserMessage("Task: "+c.task))
	}
	if len(c.history) > 0 {
		msgs = append(msgs, model.NewUserMessage(c.renderHistory()))
	}
	if text, ok := c.renderReflection(); ok {
		msgs = append(msgs, model.NewUserMessage(text))
	}
	if c.speculative != "" {
		msgs = append(msgs, model.NewUserMessage("Speculative Context (hints from similar past runs):\n"+c.speculative))
	}
	if c.screenshot != nil {
		msgs = append(msgs, model.NewImageMessage("Current screen:", c.screenshot))
	}
	if c.screenInfo != nil {
		msgs = append(msgs, model.NewUserMessage(c.renderScreenInfo()))
	}
	return msgs
}

func (c *StructuredContext) renderHistory() string {
	var b strings.Builder
	b.WriteString("Previous steps:")
	for _, e := range c.history {
		outcome := "succeeded"
		if !e.Success {
			outcome = "failed"
		}
		fmt.Fprintf(&b, "\nStep %d: %s | %s | %s", e.Step, e.ActionDescription, e.ActionCode, outcome)
		if e.Thinking != "" {
			fmt.Fprintf(&b, "\n  reasoning: %s", e.Thinking)
		}
	}
	return b.String()
}

// renderReflection emits the reflection section only when the most recent
// entry signals trouble.
func (c *StructuredContext) renderReflection() (string, bool) {
	if len(c.reflections) == 0 {
		return "", false
	}
	last := c.reflections[len(c.reflections)-1]
	if last.Success && last.Confidence >= reflectionConfidenceFloor {
		return "", false
	}
	var b strings.Builder
	b.WriteString("Recent reflections:")
	for _, e := range c.reflections {
		outcome := "success"
		if !e.Success {
			outcome = "failure"
		}
		fmt.Fprintf(&b, "\nStep %d (%s, confidence %.2f): %s", e.Step, outcome, e.Confidence, e.Message)
	}
	return b.String(), true
}

func (c *StructuredContext) renderScreenInfo() string {
	data, err := json.Marshal(c.screenInfo)
	if err != nil {
		// A ScreenInfo value cannot fail to marshal; keep Render total
		// anyway.
		return "Screen info unavailable."
	}
	return "Screen info:\n" + string(data)
}
