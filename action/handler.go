//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

package action

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"trpc.group/trpc-go/trpc-phone-agent/device"
	"trpc.group/trpc-go/trpc-phone-agent/log"
	"trpc.group/trpc-go/trpc-phone-agent/memory"
)

// Result is the outcome of one dispatched action.
type Result struct {
	Success              bool
	ShouldFinish         bool
	RequiresConfirmation bool
	Message              string
}

// ConfirmFunc asks the user to approve a sensitive action. Returning false
// cancels the run.
type ConfirmFunc func(message string) bool

// TakeoverFunc notifies the user that manual intervention is needed.
type TakeoverFunc func(message string)

// Swipe distance factors over the element width.
var distanceFactor = map[string]int{
	"short":  2,
	"medium": 5,
	"long":   10,
}

// defaultWaitDuration applies when a Wait duration does not parse.
const defaultWaitDuration = time.Second

// defaultSwipeWidth backs swipes resolved from literal coordinates, where
// no element width is known.
const defaultSwipeWidth = 60

// Handler dispatches parsed actions onto a device controller.
type Handler struct {
	controller device.Controller
	confirm    ConfirmFunc
	takeover   TakeoverFunc
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithConfirm installs the sensitive-action confirmation callback.
func WithConfirm(f ConfirmFunc) HandlerOption {
	return func(h *Handler) {
		h.confirm = f
	}
}

// WithTakeover installs the manual-takeover callback.
func WithTakeover(f TakeoverFunc) HandlerOption {
	return func(h *Handler) {
		h.takeover = f
	}
}

// NewHandler creates a Handler over a device controller.
func NewHandler(controller device.Controller, opts ...HandlerOption) *Handler {
	h := &Handler{controller: controller}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Execute runs one resolved action. sensitive marks actions taken on a
// screen whose pixels could not be shown to the user; those ask for
// confirmation first, and a declined confirmation ends the run.
//
// Device failures come back inside the Result, never as a panic: the loop
// treats them as a failed step and keeps going or finishes per the flags.
func (h *Handler) Execute(ctx context.Context, act *Action, sensitive bool) *Result {
	if sensitive && h.confirm != nil && touchesDevice(act.Kind) {
		if !h.confirm(act.Describe()) {
			return &Result{
				Success:              false,
				ShouldFinish:         true,
				RequiresConfirmation: true,
				Message:              "user cancelled sensitive action",
			}
		}
	}

	switch act.Kind {
	case memory.KindFinish:
		return &Result{Success: true, ShouldFinish: true, Message: act.Message}
	case memory.KindLaunch:
		return h.launch(ctx, act)
	case memory.KindTap:
		return h.gesture(act, func(x, y int) error { return h.controller.Tap(ctx, x, y) })
	case memory.KindDoubleTap:
		return h.gesture(act, func(x, y int) error { return h.controller.DoubleTap(ctx, x, y) })
	case memory.KindLongPress:
		return h.gesture(act, func(x, y int) error { return h.controller.LongPress(ctx, x, y) })
	case memory.KindType:
		return h.typeText(ctx, act)
	case memory.KindSwipe:
		return h.swipe(ctx, act)
	case memory.KindBack:
		return h.simple(h.controller.Back(ctx))
	case memory.KindHome:
		return h.simple(h.controller.Home(ctx))
	case memory.KindWait:
		return h.wait(ctx, act)
	case memory.KindTakeOver:
		if h.takeover != nil {
			h.takeover(act.Message)
		}
		return &Result{Success: true, RequiresConfirmation: true, Message: act.Message}
	case memory.KindInteract, memory.KindNote, memory.KindCallAPI:
		// Declared but not automated: the user has to act.
		return &Result{Success: true, RequiresConfirmation: true, Message: "user interaction required"}
	default:
		return &Result{Success: false, Message: fmt.Sprintf("no dispatch for action %q", act.Kind)}
	}
}

// touchesDevice reports whether a kind mutates device state.
func touchesDevice(kind memory.ActionKind) bool {
	switch kind {
	case memory.KindFinish, memory.KindWait, memory.KindNote,
		memory.KindInteract, memory.KindCallAPI:
		return false
	}
	return true
}

func (h *Handler) launch(ctx context.Context, act *Action) *Result {
	if act.App == "" {
		return &Result{Success: false, Message: "Launch requires an app name"}
	}
	ok, err := h.controller.LaunchApp(ctx, act.App)
	if err != nil {
		return &Result{Success: false, Message: fmt.Sprintf("launch %s: %v", act.App, err)}
	}
	if !ok {
		return &Result{Success: false, Message: fmt.Sprintf("unknown app %q", act.App)}
	}
	return &Result{Success: true}
}

func (h *Handler) gesture(act *Action, f func(x, y int) error) *Result {
	if act.Coords == nil {
		return &Result{Success: false, Message: fmt.Sprintf("%s: element %q unresolved", act.Kind, act.Element)}
	}
	if err := f(act.Coords.X, act.Coords.Y); err != nil {
		return &Result{Success: false, Message: fmt.Sprintf("%s at (%d,%d): %v", act.Kind, act.Coords.X, act.Coords.Y, err)}
	}
	return &Result{Success: true}
}

// typeText taps the field, switches to the controlled IME, clears, types
// and restores the previous IME even when typing fails midway.
func (h *Handler) typeText(ctx context.Context, act *Action) *Result {
	if act.Text == "" {
		return &Result{Success: false, Message: "Type requires text"}
	}
	if act.Coords == nil {
		return &Result{Success: false, Message: fmt.Sprintf("Type: element %q unresolved", act.Element)}
	}
	if err := h.controller.Tap(ctx, act.Coords.X, act.Coords.Y); err != nil {
		return &Result{Success: false, Message: fmt.Sprintf("tap before type: %v", err)}
	}
	if err := h.controller.SetIME(ctx); err != nil {
		return &Result{Success: false, Message: fmt.Sprintf("switch ime: %v", err)}
	}
	defer func() {
		if err := h.controller.RestoreIME(ctx); err != nil {
			log.Warnf("action: restore ime: %v", err)
		}
	}()
	if err := h.controller.ClearText(ctx); err != nil {
		return &Result{Success: false, Message: fmt.Sprintf("clear text: %v", err)}
	}
	if err := h.controller.TypeText(ctx, act.Text); err != nil {
		return &Result{Success: false, Message: fmt.Sprintf("type text: %v", err)}
	}
	return &Result{Success: true}
}

func (h *Handler) swipe(ctx context.Context, act *Action) *Result {
	if act.Coords == nil {
		return &Result{Success: false, Message: fmt.Sprintf("Swipe: element %q unresolved", act.Element)}
	}
	factor, ok := distanceFactor[act.Distance]
	if !ok {
		factor = distanceFactor["medium"]
	}
	width := act.elemWidth
	if width <= 0 {
		width = defaultSwipeWidth
	}
	span := width * factor
	x1, y1 := act.Coords.X, act.Coords.Y
	x2, y2 := x1, y1
	switch act.Direction {
	case "up":
		y2 = y1 - span
	case "down":
		y2 = y1 + span
	case "left":
		x2 = x1 - span
	case "right":
		x2 = x1 + span
	default:
		return &Result{Success: false, Message: fmt.Sprintf("invalid swipe direction %q", act.Direction)}
	}
	if err := h.controller.Swipe(ctx, x1, y1, x2, y2, 300*time.Millisecond); err != nil {
		return &Result{Success: false, Message: fmt.Sprintf("swipe: %v", err)}
	}
	return &Result{Success: true}
}

func (h *Handler) wait(ctx context.Context, act *Action) *Result {
	seconds, err := strconv.ParseFloat(act.Duration, 64)
	d := defaultWaitDuration
	if err == nil && seconds > 0 {
		d = time.Duration(seconds * float64(time.Second))
	}
	select {
	case <-time.After(d):
		return &Result{Success: true}
	case <-ctx.Done():
		return &Result{Success: false, ShouldFinish: true, Message: ctx.Err().Error()}
	}
}

func (h *Handler) simple(err error) *Result {
	if err != nil {
		return &Result{Success: false, Message: err.Error()}
	}
	return &Result{Success: true}
}
