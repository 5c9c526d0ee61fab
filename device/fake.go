//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

package device

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Fake is a scripted in-memory Controller used in tests and dry runs.
// Screens are served from a queue; every gesture is recorded as a Call.
type Fake struct {
	mu sync.Mutex

	// Screens are served in order; the last one repeats once the queue
	// drains.
	Screens []*Screenshot
	// App is the value returned by CurrentApp.
	App string
	// KnownApps is consulted by LaunchApp; empty means every app is known.
	KnownApps map[string]bool
	// ScreenshotErr, when set, makes Screenshot fail.
	ScreenshotErr error
	// GestureErr, when set, makes every gesture fail.
	GestureErr error

	// Calls records each operation as "op(args)".
	Calls []string

	cursor int
}

var _ Controller = (*Fake)(nil)

// NewFake creates a Fake serving the given screens.
func NewFake(screens ...*Screenshot) *Fake {
	return &Fake{Screens: screens, App: "com.example.app"}
}

func (f *Fake) record(format string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, fmt.Sprintf(format, args...))
	return f.GestureErr
}

// Screenshot serves the next scripted screen.
func (f *Fake) Screenshot(ctx context.Context) (*Screenshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ScreenshotErr != nil {
		return nil, f.ScreenshotErr
	}
	if len(f.Screens) == 0 {
		return &Screenshot{Width: 1080, Height: 1920}, nil
	}
	s := f.Screens[f.cursor]
	if f.cursor < len(f.Screens)-1 {
		f.cursor++
	}
	return s, nil
}

// Tap records a tap.
func (f *Fake) Tap(ctx context.Context, x, y int) error {
	return f.record("tap(%d,%d)", x, y)
}

// DoubleTap records a double tap.
func (f *Fake) DoubleTap(ctx context.Context, x, y int) error {
	return f.record("double_tap(%d,%d)", x, y)
}

// LongPress records a long press.
func (f *Fake) LongPress(ctx context.Context, x, y int) error {
	return f.record("long_press(%d,%d)", x, y)
}

// Swipe records a swipe.
func (f *Fake) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	return f.record("swipe(%d,%d,%d,%d)", x1, y1, x2, y2)
}

// Back records a back press.
func (f *Fake) Back(ctx context.Context) error { return f.record("back()") }

// Home records a home press.
func (f *Fake) Home(ctx context.Context) error { return f.record("home()") }

// LaunchApp records an app launch.
func (f *Fake) LaunchApp(ctx context.Context, name string) (bool, error) {
	err := f.record("launch(%s)", name)
	if err != nil {
		return false, err
	}
	if f.KnownApps != nil && !f.KnownApps[name] {
		return false, nil
	}
	return true, nil
}

// ClearText records a clear.
func (f *Fake) ClearText(ctx context.Context) error { return f.record("clear()") }

// TypeText records typed text.
func (f *Fake) TypeText(ctx context.Context, text string) error {
	return f.record("type(%s)", text)
}

// SetIME records the IME switch.
func (f *Fake) SetIME(ctx context.Context) error { return f.record("set_ime()") }

// RestoreIME records the IME restore.
func (f *Fake) RestoreIME(ctx context.Context) error { return f.record("restore_ime()") }

// CurrentApp returns the configured foreground app.
func (f *Fake) CurrentApp(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.App, nil
}

// CallLog returns a copy of the recorded calls.
func (f *Fake) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Calls))
	copy(out, f.Calls)
	return out
}
