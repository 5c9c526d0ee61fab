//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

// Package adb implements the device controller over the adb binary for
// Android targets. One Controller wraps one serial; all interaction goes
// through `adb -s <serial> shell ...`.
package adb

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"trpc.group/trpc-go/trpc-phone-agent/device"
	"trpc.group/trpc-go/trpc-phone-agent/log"
	"trpc.group/trpc-go/trpc-phone-agent/uielement"
)

const (
	defaultBinary     = "adb"
	defaultIME        = "com.android.adbkeyboard/.AdbIME"
	dumpPath          = "/sdcard/phoneagent_window_dump.xml"
	doubleTapInterval = 100 * time.Millisecond
	longPressDuration = 800 * time.Millisecond
)

// focusedAppRe pulls the package name out of `dumpsys window` output.
var focusedAppRe = regexp.MustCompile(`mCurrentFocus=Window\{\S+ \S+ ([^/\s]+)`)

// runFunc executes one adb invocation and returns its stdout. Tests
// inject a fake.
type runFunc func(ctx context.Context, args ...string) ([]byte, error)

// Controller drives one Android device through adb.
type Controller struct {
	serial    string
	ime       string
	extractor *uielement.Extractor
	apps      map[string]string
	run       runFunc

	previousIME string
}

var _ device.Controller = (*Controller)(nil)

// Option configures a Controller.
type Option func(*Controller)

// WithIME overrides the input-method component used by SetIME.
func WithIME(component string) Option {
	return func(c *Controller) { c.ime = component }
}

// WithAppAliases maps logical app names to launchable package names.
func WithAppAliases(apps map[string]string) Option {
	return func(c *Controller) { c.apps = apps }
}

// WithExtractor overrides the element extractor.
func WithExtractor(e *uielement.Extractor) Option {
	return func(c *Controller) { c.extractor = e }
}

func withRunner(run runFunc) Option {
	return func(c *Controller) { c.run = run }
}

// New creates a controller for the device with the given serial. An empty
// serial targets the only connected device.
func New(serial string, opts ...Option) *Controller {
	c := &Controller{
		serial:    serial,
		ime:       defaultIME,
		extractor: uielement.NewExtractor(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.run == nil {
		c.run = c.execAdb
	}
	return c
}

func (c *Controller) execAdb(ctx context.Context, args ...string) ([]byte, error) {
	full := args
	if c.serial != "" {
		full = append([]string{"-s", c.serial}, args...)
	}
	out, err := exec.CommandContext(ctx, defaultBinary, full...).Output()
	if err != nil {
		return nil, fmt.Errorf("adb %s: %w", strings.Join(args, " "), err)
	}
	return out, nil
}

func (c *Controller) shell(ctx context.Context, args ...string) ([]byte, error) {
	return c.run(ctx, append([]string{"shell"}, args...)...)
}

// Screenshot captures pixels and the element hierarchy in one observation.
// A pixel capture failure on a secure surface degrades to the sensitive
// fallback; a hierarchy failure is an error.
func (c *Controller) Screenshot(ctx context.Context) (*device.Screenshot, error) {
	xmlDump, err := c.dumpHierarchy(ctx)
	if err != nil {
		return nil, err
	}
	elems, err := c.extractor.Extract(xmlDump)
	if err != nil {
		return nil, fmt.Errorf("extract elements: %w", err)
	}

	png, err := c.run(ctx, "exec-out", "screencap", "-p")
	if err != nil || len(png) == 0 {
		log.Warnf("adb: screencap failed, serving sensitive fallback: %v", err)
		s := device.FallbackScreenshot(0, 0)
		s.Elements = elems
		s.Focused = focusedElement(elems)
		return s, nil
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(png))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return &device.Screenshot{
		PNG:      png,
		Width:    cfg.Width,
		Height:   cfg.Height,
		Elements: elems,
		Focused:  focusedElement(elems),
	}, nil
}

func (c *Controller) dumpHierarchy(ctx context.Context) ([]byte, error) {
	if _, err := c.shell(ctx, "uiautomator", "dump", dumpPath); err != nil {
		return nil, fmt.Errorf("dump hierarchy: %w", err)
	}
	out, err := c.shell(ctx, "cat", dumpPath)
	if err != nil {
		return nil, fmt.Errorf("read hierarchy dump: %w", err)
	}
	return out, nil
}

func focusedElement(elems []uielement.Element) *uielement.Element {
	for i := range elems {
		if elems[i].Focused {
			return &elems[i]
		}
	}
	return nil
}

// Tap taps the given pixel coordinate.
func (c *Controller) Tap(ctx context.Context, x, y int) error {
	_, err := c.shell(ctx, "input", "tap", itoa(x), itoa(y))
	return err
}

// DoubleTap issues two taps with a fixed inter-delay.
func (c *Controller) DoubleTap(ctx context.Context, x, y int) error {
	if err := c.Tap(ctx, x, y); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(doubleTapInterval):
	}
	return c.Tap(ctx, x, y)
}

// LongPress holds the coordinate via a zero-distance swipe.
func (c *Controller) LongPress(ctx context.Context, x, y int) error {
	ms := itoa(int(longPressDuration.Milliseconds()))
	_, err := c.shell(ctx, "input", "swipe", itoa(x), itoa(y), itoa(x), itoa(y), ms)
	return err
}

// Swipe drags between the two coordinates over the given duration.
func (c *Controller) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	if duration <= 0 {
		duration = 300 * time.Millisecond
	}
	_, err := c.shell(ctx, "input", "swipe",
		itoa(x1), itoa(y1), itoa(x2), itoa(y2), itoa(int(duration.Milliseconds())))
	return err
}

// Back presses the system back key.
func (c *Controller) Back(ctx context.Context) error {
	_, err := c.shell(ctx, "input", "keyevent", "KEYCODE_BACK")
	return err
}

// Home presses the home key.
func (c *Controller) Home(ctx context.Context) error {
	_, err := c.shell(ctx, "input", "keyevent", "KEYCODE_HOME")
	return err
}

// LaunchApp starts an app by logical name, resolved through the alias
// table. Unknown names report false without touching the device.
func (c *Controller) LaunchApp(ctx context.Context, name string) (bool, error) {
	pkg, ok := c.apps[strings.ToLower(name)]
	if !ok {
		return false, nil
	}
	_, err := c.shell(ctx, "monkey", "-p", pkg, "-c", "android.intent.category.LAUNCHER", "1")
	if err != nil {
		return false, err
	}
	return true, nil
}

// ClearText selects the field content and deletes it.
func (c *Controller) ClearText(ctx context.Context) error {
	if _, err := c.shell(ctx, "input", "keyevent", "--longpress", "KEYCODE_MOVE_END"); err != nil {
		return err
	}
	// ADBKeyBoard clear broadcast; harmless when another IME is active.
	_, err := c.shell(ctx, "am", "broadcast", "-a", "ADB_CLEAR_TEXT")
	return err
}

// TypeText types the literal string through the ADB keyboard broadcast,
// which handles unicode that `input text` cannot.
func (c *Controller) TypeText(ctx context.Context, text string) error {
	_, err := c.shell(ctx, "am", "broadcast", "-a", "ADB_INPUT_TEXT", "--es", "msg", text)
	return err
}

// SetIME remembers the current input method and switches to the
// controlled one.
func (c *Controller) SetIME(ctx context.Context) error {
	out, err := c.shell(ctx, "settings", "get", "secure", "default_input_method")
	if err == nil {
		c.previousIME = strings.TrimSpace(string(out))
	}
	if _, err := c.shell(ctx, "ime", "enable", c.ime); err != nil {
		return err
	}
	_, err = c.shell(ctx, "ime", "set", c.ime)
	return err
}

// RestoreIME restores the input method active before SetIME.
func (c *Controller) RestoreIME(ctx context.Context) error {
	if c.previousIME == "" || c.previousIME == "null" {
		_, err := c.shell(ctx, "ime", "reset")
		return err
	}
	_, err := c.shell(ctx, "ime", "set", c.previousIME)
	return err
}

// CurrentApp returns the package of the window holding focus.
func (c *Controller) CurrentApp(ctx context.Context) (string, error) {
	out, err := c.shell(ctx, "dumpsys", "window", "windows")
	if err != nil {
		return "", err
	}
	m := focusedAppRe.FindSubmatch(out)
	if m == nil {
		return "", fmt.Errorf("no focused window in dumpsys output")
	}
	return string(m[1]), nil
}

func itoa(n int) string { return strconv.Itoa(n) }
