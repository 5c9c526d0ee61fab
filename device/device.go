//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

// Package device defines the controller capability the agent drives.
//
// Transport drivers (Android-USB, Harmony, iOS-WDA) live outside this
// module; the agent core only consumes the Controller interface. All
// operations take a context and must be interruptible: every one of them is
// a suspension point of the agent loop.
package device

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"time"

	"trpc.group/trpc-go/trpc-phone-agent/uielement"
)

// Screenshot is one observed screen state.
type Screenshot struct {
	// PNG holds the encoded screen pixels.
	PNG []byte
	// Width and Height are the device pixel dimensions.
	Width  int
	Height int
	// Elements are the actionable elements extracted from the screen,
	// in document order.
	Elements []uielement.Element
	// Focused points at the element holding input focus, if any.
	Focused *uielement.Element
	// IsSensitive marks screens whose pixels could not be captured
	// (secure surfaces, capture failure fallback).
	IsSensitive bool
}

// Controller is the single device capability consumed by the agent core.
type Controller interface {
	// Screenshot captures the current screen state.
	Screenshot(ctx context.Context) (*Screenshot, error)
	// Tap taps the given pixel coordinate.
	Tap(ctx context.Context, x, y int) error
	// DoubleTap issues two taps with a fixed inter-delay.
	DoubleTap(ctx context.Context, x, y int) error
	// LongPress long-presses the given coordinate.
	LongPress(ctx context.Context, x, y int) error
	// Swipe drags from (x1,y1) to (x2,y2) over the given duration.
	Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error
	// Back presses the system back affordance.
	Back(ctx context.Context) error
	// Home navigates to the home screen.
	Home(ctx context.Context) error
	// LaunchApp starts an app by logical name. It reports false when the
	// name is unknown to the transport.
	LaunchApp(ctx context.Context, name string) (bool, error)
	// ClearText clears the focused input field.
	ClearText(ctx context.Context) error
	// TypeText types the literal string into the focused field.
	TypeText(ctx context.Context, text string) error
	// SetIME switches to the controlled input method.
	SetIME(ctx context.Context) error
	// RestoreIME restores the input method active before SetIME.
	RestoreIME(ctx context.Context) error
	// CurrentApp returns the package/bundle of the foreground app.
	CurrentApp(ctx context.Context) (string, error)
}

// FallbackScreenshot builds the all-black sensitive screenshot returned when
// capture fails. The loop keeps running on it; the model typically decides
// to back off.
func FallbackScreenshot(width, height int) *Screenshot {
	if width <= 0 || height <= 0 {
		width, height = 1080, 1920
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	black := color.RGBA{A: 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, black)
		}
	}
	var buf bytes.Buffer
	// Encoding a uniform image cannot fail; ignore the error.
	_ = png.Encode(&buf, img)
	return &Screenshot{
		PNG:         buf.Bytes(),
		Width:       width,
		Height:      height,
		IsSensitive: true,
	}
}
