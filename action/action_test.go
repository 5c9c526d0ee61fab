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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-phone-agent/device"
	"trpc.group/trpc-go/trpc-phone-agent/memory"
	"trpc.group/trpc-go/trpc-phone-agent/uielement"
)

func testElements() []uielement.Element {
	mk := func(id string, x1, y1, x2, y2 int) uielement.Element {
		b := uielement.Bounds{X1: x1, Y1: y1, X2: x2, Y2: y2}
		return uielement.Element{ID: id, Bounds: b, Center: b.Center(),
			ClassPath: "android.widget.Button[" + id + "]", Text: id}
	}
	return []uielement.Element{
		mk("Alarm", 0, 0, 100, 50),
		mk("Timer", 0, 60, 100, 110),
		mk("Save", 0, 120, 100, 170),
	}
}

func TestParseTap(t *testing.T) {
	act, err := Parse(`do(action="Tap", element="A1")`)
	require.NoError(t, err)
	assert.Equal(t, memory.KindTap, act.Kind)
	assert.Equal(t, "A1", act.Element)
}

func TestParseTypeWithEscapes(t *testing.T) {
	act, err := Parse(`do(action="Type", element="A3", text="hello\nworld\t!")`)
	require.NoError(t, err)
	assert.Equal(t, memory.KindType, act.Kind)
	assert.Equal(t, "hello\nworld\t!", act.Text)
}

func TestParseFinish(t *testing.T) {
	act, err := Parse(`finish(message="alarm created")`)
	require.NoError(t, err)
	assert.Equal(t, memory.KindFinish, act.Kind)
	assert.Equal(t, "alarm created", act.Message)
}

func TestParseCoordinateElement(t *testing.T) {
	act, err := Parse(`do(action="Tap", element=[320, 480])`)
	require.NoError(t, err)
	require.NotNil(t, act.Coords)
	assert.Equal(t, 320, act.Coords.X)
	assert.Equal(t, 480, act.Coords.Y)
}

func TestParseSwipeArgs(t *testing.T) {
	act, err := Parse(`do(action="Swipe", element="A0", direction="up", dist="long")`)
	require.NoError(t, err)
	assert.Equal(t, "up", act.Direction)
	assert.Equal(t, "long", act.Distance)
}

func TestParseCommaInsideString(t *testing.T) {
	act, err := Parse(`do(action="Type", element="A0", text="a, b = c")`)
	require.NoError(t, err)
	assert.Equal(t, "a, b = c", act.Text)
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, expr := range []string{
		"tap the button",
		`do(action="Explode")`,
		`do(action="Tap", element=)`,
		`exec("rm -rf /")`,
	} {
		_, err := Parse(expr)
		assert.Error(t, err, expr)
	}
}

func TestParseRoundTrip(t *testing.T) {
	act, err := Parse(`do(action="Swipe", element="A1", direction="left", dist="short")`)
	require.NoError(t, err)
	wa := act.ToWorkAction()
	assert.Equal(t, memory.KindSwipe, wa.Kind)
	assert.Equal(t, "A1", wa.ZonePath)
	assert.Equal(t, "left", wa.Direction)
	assert.Equal(t, "short", wa.Distance)
}

func TestResolveSymbol(t *testing.T) {
	elems := testElements()
	act := &Action{Kind: memory.KindTap, Element: "A1"}
	require.NoError(t, Resolve(act, elems))
	assert.Equal(t, elems[1].Center, *act.Coords)

	bad := &Action{Kind: memory.KindTap, Element: "A9"}
	assert.Error(t, Resolve(bad, elems))
	assert.Error(t, Resolve(&Action{Kind: memory.KindTap, Element: "X1"}, elems))
}

func TestResolveByPath(t *testing.T) {
	elems := testElements()
	path := elems[2].Info().Path
	act := &Action{Kind: memory.KindTap, Element: path}
	require.NoError(t, ResolveByPath(act, elems))
	assert.Equal(t, elems[2].Center, *act.Coords)

	assert.Error(t, ResolveByPath(&Action{Kind: memory.KindTap, Element: "nope"}, elems))
}

func TestExecuteTap(t *testing.T) {
	fake := device.NewFake()
	h := NewHandler(fake)
	act := &Action{Kind: memory.KindTap, Coords: &uielement.Point{X: 50, Y: 25}}
	res := h.Execute(context.Background(), act, false)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"tap(50,25)"}, fake.CallLog())
}

func TestExecuteTypeRestoresIME(t *testing.T) {
	fake := device.NewFake()
	h := NewHandler(fake)
	act := &Action{Kind: memory.KindType, Coords: &uielement.Point{X: 1, Y: 2}, Text: "hello\nworld"}
	res := h.Execute(context.Background(), act, false)
	require.True(t, res.Success)
	assert.Equal(t, []string{
		"tap(1,2)", "set_ime()", "clear()", "type(hello\nworld)", "restore_ime()",
	}, fake.CallLog())
}

func TestExecuteSwipeEndpoint(t *testing.T) {
	fake := device.NewFake()
	h := NewHandler(fake)
	act := &Action{
		Kind:      memory.KindSwipe,
		Coords:    &uielement.Point{X: 100, Y: 200},
		Direction: "up",
		Distance:  "short",
		elemWidth: 50,
	}
	res := h.Execute(context.Background(), act, false)
	require.True(t, res.Success)
	// short = width x 2 upward.
	assert.Equal(t, []string{"swipe(100,200,100,100)"}, fake.CallLog())
}

func TestExecuteSwipeInvalidDirection(t *testing.T) {
	h := NewHandler(device.NewFake())
	act := &Action{Kind: memory.KindSwipe, Coords: &uielement.Point{}, Direction: "diagonal"}
	res := h.Execute(context.Background(), act, false)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "invalid swipe direction")
}

func TestExecuteLaunchUnknownApp(t *testing.T) {
	fake := device.NewFake()
	fake.KnownApps = map[string]bool{"clock": true}
	h := NewHandler(fake)

	res := h.Execute(context.Background(), &Action{Kind: memory.KindLaunch, App: "clock"}, false)
	assert.True(t, res.Success)
	res = h.Execute(context.Background(), &Action{Kind: memory.KindLaunch, App: "mystery"}, false)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "unknown app")
}

func TestExecuteUnresolvedElementFails(t *testing.T) {
	h := NewHandler(device.NewFake())
	res := h.Execute(context.Background(), &Action{Kind: memory.KindTap, Element: "A7"}, false)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "unresolved")
}

func TestExecuteConfirmationDenied(t *testing.T) {
	fake := device.NewFake()
	h := NewHandler(fake, WithConfirm(func(string) bool { return false }))
	act := &Action{Kind: memory.KindType, Coords: &uielement.Point{}, Text: "secret"}
	res := h.Execute(context.Background(), act, true)
	assert.False(t, res.Success)
	assert.True(t, res.ShouldFinish)
	assert.True(t, res.RequiresConfirmation)
	assert.Empty(t, fake.CallLog())
}

func TestExecuteConfirmationGranted(t *testing.T) {
	fake := device.NewFake()
	h := NewHandler(fake, WithConfirm(func(string) bool { return true }))
	res := h.Execute(context.Background(), &Action{Kind: memory.KindBack}, true)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"back()"}, fake.CallLog())
}

func TestExecuteTakeover(t *testing.T) {
	var got string
	h := NewHandler(device.NewFake(), WithTakeover(func(msg string) { got = msg }))
	res := h.Execute(context.Background(), &Action{Kind: memory.KindTakeOver, Message: "solve the captcha"}, false)
	assert.True(t, res.Success)
	assert.True(t, res.RequiresConfirmation)
	assert.Equal(t, "solve the captcha", got)
}

func TestExecuteWaitDefaultsOnParseError(t *testing.T) {
	h := NewHandler(device.NewFake())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Cancelled context short-circuits the sleep either way.
	res := h.Execute(ctx, &Action{Kind: memory.KindWait, Duration: "not-a-number"}, false)
	assert.False(t, res.Success)
	assert.True(t, res.ShouldFinish)
}

func TestExecuteFinish(t *testing.T) {
	h := NewHandler(device.NewFake())
	res := h.Execute(context.Background(), &Action{Kind: memory.KindFinish, Message: "done"}, false)
	assert.True(t, res.Success)
	assert.True(t, res.ShouldFinish)
	assert.Equal(t, "done", res.Message)
}
