//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

package uielement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<hierarchy rotation="0">
  <node class="android.widget.FrameLayout" bounds="[0,0][1080,1920]" enabled="true">
    <node class="android.widget.LinearLayout" resource-id="com.app:id/root" bounds="[0,0][1080,1920]" enabled="true">
      <node class="android.widget.Button" text="Save" bounds="[100,200][300,260]"
            clickable="true" enabled="true"/>
      <node class="android.widget.EditText" resource-id="com.app:id/name" bounds="[100,300][900,360]"
            focusable="true" focused="true" enabled="true"/>
      <node class="android.widget.CheckBox" content-desc="Vibrate" bounds="[100,400][160,460]"
            clickable="true" checked="true" enabled="true"/>
      <node class="android.widget.TextView" text="Disabled" bounds="[100,500][300,560]"
            clickable="true" enabled="false"/>
    </node>
  </node>
</hierarchy>`

func TestExtractActionable(t *testing.T) {
	ex := NewExtractor()
	elems, err := ex.Extract([]byte(sampleXML))
	require.NoError(t, err)
	require.Len(t, elems, 3)

	assert.Equal(t, "Save", elems[0].Text)
	assert.Equal(t, Point{X: 200, Y: 230}, elems[0].Center)
	assert.True(t, elems[1].Focused)
	assert.True(t, elems[2].Checked)
	assert.Equal(t, "Vibrate", elems[2].ContentDesc)
}

func TestExtractDeterministic(t *testing.T) {
	ex := NewExtractor()
	a, err := ex.Extract([]byte(sampleXML))
	require.NoError(t, err)
	b, err := ex.Extract([]byte(sampleXML))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestElemIDParentComposite(t *testing.T) {
	ex := NewExtractor()
	elems, err := ex.Extract([]byte(sampleXML))
	require.NoError(t, err)
	// The root LinearLayout carries a resource id, so children are
	// prefixed with it.
	assert.Equal(t, "com.app:id/root/Save", elems[0].ID)
	assert.Equal(t, "com.app:id/root/com.app:id/name", elems[1].ID)
}

func TestIdentityIgnoresBounds(t *testing.T) {
	xmlA := `<hierarchy><node class="android.widget.Button" text="OK" bounds="[0,0][100,50]" clickable="true" enabled="true"/></hierarchy>`
	xmlB := `<hierarchy><node class="android.widget.Button" text="OK" bounds="[500,500][900,700]" clickable="true" enabled="true"/></hierarchy>`
	ex := NewExtractor()
	a, err := ex.Extract([]byte(xmlA))
	require.NoError(t, err)
	b, err := ex.Extract([]byte(xmlB))
	require.NoError(t, err)
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].Identity(), b[0].Identity())
	assert.NotEqual(t, a[0].Center, b[0].Center)
}

func TestDedupFocusableNearClickable(t *testing.T) {
	dump := `<hierarchy>
  <node class="android.widget.FrameLayout" bounds="[0,0][1080,1920]" enabled="true">
    <node class="android.widget.Button" text="Go" bounds="[100,100][200,140]" clickable="true" enabled="true"/>
    <node class="android.widget.Button" text="Go" bounds="[105,105][205,145]" focusable="true" enabled="true"/>
    <node class="android.widget.Button" text="Stop" bounds="[110,110][210,150]" focusable="true" enabled="true"/>
  </node>
</hierarchy>`
	ex := NewExtractor()
	elems, err := ex.Extract([]byte(dump))
	require.NoError(t, err)
	// The focusable twin of "Go" is folded away; "Stop" differs
	// semantically and survives.
	require.Len(t, elems, 2)
	assert.Equal(t, "Go", elems[0].Text)
	assert.Equal(t, "Stop", elems[1].Text)
}

func TestDescendantFallbackOnlyForTarget(t *testing.T) {
	dump := `<hierarchy>
  <node class="android.widget.FrameLayout" bounds="[0,0][400,400]" clickable="true" enabled="true">
    <node class="android.widget.TextView" text="Open settings" bounds="[10,10][390,60]" enabled="true"/>
  </node>
</hierarchy>`
	ex := NewExtractor()
	elems, err := ex.Extract([]byte(dump))
	require.NoError(t, err)
	require.Len(t, elems, 1)
	// Target with no semantics of its own inherits the descendant text.
	assert.Equal(t, "Open settings", elems[0].Text)
	assert.Equal(t, "Open settings", elems[0].ID)
}

func TestFallbackClassAndSize(t *testing.T) {
	dump := `<hierarchy>
  <node class="android.view.View" bounds="[0,0][100,50]" clickable="true" enabled="true"/>
</hierarchy>`
	ex := NewExtractor()
	elems, err := ex.Extract([]byte(dump))
	require.NoError(t, err)
	require.Len(t, elems, 1)
	assert.Equal(t, "android.view.View 100x50", elems[0].ID)
}

func TestParseBounds(t *testing.T) {
	b, ok := parseBounds("[1,2][30,40]")
	require.True(t, ok)
	assert.Equal(t, Bounds{X1: 1, Y1: 2, X2: 30, Y2: 40}, b)
	_, ok = parseBounds("garbage")
	assert.False(t, ok)
}

func TestInvalidXML(t *testing.T) {
	ex := NewExtractor()
	_, err := ex.Extract([]byte("not xml at all <"))
	assert.Error(t, err)
}
