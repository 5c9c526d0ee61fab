//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

// Package uielement provides the normalized interactive UI element model and
// the screen-XML extractor that produces it.
package uielement

import (
	"fmt"
	"strings"
)

// Point is a pixel coordinate on the device screen.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Bounds is an inclusive pixel rectangle, (X1,Y1) top-left to (X2,Y2)
// bottom-right.
type Bounds struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Center returns the midpoint of the rectangle.
func (b Bounds) Center() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// Width returns the pixel width of the rectangle.
func (b Bounds) Width() int { return b.X2 - b.X1 }

// Height returns the pixel height of the rectangle.
func (b Bounds) Height() int { return b.Y2 - b.Y1 }

// Element is an interactive component extracted from a screen.
//
// ID is deterministic for identical XML subtrees. Bounds are in device
// pixels. Identity for graph keying is computed from ClassPath plus the
// semantic attributes only, never from bounds, so graphs stay reusable
// across resolutions.
type Element struct {
	// ID is the stable semantic + parent-context composite identifier.
	ID string `json:"id"`
	// Bounds is the inclusive pixel rectangle of the element.
	Bounds Bounds `json:"bounds"`
	// Center is the midpoint of Bounds.
	Center Point `json:"center"`
	// ClassPath is the ancestor class chain, root first.
	ClassPath string `json:"class_path"`
	// ClassName is the element's own class.
	ClassName string `json:"class_name"`
	// Checked reports the checked/selected state.
	Checked bool `json:"checked"`
	// Focused reports whether the element currently holds focus.
	Focused bool `json:"focused"`
	// ResourceID is the optional android resource id.
	ResourceID string `json:"resource_id,omitempty"`
	// ContentDesc is the optional accessibility description.
	ContentDesc string `json:"content_desc,omitempty"`
	// Text is the optional visible text.
	Text string `json:"text,omitempty"`

	clickable bool
	focusable bool
}

// Info is the identity projection of an element stored in memory nodes.
// It deliberately drops bounds so node equality survives resolution changes.
type Info struct {
	// Path is the stringified element identity (class path + semantics).
	Path string `json:"path"`
	// Content is the primary semantic content, empty for purely structural
	// elements.
	Content string `json:"content,omitempty"`
}

// Semantic returns the joined non-empty semantic attributes of the element.
func (e *Element) Semantic() string {
	return joinSemantic(e.ResourceID, e.Text, e.ContentDesc)
}

// Content returns the primary human-visible content of the element:
// text first, then content description, then the resource id.
func (e *Element) Content() string {
	if e.Text != "" {
		return e.Text
	}
	if e.ContentDesc != "" {
		return e.ContentDesc
	}
	return e.ResourceID
}

// Identity returns the stable identity used for graph keying.
func (e *Element) Identity() string {
	sem := e.Semantic()
	if sem == "" {
		return e.ClassPath
	}
	return e.ClassPath + "::" + sem
}

// Info returns the identity projection of the element.
func (e *Element) Info() Info {
	return Info{Path: e.Identity(), Content: e.Content()}
}

// Describe renders a short human-readable descriptor used in screen info
// blocks, e.g. `A3 Button "Save"`.
func (e *Element) Describe(label string) string {
	var b strings.Builder
	b.WriteString(label)
	b.WriteByte(' ')
	b.WriteString(shortClass(e.ClassName))
	if c := e.Content(); c != "" {
		fmt.Fprintf(&b, " %q", c)
	}
	return b.String()
}

func joinSemantic(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ";")
}

func shortClass(class string) string {
	if i := strings.LastIndexByte(class, '.'); i >= 0 {
		return class[i+1:]
	}
	return class
}
