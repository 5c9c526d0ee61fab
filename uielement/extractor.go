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
	"encoding/xml"
	"fmt"
	"math"
	"strings"
)

// DefaultDedupDistance is the pixel distance within which a focusable-only
// element is folded into a clickable one with the same semantics.
const DefaultDedupDistance = 30

// Extractor turns a screen XML dump into the ordered list of actionable
// elements. Extraction is a pure function: the same XML always yields the
// same ordered list.
type Extractor struct {
	dedupDistance int
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithDedupDistance overrides the clickable/focusable dedup distance in
// pixels.
func WithDedupDistance(px int) ExtractorOption {
	return func(e *Extractor) {
		e.dedupDistance = px
	}
}

// NewExtractor creates an Extractor with the given options.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{dedupDistance: DefaultDedupDistance}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// xmlNode mirrors one node of a uiautomator-style hierarchy dump.
type xmlNode struct {
	Class         string    `xml:"class,attr"`
	ResourceID    string    `xml:"resource-id,attr"`
	Text          string    `xml:"text,attr"`
	ContentDesc   string    `xml:"content-desc,attr"`
	Bounds        string    `xml:"bounds,attr"`
	Clickable     string    `xml:"clickable,attr"`
	LongClickable string    `xml:"long-clickable,attr"`
	Scrollable    string    `xml:"scrollable,attr"`
	Focusable     string    `xml:"focusable,attr"`
	Enabled       string    `xml:"enabled,attr"`
	Visible       string    `xml:"visible-to-user,attr"`
	Checked       string    `xml:"checked,attr"`
	Focused       string    `xml:"focused,attr"`
	Children      []xmlNode `xml:"node"`
}

type hierarchy struct {
	XMLName xml.Name  `xml:"hierarchy"`
	Nodes   []xmlNode `xml:"node"`
}

// Extract parses the screen XML and returns the ordered actionable elements.
func (e *Extractor) Extract(screenXML []byte) ([]Element, error) {
	var h hierarchy
	if err := xml.Unmarshal(screenXML, &h); err != nil {
		// Some transports dump a bare <node> root without the
		// <hierarchy> wrapper.
		var root xmlNode
		if err2 := xml.Unmarshal(screenXML, &root); err2 != nil {
			return nil, fmt.Errorf("failed to parse screen xml: %w", err)
		}
		h.Nodes = []xmlNode{root}
	}
	var out []Element
	for i := range h.Nodes {
		out = e.walk(&h.Nodes[i], "", "", out)
	}
	return e.dedup(out), nil
}

// walk traverses the tree in document order. parentID carries the semantic
// composite of the nearest ancestor chain; parentPath carries the class
// chain with per-step semantics from each node itself.
func (e *Extractor) walk(n *xmlNode, parentID, parentPath string, out []Element) []Element {
	step := n.Class
	if sem := nodeSemantic(n); sem != "" {
		step += "[" + sem + "]"
	}
	classPath := step
	if parentPath != "" {
		classPath = parentPath + "/" + step
	}

	if actionable(n) {
		if el, ok := e.emit(n, parentID, classPath); ok {
			out = append(out, el)
		}
	}

	// Path context composites use only the node's own semantics, never a
	// descendant's.
	childID := parentID
	if sem := nodeSemantic(n); sem != "" {
		if childID != "" {
			childID += "/" + sem
		} else {
			childID = sem
		}
	}
	for i := range n.Children {
		out = e.walk(&n.Children[i], childID, classPath, out)
	}
	return out
}

// emit builds the Element for an actionable node.
func (e *Extractor) emit(n *xmlNode, parentID, classPath string) (Element, bool) {
	b, ok := parseBounds(n.Bounds)
	if !ok {
		return Element{}, false
	}
	text, desc := n.Text, n.ContentDesc
	sem := nodeSemantic(n)
	if sem == "" {
		// The emitted target may inherit text/content-desc from a
		// descendant.
		if dt, dd, found := descendantSemantic(n); found {
			text, desc = dt, dd
			sem = joinSemantic(n.ResourceID, text, desc)
			classPath = classPath + "[" + sem + "]"
		}
	}
	base := sem
	if base == "" {
		base = fmt.Sprintf("%s %dx%d", n.Class, b.Width(), b.Height())
	}
	id := base
	if parentID != "" {
		id = parentID + "/" + base
	}
	return Element{
		ID:          id,
		Bounds:      b,
		Center:      b.Center(),
		ClassPath:   classPath,
		ClassName:   n.Class,
		Checked:     isTrue(n.Checked),
		Focused:     isTrue(n.Focused),
		ResourceID:  n.ResourceID,
		ContentDesc: desc,
		Text:        text,
		clickable:   isTrue(n.Clickable),
		focusable:   isTrue(n.Focusable),
	}, true
}

// dedup drops focusable-only elements that sit within dedupDistance pixels
// of a clickable element with identical semantics.
func (e *Extractor) dedup(elems []Element) []Element {
	out := make([]Element, 0, len(elems))
	for i := range elems {
		el := &elems[i]
		if el.focusable && !el.clickable && e.shadowedByClickable(el, elems) {
			continue
		}
		out = append(out, *el)
	}
	return out
}

func (e *Extractor) shadowedByClickable(el *Element, elems []Element) bool {
	for i := range elems {
		c := &elems[i]
		if !c.clickable || c == el {
			continue
		}
		if centerDistance(c.Center, el.Center) > float64(e.dedupDistance) {
			continue
		}
		if c.Semantic() == el.Semantic() {
			return true
		}
	}
	return false
}

func centerDistance(a, b Point) float64 {
	dx, dy := float64(a.X-b.X), float64(a.Y-b.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// actionable reports whether the node is enabled, visible and carries at
// least one interaction affordance.
func actionable(n *xmlNode) bool {
	if !isTrue(n.Enabled) {
		return false
	}
	if n.Visible != "" && !isTrue(n.Visible) {
		return false
	}
	return isTrue(n.Clickable) || isTrue(n.LongClickable) ||
		isTrue(n.Scrollable) || isTrue(n.Focusable)
}

func nodeSemantic(n *xmlNode) string {
	return joinSemantic(n.ResourceID, n.Text, n.ContentDesc)
}

// descendantSemantic returns the first descendant text/content-desc in
// document order.
func descendantSemantic(n *xmlNode) (text, desc string, found bool) {
	for i := range n.Children {
		c := &n.Children[i]
		if c.Text != "" || c.ContentDesc != "" {
			return c.Text, c.ContentDesc, true
		}
		if t, d, ok := descendantSemantic(c); ok {
			return t, d, true
		}
	}
	return "", "", false
}

// parseBounds parses the "[x1,y1][x2,y2]" bounds attribute.
func parseBounds(s string) (Bounds, bool) {
	var b Bounds
	n, err := fmt.Sscanf(s, "[%d,%d][%d,%d]", &b.X1, &b.Y1, &b.X2, &b.Y2)
	if err != nil || n != 4 {
		return Bounds{}, false
	}
	return b, true
}

func isTrue(s string) bool {
	return strings.EqualFold(s, "true")
}
