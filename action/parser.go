//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

// Package action parses model-emitted action expressions and dispatches
// them onto a device controller.
//
// The expression grammar is deliberately tiny: a single do(...) or
// finish(...) call with keyword arguments. Parsing never evaluates
// anything; unknown shapes fail loudly so the loop can finish gracefully.
package action

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"trpc.group/trpc-go/trpc-phone-agent/memory"
	"trpc.group/trpc-go/trpc-phone-agent/uielement"
)

// Action is one parsed, dispatchable action.
type Action struct {
	Kind memory.ActionKind
	// Element is the symbolic reference as emitted by the model ("A7")
	// or an element identity path when produced by a skill.
	Element string
	// Coords is the resolved center pixel coordinate for element-bearing
	// kinds. Nil until resolution.
	Coords *uielement.Point
	// elemWidth backs the swipe distance computation after resolution.
	elemWidth int

	App       string
	Text      string
	Direction string
	Distance  string
	Duration  string
	Message   string
	SkillName string
}

// knownKinds maps the wire action names onto kinds.
var knownKinds = map[string]memory.ActionKind{
	string(memory.KindTap):       memory.KindTap,
	string(memory.KindLongPress): memory.KindLongPress,
	string(memory.KindDoubleTap): memory.KindDoubleTap,
	string(memory.KindSwipe):     memory.KindSwipe,
	string(memory.KindType):      memory.KindType,
	string(memory.KindLaunch):    memory.KindLaunch,
	string(memory.KindBack):      memory.KindBack,
	string(memory.KindHome):      memory.KindHome,
	string(memory.KindWait):      memory.KindWait,
	string(memory.KindTakeOver):  memory.KindTakeOver,
	string(memory.KindInteract):  memory.KindInteract,
	string(memory.KindNote):      memory.KindNote,
	string(memory.KindCallAPI):   memory.KindCallAPI,
	string(memory.KindFinish):    memory.KindFinish,
}

// Parse reads a do(action=..., ...) or finish(message=...) expression.
func Parse(expr string) (*Action, error) {
	expr = strings.TrimSpace(expr)
	var body string
	var finish bool
	switch {
	case strings.HasPrefix(expr, "do(") && strings.HasSuffix(expr, ")"):
		body = expr[len("do(") : len(expr)-1]
	case strings.HasPrefix(expr, "finish(") && strings.HasSuffix(expr, ")"):
		body = expr[len("finish(") : len(expr)-1]
		finish = true
	default:
		return nil, fmt.Errorf("unrecognized action expression: %q", expr)
	}

	args, err := parseKeywordArgs(body)
	if err != nil {
		return nil, err
	}
	act := &Action{}
	if finish {
		act.Kind = memory.KindFinish
		act.Message = args.str("message")
		return act, nil
	}

	name := args.str("action")
	kind, ok := knownKinds[name]
	if !ok {
		return nil, fmt.Errorf("unknown action %q", name)
	}
	act.Kind = kind
	act.App = args.str("app")
	act.Text = args.str("text")
	act.Direction = args.str("direction")
	act.Distance = args.str("dist")
	if act.Distance == "" {
		act.Distance = args.str("distance")
	}
	act.Duration = args.str("duration")
	act.Message = args.str("message")

	switch v := args["element"].(type) {
	case string:
		act.Element = v
	case []any:
		// Literal [x,y] coordinates.
		if len(v) != 2 {
			return nil, fmt.Errorf("element coordinate list needs two values, got %d", len(v))
		}
		x, xok := asInt(v[0])
		y, yok := asInt(v[1])
		if !xok || !yok {
			return nil, fmt.Errorf("non-numeric element coordinates %v", v)
		}
		act.Coords = &uielement.Point{X: x, Y: y}
	case nil:
	default:
		return nil, fmt.Errorf("unsupported element value %v", v)
	}
	return act, nil
}

// ParseCall reads a name(k=v, ...) invocation, the shape the router emits
// for skill executions. Values use the same conservative literal reader as
// action expressions: bool, none, numbers, quoted strings, JSON lists and
// maps.
func ParseCall(expr string) (string, map[string]any, error) {
	expr = strings.TrimSpace(expr)
	open := strings.IndexByte(expr, '(')
	if open <= 0 || !strings.HasSuffix(expr, ")") {
		return "", nil, fmt.Errorf("malformed call expression %q", expr)
	}
	name := strings.TrimSpace(expr[:open])
	args, err := parseKeywordArgs(expr[open+1 : len(expr)-1])
	if err != nil {
		return "", nil, err
	}
	return name, args, nil
}

// FromDict builds an Action from a decoded action dict, the shape skills
// produce: {action, element?, text?, direction?, dist?, app?, ...}.
func FromDict(d map[string]any) (*Action, error) {
	name, _ := d["action"].(string)
	kind, ok := knownKinds[name]
	if !ok {
		return nil, fmt.Errorf("unknown action %q in action dict", name)
	}
	act := &Action{Kind: kind}
	str := func(key string) string {
		v, _ := d[key].(string)
		return v
	}
	act.App = str("app")
	act.Text = str("text")
	act.Direction = str("direction")
	act.Distance = str("dist")
	act.Duration = str("duration")
	act.Message = str("message")
	switch v := d["element"].(type) {
	case string:
		act.Element = v
	case []any:
		if len(v) != 2 {
			return nil, fmt.Errorf("element coordinate list needs two values, got %d", len(v))
		}
		x, xok := asInt(v[0])
		y, yok := asInt(v[1])
		if !xok || !yok {
			return nil, fmt.Errorf("non-numeric element coordinates %v", v)
		}
		act.Coords = &uielement.Point{X: x, Y: y}
	case nil:
	default:
		return nil, fmt.Errorf("unsupported element value %v", v)
	}
	return act, nil
}

type kwargs map[string]any

func (a kwargs) str(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

// parseKeywordArgs splits "k=v, k2=v2" at top level, honoring quotes and
// brackets inside values.
func parseKeywordArgs(body string) (kwargs, error) {
	out := kwargs{}
	for _, part := range splitTopLevel(body, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := indexTopLevel(part, '=')
		if eq < 0 {
			return nil, fmt.Errorf("argument %q is not key=value", part)
		}
		key := strings.TrimSpace(part[:eq])
		if key == "" {
			return nil, fmt.Errorf("empty argument name in %q", part)
		}
		val, err := parseValue(strings.TrimSpace(part[eq+1:]))
		if err != nil {
			return nil, err
		}
		out[key] = val
	}
	return out, nil
}

// parseValue reads one conservative literal: quoted string, JSON
// list/map, bool, none, int or float.
func parseValue(raw string) (any, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty argument value")
	}
	if raw[0] == '"' || raw[0] == '\'' {
		return unquote(raw)
	}
	if raw[0] == '[' || raw[0] == '{' {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("malformed list/map value %q: %w", raw, err)
		}
		return v, nil
	}
	switch strings.ToLower(raw) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "none", "null":
		return nil, nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f, nil
	}
	// Bare words come back as strings; models drop quotes now and then.
	return raw, nil
}

// unquote strips matching quotes and decodes the explicit escapes the
// models are told to use.
func unquote(raw string) (string, error) {
	quote := raw[0]
	if len(raw) < 2 || raw[len(raw)-1] != quote {
		return "", fmt.Errorf("unterminated string %q", raw)
	}
	body := raw[1 : len(raw)-1]
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(body) {
			return "", fmt.Errorf("dangling escape in %q", raw)
		}
		switch body[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '\\', '"', '\'':
			b.WriteByte(body[i])
		default:
			// Unknown escapes pass through literally.
			b.WriteByte('\\')
			b.WriteByte(body[i])
		}
	}
	return b.String(), nil
}

// splitTopLevel splits on sep outside quotes and brackets.
func splitTopLevel(s string, sep byte) []string {
	var out []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '[', '{', '(':
			depth++
		case ']', '}', ')':
			depth--
		case sep:
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}

// indexTopLevel finds the first sep outside quotes and brackets.
func indexTopLevel(s string, sep byte) int {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '[', '{', '(':
			depth++
		case ']', '}', ')':
			depth--
		case sep:
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// Resolve replaces a symbolic element reference like "A7" with the center
// coordinate of the indexed element. Already-resolved actions pass through.
func Resolve(act *Action, elements []uielement.Element) error {
	if act.Coords != nil || act.Element == "" {
		return nil
	}
	idx, err := symbolIndex(act.Element)
	if err != nil {
		return err
	}
	if idx < 0 || idx >= len(elements) {
		return fmt.Errorf("element %s out of range (%d elements on screen)", act.Element, len(elements))
	}
	e := elements[idx]
	c := e.Center
	act.Coords = &c
	act.elemWidth = e.Bounds.Width()
	return nil
}

// ResolveByPath locates an element by exact identity path and resolves the
// action onto its center. Skills reference elements this way.
func ResolveByPath(act *Action, elements []uielement.Element) error {
	if act.Coords != nil || act.Element == "" {
		return nil
	}
	for _, e := range elements {
		if e.Info().Path == act.Element {
			c := e.Center
			act.Coords = &c
			act.elemWidth = e.Bounds.Width()
			return nil
		}
	}
	return fmt.Errorf("no element with path %q on screen", act.Element)
}

// symbolIndex decodes "A7" style references.
func symbolIndex(sym string) (int, error) {
	if len(sym) < 2 || (sym[0] != 'A' && sym[0] != 'a') {
		return 0, fmt.Errorf("malformed element reference %q", sym)
	}
	idx, err := strconv.Atoi(sym[1:])
	if err != nil {
		return 0, fmt.Errorf("malformed element reference %q", sym)
	}
	return idx, nil
}

// Describe renders a short human-readable summary for logs and history.
func (a *Action) Describe() string {
	var b strings.Builder
	b.WriteString(string(a.Kind))
	if a.Element != "" {
		fmt.Fprintf(&b, " %s", a.Element)
	} else if a.Coords != nil {
		fmt.Fprintf(&b, " (%d,%d)", a.Coords.X, a.Coords.Y)
	}
	if a.App != "" {
		fmt.Fprintf(&b, " app=%s", a.App)
	}
	if a.Direction != "" {
		fmt.Fprintf(&b, " %s/%s", a.Direction, a.Distance)
	}
	if a.Text != "" {
		fmt.Fprintf(&b, " text=%q", a.Text)
	}
	if a.Message != "" {
		fmt.Fprintf(&b, " message=%q", a.Message)
	}
	return b.String()
}

// ToWorkAction projects the action into its recorded form.
func (a *Action) ToWorkAction() memory.WorkAction {
	wa := memory.WorkAction{
		Kind:        a.Kind,
		Description: a.Describe(),
		Direction:   a.Direction,
		Distance:    a.Distance,
		Text:        a.Text,
		SkillName:   a.SkillName,
	}
	if a.Element != "" {
		wa.ZonePath = a.Element
	}
	return wa
}
