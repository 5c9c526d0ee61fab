//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient streams a scripted chunk sequence.
type fakeClient struct {
	chunks []Chunk
	err    error
}

func (f *fakeClient) Stream(ctx context.Context, req *Request) (<-chan Chunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan Chunk, len(f.chunks))
	for _, c := range f.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func textChunks(parts ...string) []Chunk {
	out := make([]Chunk, 0, len(parts)+1)
	for _, p := range parts {
		out = append(out, Chunk{Content: p})
	}
	return append(out, Chunk{Done: true})
}

func TestCallerAssemblesFragments(t *testing.T) {
	c := NewCaller(&fakeClient{chunks: textChunks(
		"I should tap the button.\n", "<ans", "wer>", `do(action="Tap", element="A1")`, "</answer>")})
	res, err := c.Call(context.Background(), &Request{
		Messages: []Message{NewUserMessage("go")},
		Mode:     ModeAction,
	})
	require.NoError(t, err)
	assert.Equal(t, "I should tap the button.", res.Thinking)
	assert.Equal(t, `do(action="Tap", element="A1")`, res.Answer)
	assert.Greater(t, res.Metrics.Total, res.Metrics.TimeToFirstToken)
	assert.Greater(t, res.Metrics.TimeToThinkingEnd, res.Metrics.TimeToFirstToken)
}

func TestCallerPredictMode(t *testing.T) {
	c := NewCaller(&fakeClient{chunks: textChunks(
		"thinking", "<answer>do(action=\"Back\")</answer>",
		"<predict>next screen shows the alarm list</predict>")})
	res, err := c.Call(context.Background(), &Request{
		Messages: []Message{NewUserMessage("go")},
		Mode:     ModePredict,
	})
	require.NoError(t, err)
	assert.Equal(t, `do(action="Back")`, res.Answer)
	assert.Equal(t, "next screen shows the alarm list", res.Predict)
}

func TestCallerReflectModeKeepsBody(t *testing.T) {
	body := `{"action_successful": true}`
	c := NewCaller(&fakeClient{chunks: textChunks(body)})
	res, err := c.Call(context.Background(), &Request{
		Messages: []Message{NewUserMessage("go")},
		Mode:     ModeReflect,
	})
	require.NoError(t, err)
	assert.Equal(t, body, res.Answer)
	assert.Empty(t, res.Thinking)
}

func TestCallerEmptyResponse(t *testing.T) {
	c := NewCaller(&fakeClient{chunks: textChunks("   \n")})
	_, err := c.Call(context.Background(), &Request{
		Messages: []Message{NewUserMessage("go")},
		Mode:     ModeAction,
	})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestCallerStreamError(t *testing.T) {
	boom := errors.New("boom")
	c := NewCaller(&fakeClient{chunks: []Chunk{{Content: "partial"}, {Error: boom}}})
	_, err := c.Call(context.Background(), &Request{
		Messages: []Message{NewUserMessage("go")},
		Mode:     ModeAction,
	})
	assert.ErrorIs(t, err, boom)
}

func TestCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Channel never closes and never delivers, so only ctx can unblock.
	blocked := &blockingClient{}
	_, err := NewCaller(blocked).Call(ctx, &Request{
		Messages: []Message{NewUserMessage("go")},
		Mode:     ModeAction,
	})
	assert.ErrorIs(t, err, context.Canceled)
}

type blockingClient struct{}

func (b *blockingClient) Stream(ctx context.Context, req *Request) (<-chan Chunk, error) {
	return make(chan Chunk), nil
}

func TestParseRawMissingMarker(t *testing.T) {
	res := parseRaw(`do(action="Home")`, ModeAction)
	assert.Equal(t, `do(action="Home")`, res.Answer)
	assert.Empty(t, res.Thinking)
}

func TestParseRawMissingCloseMarker(t *testing.T) {
	res := parseRaw("thought<answer>finish(message=\"done\")", ModeAction)
	assert.Equal(t, "thought", res.Thinking)
	assert.Equal(t, `finish(message="done")`, res.Answer)
}

func TestSplitBlock(t *testing.T) {
	before, inside := splitBlock("a<answer>b</answer>c", answerOpen, answerClose)
	assert.Equal(t, "a", before)
	assert.Equal(t, "b", inside)

	before, inside = splitBlock("no markers", answerOpen, answerClose)
	assert.Equal(t, "no markers", before)
	assert.Empty(t, inside)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		body string
		want map[string]any
		ok   bool
	}{
		{
			name: "plain object",
			body: `{"a": 1, "b": "x"}`,
			want: map[string]any{"a": float64(1), "b": "x"},
			ok:   true,
		},
		{
			name: "fenced",
			body: "```json\n{\"ok\": true}\n```",
			want: map[string]any{"ok": true},
			ok:   true,
		},
		{
			name: "surrounding prose",
			body: `Here is the result: {"nested": {"k": "}"}} trailing`,
			want: map[string]any{"nested": map[string]any{"k": "}"}},
			ok:   true,
		},
		{
			name: "brace inside string",
			body: `{"s": "open { brace"}`,
			want: map[string]any{"s": "open { brace"},
			ok:   true,
		},
		{name: "no object", body: "nothing here", ok: false},
		{name: "unbalanced", body: `{"a": 1`, ok: false},
		{name: "malformed", body: `{a: 1}`, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.body)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
