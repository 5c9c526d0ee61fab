//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

// Package model provides the vision-language-model facade the agent talks
// to: OpenAI-compatible chat messages with inline image parts, streaming
// with thinking/answer separation, and per-call latency metrics.
package model

import (
	"context"
	"time"
)

// Role represents the role of a message author.
type Role string

// Role constants for message authors.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Mode selects the output convention expected from the model.
type Mode string

// Call modes.
const (
	// ModeAction expects thinking text followed by an <answer> block
	// containing a do(...)/finish(...) expression.
	ModeAction Mode = "action"
	// ModePredict is like ModeAction but additionally accepts a
	// <predict> block.
	ModePredict Mode = "predict"
	// ModeReflect expects a single strict JSON object in the body.
	ModeReflect Mode = "reflect"
)

// ContentType tags a content part.
type ContentType string

// Content part types.
const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
)

// Image is an inline image part, carried as raw bytes and encoded to a
// base64 data URL on the wire.
type Image struct {
	// Data holds the encoded image bytes.
	Data []byte
	// Format is the image format, e.g. "png".
	Format string
}

// ContentPart is one part of a multimodal message.
type ContentPart struct {
	Type  ContentType
	Text  string
	Image *Image
}

// Message represents a single message in a conversation.
type Message struct {
	// Role is the message author role.
	Role Role
	// Content is the plain-text content, used when Parts is empty.
	Content string
	// Parts carries multimodal content for user messages.
	Parts []ContentPart
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewImageMessage creates a user message with a text part and an inline
// image part.
func NewImageMessage(text string, img *Image) Message {
	parts := make([]ContentPart, 0, 2)
	if text != "" {
		parts = append(parts, ContentPart{Type: ContentTypeText, Text: text})
	}
	parts = append(parts, ContentPart{Type: ContentTypeImage, Image: img})
	return Message{Role: RoleUser, Parts: parts}
}

// GenerationConfig contains configuration for text generation.
type GenerationConfig struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens *int
	// Temperature controls randomness (0.0 to 2.0).
	Temperature *float64
	// TopP controls nucleus sampling (0.0 to 1.0).
	TopP *float64
	// FrequencyPenalty penalizes tokens by their frequency so far.
	FrequencyPenalty *float64
}

// Request is one call to the model.
type Request struct {
	// Messages is the strictly ordered conversation.
	Messages []Message
	// Mode selects the output convention.
	Mode Mode
	// GenerationConfig carries the generation parameters.
	GenerationConfig
}

// Chunk is one streamed fragment of a model response.
//
// A non-nil Error is an API-level failure delivered through the channel;
// function-level failures surface as the error returned by Stream itself.
type Chunk struct {
	// Content is the text delta of this fragment.
	Content string
	// Error is the API-level error, nil on success.
	Error error
	// Done marks the final fragment.
	Done bool
}

// Client is the streaming transport every backend must implement.
type Client interface {
	// Stream starts a chat completion and returns a channel of fragments.
	// The channel is closed after the Done fragment or an Error fragment.
	Stream(ctx context.Context, req *Request) (<-chan Chunk, error)
}

// Metrics captures the latency profile of one model call.
type Metrics struct {
	// TimeToFirstToken measures stream start to the first content
	// fragment.
	TimeToFirstToken time.Duration
	// TimeToThinkingEnd measures stream start to the <answer> marker.
	// Zero when the marker never appeared.
	TimeToThinkingEnd time.Duration
	// Total measures the whole call.
	Total time.Duration
}

// Result is the parsed outcome of one model call.
type Result struct {
	// Thinking is the free-form text preceding the <answer> marker.
	Thinking string
	// Answer is the content of the <answer> block. In reflect mode it
	// holds the whole body.
	Answer string
	// Predict is the content of the <predict> block, predict mode only.
	Predict string
	// Raw is the full unparsed text.
	Raw string
	// Metrics is the latency profile of the call.
	Metrics Metrics
}
