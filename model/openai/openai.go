//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

// Package openai provides the OpenAI-compatible streaming backend for the
// model facade. Any chat/completions endpoint honoring the OpenAI wire
// format works through the base URL option.
package openai

import (
	"context"
	"encoding/base64"
	"fmt"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"

	"trpc.group/trpc-go/trpc-phone-agent/model"
)

// defaultChannelBufferSize is the default fragment channel buffer size.
const defaultChannelBufferSize = 256

// Model implements model.Client for the OpenAI API.
type Model struct {
	client            openai.Client
	name              string
	channelBufferSize int
}

var _ model.Client = (*Model)(nil)

// options contains configuration options for creating a Model.
type options struct {
	apiKey            string
	baseURL           string
	channelBufferSize int
	openaiOptions     []openaiopt.RequestOption
}

// Option configures the Model.
type Option func(*options)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.apiKey = key
	}
}

// WithBaseURL sets the base URL for OpenAI-compatible endpoints.
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.baseURL = url
	}
}

// WithChannelBufferSize sets the fragment channel buffer size.
func WithChannelBufferSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.channelBufferSize = size
		}
	}
}

// WithOpenAIOptions forwards extra request options to the OpenAI client.
func WithOpenAIOptions(opts ...openaiopt.RequestOption) Option {
	return func(o *options) {
		o.openaiOptions = append(o.openaiOptions, opts...)
	}
}

// New creates an OpenAI-backed model client for the named model.
func New(name string, opts ...Option) *Model {
	o := &options{channelBufferSize: defaultChannelBufferSize}
	for _, opt := range opts {
		opt(o)
	}
	clientOpts := make([]openaiopt.RequestOption, 0, len(o.openaiOptions)+2)
	if o.apiKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.apiKey))
	}
	if o.baseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.baseURL))
	}
	clientOpts = append(clientOpts, o.openaiOptions...)
	return &Model{
		client:            openai.NewClient(clientOpts...),
		name:              name,
		channelBufferSize: o.channelBufferSize,
	}
}

// Stream starts a streaming chat completion and forwards text deltas.
func (m *Model) Stream(ctx context.Context, req *model.Request) (<-chan model.Chunk, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, fmt.Errorf("request requires at least one message")
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(m.name),
		Messages: convertMessages(req.Messages),
	}
	if req.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}
	if req.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*req.FrequencyPenalty)
	}

	ch := make(chan model.Chunk, m.channelBufferSize)
	go func() {
		defer close(ch)
		stream := m.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case ch <- model.Chunk{Content: delta}:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil {
			select {
			case ch <- model.Chunk{Error: err}:
			case <-ctx.Done():
			}
			return
		}
		select {
		case ch <- model.Chunk{Done: true}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

// convertMessages maps facade messages onto OpenAI message params.
func convertMessages(msgs []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, convertUserMessage(msg))
		}
	}
	return out
}

func convertUserMessage(msg model.Message) openai.ChatCompletionMessageParamUnion {
	if len(msg.Parts) == 0 {
		return openai.UserMessage(msg.Content)
	}
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		switch part.Type {
		case model.ContentTypeText:
			parts = append(parts, openai.ChatCompletionContentPartUnionParam{
				OfText: &openai.ChatCompletionContentPartTextParam{Text: part.Text},
			})
		case model.ContentTypeImage:
			if part.Image == nil {
				continue
			}
			parts = append(parts, openai.ChatCompletionContentPartUnionParam{
				OfImageURL: &openai.ChatCompletionContentPartImageParam{
					ImageURL: openai.ChatCompletionContentPartImageImageURLParam{
						URL: imageDataURL(part.Image),
					},
				},
			})
		}
	}
	return openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfArrayOfContentParts: parts,
			},
		},
	}
}

func imageDataURL(img *model.Image) string {
	format := img.Format
	if format == "" {
		format = "png"
	}
	return "data:image/" + format + ";base64," +
		base64.StdEncoding.EncodeToString(img.Data)
}
