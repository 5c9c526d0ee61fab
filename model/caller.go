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
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"trpc.group/trpc-go/trpc-phone-agent/log"
	tmetric "trpc.group/trpc-go/trpc-phone-agent/telemetry/metric"
)

// Output block markers.
const (
	answerOpen   = "<answer>"
	answerClose  = "</answer>"
	predictOpen  = "<predict>"
	predictClose = "</predict>"
)

// ErrEmptyResponse is returned when the model produced no content at all.
var ErrEmptyResponse = errors.New("model returned empty response")

// Caller drives one streaming model call to completion: it consumes the
// fragment channel, separates thinking from the answer block by watching
// for the buffered marker, and records the latency profile.
type Caller struct {
	client Client
}

// NewCaller wraps a streaming client.
func NewCaller(client Client) *Caller {
	return &Caller{client: client}
}

// Call performs one model call and returns the parsed result.
// The in-flight stream aborts when ctx is cancelled.
func (c *Caller) Call(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()
	ch, err := c.client.Stream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}

	var (
		buf         strings.Builder
		firstToken  time.Duration
		thinkingEnd time.Duration
	)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk, ok := <-ch:
			if !ok {
				goto done
			}
			if chunk.Error != nil {
				return nil, fmt.Errorf("model stream error: %w", chunk.Error)
			}
			if chunk.Content != "" {
				if firstToken == 0 {
					firstToken = time.Since(start)
				}
				buf.WriteString(chunk.Content)
				if thinkingEnd == 0 && strings.Contains(buf.String(), answerOpen) {
					thinkingEnd = time.Since(start)
				}
			}
			if chunk.Done {
				goto done
			}
		}
	}
done:
	raw := buf.String()
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEmptyResponse
	}
	res := parseRaw(raw, req.Mode)
	res.Metrics = Metrics{
		TimeToFirstToken:  firstToken,
		TimeToThinkingEnd: thinkingEnd,
		Total:             time.Since(start),
	}
	recordMetrics(ctx, req.Mode, res.Metrics)
	log.Debugf("model call mode=%s ttft=%v thinking_end=%v total=%v",
		req.Mode, res.Metrics.TimeToFirstToken, res.Metrics.TimeToThinkingEnd, res.Metrics.Total)
	return res, nil
}

// parseRaw splits the raw body into thinking, answer and predict blocks
// according to the mode convention.
func parseRaw(raw string, mode Mode) *Result {
	res := &Result{Raw: raw}
	if mode == ModeReflect {
		res.Answer = raw
		return res
	}
	thinking, answer := splitBlock(raw, answerOpen, answerClose)
	res.Thinking = strings.TrimSpace(thinking)
	res.Answer = strings.TrimSpace(answer)
	if mode == ModePredict {
		_, predict := splitBlock(raw, predictOpen, predictClose)
		res.Predict = strings.TrimSpace(predict)
	}
	// Models occasionally skip the marker; treat the whole body as the
	// answer then.
	if res.Answer == "" && res.Thinking != "" && !strings.Contains(raw, answerOpen) {
		res.Answer = res.Thinking
		res.Thinking = ""
	}
	return res
}

// splitBlock returns the text before the open marker and the text inside
// the marker pair. A missing close marker extends the block to the end.
func splitBlock(raw, openTag, closeTag string) (before, inside string) {
	i := strings.Index(raw, openTag)
	if i < 0 {
		return raw, ""
	}
	before = raw[:i]
	rest := raw[i+len(openTag):]
	if j := strings.Index(rest, closeTag); j >= 0 {
		return before, rest[:j]
	}
	return before, rest
}

var (
	metricsOnce  sync.Once
	firstToken   metric.Float64Histogram
	thinkingTime metric.Float64Histogram
	totalTime    metric.Float64Histogram
)

func recordMetrics(ctx context.Context, mode Mode, m Metrics) {
	metricsOnce.Do(func() {
		var err error
		if firstToken, err = tmetric.Meter.Float64Histogram(
			"phone_agent.model.time_to_first_token_seconds"); err != nil {
			log.Warnf("model: create ttft histogram: %v", err)
		}
		if thinkingTime, err = tmetric.Meter.Float64Histogram(
			"phone_agent.model.time_to_thinking_end_seconds"); err != nil {
			log.Warnf("model: create thinking histogram: %v", err)
		}
		if totalTime, err = tmetric.Meter.Float64Histogram(
			"phone_agent.model.call_seconds"); err != nil {
			log.Warnf("model: create call histogram: %v", err)
		}
	})
	if firstToken != nil {
		firstToken.Record(ctx, m.TimeToFirstToken.Seconds())
	}
	if thinkingTime != nil && m.TimeToThinkingEnd > 0 {
		thinkingTime.Record(ctx, m.TimeToThinkingEnd.Seconds())
	}
	if totalTime != nil {
		totalTime.Record(ctx, m.Total.Seconds())
	}
}
