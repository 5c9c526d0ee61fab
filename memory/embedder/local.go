//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// DefaultLocalDimensions is the dimensionality of the local embedder.
const DefaultLocalDimensions = 256

// Local is a deterministic offline embedder hashing word unigrams and
// character trigrams into a fixed-size vector. It keeps memory retrieval
// working without network access; production deployments configure the
// OpenAI embedder instead.
type Local struct {
	dimensions int
}

var _ Embedder = (*Local)(nil)

// LocalOption configures a Local embedder.
type LocalOption func(*Local)

// WithLocalDimensions overrides the vector size.
func WithLocalDimensions(n int) LocalOption {
	return func(l *Local) {
		l.dimensions = n
	}
}

// NewLocal creates a deterministic local embedder.
func NewLocal(opts ...LocalOption) *Local {
	l := &Local{dimensions: DefaultLocalDimensions}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// GetEmbedding hashes the text features into a normalized vector.
func (l *Local) GetEmbedding(ctx context.Context, text string) ([]float64, error) {
	vec := make([]float64, l.dimensions)
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return vec, nil
	}
	for _, tok := range strings.Fields(text) {
		bump(vec, tok, 1.0)
		runes := []rune(tok)
		for i := 0; i+3 <= len(runes); i++ {
			bump(vec, string(runes[i:i+3]), 0.5)
		}
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

// GetDimensions returns the configured vector size.
func (l *Local) GetDimensions() int { return l.dimensions }

func bump(vec []float64, feature string, weight float64) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(feature))
	vec[int(h.Sum32())%len(vec)] += weight
}
