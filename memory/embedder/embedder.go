//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

// Package embedder provides the text embedding interface backing task and
// tag similarity in episodic memory.
package embedder

import (
	"context"
	"math"
)

// Embedder is the interface that all embedders must implement.
//
// A function-level error means the embedding could not be produced at all
// (nil input, network failure). An empty slice return signals an API-level
// failure that was logged and absorbed; callers treat it as "no embedding".
type Embedder interface {
	// GetEmbedding generates an embedding vector for the given text.
	GetEmbedding(ctx context.Context, text string) ([]float64, error)

	// GetDimensions returns the dimensionality of the embeddings produced
	// by this embedder. Returns 0 if dimensions are not known.
	GetDimensions() int
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths or zero vectors yield 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
