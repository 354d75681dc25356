// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package embedding

import (
	"context"
	"math"
)

// Provider maps text to a fixed-length numeric vector for similarity
// comparison. Implementations must be deterministic: the same text yields
// the same vector bit-for-bit, so vectors computed at different times
// remain comparable.
//
// Embed returns (nil, nil) when the text has no embeddable tokens (blank
// or stopword-only input). An absent vector is a defined outcome, not an
// error.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// CosineSimilarity returns the cosine of the angle between two vectors.
// Mismatched lengths and zero vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
