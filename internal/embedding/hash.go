// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package embedding

import (
	"context"
	"hash/fnv"
	"math"

	cache "github.com/patrickmn/go-cache"
)

// DefaultDimensions is the vector width used when none is configured.
const DefaultDimensions = 128

// Linear congruential generator constants (PCG initializers).
const (
	lcgMultiplier uint64 = 6364136223846793005
	lcgIncrement  uint64 = 1442695040888963407
)

// HashProvider derives deterministic pseudo-embeddings from token hashes.
// It is a stand-in for a learned model: vectors carry no semantic meaning
// beyond exact token overlap, but they are stable across process restarts,
// which is what the indices depend on.
type HashProvider struct {
	dims  int
	words *cache.Cache
}

// NewHashProvider returns a provider emitting vectors of the given width.
// Non-positive widths fall back to DefaultDimensions.
func NewHashProvider(dims int) *HashProvider {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &HashProvider{
		dims:  dims,
		words: cache.New(cache.NoExpiration, 0),
	}
}

// Dimensions returns the width of every vector this provider emits.
func (p *HashProvider) Dimensions() int {
	return p.dims
}

// Embed tokenizes the text, sums the per-word vectors, and L2-normalizes
// the sum to unit length. Blank or stopword-only input yields (nil, nil).
func (p *HashProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil, nil
	}
	vec := make([]float32, p.dims)
	for _, tok := range tokens {
		wv := p.wordVector(tok)
		for i := range vec {
			vec[i] += wv[i]
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

// wordVector returns the cached vector for a word, generating it from an
// FNV-1a seed on first use. Concurrent generators may race to insert the
// same word; the computation is deterministic so last-write-wins is safe.
func (p *HashProvider) wordVector(word string) []float32 {
	if cached, ok := p.words.Get(word); ok {
		if vec, ok := cached.([]float32); ok {
			return vec
		}
	}
	h := fnv.New64a()
	h.Write([]byte(word))
	seed := h.Sum64()
	vec := make([]float32, p.dims)
	for i := range vec {
		seed = seed*lcgMultiplier + lcgIncrement
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	p.words.Set(word, vec, cache.NoExpiration)
	return vec
}
