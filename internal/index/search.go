// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package index

import (
	"context"
	"sort"
	"strings"

	"github.com/engramdb/engram/internal/embedding"
)

// SearchResult is one ranked hit.
type SearchResult struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// snapshotEmbeddings copies the id order and embedding map under the read
// lock. The vectors themselves are immutable once stored, so sharing them
// out of the snapshot is safe.
func (e *Engine) snapshotEmbeddings() ([]string, map[string][]float32) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]string, 0, len(e.embeddings))
	for _, id := range e.order {
		if _, ok := e.embeddings[id]; ok {
			ids = append(ids, id)
		}
	}
	vectors := make(map[string][]float32, len(e.embeddings))
	for id, vec := range e.embeddings {
		vectors[id] = vec
	}
	return ids, vectors
}

// SemanticSearch embeds the query and ranks every stored embedding by
// cosine similarity, keeping scores at or above minScore. Without a
// provider, or when the query text embeds to nothing, it falls back to
// keyword search. A limit of zero or less returns every hit.
func (e *Engine) SemanticSearch(ctx context.Context, text string, limit int, minScore float64) ([]SearchResult, error) {
	if e.provider == nil {
		return e.KeywordSearch(text, limit), nil
	}
	queryVec, err := e.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if queryVec == nil {
		return e.KeywordSearch(text, limit), nil
	}

	ids, vectors := e.snapshotEmbeddings()
	results := make([]SearchResult, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		score := embedding.CosineSimilarity(queryVec, vectors[id])
		if score >= minScore {
			results = append(results, SearchResult{ID: id, Score: score})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return truncate(results, limit), nil
}

// KeywordSearch scores ids by substring overlap between query tokens and
// indexed keywords: each keyword containing a token contributes
// len(token)/len(keyword), and per-id totals are normalized by the query
// token count. Ties keep index insertion order.
func (e *Engine) KeywordSearch(text string, limit int) []SearchResult {
	tokens := uniqueTokens(text)
	if len(tokens) == 0 {
		return nil
	}

	e.mu.RLock()
	scores := make(map[string]float64)
	for _, tok := range tokens {
		for kw, ids := range e.keywords {
			if !strings.Contains(kw, tok) {
				continue
			}
			weight := float64(len(tok)) / float64(len(kw))
			for id := range ids {
				scores[id] += weight
			}
		}
	}
	order := make([]string, len(e.order))
	copy(order, e.order)
	e.mu.RUnlock()

	norm := float64(len(tokens))
	results := make([]SearchResult, 0, len(scores))
	for _, id := range order {
		if s, ok := scores[id]; ok {
			results = append(results, SearchResult{ID: id, Score: s / norm})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return truncate(results, limit)
}

// FindSimilar ranks stored embeddings by cosine similarity to an existing
// record's embedding, excluding the record itself. Returns empty when the
// anchor has no embedding.
func (e *Engine) FindSimilar(ctx context.Context, id string, limit int, minSimilarity float64) ([]SearchResult, error) {
	e.mu.RLock()
	anchor, ok := e.embeddings[id]
	e.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	ids, vectors := e.snapshotEmbeddings()
	results := make([]SearchResult, 0, len(ids))
	for _, other := range ids {
		if other == id {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		score := embedding.CosineSimilarity(anchor, vectors[other])
		if score >= minSimilarity {
			results = append(results, SearchResult{ID: other, Score: score})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return truncate(results, limit), nil
}

func truncate(results []SearchResult, limit int) []SearchResult {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}

func uniqueTokens(text string) []string {
	seen := make(map[string]struct{})
	var tokens []string
	for _, tok := range embedding.Tokenize(text) {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
	}
	return tokens
}
