// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package index

import (
	"context"
	"sort"

	"github.com/engramdb/engram/internal/embedding"
)

const (
	defaultChainFloor = 0.8
	chainBranching    = 3
)

// Chains walks similarity edges depth-first from the start id. At each
// hop the walk branches into the top-3 most similar neighbors at or above
// the configured similarity floor, skipping ids already on the current
// path.
// Only paths of exactly maxDepth ids are recorded. The visited set is
// path-local (backtracking unmarks), so one id may appear in several
// distinct chains. Returns empty when the start id has no embedding or
// maxDepth is not positive.
func (e *Engine) Chains(ctx context.Context, startID string, maxDepth int) ([][]string, error) {
	if maxDepth <= 0 {
		return nil, nil
	}
	e.mu.RLock()
	_, ok := e.embeddings[startID]
	e.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	ids, vectors := e.snapshotEmbeddings()

	var chains [][]string
	var walk func(path []string) error
	walk = func(path []string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(path) == maxDepth {
			chains = append(chains, append([]string(nil), path...))
			return nil
		}
		current := path[len(path)-1]
		for _, next := range topNeighbors(current, path, ids, vectors, e.chainFloor) {
			if err := walk(append(path, next)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk([]string{startID}); err != nil {
		return nil, err
	}
	return chains, nil
}

func topNeighbors(current string, path []string, ids []string, vectors map[string][]float32, floor float64) []string {
	anchor := vectors[current]
	onPath := make(map[string]struct{}, len(path))
	for _, id := range path {
		onPath[id] = struct{}{}
	}

	type scored struct {
		id    string
		score float64
	}
	var candidates []scored
	for _, other := range ids {
		if _, skip := onPath[other]; skip {
			continue
		}
		score := embedding.CosineSimilarity(anchor, vectors[other])
		if score >= floor {
			candidates = append(candidates, scored{id: other, score: score})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > chainBranching {
		candidates = candidates[:chainBranching]
	}

	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out
}
