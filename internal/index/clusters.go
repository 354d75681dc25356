// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package index

import (
	"context"
	"fmt"

	"github.com/engramdb/engram/internal/embedding"
)

// Clusters recomputes similarity clusters with single-pass greedy
// grouping: ids are visited in insertion order, each unvisited id seeds a
// cluster, and every later unvisited id whose cosine similarity to the
// seed exceeds the threshold joins it. Singleton clusters are discarded.
// The pass is O(n^2) over stored embeddings and approximate (membership
// depends on visit order, there is no reassignment step); it is
// recomputed on demand rather than incrementally maintained.
//
// A non-positive threshold selects the configured default. maxClusters
// of zero selects the configured default; negative lifts the cap. The
// result replaces the engine's cluster index.
func (e *Engine) Clusters(ctx context.Context, threshold float64, maxClusters int) (map[string][]string, error) {
	if threshold <= 0 {
		threshold = e.clusterThreshold
	}
	if maxClusters == 0 {
		maxClusters = e.maxClusters
	}

	ids, vectors := e.snapshotEmbeddings()
	clusters := make(map[string][]string)
	visited := make(map[string]struct{}, len(ids))
	label := 0
	for _, seed := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, done := visited[seed]; done {
			continue
		}
		visited[seed] = struct{}{}
		members := []string{seed}
		for _, other := range ids {
			if _, done := visited[other]; done {
				continue
			}
			if embedding.CosineSimilarity(vectors[seed], vectors[other]) > threshold {
				visited[other] = struct{}{}
				members = append(members, other)
			}
		}
		if len(members) < 2 {
			continue
		}
		clusters[fmt.Sprintf("cluster_%d", label)] = members
		label++
		if maxClusters > 0 && label >= maxClusters {
			break
		}
	}

	stored := make(map[string][]string, len(clusters))
	for l, members := range clusters {
		stored[l] = append([]string(nil), members...)
	}
	e.mu.Lock()
	e.clusters = stored
	e.mu.Unlock()

	return clusters, nil
}
