// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/engramdb/engram/internal/embedding"
	"github.com/engramdb/engram/internal/memory"
)

const (
	defaultClusterThreshold = 0.85
	defaultMaxClusters      = 64
)

// Index answers retrieval questions over indexed memories: semantic and
// keyword search, nearest neighbors, similarity clusters, and multi-hop
// chains. Implementations keep every structure consistent under
// concurrent readers and a single writer.
type Index interface {
	Index(ctx context.Context, r *memory.MemoryRecord) error
	Reindex(ctx context.Context, r *memory.MemoryRecord) error
	Remove(id string)
	SemanticSearch(ctx context.Context, text string, limit int, minScore float64) ([]SearchResult, error)
	KeywordSearch(text string, limit int) []SearchResult
	FindSimilar(ctx context.Context, id string, limit int, minSimilarity float64) ([]SearchResult, error)
	Clusters(ctx context.Context, threshold float64, maxClusters int) (map[string][]string, error)
	Chains(ctx context.Context, startID string, maxDepth int) ([][]string, error)
	RebuildAll(ctx context.Context, records []*memory.MemoryRecord) error
	KeywordOccurrences(substring string) map[string]int
	Stats() Stats
}

// Config configures an index engine.
type Config struct {
	// ClusterThreshold is the cosine similarity a record must exceed to
	// join a cluster seed. Zero selects the default of 0.85.
	ClusterThreshold float64
	// MaxClusters caps how many clusters a recompute may form. Zero
	// selects the default of 64; negative lifts the cap.
	MaxClusters int
	// ChainSimilarityFloor is the minimum cosine similarity for a hop
	// in a memory chain. Zero selects the default of 0.8.
	ChainSimilarityFloor float64
	Logger               *slog.Logger
}

// Stats summarizes the index contents.
type Stats struct {
	Embeddings      int
	Keywords        int
	Entities        int
	DayBuckets      int
	Clusters        int
	MeanClusterSize float64
}

// Engine maintains four parallel bucket maps (keyword, entity, day,
// cluster) plus an id-to-embedding map. A single RWMutex guards all of
// them; similarity math runs outside the lock on snapshots so the write
// path is never held hostage to O(n^2) work.
type Engine struct {
	mu       sync.RWMutex
	provider embedding.Provider
	logger   *slog.Logger

	clusterThreshold float64
	maxClusters      int
	chainFloor       float64

	keywords   map[string]map[string]struct{}
	entities   map[string]map[string]struct{}
	dayBuckets map[string]map[string]struct{}
	clusters   map[string][]string
	embeddings map[string][]float32

	// order preserves id insertion order so scans and tie-breaks stay
	// deterministic within a process run.
	order   []string
	present map[string]struct{}
}

// NewEngine returns an empty engine. A nil provider disables the
// embedding-backed operations; semantic search then degrades to keyword
// search.
func NewEngine(provider embedding.Provider, cfg Config) *Engine {
	threshold := cfg.ClusterThreshold
	if threshold <= 0 {
		threshold = defaultClusterThreshold
	}
	maxClusters := cfg.MaxClusters
	if maxClusters == 0 {
		maxClusters = defaultMaxClusters
	}
	chainFloor := cfg.ChainSimilarityFloor
	if chainFloor <= 0 {
		chainFloor = defaultChainFloor
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		provider:         provider,
		logger:           logger,
		clusterThreshold: threshold,
		maxClusters:      maxClusters,
		chainFloor:       chainFloor,
		keywords:         make(map[string]map[string]struct{}),
		entities:         make(map[string]map[string]struct{}),
		dayBuckets:       make(map[string]map[string]struct{}),
		clusters:         make(map[string][]string),
		embeddings:       make(map[string][]float32),
		present:          make(map[string]struct{}),
	}
}

// preparedEntry is the lock-free part of indexing: tokenization and
// embedding happen before the write lock is taken.
type preparedEntry struct {
	id       string
	keywords []string
	entities []string
	day      string
	vector   []float32
}

func (e *Engine) prepare(ctx context.Context, r *memory.MemoryRecord) (preparedEntry, error) {
	entry := preparedEntry{id: r.ID}

	seen := make(map[string]struct{})
	for _, tok := range embedding.Tokenize(r.Content) {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		entry.keywords = append(entry.keywords, tok)
	}

	entSeen := make(map[string]struct{})
	for _, ent := range r.Context.AssociatedEntities {
		name := strings.ToLower(strings.TrimSpace(ent))
		if name == "" {
			continue
		}
		if _, dup := entSeen[name]; dup {
			continue
		}
		entSeen[name] = struct{}{}
		entry.entities = append(entry.entities, name)
	}

	if !r.Created.IsZero() {
		entry.day = r.Created.UTC().Format("2006-01-02")
	}

	if e.provider != nil {
		vec, err := e.provider.Embed(ctx, r.Content)
		if err != nil {
			return preparedEntry{}, fmt.Errorf("failed to embed %s: %w", r.ID, err)
		}
		entry.vector = vec
	}
	return entry, nil
}

// Index adds the record to every matching bucket. Indexing an already
// present id merges buckets additively; use Reindex after content
// changes.
func (e *Engine) Index(ctx context.Context, r *memory.MemoryRecord) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("record id is required")
	}
	entry, err := e.prepare(ctx, r)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.addLocked(entry)
	return nil
}

// Reindex replaces every index entry for the record under one lock
// acquisition, so readers observe either the old or the new entries,
// never a mix.
func (e *Engine) Reindex(ctx context.Context, r *memory.MemoryRecord) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("record id is required")
	}
	entry, err := e.prepare(ctx, r)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeLocked(r.ID)
	e.addLocked(entry)
	return nil
}

// Remove deletes the id from every bucket in every index, including the
// embedding map. Removing an absent id is a no-op.
func (e *Engine) Remove(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeLocked(id)
}

func (e *Engine) addLocked(entry preparedEntry) {
	for _, kw := range entry.keywords {
		set := e.keywords[kw]
		if set == nil {
			set = make(map[string]struct{})
			e.keywords[kw] = set
		}
		set[entry.id] = struct{}{}
	}
	for _, ent := range entry.entities {
		set := e.entities[ent]
		if set == nil {
			set = make(map[string]struct{})
			e.entities[ent] = set
		}
		set[entry.id] = struct{}{}
	}
	if entry.day != "" {
		set := e.dayBuckets[entry.day]
		if set == nil {
			set = make(map[string]struct{})
			e.dayBuckets[entry.day] = set
		}
		set[entry.id] = struct{}{}
	}
	if entry.vector != nil {
		e.embeddings[entry.id] = entry.vector
	}
	if _, ok := e.present[entry.id]; !ok {
		e.present[entry.id] = struct{}{}
		e.order = append(e.order, entry.id)
	}
}

func (e *Engine) removeLocked(id string) {
	for kw, set := range e.keywords {
		if _, ok := set[id]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(e.keywords, kw)
			}
		}
	}
	for ent, set := range e.entities {
		if _, ok := set[id]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(e.entities, ent)
			}
		}
	}
	for day, set := range e.dayBuckets {
		if _, ok := set[id]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(e.dayBuckets, day)
			}
		}
	}
	for label, members := range e.clusters {
		filtered := make([]string, 0, len(members))
		for _, m := range members {
			if m != id {
				filtered = append(filtered, m)
			}
		}
		if len(filtered) == len(members) {
			continue
		}
		// A cluster reduced to one member is no longer a cluster.
		if len(filtered) < 2 {
			delete(e.clusters, label)
		} else {
			e.clusters[label] = filtered
		}
	}
	delete(e.embeddings, id)
	if _, ok := e.present[id]; ok {
		delete(e.present, id)
		keep := e.order[:0]
		for _, oid := range e.order {
			if oid != id {
				keep = append(keep, oid)
			}
		}
		e.order = keep
	}
}

// RebuildAll clears every index structure and re-indexes the given
// records, then recomputes clusters when embeddings are available. An
// empty input leaves the indices empty but consistent.
func (e *Engine) RebuildAll(ctx context.Context, records []*memory.MemoryRecord) error {
	entries := make([]preparedEntry, 0, len(records))
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r == nil || r.ID == "" {
			continue
		}
		entry, err := e.prepare(ctx, r)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
	}

	e.mu.Lock()
	e.keywords = make(map[string]map[string]struct{})
	e.entities = make(map[string]map[string]struct{})
	e.dayBuckets = make(map[string]map[string]struct{})
	e.clusters = make(map[string][]string)
	e.embeddings = make(map[string][]float32, len(entries))
	e.order = make([]string, 0, len(entries))
	e.present = make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		e.addLocked(entry)
	}
	e.mu.Unlock()

	if e.provider != nil {
		if _, err := e.Clusters(ctx, e.clusterThreshold, e.maxClusters); err != nil {
			return err
		}
	}
	e.logger.Debug("index rebuilt", "records", len(entries))
	return nil
}

// KeywordOccurrences counts, per memory id, how many indexed keywords
// contain the given substring.
func (e *Engine) KeywordOccurrences(substring string) map[string]int {
	out := make(map[string]int)
	sub := strings.ToLower(strings.TrimSpace(substring))
	if sub == "" {
		return out
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for kw, ids := range e.keywords {
		if !strings.Contains(kw, sub) {
			continue
		}
		for id := range ids {
			out[id]++
		}
	}
	return out
}

// Stats summarizes the current index contents.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st := Stats{
		Embeddings: len(e.embeddings),
		Keywords:   len(e.keywords),
		Entities:   len(e.entities),
		DayBuckets: len(e.dayBuckets),
		Clusters:   len(e.clusters),
	}
	if len(e.clusters) > 0 {
		total := 0
		for _, members := range e.clusters {
			total += len(members)
		}
		st.MeanClusterSize = float64(total) / float64(len(e.clusters))
	}
	return st
}
