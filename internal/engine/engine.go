// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package engine coordinates the store and the search index behind one
// façade. Records are created here (never by callers directly), persisted
// first and indexed second: a failed store write fails the operation,
// while a failed index write after a durable save is only an
// inconsistency to be repaired by the next rebuild.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/engramdb/engram/internal/index"
	"github.com/engramdb/engram/internal/memory"
	"github.com/engramdb/engram/internal/store"
	"github.com/engramdb/engram/internal/telemetry"
)

// relatedSimilarityFloor is the minimum cosine similarity for filling
// related-memory results beyond explicit associations.
const relatedSimilarityFloor = 0.5

// Config carries the engine's scoring and consolidation policy.
type Config struct {
	Salience      memory.SalienceWeights
	Consolidation ConsolidationPolicy
}

// Engine is the memory orchestrator.
type Engine struct {
	store  store.Store
	index  index.Index
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	// consolidateMu serializes consolidation passes; everything else
	// relies on the store's and index's own locking.
	consolidateMu sync.Mutex
}

// New wires an engine over a store and an index. Zero-valued config
// sections fall back to the documented defaults.
func New(st store.Store, idx index.Index, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Salience == (memory.SalienceWeights{}) {
		cfg.Salience = memory.DefaultSalienceWeights()
	}
	if cfg.Consolidation == (ConsolidationPolicy{}) {
		cfg.Consolidation = DefaultConsolidationPolicy()
	}
	return &Engine{
		store:  st,
		index:  idx,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (e *Engine) newRecord(memType memory.MemoryType, content string, priority float64, entities []string, metadata map[string]string) *memory.MemoryRecord {
	now := e.now()
	var meta map[string]string
	if len(metadata) > 0 {
		meta = make(map[string]string, len(metadata))
		for k, v := range metadata {
			meta[k] = v
		}
	}
	return &memory.MemoryRecord{
		ID:               ulid.Make().String(),
		Type:             memType,
		Content:          content,
		Created:          now,
		LastAccessed:     now,
		LastConsolidated: now,
		Priority:         priority,
		Metadata:         meta,
		Context:          memory.Context{AssociatedEntities: append([]string(nil), entities...)},
	}
}

// persist saves the record, then indexes it. Indexing failure is logged
// and counted but not surfaced: the record is durably stored and the
// next full rebuild repairs the index.
func (e *Engine) persist(ctx context.Context, rec *memory.MemoryRecord) error {
	if err := e.store.Save(ctx, rec); err != nil {
		telemetry.RecordFailure("storage")
		return fmt.Errorf("failed to save memory: %w", err)
	}
	telemetry.RecordSave(string(rec.Type))
	if err := e.index.Index(ctx, rec); err != nil {
		telemetry.RecordFailure("index_inconsistency")
		e.logger.Warn("failed to index memory, rebuild will repair", "id", rec.ID, "error", err)
	}
	return nil
}

// CreateEpisodicMemory stores an event memory.
func (e *Engine) CreateEpisodicMemory(ctx context.Context, content string, priority float64, entities []string, metadata map[string]string) (*memory.MemoryRecord, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("content is required")
	}
	rec := e.newRecord(memory.TypeEpisodic, content, priority, entities, metadata)
	rec.Certainty = 0.8
	rec.EmotionalIntensity = 0.2
	rec.Clamp()
	if err := e.persist(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// CreateSemanticMemory stores a fact with an explicit confidence.
func (e *Engine) CreateSemanticMemory(ctx context.Context, content string, certainty, priority float64, entities []string, metadata map[string]string) (*memory.MemoryRecord, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("content is required")
	}
	rec := e.newRecord(memory.TypeSemantic, content, priority, entities, metadata)
	rec.Certainty = certainty
	rec.Clamp()
	if err := e.persist(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// CreateEmotionalMemory stores a feeling with valence and intensity.
func (e *Engine) CreateEmotionalMemory(ctx context.Context, content string, valence, intensity, priority float64, entities []string, metadata map[string]string) (*memory.MemoryRecord, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("content is required")
	}
	rec := e.newRecord(memory.TypeEmotional, content, priority, entities, metadata)
	rec.Certainty = 0.9
	rec.EmotionalValence = valence
	rec.EmotionalIntensity = intensity
	rec.Clamp()
	if err := e.persist(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// CreateProceduralMemory stores a how-to memory.
func (e *Engine) CreateProceduralMemory(ctx context.Context, content string, priority float64, entities []string, metadata map[string]string) (*memory.MemoryRecord, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("content is required")
	}
	rec := e.newRecord(memory.TypeProcedural, content, priority, entities, metadata)
	rec.Certainty = 0.95
	rec.Clamp()
	if err := e.persist(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Restore persists a record that already carries an identity, such as
// one read back from an archive snapshot. Existing state under the same
// id is overwritten and fully reindexed.
func (e *Engine) Restore(ctx context.Context, rec *memory.MemoryRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("record id is required")
	}
	if !memory.IsValidMemoryType(rec.Type) {
		return fmt.Errorf("invalid memory type %q", rec.Type)
	}
	rec.Clamp()
	if err := e.store.Save(ctx, rec); err != nil {
		telemetry.RecordFailure("storage")
		return fmt.Errorf("failed to save memory: %w", err)
	}
	telemetry.RecordSave(string(rec.Type))
	if err := e.index.Reindex(ctx, rec); err != nil {
		telemetry.RecordFailure("index_inconsistency")
		e.logger.Warn("failed to index memory, rebuild will repair", "id", rec.ID, "error", err)
	}
	return nil
}

// Get returns one record by id.
func (e *Engine) Get(ctx context.Context, id string) (*memory.MemoryRecord, error) {
	return e.store.Get(ctx, id)
}

// Reinforce strengthens a memory: the boost is added to the
// reinforcement score (clamped), last access moves to now, and the
// access count increments.
func (e *Engine) Reinforce(ctx context.Context, id string, boost float64) (*memory.MemoryRecord, error) {
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.ReinforcementScore += boost
	rec.LastAccessed = e.now()
	rec.AccessCount++
	rec.Clamp()
	if err := e.store.Save(ctx, rec); err != nil {
		telemetry.RecordFailure("storage")
		return nil, fmt.Errorf("failed to save reinforcement: %w", err)
	}
	if err := e.index.Reindex(ctx, rec); err != nil {
		telemetry.RecordFailure("index_inconsistency")
		e.logger.Warn("failed to reindex memory, rebuild will repair", "id", rec.ID, "error", err)
	}
	telemetry.RecordReinforcement()
	return rec, nil
}

// Connect records a bidirectional association between two memories. An
// empty association type defaults to related_to, zero strength to 0.5.
func (e *Engine) Connect(ctx context.Context, idA, idB, assocType string, strength float64) (*store.Association, error) {
	return e.store.SaveAssociation(ctx, idA, idB, assocType, strength)
}

// RelatedMemories returns memories connected to the id: explicit
// associations first (strongest first), then embedding neighbors above
// the similarity floor until the limit is reached.
func (e *Engine) RelatedMemories(ctx context.Context, id string, limit int) ([]*memory.MemoryRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	if _, err := e.store.Get(ctx, id); err != nil {
		return nil, err
	}

	edges, err := e.store.AssociationsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{id: {}}
	out := make([]*memory.MemoryRecord, 0, limit)
	for _, edge := range edges {
		if len(out) >= limit {
			break
		}
		otherID := edge.Other(id)
		if _, dup := seen[otherID]; dup {
			continue
		}
		seen[otherID] = struct{}{}
		rec, err := e.store.Get(ctx, otherID)
		if err != nil {
			if errors.Is(err, memory.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, rec)
	}

	if len(out) < limit {
		similar, err := e.index.FindSimilar(ctx, id, limit-len(out)+len(seen), relatedSimilarityFloor)
		if err != nil {
			return nil, err
		}
		for _, hit := range similar {
			if len(out) >= limit {
				break
			}
			if _, dup := seen[hit.ID]; dup {
				continue
			}
			seen[hit.ID] = struct{}{}
			rec, err := e.store.Get(ctx, hit.ID)
			if err != nil {
				if errors.Is(err, memory.ErrNotFound) {
					continue
				}
				return nil, err
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

// Query retrieves memories. Attribute-only queries go straight to the
// store's scan; text queries resolve candidates through the semantic
// index first. Either way the results pass through the same filter and
// sort semantics, so every filter holds on whatever the index proposed.
func (e *Engine) Query(ctx context.Context, q memory.MemoryQuery) ([]*memory.MemoryRecord, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	telemetry.RecordQuery()
	start := time.Now()
	defer func() { telemetry.ObserveQueryDuration(time.Since(start)) }()

	if q.Text == "" {
		return e.store.Query(ctx, q)
	}

	hits, err := e.index.SemanticSearch(ctx, q.Text, -1, 0)
	if err != nil {
		return nil, err
	}
	records := make([]*memory.MemoryRecord, 0, len(hits))
	for _, hit := range hits {
		rec, err := e.store.Get(ctx, hit.ID)
		if err != nil {
			if errors.Is(err, memory.ErrNotFound) {
				// Dangling index entry; the next rebuild clears it.
				continue
			}
			return nil, err
		}
		records = append(records, rec)
	}
	// The index only proposes candidates; the full filter-and-sort pass
	// decides, so the text predicate and every attribute filter hold on
	// whatever the index surfaced.
	return memory.ApplyQuery(records, q, e.cfg.Salience, e.now()), nil
}

// MemoryChains walks similarity chains from a starting memory, returning
// id paths of exactly maxDepth.
func (e *Engine) MemoryChains(ctx context.Context, startID string, maxDepth int) ([][]string, error) {
	if _, err := e.store.Get(ctx, startID); err != nil {
		return nil, err
	}
	return e.index.Chains(ctx, startID, maxDepth)
}

// Forget deletes a memory from the store and every index structure
// before returning.
func (e *Engine) Forget(ctx context.Context, id string) error {
	if err := e.store.Delete(ctx, id); err != nil {
		if !errors.Is(err, memory.ErrNotFound) {
			telemetry.RecordFailure("storage")
		}
		return err
	}
	e.index.Remove(id)
	telemetry.RecordDelete()
	return nil
}

// ForgetBatch deletes several memories; ids that do not exist are
// skipped.
func (e *Engine) ForgetBatch(ctx context.Context, ids []string) error {
	if err := e.store.DeleteBatch(ctx, ids); err != nil {
		telemetry.RecordFailure("storage")
		return err
	}
	for _, id := range ids {
		e.index.Remove(id)
		telemetry.RecordDelete()
	}
	return nil
}

// Stats reports store and index counts.
func (e *Engine) Stats(ctx context.Context) (map[string]any, error) {
	records, err := e.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	byType := make(map[string]int)
	for _, r := range records {
		byType[strings.ToLower(string(r.Type))]++
	}
	assocs, err := e.store.ListAssociations(ctx)
	if err != nil {
		return nil, err
	}
	idx := e.index.Stats()
	telemetry.SetRecordCount(len(records))

	return map[string]any{
		"totalMemories":     len(records),
		"memoriesByType":    byType,
		"associations":      len(assocs),
		"indexedEmbeddings": idx.Embeddings,
		"keywords":          idx.Keywords,
		"entities":          idx.Entities,
		"dayBuckets":        idx.DayBuckets,
		"clusters":          idx.Clusters,
		"meanClusterSize":   idx.MeanClusterSize,
	}, nil
}

// ExportAll serializes the full memory set.
func (e *Engine) ExportAll(ctx context.Context) ([]byte, error) {
	data, err := e.store.ExportAll(ctx)
	if err != nil {
		telemetry.RecordFailure("export")
		return nil, err
	}
	return data, nil
}

// ImportAll merges an export blob and rebuilds the index over the merged
// state. Partial import failures are reported alongside the count of
// records that did land.
func (e *Engine) ImportAll(ctx context.Context, data []byte) (int, error) {
	count, importErr := e.store.ImportAll(ctx, data)
	if importErr != nil {
		telemetry.RecordFailure("import")
	}
	if _, err := e.RebuildIndex(ctx); err != nil {
		return count, errors.Join(importErr, err)
	}
	return count, importErr
}

// RebuildResult summarizes one full index rebuild.
type RebuildResult struct {
	RecordsProcessed int
	EmbeddingsStored int
	ClustersFormed   int
}

// RebuildIndex re-indexes every stored record from scratch, clearing any
// inconsistency accumulated from failed incremental index writes.
func (e *Engine) RebuildIndex(ctx context.Context) (*RebuildResult, error) {
	records, err := e.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.index.RebuildAll(ctx, records); err != nil {
		telemetry.RecordFailure("index_inconsistency")
		return nil, fmt.Errorf("failed to rebuild index: %w", err)
	}
	st := e.index.Stats()
	result := &RebuildResult{
		RecordsProcessed: len(records),
		EmbeddingsStored: st.Embeddings,
		ClustersFormed:   st.Clusters,
	}
	e.logger.Info("index rebuilt",
		"records", result.RecordsProcessed,
		"embeddings", result.EmbeddingsStored,
		"clusters", result.ClustersFormed)
	return result, nil
}

// Close releases the underlying store. The index holds no external
// resources.
func (e *Engine) Close() error {
	return e.store.Close()
}
