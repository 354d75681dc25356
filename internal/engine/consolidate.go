// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/engramdb/engram/internal/memory"
	"github.com/engramdb/engram/internal/telemetry"
)

// ConsolidationPolicy tunes the maintenance pass. Unset (zero) fields
// take the values from DefaultConsolidationPolicy.
type ConsolidationPolicy struct {
	// DecayWindow is the period one decay step covers; elapsed time is
	// quantized into whole windows.
	DecayWindow time.Duration
	// DecayFactor multiplies reinforcement and priority once per window.
	DecayFactor float64
	// RecentAccessGrace exempts records accessed this recently from
	// decay.
	RecentAccessGrace time.Duration
	// EvictionThreshold deletes records whose salience falls below it.
	EvictionThreshold float64
	// MergeThreshold is the cosine similarity above which same-type
	// records are folded together.
	MergeThreshold float64
}

// DefaultConsolidationPolicy mirrors roughly-daily maintenance: 10%
// decay per day, a 6h access grace, and near-duplicate merging.
func DefaultConsolidationPolicy() ConsolidationPolicy {
	return ConsolidationPolicy{
		DecayWindow:       24 * time.Hour,
		DecayFactor:       0.9,
		RecentAccessGrace: 6 * time.Hour,
		EvictionThreshold: 0.05,
		MergeThreshold:    0.97,
	}
}

func (p ConsolidationPolicy) withDefaults() ConsolidationPolicy {
	d := DefaultConsolidationPolicy()
	if p.DecayWindow <= 0 {
		p.DecayWindow = d.DecayWindow
	}
	if p.DecayFactor <= 0 || p.DecayFactor > 1 {
		p.DecayFactor = d.DecayFactor
	}
	if p.RecentAccessGrace <= 0 {
		p.RecentAccessGrace = d.RecentAccessGrace
	}
	if p.EvictionThreshold <= 0 {
		p.EvictionThreshold = d.EvictionThreshold
	}
	if p.MergeThreshold <= 0 || p.MergeThreshold > 1 {
		p.MergeThreshold = d.MergeThreshold
	}
	return p
}

// ConsolidateResult summarizes one consolidation pass.
type ConsolidateResult struct {
	Examined int `json:"examined"`
	Decayed  int `json:"decayed"`
	Evicted  int `json:"evicted"`
	Merged   int `json:"merged"`
}

// Consolidate runs one maintenance pass: decay scores by elapsed whole
// windows, evict records whose salience fell below the threshold, and
// merge near-duplicate records of the same type.
//
// Decay is anchored on each record's lastConsolidated marker, which
// advances by whole windows rather than to now. Running the pass twice
// without intervening writes therefore changes no scores the second
// time.
func (e *Engine) Consolidate(ctx context.Context) (*ConsolidateResult, error) {
	e.consolidateMu.Lock()
	defer e.consolidateMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	policy := e.cfg.Consolidation.withDefaults()
	now := e.now()

	records, err := e.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	result := &ConsolidateResult{Examined: len(records)}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		accessed := rec.LastAccessed
		if accessed.IsZero() {
			accessed = rec.Created
		}
		if now.Sub(accessed) < policy.RecentAccessGrace {
			continue
		}
		anchor := rec.LastConsolidated
		if anchor.IsZero() {
			anchor = rec.Created
		}
		windows := int(now.Sub(anchor) / policy.DecayWindow)
		if windows <= 0 {
			continue
		}
		factor := math.Pow(policy.DecayFactor, float64(windows))
		rec.ReinforcementScore *= factor
		rec.Priority *= factor
		rec.LastConsolidated = anchor.Add(time.Duration(windows) * policy.DecayWindow)
		rec.Clamp()
		if err := e.store.Save(ctx, rec); err != nil {
			telemetry.RecordFailure("storage")
			return nil, fmt.Errorf("failed to save decayed memory %s: %w", rec.ID, err)
		}
		result.Decayed++
	}

	gone := make(map[string]struct{})
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if memory.Salience(rec, e.cfg.Salience, now) >= policy.EvictionThreshold {
			continue
		}
		if err := e.store.Delete(ctx, rec.ID); err != nil {
			if errors.Is(err, memory.ErrNotFound) {
				continue
			}
			telemetry.RecordFailure("storage")
			return nil, fmt.Errorf("failed to evict memory %s: %w", rec.ID, err)
		}
		e.index.Remove(rec.ID)
		gone[rec.ID] = struct{}{}
		result.Evicted++
	}

	merged, err := e.mergeDuplicates(ctx, records, gone, policy, now)
	if err != nil {
		return nil, err
	}
	result.Merged = merged

	telemetry.RecordConsolidation()
	e.logger.Info("consolidation complete",
		"examined", result.Examined,
		"decayed", result.Decayed,
		"evicted", result.Evicted,
		"merged", result.Merged)
	return result, nil
}

// mergeDuplicates folds same-type records whose embeddings sit above the
// merge threshold into the higher-salience one. The survivor absorbs
// entities, tags, missing metadata, the stronger scores, and the
// duplicate's associations.
func (e *Engine) mergeDuplicates(ctx context.Context, records []*memory.MemoryRecord, gone map[string]struct{}, policy ConsolidationPolicy, now time.Time) (int, error) {
	merged := 0
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return merged, err
		}
		if _, dead := gone[rec.ID]; dead {
			continue
		}
		similar, err := e.index.FindSimilar(ctx, rec.ID, 5, policy.MergeThreshold)
		if err != nil {
			return merged, err
		}
		for _, hit := range similar {
			if _, dead := gone[hit.ID]; dead {
				continue
			}
			dup, err := e.store.Get(ctx, hit.ID)
			if err != nil {
				if errors.Is(err, memory.ErrNotFound) {
					continue
				}
				return merged, err
			}
			if dup.Type != rec.Type {
				continue
			}
			survivor, absorbed := rec, dup
			if memory.Salience(dup, e.cfg.Salience, now) > memory.Salience(rec, e.cfg.Salience, now) {
				survivor, absorbed = dup, rec
			}
			absorb(survivor, absorbed)
			if err := e.store.ReassignAssociations(ctx, absorbed.ID, survivor.ID); err != nil {
				return merged, fmt.Errorf("failed to reassign associations from %s: %w", absorbed.ID, err)
			}
			if err := e.store.Delete(ctx, absorbed.ID); err != nil && !errors.Is(err, memory.ErrNotFound) {
				telemetry.RecordFailure("storage")
				return merged, fmt.Errorf("failed to delete merged memory %s: %w", absorbed.ID, err)
			}
			e.index.Remove(absorbed.ID)
			gone[absorbed.ID] = struct{}{}
			if err := e.store.Save(ctx, survivor); err != nil {
				telemetry.RecordFailure("storage")
				return merged, fmt.Errorf("failed to save merged memory %s: %w", survivor.ID, err)
			}
			merged++
			if absorbed == rec {
				break
			}
		}
	}
	return merged, nil
}

func absorb(survivor, absorbed *memory.MemoryRecord) {
	for _, ent := range absorbed.Context.AssociatedEntities {
		if !survivor.HasEntity(ent) {
			survivor.Context.AssociatedEntities = append(survivor.Context.AssociatedEntities, ent)
		}
	}
	tags := survivor.Tags()
	for _, tag := range absorbed.Tags() {
		if !survivor.HasTag(tag) {
			tags = append(tags, tag)
		}
	}
	if len(tags) > 0 {
		survivor.SetTags(tags)
	}
	for k, v := range absorbed.Metadata {
		if k == memory.TagsMetadataKey {
			continue
		}
		if survivor.Metadata == nil {
			survivor.Metadata = make(map[string]string)
		}
		if _, ok := survivor.Metadata[k]; !ok {
			survivor.Metadata[k] = v
		}
	}
	if absorbed.ReinforcementScore > survivor.ReinforcementScore {
		survivor.ReinforcementScore = absorbed.ReinforcementScore
	}
	if absorbed.Priority > survivor.Priority {
		survivor.Priority = absorbed.Priority
	}
	if absorbed.Certainty > survivor.Certainty {
		survivor.Certainty = absorbed.Certainty
	}
	survivor.AccessCount += absorbed.AccessCount
}
