// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package memory

import (
	"math"
	"time"
)

// DefaultRecencyHalfLife is the time over which the recency component of
// salience halves when a record is not accessed.
const DefaultRecencyHalfLife = 72 * time.Hour

// SalienceWeights is the fixed weighting used to derive a record's
// salience. The weights are configuration, not computed at runtime, so
// salience ordering stays reproducible across a release. Consolidation
// eviction depends on that stability.
type SalienceWeights struct {
	Recency         float64
	Priority        float64
	Reinforcement   float64
	Emotion         float64
	RecencyHalfLife time.Duration
}

// DefaultSalienceWeights returns the documented default weighting:
// recency 0.35, priority 0.30, reinforcement 0.20, emotional intensity 0.15,
// with a 72h recency half-life.
func DefaultSalienceWeights() SalienceWeights {
	return SalienceWeights{
		Recency:         0.35,
		Priority:        0.30,
		Reinforcement:   0.20,
		Emotion:         0.15,
		RecencyHalfLife: DefaultRecencyHalfLife,
	}
}

// Salience derives a record's relevance score at the given instant. It is
// never persisted, always recomputed:
//
//	salience = wR*recency + wP*priority/100 + wF*reinforcement/max + wE*|intensity|
//
// where recency decays exponentially with the configured half-life from
// the record's last access (falling back to creation time).
func Salience(r *MemoryRecord, w SalienceWeights, now time.Time) float64 {
	accessed := r.LastAccessed
	if accessed.IsZero() {
		accessed = r.Created
	}
	age := now.Sub(accessed)
	if age < 0 {
		age = 0
	}
	halfLife := w.RecencyHalfLife
	if halfLife <= 0 {
		halfLife = DefaultRecencyHalfLife
	}
	recency := math.Exp2(-age.Hours() / halfLife.Hours())
	priority := clampFloat(r.Priority, 0, MaxPriority) / MaxPriority
	reinforcement := clampFloat(r.ReinforcementScore, 0, MaxReinforcement) / MaxReinforcement
	emotion := math.Abs(clampFloat(r.EmotionalIntensity, 0, 1))
	return w.Recency*recency + w.Priority*priority + w.Reinforcement*reinforcement + w.Emotion*emotion
}
