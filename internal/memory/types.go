// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package memory

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a memory id is unknown to the store.
var ErrNotFound = errors.New("memory not found")

// MemoryType identifies the storage partition a record belongs to.
type MemoryType string

// Memory type constants
const (
	TypeEpisodic   MemoryType = "EPISODIC"
	TypeSemantic   MemoryType = "SEMANTIC"
	TypeEmotional  MemoryType = "EMOTIONAL"
	TypeProcedural MemoryType = "PROCEDURAL"
)

// ValidMemoryTypes returns all valid memory type values
func ValidMemoryTypes() []MemoryType {
	return []MemoryType{
		TypeEpisodic,
		TypeSemantic,
		TypeEmotional,
		TypeProcedural,
	}
}

// IsValidMemoryType checks if a memory type is valid
func IsValidMemoryType(t MemoryType) bool {
	for _, valid := range ValidMemoryTypes() {
		if t == valid {
			return true
		}
	}
	return false
}

// ParseMemoryType normalizes a user-supplied type name to a MemoryType.
func ParseMemoryType(name string) (MemoryType, error) {
	t := MemoryType(strings.ToUpper(strings.TrimSpace(name)))
	if IsValidMemoryType(t) {
		return t, nil
	}
	return "", fmt.Errorf("invalid memory type %q", name)
}

// Association type constants
const (
	AssociationRelatedTo   = "related_to"
	AssociationFollows     = "follows"
	AssociationContradicts = "contradicts"
	AssociationReinforces  = "reinforces"
)

// ValidAssociationTypes returns all valid association type values
func ValidAssociationTypes() []string {
	return []string{
		AssociationRelatedTo,
		AssociationFollows,
		AssociationContradicts,
		AssociationReinforces,
	}
}

// IsValidAssociationType checks if an association type is valid
func IsValidAssociationType(t string) bool {
	for _, valid := range ValidAssociationTypes() {
		if t == valid {
			return true
		}
	}
	return false
}

// Field bounds. Out-of-range values are clamped on every mutation rather
// than rejected, so callers never need to pre-validate numeric inputs.
const (
	MaxPriority      = 100.0
	MaxReinforcement = 10.0
)

// TagsMetadataKey is the metadata key holding the record's tags as a
// comma-separated list.
const TagsMetadataKey = "tags"

// Context carries contextual attributes captured alongside a memory.
type Context struct {
	AssociatedEntities []string `json:"associatedEntities,omitempty"`
}

// MemoryRecord is the unit of storage. The id is unique across all memory
// types and immutable after creation.
type MemoryRecord struct {
	ID                 string            `json:"id"`
	Type               MemoryType        `json:"type"`
	Content            string            `json:"content"`
	Created            time.Time         `json:"created"`
	LastAccessed       time.Time         `json:"lastAccessed"`
	LastConsolidated   time.Time         `json:"lastConsolidated"`
	Priority           float64           `json:"priority"`
	Certainty          float64           `json:"certainty"`
	EmotionalValence   float64           `json:"emotionalValence"`
	EmotionalIntensity float64           `json:"emotionalIntensity"`
	ReinforcementScore float64           `json:"reinforcementScore"`
	AccessCount        int               `json:"accessCount"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	Context            Context           `json:"context"`
}

// Clamp forces every bounded field back into its declared range:
// priority 0..100, certainty 0..1, valence -1..1, intensity 0..1,
// reinforcement 0..MaxReinforcement.
func (r *MemoryRecord) Clamp() {
	r.Priority = clampFloat(r.Priority, 0, MaxPriority)
	r.Certainty = clampFloat(r.Certainty, 0, 1)
	r.EmotionalValence = clampFloat(r.EmotionalValence, -1, 1)
	r.EmotionalIntensity = clampFloat(r.EmotionalIntensity, 0, 1)
	r.ReinforcementScore = clampFloat(r.ReinforcementScore, 0, MaxReinforcement)
	if r.AccessCount < 0 {
		r.AccessCount = 0
	}
}

// Tags returns the record's tags from the metadata side-channel.
func (r *MemoryRecord) Tags() []string {
	if r.Metadata == nil {
		return nil
	}
	raw, ok := r.Metadata[TagsMetadataKey]
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// SetTags stores tags in the metadata side-channel, replacing any
// existing tag list.
func (r *MemoryRecord) SetTags(tags []string) {
	cleaned := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	if len(cleaned) == 0 {
		if r.Metadata != nil {
			delete(r.Metadata, TagsMetadataKey)
		}
		return
	}
	if r.Metadata == nil {
		r.Metadata = make(map[string]string)
	}
	r.Metadata[TagsMetadataKey] = strings.Join(cleaned, ",")
}

// HasTag reports whether the record carries the given tag (case-insensitive).
func (r *MemoryRecord) HasTag(tag string) bool {
	for _, t := range r.Tags() {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// HasEntity reports whether the record's context references the given
// entity (case-insensitive).
func (r *MemoryRecord) HasEntity(name string) bool {
	for _, e := range r.Context.AssociatedEntities {
		if strings.EqualFold(strings.TrimSpace(e), strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the record.
func (r *MemoryRecord) Clone() *MemoryRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Metadata != nil {
		out.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	if r.Context.AssociatedEntities != nil {
		out.Context.AssociatedEntities = append([]string(nil), r.Context.AssociatedEntities...)
	}
	return &out
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
