// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package store

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/engramdb/engram/internal/memory"
)

// memoryRow is the database shape of a memory record. Metadata and
// entities are serialized to JSON text columns so the row stays portable
// across sqlite and postgres.
type memoryRow struct {
	ID                 string `gorm:"primaryKey;size:64"`
	Type               string `gorm:"size:32;index;not null"`
	Content            string `gorm:"type:text"`
	Created            time.Time
	LastAccessed       time.Time
	LastConsolidated   time.Time
	Priority           float64
	Certainty          float64
	EmotionalValence   float64
	EmotionalIntensity float64
	ReinforcementScore float64
	AccessCount        int
	Metadata           string `gorm:"type:text"`
	Entities           string `gorm:"type:text"`
	UpdatedAt          time.Time
}

// TableName specifies the table name for memoryRow
func (memoryRow) TableName() string {
	return "engram_memories"
}

// Association is one edge of the bidirectional association graph. An edge
// is stored once under the id that created it; lookups match either
// endpoint.
type Association struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	SourceID  string  `gorm:"size:64;index;uniqueIndex:idx_engram_assoc,priority:1;not null" json:"sourceId"`
	TargetID  string  `gorm:"size:64;index;uniqueIndex:idx_engram_assoc,priority:2;not null" json:"targetId"`
	Type      string  `gorm:"size:32;uniqueIndex:idx_engram_assoc,priority:3;not null" json:"type"`
	Strength  float64 `gorm:"default:0.5" json:"strength"`
	CreatedAt time.Time
}

// TableName specifies the table name for Association
func (Association) TableName() string {
	return "engram_associations"
}

// Other returns the endpoint that is not the given id.
func (a *Association) Other(id string) string {
	if a.SourceID == id {
		return a.TargetID
	}
	return a.SourceID
}

func toRow(r *memory.MemoryRecord) (memoryRow, error) {
	row := memoryRow{
		ID:                 r.ID,
		Type:               string(r.Type),
		Content:            r.Content,
		Created:            r.Created,
		LastAccessed:       r.LastAccessed,
		LastConsolidated:   r.LastConsolidated,
		Priority:           r.Priority,
		Certainty:          r.Certainty,
		EmotionalValence:   r.EmotionalValence,
		EmotionalIntensity: r.EmotionalIntensity,
		ReinforcementScore: r.ReinforcementScore,
		AccessCount:        r.AccessCount,
	}
	if len(r.Metadata) > 0 {
		raw, err := json.Marshal(r.Metadata)
		if err != nil {
			return memoryRow{}, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		row.Metadata = string(raw)
	}
	if len(r.Context.AssociatedEntities) > 0 {
		raw, err := json.Marshal(r.Context.AssociatedEntities)
		if err != nil {
			return memoryRow{}, fmt.Errorf("failed to marshal entities: %w", err)
		}
		row.Entities = string(raw)
	}
	return row, nil
}

func fromRow(row memoryRow) (*memory.MemoryRecord, error) {
	rec := &memory.MemoryRecord{
		ID:                 row.ID,
		Type:               memory.MemoryType(row.Type),
		Content:            row.Content,
		Created:            row.Created,
		LastAccessed:       row.LastAccessed,
		LastConsolidated:   row.LastConsolidated,
		Priority:           row.Priority,
		Certainty:          row.Certainty,
		EmotionalValence:   row.EmotionalValence,
		EmotionalIntensity: row.EmotionalIntensity,
		ReinforcementScore: row.ReinforcementScore,
		AccessCount:        row.AccessCount,
	}
	if row.Metadata != "" {
		if err := json.Unmarshal([]byte(row.Metadata), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", row.ID, err)
		}
	}
	if row.Entities != "" {
		if err := json.Unmarshal([]byte(row.Entities), &rec.Context.AssociatedEntities); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entities for %s: %w", row.ID, err)
		}
	}
	return rec, nil
}

// exportRecord is the forward-compatible wire shape of one record in an
// export blob. The embedded record flattens its fields into the object;
// associations are exported once, under their source record.
type exportRecord struct {
	memory.MemoryRecord
	Associations []exportAssociation `json:"associations,omitempty"`
}

type exportAssociation struct {
	TargetID string  `json:"targetId"`
	Type     string  `json:"type"`
	Strength float64 `json:"strength"`
}
