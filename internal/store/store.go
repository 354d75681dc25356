// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package store

import (
	"context"
	"log/slog"

	"github.com/engramdb/engram/internal/memory"
)

// Store is durable keyed storage of memory records partitioned by type.
// All write paths take an exclusive lock; reads run concurrently with each
// other but never with a write. Implementations report expected failure
// modes (missing id, I/O errors) as returned errors and never panic on
// them.
type Store interface {
	// Save upserts a record by id and notifies every live observer of
	// the id and its type partition before returning.
	Save(ctx context.Context, r *memory.MemoryRecord) error
	// Get returns the record or memory.ErrNotFound.
	Get(ctx context.Context, id string) (*memory.MemoryRecord, error)
	// ListByType returns every record in one type partition.
	ListByType(ctx context.Context, t memory.MemoryType) ([]*memory.MemoryRecord, error)
	// ListAll returns every record across all partitions.
	ListAll(ctx context.Context) ([]*memory.MemoryRecord, error)
	// Query runs the full-scan filter, sort, and truncate pass.
	Query(ctx context.Context, q memory.MemoryQuery) ([]*memory.MemoryRecord, error)
	// Delete removes a record and its associations, or returns
	// memory.ErrNotFound.
	Delete(ctx context.Context, id string) error
	// DeleteBatch removes every listed record that exists. Unknown ids
	// are skipped, not errors.
	DeleteBatch(ctx context.Context, ids []string) error

	// ExportAll serializes every record with its outbound associations.
	ExportAll(ctx context.Context) ([]byte, error)
	// ImportAll merges an export blob, overwriting existing ids, and
	// returns the number of records imported. Records that fail to
	// import do not corrupt those already imported.
	ImportAll(ctx context.Context, data []byte) (int, error)

	// SaveAssociation records an edge between two existing records.
	// Empty type defaults to related_to, zero strength to 0.5.
	SaveAssociation(ctx context.Context, sourceID, targetID, assocType string, strength float64) (*Association, error)
	// AssociationsFor returns every edge touching the id, strongest
	// first.
	AssociationsFor(ctx context.Context, id string) ([]*Association, error)
	// ListAssociations returns every edge in the store.
	ListAssociations(ctx context.Context) ([]*Association, error)
	// DeleteAssociationsFor removes every edge touching the id.
	DeleteAssociationsFor(ctx context.Context, id string) error
	// ReassignAssociations moves every edge from one id to another,
	// dropping edges that would become self-loops.
	ReassignAssociations(ctx context.Context, fromID, toID string) error

	// Observe opens a live stream over one record id. The stream is
	// seeded with the current state and pushed on every mutation before
	// the mutating call returns.
	Observe(id string) *Subscription
	// ObserveByType opens a live stream over one type partition.
	ObserveByType(t memory.MemoryType) *TypeSubscription

	Close() error
}

// Config configures a store. Type selects the backend ("sqlite" or
// "postgres").
type Config struct {
	Type        string
	SQLitePath  string
	PostgresDSN string
	Salience    memory.SalienceWeights
	Logger      *slog.Logger
}
