// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	json "github.com/goccy/go-json"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/engramdb/engram/internal/memory"
)

// GormStore is the gorm-backed Store. A single RWMutex enforces the
// single-writer/multi-reader discipline over the whole store; observer
// notification happens under the write lock so subscribers are never
// notified of a success before the new state is readable.
type GormStore struct {
	db       *gorm.DB
	mu       sync.RWMutex
	salience memory.SalienceWeights
	logger   *slog.Logger
	now      func() time.Time

	obsByID   map[string]map[string]chan Event
	obsByType map[memory.MemoryType]map[string]chan TypeEvent
}

// Open establishes the database connection for the configured backend and
// migrates the schema.
func Open(cfg Config) (*GormStore, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	salience := cfg.Salience
	if salience == (memory.SalienceWeights{}) {
		salience = memory.DefaultSalienceWeights()
	}

	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	var db *gorm.DB
	var err error
	switch cfg.Type {
	case "sqlite":
		if err := ensureSQLiteDir(cfg.SQLitePath); err != nil {
			return nil, fmt.Errorf("failed to ensure sqlite directory: %w", err)
		}
		db, err = gorm.Open(sqlite.Open(cfg.SQLitePath), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
		}

	case "postgres":
		db, err = gorm.Open(postgres.Open(cfg.PostgresDSN), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	if err := db.AutoMigrate(&memoryRow{}, &Association{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &GormStore{
		db:        db,
		salience:  salience,
		logger:    logger,
		now:       time.Now,
		obsByID:   make(map[string]map[string]chan Event),
		obsByType: make(map[memory.MemoryType]map[string]chan TypeEvent),
	}, nil
}

// ensureSQLiteDir creates the directory for the SQLite database if it doesn't exist
func ensureSQLiteDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create sqlite directory: %w", err)
	}
	return nil
}

// Save upserts the record by id. The record is clamped in place before
// persisting. Observers of the id and its type partition are notified
// before Save returns.
func (s *GormStore) Save(ctx context.Context, r *memory.MemoryRecord) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("record id is required")
	}
	if !memory.IsValidMemoryType(r.Type) {
		return fmt.Errorf("invalid memory type %q", r.Type)
	}
	r.Clamp()
	row, err := toRow(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var priorType memory.MemoryType
	var prior memoryRow
	switch err := s.db.WithContext(ctx).Select("type").First(&prior, "id = ?", r.ID).Error; {
	case err == nil:
		priorType = memory.MemoryType(prior.Type)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return fmt.Errorf("failed to load memory %s: %w", r.ID, err)
	}

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save memory %s: %w", r.ID, err)
	}

	s.notifyRecordLocked(r.ID, r)
	s.notifyTypeLocked(r.Type)
	if priorType != "" && priorType != r.Type {
		s.notifyTypeLocked(priorType)
	}
	return nil
}

// Get returns the record for the id or memory.ErrNotFound.
func (s *GormStore) Get(ctx context.Context, id string) (*memory.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(ctx, id)
}

func (s *GormStore) getLocked(ctx context.Context, id string) (*memory.MemoryRecord, error) {
	var row memoryRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", memory.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load memory %s: %w", id, err)
	}
	return fromRow(row)
}

// ListByType returns every record in one type partition in creation order.
func (s *GormStore) ListByType(ctx context.Context, t memory.MemoryType) ([]*memory.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(ctx, string(t))
}

// ListAll returns every record across all partitions in creation order.
func (s *GormStore) ListAll(ctx context.Context) ([]*memory.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(ctx, "")
}

func (s *GormStore) listLocked(ctx context.Context, memType string) ([]*memory.MemoryRecord, error) {
	q := s.db.WithContext(ctx).Model(&memoryRow{}).Order("created, id")
	if memType != "" {
		q = q.Where("type = ?", memType)
	}
	var rows []memoryRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	records := make([]*memory.MemoryRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Query is the full-scan fallback: the type filter is pushed down to the
// database, every other filter plus sorting and truncation runs in memory.
func (s *GormStore) Query(ctx context.Context, q memory.MemoryQuery) ([]*memory.MemoryRecord, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	records, err := s.listLocked(ctx, string(q.Type))
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return memory.ApplyQuery(records, q, s.salience, s.now()), nil
}

// Delete removes the record and every association touching it, then
// notifies observers. Returns memory.ErrNotFound for unknown ids.
func (s *GormStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.getLocked(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&memoryRow{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete memory %s: %w", id, err)
	}
	if err := s.db.WithContext(ctx).Where("source_id = ? OR target_id = ?", id, id).Delete(&Association{}).Error; err != nil {
		return fmt.Errorf("failed to delete associations for %s: %w", id, err)
	}

	s.notifyRecordLocked(id, nil)
	s.notifyTypeLocked(rec.Type)
	return nil
}

// DeleteBatch removes every listed record that exists in one transaction.
// Ids that do not exist are skipped.
func (s *GormStore) DeleteBatch(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := make(map[string]memory.MemoryType)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			var row memoryRow
			if err := tx.Select("id, type").First(&row, "id = ?", id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return err
			}
			if err := tx.Delete(&memoryRow{}, "id = ?", id).Error; err != nil {
				return err
			}
			if err := tx.Where("source_id = ? OR target_id = ?", id, id).Delete(&Association{}).Error; err != nil {
				return err
			}
			deleted[id] = memory.MemoryType(row.Type)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete batch: %w", err)
	}

	types := make(map[memory.MemoryType]struct{})
	for id, t := range deleted {
		s.notifyRecordLocked(id, nil)
		types[t] = struct{}{}
	}
	for t := range types {
		s.notifyTypeLocked(t)
	}
	return nil
}

// ExportAll serializes every record, with its outbound associations, into
// one self-describing JSON array.
func (s *GormStore) ExportAll(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.listLocked(ctx, "")
	if err != nil {
		return nil, err
	}
	var assocs []Association
	if err := s.db.WithContext(ctx).Order("id").Find(&assocs).Error; err != nil {
		return nil, fmt.Errorf("failed to list associations: %w", err)
	}
	bySource := make(map[string][]exportAssociation)
	for _, a := range assocs {
		bySource[a.SourceID] = append(bySource[a.SourceID], exportAssociation{
			TargetID: a.TargetID,
			Type:     a.Type,
			Strength: a.Strength,
		})
	}

	out := make([]exportRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, exportRecord{MemoryRecord: *rec, Associations: bySource[rec.ID]})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}
	return data, nil
}

// ImportAll merges an export blob. Existing ids are overwritten; records
// that fail to decode or persist are skipped and reported without
// affecting the rest of the batch. Unknown JSON fields are ignored for
// forward compatibility.
func (s *GormStore) ImportAll(ctx context.Context, data []byte) (int, error) {
	var incoming []exportRecord
	if err := json.Unmarshal(data, &incoming); err != nil {
		return 0, fmt.Errorf("failed to parse import data: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	imported := make([]*memory.MemoryRecord, 0, len(incoming))
	types := make(map[memory.MemoryType]struct{})
	for i := range incoming {
		rec := incoming[i].MemoryRecord
		if rec.ID == "" || !memory.IsValidMemoryType(rec.Type) {
			errs = append(errs, fmt.Errorf("skipping import entry %d: missing id or invalid type", i))
			continue
		}
		rec.Clamp()
		row, err := toRow(&rec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			errs = append(errs, fmt.Errorf("failed to import %s: %w", rec.ID, err))
			continue
		}
		imported = append(imported, &rec)
		types[rec.Type] = struct{}{}
	}

	// Associations import after all records so both endpoints can exist
	// regardless of array order.
	for i := range incoming {
		src := incoming[i].ID
		if src == "" {
			continue
		}
		for _, a := range incoming[i].Associations {
			if a.TargetID == "" || a.TargetID == src {
				continue
			}
			if !s.rowExistsLocked(ctx, src) || !s.rowExistsLocked(ctx, a.TargetID) {
				continue
			}
			if _, err := s.saveAssociationLocked(ctx, src, a.TargetID, a.Type, a.Strength); err != nil {
				errs = append(errs, err)
			}
		}
	}

	for _, rec := range imported {
		s.notifyRecordLocked(rec.ID, rec)
	}
	for t := range types {
		s.notifyTypeLocked(t)
	}
	return len(imported), errors.Join(errs...)
}

// SaveAssociation records an edge between two existing records, upserting
// on the (source, target, type) key.
func (s *GormStore) SaveAssociation(ctx context.Context, sourceID, targetID, assocType string, strength float64) (*Association, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveAssociationLocked(ctx, sourceID, targetID, assocType, strength)
}

func (s *GormStore) saveAssociationLocked(ctx context.Context, sourceID, targetID, assocType string, strength float64) (*Association, error) {
	if sourceID == "" || targetID == "" {
		return nil, fmt.Errorf("association endpoints are required")
	}
	if sourceID == targetID {
		return nil, fmt.Errorf("cannot associate %s with itself", sourceID)
	}
	if assocType == "" {
		assocType = memory.AssociationRelatedTo
	}
	if !memory.IsValidAssociationType(assocType) {
		return nil, fmt.Errorf("invalid association type %q", assocType)
	}
	if strength == 0 {
		strength = 0.5
	}
	if strength < 0 {
		strength = 0
	} else if strength > 1 {
		strength = 1
	}
	if !s.rowExistsLocked(ctx, sourceID) {
		return nil, fmt.Errorf("%w: %s", memory.ErrNotFound, sourceID)
	}
	if !s.rowExistsLocked(ctx, targetID) {
		return nil, fmt.Errorf("%w: %s", memory.ErrNotFound, targetID)
	}

	assoc := Association{SourceID: sourceID, TargetID: targetID, Type: assocType, Strength: strength}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_id"}, {Name: "target_id"}, {Name: "type"}},
		DoUpdates: clause.AssignmentColumns([]string{"strength"}),
	}).Create(&assoc).Error
	if err != nil {
		return nil, fmt.Errorf("failed to save association: %w", err)
	}
	return &assoc, nil
}

func (s *GormStore) rowExistsLocked(ctx context.Context, id string) bool {
	var n int64
	if err := s.db.WithContext(ctx).Model(&memoryRow{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false
	}
	return n > 0
}

// AssociationsFor returns every edge touching the id, strongest first.
func (s *GormStore) AssociationsFor(ctx context.Context, id string) ([]*Association, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []Association
	err := s.db.WithContext(ctx).
		Where("source_id = ? OR target_id = ?", id, id).
		Order("strength DESC, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list associations for %s: %w", id, err)
	}
	out := make([]*Association, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

// ListAssociations returns every edge in the store.
func (s *GormStore) ListAssociations(ctx context.Context) ([]*Association, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []Association
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list associations: %w", err)
	}
	out := make([]*Association, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

// DeleteAssociationsFor removes every edge touching the id.
func (s *GormStore) DeleteAssociationsFor(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.WithContext(ctx).Where("source_id = ? OR target_id = ?", id, id).Delete(&Association{}).Error; err != nil {
		return fmt.Errorf("failed to delete associations for %s: %w", id, err)
	}
	return nil
}

// ReassignAssociations rewrites every edge touching fromID to touch toID
// instead, dropping edges that would become self-loops. Used when merging
// duplicate records so the survivor inherits the duplicate's graph.
func (s *GormStore) ReassignAssociations(ctx context.Context, fromID, toID string) error {
	if fromID == toID {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []Association
	if err := s.db.WithContext(ctx).Where("source_id = ? OR target_id = ?", fromID, fromID).Find(&rows).Error; err != nil {
		return fmt.Errorf("failed to load associations for %s: %w", fromID, err)
	}
	if len(rows) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("source_id = ? OR target_id = ?", fromID, fromID).Delete(&Association{}).Error; err != nil {
			return err
		}
		for _, a := range rows {
			src, dst := a.SourceID, a.TargetID
			if src == fromID {
				src = toID
			}
			if dst == fromID {
				dst = toID
			}
			if src == dst {
				continue
			}
			edge := Association{SourceID: src, TargetID: dst, Type: a.Type, Strength: a.Strength}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "source_id"}, {Name: "target_id"}, {Name: "type"}},
				DoUpdates: clause.AssignmentColumns([]string{"strength"}),
			}).Create(&edge).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reassign associations: %w", err)
	}
	return nil
}

// Close shuts every observer stream and closes the database connection.
func (s *GormStore) Close() error {
	s.mu.Lock()
	for _, chans := range s.obsByID {
		for _, ch := range chans {
			close(ch)
		}
	}
	for _, chans := range s.obsByType {
		for _, ch := range chans {
			close(ch)
		}
	}
	s.obsByID = make(map[string]map[string]chan Event)
	s.obsByType = make(map[memory.MemoryType]map[string]chan TypeEvent)
	s.mu.Unlock()

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}
