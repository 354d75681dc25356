// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/engramdb/engram/internal/memory"
)

// Event is a snapshot of one record's state pushed to id observers.
// Record is nil when the record does not exist.
type Event struct {
	ID     string
	Record *memory.MemoryRecord
	Exists bool
}

// TypeEvent is a snapshot of one type partition pushed to type observers.
type TypeEvent struct {
	Type    memory.MemoryType
	Records []*memory.MemoryRecord
}

// Subscription is a live observation of a single record id. The channel
// carries the current state at subscription time followed by one event
// per mutation. Slow consumers are coalesced toward the freshest state,
// never blocked on.
type Subscription struct {
	C    <-chan Event
	stop func()
}

// Unsubscribe detaches the observer and closes its channel. Safe to call
// more than once.
func (s *Subscription) Unsubscribe() {
	s.stop()
}

// TypeSubscription is a live observation of one type partition.
type TypeSubscription struct {
	C    <-chan TypeEvent
	stop func()
}

// Unsubscribe detaches the observer and closes its channel. Safe to call
// more than once.
func (s *TypeSubscription) Unsubscribe() {
	s.stop()
}

// Observe opens a live stream over one record id, seeded with the current
// state so a subscriber never begins stale.
func (s *GormStore) Observe(id string) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Event, 1)
	token := uuid.NewString()
	if s.obsByID[id] == nil {
		s.obsByID[id] = make(map[string]chan Event)
	}
	s.obsByID[id][token] = ch

	rec, err := s.getLocked(context.Background(), id)
	if err != nil && !errors.Is(err, memory.ErrNotFound) {
		s.logger.Warn("failed to seed observer", "id", id, "error", err)
	}
	push(ch, Event{ID: id, Record: rec, Exists: rec != nil})

	return &Subscription{
		C: ch,
		stop: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			chans := s.obsByID[id]
			if c, ok := chans[token]; ok {
				delete(chans, token)
				close(c)
				if len(chans) == 0 {
					delete(s.obsByID, id)
				}
			}
		},
	}
}

// ObserveByType opens a live stream over one type partition, seeded with
// the current partition contents.
func (s *GormStore) ObserveByType(t memory.MemoryType) *TypeSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan TypeEvent, 1)
	token := uuid.NewString()
	if s.obsByType[t] == nil {
		s.obsByType[t] = make(map[string]chan TypeEvent)
	}
	s.obsByType[t][token] = ch

	records, err := s.listLocked(context.Background(), string(t))
	if err != nil {
		s.logger.Warn("failed to seed type observer", "type", t, "error", err)
	}
	push(ch, TypeEvent{Type: t, Records: records})

	return &TypeSubscription{
		C: ch,
		stop: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			chans := s.obsByType[t]
			if c, ok := chans[token]; ok {
				delete(chans, token)
				close(c)
				if len(chans) == 0 {
					delete(s.obsByType, t)
				}
			}
		},
	}
}

// notifyRecordLocked pushes the record's new state (nil for deletion) to
// every observer of the id. Caller must hold the write lock.
func (s *GormStore) notifyRecordLocked(id string, rec *memory.MemoryRecord) {
	chans := s.obsByID[id]
	if len(chans) == 0 {
		return
	}
	for _, ch := range chans {
		push(ch, Event{ID: id, Record: rec.Clone(), Exists: rec != nil})
	}
}

// notifyTypeLocked re-reads the partition and pushes the fresh list to
// every observer of the type. Caller must hold the write lock.
func (s *GormStore) notifyTypeLocked(t memory.MemoryType) {
	chans := s.obsByType[t]
	if len(chans) == 0 {
		return
	}
	records, err := s.listLocked(context.Background(), string(t))
	if err != nil {
		s.logger.Warn("failed to load partition for observers", "type", t, "error", err)
		return
	}
	for _, ch := range chans {
		snapshot := make([]*memory.MemoryRecord, len(records))
		for i, r := range records {
			snapshot[i] = r.Clone()
		}
		push(ch, TypeEvent{Type: t, Records: snapshot})
	}
}

// push delivers without blocking, coalescing toward the freshest event
// when the subscriber's buffer is full: the oldest buffered entry is
// dropped to make room.
func push[T any](ch chan T, ev T) {
	for {
		select {
		case ch <- ev:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
