// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdb/engram/internal/memory"
)

func TestObserve_SeedsCurrentState(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, newRecord("m1", memory.TypeEpisodic, "already here")))

	sub := s.Observe("m1")
	defer sub.Unsubscribe()

	ev := <-sub.C
	assert.True(t, ev.Exists)
	require.NotNil(t, ev.Record)
	assert.Equal(t, "already here", ev.Record.Content)
}

func TestObserve_SeedsAbsent(t *testing.T) {
	s := setupTestStore(t)

	sub := s.Observe("ghost")
	defer sub.Unsubscribe()

	ev := <-sub.C
	assert.False(t, ev.Exists)
	assert.Nil(t, ev.Record)
}

func TestObserve_NotifiesBeforeSaveReturns(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	sub := s.Observe("m1")
	defer sub.Unsubscribe()

	// Drain the absent seed.
	ev := <-sub.C
	assert.False(t, ev.Exists)

	require.NoError(t, s.Save(ctx, newRecord("m1", memory.TypeEpisodic, "fresh")))

	// The event is already buffered once Save has returned.
	ev = <-sub.C
	assert.True(t, ev.Exists)
	require.NotNil(t, ev.Record)
	assert.Equal(t, "fresh", ev.Record.Content)
}

func TestObserve_NotifiesOnDelete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, newRecord("m1", memory.TypeEpisodic, "doomed")))

	sub := s.Observe("m1")
	defer sub.Unsubscribe()
	<-sub.C

	require.NoError(t, s.Delete(ctx, "m1"))

	ev := <-sub.C
	assert.False(t, ev.Exists)
	assert.Nil(t, ev.Record)
}

func TestObserve_CoalescesBurst(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	sub := s.Observe("m1")
	defer sub.Unsubscribe()

	// Three writes land before the subscriber reads anything; the stream
	// keeps only the freshest state.
	for _, content := range []string{"v1", "v2", "v3"} {
		rec := newRecord("m1", memory.TypeEpisodic, content)
		require.NoError(t, s.Save(ctx, rec))
	}

	ev := <-sub.C
	assert.True(t, ev.Exists)
	require.NotNil(t, ev.Record)
	assert.Equal(t, "v3", ev.Record.Content)
}

func TestObserve_SnapshotIsolation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, newRecord("m1", memory.TypeEpisodic, "stable")))

	sub := s.Observe("m1")
	defer sub.Unsubscribe()

	ev := <-sub.C
	require.NotNil(t, ev.Record)
	ev.Record.Content = "mutated by observer"

	got, err := s.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "stable", got.Content)
}

func TestObserveByType_TracksPartition(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, newRecord("e1", memory.TypeEpisodic, "first")))

	sub := s.ObserveByType(memory.TypeEpisodic)
	defer sub.Unsubscribe()

	ev := <-sub.C
	assert.Equal(t, memory.TypeEpisodic, ev.Type)
	require.Len(t, ev.Records, 1)

	require.NoError(t, s.Save(ctx, newRecord("e2", memory.TypeEpisodic, "second")))
	ev = <-sub.C
	assert.Len(t, ev.Records, 2)

	require.NoError(t, s.Delete(ctx, "e1"))
	ev = <-sub.C
	require.Len(t, ev.Records, 1)
	assert.Equal(t, "e2", ev.Records[0].ID)
}

func TestObserveByType_IgnoresOtherPartitions(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	sub := s.ObserveByType(memory.TypeSemantic)
	defer sub.Unsubscribe()
	<-sub.C

	require.NoError(t, s.Save(ctx, newRecord("e1", memory.TypeEpisodic, "elsewhere")))

	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected event for unrelated partition: %+v", ev)
	default:
	}
}

func TestUnsubscribe(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	sub := s.Observe("m1")
	<-sub.C

	sub.Unsubscribe()
	sub.Unsubscribe() // second call is a no-op

	_, open := <-sub.C
	assert.False(t, open)

	// Writes after unsubscribe must not panic on the closed channel.
	require.NoError(t, s.Save(ctx, newRecord("m1", memory.TypeEpisodic, "after")))
}

func TestClose_ShutsObserverStreams(t *testing.T) {
	dbPath := t.TempDir() + "/engram.db"
	s, err := Open(Config{Type: "sqlite", SQLitePath: dbPath})
	require.NoError(t, err)

	sub := s.Observe("m1")
	typeSub := s.ObserveByType(memory.TypeEpisodic)
	<-sub.C
	<-typeSub.C

	require.NoError(t, s.Close())

	_, open := <-sub.C
	assert.False(t, open)
	_, openType := <-typeSub.C
	assert.False(t, openType)

	// Unsubscribe after close stays safe.
	sub.Unsubscribe()
	typeSub.Unsubscribe()
}
