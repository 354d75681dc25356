// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package index

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdb/engram/internal/embedding"
	"github.com/engramdb/engram/internal/memory"
)

func testRecord(id, content string, entities ...string) *memory.MemoryRecord {
	return &memory.MemoryRecord{
		ID:      id,
		Type:    memory.TypeEpisodic,
		Content: content,
		Created: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		Context: memory.Context{AssociatedEntities: entities},
	}
}

func TestIndexAndStats(t *testing.T) {
	e := NewEngine(embedding.NewHashProvider(64), Config{})
	ctx := context.Background()

	require.NoError(t, e.Index(ctx, testRecord("m1", "I love hiking in the mountains", "Alice")))
	require.NoError(t, e.Index(ctx, testRecord("m2", "Python is a programming language")))

	st := e.Stats()
	assert.Equal(t, 2, st.Embeddings)
	// love, hiking, mountains, python, programming, language
	assert.Equal(t, 6, st.Keywords)
	assert.Equal(t, 1, st.Entities)
	assert.Equal(t, 1, st.DayBuckets)
	assert.Equal(t, 0, st.Clusters)
}

func TestIndex_InvalidRecord(t *testing.T) {
	e := NewEngine(nil, Config{})
	assert.Error(t, e.Index(context.Background(), nil))
	assert.Error(t, e.Index(context.Background(), &memory.MemoryRecord{Content: "no id"}))
}

func TestRemove_LeavesNoOrphans(t *testing.T) {
	e := NewEngine(embedding.NewHashProvider(64), Config{})
	ctx := context.Background()

	records := []*memory.MemoryRecord{
		testRecord("m1", "I love hiking in the mountains", "Alice"),
		testRecord("m2", "Python is a programming language"),
		testRecord("m3", "I felt joy holding my niece", "niece"),
	}
	for _, r := range records {
		require.NoError(t, e.Index(ctx, r))
	}

	e.Remove("m2")

	assert.Empty(t, e.KeywordOccurrences("python"))
	afterRemove := e.Stats()
	assert.Equal(t, 2, afterRemove.Embeddings)

	// Rebuilding from the surviving records must reproduce the exact
	// same index shape, proving the removal left nothing dangling.
	require.NoError(t, e.RebuildAll(ctx, []*memory.MemoryRecord{records[0], records[2]}))
	assert.Equal(t, afterRemove, e.Stats())
}

func TestRemove_Idempotent(t *testing.T) {
	e := NewEngine(embedding.NewHashProvider(64), Config{})
	ctx := context.Background()

	require.NoError(t, e.Index(ctx, testRecord("m1", "I love hiking in the mountains")))
	e.Remove("m1")
	e.Remove("m1")
	e.Remove("never-indexed")

	st := e.Stats()
	assert.Zero(t, st.Embeddings)
	assert.Zero(t, st.Keywords)
	assert.Zero(t, st.DayBuckets)
}

func TestReindex_ReplacesEntries(t *testing.T) {
	e := NewEngine(embedding.NewHashProvider(64), Config{})
	ctx := context.Background()

	rec := testRecord("m1", "learning the guitar")
	require.NoError(t, e.Index(ctx, rec))
	assert.Len(t, e.KeywordOccurrences("guitar"), 1)

	rec.Content = "learning the piano"
	require.NoError(t, e.Reindex(ctx, rec))

	assert.Empty(t, e.KeywordOccurrences("guitar"))
	assert.Len(t, e.KeywordOccurrences("piano"), 1)
	assert.Equal(t, 1, e.Stats().Embeddings)
}

func TestRebuildAll_EmptyInput(t *testing.T) {
	e := NewEngine(embedding.NewHashProvider(64), Config{})
	ctx := context.Background()

	require.NoError(t, e.Index(ctx, testRecord("m1", "I love hiking in the mountains")))
	require.NoError(t, e.RebuildAll(ctx, nil))

	st := e.Stats()
	assert.Zero(t, st.Embeddings)
	assert.Zero(t, st.Keywords)
	assert.Zero(t, st.Entities)
	assert.Zero(t, st.DayBuckets)
	assert.Zero(t, st.Clusters)
}

func TestRebuildAll_Cancelled(t *testing.T) {
	e := NewEngine(embedding.NewHashProvider(64), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.RebuildAll(ctx, []*memory.MemoryRecord{testRecord("m1", "anything at all")})
	assert.Error(t, err)
}

func TestKeywordOccurrences(t *testing.T) {
	e := NewEngine(nil, Config{})
	ctx := context.Background()

	require.NoError(t, e.Index(ctx, testRecord("m1", "hiking and biking trails")))
	require.NoError(t, e.Index(ctx, testRecord("m2", "hiking boots")))

	// "iking" is contained in both "hiking" and "biking".
	counts := e.KeywordOccurrences("iking")
	assert.Equal(t, 2, counts["m1"])
	assert.Equal(t, 1, counts["m2"])

	assert.Empty(t, e.KeywordOccurrences("zzz"))
	assert.Empty(t, e.KeywordOccurrences("  "))
}

func TestIndex_MergesAdditively(t *testing.T) {
	e := NewEngine(nil, Config{})
	ctx := context.Background()

	rec := testRecord("m1", "morning run")
	require.NoError(t, e.Index(ctx, rec))
	require.NoError(t, e.Index(ctx, rec))

	counts := e.KeywordOccurrences("morning")
	assert.Equal(t, 1, counts["m1"])
}
