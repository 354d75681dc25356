// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package engine

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdb/engram/internal/embedding"
	"github.com/engramdb/engram/internal/index"
	"github.com/engramdb/engram/internal/memory"
	"github.com/engramdb/engram/internal/store"
)

func setupEngine(t *testing.T) *Engine {
	t.Helper()
	st, err := store.Open(store.Config{
		Type:       "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "engram.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	idx := index.NewEngine(embedding.NewHashProvider(0), index.Config{})
	return New(st, idx, Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreateEpisodicMemory(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	rec, err := e.CreateEpisodicMemory(ctx, "Went hiking in the mountains", 70,
		[]string{"mountains"}, map[string]string{"tags": "outdoors"})
	require.NoError(t, err)

	assert.Len(t, rec.ID, 26)
	assert.Equal(t, memory.TypeEpisodic, rec.Type)
	assert.Equal(t, 0.8, rec.Certainty)
	assert.Equal(t, 0.2, rec.EmotionalIntensity)
	assert.Equal(t, 70.0, rec.Priority)
	assert.True(t, rec.HasEntity("Mountains"))
	assert.True(t, rec.HasTag("outdoors"))
	assert.Equal(t, rec.Created, rec.LastAccessed)
	assert.Equal(t, rec.Created, rec.LastConsolidated)

	stored, err := e.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Content, stored.Content)
}

func TestCreateMemory_TypeDefaults(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	sem, err := e.CreateSemanticMemory(ctx, "Paris is the capital of France", 0.7, 50, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, memory.TypeSemantic, sem.Type)
	assert.Equal(t, 0.7, sem.Certainty)

	emo, err := e.CreateEmotionalMemory(ctx, "Felt proud after the concert", 0.8, 0.9, 50, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, memory.TypeEmotional, emo.Type)
	assert.Equal(t, 0.9, emo.Certainty)
	assert.Equal(t, 0.8, emo.EmotionalValence)
	assert.Equal(t, 0.9, emo.EmotionalIntensity)

	pro, err := e.CreateProceduralMemory(ctx, "Restart the router before calling support", 50, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, memory.TypeProcedural, pro.Type)
	assert.Equal(t, 0.95, pro.Certainty)
}

func TestCreateMemory_EmptyContent(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	_, err := e.CreateEpisodicMemory(ctx, "   ", 50, nil, nil)
	assert.Error(t, err)
	_, err = e.CreateSemanticMemory(ctx, "", 0.5, 50, nil, nil)
	assert.Error(t, err)
}

func TestCreateMemory_ClampsInputs(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	rec, err := e.CreateEmotionalMemory(ctx, "Overwhelmed by the surprise party", 5, -3, 500, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, rec.EmotionalValence)
	assert.Equal(t, 0.0, rec.EmotionalIntensity)
	assert.Equal(t, 100.0, rec.Priority)
}

func TestQuery_TextWithFilters(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	_, err := e.CreateEpisodicMemory(ctx, "Went hiking in the mountains with Sarah", 60, nil, nil)
	require.NoError(t, err)
	_, err = e.CreateSemanticMemory(ctx, "Python generators yield values lazily", 0.9, 50, nil, nil)
	require.NoError(t, err)
	emo, err := e.CreateEmotionalMemory(ctx, "Felt pure joy watching the sunrise", 0.9, 0.8, 80, nil, nil)
	require.NoError(t, err)

	got, err := e.Query(ctx, memory.MemoryQuery{
		Text:   "joy",
		Type:   memory.TypeEmotional,
		SortBy: memory.SortByPriority,
		Limit:  1,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, emo.ID, got[0].ID)
}

func TestQuery_TextOnlyExcludesNonMatching(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	unrelated := []string{
		"Cleaned the garage over the weekend",
		"Booked the dentist appointment for Tuesday",
		"Rewrote the deployment script",
		"Bought groceries for the week",
		"Fixed the leaking kitchen faucet",
		"Reviewed the quarterly budget numbers",
		"Walked the dog around the block twice",
		"Sorted through old tax paperwork",
	}
	for _, content := range unrelated {
		_, err := e.CreateEpisodicMemory(ctx, content, 80, nil, nil)
		require.NoError(t, err)
	}
	joy, err := e.CreateEpisodicMemory(ctx, "I felt joy holding my niece", 40, nil, nil)
	require.NoError(t, err)

	// No type filter and the default salience sort: only records that
	// actually contain the text may come back, regardless of how the
	// index ranked its candidates.
	got, err := e.Query(ctx, memory.MemoryQuery{Text: "joy"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, joy.ID, got[0].ID)
}

func TestQuery_AttributeOnly(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	low, err := e.CreateEpisodicMemory(ctx, "Watered the plants", 20, nil, nil)
	require.NoError(t, err)
	high, err := e.CreateEpisodicMemory(ctx, "Signed the apartment lease", 90, nil, nil)
	require.NoError(t, err)

	got, err := e.Query(ctx, memory.MemoryQuery{
		Type:   memory.TypeEpisodic,
		SortBy: memory.SortByPriority,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, high.ID, got[0].ID)
	assert.Equal(t, low.ID, got[1].ID)
}

func TestQuery_Invalid(t *testing.T) {
	e := setupEngine(t)

	_, err := e.Query(context.Background(), memory.MemoryQuery{Type: "DREAM"})
	assert.Error(t, err)
}

func TestReinforce(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	rec, err := e.CreateSemanticMemory(ctx, "The library closes at nine", 0.8, 50, nil, nil)
	require.NoError(t, err)
	created := rec.LastAccessed

	first, err := e.Reinforce(ctx, rec.ID, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.5, first.ReinforcementScore)
	assert.Equal(t, 1, first.AccessCount)
	assert.False(t, first.LastAccessed.Before(created))

	second, err := e.Reinforce(ctx, rec.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, memory.MaxReinforcement, second.ReinforcementScore)
	assert.Equal(t, 2, second.AccessCount)

	stored, err := e.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, memory.MaxReinforcement, stored.ReinforcementScore)
}

func TestReinforce_KeepsRecordIndexed(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	rec, err := e.CreateSemanticMemory(ctx, "The library closes at nine", 0.8, 50, nil, nil)
	require.NoError(t, err)

	_, err = e.Reinforce(ctx, rec.ID, 1)
	require.NoError(t, err)

	got, err := e.Query(ctx, memory.MemoryQuery{Text: "library closes"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
}

func TestReinforce_NotFound(t *testing.T) {
	e := setupEngine(t)

	_, err := e.Reinforce(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestConnect_AndRelatedMemories(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	a, err := e.CreateEpisodicMemory(ctx, "Morning hike along the coastal trail", 50, nil, nil)
	require.NoError(t, err)
	b, err := e.CreateSemanticMemory(ctx, "Python generators yield values lazily", 0.9, 50, nil, nil)
	require.NoError(t, err)
	c, err := e.CreateProceduralMemory(ctx, "Always stretch before climbing", 50, nil, nil)
	require.NoError(t, err)
	d, err := e.CreateEpisodicMemory(ctx, "Morning hike along the coastal trail", 50, nil, nil)
	require.NoError(t, err)

	_, err = e.Connect(ctx, a.ID, b.ID, memory.AssociationFollows, 0.9)
	require.NoError(t, err)
	_, err = e.Connect(ctx, a.ID, c.ID, "", 0.6)
	require.NoError(t, err)

	related, err := e.RelatedMemories(ctx, a.ID, 10)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(related), 3)

	// Explicit associations come first, strongest first; the embedding
	// neighbor fills the remainder.
	assert.Equal(t, b.ID, related[0].ID)
	assert.Equal(t, c.ID, related[1].ID)
	ids := make([]string, 0, len(related))
	for _, r := range related {
		ids = append(ids, r.ID)
	}
	assert.Contains(t, ids, d.ID)
	assert.NotContains(t, ids, a.ID)
}

func TestRelatedMemories_Limit(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	a, err := e.CreateEpisodicMemory(ctx, "Tried the new ramen place downtown", 50, nil, nil)
	require.NoError(t, err)
	b, err := e.CreateEpisodicMemory(ctx, "Booked flights for the spring trip", 50, nil, nil)
	require.NoError(t, err)
	c, err := e.CreateEpisodicMemory(ctx, "Lost the spare house key", 50, nil, nil)
	require.NoError(t, err)

	_, err = e.Connect(ctx, a.ID, b.ID, "", 0.9)
	require.NoError(t, err)
	_, err = e.Connect(ctx, a.ID, c.ID, "", 0.4)
	require.NoError(t, err)

	related, err := e.RelatedMemories(ctx, a.ID, 1)
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, b.ID, related[0].ID)
}

func TestRelatedMemories_NotFound(t *testing.T) {
	e := setupEngine(t)

	_, err := e.RelatedMemories(context.Background(), "missing", 5)
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestMemoryChains(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	a, err := e.CreateEpisodicMemory(ctx, "Long ride through the river valley", 50, nil, nil)
	require.NoError(t, err)
	b, err := e.CreateEpisodicMemory(ctx, "Long ride through the river valley", 50, nil, nil)
	require.NoError(t, err)

	chains, err := e.MemoryChains(ctx, a.ID, 2)
	require.NoError(t, err)
	require.Len(t, chains, 1)
	assert.Equal(t, []string{a.ID, b.ID}, chains[0])

	_, err = e.MemoryChains(ctx, "missing", 2)
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestForget(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	rec, err := e.CreateEpisodicMemory(ctx, "Parked on level three of the garage", 50, nil, nil)
	require.NoError(t, err)

	require.NoError(t, e.Forget(ctx, rec.ID))

	_, err = e.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, memory.ErrNotFound)

	got, err := e.Query(ctx, memory.MemoryQuery{Text: "garage parked level"})
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.ErrorIs(t, e.Forget(ctx, rec.ID), memory.ErrNotFound)
}

func TestForgetBatch(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	r1, err := e.CreateEpisodicMemory(ctx, "Dropped the package at the post office", 50, nil, nil)
	require.NoError(t, err)
	r2, err := e.CreateEpisodicMemory(ctx, "Renewed the gym membership", 50, nil, nil)
	require.NoError(t, err)

	require.NoError(t, e.ForgetBatch(ctx, []string{r1.ID, "missing", r2.ID}))

	_, err = e.Get(ctx, r1.ID)
	assert.ErrorIs(t, err, memory.ErrNotFound)
	_, err = e.Get(ctx, r2.ID)
	assert.ErrorIs(t, err, memory.ErrNotFound)
	assert.Zero(t, e.index.Stats().Embeddings)
}

func TestStats(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	a, err := e.CreateEpisodicMemory(ctx, "Went hiking in the mountains", 50, []string{"mountains"}, nil)
	require.NoError(t, err)
	b, err := e.CreateEpisodicMemory(ctx, "Biked to the farmers market", 50, nil, nil)
	require.NoError(t, err)
	_, err = e.CreateSemanticMemory(ctx, "Sourdough needs a mature starter", 0.9, 50, nil, nil)
	require.NoError(t, err)
	_, err = e.Connect(ctx, a.ID, b.ID, "", 0.8)
	require.NoError(t, err)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats["totalMemories"])
	assert.Equal(t, map[string]int{"episodic": 2, "semantic": 1}, stats["memoriesByType"])
	assert.Equal(t, 1, stats["associations"])
	assert.Equal(t, 3, stats["indexedEmbeddings"])
}

func TestExportImport_AcrossEngines(t *testing.T) {
	src := setupEngine(t)
	ctx := context.Background()

	a, err := src.CreateEpisodicMemory(ctx, "Went hiking in the mountains with Sarah", 60, []string{"Sarah"}, nil)
	require.NoError(t, err)
	b, err := src.CreateEmotionalMemory(ctx, "Felt pure joy watching the sunrise", 0.9, 0.8, 80, nil, nil)
	require.NoError(t, err)
	_, err = src.Connect(ctx, a.ID, b.ID, memory.AssociationReinforces, 0.7)
	require.NoError(t, err)

	data, err := src.ExportAll(ctx)
	require.NoError(t, err)

	dst := setupEngine(t)
	count, err := dst.ImportAll(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// The import rebuilt the index, so text retrieval works immediately.
	got, err := dst.Query(ctx, memory.MemoryQuery{Text: "joy sunrise"})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, b.ID, got[0].ID)

	related, err := dst.RelatedMemories(ctx, a.ID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, related)
	assert.Equal(t, b.ID, related[0].ID)
}

func TestRebuildIndex(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	_, err := e.CreateEpisodicMemory(ctx, "Went hiking in the mountains", 50, nil, nil)
	require.NoError(t, err)
	_, err = e.CreateSemanticMemory(ctx, "Python generators yield values lazily", 0.9, 50, nil, nil)
	require.NoError(t, err)

	result, err := e.RebuildIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RecordsProcessed)
	assert.Equal(t, 2, result.EmbeddingsStored)
	assert.Zero(t, result.ClustersFormed)
}
