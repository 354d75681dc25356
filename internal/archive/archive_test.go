// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package archive

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdb/engram/internal/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRecord() *memory.MemoryRecord {
	created := time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)
	return &memory.MemoryRecord{
		ID:                 "01JWMEM0000000000000000001",
		Type:               memory.TypeEpisodic,
		Content:            "Went hiking in the mountains with Sarah.\n\nThe trail was muddy after the rain.",
		Created:            created,
		LastAccessed:       created.Add(2 * time.Hour),
		LastConsolidated:   created,
		Priority:           70,
		Certainty:          0.8,
		EmotionalValence:   0.5,
		EmotionalIntensity: 0.4,
		ReinforcementScore: 1.5,
		AccessCount:        3,
		Metadata:           map[string]string{"tags": "outdoors,friends"},
		Context:            memory.Context{AssociatedEntities: []string{"Sarah", "mountains"}},
	}
}

func TestToMarkdown(t *testing.T) {
	doc, err := ToMarkdown(sampleRecord())
	require.NoError(t, err)

	assert.True(t, len(doc) > 0)
	assert.Contains(t, doc, "---\n")
	assert.Contains(t, doc, "id: 01JWMEM0000000000000000001")
	assert.Contains(t, doc, "type: EPISODIC")
	assert.Contains(t, doc, "Went hiking in the mountains with Sarah.")
	assert.Contains(t, doc, "The trail was muddy after the rain.")
}

func TestParseMarkdown_RoundTrip(t *testing.T) {
	rec := sampleRecord()
	doc, err := ToMarkdown(rec)
	require.NoError(t, err)

	got, err := ParseMarkdown(doc)
	require.NoError(t, err)

	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Type, got.Type)
	assert.Equal(t, rec.Content, got.Content)
	assert.WithinDuration(t, rec.Created, got.Created, time.Second)
	assert.WithinDuration(t, rec.LastAccessed, got.LastAccessed, time.Second)
	assert.Equal(t, rec.Priority, got.Priority)
	assert.Equal(t, rec.Certainty, got.Certainty)
	assert.Equal(t, rec.EmotionalValence, got.EmotionalValence)
	assert.Equal(t, rec.ReinforcementScore, got.ReinforcementScore)
	assert.Equal(t, rec.AccessCount, got.AccessCount)
	assert.Equal(t, rec.Metadata, got.Metadata)
	assert.Equal(t, rec.Context.AssociatedEntities, got.Context.AssociatedEntities)
}

func TestParseMarkdown_HandWritten(t *testing.T) {
	content := `---
id: note-001
type: semantic
created: 2024-01-15T10:30:00Z
priority: 40
certainty: 0.9
metadata:
  tags: reference
entities:
  - Python
---

Python generators yield values lazily.
`

	rec, err := ParseMarkdown(content)
	require.NoError(t, err)
	assert.Equal(t, "note-001", rec.ID)
	assert.Equal(t, memory.TypeSemantic, rec.Type)
	assert.Equal(t, 40.0, rec.Priority)
	assert.Equal(t, 0.9, rec.Certainty)
	assert.True(t, rec.HasTag("reference"))
	assert.True(t, rec.HasEntity("python"))
	assert.Equal(t, "Python generators yield values lazily.", rec.Content)
}

func TestParseMarkdown_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "no frontmatter",
			content: "# Just Content\n\nNo frontmatter here.\n",
		},
		{
			name:    "unclosed frontmatter",
			content: "---\nid: test\ntype: EPISODIC\n\nContent without closing fence.\n",
		},
		{
			name:    "missing id",
			content: "---\ntype: EPISODIC\n---\n\nContent.\n",
		},
		{
			name:    "invalid type",
			content: "---\nid: x\ntype: DREAM\n---\n\nContent.\n",
		},
		{
			name:    "malformed yaml",
			content: "---\nid: [broken\n---\n\nContent.\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMarkdown(tt.content)
			assert.Error(t, err)
		})
	}
}

func TestGenerateSlug(t *testing.T) {
	created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{
			name:     "simple content",
			content:  "Went hiking in the mountains",
			expected: "went-hiking-in-the-mountains-2025-06-01",
		},
		{
			name:     "truncates to leading words",
			content:  "Went hiking in the mountains with Sarah and the dog",
			expected: "went-hiking-in-the-mountains-with-2025-06-01",
		},
		{
			name:     "strips punctuation",
			content:  "Python 3.12: what's new?",
			expected: "python-312-whats-new-2025-06-01",
		},
		{
			name:     "empty content",
			content:  "   ",
			expected: "memory-2025-06-01",
		},
		{
			name:     "symbols only",
			content:  "!!! ???",
			expected: "memory-2025-06-01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GenerateSlug(tt.content, created))
		})
	}
}

func TestGenerateSlug_CapsLength(t *testing.T) {
	created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	long := "Supercalifragilisticexpialidocious antidisestablishmentarianism incomprehensibilities uncharacteristically electroencephalographically"

	slug := GenerateSlug(long, created)
	assert.LessOrEqual(t, len(slug), slugMaxLen+len("-2025-06-01"))
	assert.Contains(t, slug, "-2025-06-01")
}

func TestWriteSnapshot_GroupsByType(t *testing.T) {
	root := t.TempDir()
	a := New(root, testLogger())

	epi := sampleRecord()
	sem := sampleRecord()
	sem.ID = "01JWMEM0000000000000000002"
	sem.Type = memory.TypeSemantic
	sem.Content = "Paris is the capital of France"

	count, err := a.WriteSnapshot([]*memory.MemoryRecord{epi, sem})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	epiFiles, err := filepath.Glob(filepath.Join(root, "episodic", "*.md"))
	require.NoError(t, err)
	assert.Len(t, epiFiles, 1)

	semFiles, err := filepath.Glob(filepath.Join(root, "semantic", "*.md"))
	require.NoError(t, err)
	assert.Len(t, semFiles, 1)
	assert.Contains(t, semFiles[0], "paris-is-the-capital-of-france")
}

func TestSnapshot_RoundTrip(t *testing.T) {
	root := t.TempDir()
	a := New(root, testLogger())

	r1 := sampleRecord()
	r2 := sampleRecord()
	r2.ID = "01JWMEM0000000000000000002"
	r2.Type = memory.TypeProcedural
	r2.Content = "Restart the router before calling support"

	_, err := a.WriteSnapshot([]*memory.MemoryRecord{r1, r2})
	require.NoError(t, err)

	records, err := a.ReadSnapshot()
	require.NoError(t, err)
	require.Len(t, records, 2)

	byID := make(map[string]*memory.MemoryRecord, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}
	require.Contains(t, byID, r1.ID)
	require.Contains(t, byID, r2.ID)
	assert.Equal(t, r1.Content, byID[r1.ID].Content)
	assert.Equal(t, memory.TypeProcedural, byID[r2.ID].Type)
}

func TestReadSnapshot_SkipsBadFiles(t *testing.T) {
	root := t.TempDir()
	a := New(root, testLogger())

	_, err := a.WriteSnapshot([]*memory.MemoryRecord{sampleRecord()})
	require.NoError(t, err)

	junk := filepath.Join(root, "episodic", "notes.md")
	require.NoError(t, os.WriteFile(junk, []byte("no frontmatter at all"), 0644))

	records, err := a.ReadSnapshot()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestReadSnapshot_MissingRoot(t *testing.T) {
	a := New(filepath.Join(t.TempDir(), "absent"), testLogger())

	_, err := a.ReadSnapshot()
	assert.Error(t, err)
}
