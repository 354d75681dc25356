// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package archive

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/engramdb/engram/internal/memory"
)

// frontmatter is the YAML header of one archived memory file. Keys
// mirror the record's JSON field names so the two serialized forms read
// the same.
type frontmatter struct {
	ID                 string            `yaml:"id"`
	Type               string            `yaml:"type"`
	Created            time.Time         `yaml:"created"`
	LastAccessed       time.Time         `yaml:"lastAccessed,omitempty"`
	LastConsolidated   time.Time         `yaml:"lastConsolidated,omitempty"`
	Priority           float64           `yaml:"priority"`
	Certainty          float64           `yaml:"certainty"`
	EmotionalValence   float64           `yaml:"emotionalValence,omitempty"`
	EmotionalIntensity float64           `yaml:"emotionalIntensity,omitempty"`
	ReinforcementScore float64           `yaml:"reinforcementScore,omitempty"`
	AccessCount        int               `yaml:"accessCount,omitempty"`
	Metadata           map[string]string `yaml:"metadata,omitempty"`
	Entities           []string          `yaml:"entities,omitempty"`
}

// ToMarkdown renders a record as markdown with YAML frontmatter
func ToMarkdown(rec *memory.MemoryRecord) (string, error) {
	fm := frontmatter{
		ID:                 rec.ID,
		Type:               string(rec.Type),
		Created:            rec.Created,
		LastAccessed:       rec.LastAccessed,
		LastConsolidated:   rec.LastConsolidated,
		Priority:           rec.Priority,
		Certainty:          rec.Certainty,
		EmotionalValence:   rec.EmotionalValence,
		EmotionalIntensity: rec.EmotionalIntensity,
		ReinforcementScore: rec.ReinforcementScore,
		AccessCount:        rec.AccessCount,
		Metadata:           rec.Metadata,
		Entities:           rec.Context.AssociatedEntities,
	}

	var buf bytes.Buffer

	// Write frontmatter
	buf.WriteString("---\n")

	frontmatterData, err := yaml.Marshal(&fm)
	if err != nil {
		return "", fmt.Errorf("failed to marshal frontmatter: %w", err)
	}

	buf.Write(frontmatterData)
	buf.WriteString("---\n\n")

	// Write content
	buf.WriteString(rec.Content)
	buf.WriteString("\n")

	return buf.String(), nil
}

// ParseMarkdown parses an archived memory file back into a record
func ParseMarkdown(content string) (*memory.MemoryRecord, error) {
	header, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, fmt.Errorf("failed to split frontmatter: %w", err)
	}
	if header == "" {
		return nil, fmt.Errorf("missing frontmatter")
	}

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}
	if fm.ID == "" {
		return nil, fmt.Errorf("frontmatter is missing an id")
	}
	memType, err := memory.ParseMemoryType(fm.Type)
	if err != nil {
		return nil, err
	}

	return &memory.MemoryRecord{
		ID:                 fm.ID,
		Type:               memType,
		Content:            strings.TrimSpace(body),
		Created:            fm.Created,
		LastAccessed:       fm.LastAccessed,
		LastConsolidated:   fm.LastConsolidated,
		Priority:           fm.Priority,
		Certainty:          fm.Certainty,
		EmotionalValence:   fm.EmotionalValence,
		EmotionalIntensity: fm.EmotionalIntensity,
		ReinforcementScore: fm.ReinforcementScore,
		AccessCount:        fm.AccessCount,
		Metadata:           fm.Metadata,
		Context:            memory.Context{AssociatedEntities: fm.Entities},
	}, nil
}

// splitFrontmatter splits markdown content into frontmatter and body
func splitFrontmatter(content string) (string, string, error) {
	content = strings.TrimSpace(content)

	// Check if content starts with ---
	if !strings.HasPrefix(content, "---") {
		// No frontmatter
		return "", content, nil
	}

	lines := strings.Split(content, "\n")
	if len(lines) < 3 {
		return "", content, nil
	}

	// Find closing delimiter
	closingIndex := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			closingIndex = i
			break
		}
	}

	if closingIndex == -1 {
		return "", content, fmt.Errorf("frontmatter not properly closed")
	}

	header := strings.Join(lines[1:closingIndex], "\n")

	body := ""
	if closingIndex+1 < len(lines) {
		body = strings.Join(lines[closingIndex+1:], "\n")
	}

	return header, body, nil
}
