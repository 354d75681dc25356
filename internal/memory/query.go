// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package memory

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
)

// SortCriterion selects the ranking applied to query results.
type SortCriterion string

// Sort criterion constants
const (
	SortBySalience  SortCriterion = "SALIENCE"
	SortByRecency   SortCriterion = "RECENCY"
	SortByPriority  SortCriterion = "PRIORITY"
	SortByEmotional SortCriterion = "EMOTIONAL"
	SortByRelevance SortCriterion = "RELEVANCE"
)

// ValidSortCriteria returns all valid sort criterion values
func ValidSortCriteria() []SortCriterion {
	return []SortCriterion{
		SortBySalience,
		SortByRecency,
		SortByPriority,
		SortByEmotional,
		SortByRelevance,
	}
}

// IsValidSortCriterion checks if a sort criterion is valid
func IsValidSortCriterion(c SortCriterion) bool {
	for _, valid := range ValidSortCriteria() {
		if c == valid {
			return true
		}
	}
	return false
}

// EmotionalRange bounds a record's emotional valence, both ends inclusive.
type EmotionalRange struct {
	Min float64
	Max float64
}

// MemoryQuery is an immutable value object describing one retrieval.
// Zero-valued fields apply no filter. All set filters combine with AND
// semantics.
type MemoryQuery struct {
	Type             MemoryType
	Text             string
	MinCertainty     float64
	Emotional        *EmotionalRange
	From             time.Time
	To               time.Time
	Tags             []string
	Entities         []string
	MinReinforcement float64
	SortBy           SortCriterion
	Limit            int
}

// Validate rejects malformed queries. A malformed query is a programming
// contract violation, not an expected failure mode.
func (q MemoryQuery) Validate() error {
	if q.Type != "" && !IsValidMemoryType(q.Type) {
		return fmt.Errorf("invalid memory type %q", q.Type)
	}
	if q.SortBy != "" && !IsValidSortCriterion(q.SortBy) {
		return fmt.Errorf("invalid sort criterion %q", q.SortBy)
	}
	if q.Emotional != nil && q.Emotional.Min > q.Emotional.Max {
		return fmt.Errorf("emotional range min %.2f exceeds max %.2f", q.Emotional.Min, q.Emotional.Max)
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.From.After(q.To) {
		return fmt.Errorf("temporal range start is after end")
	}
	return nil
}

// MatchesFilters reports whether the record satisfies every attribute
// filter of the query (type, certainty, emotion, time, tags, entities,
// reinforcement). The free-text filter is evaluated separately so that
// index-driven retrieval can substitute for it.
func (q MemoryQuery) MatchesFilters(r *MemoryRecord) bool {
	if q.Type != "" && r.Type != q.Type {
		return false
	}
	if r.Certainty < q.MinCertainty {
		return false
	}
	if q.Emotional != nil {
		if r.EmotionalValence < q.Emotional.Min || r.EmotionalValence > q.Emotional.Max {
			return false
		}
	}
	if !q.From.IsZero() && r.Created.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && r.Created.After(q.To) {
		return false
	}
	for _, tag := range q.Tags {
		if !r.HasTag(tag) {
			return false
		}
	}
	for _, entity := range q.Entities {
		if !r.HasEntity(entity) {
			return false
		}
	}
	if r.ReinforcementScore < q.MinReinforcement {
		return false
	}
	return true
}

// MatchesText reports whether the record's content contains the query's
// free text (case-insensitive). True when the query carries no text.
func (q MemoryQuery) MatchesText(r *MemoryRecord) bool {
	if q.Text == "" {
		return true
	}
	return strings.Contains(strings.ToLower(r.Content), strings.ToLower(q.Text))
}

// Matches reports whether the record satisfies every filter predicate of
// the query simultaneously.
func (q MemoryQuery) Matches(r *MemoryRecord) bool {
	return q.MatchesFilters(r) && q.MatchesText(r)
}

// RelevanceScore counts case-insensitive whole-word occurrences of each
// query term in the content and returns the summed count.
func RelevanceScore(content, text string) int {
	terms := splitWords(text)
	if len(terms) == 0 {
		return 0
	}
	counts := make(map[string]int)
	for _, w := range splitWords(content) {
		counts[w]++
	}
	score := 0
	for _, t := range terms {
		score += counts[t]
	}
	return score
}

// splitWords lowercases the input and splits it into alphanumeric words.
func splitWords(s string) []string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

// SortRecords orders records in place by the given criterion, descending.
// RELEVANCE without free text degrades to SALIENCE. Ties fall back to the
// secondary key below, then to the incoming order (the sort is stable).
func SortRecords(records []*MemoryRecord, by SortCriterion, text string, w SalienceWeights, now time.Time) {
	if by == "" {
		by = SortBySalience
	}
	if by == SortByRelevance && strings.TrimSpace(text) == "" {
		by = SortBySalience
	}
	primary := make([]float64, len(records))
	secondary := make([]float64, len(records))
	for i, r := range records {
		switch by {
		case SortByRecency:
			accessed := r.LastAccessed
			if accessed.IsZero() {
				accessed = r.Created
			}
			primary[i] = float64(accessed.UnixNano())
			secondary[i] = float64(r.Created.UnixNano())
		case SortByPriority:
			primary[i] = r.Priority
			secondary[i] = Salience(r, w, now)
		case SortByEmotional:
			primary[i] = r.EmotionalIntensity
			secondary[i] = mathAbs(r.EmotionalValence)
		case SortByRelevance:
			primary[i] = float64(RelevanceScore(r.Content, text))
			secondary[i] = Salience(r, w, now)
		default:
			primary[i] = Salience(r, w, now)
			accessed := r.LastAccessed
			if accessed.IsZero() {
				accessed = r.Created
			}
			secondary[i] = float64(accessed.UnixNano())
		}
	}
	idx := make([]int, len(records))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if primary[idx[a]] != primary[idx[b]] {
			return primary[idx[a]] > primary[idx[b]]
		}
		return secondary[idx[a]] > secondary[idx[b]]
	})
	sorted := make([]*MemoryRecord, len(records))
	for i, j := range idx {
		sorted[i] = records[j]
	}
	copy(records, sorted)
}

// ApplyQuery is the full filter-and-sort pass: every filter is applied
// with AND semantics, results are sorted by the requested criterion and
// truncated to the limit. This is the single code path both the store's
// fallback scan and the orchestrator's finalize step run through.
func ApplyQuery(records []*MemoryRecord, q MemoryQuery, w SalienceWeights, now time.Time) []*MemoryRecord {
	out := make([]*MemoryRecord, 0, len(records))
	for _, r := range records {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	SortRecords(out, q.SortBy, q.Text, w, now)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func mathAbs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
