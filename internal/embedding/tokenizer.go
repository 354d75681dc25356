// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package embedding

import (
	"strings"
	"unicode"
)

// stopwords are high-frequency function words excluded from tokenization.
// Only words of three or more characters appear here; shorter words are
// dropped unconditionally by Tokenize.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"had": {}, "has": {}, "have": {}, "was": {}, "were": {}, "been": {},
	"being": {}, "with": {}, "that": {}, "this": {}, "these": {}, "those": {},
	"from": {}, "they": {}, "them": {}, "their": {}, "then": {}, "than": {},
	"there": {}, "here": {}, "what": {}, "when": {}, "where": {}, "which": {},
	"while": {}, "will": {}, "would": {}, "could": {}, "should": {},
	"into": {}, "onto": {}, "over": {}, "under": {}, "about": {},
	"after": {}, "before": {}, "between": {}, "through": {}, "during": {},
	"each": {}, "some": {}, "such": {}, "only": {}, "very": {}, "just": {},
	"also": {}, "because": {}, "both": {}, "more": {}, "most": {},
	"other": {}, "your": {}, "yours": {}, "him": {}, "her": {}, "his": {},
	"hers": {}, "she": {}, "its": {}, "itself": {}, "you": {}, "who": {},
	"whom": {}, "does": {}, "doing": {}, "done": {}, "can": {}, "cannot": {},
	"any": {}, "all": {}, "how": {}, "why": {}, "out": {}, "off": {},
	"again": {}, "once": {}, "same": {}, "too": {},
}

// Tokenize lowercases the text, splits it on non-alphanumeric runes, and
// drops tokens of two characters or fewer along with stopwords. Duplicate
// tokens are preserved in order; callers needing set semantics dedupe on
// their side.
func Tokenize(text string) []string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(' ')
		}
	}
	words := strings.Fields(b.String())
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) <= 2 {
			continue
		}
		if _, skip := stopwords[w]; skip {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}
