// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package archive

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// slugWordLimit caps how many leading content words feed the slug.
	slugWordLimit = 6
	// slugMaxLen caps the slug body before the date suffix.
	slugMaxLen = 60
)

var (
	// slugRegex matches characters that should be dropped from slugs
	slugRegex = regexp.MustCompile(`[^a-z0-9\s-]`)
	// multiSpaceRegex matches runs of spaces and dashes
	multiSpaceRegex = regexp.MustCompile(`[\s-]+`)
)

// GenerateSlug derives a human-readable filename stem from the leading
// words of the content, suffixed with the creation date.
func GenerateSlug(content string, created time.Time) string {
	words := strings.Fields(content)
	if len(words) > slugWordLimit {
		words = words[:slugWordLimit]
	}

	slug := strings.ToLower(strings.Join(words, " "))
	slug = slugRegex.ReplaceAllString(slug, "")
	slug = multiSpaceRegex.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")

	if len(slug) > slugMaxLen {
		slug = strings.Trim(slug[:slugMaxLen], "-")
	}
	if slug == "" {
		slug = "memory"
	}

	return fmt.Sprintf("%s-%s", slug, created.Format("2006-01-02"))
}
