// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package archive dumps the memory set to a browsable markdown tree and
// reads such a tree back. One file per memory, YAML frontmatter above
// the content body, one directory per memory type.
package archive

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/engramdb/engram/internal/memory"
)

// Archive reads and writes markdown snapshots under a root directory.
type Archive struct {
	root   string
	logger *slog.Logger
}

// New creates an archive rooted at the given directory.
func New(root string, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{root: root, logger: logger}
}

// Root returns the archive root directory.
func (a *Archive) Root() string {
	return a.root
}

// WriteSnapshot writes one markdown file per record, grouped into a
// lowercase directory per memory type. Returns how many files were
// written; the first filesystem failure aborts the snapshot.
func (a *Archive) WriteSnapshot(records []*memory.MemoryRecord) (int, error) {
	written := 0
	for _, rec := range records {
		dir := filepath.Join(a.root, strings.ToLower(string(rec.Type)))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return written, fmt.Errorf("failed to create archive directory: %w", err)
		}
		doc, err := ToMarkdown(rec)
		if err != nil {
			return written, err
		}
		path := filepath.Join(dir, fileName(rec))
		if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
			return written, fmt.Errorf("failed to write archive file: %w", err)
		}
		written++
	}
	return written, nil
}

// ReadSnapshot loads every markdown file under the root. Files that fail
// to parse are logged and skipped so one bad file cannot block a
// restore.
func (a *Archive) ReadSnapshot() ([]*memory.MemoryRecord, error) {
	var records []*memory.MemoryRecord
	err := filepath.WalkDir(a.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read archive file: %w", err)
		}
		rec, err := ParseMarkdown(string(data))
		if err != nil {
			a.logger.Warn("skipping unparseable archive file", "path", path, "error", err)
			return nil
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// fileName combines the content slug with the id tail so two memories
// with identical opening words still get distinct files.
func fileName(rec *memory.MemoryRecord) string {
	id := rec.ID
	if len(id) > 8 {
		id = id[len(id)-8:]
	}
	return fmt.Sprintf("%s-%s.md", GenerateSlug(rec.Content, rec.Created), strings.ToLower(id))
}
