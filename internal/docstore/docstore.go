// Package docstore reads and writes canonical entry documents.
//
// Each entry is stored as one self-describing JSON file under
// <base>/<kind>s/<YYYY>/<MM>/<id>.json, bucketed by creation time. The
// document is the authoritative representation of an entry; the SQLite
// index only holds a lossy stub projection pointing back at the
// document path.
package docstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/daybook-app/daybook/internal/entry"
	"github.com/daybook-app/daybook/internal/logging"
)

// ErrMalformedDocument marks a document that exists but cannot be
// parsed or fails validation. Bulk readers skip these; single-document
// readers surface them.
var ErrMalformedDocument = errors.New("malformed document")

// Store persists entry documents under a base directory.
type Store struct {
	baseDir string
	log     logging.Logger
}

// New creates a document store rooted at baseDir. A nil logger discards
// messages.
func New(baseDir string, log logging.Logger) *Store {
	if log == nil {
		log = logging.Nop()
	}
	return &Store{baseDir: baseDir, log: log}
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// KindDir returns the directory holding all documents of one kind.
func (s *Store) KindDir(kind entry.Kind) string {
	return filepath.Join(s.baseDir, string(kind)+"s")
}

// Path returns the canonical document location for e.
func (s *Store) Path(e *entry.Entry) string {
	return entry.DocumentPath(s.baseDir, e)
}

// Write persists e as pretty-printed JSON, creating the year/month
// bucket directory if needed. Idempotent under retry: the same entry
// always maps to the same path and the write replaces the whole file.
func (s *Store) Write(e *entry.Entry) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("cannot write invalid entry: %w", err)
	}

	path := s.Path(e)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create document directory: %w", err)
	}

	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entry %s: %w", e.ID, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write document %s: %w", path, err)
	}

	return nil
}

// Read loads and validates the document at path.
//
// A missing file is reported as os.ErrNotExist (wrapped); an unreadable
// or invalid document is reported as ErrMalformedDocument.
func (s *Store) Read(path string) (*entry.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", path, err)
	}

	var e entry.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrMalformedDocument, path, err)
	}

	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("%w: invalid document %s: %v", ErrMalformedDocument, path, err)
	}

	return &e, nil
}

// ReadAll loads every document of one kind, walking the year/month
// buckets. Malformed documents are logged and skipped rather than
// failing the whole read. A missing kind directory yields an empty
// slice.
func (s *Store) ReadAll(kind entry.Kind) ([]*entry.Entry, error) {
	dir := s.KindDir(kind)

	var entries []*entry.Entry
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil // empty store is valid
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}

		e, err := s.Read(path)
		if err != nil {
			s.log.Warnf("skipping document %s: %v", path, err)
			return nil
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s documents: %w", kind, err)
	}

	return entries, nil
}

// Delete removes the document for e. Returns nil if the file is already
// gone (idempotent).
func (s *Store) Delete(e *entry.Entry) error {
	return s.DeletePath(s.Path(e))
}

// DeletePath removes the document at path, tolerating a missing file.
func (s *Store) DeletePath(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete document %s: %w", path, err)
	}
	return nil
}
