// Package store composes the document store and the stub index into the
// persistence layer for one daybook data directory.
//
// The consistency contract: the index stub is written first, then the
// document. The two writes are not transactional across stores - on a
// crash in between, the document remains authoritative, because Get and
// ListFull always re-derive truth from the document. A stale stub only
// affects filtering granularity, never the correctness of a returned
// entry.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/daybook-app/daybook/internal/docstore"
	"github.com/daybook-app/daybook/internal/entry"
	"github.com/daybook-app/daybook/internal/index"
	"github.com/daybook-app/daybook/internal/logging"
)

// ErrNotFound indicates the requested entry id is absent from the
// index or the document store.
var ErrNotFound = errors.New("entry not found")

// ErrMalformedDocument marks a document that exists on disk but cannot
// be parsed. Re-exported from docstore so callers only import store.
var ErrMalformedDocument = docstore.ErrMalformedDocument

// Store persists entries of every kind to a shared index database and a
// document directory tree.
type Store struct {
	idx  *index.DB
	docs *docstore.Store
	log  logging.Logger
}

// New creates a persistence layer over an open index database and a
// document base directory. A nil logger discards messages.
func New(idx *index.DB, docsDir string, log logging.Logger) *Store {
	if log == nil {
		log = logging.Nop()
	}
	return &Store{
		idx:  idx,
		docs: docstore.New(docsDir, log),
		log:  log,
	}
}

// Docs exposes the underlying document store (used by search to scan
// document bodies without going through the index).
func (s *Store) Docs() *docstore.Store {
	return s.docs
}

// Index exposes the underlying stub index.
func (s *Store) Index() *index.DB {
	return s.idx
}

// Upsert inserts or overwrites an entry by id: stub row first, then
// document. Last write wins; idempotent under retry.
func (s *Store) Upsert(ctx context.Context, e *entry.Entry) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid entry: %w", err)
	}

	stub := entry.NewStub(s.docs.BaseDir(), e)
	if err := s.idx.UpsertContext(ctx, stub); err != nil {
		return fmt.Errorf("failed to index %s %s: %w", e.Kind, e.ID, err)
	}

	if err := s.docs.Write(e); err != nil {
		return fmt.Errorf("failed to persist %s %s: %w", e.Kind, e.ID, err)
	}

	return nil
}

// Get loads the entry with the given id. The document is authoritative:
// the stub row is only used to locate it, never to reconstruct the
// entry. Returns ErrNotFound if the id is absent.
func (s *Store) Get(ctx context.Context, kind entry.Kind, id string) (*entry.Entry, error) {
	stub, err := s.idx.GetContext(ctx, kind, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
		}
		return nil, fmt.Errorf("failed to look up %s %s: %w", kind, id, err)
	}

	e, err := s.docs.Read(stub.DocPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: document for %s %s is gone", ErrNotFound, kind, id)
		}
		return nil, err
	}

	return e, nil
}

// ListStubs queries the index only; no document I/O.
func (s *Store) ListStubs(ctx context.Context, kind entry.Kind, filter index.Filter) ([]entry.Stub, error) {
	return s.idx.ListContext(ctx, kind, filter)
}

// ListFull runs ListStubs and hydrates every hit from its document.
// A single unreadable or malformed document is logged and skipped
// rather than aborting the whole listing.
func (s *Store) ListFull(ctx context.Context, kind entry.Kind, filter index.Filter) ([]*entry.Entry, error) {
	stubs, err := s.idx.ListContext(ctx, kind, filter)
	if err != nil {
		return nil, err
	}

	entries := make([]*entry.Entry, 0, len(stubs))
	for _, stub := range stubs {
		e, err := s.docs.Read(stub.DocPath)
		if err != nil {
			s.log.Warnf("skipping %s %s: %v", kind, stub.ID, err)
			continue
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// Archive soft-deletes an entry: the index row is flagged archived, the
// document is left intact for history. Returns ErrNotFound if the id is
// absent.
func (s *Store) Archive(ctx context.Context, kind entry.Kind, id string) error {
	if err := s.idx.SetArchivedContext(ctx, kind, id, true); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
		}
		return err
	}
	return nil
}

// Delete hard-deletes an entry: index row and document file. Both
// removals are attempted even if one fails, and both failures are
// reported. Returns ErrNotFound if the id is absent from the index.
func (s *Store) Delete(ctx context.Context, kind entry.Kind, id string) error {
	stub, err := s.idx.GetContext(ctx, kind, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
		}
		return fmt.Errorf("failed to look up %s %s: %w", kind, id, err)
	}

	idxErr := s.idx.DeleteContext(ctx, kind, id)
	docErr := s.docs.DeletePath(stub.DocPath)

	return errors.Join(idxErr, docErr)
}
