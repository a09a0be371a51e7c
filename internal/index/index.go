// Package index provides the SQLite stub index for daybook entries.
//
// The index is a query cache, not the source of truth: it holds one
// flattened stub row per entry, per kind, sufficient for filters and
// listings without touching the document store. Every row carries the
// path of the canonical document it was projected from.
//
// The database runs embedded (ncruces/go-sqlite3) with WAL mode for
// concurrent reads during writes.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/daybook-app/daybook/internal/entry"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps the SQLite connection with stub-index functionality.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent
// reads. Missing parent directories are created. The caller MUST call
// Close() when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return db, nil
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection after a WAL checkpoint.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// tableFor returns the stub table name for a kind (one table per kind).
func tableFor(kind entry.Kind) string {
	return string(kind) + "s"
}

// anchorColumn returns the column holding the kind's scheduling anchor.
// Kinds without an anchor return "".
func anchorColumn(kind entry.Kind) string {
	switch kind {
	case entry.KindEvent:
		return "start_at"
	case entry.KindTask, entry.KindProject:
		return "due_by"
	}
	return ""
}

// InitSchema creates the stub tables and indexes if they don't exist.
// Idempotent - safe to call multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	var b strings.Builder
	for _, kind := range entry.Kinds {
		table := tableFor(kind)
		fmt.Fprintf(&b, `
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			started INTEGER NOT NULL DEFAULT 0,
			completed INTEGER NOT NULL DEFAULT 0,
			archived INTEGER NOT NULL DEFAULT 0,
			tags TEXT,  -- JSON array
			created_at INTEGER NOT NULL,
			start_at INTEGER NOT NULL DEFAULT 0,
			due_by INTEGER NOT NULL DEFAULT 0,
			doc_path TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_%[1]s_active ON %[1]s(completed, archived);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_due ON %[1]s(due_by);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_start ON %[1]s(start_at);
		`, table)
	}

	if _, err := db.conn.ExecContext(ctx, b.String()); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Upsert inserts or overwrites a stub row keyed by id.
func (db *DB) Upsert(stub entry.Stub) error {
	return db.UpsertContext(context.Background(), stub)
}

// UpsertContext inserts or overwrites a stub with context support.
func (db *DB) UpsertContext(ctx context.Context, stub entry.Stub) error {
	if stub.ID == "" {
		return fmt.Errorf("stub id is required")
	}
	if !stub.Kind.Valid() {
		return fmt.Errorf("invalid stub kind %q", stub.Kind)
	}

	tagsJSON, err := json.Marshal(stub.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := fmt.Sprintf(`
	INSERT INTO %s (
		id, name, started, completed, archived, tags,
		created_at, start_at, due_by, doc_path
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		started = excluded.started,
		completed = excluded.completed,
		tags = excluded.tags,
		created_at = excluded.created_at,
		start_at = excluded.start_at,
		due_by = excluded.due_by,
		doc_path = excluded.doc_path
	`, tableFor(stub.Kind))

	_, err = db.conn.ExecContext(ctx, query,
		stub.ID,
		stub.Name,
		boolToInt(stub.Started),
		boolToInt(stub.Completed),
		boolToInt(stub.Archived),
		string(tagsJSON),
		stub.CreatedAt,
		stub.StartAt,
		stub.DueBy,
		stub.DocPath,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert %s %s: %w", stub.Kind, stub.ID, err)
	}

	return nil
}

// Get retrieves a single stub by id.
// Returns sql.ErrNoRows if the row is not found.
func (db *DB) Get(kind entry.Kind, id string) (entry.Stub, error) {
	return db.GetContext(context.Background(), kind, id)
}

// GetContext retrieves a single stub with context support.
func (db *DB) GetContext(ctx context.Context, kind entry.Kind, id string) (entry.Stub, error) {
	query := fmt.Sprintf(`
	SELECT id, name, started, completed, archived, tags,
	       created_at, start_at, due_by, doc_path
	FROM %s
	WHERE id = ?
	`, tableFor(kind))

	row := db.conn.QueryRowContext(ctx, query, id)
	return scanStub(kind, row.Scan)
}

// Filter configures the List query. The zero value matches every row.
type Filter struct {
	// Active restricts to rows that are neither completed nor archived.
	Active bool

	// IncludeArchived keeps archived rows in the result set. Ignored
	// when Active is set.
	IncludeArchived bool

	// WithinDays keeps only rows whose anchor time falls within N days
	// from now. -1 means unbounded. Rows without an anchor (notes,
	// journals) are unaffected by the window.
	WithinDays int

	// NameLike filters by case-insensitive name substring.
	NameLike string

	// Tag filters by exact tag membership.
	Tag string

	// Limit restricts the number of results (0 = no limit).
	Limit int
}

// UnboundedFilter matches all non-archived rows with no time window.
func UnboundedFilter() Filter {
	return Filter{WithinDays: -1}
}

// List retrieves stubs of one kind matching the filter, ordered by
// anchor time (soonest first), then creation time.
func (db *DB) List(kind entry.Kind, filter Filter) ([]entry.Stub, error) {
	return db.ListContext(context.Background(), kind, filter)
}

// ListContext retrieves stubs with context support.
func (db *DB) ListContext(ctx context.Context, kind entry.Kind, filter Filter) ([]entry.Stub, error) {
	table := tableFor(kind)

	var conditions []string
	var args []interface{}

	if filter.Active {
		conditions = append(conditions, "t.completed = 0", "t.archived = 0")
	} else if !filter.IncludeArchived {
		conditions = append(conditions, "t.archived = 0")
	}

	anchor := anchorColumn(kind)
	if filter.WithinDays >= 0 && anchor != "" {
		horizon := time.Now().Add(time.Duration(filter.WithinDays) * 24 * time.Hour).Unix()
		conditions = append(conditions, fmt.Sprintf("(t.%s = 0 OR t.%s <= ?)", anchor, anchor))
		args = append(args, horizon)
	}

	if filter.NameLike != "" {
		conditions = append(conditions, "t.name LIKE ? COLLATE NOCASE")
		args = append(args, "%"+filter.NameLike+"%")
	}

	// Only use DISTINCT when joining with json_each
	selectClause := "SELECT"
	if filter.Tag != "" {
		selectClause += " DISTINCT"
	}

	query := selectClause + ` t.id, t.name, t.started, t.completed, t.archived, t.tags,
	       t.created_at, t.start_at, t.due_by, t.doc_path
	FROM ` + table + ` t
	`

	if filter.Tag != "" {
		query += `, json_each(t.tags)`
		conditions = append(conditions, "json_each.value = ?")
		args = append(args, filter.Tag)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	if anchor != "" {
		query += fmt.Sprintf(" ORDER BY CASE WHEN t.%s = 0 THEN 1 ELSE 0 END, t.%s ASC, t.created_at ASC", anchor, anchor)
	} else {
		query += " ORDER BY t.created_at ASC"
	}

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s stubs: %w", kind, err)
	}
	defer rows.Close()

	var stubs []entry.Stub
	for rows.Next() {
		stub, err := scanStub(kind, rows.Scan)
		if err != nil {
			return nil, err
		}
		stubs = append(stubs, stub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s stubs: %w", kind, err)
	}

	return stubs, nil
}

// SetArchived flips the archived flag on a stub row. The document is
// not touched. Returns sql.ErrNoRows if the row does not exist.
func (db *DB) SetArchived(kind entry.Kind, id string, archived bool) error {
	return db.SetArchivedContext(context.Background(), kind, id, archived)
}

// SetArchivedContext flips the archived flag with context support.
func (db *DB) SetArchivedContext(ctx context.Context, kind entry.Kind, id string, archived bool) error {
	query := fmt.Sprintf(`UPDATE %s SET archived = ? WHERE id = ?`, tableFor(kind))
	res, err := db.conn.ExecContext(ctx, query, boolToInt(archived), id)
	if err != nil {
		return fmt.Errorf("failed to archive %s %s: %w", kind, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to archive %s %s: %w", kind, id, err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a stub row. Returns nil if the row doesn't exist
// (idempotent).
func (db *DB) Delete(kind entry.Kind, id string) error {
	return db.DeleteContext(context.Background(), kind, id)
}

// DeleteContext removes a stub row with context support.
func (db *DB) DeleteContext(ctx context.Context, kind entry.Kind, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, tableFor(kind))
	if _, err := db.conn.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", kind, id, err)
	}
	return nil
}

// Count returns the number of stub rows for a kind.
func (db *DB) Count(kind entry.Kind) (int, error) {
	return db.CountContext(context.Background(), kind)
}

// CountContext returns the row count with context support.
func (db *DB) CountContext(ctx context.Context, kind entry.Kind) (int, error) {
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", tableFor(kind))
	if err := db.conn.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s stubs: %w", kind, err)
	}
	return count, nil
}

// scanStub reads one stub row via the given scan function.
func scanStub(kind entry.Kind, scan func(dest ...interface{}) error) (entry.Stub, error) {
	var stub entry.Stub
	var started, completed, archived int
	var tagsJSON string

	err := scan(
		&stub.ID,
		&stub.Name,
		&started,
		&completed,
		&archived,
		&tagsJSON,
		&stub.CreatedAt,
		&stub.StartAt,
		&stub.DueBy,
		&stub.DocPath,
	)
	if err != nil {
		return entry.Stub{}, err
	}

	stub.Kind = kind
	stub.Started = started != 0
	stub.Completed = completed != 0
	stub.Archived = archived != 0

	if tagsJSON != "" && tagsJSON != "null" {
		if err := json.Unmarshal([]byte(tagsJSON), &stub.Tags); err != nil {
			return entry.Stub{}, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	} else {
		stub.Tags = []string{}
	}

	return stub, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
