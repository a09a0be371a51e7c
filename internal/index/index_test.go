package index

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/daybook-app/daybook/internal/entry"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return db
}

func testStub(kind entry.Kind, id, name string) entry.Stub {
	return entry.Stub{
		ID:        id,
		Kind:      kind,
		Name:      name,
		Tags:      []string{},
		CreatedAt: time.Now().Unix(),
		DocPath:   "/data/" + string(kind) + "s/2026/01/" + id + ".json",
	}
}

func TestInitSchema_Idempotent(t *testing.T) {
	db := testDB(t)
	if err := db.InitSchema(); err != nil {
		t.Errorf("second InitSchema() failed: %v", err)
	}
}

func TestInitSchema_OneTablePerKind(t *testing.T) {
	db := testDB(t)

	for _, kind := range entry.Kinds {
		var count int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
		if err := db.conn.QueryRow(query, tableFor(kind)).Scan(&count); err != nil {
			t.Fatalf("failed to query table for %s: %v", kind, err)
		}
		if count != 1 {
			t.Errorf("table for %s does not exist", kind)
		}
	}
}

func TestUpsert_InsertAndOverwrite(t *testing.T) {
	db := testDB(t)

	stub := testStub(entry.KindTask, "t1", "original")
	if err := db.Upsert(stub); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	stub.Name = "renamed"
	stub.Completed = true
	if err := db.Upsert(stub); err != nil {
		t.Fatalf("second Upsert() failed: %v", err)
	}

	got, err := db.Get(entry.KindTask, "t1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Name != "renamed" {
		t.Errorf("Name = %q, want %q (last write wins)", got.Name, "renamed")
	}
	if !got.Completed {
		t.Error("Completed flag not overwritten")
	}

	count, err := db.Count(entry.KindTask)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Count = %d, want 1 (upsert must not duplicate)", count)
	}
}

func TestGet_NotFound(t *testing.T) {
	db := testDB(t)

	_, err := db.Get(entry.KindTask, "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Get() error = %v, want sql.ErrNoRows", err)
	}
}

func TestList_ActiveFilter(t *testing.T) {
	db := testDB(t)

	open := testStub(entry.KindTask, "t1", "open task")
	done := testStub(entry.KindTask, "t2", "done task")
	done.Completed = true
	archived := testStub(entry.KindTask, "t3", "archived task")
	archived.Archived = true

	for _, s := range []entry.Stub{open, done, archived} {
		if err := db.Upsert(s); err != nil {
			t.Fatalf("Upsert() failed: %v", err)
		}
	}

	stubs, err := db.List(entry.KindTask, Filter{Active: true, WithinDays: -1})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(stubs) != 1 || stubs[0].ID != "t1" {
		t.Errorf("active filter returned %+v, want only t1", stubs)
	}
}

func TestList_WithinDays(t *testing.T) {
	db := testDB(t)

	soon := testStub(entry.KindTask, "t1", "due soon")
	soon.DueBy = time.Now().Add(2 * 24 * time.Hour).Unix()
	far := testStub(entry.KindTask, "t2", "due far out")
	far.DueBy = time.Now().Add(30 * 24 * time.Hour).Unix()
	undated := testStub(entry.KindTask, "t3", "no due date")

	for _, s := range []entry.Stub{soon, far, undated} {
		if err := db.Upsert(s); err != nil {
			t.Fatalf("Upsert() failed: %v", err)
		}
	}

	stubs, err := db.List(entry.KindTask, Filter{WithinDays: 7})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}

	ids := make(map[string]bool)
	for _, s := range stubs {
		ids[s.ID] = true
	}
	if !ids["t1"] || ids["t2"] || !ids["t3"] {
		t.Errorf("WithinDays=7 returned %v, want t1 and t3 only", ids)
	}

	all, err := db.List(entry.KindTask, Filter{WithinDays: -1})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("WithinDays=-1 returned %d stubs, want 3", len(all))
	}
}

func TestList_NameAndTagFilters(t *testing.T) {
	db := testDB(t)

	groceries := testStub(entry.KindNote, "n1", "Grocery list")
	groceries.Tags = []string{"shopping", "food"}
	workout := testStub(entry.KindNote, "n2", "workout plan")
	workout.Tags = []string{"health"}

	for _, s := range []entry.Stub{groceries, workout} {
		if err := db.Upsert(s); err != nil {
			t.Fatalf("Upsert() failed: %v", err)
		}
	}

	byName, err := db.List(entry.KindNote, Filter{WithinDays: -1, NameLike: "grocery"})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(byName) != 1 || byName[0].ID != "n1" {
		t.Errorf("name filter returned %+v, want n1", byName)
	}

	byTag, err := db.List(entry.KindNote, Filter{WithinDays: -1, Tag: "health"})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(byTag) != 1 || byTag[0].ID != "n2" {
		t.Errorf("tag filter returned %+v, want n2", byTag)
	}
}

func TestSetArchived(t *testing.T) {
	db := testDB(t)

	stub := testStub(entry.KindProject, "p1", "old project")
	if err := db.Upsert(stub); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	if err := db.SetArchived(entry.KindProject, "p1", true); err != nil {
		t.Fatalf("SetArchived() failed: %v", err)
	}

	got, err := db.Get(entry.KindProject, "p1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if !got.Archived {
		t.Error("stub not archived")
	}

	if err := db.SetArchived(entry.KindProject, "missing", true); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("SetArchived(missing) error = %v, want sql.ErrNoRows", err)
	}
}

func TestUpsert_PreservesArchivedFlag(t *testing.T) {
	db := testDB(t)

	stub := testStub(entry.KindTask, "t1", "task")
	if err := db.Upsert(stub); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	if err := db.SetArchived(entry.KindTask, "t1", true); err != nil {
		t.Fatalf("SetArchived() failed: %v", err)
	}

	// Re-upserting (e.g. from a document resync) must not silently
	// unarchive the row.
	if err := db.Upsert(stub); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	got, err := db.Get(entry.KindTask, "t1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if !got.Archived {
		t.Error("upsert cleared the archived flag")
	}
}

func TestDelete_Idempotent(t *testing.T) {
	db := testDB(t)

	stub := testStub(entry.KindEvent, "e1", "party")
	if err := db.Upsert(stub); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	if err := db.Delete(entry.KindEvent, "e1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := db.Delete(entry.KindEvent, "e1"); err != nil {
		t.Errorf("second Delete() failed: %v", err)
	}

	count, _ := db.Count(entry.KindEvent)
	if count != 0 {
		t.Errorf("Count = %d after delete, want 0", count)
	}
}
