package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/daybook-app/daybook/internal/entry"
	"github.com/daybook-app/daybook/internal/index"
	"github.com/daybook-app/daybook/internal/manager"
	"github.com/daybook-app/daybook/internal/notify"
	"github.com/daybook-app/daybook/internal/sched"
	"github.com/daybook-app/daybook/internal/store"
)

type testEnv struct {
	store    *store.Store
	docsDir  string
	sched    *sched.Scheduler
	managers []*manager.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	docsDir := filepath.Join(dir, "docs")

	idx, err := index.Open(filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("index.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	if err := idx.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	st := store.New(idx, docsDir, nil)

	s, err := sched.New(sched.Config{Notifier: notify.LogNotifier{}})
	if err != nil {
		t.Fatalf("sched.New() failed: %v", err)
	}

	var managers []*manager.Manager
	for _, kind := range []entry.Kind{entry.KindTask, entry.KindNote} {
		m, err := manager.New(manager.Config{
			Kind:        kind,
			Store:       st,
			Scheduler:   s,
			HorizonDays: -1,
		})
		if err != nil {
			t.Fatalf("manager.New() failed: %v", err)
		}
		managers = append(managers, m)
	}

	return &testEnv{store: st, docsDir: docsDir, sched: s, managers: managers}
}

func (te *testEnv) managerFor(kind entry.Kind) *manager.Manager {
	for _, m := range te.managers {
		if m.Kind() == kind {
			return m
		}
	}
	return nil
}

func TestNew_Validation(t *testing.T) {
	te := newTestEnv(t)

	if _, err := New(nil, te.docsDir, nil); err == nil {
		t.Error("New() accepted zero managers")
	}
	if _, err := New(te.managers, "", nil); err == nil {
		t.Error("New() accepted empty docsDir")
	}
	if _, err := New(append(te.managers, te.managers[0]), te.docsDir, nil); err == nil {
		t.Error("New() accepted duplicate managers for one kind")
	}
}

// TestStart_InitialResync verifies entries persisted before the daemon
// starts are cached and scheduled by the startup resync.
func TestStart_InitialResync(t *testing.T) {
	te := newTestEnv(t)
	ctx := context.Background()

	due := time.Now().Add(24 * time.Hour)
	e, err := entry.New(entry.KindTask, entry.Spec{
		Name:      "pre-existing",
		DueBy:     &due,
		Reminders: []entry.Reminder{{FireAt: due.Add(-time.Hour)}},
	})
	if err != nil {
		t.Fatalf("entry.New() failed: %v", err)
	}
	if err := te.store.Upsert(ctx, e); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	d, err := New(te.managers, te.docsDir, &Config{
		ResyncInterval:   time.Hour, // startup resync only
		DebounceInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- d.Start(runCtx) }()

	// Wait for the startup resync to land.
	deadline := time.After(2 * time.Second)
	tasks := te.managerFor(entry.KindTask)
	for len(tasks.ListActive()) == 0 {
		select {
		case <-deadline:
			t.Fatal("startup resync never populated the cache")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	if got := te.sched.LiveCount(e.ID); got != 1 {
		t.Errorf("LiveCount = %d, want 1", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

// TestPeriodicResync verifies entries persisted behind the managers'
// backs are picked up by the resync tick.
func TestPeriodicResync(t *testing.T) {
	te := newTestEnv(t)
	ctx := context.Background()

	d, err := New(te.managers, te.docsDir, &Config{
		ResyncInterval:   30 * time.Millisecond,
		DebounceInterval: time.Hour, // keep the watcher path out of this test
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Start(runCtx) }()

	// Give the daemon a beat to finish its startup resync, then write
	// directly through the store.
	time.Sleep(50 * time.Millisecond)

	e, err := entry.New(entry.KindNote, entry.Spec{Name: "late arrival"})
	if err != nil {
		t.Fatalf("entry.New() failed: %v", err)
	}
	if err := te.store.Upsert(ctx, e); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	notes := te.managerFor(entry.KindNote)
	for {
		found := false
		for _, a := range notes.ListActive() {
			if a.ID == e.ID {
				found = true
			}
		}
		if found {
			break
		}
		select {
		case <-deadline:
			t.Fatal("periodic resync never picked up the new entry")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	cancel()
	<-done
}
