// Package manager orchestrates persistence and reminder scheduling for
// one entry kind.
//
// A Manager holds an in-memory cache of active entries partitioned into
// upcoming and past, keeps it consistent with the persistence layer on
// every mutation, and owns the periodic resynchronization that rebuilds
// caches and reminder schedules from persisted state after a restart.
//
// All cache mutation happens behind the Manager's own methods; callers
// never touch the partitions directly.
package manager

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/daybook-app/daybook/internal/entry"
	"github.com/daybook-app/daybook/internal/index"
	"github.com/daybook-app/daybook/internal/logging"
	"github.com/daybook-app/daybook/internal/sched"
	"github.com/daybook-app/daybook/internal/store"
)

// Config holds manager configuration for one entry kind.
type Config struct {
	// Kind this manager owns. Required.
	Kind entry.Kind

	// Store is the persistence layer. Required.
	Store *store.Store

	// Scheduler converts reminders into live timers. Required.
	Scheduler *sched.Scheduler

	// HorizonDays is the look-forward window: -1 means unbounded, a
	// non-negative N considers only entries whose anchor time falls
	// within N days from now for caching and scheduling.
	HorizonDays int

	// CacheStaleness is how old the upcoming/past partition may get
	// before ListActive recomputes it (default 60s).
	CacheStaleness time.Duration

	// SearchFanoutThreshold is the item count above which Search fans
	// out to concurrent workers (default 20).
	SearchFanoutThreshold int

	// SearchConcurrency bounds the number of concurrent search workers
	// (default 4).
	SearchConcurrency int

	// SearchUnitTimeout bounds the scan of a single document
	// (default 2s).
	SearchUnitTimeout time.Duration

	// Logger for manager activity. Nil discards messages.
	Logger logging.Logger

	// Now overrides the clock, for tests. Nil means time.Now.
	Now func() time.Time
}

// Manager coordinates one kind's entries across the persistence layer,
// the scheduling engine, and the in-memory active cache.
type Manager struct {
	kind  entry.Kind
	store *store.Store
	sched *sched.Scheduler
	log   logging.Logger
	now   func() time.Time

	horizonDays    int
	staleness      time.Duration
	fanoutThresh   int
	searchWorkers  int
	searchTimeout  time.Duration

	mu         sync.RWMutex
	upcoming   map[string]*entry.Entry
	past       map[string]*entry.Entry
	lastRecalc time.Time
}

// New creates a manager for one kind.
func New(cfg Config) (*Manager, error) {
	if !cfg.Kind.Valid() {
		return nil, fmt.Errorf("invalid kind %q", cfg.Kind)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.CacheStaleness <= 0 {
		cfg.CacheStaleness = 60 * time.Second
	}
	if cfg.SearchFanoutThreshold <= 0 {
		cfg.SearchFanoutThreshold = 20
	}
	if cfg.SearchConcurrency <= 0 {
		cfg.SearchConcurrency = 4
	}
	if cfg.SearchUnitTimeout <= 0 {
		cfg.SearchUnitTimeout = 2 * time.Second
	}

	return &Manager{
		kind:          cfg.Kind,
		store:         cfg.Store,
		sched:         cfg.Scheduler,
		log:           cfg.Logger,
		now:           cfg.Now,
		horizonDays:   cfg.HorizonDays,
		staleness:     cfg.CacheStaleness,
		fanoutThresh:  cfg.SearchFanoutThreshold,
		searchWorkers: cfg.SearchConcurrency,
		searchTimeout: cfg.SearchUnitTimeout,
		upcoming:      make(map[string]*entry.Entry),
		past:          make(map[string]*entry.Entry),
	}, nil
}

// Kind returns the entry kind this manager owns.
func (m *Manager) Kind() entry.Kind {
	return m.kind
}

// Add persists a new entry and, if it falls within the look-forward
// horizon, schedules its reminders and inserts it into the active
// cache.
func (m *Manager) Add(ctx context.Context, e *entry.Entry) error {
	if e.Kind != m.kind {
		return fmt.Errorf("cannot add %s entry to %s manager", e.Kind, m.kind)
	}

	if err := m.store.Upsert(ctx, e); err != nil {
		return err
	}

	if m.withinHorizon(e) {
		m.sched.Schedule(e)
		m.cacheInsert(e)
	}

	m.log.Debugf("added %s %s (%s)", m.kind, e.ID, e.Name)
	return nil
}

// Update reschedules the entry's reminders, re-persists it, and
// replaces the cached copy. CancelAll strictly precedes the new
// Schedule, so no stale timer can reference the old reminder set.
func (m *Manager) Update(ctx context.Context, e *entry.Entry) error {
	if e.Kind != m.kind {
		return fmt.Errorf("cannot update %s entry in %s manager", e.Kind, m.kind)
	}

	m.sched.CancelAll(e.ID)

	if err := m.store.Upsert(ctx, e); err != nil {
		return err
	}

	m.cacheRemove(e.ID)
	if m.withinHorizon(e) {
		m.sched.Schedule(e)
		m.cacheInsert(e)
	}

	m.log.Debugf("updated %s %s", m.kind, e.ID)
	return nil
}

// Delete hard-deletes an entry: its timers are cancelled, the index row
// and document are removed, and it leaves the cache. No further
// mutation is possible after delete.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.sched.CancelAll(id)

	if err := m.store.Delete(ctx, m.kind, id); err != nil {
		return err
	}

	m.cacheRemove(id)
	m.log.Debugf("deleted %s %s", m.kind, id)
	return nil
}

// Archive soft-deletes an entry: timers cancelled, index row flagged,
// cache entry removed. The document is untouched and remains readable
// via Get, but the entry is excluded from active listings and never
// rescheduled.
func (m *Manager) Archive(ctx context.Context, id string) error {
	m.sched.CancelAll(id)

	if err := m.store.Archive(ctx, m.kind, id); err != nil {
		return err
	}

	m.cacheRemove(id)
	m.log.Debugf("archived %s %s", m.kind, id)
	return nil
}

// Get loads a single entry; the document is authoritative.
func (m *Manager) Get(ctx context.Context, id string) (*entry.Entry, error) {
	return m.store.Get(ctx, m.kind, id)
}

// ListActive returns the cached active entries whose anchor has not
// elapsed (plus anchorless entries). If the partition is older than the
// staleness threshold it is recomputed first, moving elapsed entries to
// the past partition.
func (m *Manager) ListActive() []*entry.Entry {
	m.mu.Lock()
	if m.now().Sub(m.lastRecalc) > m.staleness {
		m.repartitionLocked()
	}
	out := make([]*entry.Entry, 0, len(m.upcoming))
	for _, e := range m.upcoming {
		out = append(out, e)
	}
	m.mu.Unlock()

	sortByAnchor(out)
	return out
}

// ListPast returns cached entries whose anchor time has elapsed.
func (m *Manager) ListPast() []*entry.Entry {
	m.mu.RLock()
	out := make([]*entry.Entry, 0, len(m.past))
	for _, e := range m.past {
		out = append(out, e)
	}
	m.mu.RUnlock()

	sortByAnchor(out)
	return out
}

// ListAll loads every non-archived entry of this kind from the
// persistence layer, ignoring the horizon.
func (m *Manager) ListAll(ctx context.Context) ([]*entry.Entry, error) {
	return m.store.ListFull(ctx, m.kind, index.UnboundedFilter())
}

// Resync rebuilds the in-memory state from persisted truth: the active
// cache partitions are replaced wholesale and every entry within the
// horizon is scheduled. Schedule (not Reschedule) is used, so handles
// that are already live are left alone and resync stays idempotent.
//
// This is the sole recovery path after a restart, since live handles
// are never persisted.
func (m *Manager) Resync(ctx context.Context) error {
	filter := index.Filter{Active: true, WithinDays: m.horizonDays}
	entries, err := m.store.ListFull(ctx, m.kind, filter)
	if err != nil {
		return fmt.Errorf("resync of %s failed: %w", m.kind, err)
	}

	now := m.now()
	upcoming := make(map[string]*entry.Entry, len(entries))
	past := make(map[string]*entry.Entry)
	for _, e := range entries {
		if anchorElapsed(e, now) {
			past[e.ID] = e
		} else {
			upcoming[e.ID] = e
		}
		m.sched.Schedule(e)
	}

	m.mu.Lock()
	m.upcoming = upcoming
	m.past = past
	m.lastRecalc = now
	m.mu.Unlock()

	m.log.Debugf("resynced %s: %d upcoming, %d past", m.kind, len(upcoming), len(past))
	return nil
}

// withinHorizon reports whether e's anchor time falls inside the
// look-forward window. Anchorless entries are always in scope; a
// negative horizon is unbounded.
func (m *Manager) withinHorizon(e *entry.Entry) bool {
	if m.horizonDays < 0 {
		return true
	}
	anchor := e.AnchorTime()
	if anchor == nil {
		return true
	}
	limit := m.now().Add(time.Duration(m.horizonDays) * 24 * time.Hour)
	return !anchor.After(limit)
}

func (m *Manager) cacheInsert(e *entry.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if anchorElapsed(e, m.now()) {
		m.past[e.ID] = e
	} else {
		m.upcoming[e.ID] = e
	}
}

func (m *Manager) cacheRemove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.upcoming, id)
	delete(m.past, id)
}

// repartitionLocked moves entries whose anchor has elapsed from the
// upcoming partition to past. Caller holds m.mu.
func (m *Manager) repartitionLocked() {
	now := m.now()
	for id, e := range m.upcoming {
		if anchorElapsed(e, now) {
			m.past[id] = e
			delete(m.upcoming, id)
		}
	}
	m.lastRecalc = now
}

func anchorElapsed(e *entry.Entry, now time.Time) bool {
	anchor := e.AnchorTime()
	return anchor != nil && anchor.Before(now)
}

func sortByAnchor(entries []*entry.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		ai, aj := entries[i].AnchorTime(), entries[j].AnchorTime()
		switch {
		case ai == nil && aj == nil:
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		case ai == nil:
			return false
		case aj == nil:
			return true
		case ai.Equal(*aj):
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		default:
			return ai.Before(*aj)
		}
	})
}

// matches reports whether e (or any of its children) contains the
// lower-cased query in its name, description, or tags.
func matches(e *entry.Entry, query string) bool {
	if strings.Contains(strings.ToLower(e.Name), query) ||
		strings.Contains(strings.ToLower(e.Description), query) {
		return true
	}
	for _, tag := range e.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	for _, child := range e.Children {
		if matches(child, query) {
			return true
		}
	}
	return false
}
