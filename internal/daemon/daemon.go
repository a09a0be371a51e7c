// Package daemon runs daybook's background jobs: the periodic
// resynchronization of every manager and a file watcher that picks up
// out-of-band edits to entry documents.
//
// The daemon:
//  1. Performs an initial resync of all managers on start
//  2. Watches the document directories for external changes
//  3. Re-runs resync on a fixed interval (the sole recovery path for
//     reminder schedules after a restart)
//  4. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/daybook-app/daybook/internal/entry"
	"github.com/daybook-app/daybook/internal/logging"
	"github.com/daybook-app/daybook/internal/manager"
	"github.com/fsnotify/fsnotify"
)

// Config holds configuration for the daemon.
type Config struct {
	// ResyncInterval is how often every manager rebuilds its caches
	// and reminder schedules from persisted state (default 5m).
	ResyncInterval time.Duration

	// DebounceInterval is how long to wait before reacting to watched
	// file changes, batching rapid edits together (default 500ms).
	DebounceInterval time.Duration

	// Logger for daemon activity. Nil discards messages.
	Logger logging.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ResyncInterval:   5 * time.Minute,
		DebounceInterval: 500 * time.Millisecond,
		Logger:           logging.Nop(),
	}
}

// Daemon orchestrates periodic resync and document watching for a set
// of managers.
type Daemon struct {
	managers map[entry.Kind]*manager.Manager
	docsDir  string
	config   *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[entry.Kind]time.Time
	changeQueueMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon over the given managers. docsDir is the document
// base directory whose per-kind subtrees are watched for external
// edits.
func New(managers []*manager.Manager, docsDir string, config *Config) (*Daemon, error) {
	if len(managers) == 0 {
		return nil, fmt.Errorf("at least one manager is required")
	}
	if docsDir == "" {
		return nil, fmt.Errorf("docsDir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = logging.Nop()
	}
	if config.ResyncInterval <= 0 {
		config.ResyncInterval = 5 * time.Minute
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 500 * time.Millisecond
	}

	byKind := make(map[entry.Kind]*manager.Manager, len(managers))
	for _, m := range managers {
		if _, dup := byKind[m.Kind()]; dup {
			return nil, fmt.Errorf("duplicate manager for kind %s", m.Kind())
		}
		byKind[m.Kind()] = m
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		managers:    byKind,
		docsDir:     docsDir,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[entry.Kind]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins the daemon's operation. This blocks until ctx is
// cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Infof("starting daemon (%d managers)", len(d.managers))

	if err := d.ResyncAll(ctx); err != nil {
		return fmt.Errorf("initial resync failed: %w", err)
	}

	// Watch each kind's bucket tree. fsnotify is not recursive, so
	// every existing year/month bucket is added individually; newly
	// created buckets are picked up from Create events. Missing
	// directories are tolerated - buckets appear lazily on first write
	// and the periodic resync covers anything the watcher misses.
	for kind := range d.managers {
		d.watchTree(filepath.Join(d.docsDir, string(kind)+"s"))
	}

	d.wg.Add(3)
	go d.watchFileEvents()
	go d.processChangeQueue()
	go d.resyncLoop()

	select {
	case <-ctx.Done():
		d.config.Logger.Infof("shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Warnf("error closing watcher: %v", err)
	}

	d.wg.Wait()
	d.config.Logger.Infof("daemon stopped")
	return nil
}

// ResyncAll runs every manager's resync. Per-manager failures are
// logged and the remaining managers still resync; only a total wipeout
// is reported as an error.
func (d *Daemon) ResyncAll(ctx context.Context) error {
	var failed int
	for kind, m := range d.managers {
		if err := m.Resync(ctx); err != nil {
			d.config.Logger.Errorf("resync of %s failed: %v", kind, err)
			failed++
		}
	}
	if failed == len(d.managers) {
		return fmt.Errorf("resync failed for all %d managers", failed)
	}
	return nil
}

// resyncLoop periodically rebuilds caches and schedules.
func (d *Daemon) resyncLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.ResyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if err := d.ResyncAll(d.ctx); err != nil {
				d.config.Logger.Errorf("periodic resync: %v", err)
			}
		}
	}
}

// watchFileEvents monitors filesystem events and queues the affected
// kind for resync.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) == 0 {
				continue
			}

			// A freshly created bucket directory must be watched too.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					d.watchTree(event.Name)
					continue
				}
			}

			if filepath.Ext(event.Name) != ".json" {
				continue
			}

			kind, err := d.kindForPath(event.Name)
			if err != nil {
				continue
			}

			d.config.Logger.Debugf("document event: %s %s", event.Op, event.Name)
			d.queueChange(kind)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Warnf("watcher error: %v", err)
		}
	}
}

// watchTree adds dir and every directory below it to the watcher.
func (d *Daemon) watchTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			return nil // tolerate missing or unreadable subtrees
		}
		if de.IsDir() {
			if err := d.watcher.Add(path); err != nil {
				d.config.Logger.Debugf("not watching %s: %v", path, err)
			}
		}
		return nil
	})
}

// kindForPath maps a watched document path back to its entry kind.
func (d *Daemon) kindForPath(path string) (entry.Kind, error) {
	rel, err := filepath.Rel(d.docsDir, path)
	if err != nil {
		return "", err
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) == 0 {
		return "", fmt.Errorf("path %s outside document tree", path)
	}
	return entry.ParseKind(parts[0])
}

// queueChange marks a kind dirty with debouncing.
func (d *Daemon) queueChange(kind entry.Kind) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[kind] = time.Now()
}

// processChangeQueue resyncs kinds whose changes have settled.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges resyncs kinds queued for long enough.
func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()
	now := time.Now()
	var due []entry.Kind
	for kind, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		due = append(due, kind)
		delete(d.changeQueue, kind)
	}
	d.changeQueueMu.Unlock()

	for _, kind := range due {
		m := d.managers[kind]
		if m == nil {
			continue
		}
		d.config.Logger.Debugf("document change detected, resyncing %s", kind)
		if err := m.Resync(d.ctx); err != nil {
			d.config.Logger.Errorf("resync of %s failed: %v", kind, err)
		}
	}
}
