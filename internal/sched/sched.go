// Package sched converts entry reminders into live, cancellable
// notification timers.
//
// Each future reminder becomes a handle keyed by (entry id, fire time).
// Handles are purely in-memory: they are never persisted and all of
// them are implicitly gone after a restart. The periodic resync job
// recreates the live ones by calling Schedule again, which is safe
// because scheduling an already-live key is a no-op.
//
// Handle state machine: Unscheduled -> Scheduled -> Fired, with
// Scheduled -> Cancelled as the alternate terminal transition. A fired
// timer removes its own registry entry; a cancellation removes it
// early. Both paths are safe to race: whichever takes the registry
// entry first wins, the other is a no-op.
package sched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/daybook-app/daybook/internal/entry"
	"github.com/daybook-app/daybook/internal/logging"
	"github.com/daybook-app/daybook/internal/notify"
)

// key identifies one live handle: at most one handle exists per
// (entry id, fire time) pair at any instant.
type key struct {
	id     string
	fireAt int64 // epoch seconds, minute resolution
}

// Config holds scheduler configuration.
type Config struct {
	// Notifier receives fired reminders. Required.
	Notifier notify.Notifier

	// Logger for scheduling activity. Nil discards messages.
	Logger logging.Logger

	// Now overrides the clock, for tests. Nil means time.Now.
	Now func() time.Time

	// NotifyTimeout bounds a single Notifier invocation
	// (default 10s).
	NotifyTimeout time.Duration
}

// Scheduler owns the live-handle registry and the cancel/reschedule
// protocol.
type Scheduler struct {
	mu      sync.Mutex
	handles map[key]*time.Timer

	notifier      notify.Notifier
	log           logging.Logger
	now           func() time.Time
	notifyTimeout time.Duration
}

// New creates a scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}

	return &Scheduler{
		handles:       make(map[key]*time.Timer),
		notifier:      cfg.Notifier,
		log:           cfg.Logger,
		now:           cfg.Now,
		notifyTimeout: cfg.NotifyTimeout,
	}, nil
}

// Schedule creates a handle for every reminder of e whose fire time is
// strictly in the future and not already live.
//
// Reminders whose fire time has elapsed are silently skipped - never
// fired late - so loading a backlog of overdue entries at startup can
// not cause a notification storm. Calling Schedule twice for the same
// unmutated entry is a no-op, which makes resync idempotent.
func (s *Scheduler) Schedule(e *entry.Entry) {
	if e.Completed() {
		return // nothing left to remind about
	}

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range e.Reminders {
		if !r.FireAt.After(now) {
			continue // elapsed, skip silently
		}

		k := key{id: e.ID, fireAt: r.FireAt.Unix()}
		if _, live := s.handles[k]; live {
			continue // dedup: one handle per (id, fireAt)
		}

		n := buildNotification(e, r)
		s.handles[k] = time.AfterFunc(r.FireAt.Sub(now), func() {
			s.fire(k, n)
		})
		s.log.Debugf("scheduled reminder for %s %s at %s", e.Kind, e.ID, r.FireAt.Format(time.RFC3339))
	}
}

// CancelAll cancels and removes every live handle for the given entry
// id, regardless of fire time. Cancelling an id with no live handles is
// a no-op, not an error.
func (s *Scheduler) CancelAll(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, timer := range s.handles {
		if k.id != id {
			continue
		}
		timer.Stop()
		delete(s.handles, k)
	}
}

// Reschedule is CancelAll followed by Schedule. This is the only path
// mutation flows through: it guarantees no orphaned timer can reference
// an old reminder value.
func (s *Scheduler) Reschedule(e *entry.Entry) {
	s.CancelAll(e.ID)
	s.Schedule(e)
}

// LiveCount returns the number of live handles for an entry id.
func (s *Scheduler) LiveCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for k := range s.handles {
		if k.id == id {
			count++
		}
	}
	return count
}

// LiveTotal returns the total number of live handles.
func (s *Scheduler) LiveTotal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// fire runs when a timer elapses: retire the handle, then invoke the
// notifier. If a concurrent cancel already took the registry entry,
// firing is suppressed.
func (s *Scheduler) fire(k key, n notify.Notification) {
	s.mu.Lock()
	if _, live := s.handles[k]; !live {
		s.mu.Unlock()
		return // cancelled mid-fire
	}
	delete(s.handles, k)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
	defer cancel()

	// Delivery is fire-and-forget: a failure is logged, not retried,
	// and the timer is not re-armed.
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Errorf("notification for %q failed: %v", n.Title, err)
	}
}

// buildNotification derives the outbound message from the entry and
// reminder, snapshotted at scheduling time.
func buildNotification(e *entry.Entry, r entry.Reminder) notify.Notification {
	body := e.Description
	if anchor := e.AnchorTime(); anchor != nil {
		verb := "due"
		if e.Kind == entry.KindEvent {
			verb = "starts"
		}
		when := anchor.Format("Mon Jan 2 15:04")
		if body != "" {
			body = fmt.Sprintf("%s (%s %s)", body, verb, when)
		} else {
			body = fmt.Sprintf("%s %s", verb, when)
		}
	}

	icon := "daybook-" + string(e.Kind)
	if len(e.Tags) > 0 {
		icon = "daybook-" + e.Tags[0]
	}

	return notify.Notification{
		Title:       e.Name,
		Body:        body,
		Icon:        icon,
		Urgency:     r.Urgency,
		FadeSeconds: notify.DefaultFadeSeconds,
	}
}
