package sched

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/daybook-app/daybook/internal/entry"
	"github.com/daybook-app/daybook/internal/notify"
)

// captureNotifier records every notification it receives.
type captureNotifier struct {
	mu  sync.Mutex
	got []notify.Notification
	err error
}

func (c *captureNotifier) Notify(_ context.Context, n notify.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, n)
	return c.err
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func (c *captureNotifier) last() notify.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.got[len(c.got)-1]
}

func newTestScheduler(t *testing.T, n notify.Notifier) *Scheduler {
	t.Helper()
	s, err := New(Config{Notifier: n})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return s
}

func taskWithReminders(id string, fireTimes ...time.Time) *entry.Entry {
	due := time.Now().Add(240 * time.Hour)
	reminders := make([]entry.Reminder, len(fireTimes))
	for i, ft := range fireTimes {
		reminders[i] = entry.Reminder{FireAt: ft, Urgency: entry.UrgencyNormal}
	}
	return &entry.Entry{
		ID:        id,
		Kind:      entry.KindTask,
		Name:      "task " + id,
		CreatedAt: time.Now(),
		DueBy:     &due,
		Reminders: reminders,
	}
}

// TestSchedule_Dedup verifies scheduling the same entry twice never
// produces two live handles for the same (id, fireAt) key.
func TestSchedule_Dedup(t *testing.T) {
	s := newTestScheduler(t, &captureNotifier{})

	e := taskWithReminders("t1", time.Now().Add(time.Hour))
	s.Schedule(e)
	s.Schedule(e)

	if got := s.LiveCount("t1"); got != 1 {
		t.Errorf("LiveCount = %d, want 1", got)
	}
}

// TestSchedule_ElapsedSkipped verifies a reminder whose fire time is
// already in the past never causes a notification.
func TestSchedule_ElapsedSkipped(t *testing.T) {
	capture := &captureNotifier{}
	s := newTestScheduler(t, capture)

	e := taskWithReminders("t1", time.Now().Add(-time.Hour))
	s.Schedule(e)

	if got := s.LiveCount("t1"); got != 0 {
		t.Errorf("LiveCount = %d, want 0 for elapsed reminder", got)
	}

	time.Sleep(50 * time.Millisecond)
	if capture.count() != 0 {
		t.Errorf("elapsed reminder fired %d notifications, want 0", capture.count())
	}
}

// TestReschedule_DropsStaleKeys verifies that after rescheduling with a
// different reminder set, no handle from the old set remains live.
func TestReschedule_DropsStaleKeys(t *testing.T) {
	s := newTestScheduler(t, &captureNotifier{})

	old := time.Now().Add(time.Hour).Truncate(time.Minute)
	kept := time.Now().Add(2 * time.Hour).Truncate(time.Minute)
	added := time.Now().Add(3 * time.Hour).Truncate(time.Minute)

	e := taskWithReminders("t1", old, kept)
	s.Schedule(e)
	if got := s.LiveCount("t1"); got != 2 {
		t.Fatalf("LiveCount = %d, want 2", got)
	}

	updated := taskWithReminders("t1", kept, added)
	s.Reschedule(updated)

	if got := s.LiveCount("t1"); got != 2 {
		t.Errorf("LiveCount after reschedule = %d, want 2", got)
	}
	if got := s.LiveTotal(); got != 2 {
		t.Errorf("LiveTotal = %d, want 2 (stale handle leaked)", got)
	}
}

// TestSchedule_CompletedEntrySkipped verifies an entry already marked
// done never arms timers, even with future reminders.
func TestSchedule_CompletedEntrySkipped(t *testing.T) {
	s := newTestScheduler(t, &captureNotifier{})

	e := taskWithReminders("t1", time.Now().Add(time.Hour))
	e.Done = true
	s.Schedule(e)

	if got := s.LiveCount("t1"); got != 0 {
		t.Errorf("LiveCount = %d, want 0 for completed entry", got)
	}
}

// TestCancelAll_Idempotent verifies cancelling an id with no live
// handles is a no-op.
func TestCancelAll_Idempotent(t *testing.T) {
	s := newTestScheduler(t, &captureNotifier{})

	s.CancelAll("ghost")
	s.CancelAll("ghost")

	if got := s.LiveTotal(); got != 0 {
		t.Errorf("LiveTotal = %d, want 0", got)
	}
}

// TestFire_RetiresHandleAndNotifies verifies a fired reminder invokes
// the notifier exactly once and removes its own handle.
func TestFire_RetiresHandleAndNotifies(t *testing.T) {
	capture := &captureNotifier{}
	s := newTestScheduler(t, capture)

	e := taskWithReminders("t1", time.Now().Add(20*time.Millisecond))
	e.Name = "water the plants"
	s.Schedule(e)

	deadline := time.After(2 * time.Second)
	for capture.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("reminder never fired")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	if got := capture.count(); got != 1 {
		t.Errorf("notifier invoked %d times, want 1", got)
	}
	if got := capture.last().Title; got != "water the plants" {
		t.Errorf("notification title = %q", got)
	}
	if got := s.LiveCount("t1"); got != 0 {
		t.Errorf("LiveCount after fire = %d, want 0 (handle not retired)", got)
	}

	// Cancelling an already-fired handle is a no-op.
	s.CancelAll("t1")
}

// TestFire_NotifierErrorNotRetried verifies a failed delivery does not
// re-arm the timer.
func TestFire_NotifierErrorNotRetried(t *testing.T) {
	capture := &captureNotifier{err: errors.New("display unavailable")}
	s := newTestScheduler(t, capture)

	e := taskWithReminders("t1", time.Now().Add(20*time.Millisecond))
	s.Schedule(e)

	time.Sleep(200 * time.Millisecond)

	if got := capture.count(); got != 1 {
		t.Errorf("notifier invoked %d times, want exactly 1", got)
	}
	if got := s.LiveCount("t1"); got != 0 {
		t.Errorf("LiveCount = %d, want 0", got)
	}
}

// TestCancelAll_PreventsFiring verifies cancellation before the fire
// time suppresses the notification.
func TestCancelAll_PreventsFiring(t *testing.T) {
	capture := &captureNotifier{}
	s := newTestScheduler(t, capture)

	e := taskWithReminders("t1", time.Now().Add(50*time.Millisecond))
	s.Schedule(e)
	s.CancelAll("t1")

	time.Sleep(150 * time.Millisecond)

	if capture.count() != 0 {
		t.Errorf("cancelled reminder fired %d notifications, want 0", capture.count())
	}
}

// TestBuildNotification_Urgency verifies reminder urgency and entry
// metadata flow into the notification.
func TestBuildNotification_Urgency(t *testing.T) {
	due := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	e := &entry.Entry{
		ID:          "t1",
		Kind:        entry.KindTask,
		Name:        "file report",
		Description: "quarterly numbers",
		Tags:        []string{"work"},
		CreatedAt:   time.Now(),
		DueBy:       &due,
	}
	r := entry.Reminder{FireAt: due.Add(-time.Hour), Urgency: entry.UrgencyCritical}

	n := buildNotification(e, r)

	if n.Title != "file report" {
		t.Errorf("Title = %q", n.Title)
	}
	if n.Urgency != entry.UrgencyCritical {
		t.Errorf("Urgency = %q, want critical", n.Urgency)
	}
	if n.Icon != "daybook-work" {
		t.Errorf("Icon = %q, want daybook-work", n.Icon)
	}
	if n.FadeSeconds != notify.DefaultFadeSeconds {
		t.Errorf("FadeSeconds = %d", n.FadeSeconds)
	}
}
