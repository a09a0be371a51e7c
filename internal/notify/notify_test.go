package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/daybook-app/daybook/internal/entry"
)

// TestMulti_AllSinksRun verifies every sink receives the notification
// even when an earlier one fails, and the first error wins.
func TestMulti_AllSinksRun(t *testing.T) {
	var calls []string
	errBroken := errors.New("sink broken")

	m := Multi{
		Func(func(context.Context, Notification) error {
			calls = append(calls, "first")
			return errBroken
		}),
		Func(func(context.Context, Notification) error {
			calls = append(calls, "second")
			return errors.New("also broken")
		}),
		Func(func(context.Context, Notification) error {
			calls = append(calls, "third")
			return nil
		}),
	}

	err := m.Notify(context.Background(), Notification{Title: "standup"})
	if !errors.Is(err, errBroken) {
		t.Errorf("Notify() error = %v, want first sink's error", err)
	}
	if len(calls) != 3 {
		t.Errorf("sinks invoked = %v, want all three", calls)
	}
}

func TestMulti_Empty(t *testing.T) {
	if err := (Multi{}).Notify(context.Background(), Notification{}); err != nil {
		t.Errorf("empty Multi returned %v", err)
	}
}

// TestLogNotifier_NilLogger verifies the fallback sink tolerates a
// missing logger.
func TestLogNotifier_NilLogger(t *testing.T) {
	n := Notification{Title: "dentist", Urgency: entry.UrgencyCritical}
	if err := (LogNotifier{}).Notify(context.Background(), n); err != nil {
		t.Errorf("Notify() = %v, want nil", err)
	}
}
