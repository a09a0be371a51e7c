// Package notify defines the outbound notification contract and its
// delivery implementations.
//
// Delivery is fire-and-forget: the scheduling engine hands a
// Notification to a Notifier and never consumes a result beyond logging
// a failure. A failed notification is not retried by the caller and
// never re-arms its timer.
package notify

import (
	"context"

	"github.com/daybook-app/daybook/internal/entry"
	"github.com/daybook-app/daybook/internal/logging"
)

// DefaultFadeSeconds is how long a displayed notification should linger
// before fading, when the sink honors it.
const DefaultFadeSeconds = 10

// Notification is the structured message handed to a delivery sink.
type Notification struct {
	Title       string        `json:"title"`
	Body        string        `json:"body"`
	Icon        string        `json:"icon,omitempty"`
	Urgency     entry.Urgency `json:"urgency"`
	FadeSeconds int           `json:"fade_seconds"`
}

// Notifier delivers a notification to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Func adapts a function to the Notifier interface.
type Func func(ctx context.Context, n Notification) error

// Notify implements Notifier.
func (f Func) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// LogNotifier writes notifications to the log. It is the fallback sink
// when no delivery mechanism is configured.
type LogNotifier struct {
	Log logging.Logger
}

// Notify implements Notifier.
func (l LogNotifier) Notify(_ context.Context, n Notification) error {
	log := l.Log
	if log == nil {
		log = logging.Nop()
	}
	log.Infof("notification [%s] %s: %s", n.Urgency, n.Title, n.Body)
	return nil
}

// Multi fans a notification out to several sinks. Every sink is
// attempted; the first error is returned after all have run.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, n Notification) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.Notify(ctx, n); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
