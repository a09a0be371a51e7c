// Package entry defines the shared data model for daybook entries.
//
// An entry is a typed, user-created item (event, task, project, note,
// journal) with tags, timestamps, optional sub-items, and an ordered list
// of reminders. The canonical representation of an entry is its JSON
// document; the index holds a flattened Stub projection for fast queries.
package entry

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the type of an entry.
type Kind string

const (
	KindEvent   Kind = "event"
	KindTask    Kind = "task"
	KindProject Kind = "project"
	KindNote    Kind = "note"
	KindJournal Kind = "journal"
)

// Kinds lists all valid entry kinds in a stable order.
var Kinds = []Kind{KindEvent, KindTask, KindProject, KindNote, KindJournal}

// ParseKind converts a string to a Kind.
// Accepts singular and plural forms ("task", "tasks").
func ParseKind(s string) (Kind, error) {
	normalized := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(s), "s"))
	for _, k := range Kinds {
		if string(k) == normalized {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown entry kind %q", s)
}

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Urgency is the notification urgency carried by a reminder.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyCritical Urgency = "critical"
)

// ParseUrgency converts a string to an Urgency, defaulting to normal
// for the empty string.
func ParseUrgency(s string) (Urgency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return UrgencyNormal, nil
	case "low":
		return UrgencyLow, nil
	case "normal":
		return UrgencyNormal, nil
	case "critical":
		return UrgencyCritical, nil
	}
	return "", fmt.Errorf("unknown urgency %q", s)
}

// Reminder is a single scheduled notification for an entry.
// FireAt is truncated to minute resolution and must not be after the
// entry's anchor time.
type Reminder struct {
	FireAt  time.Time `json:"fire_at"`
	Urgency Urgency   `json:"urgency"`
}

// Entry is the canonical, full-fidelity representation of a daybook item.
//
// Fields are flat and independently updatable; the whole entry is
// re-persisted on every mutation with last-write-wins semantics.
type Entry struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`

	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartAt     *time.Time `json:"start_at,omitempty"`
	DueBy       *time.Time `json:"due_by,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Started bool `json:"started"`
	// Done is the stored completion flag. It is only authoritative while
	// the entry has no children; use Completed() for the effective state.
	Done bool `json:"done"`

	Reminders []Reminder `json:"reminders,omitempty"`
	Children  []*Entry   `json:"children,omitempty"`
}

// Completed returns the effective completion state.
//
// An entry with no children reports its stored flag. A composite entry
// (task with sub-tasks, project with tasks) is completed iff every child
// reports completed, recursively; the stored flag is ignored once
// children exist.
func (e *Entry) Completed() bool {
	if len(e.Children) == 0 {
		return e.Done
	}
	for _, child := range e.Children {
		if !child.Completed() {
			return false
		}
	}
	return true
}

// AnchorTime returns the time reminders are anchored to: the start time
// for events, the due time for tasks and projects. Kinds without a
// schedulable anchor (notes, journals) return nil.
func (e *Entry) AnchorTime() *time.Time {
	switch e.Kind {
	case KindEvent:
		return e.StartAt
	case KindTask, KindProject:
		return e.DueBy
	}
	return nil
}

// HasTag reports whether the entry carries the given tag (exact match).
func (e *Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Validate checks structural invariants. It is called on construction
// and before every persist.
func (e *Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("invalid kind %q", e.Kind)
	}
	if e.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(e.Name) > 500 {
		return fmt.Errorf("name must be 500 characters or less (got %d)", len(e.Name))
	}
	if e.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	anchor := e.AnchorTime()
	for i, r := range e.Reminders {
		if r.FireAt.IsZero() {
			return fmt.Errorf("reminder %d: fire_at is required", i)
		}
		if anchor == nil {
			return fmt.Errorf("reminder %d: %s entries cannot carry reminders", i, e.Kind)
		}
		if r.FireAt.After(*anchor) {
			return fmt.Errorf("reminder %d: fire_at %s is after anchor time %s",
				i, r.FireAt.Format(time.RFC3339), anchor.Format(time.RFC3339))
		}
	}
	for i, child := range e.Children {
		if err := child.Validate(); err != nil {
			return fmt.Errorf("child %d: %w", i, err)
		}
	}
	return nil
}

// Spec configures construction of a new entry. Zero values get defaults;
// see New.
type Spec struct {
	Name        string
	Description string
	Tags        []string
	StartAt     *time.Time
	DueBy       *time.Time
	Reminders   []Reminder
	Children    []*Entry
}

// New builds a validated entry of the given kind from spec.
//
// A fresh id is generated and all timestamps are truncated to minute
// resolution. Reminders are sorted by fire time.
func New(kind Kind, spec Spec) (*Entry, error) {
	e := &Entry{
		ID:          uuid.NewString(),
		Kind:        kind,
		Name:        spec.Name,
		Description: spec.Description,
		Tags:        spec.Tags,
		CreatedAt:   Truncate(time.Now()),
		StartAt:     truncatePtr(spec.StartAt),
		DueBy:       truncatePtr(spec.DueBy),
		Reminders:   normalizeReminders(spec.Reminders),
		Children:    spec.Children,
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", kind, err)
	}
	return e, nil
}

// Truncate reduces a timestamp to minute resolution, the granularity at
// which all entry times are stored and compared.
func Truncate(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}

func truncatePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	tt := Truncate(*t)
	return &tt
}

func normalizeReminders(reminders []Reminder) []Reminder {
	if len(reminders) == 0 {
		return nil
	}
	out := make([]Reminder, len(reminders))
	for i, r := range reminders {
		if r.Urgency == "" {
			r.Urgency = UrgencyNormal
		}
		r.FireAt = Truncate(r.FireAt)
		out[i] = r
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out
}
