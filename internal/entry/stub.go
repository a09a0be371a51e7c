package entry

import (
	"path/filepath"
	"time"
)

// Stub is the flattened index projection of an entry.
//
// It carries only the fields needed for listing and filtering; the
// document at DocPath remains authoritative and a stub is never
// hydrated back into an Entry on its own. NewStub is a pure function of
// the entry, so re-deriving a stub from a freshly loaded document must
// equal the row stored in the index.
type Stub struct {
	ID        string
	Kind      Kind
	Name      string
	Started   bool
	Completed bool
	Archived  bool
	Tags      []string

	// Epoch seconds; 0 means unset.
	CreatedAt int64
	StartAt   int64
	DueBy     int64

	DocPath string
}

// NewStub derives the index projection for e, with the document stored
// under baseDir.
func NewStub(baseDir string, e *Entry) Stub {
	return Stub{
		ID:        e.ID,
		Kind:      e.Kind,
		Name:      e.Name,
		Started:   e.Started,
		Completed: e.Completed(),
		Tags:      append([]string{}, e.Tags...),
		CreatedAt: e.CreatedAt.Unix(),
		StartAt:   epoch(e.StartAt),
		DueBy:     epoch(e.DueBy),
		DocPath:   DocumentPath(baseDir, e),
	}
}

// AnchorEpoch returns the stub's scheduling anchor as epoch seconds:
// start time for events, due time for tasks and projects, 0 otherwise.
func (s Stub) AnchorEpoch() int64 {
	switch s.Kind {
	case KindEvent:
		return s.StartAt
	case KindTask, KindProject:
		return s.DueBy
	}
	return 0
}

// DocumentPath returns the deterministic location of an entry's document:
// baseDir/<kind>s/<YYYY>/<MM>/<id>.json, bucketed by creation time.
func DocumentPath(baseDir string, e *Entry) string {
	return filepath.Join(
		baseDir,
		string(e.Kind)+"s",
		e.CreatedAt.Format("2006"),
		e.CreatedAt.Format("01"),
		e.ID+".json",
	)
}

func epoch(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.Unix()
}
