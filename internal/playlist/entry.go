package playlist

import (
	"fmt"
	"sync"
)

// ContentType is the catalog kind inferred for a playlist entry.
type ContentType string

const (
	TypeMovie   ContentType = "movie"
	TypeSeries  ContentType = "series"
	TypeTV      ContentType = "tv"
	TypeUnknown ContentType = "unknown"
)

// Status tracks an entry through an import run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusUploaded  Status = "uploaded"
	StatusDuplicate Status = "duplicate"
	StatusError     Status = "error"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusUploaded || s == StatusDuplicate || s == StatusError
}

var transitions = map[Status][]Status{
	StatusPending:   {StatusProcessed},
	StatusProcessed: {StatusUploaded, StatusDuplicate, StatusError},
}

// Entry is one #EXTINF + URL pair from a playlist.
// Metadata fields are fixed after parsing; status and error are mutated
// by the importer and are safe for concurrent access.
type Entry struct {
	Title      string
	URL        string
	TvgID      string
	TvgName    string
	TvgLogo    string
	GroupTitle string
	Type       ContentType

	mu     sync.RWMutex
	status Status
	err    string
}

// NewEntry creates a pending entry.
func NewEntry(title, url string) *Entry {
	return &Entry{
		Title:  title,
		URL:    url,
		Type:   TypeUnknown,
		status: StatusPending,
	}
}

// Status returns the entry's current status.
func (e *Entry) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// Err returns the failure message recorded for the entry, if any.
func (e *Entry) Err() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.err
}

// Transition moves the entry to the next status.
// message is stored only when moving to StatusError.
func (e *Entry) Transition(to Status, message string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, allowed := range transitions[e.status] {
		if allowed == to {
			e.status = to
			if to == StatusError {
				e.err = message
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.status, to)
}

// Settle drives a pending or processed entry to a terminal status,
// passing through StatusProcessed when needed.
func (e *Entry) Settle(to Status, message string) error {
	if e.Status() == StatusPending {
		if err := e.Transition(StatusProcessed, ""); err != nil {
			return err
		}
	}
	return e.Transition(to, message)
}
