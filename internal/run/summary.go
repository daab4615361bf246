package run

import (
	"errors"
	"time"
)

// Domain errors for run operations.
var (
	ErrRunNotFound   = errors.New("run not found")
	ErrRunInProgress = errors.New("another run is in progress")
	ErrNoActiveRun   = errors.New("no run is in progress")
)

// Summary is the report of a run. It is what gets persisted once the run
// finishes.
type Summary struct {
	ID         string      `json:"id"`
	Kind       Kind        `json:"kind"`
	Outcome    Outcome     `json:"outcome"`
	Counters   Counters    `json:"counters"`
	Total      int         `json:"total"`
	Processed  int         `json:"processed"`
	Duplicates int         `json:"duplicates"`
	Failed     int         `json:"failed"`
	Updated    int         `json:"updated"`
	Error      string      `json:"error,omitempty"`
	ItemErrors []ItemError `json:"item_errors,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// Duration is how long the run took, or has taken so far.
func (s Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Snapshot is a point-in-time view of a live run.
type Snapshot struct {
	Summary
	Progress        float64 `json:"progress"`
	Complete        bool    `json:"complete"`
	CancelRequested bool    `json:"cancel_requested"`
}
