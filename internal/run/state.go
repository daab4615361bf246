package run

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the operation a run performs.
type Kind string

const (
	KindImport  Kind = "import"
	KindRewrite Kind = "rewrite"
)

// Outcome is how a finished run ended.
type Outcome string

const (
	OutcomeRunning   Outcome = "running"
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// maxItemErrors bounds the per-item failures kept for reporting.
const maxItemErrors = 500

// Counters aggregates what an import created.
type Counters struct {
	Total  int `json:"total"`
	Movies int `json:"movies"`
	Series int `json:"series"`
	TV     int `json:"tv"`
}

// ItemError is a failure isolated to one work item.
type ItemError struct {
	Item    string `json:"item"`
	Message string `json:"message"`
}

// State is the live progress of one run. Every method is safe for
// concurrent use; readers get copies via Snapshot.
type State struct {
	id        string
	kind      Kind
	startedAt time.Time
	cancel    atomic.Bool

	mu         sync.Mutex
	total      int
	processed  int
	duplicates int
	failed     int
	updated    int
	progress   float64
	counters   Counters
	itemErrors []ItemError
	complete   bool
	err        error
	finishedAt time.Time
}

// NewState starts a run of the given kind.
func NewState(kind Kind) *State {
	return &State{
		id:        uuid.NewString(),
		kind:      kind,
		startedAt: time.Now().UTC(),
	}
}

func (s *State) ID() string { return s.id }
func (s *State) Kind() Kind { return s.kind }

// RequestCancel asks the run to stop at its next check point.
// Once requested, cancellation cannot be withdrawn.
func (s *State) RequestCancel() { s.cancel.Store(true) }

// CancelRequested reports whether RequestCancel was called.
func (s *State) CancelRequested() bool { return s.cancel.Load() }

// SetTotal records the number of work items of the run.
func (s *State) SetTotal(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = n
}

// AddProcessed counts n items as settled and returns the new count.
func (s *State) AddProcessed(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed += n
	return s.processed
}

// Processed returns the number of settled items.
func (s *State) Processed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed
}

// AddDuplicates counts n items skipped because they already exist.
func (s *State) AddDuplicates(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duplicates += n
}

// RecordItemError counts a failed item and keeps its message.
func (s *State) RecordItemError(item, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed++
	if len(s.itemErrors) < maxItemErrors {
		s.itemErrors = append(s.itemErrors, ItemError{Item: item, Message: message})
	}
}

// RecordMovie counts an uploaded movie.
func (s *State) RecordMovie() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.Movies++
	s.counters.Total++
}

// RecordTV counts an uploaded live channel.
func (s *State) RecordTV() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.TV++
	s.counters.Total++
}

// RecordUploaded counts an uploaded episode or an entry of unknown kind.
func (s *State) RecordUploaded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.Total++
}

// RecordSeries counts a created series parent row.
func (s *State) RecordSeries() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.Series++
}

// RecordUpdated counts a rewritten row.
func (s *State) RecordUpdated() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated++
	return s.updated
}

// SetProgress moves the progress bar. Progress never goes backwards and
// is clamped to [0, 100].
func (s *State) SetProgress(percent float64) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if percent > s.progress {
		s.progress = percent
	}
}

// Fail records a run-level error. Only the first error is kept.
func (s *State) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Err returns the run-level error, if any.
func (s *State) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Complete marks the run finished. It is terminal and idempotent.
func (s *State) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.complete {
		return
	}
	s.complete = true
	s.finishedAt = time.Now().UTC()
	if s.err == nil && !s.interruptedLocked() {
		s.progress = 100
	}
}

// IsComplete reports whether Complete was called.
func (s *State) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complete
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Summary:         s.summaryLocked(),
		Progress:        s.progress,
		Complete:        s.complete,
		CancelRequested: s.cancel.Load(),
	}
}

// Summary returns the report of the run so far.
func (s *State) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryLocked()
}

func (s *State) summaryLocked() Summary {
	sum := Summary{
		ID:         s.id,
		Kind:       s.kind,
		Outcome:    s.outcomeLocked(),
		Counters:   s.counters,
		Total:      s.total,
		Processed:  s.processed,
		Duplicates: s.duplicates,
		Failed:     s.failed,
		Updated:    s.updated,
		StartedAt:  s.startedAt,
		FinishedAt: s.finishedAt,
	}
	if s.err != nil {
		sum.Error = s.err.Error()
	}
	if len(s.itemErrors) > 0 {
		sum.ItemErrors = append([]ItemError(nil), s.itemErrors...)
	}
	return sum
}

func (s *State) outcomeLocked() Outcome {
	switch {
	case s.err != nil:
		return OutcomeFailed
	case !s.complete:
		return OutcomeRunning
	case s.interruptedLocked():
		return OutcomeCancelled
	default:
		return OutcomeCompleted
	}
}

// interruptedLocked reports whether a cancel request cut the run short.
func (s *State) interruptedLocked() bool {
	return s.cancel.Load() && (s.total == 0 || s.processed < s.total)
}
