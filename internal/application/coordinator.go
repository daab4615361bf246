package application

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alorle/catalog-sync/internal/metrics"
	"github.com/alorle/catalog-sync/internal/port/driven"
	"github.com/alorle/catalog-sync/internal/run"
)

const saveTimeout = 5 * time.Second

// Coordinator runs imports and rewrites in the background, one at a time,
// and keeps their history.
type Coordinator struct {
	imports  *ImportService
	rewrites *RewriteService
	runs     driven.RunRepository
	logger   *slog.Logger

	// ctx is cancelled only when Shutdown gives up waiting.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	current *run.State
	// unsaved holds runs started but not yet handed to the repository.
	unsaved map[string]*run.State
}

// NewCoordinator creates a new Coordinator.
func NewCoordinator(imports *ImportService, rewrites *RewriteService, runs driven.RunRepository, logger *slog.Logger) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		imports:  imports,
		rewrites: rewrites,
		runs:     runs,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		unsaved:  make(map[string]*run.State),
	}
}

// StartImport parses a playlist and imports it in the background.
// Returns ErrEmptyPlaylist if nothing can be imported and
// run.ErrRunInProgress if another run is active.
func (c *Coordinator) StartImport(r io.Reader) (run.Snapshot, error) {
	entries, err := c.imports.Parse(r)
	if err != nil {
		return run.Snapshot{}, err
	}

	return c.start(run.KindImport, func(ctx context.Context, st *run.State) {
		c.imports.Import(ctx, entries, st, Callbacks{})
	})
}

// StartRewrite validates a rewrite request and runs it in the background.
// Returns run.ErrRunInProgress if another run is active.
func (c *Coordinator) StartRewrite(req RewriteRequest) (run.Snapshot, error) {
	if err := c.rewrites.Validate(req); err != nil {
		return run.Snapshot{}, err
	}

	return c.start(run.KindRewrite, func(ctx context.Context, st *run.State) {
		_, _ = c.rewrites.Rewrite(ctx, req, st, Callbacks{})
	})
}

func (c *Coordinator) start(kind run.Kind, job func(ctx context.Context, st *run.State)) (run.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && !c.current.IsComplete() {
		return run.Snapshot{}, run.ErrRunInProgress
	}
	if c.ctx.Err() != nil {
		return run.Snapshot{}, c.ctx.Err()
	}

	st := run.NewState(kind)
	c.current = st
	c.unsaved[st.ID()] = st
	metrics.RecordRunStarted(string(kind))
	c.logger.Info("run started", "run_id", st.ID(), "kind", kind)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("run panicked", "run_id", st.ID(), "panic", r)
				st.Fail(errPanicked)
			}
			c.settle(st)
		}()

		job(c.ctx, st)
	}()

	return st.Snapshot(), nil
}

// settle makes sure st is complete and records it. The run stays
// readable from memory until the save attempt returns.
func (c *Coordinator) settle(st *run.State) {
	defer func() {
		c.mu.Lock()
		delete(c.unsaved, st.ID())
		c.mu.Unlock()
	}()

	st.Complete()
	summary := st.Summary()

	metrics.RecordRunFinished(string(summary.Kind), string(summary.Outcome), summary.Duration())

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := c.runs.Save(ctx, summary); err != nil {
		c.logger.Error("failed to save run", "run_id", summary.ID, "error", err)
		return
	}

	c.logger.Info("run finished", "run_id", summary.ID, "kind", summary.Kind, "outcome", summary.Outcome, "duration", summary.Duration())
}

// Current returns the live view of the active or most recent run.
// Returns run.ErrNoActiveRun if no run was started since the process began.
func (c *Coordinator) Current() (run.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return run.Snapshot{}, run.ErrNoActiveRun
	}
	return c.current.Snapshot(), nil
}

// Cancel asks the active run to stop before its next unit of work.
// Returns run.ErrNoActiveRun if no run is in progress.
func (c *Coordinator) Cancel() (run.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || c.current.IsComplete() {
		return run.Snapshot{}, run.ErrNoActiveRun
	}

	c.current.RequestCancel()
	c.logger.Info("run cancellation requested", "run_id", c.current.ID())
	return c.current.Snapshot(), nil
}

// History lists finished runs, newest first.
func (c *Coordinator) History(ctx context.Context) ([]run.Summary, error) {
	return c.runs.FindAll(ctx)
}

// Get returns a run by id, live or finished.
// Returns run.ErrRunNotFound if the run does not exist.
func (c *Coordinator) Get(ctx context.Context, id string) (run.Summary, error) {
	c.mu.Lock()
	st, ok := c.unsaved[id]
	if !ok && c.current != nil && c.current.ID() == id {
		st, ok = c.current, true
	}
	c.mu.Unlock()

	if ok {
		return st.Summary(), nil
	}
	return c.runs.FindByID(ctx, id)
}

// Shutdown asks the active run to stop and waits for it. If ctx ends
// first, in-flight remote calls are aborted.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.current != nil && !c.current.IsComplete() {
		c.current.RequestCancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.cancel()
		return nil
	case <-ctx.Done():
		c.cancel()
		<-done
		return ctx.Err()
	}
}
