package driven

import (
	"context"

	"github.com/alorle/catalog-sync/internal/run"
)

// RunRepository defines the interface for run history persistence.
// This is a driven port that will be implemented by concrete adapters (e.g., BoltDB).
type RunRepository interface {
	// Save persists a run summary, replacing any summary with the same id.
	Save(ctx context.Context, s run.Summary) error

	// FindByID retrieves a run summary. Returns run.ErrRunNotFound if the
	// run does not exist.
	FindByID(ctx context.Context, id string) (run.Summary, error)

	// FindAll retrieves all run summaries, newest first.
	FindAll(ctx context.Context) ([]run.Summary, error)

	// Ping checks if the repository (database) is accessible and operational.
	Ping(ctx context.Context) error
}
