package application

import (
	"context"

	"github.com/alorle/catalog-sync/internal/metrics"
	"github.com/alorle/catalog-sync/internal/port/driven"
)

// HealthService orchestrates health checks for the application and its dependencies.
type HealthService struct {
	db    driven.RunRepository
	store driven.RowStore
}

// NewHealthService creates a new health check service.
func NewHealthService(db driven.RunRepository, store driven.RowStore) *HealthService {
	return &HealthService{
		db:    db,
		store: store,
	}
}

// ComponentHealth represents the health status of a single component.
type ComponentHealth struct {
	Status string // "ok" or "error"
	Error  string // empty if status is "ok", otherwise contains error message
}

// HealthStatus represents the overall health status of the application.
type HealthStatus struct {
	Status   string          // "ok" if all components are healthy, "degraded" otherwise
	DB       ComponentHealth // database health
	RowStore ComponentHealth // remote row store health
}

// Check performs health checks on all dependencies.
// Returns the overall health status and individual component statuses.
func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:   "ok",
		DB:       check(ctx, s.db.Ping),
		RowStore: check(ctx, s.store.Ping),
	}

	if status.DB.Status != "ok" || status.RowStore.Status != "ok" {
		status.Status = "degraded"
		metrics.RecordHealthCheckFailure()
	}

	return status
}

func check(ctx context.Context, ping func(context.Context) error) ComponentHealth {
	if err := ping(ctx); err != nil {
		return ComponentHealth{
			Status: "error",
			Error:  err.Error(),
		}
	}
	return ComponentHealth{Status: "ok"}
}
