package application

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/alorle/catalog-sync/internal/batch"
	"github.com/alorle/catalog-sync/internal/catalog"
	"github.com/alorle/catalog-sync/internal/metrics"
	"github.com/alorle/catalog-sync/internal/port/driven"
	"github.com/alorle/catalog-sync/internal/run"
	"github.com/alorle/catalog-sync/internal/schema"
)

// RewriteRequest asks for every occurrence of Source in the URL fields of
// Table to be replaced with Target.
type RewriteRequest struct {
	Table  catalog.TableKind
	Source string
	Target string
}

// RewriteService rewrites URLs across every row of a table.
type RewriteService struct {
	store    driven.RowStore
	schema   schema.Schema
	pageSize int
	logger   *slog.Logger
}

// NewRewriteService creates a new RewriteService. pageSize is the number of
// rows fetched per listing call while scanning.
func NewRewriteService(store driven.RowStore, s schema.Schema, pageSize int, logger *slog.Logger) *RewriteService {
	if pageSize < 1 {
		pageSize = 200
	}
	return &RewriteService{
		store:    store,
		schema:   s,
		pageSize: pageSize,
		logger:   logger,
	}
}

// Validate checks a request before a run is started for it.
func (s *RewriteService) Validate(req RewriteRequest) error {
	if req.Source == "" {
		return ErrEmptySource
	}
	if req.Source == req.Target {
		return ErrSourceIsTarget
	}
	t, err := s.schema.Table(req.Table)
	if err != nil {
		return err
	}
	if t.URLField == "" {
		return fmt.Errorf("%w: %s", ErrNoURLFieldMapped, req.Table)
	}
	if !s.store.Configured(req.Table) {
		return fmt.Errorf("%w: %s", catalog.ErrTableNotConfigured, req.Table)
	}
	return nil
}

// Rewrite scans the whole table, then updates the matching rows one at a
// time. It returns the number of rows updated. A failed row is reported and
// skipped; a failed scan fails the run. Cancellation is checked between
// pages and before each row and ends the run with the count so far.
func (s *RewriteService) Rewrite(ctx context.Context, req RewriteRequest, st *run.State, cb Callbacks) (int, error) {
	logger := s.logger.With("run_id", st.ID(), "table", req.Table)

	shouldCancel := func() bool {
		if st.CancelRequested() {
			return true
		}
		if ctx.Err() != nil || (cb.ShouldCancel != nil && cb.ShouldCancel()) {
			st.RequestCancel()
			return true
		}
		return false
	}

	if err := s.Validate(req); err != nil {
		return s.finish(logger, st, cb, err)
	}
	t, _ := s.schema.Table(req.Table)

	logger.Info("rewrite started", "source", req.Source, "target", req.Target)

	matches, err := s.scan(ctx, req, t, shouldCancel)
	if err != nil {
		return s.finish(logger, st, cb, err)
	}
	st.SetTotal(len(matches))
	logger.Info("rewrite scan finished", "matches", len(matches))

	if len(matches) == 0 || shouldCancel() {
		if len(matches) == 0 && !st.CancelRequested() {
			st.SetProgress(100)
		}
		return s.finish(logger, st, cb, nil)
	}

	batch.Run(ctx, matches, func(ctx context.Context, row catalog.Row) (catalog.Row, error) {
		updated, err := s.store.Update(ctx, req.Table, row.ID, rewriteFields(row, t, req))
		if err != nil {
			return catalog.Row{}, err
		}
		st.RecordUpdated()
		st.AddProcessed(1)
		return updated, nil
	}, batch.Options[catalog.Row]{
		Concurrency:  1,
		ShouldCancel: shouldCancel,
		OnError: func(err error, row catalog.Row, _ int) {
			logger.Warn("failed to rewrite row", "row_id", row.ID, "error", err)
			st.RecordItemError(strconv.Itoa(row.ID), err.Error())
			st.AddProcessed(1)
		},
		OnProgress: func(processed, total int) {
			st.SetProgress(100 * float64(processed) / float64(total))
			if cb.OnProgress != nil {
				cb.OnProgress(processed, total)
			}
		},
	})

	return s.finish(logger, st, cb, nil)
}

// scan collects every row whose URL field contains the source substring.
// The listing is narrowed with a server-side contains filter; the remote
// match ignores case, so rows are matched again literally here.
func (s *RewriteService) scan(ctx context.Context, req RewriteRequest, t schema.Table, shouldCancel func() bool) ([]catalog.Row, error) {
	var matches []catalog.Row
	filters := []catalog.Filter{{Field: t.URLField, Op: catalog.FilterContains, Value: req.Source}}

	for page := 1; ; page++ {
		if shouldCancel() {
			return matches, nil
		}

		p, err := s.store.List(ctx, req.Table, catalog.ListOptions{Page: page, Size: s.pageSize, Filters: filters})
		if err != nil {
			return nil, fmt.Errorf("failed to scan page %d: %w", page, err)
		}

		for _, row := range p.Rows {
			if strings.Contains(row.String(t.URLField), req.Source) {
				matches = append(matches, row)
			}
		}

		if !p.HasNext || len(p.Rows) == 0 {
			return matches, nil
		}
	}
}

// rewriteFields builds the partial update for row. The secondary URL field
// is included only when it also contains the source.
func rewriteFields(row catalog.Row, t schema.Table, req RewriteRequest) map[string]any {
	fields := map[string]any{
		t.URLField: strings.ReplaceAll(row.String(t.URLField), req.Source, req.Target),
	}
	if t.SecondaryURLField != "" {
		if v := row.String(t.SecondaryURLField); strings.Contains(v, req.Source) {
			fields[t.SecondaryURLField] = strings.ReplaceAll(v, req.Source, req.Target)
		}
	}
	return fields
}

func (s *RewriteService) finish(logger *slog.Logger, st *run.State, cb Callbacks, err error) (int, error) {
	if err != nil {
		logger.Error("rewrite failed", "error", err)
		st.Fail(err)
		if cb.OnError != nil {
			cb.OnError(err)
		}
	}

	st.Complete()
	summary := st.Summary()
	metrics.RecordRowsRewritten(summary.Updated)

	logger.Info("rewrite finished",
		"outcome", summary.Outcome,
		"updated", summary.Updated,
		"failed", summary.Failed)

	if cb.OnComplete != nil {
		cb.OnComplete(summary)
	}
	return summary.Updated, err
}
