package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/alorle/catalog-sync/internal/catalog"
	"github.com/alorle/catalog-sync/internal/run"
	"github.com/alorle/catalog-sync/internal/schema"
)

// seedRows fills contents with n rows; rows whose index is in hits point at
// old.cdn.com.
func seedRows(store *memoryRowStore, n int, hits ...int) {
	isHit := make(map[int]bool, len(hits))
	for _, h := range hits {
		isHit[h] = true
	}
	for i := 0; i < n; i++ {
		host := "keep.cdn.com"
		if isHit[i] {
			host = "old.cdn.com"
		}
		store.seed(catalog.TableContents, map[string]any{
			schema.FieldTitle: fmt.Sprintf("Title %d", i),
			schema.FieldURL:   fmt.Sprintf("https://%s/%d.mp4", host, i),
			schema.FieldImage: fmt.Sprintf("https://img.example.com/%d.jpg", i),
		})
	}
}

func newTestRewriteService(store *memoryRowStore) *RewriteService {
	return NewRewriteService(store, schema.Default(), 20, discardLogger())
}

func TestRewriteService_Rewrite(t *testing.T) {
	store := newMemoryRowStore()
	seedRows(store, 50, 4, 21, 47)
	svc := newTestRewriteService(store)

	var progress []int
	updated, err := svc.Rewrite(context.Background(), RewriteRequest{
		Table:  catalog.TableContents,
		Source: "old.cdn.com",
		Target: "new.cdn.com",
	}, run.NewState(run.KindRewrite), Callbacks{
		OnProgress: func(processed, total int) {
			if total != 3 {
				t.Errorf("expected total 3, got %d", total)
			}
			progress = append(progress, processed)
		},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if updated != 3 {
		t.Errorf("expected 3 rows updated, got %d", updated)
	}
	if _, updates := store.counts(); updates != 3 {
		t.Errorf("expected exactly 3 update calls, got %d", updates)
	}
	if len(progress) != 3 || progress[2] != 3 {
		t.Errorf("expected progress after every row, got %v", progress)
	}

	untouched := 0
	for _, row := range store.tableRows(catalog.TableContents) {
		u := row.String(schema.FieldURL)
		if strings.Contains(u, "old.cdn.com") {
			t.Errorf("row %d still points at the old host: %s", row.ID, u)
		}
		if strings.Contains(u, "keep.cdn.com") {
			untouched++
		}
	}
	if untouched != 47 {
		t.Errorf("expected 47 untouched rows, got %d", untouched)
	}
}

func TestRewriteService_ReplacesAllOccurrences(t *testing.T) {
	store := newMemoryRowStore()
	row := store.seed(catalog.TableContents, map[string]any{
		schema.FieldTitle: "Mirror",
		schema.FieldURL:   "https://old.cdn.com/a?fallback=old.cdn.com",
		schema.FieldImage: "https://old.cdn.com/a.jpg",
	})
	other := store.seed(catalog.TableContents, map[string]any{
		schema.FieldTitle: "Plain",
		schema.FieldURL:   "https://old.cdn.com/b",
		schema.FieldImage: "https://img.example.com/b.jpg",
	})
	svc := newTestRewriteService(store)

	_, err := svc.Rewrite(context.Background(), RewriteRequest{
		Table:  catalog.TableContents,
		Source: "old.cdn.com",
		Target: "new.cdn.com",
	}, run.NewState(run.KindRewrite), Callbacks{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	for _, r := range store.tableRows(catalog.TableContents) {
		switch r.ID {
		case row.ID:
			if got := r.String(schema.FieldURL); got != "https://new.cdn.com/a?fallback=new.cdn.com" {
				t.Errorf("expected every occurrence replaced, got %s", got)
			}
			if got := r.String(schema.FieldImage); got != "https://new.cdn.com/a.jpg" {
				t.Errorf("expected secondary field rewritten, got %s", got)
			}
		case other.ID:
			if got := r.String(schema.FieldImage); got != "https://img.example.com/b.jpg" {
				t.Errorf("expected secondary field untouched, got %s", got)
			}
		}
	}
}

func TestRewriteService_RowFailureIsSkipped(t *testing.T) {
	store := newMemoryRowStore()
	seedRows(store, 10, 1, 2, 3)
	store.failUpdate = func(id int) error {
		if id == 3 {
			return &catalog.RemoteError{Status: 500, Message: "boom"}
		}
		return nil
	}
	svc := newTestRewriteService(store)

	st := run.NewState(run.KindRewrite)
	updated, err := svc.Rewrite(context.Background(), RewriteRequest{
		Table:  catalog.TableContents,
		Source: "old.cdn.com",
		Target: "new.cdn.com",
	}, st, Callbacks{})
	if err != nil {
		t.Fatalf("expected no run error, got %v", err)
	}

	if updated != 2 {
		t.Errorf("expected 2 rows updated, got %d", updated)
	}
	summary := st.Summary()
	if summary.Failed != 1 || summary.Processed != 3 {
		t.Errorf("expected 1 failure out of 3 processed, got %+v", summary)
	}
	if len(summary.ItemErrors) != 1 || summary.ItemErrors[0].Item != "3" {
		t.Errorf("expected failure recorded for row 3, got %+v", summary.ItemErrors)
	}
}

func TestRewriteService_Cancellation(t *testing.T) {
	store := newMemoryRowStore()
	seedRows(store, 10, 0, 1, 2, 3, 4)
	svc := newTestRewriteService(store)

	st := run.NewState(run.KindRewrite)
	updated, err := svc.Rewrite(context.Background(), RewriteRequest{
		Table:  catalog.TableContents,
		Source: "old.cdn.com",
		Target: "new.cdn.com",
	}, st, Callbacks{
		ShouldCancel: func() bool {
			_, updates := store.counts()
			return updates >= 2
		},
	})
	if err != nil {
		t.Fatalf("cancellation is not an error, got %v", err)
	}

	if updated != 2 {
		t.Errorf("expected 2 rows updated before cancelling, got %d", updated)
	}
	if got := st.Summary().Outcome; got != run.OutcomeCancelled {
		t.Errorf("expected cancelled, got %s", got)
	}
}

func TestRewriteService_ScanFailureFailsRun(t *testing.T) {
	store := &mockRowStore{
		listFunc: func(ctx context.Context, table catalog.TableKind, opts catalog.ListOptions) (catalog.Page, error) {
			if opts.Page == 2 {
				return catalog.Page{}, &catalog.RemoteError{Status: 503, Message: "down"}
			}
			return catalog.Page{Rows: []catalog.Row{{ID: 1, Fields: map[string]any{"url": "https://old.cdn.com/1"}}}, HasNext: true}, nil
		},
		updateFunc: func(ctx context.Context, table catalog.TableKind, id int, fields map[string]any) (catalog.Row, error) {
			t.Error("expected no updates after a failed scan")
			return catalog.Row{}, nil
		},
	}
	svc := NewRewriteService(store, schema.Default(), 1, discardLogger())

	var runErr error
	st := run.NewState(run.KindRewrite)
	_, err := svc.Rewrite(context.Background(), RewriteRequest{
		Table:  catalog.TableContents,
		Source: "old.cdn.com",
		Target: "new.cdn.com",
	}, st, Callbacks{OnError: func(err error) { runErr = err }})

	var remoteErr *catalog.RemoteError
	if !errors.As(err, &remoteErr) {
		t.Errorf("expected remote error, got %v", err)
	}
	if runErr == nil {
		t.Error("expected OnError to be called")
	}
	if st.Summary().Outcome != run.OutcomeFailed {
		t.Errorf("expected failed outcome, got %s", st.Summary().Outcome)
	}
}

func TestRewriteService_ScanNarrowsListingAndMatchesLiterally(t *testing.T) {
	var updatedIDs []int
	store := &mockRowStore{
		listFunc: func(ctx context.Context, table catalog.TableKind, opts catalog.ListOptions) (catalog.Page, error) {
			want := catalog.Filter{Field: schema.FieldURL, Op: catalog.FilterContains, Value: "old.cdn.com"}
			if len(opts.Filters) != 1 || opts.Filters[0] != want {
				t.Errorf("expected filter %+v, got %+v", want, opts.Filters)
			}
			// The remote contains filter is case-insensitive.
			return catalog.Page{Rows: []catalog.Row{
				{ID: 1, Fields: map[string]any{"url": "https://old.cdn.com/1.mp4"}},
				{ID: 2, Fields: map[string]any{"url": "https://OLD.CDN.COM/2.mp4"}},
			}}, nil
		},
		updateFunc: func(ctx context.Context, table catalog.TableKind, id int, fields map[string]any) (catalog.Row, error) {
			updatedIDs = append(updatedIDs, id)
			return catalog.Row{ID: id, Fields: fields}, nil
		},
	}
	svc := NewRewriteService(store, schema.Default(), 10, discardLogger())

	updated, err := svc.Rewrite(context.Background(), RewriteRequest{
		Table:  catalog.TableContents,
		Source: "old.cdn.com",
		Target: "new.cdn.com",
	}, run.NewState(run.KindRewrite), Callbacks{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if updated != 1 || len(updatedIDs) != 1 || updatedIDs[0] != 1 {
		t.Errorf("expected only row 1 to be updated, got %d %v", updated, updatedIDs)
	}
}

func TestRewriteService_Validate(t *testing.T) {
	store := newMemoryRowStore()
	store.unbound[catalog.TableBanners] = true
	svc := newTestRewriteService(store)

	tests := []struct {
		name string
		req  RewriteRequest
		want error
	}{
		{"empty source", RewriteRequest{Table: catalog.TableContents, Target: "x"}, ErrEmptySource},
		{"same source and target", RewriteRequest{Table: catalog.TableContents, Source: "a", Target: "a"}, ErrSourceIsTarget},
		{"unknown table", RewriteRequest{Table: "movies", Source: "a", Target: "b"}, catalog.ErrUnknownTable},
		{"unbound table", RewriteRequest{Table: catalog.TableBanners, Source: "a", Target: "b"}, catalog.ErrTableNotConfigured},
		{"valid", RewriteRequest{Table: catalog.TableEpisodes, Source: "a", Target: "b"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Validate(tt.req)
			if tt.want == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRewriteService_NoMatches(t *testing.T) {
	store := newMemoryRowStore()
	seedRows(store, 5)
	svc := newTestRewriteService(store)

	st := run.NewState(run.KindRewrite)
	updated, err := svc.Rewrite(context.Background(), RewriteRequest{
		Table:  catalog.TableContents,
		Source: "old.cdn.com",
		Target: "new.cdn.com",
	}, st, Callbacks{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if updated != 0 {
		t.Errorf("expected nothing updated, got %d", updated)
	}
	snap := st.Snapshot()
	if snap.Outcome != run.OutcomeCompleted || snap.Progress != 100 {
		t.Errorf("expected completed at 100%%, got %s at %v", snap.Outcome, snap.Progress)
	}
}
