package driven

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.etcd.io/bbolt"

	"github.com/alorle/catalog-sync/internal/run"
)

// setupTestDB creates a temporary BoltDB instance for testing.
func setupTestDB(t *testing.T) *bbolt.DB {
	t.Helper()

	db, err := bbolt.Open(filepath.Join(t.TempDir(), "test.db"), 0600, nil)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func testSummary(id string, startedAt time.Time) run.Summary {
	return run.Summary{
		ID:         id,
		Kind:       run.KindImport,
		Outcome:    run.OutcomeCompleted,
		Counters:   run.Counters{Total: 3, Movies: 1, Series: 1},
		Total:      3,
		Processed:  3,
		Duplicates: 0,
		ItemErrors: []run.ItemError{{Item: "Show T1|EP2", Message: "boom"}},
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(time.Second),
	}
}

func TestNewRunBoltDBRepository(t *testing.T) {
	t.Run("creates repository and bucket successfully", func(t *testing.T) {
		db := setupTestDB(t)

		repo, err := NewRunBoltDBRepository(db)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if repo == nil {
			t.Fatal("expected non-nil repository")
		}

		err = db.View(func(tx *bbolt.Tx) error {
			if tx.Bucket([]byte(runsBucket)) == nil {
				t.Error("expected runs bucket to exist")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("failed to verify bucket: %v", err)
		}
	})

	t.Run("returns error for nil database", func(t *testing.T) {
		if _, err := NewRunBoltDBRepository(nil); err == nil {
			t.Error("expected error for nil database")
		}
	})
}

func TestRunBoltDBRepository_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	repo, err := NewRunBoltDBRepository(setupTestDB(t))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	want := testSummary("run-1", started)

	if err := repo.Save(ctx, want); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	got, err := repo.FindByID(ctx, "run-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Counters != want.Counters {
		t.Errorf("expected counters %+v, got %+v", want.Counters, got.Counters)
	}
	if !got.StartedAt.Equal(started) || !got.FinishedAt.Equal(want.FinishedAt) {
		t.Errorf("expected timestamps to survive, got %v / %v", got.StartedAt, got.FinishedAt)
	}
	if got.Outcome != run.OutcomeCompleted || got.Kind != run.KindImport {
		t.Errorf("unexpected kind/outcome %s/%s", got.Kind, got.Outcome)
	}
	if len(got.ItemErrors) != 1 || got.ItemErrors[0].Item != "Show T1|EP2" {
		t.Errorf("expected item errors to survive, got %+v", got.ItemErrors)
	}

	t.Run("save replaces existing run", func(t *testing.T) {
		want.Outcome = run.OutcomeCancelled
		if err := repo.Save(ctx, want); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		got, _ := repo.FindByID(ctx, "run-1")
		if got.Outcome != run.OutcomeCancelled {
			t.Errorf("expected cancelled, got %s", got.Outcome)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		if _, err := repo.FindByID(ctx, "missing"); !errors.Is(err, run.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})

	t.Run("empty id is rejected", func(t *testing.T) {
		if err := repo.Save(ctx, run.Summary{}); err == nil {
			t.Error("expected error for empty id")
		}
	})
}

func TestRunBoltDBRepository_FindAll(t *testing.T) {
	ctx := context.Background()
	repo, err := NewRunBoltDBRepository(setupTestDB(t))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}

	runs, err := repo.FindAll(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if runs == nil || len(runs) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", runs)
	}

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"b", "c", "a"} {
		if err := repo.Save(ctx, testSummary(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("failed to save %s: %v", id, err)
		}
	}

	runs, err = repo.FindAll(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	for i, want := range []string{"a", "c", "b"} {
		if runs[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, runs[i].ID)
		}
	}
}

func TestRunBoltDBRepository_Ping(t *testing.T) {
	repo, err := NewRunBoltDBRepository(setupTestDB(t))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}

	if err := repo.Ping(context.Background()); err != nil {
		t.Errorf("expected healthy ping, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := repo.Ping(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}
