package driven

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"go.etcd.io/bbolt"

	"github.com/alorle/catalog-sync/internal/run"
)

const (
	runsBucket = "runs"
)

// RunBoltDBRepository implements the RunRepository port using BoltDB.
type RunBoltDBRepository struct {
	db *bbolt.DB
}

// NewRunBoltDBRepository creates a new BoltDB-backed run repository.
// It initializes the required bucket if it doesn't exist.
func NewRunBoltDBRepository(db *bbolt.DB) (*RunBoltDBRepository, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}

	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(runsBucket))
		return err
	})
	if err != nil {
		return nil, err
	}

	return &RunBoltDBRepository{db: db}, nil
}

// runDTO is used for JSON serialization.
type runDTO struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Outcome    string          `json:"outcome"`
	Counters   run.Counters    `json:"counters"`
	Total      int             `json:"total"`
	Processed  int             `json:"processed"`
	Duplicates int             `json:"duplicates"`
	Failed     int             `json:"failed"`
	Updated    int             `json:"updated"`
	Error      string          `json:"error,omitempty"`
	ItemErrors []run.ItemError `json:"item_errors,omitempty"`
	StartedAt  string          `json:"started_at"`
	FinishedAt string          `json:"finished_at,omitempty"`
}

func runToDTO(s run.Summary) runDTO {
	dto := runDTO{
		ID:         s.ID,
		Kind:       string(s.Kind),
		Outcome:    string(s.Outcome),
		Counters:   s.Counters,
		Total:      s.Total,
		Processed:  s.Processed,
		Duplicates: s.Duplicates,
		Failed:     s.Failed,
		Updated:    s.Updated,
		Error:      s.Error,
		ItemErrors: s.ItemErrors,
		StartedAt:  s.StartedAt.Format(time.RFC3339Nano),
	}
	if !s.FinishedAt.IsZero() {
		dto.FinishedAt = s.FinishedAt.Format(time.RFC3339Nano)
	}
	return dto
}

func dtoToRun(dto runDTO) (run.Summary, error) {
	startedAt, err := time.Parse(time.RFC3339Nano, dto.StartedAt)
	if err != nil {
		return run.Summary{}, err
	}

	var finishedAt time.Time
	if dto.FinishedAt != "" {
		finishedAt, err = time.Parse(time.RFC3339Nano, dto.FinishedAt)
		if err != nil {
			return run.Summary{}, err
		}
	}

	return run.Summary{
		ID:         dto.ID,
		Kind:       run.Kind(dto.Kind),
		Outcome:    run.Outcome(dto.Outcome),
		Counters:   dto.Counters,
		Total:      dto.Total,
		Processed:  dto.Processed,
		Duplicates: dto.Duplicates,
		Failed:     dto.Failed,
		Updated:    dto.Updated,
		Error:      dto.Error,
		ItemErrors: dto.ItemErrors,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}, nil
}

// Save persists a run summary to BoltDB.
func (r *RunBoltDBRepository) Save(ctx context.Context, s run.Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.ID == "" {
		return errors.New("run id cannot be empty")
	}

	data, err := json.Marshal(runToDTO(s))
	if err != nil {
		return err
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(runsBucket))
		if bucket == nil {
			return errors.New("runs bucket not found")
		}
		return bucket.Put([]byte(s.ID), data)
	})
}

// FindByID retrieves a run summary by its id from BoltDB.
func (r *RunBoltDBRepository) FindByID(ctx context.Context, id string) (run.Summary, error) {
	if err := ctx.Err(); err != nil {
		return run.Summary{}, err
	}

	var s run.Summary

	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(runsBucket))
		if bucket == nil {
			return errors.New("runs bucket not found")
		}

		data := bucket.Get([]byte(id))
		if data == nil {
			return run.ErrRunNotFound
		}

		var dto runDTO
		if err := json.Unmarshal(data, &dto); err != nil {
			return err
		}

		reconstructed, err := dtoToRun(dto)
		if err != nil {
			return err
		}

		s = reconstructed
		return nil
	})

	return s, err
}

// FindAll retrieves all run summaries from BoltDB, newest first.
func (r *RunBoltDBRepository) FindAll(ctx context.Context) ([]run.Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runs := []run.Summary{}

	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(runsBucket))
		if bucket == nil {
			return errors.New("runs bucket not found")
		}

		return bucket.ForEach(func(k, v []byte) error {
			var dto runDTO
			if err := json.Unmarshal(v, &dto); err != nil {
				return err
			}

			s, err := dtoToRun(dto)
			if err != nil {
				return err
			}

			runs = append(runs, s)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	return runs, nil
}

// Ping checks if the BoltDB database is accessible and operational.
func (r *RunBoltDBRepository) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(runsBucket)) == nil {
			return errors.New("runs bucket not found")
		}
		return nil
	})
}
