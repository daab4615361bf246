package application

import (
	"context"
	"errors"
	"testing"
)

func TestHealthService_Check(t *testing.T) {
	tests := []struct {
		name       string
		dbErr      error
		storeErr   error
		wantStatus string
		wantDB     string
		wantStore  string
	}{
		{"all healthy", nil, nil, "ok", "ok", "ok"},
		{"database down", errors.New("db closed"), nil, "degraded", "error", "ok"},
		{"row store down", nil, errors.New("unauthorized"), "degraded", "ok", "error"},
		{"everything down", errors.New("db closed"), errors.New("unauthorized"), "degraded", "error", "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &mockRunRepository{pingFunc: func(ctx context.Context) error { return tt.dbErr }}
			store := &mockRowStore{pingFunc: func(ctx context.Context) error { return tt.storeErr }}

			status := NewHealthService(db, store).Check(context.Background())

			if status.Status != tt.wantStatus {
				t.Errorf("expected status %q, got %q", tt.wantStatus, status.Status)
			}
			if status.DB.Status != tt.wantDB {
				t.Errorf("expected db status %q, got %q", tt.wantDB, status.DB.Status)
			}
			if status.RowStore.Status != tt.wantStore {
				t.Errorf("expected row store status %q, got %q", tt.wantStore, status.RowStore.Status)
			}
			if tt.storeErr != nil && status.RowStore.Error != tt.storeErr.Error() {
				t.Errorf("expected row store error %q, got %q", tt.storeErr, status.RowStore.Error)
			}
		})
	}
}
