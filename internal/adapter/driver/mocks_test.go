package driver

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/alorle/catalog-sync/internal/adapter/driven"
	"github.com/alorle/catalog-sync/internal/application"
	"github.com/alorle/catalog-sync/internal/catalog"
	"github.com/alorle/catalog-sync/internal/playlist"
	"github.com/alorle/catalog-sync/internal/schema"
)

const testPlaylist = `#EXTM3U
#EXTINF:-1 tvg-logo="https://img.example.com/matrix.jpg" group-title="Filmes",Matrix (1999)
https://cdn.example.com/matrix.mp4
#EXTINF:-1 group-title="Series",Show T1|EP1
https://cdn.example.com/show/1.mp4
#EXTINF:-1 group-title="Series",Show T1|EP2
https://cdn.example.com/show/2.mp4
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockRowStore is a mock implementation of driven.RowStore for testing.
type mockRowStore struct {
	listFunc       func(ctx context.Context, table catalog.TableKind, opts catalog.ListOptions) (catalog.Page, error)
	configuredFunc func(table catalog.TableKind) bool
	pingFunc       func(ctx context.Context) error

	nextID atomic.Int64
}

func (m *mockRowStore) List(ctx context.Context, table catalog.TableKind, opts catalog.ListOptions) (catalog.Page, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, table, opts)
	}
	return catalog.Page{}, nil
}

func (m *mockRowStore) Create(ctx context.Context, table catalog.TableKind, fields map[string]any) (catalog.Row, error) {
	return catalog.Row{ID: int(m.nextID.Add(1)), Fields: fields}, nil
}

func (m *mockRowStore) Update(ctx context.Context, table catalog.TableKind, id int, fields map[string]any) (catalog.Row, error) {
	return catalog.Row{ID: id, Fields: fields}, nil
}

func (m *mockRowStore) Delete(ctx context.Context, table catalog.TableKind, id int) error {
	return nil
}

func (m *mockRowStore) Configured(table catalog.TableKind) bool {
	if m.configuredFunc != nil {
		return m.configuredFunc(table)
	}
	return true
}

func (m *mockRowStore) Ping(ctx context.Context) error {
	if m.pingFunc != nil {
		return m.pingFunc(ctx)
	}
	return nil
}

// blockingStore returns a store whose listings wait until release is closed.
func blockingStore(release <-chan struct{}) *mockRowStore {
	return &mockRowStore{
		listFunc: func(ctx context.Context, table catalog.TableKind, opts catalog.ListOptions) (catalog.Page, error) {
			select {
			case <-release:
			case <-ctx.Done():
				return catalog.Page{}, ctx.Err()
			}
			return catalog.Page{}, nil
		},
	}
}

// testApp wires the application services over a mock row store and a
// real run repository.
type testApp struct {
	coordinator *application.Coordinator
	imports     *application.ImportService
	health      *application.HealthService
	runs        *driven.RunBoltDBRepository
	db          *bbolt.DB
}

func newTestApp(t *testing.T, store *mockRowStore) *testApp {
	t.Helper()

	db, err := bbolt.Open(filepath.Join(t.TempDir(), "runs.db"), 0600, &bbolt.Options{Timeout: time.Second})
	require.NoError(t, err)

	runs, err := driven.NewRunBoltDBRepository(db)
	require.NoError(t, err)

	s := schema.Default()
	parser := playlist.NewParser("", discardLogger())
	imports := application.NewImportService(store, application.NewDuplicateResolver(store, s), s, parser, application.ImportConfig{Concurrency: 1}, discardLogger())
	rewrites := application.NewRewriteService(store, s, 50, discardLogger())
	coordinator := application.NewCoordinator(imports, rewrites, runs, discardLogger())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = coordinator.Shutdown(ctx)
		_ = db.Close()
	})

	return &testApp{
		coordinator: coordinator,
		imports:     imports,
		health:      application.NewHealthService(runs, store),
		runs:        runs,
		db:          db,
	}
}

// waitForIdle blocks until the coordinator reports no active run.
func waitForIdle(t *testing.T, c *application.Coordinator) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap, err := c.Current()
		return err == nil && snap.Complete
	}, 5*time.Second, 10*time.Millisecond)
}
