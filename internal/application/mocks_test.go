package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/alorle/catalog-sync/internal/catalog"
	"github.com/alorle/catalog-sync/internal/run"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockRowStore is a mock implementation of driven.RowStore for testing.
type mockRowStore struct {
	listFunc       func(ctx context.Context, table catalog.TableKind, opts catalog.ListOptions) (catalog.Page, error)
	createFunc     func(ctx context.Context, table catalog.TableKind, fields map[string]any) (catalog.Row, error)
	updateFunc     func(ctx context.Context, table catalog.TableKind, id int, fields map[string]any) (catalog.Row, error)
	deleteFunc     func(ctx context.Context, table catalog.TableKind, id int) error
	configuredFunc func(table catalog.TableKind) bool
	pingFunc       func(ctx context.Context) error
}

func (m *mockRowStore) List(ctx context.Context, table catalog.TableKind, opts catalog.ListOptions) (catalog.Page, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, table, opts)
	}
	return catalog.Page{}, nil
}

func (m *mockRowStore) Create(ctx context.Context, table catalog.TableKind, fields map[string]any) (catalog.Row, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, table, fields)
	}
	return catalog.Row{ID: 1, Fields: fields}, nil
}

func (m *mockRowStore) Update(ctx context.Context, table catalog.TableKind, id int, fields map[string]any) (catalog.Row, error) {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, table, id, fields)
	}
	return catalog.Row{ID: id, Fields: fields}, nil
}

func (m *mockRowStore) Delete(ctx context.Context, table catalog.TableKind, id int) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, table, id)
	}
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

// memoryRowStore is an in-memory driven.RowStore that honours filters and
// pagination, for end-to-end use case tests.
type memoryRowStore struct {
	mu      sync.Mutex
	nextID  int
	rows    map[catalog.TableKind][]catalog.Row
	unbound map[catalog.TableKind]bool

	creates int
	updates int

	// failCreate and failUpdate inject per-row failures when set.
	failCreate func(table catalog.TableKind, fields map[string]any) error
	failUpdate func(id int) error
}

func newMemoryRowStore() *memoryRowStore {
	return &memoryRowStore{
		rows:    make(map[catalog.TableKind][]catalog.Row),
		unbound: make(map[catalog.TableKind]bool),
	}
}

func (m *memoryRowStore) seed(table catalog.TableKind, fields map[string]any) catalog.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	row := catalog.Row{ID: m.nextID, Fields: copyFields(fields)}
	m.rows[table] = append(m.rows[table], row)
	return row
}

func (m *memoryRowStore) List(ctx context.Context, table catalog.TableKind, opts catalog.ListOptions) (catalog.Page, error) {
	if !m.Configured(table) {
		return catalog.Page{}, fmt.Errorf("%w: %s", catalog.ErrTableNotConfigured, table)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []catalog.Row
	for _, row := range m.rows[table] {
		if matches(row, opts.Filters) {
			matched = append(matched, catalog.Row{ID: row.ID, Fields: copyFields(row.Fields)})
		}
	}

	page, size := opts.Page, opts.Size
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 100
	}
	start := (page - 1) * size
	if start > len(matched) {
		start = len(matched)
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}

	return catalog.Page{
		Rows:    matched[start:end],
		Count:   len(matched),
		HasNext: end < len(matched),
	}, nil
}

func (m *memoryRowStore) Create(ctx context.Context, table catalog.TableKind, fields map[string]any) (catalog.Row, error) {
	if !m.Configured(table) {
		return catalog.Row{}, fmt.Errorf("%w: %s", catalog.ErrTableNotConfigured, table)
	}
	if m.failCreate != nil {
		if err := m.failCreate(table, fields); err != nil {
			return catalog.Row{}, err
		}
	}

	m.mu.Lock()
	m.creates++
	m.mu.Unlock()

	return m.seed(table, fields), nil
}

func (m *memoryRowStore) Update(ctx context.Context, table catalog.TableKind, id int, fields map[string]any) (catalog.Row, error) {
	if m.failUpdate != nil {
		if err := m.failUpdate(id); err != nil {
			return catalog.Row{}, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++

	for i, row := range m.rows[table] {
		if row.ID == id {
			for k, v := range fields {
				m.rows[table][i].Fields[k] = v
			}
			return catalog.Row{ID: id, Fields: copyFields(m.rows[table][i].Fields)}, nil
		}
	}
	return catalog.Row{}, catalog.ErrRowNotFound
}

func (m *memoryRowStore) Delete(ctx context.Context, table catalog.TableKind, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, row := range m.rows[table] {
		if row.ID == id {
			m.rows[table] = append(m.rows[table][:i], m.rows[table][i+1:]...)
			return nil
		}
	}
	return catalog.ErrRowNotFound
}

func (m *memoryRowStore) Configured(table catalog.TableKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.unbound[table]
}

func (m *memoryRowStore) Ping(ctx context.Context) error {
	return nil
}

func (m *memoryRowStore) tableRows(table catalog.TableKind) []catalog.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]catalog.Row(nil), m.rows[table]...)
}

func (m *memoryRowStore) counts() (creates, updates int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates, m.updates
}

func matches(row catalog.Row, filters []catalog.Filter) bool {
	for _, f := range filters {
		v := row.String(f.Field)
		switch f.Op {
		case catalog.FilterContains:
			if !strings.Contains(v, f.Value) {
				return false
			}
		default:
			if v != f.Value {
				return false
			}
		}
	}
	return true
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// mockRunRepository is a mock implementation of driven.RunRepository for testing.
type mockRunRepository struct {
	mu       sync.Mutex
	saved    []run.Summary
	saveFunc func(ctx context.Context, s run.Summary) error
	pingFunc func(ctx context.Context) error
}

func (m *mockRunRepository) Save(ctx context.Context, s run.Summary) error {
	if m.saveFunc != nil {
		if err := m.saveFunc(ctx, s); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, s)
	return nil
}

func (m *mockRunRepository) FindByID(ctx context.Context, id string) (run.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.saved {
		if s.ID == id {
			return s, nil
		}
	}
	return run.Summary{}, run.ErrRunNotFound
}

func (m *mockRunRepository) FindAll(ctx context.Context) ([]run.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]run.Summary, 0, len(m.saved))
	for i := len(m.saved) - 1; i >= 0; i-- {
		out = append(out, m.saved[i])
	}
	return out, nil
}

func (m *mockRunRepository) Ping(ctx context.Context) error {
	if m.pingFunc != nil {
		return m.pingFunc(ctx)
	}
	return nil
}

func (m *mockRunRepository) summaries() []run.Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]run.Summary(nil), m.saved...)
}
