package application

import (
	"context"
	"fmt"

	"github.com/alorle/catalog-sync/internal/catalog"
	"github.com/alorle/catalog-sync/internal/port/driven"
	"github.com/alorle/catalog-sync/internal/schema"
)

// DuplicateResolver decides whether a catalog row already exists.
type DuplicateResolver struct {
	store  driven.RowStore
	schema schema.Schema
}

// NewDuplicateResolver creates a resolver that matches titles against each
// table's identity field.
func NewDuplicateResolver(store driven.RowStore, s schema.Schema) *DuplicateResolver {
	return &DuplicateResolver{
		store:  store,
		schema: s,
	}
}

// Exists reports whether table holds a row whose identity field equals
// title. The comparison is exact and runs on the remote store.
// A failed lookup returns an error wrapping ErrDuplicateCheck, never false.
func (r *DuplicateResolver) Exists(ctx context.Context, title string, table catalog.TableKind) (bool, error) {
	t, err := r.schema.Table(table)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrDuplicateCheck, err)
	}

	page, err := r.store.List(ctx, table, catalog.ListOptions{
		Page: 1,
		Size: 1,
		Filters: []catalog.Filter{
			{Field: t.IdentityField, Op: catalog.FilterEqual, Value: title},
		},
	})
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrDuplicateCheck, err)
	}

	return len(page.Rows) > 0, nil
}
