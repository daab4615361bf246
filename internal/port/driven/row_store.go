package driven

import (
	"context"

	"github.com/alorle/catalog-sync/internal/catalog"
)

// RowStore defines the interface for the remote table store that holds the
// media catalog. This is a driven port implemented by the Baserow adapter.
type RowStore interface {
	// List returns one page of rows of the given table, optionally filtered
	// server-side. Returns catalog.ErrTableNotConfigured before any network
	// call when the table has no remote identifier.
	List(ctx context.Context, table catalog.TableKind, opts catalog.ListOptions) (catalog.Page, error)

	// Create inserts a row and returns it with its assigned id.
	Create(ctx context.Context, table catalog.TableKind, fields map[string]any) (catalog.Row, error)

	// Update applies a partial update to the row identified by id.
	Update(ctx context.Context, table catalog.TableKind, id int, fields map[string]any) (catalog.Row, error)

	// Delete removes the row identified by id. Returns catalog.ErrRowNotFound
	// if the row does not exist.
	Delete(ctx context.Context, table catalog.TableKind, id int) error

	// Configured reports whether table is bound to a remote identifier.
	Configured(table catalog.TableKind) bool

	// Ping checks if the remote store is reachable with the configured
	// credentials.
	Ping(ctx context.Context) error
}
