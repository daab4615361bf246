package driven

import (
	port "github.com/alorle/catalog-sync/internal/port/driven"
)

// Compile-time check that BaserowHTTPAdapter implements RowStore interface
var _ port.RowStore = (*BaserowHTTPAdapter)(nil)

// Compile-time check that RunBoltDBRepository implements RunRepository interface
var _ port.RunRepository = (*RunBoltDBRepository)(nil)
