package application

import "errors"

// Application errors returned by the import and rewrite use cases.
var (
	// Duplicate detection errors
	ErrDuplicateCheck = errors.New("duplicate check failed")

	// Import errors
	ErrEmptyPlaylist = errors.New("playlist contains no importable entries")
	ErrEmptyTitle    = errors.New("entry has no title")

	// Rewrite validation errors
	ErrEmptySource      = errors.New("rewrite source cannot be empty")
	ErrSourceIsTarget   = errors.New("rewrite source and target are identical")
	ErrNoURLFieldMapped = errors.New("table has no url field mapped")

	// Run errors
	errPanicked = errors.New("run aborted by an unexpected panic")
)
