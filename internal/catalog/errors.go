package catalog

import (
	"errors"
	"fmt"
)

// Domain errors for row-store operations.
var (
	// Configuration errors
	ErrTableNotConfigured = errors.New("table not configured")
	ErrUnknownTable       = errors.New("unknown table")

	// Row errors
	ErrRowNotFound = errors.New("row not found")
	ErrMissingID   = errors.New("row has no id")
)

// RemoteError is returned when the row-store answers with a non-success status.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("row store returned status %d: %s", e.Status, e.Message)
}

// IsClientError reports whether the remote rejected the request itself,
// as opposed to failing to serve it.
func (e *RemoteError) IsClientError() bool {
	return e.Status >= 400 && e.Status < 500
}
