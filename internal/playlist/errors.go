package playlist

import "errors"

// Domain errors for playlist operations.
var (
	// Parse errors
	ErrInvalidStreamURL = errors.New("invalid stream url")

	// Entry lifecycle errors
	ErrInvalidTransition = errors.New("invalid entry status transition")
)
