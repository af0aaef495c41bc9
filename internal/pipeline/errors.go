package pipeline

import "errors"

var (
	// ErrOutOfOrder is returned when an operation is requested from a phase that does not
	// allow it.
	ErrOutOfOrder = errors.New("pipeline operation out of order")

	// ErrClosed is returned once the controller has been shut down.
	ErrClosed = errors.New("pipeline controller closed")
)
