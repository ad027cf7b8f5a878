package stats

import "errors"

var (
	// ErrInvalidRecord indicates a count is negative or unusable.
	ErrInvalidRecord = errors.New("invalid stats record")
)
