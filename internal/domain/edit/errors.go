package edit

import "errors"

var (
	// ErrValidation indicates the draft cannot be published.
	ErrValidation = errors.New("counts cannot be negative")
	// ErrSessionNotFound indicates the edit session doesn't exist.
	ErrSessionNotFound = errors.New("edit session not found")
	// ErrUnknownField indicates a field other than total, boys or girls.
	ErrUnknownField = errors.New("unknown field")
	// ErrUnknownPolicy indicates an unsupported total policy name.
	ErrUnknownPolicy = errors.New("unknown total policy")
)
