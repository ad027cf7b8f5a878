package repository

import "errors"

var (
	// ErrNotFound is returned when a slot has never been written
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when a key or value is unusable
	ErrInvalidInput = errors.New("invalid input")
)
