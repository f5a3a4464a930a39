package repository

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateEntry is returned when a write violates a uniqueness
	// constraint.
	ErrDuplicateEntry = errors.New("duplicate entry")
)
