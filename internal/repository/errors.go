package repository

import "errors"

// Common repository errors
var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateAccount is returned when a (tenant, platform, external
	// account) connection already exists
	ErrDuplicateAccount = errors.New("social account already connected")
)
