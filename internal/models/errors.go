package models

import "errors"

var (
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("resource not found")

	// ErrMalformedUpdate is returned when a location update fails payload
	// validation. This is the only per-update condition treated as an error;
	// stale or duplicate updates are silently dropped instead.
	ErrMalformedUpdate = errors.New("malformed location update")

	// ErrConflict is returned when a tracking session already exists for the
	// given work order.
	ErrConflict = errors.New("an active tracking session already exists for this work order")
)
