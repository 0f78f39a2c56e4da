package model

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrDuplicateSourceRef is returned when a message with the same
	// source_ref was already stored. Re-delivery is expected from the origin
	// platform; callers treat this as a successful no-op.
	ErrDuplicateSourceRef = errors.New("duplicate source ref")

	// ErrIntegrity marks a store invariant violation (e.g. a message with a
	// second issue membership). Not recoverable by retry.
	ErrIntegrity = errors.New("store integrity violation")
)
