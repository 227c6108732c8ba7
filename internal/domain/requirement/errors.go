package requirement

import "errors"

var (
	// ErrEmptyID is returned when registering a predicate without identifier.
	ErrEmptyID = errors.New("requirement id cannot be empty")
	// ErrDuplicateID is returned when an identifier is registered twice.
	ErrDuplicateID = errors.New("requirement id already registered")
	// ErrInvalidPredicate is returned when a predicate lacks a Check function.
	ErrInvalidPredicate = errors.New("predicate must define Check")
)
