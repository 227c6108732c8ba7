package catalog

import "errors"

var (
	// ErrInvalidCatalog is wrapped by every structural validation failure.
	ErrInvalidCatalog = errors.New("invalid badge catalog")
	// ErrUnknownRequirement is wrapped for each identifier missing from the registry.
	ErrUnknownRequirement = errors.New("unknown requirement")
)
