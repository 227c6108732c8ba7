package engine

import (
	"errors"
	"fmt"

	"github.com/wolfinder/badges/internal/domain/model"
)

var (
	// ErrUnknownBadge is returned when a slug is not in the catalog.
	ErrUnknownBadge = fmt.Errorf("%w: unknown badge", model.ErrNotFound)
	// ErrInvalidArgument is returned for malformed admin requests.
	ErrInvalidArgument = errors.New("invalid argument")
)
