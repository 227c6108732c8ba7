package repository

import (
	"errors"
	"fmt"

	"github.com/wolfinder/badges/internal/domain/model"
)

var (
	ErrProfessionalNotFound = fmt.Errorf("professional %w", model.ErrNotFound)
	ErrBadgeNotFound        = fmt.Errorf("badge %w", model.ErrNotFound)

	ErrInvalidAward        = errors.New("invalid award request")
	ErrInvalidReview       = errors.New("invalid review")
	ErrInvalidProfessional = errors.New("invalid professional")
	ErrUnknownDialect      = errors.New("unknown sql dialect")
)
