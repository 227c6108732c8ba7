// Package repository persists the badge catalog, the award ledger and the
// professional and review records that metrics are computed from.
package repository

import (
	"context"
	"time"

	"github.com/wolfinder/badges/internal/domain/metrics"
	"github.com/wolfinder/badges/internal/domain/model"
)

// AwardRequest describes a new award.
type AwardRequest = model.AwardRequest

// Ledger is the authoritative record of awards. At most one non-revoked
// record exists per (professional, badge) pair; the store enforces it.
type Ledger interface {
	// SeedCatalog upserts every definition, keyed by slug.
	SeedCatalog(ctx context.Context, defs []model.BadgeDefinition) error

	// Award inserts a new active record unless one already exists for the
	// pair. It returns the inserted record and true, or the existing active
	// record and false. Unknown slugs yield ErrBadgeNotFound.
	Award(ctx context.Context, req AwardRequest) (model.AwardRecord, bool, error)

	// Revoke revokes the active record for the pair.
	Revoke(ctx context.Context, professionalID int64, slug, by, reason string, at time.Time) (model.RevokeOutcome, error)

	// RevokeByID revokes an award by its ledger id and returns the record as stored afterwards.
	RevokeByID(ctx context.Context, awardID int64, by, reason string, at time.Time) (model.RevokeOutcome, model.AwardRecord, error)

	// ListActive returns the visible, non-revoked awards joined with their
	// badge, ordered by priority then catalog position.
	ListActive(ctx context.Context, professionalID int64) ([]model.ActiveBadge, error)

	// History returns every record for the professional, oldest first.
	History(ctx context.Context, professionalID int64) ([]model.AwardRecord, error)

	// ProfessionalsWithActiveAwards returns the ids holding at least one active award.
	ProfessionalsWithActiveAwards(ctx context.Context) ([]int64, error)
}

// Directory writes the professional and review records. In production these
// are owned by the marketplace; the engine writes them for fixtures and seeding.
type Directory interface {
	PutProfessional(ctx context.Context, p model.Professional) error
	AddReview(ctx context.Context, r model.Review) (model.Review, error)
}

// Store is a complete storage backend.
type Store interface {
	Ledger
	Directory
	metrics.Source
	Close() error
}
