package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfinder/badges/internal/domain/model"
	"github.com/wolfinder/badges/pkg/logger"
)

const day = 24 * time.Hour

// DecayReport lists the awards a decay sweep revoked.
type DecayReport struct {
	ProfessionalID int64    `json:"professional_id"`
	Checked        int      `json:"checked"`
	Expired        []string `json:"expired"`
	Decayed        []string `json:"decayed"`
}

// Revoked returns how many awards the sweep revoked.
func (r DecayReport) Revoked() int {
	return len(r.Expired) + len(r.Decayed)
}

// DecaySweep re-checks the active awards of professionalID. Awards past
// their expiry are revoked with reason "expired". Awards of a badge with
// decay rules are re-checked once they are at least the decay period old
// and revoked with reason "decay" when any condition no longer holds. The
// snapshot is computed at most once per sweep, and only when needed.
func (e *Engine) DecaySweep(ctx context.Context, professionalID int64) (DecayReport, error) {
	report := DecayReport{ProfessionalID: professionalID, Expired: []string{}, Decayed: []string{}}

	records, err := e.backend.History(ctx, professionalID)
	if err != nil {
		return report, fmt.Errorf("load awards: %w", err)
	}

	now := e.now()
	var (
		snap   model.MetricsSnapshot
		loaded bool
	)
	for _, rec := range records {
		if !rec.Active() {
			continue
		}
		report.Checked++

		if rec.ExpiredAt(now) {
			if err := e.sweepRevoke(ctx, rec, model.ReasonExpired); err != nil {
				return report, err
			}
			report.Expired = append(report.Expired, rec.BadgeSlug)
			continue
		}

		def, ok := e.catalog.Get(rec.BadgeSlug)
		if !ok || def.DecayRules == nil {
			continue
		}
		if now.Before(rec.AwardedAt.Add(time.Duration(def.DecayRules.PeriodDays) * day)) {
			continue
		}
		if !loaded {
			snap, err = e.snapshots.Compute(ctx, professionalID)
			if err != nil {
				return report, fmt.Errorf("compute metrics: %w", err)
			}
			loaded = true
		}
		if held, failed := e.evaluator.Holds(snap, def.DecayRules.Conditions); !held {
			e.logger.Debug(ctx, "decay conditions failed",
				logger.Int64("professional_id", professionalID),
				logger.String("badge", def.Slug),
				logger.Strings("conditions", failed),
			)
			if err := e.sweepRevoke(ctx, rec, model.ReasonDecay); err != nil {
				return report, err
			}
			report.Decayed = append(report.Decayed, rec.BadgeSlug)
		}
	}

	if report.Revoked() > 0 {
		e.logger.Info(ctx, "decay sweep revoked awards",
			logger.Int64("professional_id", professionalID),
			logger.Strings("expired", report.Expired),
			logger.Strings("decayed", report.Decayed),
		)
	}
	return report, nil
}

// sweepRevoke revokes rec as the system actor. Losing a race against a
// concurrent revocation is not an error.
func (e *Engine) sweepRevoke(ctx context.Context, rec model.AwardRecord, reason string) error {
	outcome, _, err := e.backend.RevokeByID(ctx, rec.ID, model.SystemActor, reason, e.now())
	if err != nil {
		return fmt.Errorf("revoke award %d: %w", rec.ID, err)
	}
	e.afterRevoke(ctx, rec.ProfessionalID, rec.BadgeSlug, outcome, reason)
	return nil
}
