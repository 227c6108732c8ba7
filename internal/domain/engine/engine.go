// Package engine orchestrates badge evaluation, automatic awarding,
// admin awards and revocations, and the decay sweep.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfinder/badges/internal/domain/catalog"
	"github.com/wolfinder/badges/internal/domain/evalcache"
	"github.com/wolfinder/badges/internal/domain/model"
	"github.com/wolfinder/badges/internal/domain/requirement"
	"github.com/wolfinder/badges/pkg/logger"
	pmetrics "github.com/wolfinder/badges/pkg/metrics"
)

// Snapshotter computes a metrics snapshot for one professional.
type Snapshotter interface {
	Compute(ctx context.Context, professionalID int64) (model.MetricsSnapshot, error)
}

// Backend is the storage the engine writes awards to and checks
// professionals against.
type Backend interface {
	Award(ctx context.Context, req model.AwardRequest) (model.AwardRecord, bool, error)
	Revoke(ctx context.Context, professionalID int64, slug, by, reason string, at time.Time) (model.RevokeOutcome, error)
	RevokeByID(ctx context.Context, awardID int64, by, reason string, at time.Time) (model.RevokeOutcome, model.AwardRecord, error)
	ListActive(ctx context.Context, professionalID int64) ([]model.ActiveBadge, error)
	History(ctx context.Context, professionalID int64) ([]model.AwardRecord, error)
	Professional(ctx context.Context, id int64) (model.Professional, error)
}

// Engine ties the catalog, the evaluator, the metrics aggregator and the
// award ledger together.
type Engine struct {
	catalog   *catalog.Catalog
	evaluator *requirement.Evaluator
	snapshots Snapshotter
	backend   Backend
	cache     evalcache.Cache
	logger    logger.Logger
	now       func() time.Time
}

// New creates an engine. The catalog should already be validated against
// the evaluator's registry.
func New(cat *catalog.Catalog, ev *requirement.Evaluator, snapshots Snapshotter, backend Backend, opts ...Option) *Engine {
	e := &Engine{
		catalog:   cat,
		evaluator: ev,
		snapshots: snapshots,
		backend:   backend,
		cache:     evalcache.Nop{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Named("engine")
	}
	return e
}

// Catalog returns the catalog the engine evaluates.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// EvaluateAll evaluates every catalog badge for professionalID against a
// single snapshot. A fresh cached batch is returned as is. A failure to
// compute the snapshot aborts the whole batch.
func (e *Engine) EvaluateAll(ctx context.Context, professionalID int64) ([]model.EvaluationResult, error) {
	if results, ok := e.cache.Get(ctx, professionalID); ok {
		pmetrics.RecordCacheHit()
		pmetrics.RecordEvaluation("cache")
		return results, nil
	}
	pmetrics.RecordCacheMiss()

	results, _, err := e.evaluate(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	e.cache.Set(ctx, professionalID, results)
	pmetrics.RecordEvaluation("computed")
	return results, nil
}

// evaluate computes a fresh snapshot and runs the whole catalog against it.
func (e *Engine) evaluate(ctx context.Context, professionalID int64) ([]model.EvaluationResult, model.MetricsSnapshot, error) {
	start := time.Now()
	snap, err := e.snapshots.Compute(ctx, professionalID)
	if err != nil {
		return nil, model.MetricsSnapshot{}, fmt.Errorf("compute metrics: %w", err)
	}
	pmetrics.RecordMetricsLatency(msSince(start))

	results := e.evaluator.EvaluateAll(snap, e.catalog.All())
	for _, r := range results {
		for _, id := range r.Unrecognized {
			pmetrics.RecordUnrecognizedRequirement(id)
			e.logger.Warn(ctx, "unrecognized requirement",
				logger.String("badge", r.BadgeID),
				logger.String("requirement", id),
				logger.Int64("professional_id", professionalID),
			)
		}
	}
	pmetrics.RecordEvaluationLatency(msSince(start))
	return results, snap, nil
}

// AwardPassReport summarizes one automatic award pass.
type AwardPassReport struct {
	RunID          string                   `json:"run_id"`
	ProfessionalID int64                    `json:"professional_id"`
	Results        []model.EvaluationResult `json:"results"`
	Awarded        []string                 `json:"awarded"`
	AlreadyActive  []string                 `json:"already_active"`
}

// AwardPass evaluates the catalog on a fresh snapshot and awards every
// earned automatic badge the professional does not hold yet. Manual and
// hybrid badges are never awarded here.
func (e *Engine) AwardPass(ctx context.Context, professionalID int64) (AwardPassReport, error) {
	results, snap, err := e.evaluate(ctx, professionalID)
	if err != nil {
		return AwardPassReport{}, err
	}

	report := AwardPassReport{
		RunID:          uuid.NewString(),
		ProfessionalID: professionalID,
		Results:        results,
		Awarded:        []string{},
		AlreadyActive:  []string{},
	}
	defer e.cache.Invalidate(ctx, professionalID)

	for _, r := range results {
		if !r.Earned {
			continue
		}
		def, ok := e.catalog.Get(r.BadgeID)
		if !ok || !def.IsAutomatic() {
			continue
		}
		if snap.HasActiveBadge(def.Slug) {
			report.AlreadyActive = append(report.AlreadyActive, def.Slug)
			continue
		}
		_, created, err := e.backend.Award(ctx, model.AwardRequest{
			ProfessionalID: professionalID,
			BadgeSlug:      def.Slug,
			AwardedBy:      model.SystemActor,
			AwardedAt:      e.now(),
			Metadata: map[string]any{
				"run_id":   report.RunID,
				"progress": r.Progress,
			},
		})
		if err != nil {
			return report, fmt.Errorf("award %s: %w", def.Slug, err)
		}
		if !created {
			pmetrics.RecordAward("duplicate", actorKind(model.SystemActor))
			report.AlreadyActive = append(report.AlreadyActive, def.Slug)
			continue
		}
		pmetrics.RecordAward("awarded", actorKind(model.SystemActor))
		report.Awarded = append(report.Awarded, def.Slug)
	}

	e.logger.Info(ctx, "award pass completed",
		logger.String("run_id", report.RunID),
		logger.Int64("professional_id", professionalID),
		logger.Strings("awarded", report.Awarded),
		logger.Int("already_active", len(report.AlreadyActive)),
	)
	return report, nil
}

// AwardInput is an admin award request.
type AwardInput struct {
	ProfessionalID int64
	BadgeSlug      string
	AwardedBy      string
	ExpiresAt      *time.Time
	Metadata       map[string]any
}

// AwardBadge awards a badge on behalf of an admin, bypassing the evaluator.
// It returns false with the existing record when the badge is already active.
func (e *Engine) AwardBadge(ctx context.Context, in AwardInput) (model.AwardRecord, bool, error) {
	switch {
	case in.AwardedBy == "":
		return model.AwardRecord{}, false, fmt.Errorf("%w: awarded by is required", ErrInvalidArgument)
	case in.ExpiresAt != nil && !in.ExpiresAt.After(e.now()):
		return model.AwardRecord{}, false, fmt.Errorf("%w: expiry must be in the future", ErrInvalidArgument)
	}
	if _, ok := e.catalog.Get(in.BadgeSlug); !ok {
		return model.AwardRecord{}, false, fmt.Errorf("%w: %s", ErrUnknownBadge, in.BadgeSlug)
	}
	if _, err := e.backend.Professional(ctx, in.ProfessionalID); err != nil {
		return model.AwardRecord{}, false, err
	}

	rec, created, err := e.backend.Award(ctx, model.AwardRequest{
		ProfessionalID: in.ProfessionalID,
		BadgeSlug:      in.BadgeSlug,
		AwardedBy:      in.AwardedBy,
		AwardedAt:      e.now(),
		ExpiresAt:      in.ExpiresAt,
		Metadata:       in.Metadata,
	})
	if err != nil {
		return model.AwardRecord{}, false, err
	}

	outcome := "duplicate"
	if created {
		outcome = "awarded"
		e.cache.Invalidate(ctx, in.ProfessionalID)
		e.logger.Info(ctx, "badge awarded",
			logger.Int64("professional_id", in.ProfessionalID),
			logger.String("badge", in.BadgeSlug),
			logger.String("awarded_by", in.AwardedBy),
			logger.Int64("award_id", rec.ID),
		)
	}
	pmetrics.RecordAward(outcome, actorKind(in.AwardedBy))
	return rec, created, nil
}

// RevokeBadge revokes the active award of slug for professionalID.
func (e *Engine) RevokeBadge(ctx context.Context, professionalID int64, slug, by, reason string) (model.RevokeOutcome, error) {
	if by == "" {
		return model.RevokeNotFound, fmt.Errorf("%w: revoked by is required", ErrInvalidArgument)
	}
	if _, ok := e.catalog.Get(slug); !ok {
		return model.RevokeNotFound, fmt.Errorf("%w: %s", ErrUnknownBadge, slug)
	}
	outcome, err := e.backend.Revoke(ctx, professionalID, slug, by, reason, e.now())
	if err != nil {
		return model.RevokeNotFound, err
	}
	e.afterRevoke(ctx, professionalID, slug, outcome, reason)
	return outcome, nil
}

// RevokeAward revokes an award by its ledger id.
func (e *Engine) RevokeAward(ctx context.Context, awardID int64, by, reason string) (model.RevokeOutcome, model.AwardRecord, error) {
	if by == "" {
		return model.RevokeNotFound, model.AwardRecord{}, fmt.Errorf("%w: revoked by is required", ErrInvalidArgument)
	}
	outcome, rec, err := e.backend.RevokeByID(ctx, awardID, by, reason, e.now())
	if err != nil {
		return model.RevokeNotFound, model.AwardRecord{}, err
	}
	e.afterRevoke(ctx, rec.ProfessionalID, rec.BadgeSlug, outcome, reason)
	return outcome, rec, nil
}

func (e *Engine) afterRevoke(ctx context.Context, professionalID int64, slug string, outcome model.RevokeOutcome, reason string) {
	pmetrics.RecordRevocation(outcome.String(), reasonLabel(reason))
	if outcome != model.RevokeRevoked {
		return
	}
	e.cache.Invalidate(ctx, professionalID)
	e.logger.Info(ctx, "badge revoked",
		logger.Int64("professional_id", professionalID),
		logger.String("badge", slug),
		logger.String("reason", reason),
	)
}

// ListActiveBadges returns the visible active awards, highest priority first.
func (e *Engine) ListActiveBadges(ctx context.Context, professionalID int64) ([]model.ActiveBadge, error) {
	return e.backend.ListActive(ctx, professionalID)
}

// History returns every award record of the professional, revoked ones included.
func (e *Engine) History(ctx context.Context, professionalID int64) ([]model.AwardRecord, error) {
	return e.backend.History(ctx, professionalID)
}

func actorKind(by string) string {
	if by == model.SystemActor {
		return "system"
	}
	return "admin"
}

func reasonLabel(reason string) string {
	switch reason {
	case model.ReasonExpired, model.ReasonDecay:
		return reason
	}
	return "admin"
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
