// Package metrics computes the measurable facts about a professional that
// badge requirements are evaluated against.
package metrics

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/wolfinder/badges/internal/domain/model"
)

// lowRatingMax is the highest rating counted as a low review.
const lowRatingMax = 3

// ReviewFilter narrows a review count. Zero values disable a bound.
type ReviewFilter struct {
	MinRating int
	MaxRating int
	Since     time.Time
}

// Source reads the persisted profile, reviews and awards of a professional.
// Review reads only consider approved reviews. Professional returns an error
// wrapping model.ErrNotFound when the record does not exist.
type Source interface {
	Professional(ctx context.Context, id int64) (model.Professional, error)
	ReviewSummary(ctx context.Context, id int64) (count int, avg float64, err error)
	CountReviews(ctx context.Context, id int64, filter ReviewFilter) (int, error)
	ActiveBadgeSlugs(ctx context.Context, id int64) ([]string, error)
}

// Aggregator builds metrics snapshots from a Source.
type Aggregator struct {
	src                  Source
	now                  func() time.Time
	recentWindow         time.Duration
	lowReviewWindow      time.Duration
	minDescriptionLength int
}

// NewAggregator creates an aggregator reading from src.
func NewAggregator(src Source, opts ...Option) *Aggregator {
	a := &Aggregator{
		src:                  src,
		now:                  time.Now,
		recentWindow:         DefaultRecentWindow,
		lowReviewWindow:      DefaultLowReviewWindow,
		minDescriptionLength: DefaultMinDescriptionLength,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Compute reads everything needed for one snapshot. The reads are
// independent and run concurrently; the first failure cancels the rest.
func (a *Aggregator) Compute(ctx context.Context, professionalID int64) (model.MetricsSnapshot, error) {
	now := a.now()

	var (
		prof         model.Professional
		count        int
		avg          float64
		fiveStar     int
		recent       int
		low          int
		activeBadges []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		prof, err = a.src.Professional(gctx, professionalID)
		if err != nil {
			return fmt.Errorf("load professional %d: %w", professionalID, err)
		}
		return nil
	})
	g.Go(func() (err error) {
		count, avg, err = a.src.ReviewSummary(gctx, professionalID)
		return wrap("review summary", err)
	})
	g.Go(func() (err error) {
		fiveStar, err = a.src.CountReviews(gctx, professionalID, ReviewFilter{MinRating: 5})
		return wrap("five star reviews", err)
	})
	g.Go(func() (err error) {
		recent, err = a.src.CountReviews(gctx, professionalID, ReviewFilter{Since: now.Add(-a.recentWindow)})
		return wrap("recent reviews", err)
	})
	g.Go(func() (err error) {
		low, err = a.src.CountReviews(gctx, professionalID, ReviewFilter{MaxRating: lowRatingMax, Since: now.Add(-a.lowReviewWindow)})
		return wrap("low reviews", err)
	})
	g.Go(func() (err error) {
		activeBadges, err = a.src.ActiveBadgeSlugs(gctx, professionalID)
		return wrap("active badges", err)
	})
	if err := g.Wait(); err != nil {
		return model.MetricsSnapshot{}, err
	}

	count = max(count, 0)
	if count == 0 {
		avg = 0
	}
	fiveStarPct := 0.0
	if count > 0 {
		fiveStarPct = clampPercent(float64(fiveStar) * 100 / float64(count))
	}
	if activeBadges == nil {
		activeBadges = []string{}
	}

	return model.MetricsSnapshot{
		ProfessionalID:             professionalID,
		ReviewCount:                count,
		AvgRating:                  math.Min(math.Max(avg, 0), 5),
		FiveStarCount:              max(fiveStar, 0),
		RecentReviewCount:          max(recent, 0),
		ProfileCompletenessPercent: a.completeness(prof),
		TenureDays:                 tenureDays(prof.CreatedAt, now),
		NoLowReviewsRecent:         low == 0,
		FiveStarPercentage:         fiveStarPct,
		IsVerified:                 prof.IsVerified,
		ActiveBadges:               activeBadges,
		ComputedAt:                 now,
	}, nil
}

// completeness scores the profile checklist: description, contact, address
// and business name.
func (a *Aggregator) completeness(p model.Professional) int {
	checks := []bool{
		utf8.RuneCountInString(strings.TrimSpace(p.Description)) >= a.minDescriptionLength,
		strings.TrimSpace(p.Email) != "" || strings.TrimSpace(p.Phone) != "",
		strings.TrimSpace(p.Address) != "",
		strings.TrimSpace(p.BusinessName) != "",
	}
	done := 0
	for _, ok := range checks {
		if ok {
			done++
		}
	}
	return done * 100 / len(checks)
}

func tenureDays(createdAt, now time.Time) int {
	if createdAt.IsZero() || now.Before(createdAt) {
		return 0
	}
	return int(now.Sub(createdAt) / (24 * time.Hour))
}

func clampPercent(v float64) float64 {
	return math.Min(math.Max(v, 0), 100)
}

func wrap(what string, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}
