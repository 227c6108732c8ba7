package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfinder/badges/internal/domain/metrics"
	"github.com/wolfinder/badges/internal/domain/model"
)

var testCatalog = []model.BadgeDefinition{
	{Slug: "primo-cliente", Name: "Primo Cliente", Family: model.FamilyAutomatic, CalculationMethod: model.MethodAutomatic,
		Requirements: []string{"reviews_count_gte_1"}, Priority: 10, Position: 0},
	{Slug: "eccellenza", Name: "Eccellenza", Family: model.FamilyQuality, CalculationMethod: model.MethodAutomatic,
		Requirements: []string{"avg_rating_gte_4_8", "min_reviews_5"}, Priority: 20, Position: 1},
	{Slug: "verificato", Name: "Verificato", Family: model.FamilyVerification, CalculationMethod: model.MethodHybrid,
		Requirements: []string{"is_verified"}, Priority: 5, Position: 2,
		DecayRules: &model.DecayRules{PeriodDays: 30, Conditions: []string{"is_verified"}}},
	{Slug: "partner", Name: "Partner", Family: model.FamilyVerification, CalculationMethod: model.MethodManual,
		Priority: 20, Position: 3},
}

var base = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

// runLedgerContract exercises the behaviour every Store must share.
func runLedgerContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	setup := func(t *testing.T) Store {
		t.Helper()
		s := newStore(t)
		require.NoError(t, s.SeedCatalog(ctx, testCatalog))
		for _, id := range []int64{42, 43} {
			require.NoError(t, s.PutProfessional(ctx, model.Professional{
				ID: id, BusinessName: "Studio", Email: "a@b.it", CreatedAt: base.AddDate(-2, 0, 0),
			}))
		}
		return s
	}

	t.Run("award is idempotent", func(t *testing.T) {
		s := setup(t)
		first, ok, err := s.Award(ctx, AwardRequest{ProfessionalID: 42, BadgeSlug: "primo-cliente", AwardedBy: "system", AwardedAt: base})
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "primo-cliente", first.BadgeSlug)
		require.True(t, first.IsVisible)
		require.True(t, first.AwardedAt.Equal(base))

		second, ok, err := s.Award(ctx, AwardRequest{ProfessionalID: 42, BadgeSlug: "primo-cliente", AwardedBy: "system"})
		require.NoError(t, err)
		require.False(t, ok)
		require.Equal(t, first.ID, second.ID)

		history, err := s.History(ctx, 42)
		require.NoError(t, err)
		require.Len(t, history, 1)
		require.Nil(t, history[0].RevokedAt)
	})

	t.Run("unknown badge", func(t *testing.T) {
		s := setup(t)
		_, _, err := s.Award(ctx, AwardRequest{ProfessionalID: 42, BadgeSlug: "ghost", AwardedBy: "system"})
		require.ErrorIs(t, err, ErrBadgeNotFound)
		require.ErrorIs(t, err, model.ErrNotFound)

		_, _, err = s.Award(ctx, AwardRequest{ProfessionalID: 42, AwardedBy: "system"})
		require.ErrorIs(t, err, ErrInvalidAward)
	})

	t.Run("revoke then re-award", func(t *testing.T) {
		s := setup(t)
		_, ok, err := s.Award(ctx, AwardRequest{ProfessionalID: 42, BadgeSlug: "primo-cliente", AwardedBy: "system", AwardedAt: base})
		require.NoError(t, err)
		require.True(t, ok)

		outcome, err := s.Revoke(ctx, 42, "primo-cliente", "admin-7", "errore", base.Add(time.Hour))
		require.NoError(t, err)
		require.Equal(t, model.RevokeRevoked, outcome)

		outcome, err = s.Revoke(ctx, 42, "primo-cliente", "admin-7", "errore", base.Add(time.Hour))
		require.NoError(t, err)
		require.Equal(t, model.RevokeAlreadyRevoked, outcome)

		outcome, err = s.Revoke(ctx, 42, "eccellenza", "admin-7", "errore", base)
		require.NoError(t, err)
		require.Equal(t, model.RevokeNotFound, outcome)

		_, ok, err = s.Award(ctx, AwardRequest{ProfessionalID: 42, BadgeSlug: "primo-cliente", AwardedBy: "system", AwardedAt: base.Add(2 * time.Hour)})
		require.NoError(t, err)
		require.True(t, ok)

		history, err := s.History(ctx, 42)
		require.NoError(t, err)
		require.Len(t, history, 2)
		require.NotNil(t, history[0].RevokedAt)
		require.Equal(t, "admin-7", history[0].RevokedBy)
		require.Equal(t, "errore", history[0].RevokeReason)
		require.Nil(t, history[1].RevokedAt)
	})

	t.Run("revoke by id", func(t *testing.T) {
		s := setup(t)
		rec, _, err := s.Award(ctx, AwardRequest{
			ProfessionalID: 42, BadgeSlug: "partner", AwardedBy: "admin-1",
			Metadata: map[string]any{"note": "evento 2025"},
		})
		require.NoError(t, err)
		require.Equal(t, "evento 2025", rec.Metadata["note"])

		outcome, got, err := s.RevokeByID(ctx, rec.ID, "admin-2", "fine partnership", base)
		require.NoError(t, err)
		require.Equal(t, model.RevokeRevoked, outcome)
		require.NotNil(t, got.RevokedAt)
		require.Equal(t, "admin-2", got.RevokedBy)

		outcome, _, err = s.RevokeByID(ctx, rec.ID, "admin-2", "again", base)
		require.NoError(t, err)
		require.Equal(t, model.RevokeAlreadyRevoked, outcome)

		outcome, _, err = s.RevokeByID(ctx, 9999, "admin-2", "none", base)
		require.NoError(t, err)
		require.Equal(t, model.RevokeNotFound, outcome)
	})

	t.Run("list active orders by priority and position", func(t *testing.T) {
		s := setup(t)
		for _, slug := range []string{"partner", "eccellenza", "primo-cliente", "verificato"} {
			_, ok, err := s.Award(ctx, AwardRequest{ProfessionalID: 42, BadgeSlug: slug, AwardedBy: "admin-1"})
			require.NoError(t, err)
			require.True(t, ok)
		}
		_, err := s.Revoke(ctx, 42, "primo-cliente", "admin-1", "test", base)
		require.NoError(t, err)
		_, _, err = s.Award(ctx, AwardRequest{ProfessionalID: 43, BadgeSlug: "primo-cliente", AwardedBy: "system"})
		require.NoError(t, err)

		active, err := s.ListActive(ctx, 42)
		require.NoError(t, err)
		slugs := make([]string, len(active))
		for i, a := range active {
			slugs[i] = a.BadgeSlug
		}
		require.Equal(t, []string{"verificato", "eccellenza", "partner"}, slugs)
		require.Equal(t, "Verificato", active[0].Name)
		require.Equal(t, model.FamilyVerification, active[0].Family)

		empty, err := s.ListActive(ctx, 99)
		require.NoError(t, err)
		require.NotNil(t, empty)
		require.Empty(t, empty)

		ids, err := s.ProfessionalsWithActiveAwards(ctx)
		require.NoError(t, err)
		require.Equal(t, []int64{42, 43}, ids)

		slugsActive, err := s.ActiveBadgeSlugs(ctx, 42)
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"verificato", "eccellenza", "partner"}, slugsActive)
	})

	t.Run("expiry is stored", func(t *testing.T) {
		s := setup(t)
		exp := base.Add(48 * time.Hour)
		rec, _, err := s.Award(ctx, AwardRequest{ProfessionalID: 42, BadgeSlug: "verificato", AwardedBy: "admin-1", ExpiresAt: &exp})
		require.NoError(t, err)
		require.NotNil(t, rec.ExpiresAt)
		require.True(t, rec.ExpiresAt.Equal(exp))
	})

	t.Run("concurrent awards keep one active record", func(t *testing.T) {
		s := setup(t)
		const workers = 16
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		errs := make([]error, 0)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, ok, err := s.Award(ctx, AwardRequest{ProfessionalID: 42, BadgeSlug: "eccellenza", AwardedBy: "system"})
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
				}
				if ok {
					wins++
				}
			}()
		}
		wg.Wait()
		require.Empty(t, errs)
		require.Equal(t, 1, wins)

		history, err := s.History(ctx, 42)
		require.NoError(t, err)
		require.Len(t, history, 1)
	})

	t.Run("metrics source", func(t *testing.T) {
		s := setup(t)
		reviews := []model.Review{
			{ProfessionalID: 42, Rating: 5, Status: model.ReviewApproved, CreatedAt: base.AddDate(0, 0, -1)},
			{ProfessionalID: 42, Rating: 4, Status: model.ReviewApproved, CreatedAt: base.AddDate(0, -2, 0)},
			{ProfessionalID: 42, Rating: 2, Status: model.ReviewApproved, CreatedAt: base.AddDate(0, -1, 0)},
			{ProfessionalID: 42, Rating: 1, Status: model.ReviewPending, CreatedAt: base},
		}
		for _, r := range reviews {
			got, err := s.AddReview(ctx, r)
			require.NoError(t, err)
			require.NotZero(t, got.ID)
		}
		_, err := s.AddReview(ctx, model.Review{ProfessionalID: 42, Rating: 6, Status: model.ReviewApproved})
		require.ErrorIs(t, err, ErrInvalidReview)
		_, err = s.AddReview(ctx, model.Review{ProfessionalID: 404, Rating: 5, Status: model.ReviewApproved})
		require.ErrorIs(t, err, model.ErrNotFound)

		p, err := s.Professional(ctx, 42)
		require.NoError(t, err)
		require.Equal(t, "Studio", p.BusinessName)
		require.True(t, p.CreatedAt.Equal(base.AddDate(-2, 0, 0)))

		_, err = s.Professional(ctx, 404)
		require.True(t, errors.Is(err, model.ErrNotFound))

		count, avg, err := s.ReviewSummary(ctx, 42)
		require.NoError(t, err)
		require.Equal(t, 3, count)
		require.InDelta(t, 11.0/3.0, avg, 0.001)

		n, err := s.CountReviews(ctx, 42, metrics.ReviewFilter{MinRating: 5})
		require.NoError(t, err)
		require.Equal(t, 1, n)

		n, err = s.CountReviews(ctx, 42, metrics.ReviewFilter{Since: base.AddDate(0, 0, -30)})
		require.NoError(t, err)
		require.Equal(t, 1, n)

		n, err = s.CountReviews(ctx, 42, metrics.ReviewFilter{MaxRating: 3, Since: base.AddDate(0, -6, 0)})
		require.NoError(t, err)
		require.Equal(t, 1, n)

		count, avg, err = s.ReviewSummary(ctx, 43)
		require.NoError(t, err)
		require.Zero(t, count)
		require.Zero(t, avg)
	})

	t.Run("seeding twice updates in place", func(t *testing.T) {
		s := setup(t)
		_, _, err := s.Award(ctx, AwardRequest{ProfessionalID: 42, BadgeSlug: "primo-cliente", AwardedBy: "system"})
		require.NoError(t, err)

		updated := append([]model.BadgeDefinition(nil), testCatalog...)
		updated[0].Name = "Primo Cliente Soddisfatto"
		require.NoError(t, s.SeedCatalog(ctx, updated))

		active, err := s.ListActive(ctx, 42)
		require.NoError(t, err)
		require.Len(t, active, 1)
		require.Equal(t, "Primo Cliente Soddisfatto", active[0].Name)
	})
}
