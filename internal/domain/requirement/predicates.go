package requirement

import (
	"fmt"
	"math"

	"github.com/wolfinder/badges/internal/domain/model"
)

// minReviewsForRating is the review count below which an average rating is not trusted.
const minReviewsForRating = 5

// DefaultRegistry returns a registry with every built-in requirement.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	for _, n := range []int{1, 5, 10, 25, 50, 100} {
		r.MustRegister(fmt.Sprintf("reviews_count_gte_%d", n), reviewCount(n, fmt.Sprintf("Almeno %d recensioni", n)))
	}
	for _, n := range []int{5, 10} {
		r.MustRegister(fmt.Sprintf("min_reviews_%d", n), reviewCount(n, fmt.Sprintf("Minimo %d recensioni approvate", n)))
	}

	r.MustRegister("avg_rating_gte_4_5", avgRating(4.5))
	r.MustRegister("avg_rating_gte_4_8", avgRating(4.8))

	for _, n := range []int{10, 25} {
		r.MustRegister(fmt.Sprintf("five_star_count_gte_%d", n), atLeast(
			fmt.Sprintf("Almeno %d recensioni a 5 stelle", n), n,
			func(m model.MetricsSnapshot) int { return m.FiveStarCount },
			"Recensioni a 5 stelle: %d su %d richieste",
		))
	}

	r.MustRegister("five_star_percentage_gte_90", Predicate{
		Label: "Almeno il 90% di recensioni a 5 stelle",
		Check: func(m model.MetricsSnapshot) bool { return m.ReviewCount > 0 && m.FiveStarPercentage >= 90 },
		Progress: func(m model.MetricsSnapshot) int {
			return ratio(m.FiveStarPercentage, 90)
		},
		Missing: func(m model.MetricsSnapshot) string {
			if m.ReviewCount == 0 {
				return noReviews
			}
			return fmt.Sprintf("Recensioni a 5 stelle: %.0f%%, richiesto almeno 90%%", m.FiveStarPercentage)
		},
	})

	for _, n := range []int{3, 5} {
		r.MustRegister(fmt.Sprintf("recent_reviews_gte_%d", n), atLeast(
			fmt.Sprintf("Almeno %d recensioni negli ultimi 30 giorni", n), n,
			func(m model.MetricsSnapshot) int { return m.RecentReviewCount },
			"Recensioni negli ultimi 30 giorni: %d su %d richieste",
		))
	}

	for _, n := range []int{80, 100} {
		r.MustRegister(fmt.Sprintf("profile_completeness_gte_%d", n), atLeast(
			fmt.Sprintf("Profilo completo almeno al %d%%", n), n,
			func(m model.MetricsSnapshot) int { return m.ProfileCompletenessPercent },
			"Profilo completo al %d%%, richiesto %d%%",
		))
	}

	for _, n := range []int{365, 730} {
		r.MustRegister(fmt.Sprintf("tenure_days_gte_%d", n), atLeast(
			fmt.Sprintf("Iscritto da almeno %d giorni", n), n,
			func(m model.MetricsSnapshot) int { return m.TenureDays },
			"Iscritto da %d giorni su %d richiesti",
		))
	}

	r.MustRegister("no_low_reviews_6m", Predicate{
		Label:   "Nessuna recensione sotto le 4 stelle negli ultimi 6 mesi",
		Check:   func(m model.MetricsSnapshot) bool { return m.NoLowReviewsRecent },
		Missing: constant("Presenti recensioni sotto le 4 stelle negli ultimi 6 mesi"),
	})

	r.MustRegister("is_verified", Predicate{
		Label:   "Profilo verificato",
		Check:   func(m model.MetricsSnapshot) bool { return m.IsVerified },
		Missing: constant("Profilo non ancora verificato"),
	})

	return r
}

const noReviews = "Nessuna recensione ricevuta"

func reviewCount(n int, label string) Predicate {
	p := atLeast(label, n, func(m model.MetricsSnapshot) int { return m.ReviewCount },
		"Recensioni approvate: %d su %d richieste")
	inner := p.Missing
	p.Missing = func(m model.MetricsSnapshot) string {
		if m.ReviewCount == 0 {
			return noReviews
		}
		return inner(m)
	}
	return p
}

// atLeast builds a threshold predicate over an integer metric. missingFmt
// receives the current value and the threshold.
func atLeast(label string, n int, get func(model.MetricsSnapshot) int, missingFmt string) Predicate {
	return Predicate{
		Label:    label,
		Check:    func(m model.MetricsSnapshot) bool { return get(m) >= n },
		Progress: func(m model.MetricsSnapshot) int { return ratio(float64(get(m)), float64(n)) },
		Missing:  func(m model.MetricsSnapshot) string { return fmt.Sprintf(missingFmt, get(m), n) },
	}
}

func avgRating(threshold float64) Predicate {
	return Predicate{
		Label: fmt.Sprintf("Valutazione media di almeno %.1f su %d recensioni", threshold, minReviewsForRating),
		Check: func(m model.MetricsSnapshot) bool {
			return m.AvgRating >= threshold && m.ReviewCount >= minReviewsForRating
		},
		Progress: func(m model.MetricsSnapshot) int {
			return min(ratio(m.AvgRating, threshold), ratio(float64(m.ReviewCount), minReviewsForRating))
		},
		Missing: func(m model.MetricsSnapshot) string {
			switch {
			case m.ReviewCount == 0:
				return noReviews
			case m.ReviewCount < minReviewsForRating:
				return fmt.Sprintf("Servono almeno %d recensioni per la valutazione media (attuali: %d)",
					minReviewsForRating, m.ReviewCount)
			default:
				// Truncated so a failing average never prints as the threshold.
				return fmt.Sprintf("Valutazione media %.2f, richiesta almeno %.1f", math.Floor(m.AvgRating*100)/100, threshold)
			}
		},
	}
}

func constant(s string) func(model.MetricsSnapshot) string {
	return func(model.MetricsSnapshot) string { return s }
}

// ratio scales value/target to 0..100.
func ratio(value, target float64) int {
	if target <= 0 {
		return 100
	}
	if value <= 0 {
		return 0
	}
	p := int(value * 100 / target)
	if p > 100 {
		return 100
	}
	return p
}
