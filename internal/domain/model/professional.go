package model

import "time"

// ReviewStatus is the moderation state of a review.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// Professional is the read-only view of a marketplace professional.
type Professional struct {
	ID           int64     `json:"id"`
	BusinessName string    `json:"business_name"`
	Description  string    `json:"description"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Address      string    `json:"address"`
	City         string    `json:"city"`
	IsVerified   bool      `json:"is_verified"`
	CreatedAt    time.Time `json:"created_at"`
}

// Review is the read-only view of a customer review.
type Review struct {
	ID             int64        `json:"id"`
	ProfessionalID int64        `json:"professional_id"`
	Rating         int          `json:"rating"` // 1..5
	Status         ReviewStatus `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
}

// MetricsSnapshot holds the measurable facts about one professional at ComputedAt.
// Counts are non-negative, percentages are within [0,100] and AvgRating is 0
// when there are no approved reviews.
type MetricsSnapshot struct {
	ProfessionalID             int64     `json:"professional_id"`
	ReviewCount                int       `json:"review_count"`
	AvgRating                  float64   `json:"avg_rating"`
	FiveStarCount              int       `json:"five_star_count"`
	RecentReviewCount          int       `json:"recent_review_count"`
	ProfileCompletenessPercent int       `json:"profile_completeness_percent"`
	TenureDays                 int       `json:"tenure_days"`
	NoLowReviewsRecent         bool      `json:"no_low_reviews_recent"`
	FiveStarPercentage         float64   `json:"five_star_percentage"`
	IsVerified                 bool      `json:"is_verified"`
	ActiveBadges               []string  `json:"active_badges"`
	ComputedAt                 time.Time `json:"computed_at"`
}

// HasActiveBadge reports whether slug is among the non-revoked awards.
func (m MetricsSnapshot) HasActiveBadge(slug string) bool {
	for _, s := range m.ActiveBadges {
		if s == slug {
			return true
		}
	}
	return false
}
