package model

import "time"

// SystemActor is the awardedBy/revokedBy value used by automatic passes.
const SystemActor = "system"

// Revoke reasons written by the decay sweep.
const (
	ReasonExpired = "expired"
	ReasonDecay   = "decay"
)

// AwardRequest describes a new award.
type AwardRequest struct {
	ProfessionalID int64
	BadgeSlug      string
	AwardedBy      string
	AwardedAt      time.Time // zero means now
	ExpiresAt      *time.Time
	Metadata       map[string]any
}

// AwardRecord is one row of the award ledger. A record with RevokedAt == nil
// is the active award for its (professional, badge) pair.
type AwardRecord struct {
	ID             int64          `json:"id"`
	ProfessionalID int64          `json:"professional_id"`
	BadgeID        int64          `json:"badge_id"`
	BadgeSlug      string         `json:"badge_slug"`
	AwardedAt      time.Time      `json:"awarded_at"`
	AwardedBy      string         `json:"awarded_by"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
	RevokedAt      *time.Time     `json:"revoked_at,omitempty"`
	RevokedBy      string         `json:"revoked_by,omitempty"`
	RevokeReason   string         `json:"revoke_reason,omitempty"`
	IsVisible      bool           `json:"is_visible"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Active reports whether the record has not been revoked.
func (a AwardRecord) Active() bool {
	return a.RevokedAt == nil
}

// ExpiredAt reports whether the award carries an expiry that is not after now.
func (a AwardRecord) ExpiredAt(now time.Time) bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.After(now)
}

// ActiveBadge is an active award joined with the display fields of its badge.
type ActiveBadge struct {
	AwardRecord
	Name        string `json:"name"`
	Family      Family `json:"family"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
}

// RevokeOutcome distinguishes the results of a revocation attempt.
type RevokeOutcome int

const (
	RevokeNotFound RevokeOutcome = iota
	RevokeAlreadyRevoked
	RevokeRevoked
)

func (o RevokeOutcome) String() string {
	switch o {
	case RevokeNotFound:
		return "not_found"
	case RevokeAlreadyRevoked:
		return "already_revoked"
	case RevokeRevoked:
		return "revoked"
	}
	return "unknown"
}
