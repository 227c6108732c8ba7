package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wolfinder/badges/internal/domain/metrics"
	"github.com/wolfinder/badges/internal/domain/model"
)

type pairKey struct {
	professionalID int64
	badgeID        int64
}

type badgeRow struct {
	id  int64
	def model.BadgeDefinition
}

// MemoryStore is an in-process Store. Check-and-insert for awards happens
// under a single mutex, which gives the same guarantee as the SQL partial
// unique index.
type MemoryStore struct {
	mu sync.RWMutex

	professionals map[int64]model.Professional
	reviews       map[int64][]model.Review
	nextReviewID  int64

	badges      map[string]*badgeRow
	badgesByID  map[int64]*badgeRow
	nextBadgeID int64

	awards []model.AwardRecord // award id N is at index N-1
	active map[pairKey]int

	now func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{
		professionals: make(map[int64]model.Professional),
		reviews:       make(map[int64][]model.Review),
		badges:        make(map[string]*badgeRow),
		badgesByID:    make(map[int64]*badgeRow),
		active:        make(map[pairKey]int),
		now:           o.now,
	}
}

// SeedCatalog upserts definitions by slug.
func (s *MemoryStore) SeedCatalog(_ context.Context, defs []model.BadgeDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, def := range defs {
		if row, ok := s.badges[def.Slug]; ok {
			row.def = def
			continue
		}
		s.nextBadgeID++
		row := &badgeRow{id: s.nextBadgeID, def: def}
		s.badges[def.Slug] = row
		s.badgesByID[row.id] = row
	}
	return nil
}

// Award implements Ledger.
func (s *MemoryStore) Award(_ context.Context, req AwardRequest) (model.AwardRecord, bool, error) {
	if err := validateAward(req); err != nil {
		return model.AwardRecord{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.badges[req.BadgeSlug]
	if !ok {
		return model.AwardRecord{}, false, fmt.Errorf("%w: %s", ErrBadgeNotFound, req.BadgeSlug)
	}
	key := pairKey{req.ProfessionalID, row.id}
	if idx, exists := s.active[key]; exists {
		return cloneRecord(s.awards[idx]), false, nil
	}

	at := req.AwardedAt
	if at.IsZero() {
		at = s.now()
	}
	rec := model.AwardRecord{
		ID:             int64(len(s.awards) + 1),
		ProfessionalID: req.ProfessionalID,
		BadgeID:        row.id,
		BadgeSlug:      row.def.Slug,
		AwardedAt:      at.UTC(),
		AwardedBy:      req.AwardedBy,
		ExpiresAt:      utcPtr(req.ExpiresAt),
		IsVisible:      true,
		Metadata:       cloneMeta(req.Metadata),
	}
	s.awards = append(s.awards, rec)
	s.active[key] = len(s.awards) - 1
	return cloneRecord(rec), true, nil
}

// Revoke implements Ledger.
func (s *MemoryStore) Revoke(_ context.Context, professionalID int64, slug, by, reason string, at time.Time) (model.RevokeOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.badges[slug]
	if !ok {
		return model.RevokeNotFound, fmt.Errorf("%w: %s", ErrBadgeNotFound, slug)
	}
	key := pairKey{professionalID, row.id}
	if idx, exists := s.active[key]; exists {
		s.revokeLocked(idx, by, reason, at)
		return model.RevokeRevoked, nil
	}
	for _, rec := range s.awards {
		if rec.ProfessionalID == professionalID && rec.BadgeID == row.id {
			return model.RevokeAlreadyRevoked, nil
		}
	}
	return model.RevokeNotFound, nil
}

// RevokeByID implements Ledger.
func (s *MemoryStore) RevokeByID(_ context.Context, awardID int64, by, reason string, at time.Time) (model.RevokeOutcome, model.AwardRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if awardID <= 0 || awardID > int64(len(s.awards)) {
		return model.RevokeNotFound, model.AwardRecord{}, nil
	}
	idx := int(awardID - 1)
	if !s.awards[idx].Active() {
		return model.RevokeAlreadyRevoked, cloneRecord(s.awards[idx]), nil
	}
	s.revokeLocked(idx, by, reason, at)
	return model.RevokeRevoked, cloneRecord(s.awards[idx]), nil
}

func (s *MemoryStore) revokeLocked(idx int, by, reason string, at time.Time) {
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()
	rec := &s.awards[idx]
	rec.RevokedAt = &at
	rec.RevokedBy = by
	rec.RevokeReason = reason
	delete(s.active, pairKey{rec.ProfessionalID, rec.BadgeID})
}

// ListActive implements Ledger.
func (s *MemoryStore) ListActive(_ context.Context, professionalID int64) ([]model.ActiveBadge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.ActiveBadge{}
	for _, idx := range s.active {
		rec := s.awards[idx]
		if rec.ProfessionalID != professionalID || !rec.IsVisible {
			continue
		}
		def := s.badgesByID[rec.BadgeID].def
		out = append(out, model.ActiveBadge{
			AwardRecord: cloneRecord(rec),
			Name:        def.Name,
			Family:      def.Family,
			Icon:        def.Icon,
			Color:       def.Color,
			Description: def.Description,
			Priority:    def.Priority,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := s.badgesByID[out[i].BadgeID].def, s.badgesByID[out[j].BadgeID].def
		if a.Priority != b.Priority || a.Position != b.Position {
			return a.Less(b)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// History implements Ledger.
func (s *MemoryStore) History(_ context.Context, professionalID int64) ([]model.AwardRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.AwardRecord{}
	for _, rec := range s.awards {
		if rec.ProfessionalID == professionalID {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

// ProfessionalsWithActiveAwards implements Ledger.
func (s *MemoryStore) ProfessionalsWithActiveAwards(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]struct{})
	for key := range s.active {
		seen[key.professionalID] = struct{}{}
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// PutProfessional implements Directory.
func (s *MemoryStore) PutProfessional(_ context.Context, p model.Professional) error {
	if p.ID <= 0 {
		return fmt.Errorf("%w: id must be positive", ErrInvalidProfessional)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	p.CreatedAt = p.CreatedAt.UTC()
	s.mu.Lock()
	s.professionals[p.ID] = p
	s.mu.Unlock()
	return nil
}

// AddReview implements Directory.
func (s *MemoryStore) AddReview(_ context.Context, r model.Review) (model.Review, error) {
	if err := validateReview(r); err != nil {
		return model.Review{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.professionals[r.ProfessionalID]; !ok {
		return model.Review{}, fmt.Errorf("%w: %d", ErrProfessionalNotFound, r.ProfessionalID)
	}
	s.nextReviewID++
	r.ID = s.nextReviewID
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	r.CreatedAt = r.CreatedAt.UTC()
	s.reviews[r.ProfessionalID] = append(s.reviews[r.ProfessionalID], r)
	return r, nil
}

// Professional implements metrics.Source.
func (s *MemoryStore) Professional(_ context.Context, id int64) (model.Professional, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.professionals[id]
	if !ok {
		return model.Professional{}, fmt.Errorf("%w: %d", ErrProfessionalNotFound, id)
	}
	return p, nil
}

// ReviewSummary implements metrics.Source.
func (s *MemoryStore) ReviewSummary(_ context.Context, id int64) (int, float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, sum := 0, 0
	for _, r := range s.reviews[id] {
		if r.Status == model.ReviewApproved {
			n++
			sum += r.Rating
		}
	}
	if n == 0 {
		return 0, 0, nil
	}
	return n, float64(sum) / float64(n), nil
}

// CountReviews implements metrics.Source.
func (s *MemoryStore) CountReviews(_ context.Context, id int64, f metrics.ReviewFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.reviews[id] {
		if r.Status != model.ReviewApproved {
			continue
		}
		if f.MinRating > 0 && r.Rating < f.MinRating {
			continue
		}
		if f.MaxRating > 0 && r.Rating > f.MaxRating {
			continue
		}
		if !f.Since.IsZero() && r.CreatedAt.Before(f.Since) {
			continue
		}
		n++
	}
	return n, nil
}

// ActiveBadgeSlugs implements metrics.Source.
func (s *MemoryStore) ActiveBadgeSlugs(_ context.Context, id int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []string{}
	for key, idx := range s.active {
		if key.professionalID == id {
			out = append(out, s.awards[idx].BadgeSlug)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

func validateAward(req AwardRequest) error {
	switch {
	case req.ProfessionalID <= 0:
		return fmt.Errorf("%w: professional id must be positive", ErrInvalidAward)
	case req.BadgeSlug == "":
		return fmt.Errorf("%w: badge slug is required", ErrInvalidAward)
	case req.AwardedBy == "":
		return fmt.Errorf("%w: awarded by is required", ErrInvalidAward)
	}
	return nil
}

func validateReview(r model.Review) error {
	switch {
	case r.ProfessionalID <= 0:
		return fmt.Errorf("%w: professional id must be positive", ErrInvalidReview)
	case r.Rating < 1 || r.Rating > 5:
		return fmt.Errorf("%w: rating %d out of range", ErrInvalidReview, r.Rating)
	}
	switch r.Status {
	case model.ReviewPending, model.ReviewApproved, model.ReviewRejected:
		return nil
	}
	return fmt.Errorf("%w: unknown status %q", ErrInvalidReview, r.Status)
}

func cloneRecord(rec model.AwardRecord) model.AwardRecord {
	rec.Metadata = cloneMeta(rec.Metadata)
	if rec.ExpiresAt != nil {
		t := *rec.ExpiresAt
		rec.ExpiresAt = &t
	}
	if rec.RevokedAt != nil {
		t := *rec.RevokedAt
		rec.RevokedAt = &t
	}
	return rec
}

func cloneMeta(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
