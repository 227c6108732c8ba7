package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfinder/badges/internal/domain/metrics"
	"github.com/wolfinder/badges/internal/domain/model"
	pmetrics "github.com/wolfinder/badges/pkg/metrics"
)

// SQLStore is a Store over database/sql for PostgreSQL and SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time

	// afterConflict runs between a conflicting insert and the reload of the
	// active row. Tests use it to interleave a revocation.
	afterConflict func()
}

var _ Store = (*SQLStore)(nil)

// OpenSQL connects to dsn and returns a store. The schema must already be
// migrated (see Migrate).
func OpenSQL(ctx context.Context, dialect Dialect, dsn string, opts ...Option) (*SQLStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	db, err := openDB(ctx, dialect, dsn, o)
	if err != nil {
		return nil, err
	}
	return &SQLStore{db: db, dialect: dialect, now: o.now}, nil
}

// NewSQLStore wraps an existing pool.
func NewSQLStore(db *sql.DB, dialect Dialect, opts ...Option) *SQLStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &SQLStore{db: db, dialect: dialect, now: o.now}
}

// DB returns the underlying pool.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Close closes the pool.
func (s *SQLStore) Close() error { return s.db.Close() }

// Ping checks the connection.
func (s *SQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLStore) observe(op string, start time.Time, err *error) {
	pmetrics.RecordRepositoryQueryLatency(op, float64(time.Since(start).Microseconds())/1000)
	if *err != nil {
		pmetrics.RecordRepositoryError(op)
	}
}

func (s *SQLStore) exec(ctx context.Context, q querier, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, q querier, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, q querier, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const upsertBadge = `
INSERT INTO badges (slug, name, family, icon, color, description, requirements,
                    calculation_method, decay_rules, priority, position, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (slug) DO UPDATE SET
    name = excluded.name,
    family = excluded.family,
    icon = excluded.icon,
    color = excluded.color,
    description = excluded.description,
    requirements = excluded.requirements,
    calculation_method = excluded.calculation_method,
    decay_rules = excluded.decay_rules,
    priority = excluded.priority,
    position = excluded.position,
    updated_at = excluded.updated_at`

// SeedCatalog implements Ledger.
func (s *SQLStore) SeedCatalog(ctx context.Context, defs []model.BadgeDefinition) (err error) {
	defer s.observe("seed_catalog", time.Now(), &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := s.now().UTC()
	for _, def := range defs {
		reqs, mErr := json.Marshal(nonNil(def.Requirements))
		if mErr != nil {
			return fmt.Errorf("encode requirements of %s: %w", def.Slug, mErr)
		}
		var decay any
		if def.DecayRules != nil {
			raw, mErr := json.Marshal(def.DecayRules)
			if mErr != nil {
				return fmt.Errorf("encode decay rules of %s: %w", def.Slug, mErr)
			}
			decay = string(raw)
		}
		if _, err = s.exec(ctx, tx, upsertBadge,
			def.Slug, def.Name, string(def.Family), def.Icon, def.Color, def.Description, string(reqs),
			string(def.CalculationMethod), decay, def.Priority, def.Position, now,
		); err != nil {
			return fmt.Errorf("seed badge %s: %w", def.Slug, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}

func (s *SQLStore) badgeID(ctx context.Context, q querier, slug string) (int64, error) {
	var id int64
	err := s.queryRow(ctx, q, `SELECT id FROM badges WHERE slug = ?`, slug).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrBadgeNotFound, slug)
	}
	return id, err
}

const insertAward = `
INSERT INTO professional_badges (professional_id, badge_id, awarded_at, awarded_by, expires_at, is_visible, metadata)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (professional_id, badge_id) WHERE revoked_at IS NULL DO NOTHING
RETURNING id`

// Award implements Ledger. The partial unique index decides between
// concurrent inserts for the same pair; the loser gets no row back.
func (s *SQLStore) Award(ctx context.Context, req AwardRequest) (rec model.AwardRecord, awarded bool, err error) {
	defer s.observe("award", time.Now(), &err)

	if err = validateAward(req); err != nil {
		return model.AwardRecord{}, false, err
	}
	badgeID, err := s.badgeID(ctx, s.db, req.BadgeSlug)
	if err != nil {
		return model.AwardRecord{}, false, err
	}
	meta, err := json.Marshal(cloneMeta(req.Metadata))
	if err != nil {
		return model.AwardRecord{}, false, fmt.Errorf("%w: metadata: %v", ErrInvalidAward, err)
	}

	at := req.AwardedAt
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()
	var expires any
	if req.ExpiresAt != nil {
		expires = req.ExpiresAt.UTC()
	}

	// The active row can be revoked between a conflicting insert and its
	// reload; the insert is then retried once.
	for attempt := 0; attempt < 2; attempt++ {
		var id int64
		err = s.queryRow(ctx, s.db, insertAward,
			req.ProfessionalID, badgeID, at, req.AwardedBy, expires, true, string(meta),
		).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if s.afterConflict != nil {
				s.afterConflict()
			}
			existing, found, err := s.activeAward(ctx, req.ProfessionalID, badgeID)
			if err != nil || found {
				return existing, false, err
			}
			continue
		case err != nil:
			return model.AwardRecord{}, false, fmt.Errorf("insert award: %w", err)
		}

		rec, err = s.awardByID(ctx, s.db, id)
		return rec, err == nil, err
	}
	return model.AwardRecord{}, false, nil
}

const awardColumns = `
SELECT pb.id, pb.professional_id, pb.badge_id, b.slug, pb.awarded_at, pb.awarded_by,
       pb.expires_at, pb.revoked_at, COALESCE(pb.revoked_by, ''), COALESCE(pb.revoke_reason, ''),
       pb.is_visible, pb.metadata`

func (s *SQLStore) activeAward(ctx context.Context, professionalID, badgeID int64) (model.AwardRecord, bool, error) {
	row := s.queryRow(ctx, s.db, awardColumns+`
FROM professional_badges pb JOIN badges b ON b.id = pb.badge_id
WHERE pb.professional_id = ? AND pb.badge_id = ? AND pb.revoked_at IS NULL`, professionalID, badgeID)
	rec, err := scanAward(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return model.AwardRecord{}, false, nil
	case err != nil:
		return model.AwardRecord{}, false, fmt.Errorf("load active award: %w", err)
	}
	return rec, true, nil
}

func (s *SQLStore) awardByID(ctx context.Context, q querier, id int64) (model.AwardRecord, error) {
	row := s.queryRow(ctx, q, awardColumns+`
FROM professional_badges pb JOIN badges b ON b.id = pb.badge_id
WHERE pb.id = ?`, id)
	return scanAward(row)
}

const revokeActive = `
UPDATE professional_badges SET revoked_at = ?, revoked_by = ?, revoke_reason = ?
WHERE professional_id = ? AND badge_id = ? AND revoked_at IS NULL`

// Revoke implements Ledger.
func (s *SQLStore) Revoke(ctx context.Context, professionalID int64, slug, by, reason string, at time.Time) (outcome model.RevokeOutcome, err error) {
	defer s.observe("revoke", time.Now(), &err)

	badgeID, err := s.badgeID(ctx, s.db, slug)
	if err != nil {
		return model.RevokeNotFound, err
	}
	if at.IsZero() {
		at = s.now()
	}
	res, err := s.exec(ctx, s.db, revokeActive, at.UTC(), by, reason, professionalID, badgeID)
	if err != nil {
		return model.RevokeNotFound, fmt.Errorf("revoke award: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return model.RevokeRevoked, nil
	}

	var held int
	err = s.queryRow(ctx, s.db,
		`SELECT COUNT(*) FROM professional_badges WHERE professional_id = ? AND badge_id = ?`,
		professionalID, badgeID).Scan(&held)
	if err != nil {
		return model.RevokeNotFound, fmt.Errorf("count awards: %w", err)
	}
	if held > 0 {
		return model.RevokeAlreadyRevoked, nil
	}
	return model.RevokeNotFound, nil
}

// RevokeByID implements Ledger.
func (s *SQLStore) RevokeByID(ctx context.Context, awardID int64, by, reason string, at time.Time) (outcome model.RevokeOutcome, rec model.AwardRecord, err error) {
	defer s.observe("revoke_by_id", time.Now(), &err)

	if at.IsZero() {
		at = s.now()
	}
	res, err := s.exec(ctx, s.db,
		`UPDATE professional_badges SET revoked_at = ?, revoked_by = ?, revoke_reason = ? WHERE id = ? AND revoked_at IS NULL`,
		at.UTC(), by, reason, awardID)
	if err != nil {
		return model.RevokeNotFound, model.AwardRecord{}, fmt.Errorf("revoke award %d: %w", awardID, err)
	}
	n, _ := res.RowsAffected()

	rec, err = s.awardByID(ctx, s.db, awardID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RevokeNotFound, model.AwardRecord{}, nil
	}
	if err != nil {
		return model.RevokeNotFound, model.AwardRecord{}, fmt.Errorf("load award %d: %w", awardID, err)
	}
	if n == 0 {
		return model.RevokeAlreadyRevoked, rec, nil
	}
	return model.RevokeRevoked, rec, nil
}

// ListActive implements Ledger.
func (s *SQLStore) ListActive(ctx context.Context, professionalID int64) (out []model.ActiveBadge, err error) {
	defer s.observe("list_active", time.Now(), &err)

	rows, err := s.query(ctx, s.db, awardColumns+`,
       b.name, b.family, b.icon, b.color, b.description, b.priority
FROM professional_badges pb JOIN badges b ON b.id = pb.badge_id
WHERE pb.professional_id = ? AND pb.revoked_at IS NULL AND pb.is_visible = ?
ORDER BY b.priority, b.position, pb.id`, professionalID, true)
	if err != nil {
		return nil, fmt.Errorf("list active awards: %w", err)
	}
	defer rows.Close()

	out = []model.ActiveBadge{}
	for rows.Next() {
		var ab model.ActiveBadge
		var sc scanned
		var family string
		dest := append(sc.dest(&ab.AwardRecord), &ab.Name, &family, &ab.Icon, &ab.Color, &ab.Description, &ab.Priority)
		if err = rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan active award: %w", err)
		}
		if err = sc.apply(&ab.AwardRecord); err != nil {
			return nil, err
		}
		ab.Family = model.Family(family)
		out = append(out, ab)
	}
	return out, rows.Err()
}

// History implements Ledger.
func (s *SQLStore) History(ctx context.Context, professionalID int64) (out []model.AwardRecord, err error) {
	defer s.observe("history", time.Now(), &err)

	rows, err := s.query(ctx, s.db, awardColumns+`
FROM professional_badges pb JOIN badges b ON b.id = pb.badge_id
WHERE pb.professional_id = ?
ORDER BY pb.awarded_at, pb.id`, professionalID)
	if err != nil {
		return nil, fmt.Errorf("award history: %w", err)
	}
	defer rows.Close()

	out = []model.AwardRecord{}
	for rows.Next() {
		rec, err := scanAward(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ProfessionalsWithActiveAwards implements Ledger.
func (s *SQLStore) ProfessionalsWithActiveAwards(ctx context.Context) (ids []int64, err error) {
	defer s.observe("active_professionals", time.Now(), &err)

	rows, err := s.query(ctx, s.db,
		`SELECT DISTINCT professional_id FROM professional_badges WHERE revoked_at IS NULL ORDER BY professional_id`)
	if err != nil {
		return nil, fmt.Errorf("list professionals with awards: %w", err)
	}
	defer rows.Close()

	ids = []int64{}
	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const upsertProfessional = `
INSERT INTO professionals (id, business_name, description, email, phone, address, city, is_verified, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    business_name = excluded.business_name,
    description = excluded.description,
    email = excluded.email,
    phone = excluded.phone,
    address = excluded.address,
    city = excluded.city,
    is_verified = excluded.is_verified,
    created_at = excluded.created_at`

// PutProfessional implements Directory.
func (s *SQLStore) PutProfessional(ctx context.Context, p model.Professional) (err error) {
	defer s.observe("put_professional", time.Now(), &err)

	if p.ID <= 0 {
		return fmt.Errorf("%w: id must be positive", ErrInvalidProfessional)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	_, err = s.exec(ctx, s.db, upsertProfessional,
		p.ID, p.BusinessName, p.Description, p.Email, p.Phone, p.Address, p.City, p.IsVerified, p.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("put professional %d: %w", p.ID, err)
	}
	return nil
}

// AddReview implements Directory.
func (s *SQLStore) AddReview(ctx context.Context, r model.Review) (_ model.Review, err error) {
	defer s.observe("add_review", time.Now(), &err)

	if err = validateReview(r); err != nil {
		return model.Review{}, err
	}
	if _, err = s.Professional(ctx, r.ProfessionalID); err != nil {
		return model.Review{}, err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	r.CreatedAt = r.CreatedAt.UTC()
	err = s.queryRow(ctx, s.db,
		`INSERT INTO reviews (professional_id, rating, status, created_at) VALUES (?, ?, ?, ?) RETURNING id`,
		r.ProfessionalID, r.Rating, string(r.Status), r.CreatedAt).Scan(&r.ID)
	if err != nil {
		return model.Review{}, fmt.Errorf("insert review: %w", err)
	}
	return r, nil
}

// Professional implements metrics.Source.
func (s *SQLStore) Professional(ctx context.Context, id int64) (p model.Professional, err error) {
	defer s.observe("professional", time.Now(), &err)

	err = s.queryRow(ctx, s.db, `
SELECT id, business_name, description, email, phone, address, city, is_verified, created_at
FROM professionals WHERE id = ?`, id).Scan(
		&p.ID, &p.BusinessName, &p.Description, &p.Email, &p.Phone, &p.Address, &p.City, &p.IsVerified, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Professional{}, fmt.Errorf("%w: %d", ErrProfessionalNotFound, id)
	}
	if err != nil {
		return model.Professional{}, fmt.Errorf("load professional %d: %w", id, err)
	}
	return p, nil
}

// ReviewSummary implements metrics.Source.
func (s *SQLStore) ReviewSummary(ctx context.Context, id int64) (count int, avg float64, err error) {
	defer s.observe("review_summary", time.Now(), &err)

	err = s.queryRow(ctx, s.db,
		`SELECT COUNT(*), COALESCE(AVG(rating), 0) FROM reviews WHERE professional_id = ? AND status = ?`,
		id, string(model.ReviewApproved)).Scan(&count, &avg)
	return count, avg, err
}

// CountReviews implements metrics.Source.
func (s *SQLStore) CountReviews(ctx context.Context, id int64, f metrics.ReviewFilter) (n int, err error) {
	defer s.observe("count_reviews", time.Now(), &err)

	var b strings.Builder
	b.WriteString(`SELECT COUNT(*) FROM reviews WHERE professional_id = ? AND status = ?`)
	args := []any{id, string(model.ReviewApproved)}
	if f.MinRating > 0 {
		b.WriteString(` AND rating >= ?`)
		args = append(args, f.MinRating)
	}
	if f.MaxRating > 0 {
		b.WriteString(` AND rating <= ?`)
		args = append(args, f.MaxRating)
	}
	if !f.Since.IsZero() {
		b.WriteString(` AND created_at >= ?`)
		args = append(args, f.Since.UTC())
	}
	err = s.queryRow(ctx, s.db, b.String(), args...).Scan(&n)
	return n, err
}

// ActiveBadgeSlugs implements metrics.Source.
func (s *SQLStore) ActiveBadgeSlugs(ctx context.Context, id int64) (slugs []string, err error) {
	defer s.observe("active_badge_slugs", time.Now(), &err)

	rows, err := s.query(ctx, s.db, `
SELECT b.slug FROM professional_badges pb JOIN badges b ON b.id = pb.badge_id
WHERE pb.professional_id = ? AND pb.revoked_at IS NULL
ORDER BY b.slug`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	slugs = []string{}
	for rows.Next() {
		var slug string
		if err = rows.Scan(&slug); err != nil {
			return nil, err
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}

// scanned holds the nullable and encoded columns of an award row until
// apply copies them into the record.
type scanned struct {
	expires sql.NullTime
	revoked sql.NullTime
	meta    []byte
}

type scanner interface {
	Scan(dest ...any) error
}

// dest returns the scan targets matching awardColumns.
func (sc *scanned) dest(rec *model.AwardRecord) []any {
	return []any{
		&rec.ID, &rec.ProfessionalID, &rec.BadgeID, &rec.BadgeSlug, &rec.AwardedAt, &rec.AwardedBy,
		&sc.expires, &sc.revoked, &rec.RevokedBy, &rec.RevokeReason, &rec.IsVisible, &sc.meta,
	}
}

func (sc *scanned) apply(rec *model.AwardRecord) error {
	if sc.expires.Valid {
		t := sc.expires.Time.UTC()
		rec.ExpiresAt = &t
	}
	if sc.revoked.Valid {
		t := sc.revoked.Time.UTC()
		rec.RevokedAt = &t
	}
	rec.AwardedAt = rec.AwardedAt.UTC()
	rec.Metadata = map[string]any{}
	if len(sc.meta) > 0 {
		if err := json.Unmarshal(sc.meta, &rec.Metadata); err != nil {
			return fmt.Errorf("decode award metadata: %w", err)
		}
	}
	return nil
}

func scanAward(row scanner) (model.AwardRecord, error) {
	var rec model.AwardRecord
	var sc scanned
	if err := row.Scan(sc.dest(&rec)...); err != nil {
		return model.AwardRecord{}, err
	}
	return rec, sc.apply(&rec)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
