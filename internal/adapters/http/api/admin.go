package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/wolfinder/badges/internal/domain/engine"
	"github.com/wolfinder/badges/internal/domain/model"
	"github.com/wolfinder/badges/pkg/logger"
)

// defaultRevoker is used when a revoke request names no actor.
const defaultRevoker = "admin"

// AdminHandler serves the admin award and revoke endpoints.
type AdminHandler struct {
	deps     Dependencies
	validate *validator.Validate
	logger   logger.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps Dependencies, validate *validator.Validate, log logger.Logger) *AdminHandler {
	return &AdminHandler{deps: deps, validate: validate, logger: log}
}

// AwardRequest is the body of POST /api/admin/professionals/{id}/badges.
type AwardRequest struct {
	BadgeSlug string         `json:"badge_slug" validate:"required,max=100"`
	AwardedBy string         `json:"awarded_by" validate:"required,max=255"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AwardResponse reports whether a new award was created.
type AwardResponse struct {
	Awarded bool              `json:"awarded"`
	Award   model.AwardRecord `json:"award"`
}

// RevokeRequest is the optional body of the revoke endpoints.
type RevokeRequest struct {
	RevokedBy string `json:"revoked_by" validate:"max=255"`
	Reason    string `json:"reason" validate:"max=1000"`
}

// RevokeResponse reports the outcome of a revocation.
type RevokeResponse struct {
	Outcome string             `json:"outcome"`
	Award   *model.AwardRecord `json:"award,omitempty"`
}

// HandleAward handles POST /api/admin/professionals/{id}/badges.
func (h *AdminHandler) HandleAward(w http.ResponseWriter, r *http.Request) {
	const op = "award badge"
	id, err := pathID(r, op, "id")
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}

	var req AwardRequest
	if err := h.decode(w, r, &req, true); err != nil {
		fail(w, r, h.logger, WrapKind(op, ErrBadRequest, err))
		return
	}

	rec, created, err := h.deps.AwardBadge(r.Context(), engine.AwardInput{
		ProfessionalID: id,
		BadgeSlug:      req.BadgeSlug,
		AwardedBy:      req.AwardedBy,
		ExpiresAt:      req.ExpiresAt,
		Metadata:       req.Metadata,
	})
	if err != nil {
		fail(w, r, h.logger, Wrap(op, err))
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, AwardResponse{Awarded: created, Award: rec})
}

// HandleHistory handles GET /api/admin/professionals/{id}/badges/history.
func (h *AdminHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "award history"
	id, err := pathID(r, op, "id")
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	history, err := h.deps.History(r.Context(), id)
	if err != nil {
		fail(w, r, h.logger, Wrap(op, err))
		return
	}
	if history == nil {
		history = []model.AwardRecord{}
	}
	writeJSON(w, http.StatusOK, history)
}

// HandleRevoke handles DELETE /api/admin/professional-badges/{awardID}.
func (h *AdminHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	const op = "revoke award"
	awardID, err := pathID(r, op, "awardID")
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	req, err := h.revokeRequest(w, r)
	if err != nil {
		fail(w, r, h.logger, WrapKind(op, ErrBadRequest, err))
		return
	}

	outcome, rec, err := h.deps.RevokeAward(r.Context(), awardID, req.RevokedBy, req.Reason)
	if err != nil {
		fail(w, r, h.logger, Wrap(op, err))
		return
	}
	resp := RevokeResponse{Outcome: outcome.String()}
	if outcome != model.RevokeNotFound {
		resp.Award = &rec
	}
	writeJSON(w, revokeStatus(outcome), resp)
}

// HandleRevokeBySlug handles DELETE /api/admin/professionals/{id}/badges/{slug}.
func (h *AdminHandler) HandleRevokeBySlug(w http.ResponseWriter, r *http.Request) {
	const op = "revoke badge"
	id, err := pathID(r, op, "id")
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	req, err := h.revokeRequest(w, r)
	if err != nil {
		fail(w, r, h.logger, WrapKind(op, ErrBadRequest, err))
		return
	}

	outcome, err := h.deps.RevokeBadge(r.Context(), id, chi.URLParam(r, "slug"), req.RevokedBy, req.Reason)
	if err != nil {
		fail(w, r, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, revokeStatus(outcome), RevokeResponse{Outcome: outcome.String()})
}

// revokeRequest reads the optional revoke body, falling back to query
// parameters and then to the default actor.
func (h *AdminHandler) revokeRequest(w http.ResponseWriter, r *http.Request) (RevokeRequest, error) {
	var req RevokeRequest
	if err := h.decode(w, r, &req, false); err != nil {
		return req, err
	}
	q := r.URL.Query()
	if req.RevokedBy == "" {
		req.RevokedBy = q.Get("revoked_by")
	}
	if req.Reason == "" {
		req.Reason = q.Get("reason")
	}
	if req.RevokedBy == "" {
		req.RevokedBy = defaultRevoker
	}
	return req, nil
}

// decode reads a JSON body into dst and validates it. An empty body is
// accepted only when required is false.
func (h *AdminHandler) decode(w http.ResponseWriter, r *http.Request, dst any, required bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && !required {
			return nil
		}
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("decode body: %w", err)
	}
	if err := h.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError flattens validator errors into one readable message.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, fmt.Errorf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return errors.Join(errs...)
}

func revokeStatus(outcome model.RevokeOutcome) int {
	switch outcome {
	case model.RevokeRevoked:
		return http.StatusOK
	case model.RevokeAlreadyRevoked:
		return http.StatusConflict
	}
	return http.StatusNotFound
}
