package api

import (
	"fmt"
	"net/http"

	"github.com/wolfinder/badges/internal/domain/model"
	"github.com/wolfinder/badges/pkg/logger"
)

// Calculation modes accepted by POST /calculate-badges.
const (
	ModeEvaluate = "evaluate"
	ModeAward    = "award"
	ModeAsync    = "async"
)

// BadgeHandler serves the public badge endpoints.
type BadgeHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewBadgeHandler creates a new badge handler.
func NewBadgeHandler(deps Dependencies, log logger.Logger) *BadgeHandler {
	return &BadgeHandler{deps: deps, logger: log}
}

// EvaluationResponse is the body of an evaluation-only calculation.
type EvaluationResponse struct {
	ProfessionalID int64                    `json:"professional_id"`
	Results        []model.EvaluationResult `json:"results"`
}

// AcceptedResponse is the body returned when an award pass was queued.
type AcceptedResponse struct {
	ProfessionalID int64  `json:"professional_id"`
	Status         string `json:"status"`
}

// HandleCatalog handles GET /api/badges.
func (h *BadgeHandler) HandleCatalog(w http.ResponseWriter, _ *http.Request) {
	badges := h.deps.Badges()
	if badges == nil {
		badges = []model.BadgeDefinition{}
	}
	writeJSON(w, http.StatusOK, badges)
}

// HandleListActive handles GET /api/professionals/{id}/badges.
func (h *BadgeHandler) HandleListActive(w http.ResponseWriter, r *http.Request) {
	const op = "list active badges"
	id, err := pathID(r, op, "id")
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	active, err := h.deps.ListActiveBadges(r.Context(), id)
	if err != nil {
		fail(w, r, h.logger, Wrap(op, err))
		return
	}
	if active == nil {
		active = []model.ActiveBadge{}
	}
	writeJSON(w, http.StatusOK, active)
}

// HandleCalculate handles POST /api/professionals/{id}/calculate-badges.
// Without a mode it only evaluates; mode=award runs an award pass and
// mode=async queues one.
func (h *BadgeHandler) HandleCalculate(w http.ResponseWriter, r *http.Request) {
	const op = "calculate badges"
	id, err := pathID(r, op, "id")
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}

	switch mode := r.URL.Query().Get("mode"); mode {
	case "", ModeEvaluate:
		results, err := h.deps.EvaluateAll(r.Context(), id)
		if err != nil {
			fail(w, r, h.logger, Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusOK, EvaluationResponse{ProfessionalID: id, Results: results})
	case ModeAward:
		report, err := h.deps.AwardPass(r.Context(), id)
		if err != nil {
			fail(w, r, h.logger, Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusOK, report)
	case ModeAsync:
		if err := h.deps.EnqueueAwardPass(r.Context(), id); err != nil {
			fail(w, r, h.logger, Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusAccepted, AcceptedResponse{ProfessionalID: id, Status: "queued"})
	default:
		fail(w, r, h.logger, WrapKind(op, ErrBadRequest, fmt.Errorf("unknown mode %q", mode)))
	}
}
