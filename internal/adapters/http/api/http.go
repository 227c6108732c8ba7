// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/wolfinder/badges/internal/adapters/http/swagger"
	"github.com/wolfinder/badges/internal/adapters/mq/queue"
	"github.com/wolfinder/badges/internal/adapters/mq/worker"
	"github.com/wolfinder/badges/internal/domain/engine"
	"github.com/wolfinder/badges/internal/domain/model"
	"github.com/wolfinder/badges/pkg/logger"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	EvaluateAll(ctx context.Context, professionalID int64) ([]model.EvaluationResult, error)
	AwardPass(ctx context.Context, professionalID int64) (engine.AwardPassReport, error)
	EnqueueAwardPass(ctx context.Context, professionalID int64) error

	AwardBadge(ctx context.Context, in engine.AwardInput) (model.AwardRecord, bool, error)
	RevokeAward(ctx context.Context, awardID int64, by, reason string) (model.RevokeOutcome, model.AwardRecord, error)
	RevokeBadge(ctx context.Context, professionalID int64, slug, by, reason string) (model.RevokeOutcome, error)

	ListActiveBadges(ctx context.Context, professionalID int64) ([]model.ActiveBadge, error)
	History(ctx context.Context, professionalID int64) ([]model.AwardRecord, error)
	Badges() []model.BadgeDefinition
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	badgeHandler  *BadgeHandler
	adminHandler  *AdminHandler
	logger        logger.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the logger used for panics and failed requests.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	s := &Server{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("api")
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(jsonFieldName)
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.badgeHandler = NewBadgeHandler(deps, s.logger)
	s.adminHandler = NewAdminHandler(deps, validate, s.logger)
	return s
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/stats", s.statsHandler.HandleStats)

	r.Route("/api", func(r chi.Router) {
		r.Get("/badges", s.badgeHandler.HandleCatalog)
		r.Get("/professionals/{id}/badges", s.badgeHandler.HandleListActive)
		r.Post("/professionals/{id}/calculate-badges", s.badgeHandler.HandleCalculate)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/professionals/{id}/badges", s.adminHandler.HandleAward)
			r.Get("/professionals/{id}/badges/history", s.adminHandler.HandleHistory)
			r.Delete("/professionals/{id}/badges/{slug}", s.adminHandler.HandleRevokeBySlug)
			r.Delete("/professional-badges/{awardID}", s.adminHandler.HandleRevoke)
		})
	})
}

// Router builds a chi router with the middleware stack and every route.
func (s *Server) Router(ctx context.Context) chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID, Metrics, Recoverer(s.logger))
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
	})
	s.Register(ctx, r)
	swagger.Register(ctx, r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil && status < http.StatusInternalServerError {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// classify maps an upstream error to a status and a response code.
// Persistence failures stay generic.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, engine.ErrInvalidArgument):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, ErrNotFound), errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBackpressure), errors.Is(err, queue.ErrFull):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, queue.ErrClosed), errors.Is(err, worker.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}

// fail writes err, logging server-side failures.
func fail(w http.ResponseWriter, r *http.Request, log logger.Logger, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error(r.Context(), "request failed",
			logger.String("request_id", RequestIDFrom(r.Context())),
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Error(err),
		)
	}
	writeError(w, status, code, err)
}

// jsonFieldName reports validation failures under the JSON field name.
func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// pathID parses a positive integer path parameter.
func pathID(r *http.Request, op, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewKind(op, ErrBadRequest)
	}
	return id, nil
}
