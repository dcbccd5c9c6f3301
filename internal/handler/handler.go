// Package handler is the JSON HTTP API over the activity, grading and
// generation components.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/Sheiden1/hackathon/internal/apperr"
	"github.com/Sheiden1/hackathon/internal/blob"
	"github.com/Sheiden1/hackathon/internal/generation"
	"github.com/Sheiden1/hackathon/internal/grading"
	appI18n "github.com/Sheiden1/hackathon/internal/i18n"
	"github.com/Sheiden1/hackathon/internal/metrics"
	"github.com/Sheiden1/hackathon/internal/model"
	"github.com/Sheiden1/hackathon/internal/store"
	"github.com/Sheiden1/hackathon/internal/submission"
)

// Config holds handler settings.
type Config struct {
	GradeScale     grading.Scale
	GenerateRate   rate.Limit
	GenerateBurst  int
	MaxUploadBytes int64
	// PlayIdleTimeout drops activity sessions nobody touched for this long.
	PlayIdleTimeout time.Duration
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	blobs     blob.Store
	generator *generation.Service
	recorder  *submission.Recorder
	grading   *grading.Surface
	metrics   *metrics.Metrics
	limiter   *rate.Limiter
	plays     *registry
	config    Config
}

// New creates a new Handler.
func New(s *store.Store, gen generation.Generator, blobs blob.Store, m *metrics.Metrics, cfg Config) *Handler {
	if cfg.GradeScale == 0 {
		cfg.GradeScale = grading.Scale100
	}
	if cfg.GenerateBurst <= 0 {
		cfg.GenerateBurst = 1
	}
	if cfg.GenerateRate == 0 {
		cfg.GenerateRate = rate.Every(10 * time.Second)
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
	if cfg.PlayIdleTimeout <= 0 {
		cfg.PlayIdleTimeout = 6 * time.Hour
	}
	return &Handler{
		store:     s,
		blobs:     blobs,
		generator: generation.New(gen, s, m),
		recorder:  submission.NewRecorder(s),
		grading:   grading.New(s),
		metrics:   m,
		limiter:   rate.NewLimiter(cfg.GenerateRate, cfg.GenerateBurst),
		plays:     newRegistry(m),
		config:    cfg,
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Post("/auth/logout", h.handleLogout)
		r.Get("/auth/me", h.handleMe)

		r.Get("/subjects", h.handleListSubjects)
		r.Get("/activities", h.handleListActivities)
		r.Get("/activities/{activityID}", h.handleGetActivity)

		r.Post("/play", h.handleStartPlay)
		r.Get("/play/{playID}", h.handlePlayState)
		r.Post("/play/{playID}/answer", h.handleAnswer)
		r.Post("/play/{playID}/advance", h.handleAdvance)
		r.Delete("/play/{playID}", h.handleAbandon)

		r.Group(func(r chi.Router) {
			r.Use(h.requireRole(model.UserRoleTeacher, model.UserRoleAdmin))

			r.Post("/subjects", h.handleCreateSubject)
			// Rows carry correct_answer, so the bank stays with staff.
			r.Get("/questions", h.handleListQuestions)
			r.Post("/questions", h.handleCreateQuestion)
			r.Post("/questions/import", h.handleImportQuestions)
			r.Post("/activities", h.handleCreateActivity)
			r.Get("/grading/pending", h.handlePending)
			r.Post("/grading/{submissionID}", h.handleGrade)
			r.Post("/generate", h.handleGenerate)
			r.Post("/materials", h.handleUploadMaterial)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.requireRole(model.UserRoleAdmin))

			r.Get("/admin/users", h.handleListUsers)
			r.Post("/admin/users", h.handleCreateUser)
			r.Post("/admin/users/{userID}/toggle", h.handleToggleUserActive)
		})
	})
}

type errorResponse struct {
	Error  string              `json:"error"`
	Fields []apperr.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var partial *apperr.PartialPersistenceError
	switch {
	case errors.Is(err, apperr.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrSessionFinished), errors.Is(err, apperr.ErrNotAnswered):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, apperr.ErrGeneration):
		return http.StatusBadGateway
	case errors.As(err, &partial):
		return http.StatusInternalServerError
	case apperr.IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	} else {
		slog.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	resp := errorResponse{Error: appI18n.Error(r.Context(), err)}
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		resp.Fields = ve.Fields
	}
	writeJSON(w, status, resp)
}

var errBadBody = errors.New("malformed request body")

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.NewValidationError(errBadBody, apperr.FieldError{Field: "body", Error: err.Error()})
	}
	return nil
}
