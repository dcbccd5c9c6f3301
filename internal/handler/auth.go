package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Sheiden1/hackathon/internal/apperr"
	appI18n "github.com/Sheiden1/hackathon/internal/i18n"
	"github.com/Sheiden1/hackathon/internal/model"
	"github.com/Sheiden1/hackathon/internal/validate"
)

var errInvalidCredentials = errors.New("invalid credentials")

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// requireAuth is middleware that resolves the bearer token to an active user.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			h.writeError(w, r, apperr.ErrUnauthenticated)
			return
		}

		user, err := h.store.LookupToken(r.Context(), token)
		if err != nil {
			slog.Error("failed to look up token", "error", err)
			h.writeError(w, r, apperr.ErrUnauthenticated)
			return
		}
		if user == nil {
			h.writeError(w, r, apperr.ErrUnauthenticated)
			return
		}

		ctx := model.ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole returns middleware that checks the user has one of the allowed roles.
func (h *Handler) requireRole(allowed ...model.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := model.UserFromContext(r.Context())
			if user == nil {
				h.writeError(w, r, apperr.ErrUnauthenticated)
				return
			}
			for _, role := range allowed {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			h.writeError(w, r, apperr.ErrForbidden)
		})
	}
}

type loginRequest struct {
	Username string `json:"username" validate:"notblank"`
	Password string `json:"password" validate:"notblank"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validate.Struct(req, errInvalidCredentials); err != nil {
		h.writeError(w, r, err)
		return
	}

	user, err := h.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		slog.Error("failed to get user", "error", err)
		h.writeError(w, r, &apperr.PersistenceError{Op: "load user", Err: err})
		return
	}
	if user == nil || !user.Active {
		h.renderLoginError(w, r)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		h.renderLoginError(w, r)
		return
	}

	tok, err := h.store.IssueToken(r.Context(), user.ID)
	if err != nil {
		slog.Error("failed to issue token", "error", err)
		h.writeError(w, r, &apperr.PersistenceError{Op: "issue token", Err: err})
		return
	}
	slog.Info("user logged in", "user_id", user.ID, "role", user.Role, "expires_at", tok.ExpiresAt)
	writeJSON(w, http.StatusOK, loginResponse{Token: tok.Token, ExpiresAt: tok.ExpiresAt, User: user})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.store.RevokeToken(r.Context(), bearerToken(r)); err != nil {
		slog.Error("failed to revoke token", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.UserFromContext(r.Context()))
}

func (h *Handler) renderLoginError(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: appI18n.T(r.Context(), "ErrInvalidCredentials")})
}
