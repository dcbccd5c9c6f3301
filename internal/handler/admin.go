package handler

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/Sheiden1/hackathon/internal/apperr"
	appI18n "github.com/Sheiden1/hackathon/internal/i18n"
	"github.com/Sheiden1/hackathon/internal/model"
	"github.com/Sheiden1/hackathon/internal/validate"
)

var (
	errBadUser   = errors.New("invalid user")
	errBadImport = errors.New("invalid question import")
)

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.writeError(w, r, &apperr.PersistenceError{Op: "list users", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type createUserRequest struct {
	Username    string         `json:"username" validate:"notblank,max=64"`
	DisplayName string         `json:"display_name" validate:"max=120"`
	Password    string         `json:"password" validate:"min=8"`
	Role        model.UserRole `json:"role" validate:"oneof=student teacher admin"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if err := validate.Struct(req, errBadUser); err != nil {
		h.writeError(w, r, err)
		return
	}

	existing, err := h.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		h.writeError(w, r, &apperr.PersistenceError{Op: "load user", Err: err})
		return
	}
	if existing != nil {
		h.writeError(w, r, apperr.NewValidationError(errBadUser,
			apperr.FieldError{Field: "username", Error: "username already taken"}))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	u := model.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		Role:         req.Role,
		Active:       true,
	}
	id, err := h.store.CreateUser(r.Context(), u)
	if err != nil {
		h.writeError(w, r, &apperr.PersistenceError{Op: "create user", Err: err})
		return
	}
	u.ID = id
	writeJSON(w, http.StatusCreated, u)
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	if self := model.UserFromContext(r.Context()); self.ID == id {
		h.writeError(w, r, apperr.NewValidationError(errBadUser,
			apperr.FieldError{Field: "user_id", Error: "cannot deactivate yourself"}))
		return
	}
	u, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, &apperr.PersistenceError{Op: "load user", Err: err})
		return
	}
	if u == nil {
		h.writeError(w, r, apperr.ErrNotFound)
		return
	}
	active, err := h.store.ToggleUserActive(r.Context(), id)
	if err != nil {
		h.writeError(w, r, &apperr.PersistenceError{Op: "toggle user", Err: err})
		return
	}
	u.Active = active
	slog.Info("user active flag toggled", "user_id", id, "active", u.Active)
	writeJSON(w, http.StatusOK, u)
}

// handleImportQuestions loads a JSON array of question rows from multipart
// field "file". Nothing is stored unless every row is valid. A file whose
// content was already imported under the same name is skipped.
func (h *Handler) handleImportQuestions(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, apperr.NewValidationError(errBadImport,
			apperr.FieldError{Field: "file", Error: err.Error()}))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, r, apperr.NewValidationError(errBadImport,
			apperr.FieldError{Field: "file", Error: err.Error()}))
		return
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	storedHash, err := h.store.GetImportedFileHash(r.Context(), header.Filename)
	if err != nil {
		h.writeError(w, r, &apperr.PersistenceError{Op: "check import status", Err: err})
		return
	}
	if storedHash == hash {
		slog.Info("questions file unchanged, skipping", "filename", header.Filename)
		writeJSON(w, http.StatusOK, importResponse{Duplicate: true, Message: appI18n.Tp(r.Context(), "QuestionsImported", 0)})
		return
	}

	var reqs []questionRequest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&reqs); err != nil {
		h.writeError(w, r, apperr.NewValidationError(errBadImport,
			apperr.FieldError{Field: "file", Error: err.Error()}))
		return
	}
	if len(reqs) == 0 {
		h.writeError(w, r, apperr.NewValidationError(errBadImport,
			apperr.FieldError{Field: "file", Error: "no questions"}))
		return
	}

	rows := make([]model.StoredQuestion, 0, len(reqs))
	var fields []apperr.FieldError
	for i, req := range reqs {
		row, err := h.checkQuestion(r, req)
		if err != nil {
			var ve *apperr.ValidationError
			if !errors.As(err, &ve) {
				h.writeError(w, r, err)
				return
			}
			for _, f := range ve.Fields {
				fields = append(fields, apperr.FieldError{Field: fmt.Sprintf("[%d].%s", i, f.Field), Error: f.Error})
			}
			continue
		}
		rows = append(rows, row)
	}
	if len(fields) > 0 {
		h.writeError(w, r, apperr.NewValidationError(errBadImport, fields...))
		return
	}
	if err := h.store.InsertQuestions(r.Context(), rows); err != nil {
		h.writeError(w, r, &apperr.PersistenceError{Op: "import questions", Err: err})
		return
	}
	if err := h.store.SetImportedFileHash(r.Context(), header.Filename, hash); err != nil {
		slog.Error("failed to record import", "filename", header.Filename, "error", err)
	}
	slog.Info("questions imported", "filename", header.Filename, "count", len(rows))
	writeJSON(w, http.StatusCreated, importResponse{
		Count:   len(rows),
		Message: appI18n.Tp(r.Context(), "QuestionsImported", len(rows)),
	})
}

type importResponse struct {
	Count     int    `json:"count"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Message   string `json:"message"`
}
