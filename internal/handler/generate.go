package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Sheiden1/hackathon/internal/apperr"
	"github.com/Sheiden1/hackathon/internal/blob"
	"github.com/Sheiden1/hackathon/internal/generation"
	appI18n "github.com/Sheiden1/hackathon/internal/i18n"
	"github.com/Sheiden1/hackathon/internal/model"
)

var errBadUpload = errors.New("invalid upload")

type generateResponse struct {
	Count     int                    `json:"count"`
	Questions []model.StoredQuestion `json:"questions"`
	Message   string                 `json:"message"`
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generation.Request
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if !h.limiter.Allow() {
		h.writeError(w, r, apperr.ErrRateLimited)
		return
	}
	rows, err := h.generator.Populate(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, generateResponse{
		Count:     len(rows),
		Questions: rows,
		Message:   appI18n.Tp(r.Context(), "QuestionsGenerated", len(rows)),
	})
}

type uploadResponse struct {
	Name   string `json:"name"`
	Handle string `json:"handle"`
	Size   int64  `json:"size"`
}

// handleUploadMaterial stores a teaching material sent as multipart field "file".
func (h *Handler) handleUploadMaterial(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, apperr.NewValidationError(errBadUpload,
			apperr.FieldError{Field: "file", Error: err.Error()}))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	name := blob.MaterialPath(header.Filename, time.Now())
	handle, err := h.blobs.Put(r.Context(), name, file, header.Size, contentType)
	if err != nil {
		h.writeError(w, r, &apperr.PersistenceError{Op: "store material", Err: err})
		return
	}
	user := model.UserFromContext(r.Context())
	slog.Info("material uploaded", "name", name, "size", header.Size, "teacher_id", user.ID)
	writeJSON(w, http.StatusCreated, uploadResponse{Name: name, Handle: handle, Size: header.Size})
}
