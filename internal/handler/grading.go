package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Sheiden1/hackathon/internal/grading"
	appI18n "github.com/Sheiden1/hackathon/internal/i18n"
	"github.com/Sheiden1/hackathon/internal/model"
)

type pendingView struct {
	model.PendingSubmission
	// DisplayScore is Score on the configured grade scale.
	DisplayScore *float64 `json:"display_score"`
	Scale        int      `json:"scale"`
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	subs, err := h.grading.ListPending(r.Context(), model.UserFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]pendingView, len(subs))
	for i, s := range subs {
		out[i] = pendingView{PendingSubmission: s, Scale: int(h.config.GradeScale)}
		if s.Score != nil {
			v := h.config.GradeScale.FromCanonical(*s.Score)
			out[i].DisplayScore = &v
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type gradeRequest struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

func (h *Handler) handleGrade(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	score, err := h.config.GradeScale.Canonical(req.Score)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	actor := model.UserFromContext(r.Context())
	g := grading.Grade{
		SubmissionID: chi.URLParam(r, "submissionID"),
		Score:        score,
		Feedback:     req.Feedback,
	}
	if err := h.grading.Grade(r.Context(), actor, g); err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.metrics != nil {
		h.metrics.Grades.Inc()
	}
	slog.Info("submission graded", "submission_id", g.SubmissionID, "teacher_id", actor.ID, "score", g.Score)
	writeJSON(w, http.StatusOK, map[string]string{"message": appI18n.T(r.Context(), "GradeSaved")})
}
