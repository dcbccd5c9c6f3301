package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Sheiden1/hackathon/internal/apperr"
	"github.com/Sheiden1/hackathon/internal/generation"
	appI18n "github.com/Sheiden1/hackathon/internal/i18n"
	"github.com/Sheiden1/hackathon/internal/model"
	"github.com/Sheiden1/hackathon/internal/quiz"
	"github.com/Sheiden1/hackathon/internal/session"
)

const defaultCustomLimit = 10

var errBadPlay = errors.New("invalid play request")

type startPlayRequest struct {
	ActivityID string `json:"activity_id"`
	SubjectID  string `json:"subject_id"`
	Limit      int    `json:"limit"`
	Generate   bool   `json:"generate"`
	Count      int    `json:"count"`
}

type questionView struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"prompt"`
	Choices      []string `json:"choices"`
	SubjectLabel string   `json:"subject_label,omitempty"`
}

type answerView struct {
	ChosenIndex   int    `json:"chosen_index"`
	ChosenLetter  string `json:"chosen_letter"`
	Correct       bool   `json:"correct"`
	CorrectIndex  int    `json:"correct_index"`
	CorrectLetter string `json:"correct_letter"`
	Message       string `json:"message"`
}

type playView struct {
	ID           string       `json:"id"`
	Kind         string       `json:"kind"`
	ActivityID   string       `json:"activity_id,omitempty"`
	State        string       `json:"state"`
	Index        int          `json:"index"`
	Total        int          `json:"total"`
	Progress     float64      `json:"progress"`
	CorrectCount int          `json:"correct_count"`
	Question     questionView `json:"question"`
	// Answer is set once the current question has been answered.
	Answer       *answerView  `json:"answer,omitempty"`
}

type resultView struct {
	CorrectCount int    `json:"correct_count"`
	Total        int    `json:"total"`
	Score        int    `json:"score"`
	Recorded     bool   `json:"recorded"`
	SubmissionID string `json:"submission_id,omitempty"`
	Message      string `json:"message"`
}

type advanceResponse struct {
	Finished bool        `json:"finished"`
	Play     *playView   `json:"play,omitempty"`
	Result   *resultView `json:"result,omitempty"`
}

// view must be called with p.mu held.
func (p *play) view(ctx context.Context) playView {
	q := p.sess.Current()
	v := playView{
		ID:           p.id,
		Kind:         p.kind,
		ActivityID:   p.activityID,
		State:        p.sess.State().String(),
		Index:        p.sess.CurrentIndex(),
		Total:        p.sess.Len(),
		Progress:     p.sess.ProgressFraction(),
		CorrectCount: p.sess.CorrectCount(),
		Question: questionView{
			ID:           q.ID,
			Prompt:       q.Prompt,
			Choices:      q.Choices,
			SubjectLabel: q.SubjectLabel,
		},
	}
	if p.sess.Answered() {
		a, _ := p.sess.LastAnswer()
		v.Answer = answerFor(ctx, q, a)
	}
	return v
}

func answerFor(ctx context.Context, q model.Question, a model.AnswerRecord) *answerView {
	letter := model.ChoiceLetter(q.CorrectChoiceIndex)
	msg := appI18n.T(ctx, "AnswerCorrect")
	if !a.IsCorrect {
		msg = appI18n.Td(ctx, "AnswerWrong", map[string]any{"Letter": letter})
	}
	return &answerView{
		ChosenIndex:   a.ChosenIndex,
		ChosenLetter:  a.ChosenLetter,
		Correct:       a.IsCorrect,
		CorrectIndex:  q.CorrectChoiceIndex,
		CorrectLetter: letter,
		Message:       msg,
	}
}

func (h *Handler) handleStartPlay(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var req startPlayRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	var (
		questions []model.Question
		err       error
	)
	kind := playCustom
	switch {
	case req.ActivityID != "":
		kind = playAssigned
		questions, err = h.assignedQuestions(r.Context(), req.ActivityID)
	case req.Generate:
		if !h.limiter.Allow() {
			err = apperr.ErrRateLimited
			break
		}
		questions, err = h.generator.Questions(r.Context(), generation.Request{
			SubjectID: req.SubjectID,
			Count:     req.Count,
		})
	default:
		questions, err = h.bankQuestions(r.Context(), req.SubjectID, req.Limit)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	sess, err := session.New(questions)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.plays.sweep(h.config.PlayIdleTimeout)
	p := h.plays.add(user.ID, req.ActivityID, kind, sess)
	if h.metrics != nil {
		h.metrics.SessionsStarted.WithLabelValues(kind).Inc()
	}
	slog.Info("activity session started", "play_id", p.id, "user_id", user.ID, "kind", kind, "questions", sess.Len())

	p.mu.Lock()
	v := p.view(r.Context())
	p.mu.Unlock()
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) assignedQuestions(ctx context.Context, activityID string) ([]model.Question, error) {
	act, err := h.store.GetActivity(ctx, activityID)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "load activity", Err: err}
	}
	if act == nil {
		return nil, apperr.ErrNotFound
	}
	rows, err := h.store.ActivityQuestions(ctx, activityID)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "load activity questions", Err: err}
	}
	qs, err := quiz.NormalizeStoredBatch(rows, act.SubjectName)
	if err != nil {
		slog.Warn("skipping malformed activity questions", "activity_id", activityID, "error", err)
	}
	return qs, nil
}

func (h *Handler) bankQuestions(ctx context.Context, subjectID string, limit int) ([]model.Question, error) {
	if limit <= 0 {
		limit = defaultCustomLimit
	}
	if limit > generation.MaxCount {
		return nil, apperr.NewValidationError(errBadPlay, apperr.FieldError{Field: "limit", Error: "too large"})
	}
	label := ""
	if subjectID != "" {
		subj, err := h.store.GetSubject(ctx, subjectID)
		if err != nil {
			return nil, &apperr.PersistenceError{Op: "load subject", Err: err}
		}
		if subj == nil {
			return nil, apperr.ErrNotFound
		}
		label = subj.Name
	}
	rows, err := h.store.ListQuestionsFiltered(ctx, subjectID, limit)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "list questions", Err: err}
	}
	qs, err := quiz.NormalizeStoredBatch(rows, label)
	if err != nil {
		slog.Warn("skipping malformed bank questions", "subject_id", subjectID, "error", err)
	}
	return qs, nil
}

// lookupPlay resolves the {playID} URL parameter for the current user.
func (h *Handler) lookupPlay(w http.ResponseWriter, r *http.Request) *play {
	user := model.UserFromContext(r.Context())
	p := h.plays.get(chi.URLParam(r, "playID"), user.ID)
	if p == nil {
		h.writeError(w, r, apperr.ErrNotFound)
	}
	return p
}

func (h *Handler) handlePlayState(w http.ResponseWriter, r *http.Request) {
	p := h.lookupPlay(w, r)
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.touch()
	writeJSON(w, http.StatusOK, p.view(r.Context()))
}

type answerRequest struct {
	Choice *int `json:"choice"`
}

type answerResponse struct {
	Applied bool `json:"applied"`
	answerView
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	p := h.lookupPlay(w, r)
	if p == nil {
		return
	}
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Choice == nil {
		h.writeError(w, r, apperr.NewValidationError(apperr.ErrChoiceOutOfRange,
			apperr.FieldError{Field: "choice", Error: "is required"}))
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.touch()
	applied, err := p.sess.SubmitAnswer(*req.Choice)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	a, _ := p.sess.LastAnswer()
	writeJSON(w, http.StatusOK, answerResponse{
		Applied:    applied,
		answerView: *answerFor(r.Context(), p.sess.Current(), a),
	})
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	p := h.lookupPlay(w, r)
	if p == nil {
		return
	}
	user := model.UserFromContext(r.Context())

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		h.writeError(w, r, apperr.ErrNotFound)
		return
	}
	p.touch()

	// A finished play still held here failed to record; advancing retries it.
	if p.sess.State() != session.Finished {
		if err := p.sess.Advance(); err != nil {
			h.writeError(w, r, err)
			return
		}
		if p.sess.State() == session.InProgress {
			v := p.view(r.Context())
			writeJSON(w, http.StatusOK, advanceResponse{Play: &v})
			return
		}
	}

	result, err := p.sess.Result()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	outcome, err := h.recorder.Record(r.Context(), result, p.activityID, user.ID)
	if err != nil {
		var partial *apperr.PartialPersistenceError
		if errors.As(err, &partial) {
			h.countSubmission("partial")
			p.done = true
			h.plays.remove(p.id)
		} else {
			h.countSubmission("failed")
		}
		h.writeError(w, r, err)
		return
	}
	p.done = true
	h.plays.remove(p.id)

	res := resultView{
		CorrectCount: result.CorrectCount(),
		Total:        result.Total,
		Score:        result.RoundedScore(),
		Recorded:     outcome.Recorded,
		SubmissionID: outcome.SubmissionID,
		Message: appI18n.Td(r.Context(), "ActivityFinished", map[string]any{
			"Correct": result.CorrectCount(),
			"Total":   result.Total,
			"Score":   result.RoundedScore(),
		}),
	}
	if outcome.Recorded {
		h.countSubmission("recorded")
		res.Message += " " + appI18n.T(r.Context(), "SubmissionRecorded")
		slog.Info("submission recorded", "submission_id", outcome.SubmissionID, "activity_id", p.activityID, "user_id", user.ID, "score", outcome.Score)
	} else {
		h.countSubmission("discarded")
	}
	writeJSON(w, http.StatusOK, advanceResponse{Finished: true, Result: &res})
}

func (h *Handler) handleAbandon(w http.ResponseWriter, r *http.Request) {
	p := h.lookupPlay(w, r)
	if p == nil {
		return
	}
	h.plays.remove(p.id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) countSubmission(outcome string) {
	if h.metrics != nil {
		h.metrics.Submissions.WithLabelValues(outcome).Inc()
	}
}

// SweepPlays drops idle plays until ctx is done.
func (h *Handler) SweepPlays(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := h.plays.sweep(h.config.PlayIdleTimeout); n > 0 {
				slog.Info("dropped idle activity sessions", "count", n)
			}
		}
	}
}
