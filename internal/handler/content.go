package handler

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Sheiden1/hackathon/internal/apperr"
	"github.com/Sheiden1/hackathon/internal/model"
	"github.com/Sheiden1/hackathon/internal/quiz"
	"github.com/Sheiden1/hackathon/internal/validate"
)

var (
	errBadSubject  = errors.New("invalid subject")
	errBadQuestion = errors.New("invalid question")
	errBadActivity = errors.New("invalid activity")
)

func (h *Handler) handleListSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.store.ListSubjects(r.Context())
	if err != nil {
		h.writeError(w, r, &apperr.PersistenceError{Op: "list subjects", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, subjects)
}

type subjectRequest struct {
	Name        string `json:"name" validate:"notblank,max=100"`
	Description string `json:"description" validate:"max=500"`
}

func (h *Handler) handleCreateSubject(w http.ResponseWriter, r *http.Request) {
	var req subjectRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validate.Struct(req, errBadSubject); err != nil {
		h.writeError(w, r, err)
		return
	}
	sub := model.Subject{Name: req.Name, Description: req.Description}
	id, err := h.store.CreateSubject(r.Context(), sub)
	if err != nil {
		h.writeError(w, r, &apperr.PersistenceError{Op: "create subject", Err: err})
		return
	}
	sub.ID = id
	writeJSON(w, http.StatusCreated, sub)
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(w, r, apperr.NewValidationError(errBadQuestion,
				apperr.FieldError{Field: "limit", Error: "must be a non-negative integer"}))
			return
		}
		limit = n
	}
	qs, err := h.store.ListQuestionsFiltered(r.Context(), r.URL.Query().Get("subject"), limit)
	if err != nil {
		h.writeError(w, r, &apperr.PersistenceError{Op: "list questions", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, qs)
}

type questionRequest struct {
	SubjectID     string           `json:"subject_id" validate:"notblank"`
	QuestionText  string           `json:"question_text" validate:"notblank"`
	OptionA       string           `json:"option_a"`
	OptionB       string           `json:"option_b"`
	OptionC       string           `json:"option_c"`
	OptionD       string           `json:"option_d"`
	CorrectAnswer string           `json:"correct_answer" validate:"required,oneof=A B C D a b c d"`
	Difficulty    model.Difficulty `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	Source        string           `json:"source"`
}

func (q questionRequest) row() model.StoredQuestion {
	d := q.Difficulty
	if d == "" {
		d = model.DifficultyMedium
	}
	src := q.Source
	if src == "" {
		src = "manual"
	}
	return model.StoredQuestion{
		SubjectID:     q.SubjectID,
		QuestionText:  q.QuestionText,
		OptionA:       q.OptionA,
		OptionB:       q.OptionB,
		OptionC:       q.OptionC,
		OptionD:       q.OptionD,
		CorrectAnswer: q.CorrectAnswer,
		Difficulty:    d,
		Source:        src,
	}
}

// checkQuestion validates one incoming question and returns its bank row.
func (h *Handler) checkQuestion(r *http.Request, req questionRequest) (model.StoredQuestion, error) {
	if err := validate.Struct(req, errBadQuestion); err != nil {
		return model.StoredQuestion{}, err
	}
	row := req.row()
	q, err := quiz.NormalizeStored(row, "")
	if err != nil {
		return model.StoredQuestion{}, apperr.NewValidationError(errBadQuestion,
			apperr.FieldError{Field: "question", Error: err.Error()})
	}
	row.CorrectAnswer = model.ChoiceLetter(q.CorrectChoiceIndex)

	subj, err := h.store.GetSubject(r.Context(), row.SubjectID)
	if err != nil {
		return model.StoredQuestion{}, &apperr.PersistenceError{Op: "load subject", Err: err}
	}
	if subj == nil {
		return model.StoredQuestion{}, apperr.NewValidationError(errBadQuestion,
			apperr.FieldError{Field: "subject_id", Error: "subject_id does not exist"})
	}
	return row, nil
}

func (h *Handler) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	row, err := h.checkQuestion(r, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := h.store.InsertQuestion(r.Context(), row)
	if err != nil {
		h.writeError(w, r, &apperr.PersistenceError{Op: "create question", Err: err})
		return
	}
	row.ID = id
	writeJSON(w, http.StatusCreated, row)
}

func (h *Handler) handleListActivities(w http.ResponseWriter, r *http.Request) {
	acts, err := h.store.ListActivities(r.Context())
	if err != nil {
		h.writeError(w, r, &apperr.PersistenceError{Op: "list activities", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, acts)
}

type activityDetail struct {
	model.Activity
	QuestionCount int `json:"question_count"`
}

func (h *Handler) handleGetActivity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "activityID")
	act, err := h.store.GetActivity(r.Context(), id)
	if err != nil {
		h.writeError(w, r, &apperr.PersistenceError{Op: "load activity", Err: err})
		return
	}
	if act == nil {
		h.writeError(w, r, apperr.ErrNotFound)
		return
	}
	rows, err := h.store.ActivityQuestions(r.Context(), id)
	if err != nil {
		h.writeError(w, r, &apperr.PersistenceError{Op: "load activity questions", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, activityDetail{Activity: *act, QuestionCount: len(rows)})
}

type activityRequest struct {
	Title       string   `json:"title" validate:"notblank,max=200"`
	Description string   `json:"description"`
	SubjectID   string   `json:"subject_id" validate:"notblank"`
	QuestionIDs []string `json:"question_ids" validate:"min=1,unique,dive,notblank"`
}

func (h *Handler) handleCreateActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validate.Struct(req, errBadActivity); err != nil {
		h.writeError(w, r, err)
		return
	}
	subj, err := h.store.GetSubject(r.Context(), req.SubjectID)
	if err != nil {
		h.writeError(w, r, &apperr.PersistenceError{Op: "load subject", Err: err})
		return
	}
	if subj == nil {
		h.writeError(w, r, apperr.NewValidationError(errBadActivity,
			apperr.FieldError{Field: "subject_id", Error: "subject_id does not exist"}))
		return
	}
	for _, qid := range req.QuestionIDs {
		if _, err := h.store.GetQuestion(r.Context(), qid); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				h.writeError(w, r, apperr.NewValidationError(errBadActivity,
					apperr.FieldError{Field: "question_ids", Error: "unknown question " + qid}))
				return
			}
			h.writeError(w, r, &apperr.PersistenceError{Op: "load question", Err: err})
			return
		}
	}

	user := model.UserFromContext(r.Context())
	act := model.Activity{
		Title:       req.Title,
		Description: req.Description,
		SubjectID:   req.SubjectID,
		CreatedBy:   user.ID,
	}
	id, err := h.store.CreateActivity(r.Context(), act, req.QuestionIDs)
	if err != nil {
		h.writeError(w, r, &apperr.PersistenceError{Op: "create activity", Err: err})
		return
	}
	slog.Info("activity created", "activity_id", id, "teacher_id", user.ID, "questions", len(req.QuestionIDs))
	act.ID = id
	writeJSON(w, http.StatusCreated, act)
}
