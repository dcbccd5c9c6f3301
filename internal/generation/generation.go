// Package generation fills the question bank, or an ephemeral activity, with
// questions written by the text-generation collaborator.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Sheiden1/hackathon/internal/apperr"
	"github.com/Sheiden1/hackathon/internal/metrics"
	"github.com/Sheiden1/hackathon/internal/model"
	"github.com/Sheiden1/hackathon/internal/quiz"
	"github.com/Sheiden1/hackathon/internal/validate"
)

const (
	DefaultCount = 5
	MaxCount     = 50
	SourceLabel  = "generated"
)

// ErrInvalidRequest is the cause carried by request validation failures.
var ErrInvalidRequest = errors.New("invalid generation request")

// Generator is the text-generation collaborator.
type Generator interface {
	GenerateQuestions(ctx context.Context, subjectID, subjectName string, count int) ([]model.GeneratedQuestion, error)
}

// Store is the storage the service reads subjects from and writes questions to.
type Store interface {
	GetSubject(ctx context.Context, id string) (*model.Subject, error)
	InsertQuestions(ctx context.Context, qs []model.StoredQuestion) error
}

// Request asks for Count questions about a subject.
type Request struct {
	SubjectID   string `json:"subject_id" validate:"notblank"`
	SubjectName string `json:"subject_name"`
	Count       int    `json:"count" validate:"gte=1"`
	// Source is recorded on stored rows; it defaults to "generated".
	Source string `json:"source"`
}

// Service runs generation requests.
type Service struct {
	gen     Generator
	store   Store
	metrics *metrics.Metrics
}

// New creates a Service. m may be nil.
func New(gen Generator, store Store, m *metrics.Metrics) *Service {
	return &Service{gen: gen, store: store, metrics: m}
}

func (s *Service) prepare(ctx context.Context, req *Request) error {
	if req.Count == 0 {
		req.Count = DefaultCount
	}
	err := validate.Struct(*req, ErrInvalidRequest)
	if req.Count > MaxCount {
		tooMany := apperr.FieldError{Field: "count", Error: fmt.Sprintf("count must be %d or less", MaxCount)}
		var ve *apperr.ValidationError
		if errors.As(err, &ve) {
			ve.Fields = append(ve.Fields, tooMany)
		} else {
			err = apperr.NewValidationError(ErrInvalidRequest, tooMany)
		}
	}
	if err != nil {
		return err
	}
	if req.SubjectName != "" {
		return nil
	}
	subj, err := s.store.GetSubject(ctx, req.SubjectID)
	if err != nil {
		return &apperr.PersistenceError{Op: "load subject", Err: err}
	}
	if subj == nil {
		return fmt.Errorf("subject %s: %w", req.SubjectID, apperr.ErrNotFound)
	}
	req.SubjectName = subj.Name
	return nil
}

// Questions generates an ephemeral question set. Nothing is stored.
func (s *Service) Questions(ctx context.Context, req Request) ([]model.Question, error) {
	if err := s.prepare(ctx, &req); err != nil {
		return nil, err
	}
	raws, err := s.gen.GenerateQuestions(ctx, req.SubjectID, req.SubjectName, req.Count)
	if err != nil {
		return nil, err
	}
	qs := make([]model.Question, 0, len(raws))
	for _, raw := range raws {
		if q, ok := s.normalize(req, raw); ok {
			qs = append(qs, q)
		}
	}
	return qs, nil
}

// Populate generates questions and stores every well-formed four-choice one
// in the bank. It returns the stored rows.
func (s *Service) Populate(ctx context.Context, req Request) ([]model.StoredQuestion, error) {
	if err := s.prepare(ctx, &req); err != nil {
		return nil, err
	}
	if req.Source == "" {
		req.Source = SourceLabel
	}
	raws, err := s.gen.GenerateQuestions(ctx, req.SubjectID, req.SubjectName, req.Count)
	if err != nil {
		return nil, err
	}

	rows := make([]model.StoredQuestion, 0, len(raws))
	for _, raw := range raws {
		q, ok := s.normalize(req, raw)
		if !ok {
			continue
		}
		row, err := quiz.ToStored(q, req.SubjectID, difficulty(raw.Difficulty), req.Source)
		if err != nil {
			slog.Warn("skipping generated question", "subject_id", req.SubjectID, "question_id", raw.ID, "error", err)
			s.count("skipped", 1)
			continue
		}
		// Generated ids are only unique within one response.
		row.ID = ""
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no usable questions in response", apperr.ErrGeneration)
	}
	if err := s.store.InsertQuestions(ctx, rows); err != nil {
		return nil, &apperr.PersistenceError{Op: "store generated questions", Err: err}
	}
	s.count("stored", len(rows))
	slog.Info("stored generated questions", "subject_id", req.SubjectID, "count", len(rows))
	return rows, nil
}

func (s *Service) normalize(req Request, raw model.GeneratedQuestion) (model.Question, bool) {
	q, err := quiz.NormalizeGenerated(raw, req.SubjectName)
	if err != nil {
		slog.Warn("skipping malformed generated question", "subject_id", req.SubjectID, "question_id", raw.ID, "error", err)
		s.count("skipped", 1)
		return model.Question{}, false
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.AnswerDefaulted {
		slog.Warn("correct answer missing, defaulting to first choice", "subject_id", req.SubjectID, "question_id", raw.ID)
		if s.metrics != nil {
			s.metrics.DefaultedAnswers.Inc()
		}
	}
	return q, true
}

func (s *Service) count(result string, n int) {
	if s.metrics != nil && n > 0 {
		s.metrics.GeneratedQuestions.WithLabelValues(result).Add(float64(n))
	}
}

func difficulty(d model.Difficulty) model.Difficulty {
	switch d {
	case model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard:
		return d
	default:
		return model.DifficultyMedium
	}
}
