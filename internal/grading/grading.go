// Package grading lists submissions awaiting review and applies teacher grades.
package grading

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Sheiden1/hackathon/internal/apperr"
	"github.com/Sheiden1/hackathon/internal/model"
	"github.com/Sheiden1/hackathon/internal/validate"
)

// ErrInvalidGrade is the cause carried by grade validation failures.
var ErrInvalidGrade = errors.New("invalid grade")

// Store is the storage contract the grading surface needs.
type Store interface {
	ListPendingSubmissions(ctx context.Context) ([]model.PendingSubmission, error)
	// GradeSubmission overwrites score and feedback, sets status graded and
	// returns the number of rows affected.
	GradeSubmission(ctx context.Context, id string, score float64, feedback string) (int64, error)
}

// Grade is a validated grading request on the canonical 0-100 scale.
type Grade struct {
	SubmissionID string  `json:"submission_id" validate:"notblank"`
	Score        float64 `json:"score" validate:"gte=0,lte=100"`
	Feedback     string  `json:"feedback" validate:"notblank"`
}

// Surface is the teacher-side grading component.
type Surface struct {
	store Store
}

// New creates a grading Surface over store.
func New(store Store) *Surface {
	return &Surface{store: store}
}

// ListPending returns pending submissions, newest first.
func (s *Surface) ListPending(ctx context.Context, actor *model.User) ([]model.PendingSubmission, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}
	subs, err := s.store.ListPendingSubmissions(ctx)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "list pending", Err: err}
	}
	slices.SortStableFunc(subs, func(a, b model.PendingSubmission) int {
		return b.SubmittedAt.Compare(a.SubmittedAt)
	})
	return subs, nil
}

// Grade validates g and writes it. Regrading overwrites the previous grade.
func (s *Surface) Grade(ctx context.Context, actor *model.User, g Grade) error {
	if err := authorize(actor); err != nil {
		return err
	}
	g.Feedback = strings.TrimSpace(g.Feedback)
	if err := validate.Struct(g, ErrInvalidGrade); err != nil {
		return err
	}
	n, err := s.store.GradeSubmission(ctx, g.SubmissionID, g.Score, g.Feedback)
	if err != nil {
		return &apperr.PersistenceError{Op: "grade", Err: err}
	}
	if n == 0 {
		return &apperr.PersistenceError{Op: "grade", Err: fmt.Errorf("submission %s: %w", g.SubmissionID, apperr.ErrNotFound)}
	}
	return nil
}

func authorize(actor *model.User) error {
	if actor == nil {
		return apperr.ErrUnauthenticated
	}
	if actor.Role != model.UserRoleTeacher && actor.Role != model.UserRoleAdmin {
		return apperr.ErrForbidden
	}
	return nil
}
