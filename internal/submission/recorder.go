// Package submission turns a finished activity session into either a
// discarded score or a durable submission with one answer row per question.
package submission

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/Sheiden1/hackathon/internal/apperr"
	"github.com/Sheiden1/hackathon/internal/model"
	"github.com/Sheiden1/hackathon/internal/session"
)

// Storage is the two-step persistence contract the Recorder writes through.
type Storage interface {
	CreateSubmission(ctx context.Context, sub *model.Submission) error
	InsertStudentAnswers(ctx context.Context, answers []model.StudentAnswer) error
}

// AtomicStorage is implemented by stores that can write a submission and its
// answers in one transaction. The Recorder prefers it when available.
type AtomicStorage interface {
	CreateSubmissionWithAnswers(ctx context.Context, sub *model.Submission, answers []model.StudentAnswer) error
}

// Outcome is the result of recording a finished session. Exactly one of the
// two shapes applies: Discarded (Recorded=false) or Recorded.
type Outcome struct {
	Recorded     bool
	SubmissionID string
	// Score is rounded for discarded sessions and unrounded for recorded ones.
	Score float64
}

// Recorder persists finished sessions.
type Recorder struct {
	store Storage
	now   func() time.Time
}

// NewRecorder creates a Recorder that writes through store.
func NewRecorder(store Storage) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Record hands a finished session to storage. With an empty activityID the
// session was ephemeral and nothing is written. Otherwise studentID is
// required and one submission plus len(result.Answers) answers are written.
func (r *Recorder) Record(ctx context.Context, result session.Result, activityID, studentID string) (Outcome, error) {
	if activityID == "" {
		return Outcome{Score: math.Round(result.Score())}, nil
	}
	if studentID == "" {
		return Outcome{}, apperr.ErrUnauthenticated
	}

	score := result.Score()
	sub := &model.Submission{
		ActivityID:  activityID,
		StudentID:   studentID,
		SubmittedAt: r.now().UTC(),
		Status:      model.StatusPending,
		Score:       &score,
	}

	if atomic, ok := r.store.(AtomicStorage); ok {
		answers := studentAnswers("", result.Answers)
		if err := atomic.CreateSubmissionWithAnswers(ctx, sub, answers); err != nil {
			return Outcome{}, &apperr.PersistenceError{Op: "submission", Err: err}
		}
		return Outcome{Recorded: true, SubmissionID: sub.ID, Score: score}, nil
	}

	if err := r.store.CreateSubmission(ctx, sub); err != nil {
		return Outcome{}, &apperr.PersistenceError{Op: "submission", Err: err}
	}
	if sub.ID == "" {
		return Outcome{}, &apperr.PersistenceError{Op: "submission", Err: errors.New("store returned no submission id")}
	}
	if err := r.store.InsertStudentAnswers(ctx, studentAnswers(sub.ID, result.Answers)); err != nil {
		slog.Error("submission written without answers", "submission_id", sub.ID, "error", err)
		return Outcome{}, &apperr.PartialPersistenceError{SubmissionID: sub.ID, Err: err}
	}
	return Outcome{Recorded: true, SubmissionID: sub.ID, Score: score}, nil
}

func studentAnswers(submissionID string, log []model.AnswerRecord) []model.StudentAnswer {
	out := make([]model.StudentAnswer, len(log))
	for i, a := range log {
		out[i] = model.StudentAnswer{
			SubmissionID:   submissionID,
			QuestionID:     a.QuestionID,
			SelectedAnswer: a.ChosenLetter,
			IsCorrect:      a.IsCorrect,
		}
	}
	return out
}
