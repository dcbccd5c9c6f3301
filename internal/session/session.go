// Package session walks a student through an ordered set of questions one at a
// time, logging every committed answer.
//
// A Session is a plain value owned by a single actor and is not safe for
// concurrent use.
package session

import (
	"errors"
	"fmt"
	"math"

	"github.com/Sheiden1/hackathon/internal/apperr"
	"github.com/Sheiden1/hackathon/internal/model"
)

// ErrInProgress is returned when a result is requested before the session finished.
var ErrInProgress = errors.New("activity session still in progress")

// State is the coarse phase of a session.
type State int

const (
	InProgress State = iota
	Finished
)

func (s State) String() string {
	switch s {
	case InProgress:
		return "in_progress"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session is the activity-taking state machine. The answer log is the only
// record of progress; correct counts and scores are derived from it.
type Session struct {
	questions []model.Question
	current   int
	answers   []model.AnswerRecord
	finished  bool
}

// New starts a session at the first question. An empty question list is
// rejected with apperr.ErrEmptyActivity.
func New(questions []model.Question) (*Session, error) {
	if len(questions) == 0 {
		return nil, apperr.NewValidationError(apperr.ErrEmptyActivity)
	}
	qs := make([]model.Question, len(questions))
	for i, q := range questions {
		if len(q.Choices) < 2 || q.CorrectChoiceIndex < 0 || q.CorrectChoiceIndex >= len(q.Choices) {
			return nil, apperr.NewValidationError(&apperr.MalformedQuestionError{
				QuestionID: q.ID,
				Reason:     fmt.Sprintf("correct index %d with %d choices", q.CorrectChoiceIndex, len(q.Choices)),
			})
		}
		q.Choices = append([]string(nil), q.Choices...)
		qs[i] = q
	}
	return &Session{
		questions: qs,
		answers:   make([]model.AnswerRecord, 0, len(qs)),
	}, nil
}

// State reports whether the session is still in progress.
func (s *Session) State() State {
	if s.finished {
		return Finished
	}
	return InProgress
}

// Len is the number of questions in the session.
func (s *Session) Len() int {
	return len(s.questions)
}

// CurrentIndex is the zero-based index of the question being shown.
func (s *Session) CurrentIndex() int {
	return s.current
}

// Current returns the question being shown.
func (s *Session) Current() model.Question {
	return s.questions[s.current]
}

// Answered reports whether the current question already has a committed answer.
func (s *Session) Answered() bool {
	return len(s.answers) > s.current
}

// LastAnswer returns the most recent answer, if any.
func (s *Session) LastAnswer() (model.AnswerRecord, bool) {
	if len(s.answers) == 0 {
		return model.AnswerRecord{}, false
	}
	return s.answers[len(s.answers)-1], true
}

// SubmitAnswer commits a choice for the current question. A second submit for
// the same question before Advance is ignored and reports applied=false.
func (s *Session) SubmitAnswer(choice int) (applied bool, err error) {
	if s.finished {
		return false, apperr.NewValidationError(apperr.ErrSessionFinished)
	}
	if s.Answered() {
		return false, nil
	}
	q := s.questions[s.current]
	if choice < 0 || choice >= len(q.Choices) {
		return false, apperr.NewValidationError(apperr.ErrChoiceOutOfRange, apperr.FieldError{
			Field: "choice",
			Error: fmt.Sprintf("must be between 0 and %d", len(q.Choices)-1),
		})
	}
	s.answers = append(s.answers, model.AnswerRecord{
		QuestionID:   q.ID,
		ChosenIndex:  choice,
		ChosenLetter: model.ChoiceLetter(choice),
		IsCorrect:    choice == q.CorrectChoiceIndex,
	})
	return true, nil
}

// Advance moves past an answered question. Advancing from the last question
// finishes the session; no further mutation is possible afterwards.
func (s *Session) Advance() error {
	if s.finished {
		return apperr.NewValidationError(apperr.ErrSessionFinished)
	}
	if !s.Answered() {
		return apperr.NewValidationError(apperr.ErrNotAnswered)
	}
	if s.current == len(s.questions)-1 {
		s.finished = true
		return nil
	}
	s.current++
	return nil
}

// ProgressFraction is (CurrentIndex+1)/Len.
func (s *Session) ProgressFraction() float64 {
	return float64(s.current+1) / float64(len(s.questions))
}

// CorrectCount is the number of correct answers logged so far.
func (s *Session) CorrectCount() int {
	return countCorrect(s.answers)
}

// Result returns the finished-session result. It fails while the session is
// still in progress.
func (s *Session) Result() (Result, error) {
	if !s.finished {
		return Result{}, ErrInProgress
	}
	return Result{
		Total:   len(s.questions),
		Answers: append([]model.AnswerRecord(nil), s.answers...),
	}, nil
}

// Result is the outcome of a finished session.
type Result struct {
	Total   int
	Answers []model.AnswerRecord
}

// CorrectCount derives the number of correct answers from the answer log.
func (r Result) CorrectCount() int {
	return countCorrect(r.Answers)
}

// Score is 100 * correct / total, unrounded.
func (r Result) Score() float64 {
	if r.Total == 0 {
		return 0
	}
	return 100 * float64(r.CorrectCount()) / float64(r.Total)
}

// RoundedScore is Score rounded half away from zero, as shown to students.
func (r Result) RoundedScore() int {
	return int(math.Round(r.Score()))
}

func countCorrect(answers []model.AnswerRecord) int {
	n := 0
	for _, a := range answers {
		if a.IsCorrect {
			n++
		}
	}
	return n
}
