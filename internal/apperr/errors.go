// Package apperr holds the error taxonomy shared by the activity, submission
// and grading components.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyActivity     = errors.New("activity has no questions")
	ErrChoiceOutOfRange  = errors.New("choice index out of range")
	ErrNotAnswered       = errors.New("current question has not been answered")
	ErrSessionFinished   = errors.New("activity session already finished")
	ErrMalformedQuestion = errors.New("malformed question")
	ErrUnauthenticated   = errors.New("an authenticated student is required")
	ErrForbidden         = errors.New("role not allowed")
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("generation rate limit exceeded")
	ErrGeneration        = errors.New("question generation failed")
)

// FieldError is used to indicate an error with a specific input field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError is returned for input rejected before any collaborator is called.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return "validation failed"
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// MalformedQuestionError reports a question source that cannot be normalized.
type MalformedQuestionError struct {
	QuestionID string
	Reason     string
}

func (e *MalformedQuestionError) Error() string {
	return fmt.Sprintf("malformed question %q: %s", e.QuestionID, e.Reason)
}

func (e *MalformedQuestionError) Unwrap() error {
	return ErrMalformedQuestion
}

// PersistenceError wraps a storage collaborator failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// PartialPersistenceError reports a submission row that was written while its
// answer rows were not. The submission is left in place for manual remediation.
type PartialPersistenceError struct {
	SubmissionID string
	Err          error
}

func (e *PartialPersistenceError) Error() string {
	return fmt.Sprintf("submission %s recorded without answers: %v", e.SubmissionID, e.Err)
}

func (e *PartialPersistenceError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// MessageKey returns the translation id used to show err to a user.
func MessageKey(err error) string {
	var partial *PartialPersistenceError
	var persist *PersistenceError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyActivity):
		return "ErrEmptyActivity"
	case errors.Is(err, ErrChoiceOutOfRange):
		return "ErrChoiceOutOfRange"
	case errors.Is(err, ErrNotAnswered):
		return "ErrNotAnswered"
	case errors.Is(err, ErrSessionFinished):
		return "ErrSessionFinished"
	case errors.Is(err, ErrMalformedQuestion):
		return "ErrMalformedQuestion"
	case errors.Is(err, ErrUnauthenticated):
		return "ErrUnauthenticated"
	case errors.Is(err, ErrForbidden):
		return "ErrForbidden"
	case errors.Is(err, ErrNotFound):
		return "ErrNotFound"
	case errors.Is(err, ErrRateLimited):
		return "ErrRateLimited"
	case errors.Is(err, ErrGeneration):
		return "ErrGeneration"
	case errors.As(err, &partial):
		return "ErrPartialPersistence"
	case IsValidation(err):
		return "ErrValidation"
	case errors.As(err, &persist):
		return "ErrPersistence"
	default:
		return "ErrInternal"
	}
}
