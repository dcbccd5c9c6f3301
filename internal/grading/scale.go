package grading

import (
	"fmt"

	"github.com/Sheiden1/hackathon/internal/apperr"
)

// Scale is the range grades are displayed and entered in. Storage always
// uses Scale100.
type Scale int

const (
	Scale10  Scale = 10
	Scale100 Scale = 100
)

// ParseScale accepts 10 or 100.
func ParseScale(n int) (Scale, error) {
	switch Scale(n) {
	case Scale10, Scale100:
		return Scale(n), nil
	default:
		return 0, fmt.Errorf("unsupported grade scale %d (want 10 or 100)", n)
	}
}

// ToCanonical converts a score entered on s to the 0-100 scale.
func (s Scale) ToCanonical(score float64) float64 {
	if s == Scale10 {
		return score * 10
	}
	return score
}

// FromCanonical converts a 0-100 score for display on s.
func (s Scale) FromCanonical(score float64) float64 {
	if s == Scale10 {
		return score / 10
	}
	return score
}

// Canonical checks a score against the range of s before converting it, so
// the error names the limit the grader actually typed against.
func (s Scale) Canonical(score float64) (float64, error) {
	if score < 0 || score > float64(s) {
		return 0, apperr.NewValidationError(ErrInvalidGrade, apperr.FieldError{
			Field: "score",
			Error: fmt.Sprintf("score must be between 0 and %d", int(s)),
		})
	}
	return s.ToCanonical(score), nil
}
