package store

import (
	"context"
	"fmt"

	"github.com/Sheiden1/hackathon/internal/model"
)

// ExportSubmissions builds export-ready results for every submission, newest
// first. Attempt numbers count up from a student's first try at an activity.
func (s *Store) ExportSubmissions(ctx context.Context) ([]model.SubmissionResult, error) {
	subs, err := s.ListSubmissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	// Submissions come newest first; walk backwards to number attempts.
	attempts := make(map[string]int)
	results := make([]model.SubmissionResult, len(subs))
	for i := len(subs) - 1; i >= 0; i-- {
		sub := subs[i]
		key := sub.StudentID + "/" + sub.ActivityID
		attempts[key]++

		answers, err := s.ListStudentAnswers(ctx, sub.ID)
		if err != nil {
			return nil, fmt.Errorf("answers for submission %s: %w", sub.ID, err)
		}
		correct := 0
		for _, a := range answers {
			if a.IsCorrect {
				correct++
			}
		}
		results[i] = model.SubmissionResult{
			PendingSubmission: sub,
			Answers:           answers,
			CorrectCount:      correct,
			Attempt:           attempts[key],
		}
	}
	return results, nil
}
