package session

import (
	"errors"
	"testing"

	"github.com/Sheiden1/hackathon/internal/apperr"
	"github.com/Sheiden1/hackathon/internal/model"
)

func questions(correct ...int) []model.Question {
	qs := make([]model.Question, len(correct))
	for i, c := range correct {
		qs[i] = model.Question{
			ID:                 string(rune('a' + i)),
			Prompt:             "question",
			Choices:            []string{"w", "x", "y", "z"},
			CorrectChoiceIndex: c,
			SubjectLabel:       "math",
		}
	}
	return qs
}

func play(t *testing.T, s *Session, choices ...int) {
	t.Helper()
	for i, c := range choices {
		applied, err := s.SubmitAnswer(c)
		if err != nil {
			t.Fatalf("SubmitAnswer #%d: %v", i, err)
		}
		if !applied {
			t.Fatalf("SubmitAnswer #%d was ignored", i)
		}
		if err := s.Advance(); err != nil {
			t.Fatalf("Advance #%d: %v", i, err)
		}
	}
}

func TestNewRejectsEmpty(t *testing.T) {
	_, err := New(nil)
	if !errors.Is(err, apperr.ErrEmptyActivity) {
		t.Fatalf("expected ErrEmptyActivity, got %v", err)
	}
	if !apperr.IsValidation(err) {
		t.Error("expected a validation error")
	}
}

func TestNewRejectsBadCorrectIndex(t *testing.T) {
	qs := questions(4)
	_, err := New(qs)
	if !errors.Is(err, apperr.ErrMalformedQuestion) {
		t.Fatalf("expected ErrMalformedQuestion, got %v", err)
	}
}

func TestNewCopiesQuestions(t *testing.T) {
	qs := questions(0, 1)
	s, err := New(qs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	qs[0].Choices[0] = "changed"
	qs[0].CorrectChoiceIndex = 3
	if got := s.Current(); got.Choices[0] != "w" || got.CorrectChoiceIndex != 0 {
		t.Errorf("session observed caller mutation: %+v", got)
	}
}

func TestScenarioScores(t *testing.T) {
	tests := []struct {
		name        string
		choices     []int
		wantCorrect int
		wantRounded int
	}{
		{"one wrong", []int{1, 0, 2}, 2, 67},
		{"all right", []int{1, 1, 2}, 3, 100},
		{"all wrong", []int{0, 0, 0}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(questions(1, 1, 2))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			play(t, s, tt.choices...)
			if s.State() != Finished {
				t.Fatalf("expected Finished, got %v", s.State())
			}
			res, err := s.Result()
			if err != nil {
				t.Fatalf("Result: %v", err)
			}
			if res.CorrectCount() != tt.wantCorrect {
				t.Errorf("correct = %d, want %d", res.CorrectCount(), tt.wantCorrect)
			}
			if res.RoundedScore() != tt.wantRounded {
				t.Errorf("rounded score = %d, want %d", res.RoundedScore(), tt.wantRounded)
			}
			if len(res.Answers) != 3 {
				t.Errorf("expected 3 answers, got %d", len(res.Answers))
			}
		})
	}
}

func TestFinishesAfterExactlyNPairs(t *testing.T) {
	s, err := New(questions(0, 0, 0, 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 4; i++ {
		if s.State() != InProgress {
			t.Fatalf("finished early after %d pairs", i)
		}
		if s.CurrentIndex() != i {
			t.Errorf("current index = %d, want %d", s.CurrentIndex(), i)
		}
		play(t, s, 0)
	}
	if s.State() != Finished {
		t.Fatal("expected Finished after 4 pairs")
	}
}

func TestCorrectCountTracksLog(t *testing.T) {
	s, err := New(questions(2, 0, 3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, c := range []int{2, 1, 3} {
		if _, err := s.SubmitAnswer(c); err != nil {
			t.Fatalf("SubmitAnswer: %v", err)
		}
		want := 0
		for _, a := range s.answers {
			if a.IsCorrect {
				want++
			}
		}
		if s.CorrectCount() != want {
			t.Errorf("CorrectCount = %d, log says %d", s.CorrectCount(), want)
		}
		if err := s.Advance(); err != nil {
			t.Fatalf("Advance: %v", err)
		}
	}
	if s.CorrectCount() != 2 {
		t.Errorf("expected 2 correct, got %d", s.CorrectCount())
	}
}

func TestDoubleSubmitIgnored(t *testing.T) {
	s, err := New(questions(1, 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if applied, err := s.SubmitAnswer(1); err != nil || !applied {
		t.Fatalf("first submit: applied=%v err=%v", applied, err)
	}
	applied, err := s.SubmitAnswer(0)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if applied {
		t.Error("second submit should be ignored")
	}
	last, ok := s.LastAnswer()
	if !ok || last.ChosenIndex != 1 || !last.IsCorrect || last.ChosenLetter != "B" {
		t.Errorf("unexpected last answer: %+v", last)
	}
	if len(s.answers) != 1 {
		t.Errorf("expected 1 logged answer, got %d", len(s.answers))
	}
}

func TestSubmitOutOfRange(t *testing.T) {
	s, err := New(questions(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, c := range []int{-1, 4} {
		if _, err := s.SubmitAnswer(c); !errors.Is(err, apperr.ErrChoiceOutOfRange) {
			t.Errorf("choice %d: expected ErrChoiceOutOfRange, got %v", c, err)
		}
	}
	if s.Answered() {
		t.Error("rejected submit must not log an answer")
	}
}

func TestAdvanceRequiresAnswer(t *testing.T) {
	s, err := New(questions(0, 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Advance(); !errors.Is(err, apperr.ErrNotAnswered) {
		t.Fatalf("expected ErrNotAnswered, got %v", err)
	}
	if s.CurrentIndex() != 0 {
		t.Error("index moved on rejected advance")
	}
}

func TestFinishedIsTerminal(t *testing.T) {
	s, err := New(questions(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Result(); !errors.Is(err, ErrInProgress) {
		t.Errorf("expected ErrInProgress, got %v", err)
	}
	play(t, s, 0)
	if _, err := s.SubmitAnswer(0); !errors.Is(err, apperr.ErrSessionFinished) {
		t.Errorf("submit after finish: expected ErrSessionFinished, got %v", err)
	}
	if err := s.Advance(); !errors.Is(err, apperr.ErrSessionFinished) {
		t.Errorf("advance after finish: expected ErrSessionFinished, got %v", err)
	}
}

func TestProgressFraction(t *testing.T) {
	s, err := New(questions(0, 0, 0, 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := s.ProgressFraction(); got != 0.25 {
		t.Errorf("progress = %v, want 0.25", got)
	}
	play(t, s, 0, 0)
	if got := s.ProgressFraction(); got != 0.75 {
		t.Errorf("progress = %v, want 0.75", got)
	}
}
