// Package quiz converts upstream question shapes into canonical questions.
package quiz

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Sheiden1/hackathon/internal/apperr"
	"github.com/Sheiden1/hackathon/internal/model"
)

// storedLetters are the fixed answer letters of a four-option row, in column order.
var storedLetters = [4]string{"A", "B", "C", "D"}

// NormalizeGenerated converts a generation-service record into a canonical question.
// A correct letter that matches none of the alternatives resolves to index 0 and
// sets AnswerDefaulted; callers should report that as a data-quality warning.
func NormalizeGenerated(raw model.GeneratedQuestion, subjectLabel string) (model.Question, error) {
	statement := strings.TrimSpace(raw.Question.Statement)
	if statement == "" {
		return model.Question{}, &apperr.MalformedQuestionError{QuestionID: raw.ID, Reason: "empty statement"}
	}
	alts := raw.Question.Alternatives
	if len(alts) < 2 {
		return model.Question{}, &apperr.MalformedQuestionError{
			QuestionID: raw.ID,
			Reason:     fmt.Sprintf("%d alternatives, need at least 2", len(alts)),
		}
	}
	if len(alts) > model.MaxChoices {
		return model.Question{}, &apperr.MalformedQuestionError{
			QuestionID: raw.ID,
			Reason:     fmt.Sprintf("%d alternatives, at most %d supported", len(alts), model.MaxChoices),
		}
	}

	choices := make([]string, len(alts))
	correct := -1
	want := strings.TrimSpace(raw.Question.CorrectAnswer)
	for i, alt := range alts {
		choices[i] = alt.Text
		if correct < 0 && want != "" && strings.EqualFold(strings.TrimSpace(alt.Letter), want) {
			correct = i
		}
	}

	q := model.Question{
		ID:                 raw.ID,
		Prompt:             statement,
		Choices:            choices,
		CorrectChoiceIndex: correct,
		SubjectLabel:       subjectLabel,
	}
	if correct < 0 {
		q.CorrectChoiceIndex = 0
		q.AnswerDefaulted = true
	}
	return q, nil
}

// NormalizeStored converts a four-option question row into a canonical question.
// Choices are always the four option columns in A, B, C, D order.
func NormalizeStored(row model.StoredQuestion, subjectLabel string) (model.Question, error) {
	prompt := strings.TrimSpace(row.QuestionText)
	if prompt == "" {
		return model.Question{}, &apperr.MalformedQuestionError{QuestionID: row.ID, Reason: "empty question text"}
	}

	choices := []string{row.OptionA, row.OptionB, row.OptionC, row.OptionD}
	filled := 0
	for _, c := range choices {
		if strings.TrimSpace(c) != "" {
			filled++
		}
	}
	if filled < 2 {
		return model.Question{}, &apperr.MalformedQuestionError{
			QuestionID: row.ID,
			Reason:     fmt.Sprintf("%d non-empty options, need at least 2", filled),
		}
	}

	correct := letterIndex(row.CorrectAnswer)
	if correct < 0 {
		return model.Question{}, &apperr.MalformedQuestionError{
			QuestionID: row.ID,
			Reason:     fmt.Sprintf("correct answer %q is not one of A, B, C, D", row.CorrectAnswer),
		}
	}
	if strings.TrimSpace(choices[correct]) == "" {
		return model.Question{}, &apperr.MalformedQuestionError{
			QuestionID: row.ID,
			Reason:     fmt.Sprintf("correct answer %s points at an empty option", model.ChoiceLetter(correct)),
		}
	}

	return model.Question{
		ID:                 row.ID,
		Prompt:             prompt,
		Choices:            choices,
		CorrectChoiceIndex: correct,
		SubjectLabel:       subjectLabel,
	}, nil
}

// NormalizeStoredBatch normalizes rows in order. Malformed rows are skipped and
// reported together in the returned error; well-formed rows are always returned.
func NormalizeStoredBatch(rows []model.StoredQuestion, subjectLabel string) ([]model.Question, error) {
	questions := make([]model.Question, 0, len(rows))
	var errs []error
	for _, row := range rows {
		q, err := NormalizeStored(row, subjectLabel)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		questions = append(questions, q)
	}
	return questions, errors.Join(errs...)
}

// NormalizeGeneratedBatch is the generation-service counterpart of NormalizeStoredBatch.
func NormalizeGeneratedBatch(raws []model.GeneratedQuestion, subjectLabel string) ([]model.Question, error) {
	questions := make([]model.Question, 0, len(raws))
	var errs []error
	for _, raw := range raws {
		q, err := NormalizeGenerated(raw, subjectLabel)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		questions = append(questions, q)
	}
	return questions, errors.Join(errs...)
}

// ToStored maps a canonical question onto a four-option question-bank row.
func ToStored(q model.Question, subjectID string, difficulty model.Difficulty, source string) (model.StoredQuestion, error) {
	if len(q.Choices) != len(storedLetters) {
		return model.StoredQuestion{}, &apperr.MalformedQuestionError{
			QuestionID: q.ID,
			Reason:     fmt.Sprintf("%d choices, question bank rows hold exactly 4", len(q.Choices)),
		}
	}
	if q.CorrectChoiceIndex < 0 || q.CorrectChoiceIndex >= len(storedLetters) {
		return model.StoredQuestion{}, &apperr.MalformedQuestionError{QuestionID: q.ID, Reason: "correct index out of range"}
	}
	return model.StoredQuestion{
		ID:            q.ID,
		SubjectID:     subjectID,
		QuestionText:  q.Prompt,
		OptionA:       q.Choices[0],
		OptionB:       q.Choices[1],
		OptionC:       q.Choices[2],
		OptionD:       q.Choices[3],
		CorrectAnswer: storedLetters[q.CorrectChoiceIndex],
		Difficulty:    difficulty,
		Source:        source,
	}, nil
}

func letterIndex(letter string) int {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	for i, l := range storedLetters {
		if l == letter {
			return i
		}
	}
	return -1
}
