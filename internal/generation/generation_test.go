package generation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Sheiden1/hackathon/internal/apperr"
	"github.com/Sheiden1/hackathon/internal/metrics"
	"github.com/Sheiden1/hackathon/internal/model"
)

type fakeGenerator struct {
	records []model.GeneratedQuestion
	err     error
	gotName string
	gotN    int
}

func (f *fakeGenerator) GenerateQuestions(_ context.Context, _, subjectName string, count int) ([]model.GeneratedQuestion, error) {
	f.gotName = subjectName
	f.gotN = count
	return f.records, f.err
}

type fakeStore struct {
	subjects map[string]*model.Subject
	inserted []model.StoredQuestion
}

func (f *fakeStore) GetSubject(_ context.Context, id string) (*model.Subject, error) {
	return f.subjects[id], nil
}

func (f *fakeStore) InsertQuestions(_ context.Context, qs []model.StoredQuestion) error {
	for i := range qs {
		qs[i].ID = "stored-" + qs[i].OptionA
	}
	f.inserted = append(f.inserted, qs...)
	return nil
}

func record(id, correct string, difficulty model.Difficulty, letters ...string) model.GeneratedQuestion {
	alts := make([]model.Alternative, len(letters))
	for i, l := range letters {
		alts[i] = model.Alternative{Letter: l, Text: id + l}
	}
	return model.GeneratedQuestion{
		ID:         id,
		Available:  true,
		Difficulty: difficulty,
		Question:   model.GeneratedBody{Statement: "statement " + id, Alternatives: alts, CorrectAnswer: correct},
	}
}

func newStore() *fakeStore {
	return &fakeStore{subjects: map[string]*model.Subject{"math": {ID: "math", Name: "Matemática"}}}
}

func TestPopulate(t *testing.T) {
	gen := &fakeGenerator{records: []model.GeneratedQuestion{
		record("1", "C", model.DifficultyEasy, "A", "B", "C", "D"),
		record("2", "Z", "weird", "A", "B", "C", "D"),
		record("3", "A", model.DifficultyHard, "A", "B", "C"),
		record("4", "A", model.DifficultyHard, "A"),
	}}
	store := newStore()
	m := metrics.New()
	rows, err := New(gen, store, m).Populate(context.Background(), Request{SubjectID: "math"})
	if err != nil {
		t.Fatalf("Populate: %v", err)
	}
	if gen.gotName != "Matemática" {
		t.Errorf("expected subject name looked up, got %q", gen.gotName)
	}
	if gen.gotN != DefaultCount {
		t.Errorf("expected default count %d, got %d", DefaultCount, gen.gotN)
	}
	if len(rows) != 2 || len(store.inserted) != 2 {
		t.Fatalf("expected 2 stored rows, got %d (%d inserted)", len(rows), len(store.inserted))
	}
	if rows[0].CorrectAnswer != "C" || rows[0].Difficulty != model.DifficultyEasy || rows[0].Source != SourceLabel {
		t.Errorf("unexpected first row: %+v", rows[0])
	}
	if rows[1].CorrectAnswer != "A" || rows[1].Difficulty != model.DifficultyMedium {
		t.Errorf("defaulted row should store A with medium difficulty, got %+v", rows[1])
	}
	if rows[0].SubjectID != "math" {
		t.Errorf("expected subject id math, got %q", rows[0].SubjectID)
	}
	if got := testutil.ToFloat64(m.DefaultedAnswers); got != 1 {
		t.Errorf("expected 1 defaulted answer, got %v", got)
	}
	if got := testutil.ToFloat64(m.GeneratedQuestions.WithLabelValues("skipped")); got != 2 {
		t.Errorf("expected 2 skipped, got %v", got)
	}
	if got := testutil.ToFloat64(m.GeneratedQuestions.WithLabelValues("stored")); got != 2 {
		t.Errorf("expected 2 stored, got %v", got)
	}
}

func TestPopulateNothingUsable(t *testing.T) {
	gen := &fakeGenerator{records: []model.GeneratedQuestion{record("1", "A", "", "A")}}
	store := newStore()
	_, err := New(gen, store, nil).Populate(context.Background(), Request{SubjectID: "math", Count: 1})
	if !errors.Is(err, apperr.ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
	if len(store.inserted) != 0 {
		t.Error("nothing should be stored")
	}
}

func TestQuestionsEphemeral(t *testing.T) {
	gen := &fakeGenerator{records: []model.GeneratedQuestion{
		record("", "B", "", "A", "B"),
		record("x", "A", "", "A", "B", "C", "D", "E"),
	}}
	store := newStore()
	qs, err := New(gen, store, nil).Questions(context.Background(), Request{SubjectID: "math", SubjectName: "Álgebra", Count: 2})
	if err != nil {
		t.Fatalf("Questions: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(qs))
	}
	if qs[0].ID == "" {
		t.Error("expected an id for a record without one")
	}
	if qs[0].CorrectChoiceIndex != 1 || qs[0].SubjectLabel != "Álgebra" {
		t.Errorf("unexpected question: %+v", qs[0])
	}
	if len(qs[1].Choices) != 5 {
		t.Errorf("ephemeral questions keep every choice, got %d", len(qs[1].Choices))
	}
	if len(store.inserted) != 0 {
		t.Error("ephemeral generation must not store anything")
	}
}

func TestRequestErrors(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"missing subject", Request{Count: 3}, ErrInvalidRequest},
		{"too many", Request{SubjectID: "math", Count: MaxCount + 1}, ErrInvalidRequest},
		{"unknown subject", Request{SubjectID: "nope", Count: 3}, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{}
			_, err := New(gen, newStore(), nil).Populate(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if gen.gotN != 0 {
				t.Error("generator must not be called for a rejected request")
			}
		})
	}
}

func TestCountLimit(t *testing.T) {
	s := New(&fakeGenerator{}, newStore(), nil)
	tests := []struct {
		name       string
		req        Request
		wantFields []string
	}{
		{"at limit", Request{SubjectID: "math", Count: MaxCount}, nil},
		{"over limit", Request{SubjectID: "math", Count: MaxCount + 1}, []string{"count"}},
		{"over limit without subject", Request{Count: MaxCount + 1}, []string{"subject_id", "count"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			err := s.prepare(context.Background(), &req)
			if tt.wantFields == nil {
				if err != nil {
					t.Fatalf("prepare: %v", err)
				}
				return
			}
			var ve *apperr.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected a validation error, got %v", err)
			}
			if len(ve.Fields) != len(tt.wantFields) {
				t.Fatalf("fields = %+v, want %v", ve.Fields, tt.wantFields)
			}
			for i, f := range tt.wantFields {
				if ve.Fields[i].Field != f {
					t.Errorf("field %d = %q, want %q", i, ve.Fields[i].Field, f)
				}
			}
			last := ve.Fields[len(ve.Fields)-1]
			if want := fmt.Sprintf("count must be %d or less", MaxCount); last.Error != want {
				t.Errorf("count message = %q, want %q", last.Error, want)
			}
		})
	}
}

func TestGeneratorErrorPassesThrough(t *testing.T) {
	gen := &fakeGenerator{err: apperr.ErrRateLimited}
	_, err := New(gen, newStore(), nil).Populate(context.Background(), Request{SubjectID: "math", Count: 2})
	if !errors.Is(err, apperr.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}
