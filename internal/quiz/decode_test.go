package quiz

import (
	"errors"
	"testing"

	"github.com/Sheiden1/hackathon/internal/apperr"
)

const oneRecord = `{"id":"g1","available":true,"subject_id":"s","difficulty":"easy",
"question":{"statement":"2+2?","alternatives":[{"text":"4","letter":"A"},{"text":"5","letter":"B"}],"correct_answer":"A"}}`

func TestDecodeGenerated(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{"bare array", "[" + oneRecord + "]", 1, false},
		{"items object", `{"items":[` + oneRecord + "," + oneRecord + `]}`, 2, false},
		{"questions object", `{"questions":[` + oneRecord + `]}`, 1, false},
		{"fenced", "```json\n[" + oneRecord + "]\n```", 1, false},
		{"empty items", `{"items":[]}`, 0, false},
		{"object without list", `{"foo":1}`, 0, true},
		{"not json", "Here are your questions", 0, true},
		{"blank", "   ", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeGenerated([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, apperr.ErrGeneration) {
					t.Fatalf("expected ErrGeneration, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeGenerated: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("expected %d records, got %d", tt.want, len(got))
			}
		})
	}
}

func TestDecodeGeneratedFieldMapping(t *testing.T) {
	got, err := DecodeGenerated([]byte("[" + oneRecord + "]"))
	if err != nil {
		t.Fatalf("DecodeGenerated: %v", err)
	}
	r := got[0]
	if r.ID != "g1" || r.SubjectID != "s" || !r.Available {
		t.Errorf("unexpected header fields: %+v", r)
	}
	if r.Question.Statement != "2+2?" || len(r.Question.Alternatives) != 2 || r.Question.CorrectAnswer != "A" {
		t.Errorf("unexpected question body: %+v", r.Question)
	}
}
