package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Sheiden1/hackathon/internal/apperr"
	"github.com/Sheiden1/hackathon/internal/llm/prompts"
)

func chatServer(t *testing.T, status int, content string) (*httptest.Server, *string) {
	t.Helper()
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) == 2 {
			gotPrompt = req.Messages[1].Content
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream refused","type":"error"}}`))
			return
		}
		body := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &gotPrompt
}

const batch = "```json\n" + `{"items": [
	{"id": "1", "available": true, "difficulty": "easy", "question": {"statement": "2+2?", "alternatives": [{"letter": "A", "text": "3"}, {"letter": "B", "text": "4"}], "correct_answer": "B"}},
	{"id": "2", "available": true, "subject_id": "other", "difficulty": "hard", "question": {"statement": "3*3?", "alternatives": [{"letter": "A", "text": "9"}, {"letter": "B", "text": "6"}], "correct_answer": "A"}}
]}` + "\n```"

func TestGenerateQuestions(t *testing.T) {
	srv, prompt := chatServer(t, http.StatusOK, batch)
	c := New(srv.URL+"/v1", "key", "test", prompts.LangEnglish)

	got, err := c.GenerateQuestions(context.Background(), "math", "Arithmetic", 2)
	if err != nil {
		t.Fatalf("GenerateQuestions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].SubjectID != "math" {
		t.Errorf("expected missing subject id to be filled, got %q", got[0].SubjectID)
	}
	if got[1].SubjectID != "other" {
		t.Errorf("expected explicit subject id kept, got %q", got[1].SubjectID)
	}
	if got[0].Question.CorrectAnswer != "B" {
		t.Errorf("unexpected first record: %+v", got[0])
	}
	if !strings.Contains(*prompt, "Write 2 multiple-choice questions") {
		t.Errorf("unexpected prompt: %s", *prompt)
	}
}

func TestGenerateQuestionsErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		content string
		want    error
	}{
		{"rate limited", http.StatusTooManyRequests, "", apperr.ErrRateLimited},
		{"no credits", http.StatusPaymentRequired, "", ErrNoCredits},
		{"server error", http.StatusInternalServerError, "", apperr.ErrGeneration},
		{"not json", http.StatusOK, "sorry, I cannot help", apperr.ErrGeneration},
		{"empty", http.StatusOK, "", apperr.ErrGeneration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := chatServer(t, tt.status, tt.content)
			c := New(srv.URL+"/v1", "key", "test", prompts.LangPortuguese)
			_, err := c.GenerateQuestions(context.Background(), "math", "Matemática", 3)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
