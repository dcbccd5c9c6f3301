// Package llm asks an OpenAI-compatible chat API to write question batches.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Sheiden1/hackathon/internal/apperr"
	"github.com/Sheiden1/hackathon/internal/llm/prompts"
	"github.com/Sheiden1/hackathon/internal/model"
	"github.com/Sheiden1/hackathon/internal/quiz"
)

// ErrNoCredits is returned when the provider refuses the call for billing reasons.
var ErrNoCredits = errors.New("generation provider reports insufficient credits")

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
	lang  prompts.Lang
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string, lang prompts.Lang) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if lang == "" {
		lang = prompts.LangPortuguese
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
		lang:  lang,
	}
}

// GenerateQuestions asks for count questions about a subject and returns the
// decoded raw records. Records still need normalizing.
func (c *Client) GenerateQuestions(ctx context.Context, subjectID, subjectName string, count int) ([]model.GeneratedQuestion, error) {
	userPrompt, err := prompts.BuildGenerate(c.lang, prompts.GenerateData{
		SubjectID: subjectID,
		Subject:   subjectName,
		Count:     count,
	})
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	slog.Info("generating questions", "subject", subjectName, "count", count, "model", c.model)
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompts.System(c.lang)},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.7,
	})
	if err != nil {
		return nil, classify(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("%w: LLM returned no content", apperr.ErrGeneration)
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)

	records, err := quiz.DecodeGenerated([]byte(raw))
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].SubjectID == "" {
			records[i].SubjectID = subjectID
		}
	}
	return records, nil
}

// classify maps provider failures onto the error taxonomy.
func classify(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	switch status {
	case http.StatusTooManyRequests:
		return fmt.Errorf("LLM API call: %w", apperr.ErrRateLimited)
	case http.StatusPaymentRequired:
		return fmt.Errorf("LLM API call: %w: %w", apperr.ErrGeneration, ErrNoCredits)
	default:
		return fmt.Errorf("LLM API call: %w: %v", apperr.ErrGeneration, err)
	}
}
