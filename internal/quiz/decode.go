package quiz

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/Sheiden1/hackathon/internal/apperr"
	"github.com/Sheiden1/hackathon/internal/model"
)

var codeFenceRegex = regexp.MustCompile("(?m)^\\s*```[a-zA-Z]*\\s*$")

// envelope covers the object-wrapped shapes the generation service is known to send.
type envelope struct {
	Items     []model.GeneratedQuestion `json:"items"`
	Questions []model.GeneratedQuestion `json:"questions"`
}

// DecodeGenerated parses a generation response that is either a bare array of
// records or an object holding them under "items" (or "questions"). Markdown
// code fences around the JSON are ignored.
func DecodeGenerated(data []byte) ([]model.GeneratedQuestion, error) {
	data = bytes.TrimSpace(codeFenceRegex.ReplaceAll(data, nil))
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty response", apperr.ErrGeneration)
	}

	switch data[0] {
	case '[':
		var list []model.GeneratedQuestion
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("%w: decode array: %v", apperr.ErrGeneration, err)
		}
		return list, nil
	case '{':
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("%w: decode object: %v", apperr.ErrGeneration, err)
		}
		if env.Items != nil {
			return env.Items, nil
		}
		if env.Questions != nil {
			return env.Questions, nil
		}
		return nil, fmt.Errorf("%w: object has neither items nor questions", apperr.ErrGeneration)
	default:
		return nil, fmt.Errorf("%w: response is not JSON", apperr.ErrGeneration)
	}
}
