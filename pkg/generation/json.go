package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mikeboe/derma-research/pkg/research"
)

// ParseJSONObject decodes a structured-mode completion. Markdown code fences
// around the object are tolerated; anything that is not a JSON object fails
// with research.ErrMalformedModelOutput.
func ParseJSONObject(content string) (map[string]any, error) {
	text := stripCodeFence(strings.TrimSpace(content))
	if text == "" {
		return nil, fmt.Errorf("%w: empty completion", research.ErrMalformedModelOutput)
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, fmt.Errorf("%w: %v (content: %s)", research.ErrMalformedModelOutput, err, truncate(text, 200))
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: null object", research.ErrMalformedModelOutput)
	}
	return obj, nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
