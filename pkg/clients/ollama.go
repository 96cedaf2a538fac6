package clients

import (
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"
)

// Ollama builds a langchaingo client for a locally served model.
func Ollama(serverURL, model string) (*ollama.LLM, error) {
	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to init ollama: %w", err)
	}
	return llm, nil
}
