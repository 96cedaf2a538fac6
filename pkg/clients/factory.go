package clients

import (
	"context"
	"fmt"

	"github.com/mikeboe/derma-research/pkg/config"
	"github.com/mikeboe/derma-research/pkg/generation"
	"github.com/mikeboe/derma-research/pkg/research"
)

const (
	ProviderOllama   = "ollama"
	ProviderGoogleAI = "googleai"
	ProviderGenAI    = "genai"
)

// NewGenerationGateway picks the backend named by cfg.LLMProvider and binds
// it to modelID.
func NewGenerationGateway(ctx context.Context, cfg *config.Config, modelID string) (research.GenerationGateway, error) {
	switch cfg.LLMProvider {
	case ProviderOllama, "":
		llm, err := Ollama(cfg.OllamaURL, modelID)
		if err != nil {
			return nil, err
		}
		return generation.NewLangchainGateway(llm), nil
	case ProviderGoogleAI:
		llm, err := GoogleAi(ctx, cfg.GoogleApiKey, modelID)
		if err != nil {
			return nil, err
		}
		return generation.NewLangchainGateway(llm), nil
	case ProviderGenAI:
		return generation.NewGenaiGateway(ctx, cfg.GoogleApiKey, modelID)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}
