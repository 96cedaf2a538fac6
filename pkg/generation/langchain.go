package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
)

// LangchainGateway serves both generation modes from one langchaingo model.
// Structured mode uses the provider's JSON mode.
type LangchainGateway struct {
	LLM         llms.Model
	Temperature float64
}

func NewLangchainGateway(llm llms.Model) *LangchainGateway {
	return &LangchainGateway{LLM: llm}
}

func (g *LangchainGateway) Generate(ctx context.Context, system, user string) (string, error) {
	return g.complete(ctx, system, user, llms.WithTemperature(g.Temperature))
}

func (g *LangchainGateway) GenerateJSON(ctx context.Context, system, user string) (map[string]any, error) {
	content, err := g.complete(ctx, system, user, llms.WithTemperature(0), llms.WithJSONMode())
	if err != nil {
		return nil, err
	}
	return ParseJSONObject(content)
}

func (g *LangchainGateway) complete(ctx context.Context, system, user string, opts ...llms.CallOption) (string, error) {
	resp, err := g.LLM.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("llm generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm returned no choices")
	}
	return resp.Choices[0].Content, nil
}
