package generation

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// GenaiGateway talks to Gemini through the native SDK and relies on the
// response MIME type for structured mode.
type GenaiGateway struct {
	Client *genai.Client
	Model  string
}

func NewGenaiGateway(ctx context.Context, apiKey, model string) (*GenaiGateway, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenaiGateway{Client: client, Model: model}, nil
}

func (g *GenaiGateway) Generate(ctx context.Context, system, user string) (string, error) {
	return g.complete(ctx, system, user, &genai.GenerateContentConfig{})
}

func (g *GenaiGateway) GenerateJSON(ctx context.Context, system, user string) (map[string]any, error) {
	zero := float32(0)
	text, err := g.complete(ctx, system, user, &genai.GenerateContentConfig{
		Temperature:      &zero,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, err
	}
	return ParseJSONObject(text)
}

func (g *GenaiGateway) complete(ctx context.Context, system, user string, cfg *genai.GenerateContentConfig) (string, error) {
	cfg.SystemInstruction = &genai.Content{
		Parts: []*genai.Part{{Text: system}},
	}

	resp, err := g.Client.Models.GenerateContent(ctx, g.Model, []*genai.Content{
		{Role: genai.RoleUser, Parts: []*genai.Part{{Text: user}}},
	}, cfg)
	if err != nil {
		return "", fmt.Errorf("genai generation failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("genai returned no candidates")
	}

	var text string
	for _, p := range resp.Candidates[0].Content.Parts {
		text += p.Text
	}
	return text, nil
}
