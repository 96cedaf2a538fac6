package clients

import (
	"context"
	"log/slog"

	"github.com/mikeboe/derma-research/pkg/config"
	"github.com/mikeboe/derma-research/pkg/research"
	"github.com/mikeboe/derma-research/pkg/research/tools"
)

// NewResearchEngine resolves the loop configuration and wires the configured
// search and generation backends into an engine.
func NewResearchEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger, overrides research.LoopOverrides) (*research.ResearchEngine, error) {
	loopCfg, err := research.ResolveLoopConfig(overrides)
	if err != nil {
		return nil, err
	}

	search, err := tools.NewSearchGateway(cfg, logger)
	if err != nil {
		return nil, err
	}
	llm, err := NewGenerationGateway(ctx, cfg, loopCfg.ModelID)
	if err != nil {
		return nil, err
	}

	engine, err := research.NewEngine(loopCfg, search, llm)
	if err != nil {
		return nil, err
	}
	engine.Policy = research.SearchPolicy{
		MaxResults:         cfg.SearchMaxResults,
		IncludeRawContent:  cfg.SearchIncludeRawContent,
		MaxTokensPerSource: cfg.MaxTokensPerSource,
	}
	if err := engine.Policy.Validate(); err != nil {
		return nil, err
	}
	engine = engine.WithLogger(logger)

	logger.Info("Research engine ready",
		"llm_provider", cfg.LLMProvider,
		"model_id", loopCfg.ModelID,
		"search_provider", cfg.SearchProvider,
		"max_loops", loopCfg.MaxLoops,
	)
	return engine, nil
}
