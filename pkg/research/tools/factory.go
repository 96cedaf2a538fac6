package tools

import (
	"fmt"
	"log/slog"

	backend "github.com/redis/go-redis/v9"

	"github.com/mikeboe/derma-research/pkg/config"
	"github.com/mikeboe/derma-research/pkg/research"
)

// NewSearchGateway builds the configured provider, wrapped in the Redis cache
// when REDIS_ADDR is set.
func NewSearchGateway(cfg *config.Config, logger *slog.Logger) (research.SearchGateway, error) {
	var gw research.SearchGateway
	switch cfg.SearchProvider {
	case "tavily", "":
		gw = NewTavily(cfg.TavilyApiKey, nil)
	case "arxiv":
		var scraper *Scraper
		if cfg.MistralApiKey != "" {
			scraper = NewScraper(cfg.MistralApiKey, nil)
		}
		ax := NewArxiv(nil, scraper)
		ax.Logger = logger
		gw = ax
	default:
		return nil, fmt.Errorf("unknown search provider %q", cfg.SearchProvider)
	}

	if cfg.RedisAddr == "" {
		return gw, nil
	}
	client := backend.NewClient(&backend.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	return NewCachedSearch(gw, client, WithTTL(cfg.SearchCacheTTL), WithCacheLogger(logger)), nil
}
