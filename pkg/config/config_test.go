package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "LLM_PROVIDER", "SEARCH_PROVIDER", "SEARCH_MAX_RESULTS",
		"SEARCH_INCLUDE_RAW_CONTENT", "MAX_TOKENS_PER_SOURCE", "SEARCH_CACHE_TTL",
		"RESEARCH_TIMEOUT", "REDIS_ADDR",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "8081" {
		t.Fatalf("unexpected default port: %s", cfg.Port)
	}
	if cfg.LLMProvider != "ollama" || cfg.SearchProvider != "tavily" {
		t.Fatalf("unexpected providers: %s / %s", cfg.LLMProvider, cfg.SearchProvider)
	}
	if cfg.SearchMaxResults != 1 || !cfg.SearchIncludeRawContent || cfg.MaxTokensPerSource != 1000 {
		t.Fatalf("unexpected search policy: %+v", cfg)
	}
	if cfg.SearchCacheTTL != time.Hour {
		t.Fatalf("unexpected cache ttl: %v", cfg.SearchCacheTTL)
	}
	if cfg.RedisAddr != "" {
		t.Fatalf("cache should be disabled by default, got %q", cfg.RedisAddr)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "GenAI")
	t.Setenv("SEARCH_MAX_RESULTS", "3")
	t.Setenv("SEARCH_INCLUDE_RAW_CONTENT", "false")
	t.Setenv("RESEARCH_TIMEOUT", "90s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LLMProvider != "genai" {
		t.Fatalf("provider should be lower-cased, got %s", cfg.LLMProvider)
	}
	if cfg.SearchMaxResults != 3 || cfg.SearchIncludeRawContent {
		t.Fatalf("unexpected search policy: %+v", cfg)
	}
	if cfg.ResearchTimeout != 90*time.Second {
		t.Fatalf("unexpected timeout: %v", cfg.ResearchTimeout)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("SEARCH_MAX_RESULTS", "many")
	t.Setenv("SEARCH_INCLUDE_RAW_CONTENT", "perhaps")
	t.Setenv("SEARCH_CACHE_TTL", "-5m")
	t.Setenv("MAX_TOKENS_PER_SOURCE", "")

	cfg, err := Load()
	if cfg != nil {
		t.Fatalf("expected no config, got %+v", cfg)
	}
	if !errors.Is(err, ErrInvalidEnv) {
		t.Fatalf("expected ErrInvalidEnv, got %v", err)
	}
	for _, key := range []string{"SEARCH_MAX_RESULTS", "SEARCH_INCLUDE_RAW_CONTENT", "SEARCH_CACHE_TTL"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error should name %s: %v", key, err)
		}
	}
	if strings.Contains(err.Error(), "MAX_TOKENS_PER_SOURCE") {
		t.Errorf("empty value should fall back to the default: %v", err)
	}
}
