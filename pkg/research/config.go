package research

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	DefaultMaxLoops = 3
	DefaultModelID  = "llama3.1:8b"
)

// LoopConfig bounds a research run. It is resolved once and not modified
// while a run is in progress.
type LoopConfig struct {
	MaxLoops int    `json:"max_web_research_loops"`
	ModelID  string `json:"model_id"`
}

// LoopOverrides carries explicit run-time values. Nil fields fall through to
// the environment and then to the defaults.
type LoopOverrides struct {
	MaxLoops *int
	ModelID  *string
}

// ResolveLoopConfig applies the precedence override > environment > default.
// Environment keys are the upper-cased field names MAX_WEB_RESEARCH_LOOPS and
// MODEL_ID; empty values count as absent. The environment is only consulted
// for fields without an override.
func ResolveLoopConfig(overrides LoopOverrides) (LoopConfig, error) {
	cfg := LoopConfig{
		MaxLoops: DefaultMaxLoops,
		ModelID:  DefaultModelID,
	}

	switch v := strings.TrimSpace(os.Getenv("MAX_WEB_RESEARCH_LOOPS")); {
	case overrides.MaxLoops != nil:
		cfg.MaxLoops = *overrides.MaxLoops
	case v != "":
		n, err := strconv.Atoi(v)
		if err != nil {
			return LoopConfig{}, fmt.Errorf("%w: MAX_WEB_RESEARCH_LOOPS=%q is not an integer", ErrConfiguration, v)
		}
		cfg.MaxLoops = n
	}

	if overrides.ModelID != nil && *overrides.ModelID != "" {
		cfg.ModelID = *overrides.ModelID
	} else if v := strings.TrimSpace(os.Getenv("MODEL_ID")); v != "" {
		cfg.ModelID = v
	}

	if err := cfg.Validate(); err != nil {
		return LoopConfig{}, err
	}
	return cfg, nil
}

// Validate rejects a non-positive loop bound.
func (c LoopConfig) Validate() error {
	if c.MaxLoops <= 0 {
		return fmt.Errorf("%w: max web research loops must be > 0, got %d", ErrConfiguration, c.MaxLoops)
	}
	return nil
}

// Validate rejects a policy that would request no results or render raw
// content against a non-positive token budget.
func (p SearchPolicy) Validate() error {
	if p.MaxResults <= 0 {
		return fmt.Errorf("%w: search max results must be > 0, got %d", ErrConfiguration, p.MaxResults)
	}
	if p.MaxTokensPerSource <= 0 {
		return fmt.Errorf("%w: max tokens per source must be > 0, got %d", ErrConfiguration, p.MaxTokensPerSource)
	}
	return nil
}
