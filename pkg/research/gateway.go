package research

import (
	"context"
	"time"
)

// SearchGateway executes one web search per call. Implementations wrap
// provider failures with ErrSearchUnavailable.
type SearchGateway interface {
	Search(ctx context.Context, query string, maxResults int, includeRawContent bool) (SearchResponse, error)
}

// GenerationGateway exposes the two generation modes of the configured model.
//
// GenerateJSON constrains the model to a JSON object. The expected keys are a
// contract of each call site; the gateway only guarantees a well-formed
// object or ErrMalformedModelOutput.
type GenerationGateway interface {
	Generate(ctx context.Context, system, user string) (string, error)
	GenerateJSON(ctx context.Context, system, user string) (map[string]any, error)
}

// StageObserver receives timing for every executed stage and the outcome of
// every run.
type StageObserver interface {
	ObserveStage(stage string, elapsed time.Duration, err error)
	ObserveRun(outcome string, loops int)
}
