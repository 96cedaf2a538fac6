package research

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedLLM answers by recognising which stage's system prompt it receives.
type scriptedLLM struct {
	mu         sync.Mutex
	summaries  int
	reflects   int
	reflectErr error
	queryOut   map[string]any
	userInputs []string
}

func (s *scriptedLLM) Generate(_ context.Context, system, user string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if system != summarizerInstructions {
		return "", errors.New("unexpected free-form prompt")
	}
	s.summaries++
	s.userInputs = append(s.userInputs, user)
	return fmt.Sprintf("summary %d", s.summaries), nil
}

func (s *scriptedLLM) GenerateJSON(_ context.Context, system, _ string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case strings.HasPrefix(system, "Your goal is to generate a targeted web search query"):
		if s.queryOut != nil {
			return s.queryOut, nil
		}
		return map[string]any{"query": "initial query", "aspect": "treatment", "rationale": "r"}, nil
	case strings.HasPrefix(system, "You are an expert research assistant"):
		s.reflects++
		if s.reflectErr != nil {
			return nil, s.reflectErr
		}
		return map[string]any{
			"knowledge_gap":   "gap",
			"follow_up_query": fmt.Sprintf("follow up %d", s.reflects),
		}, nil
	}
	return nil, errors.New("unexpected structured prompt")
}

// countingSearch returns one distinct result per call.
type countingSearch struct {
	calls   int
	queries []string
	err     error
}

func (c *countingSearch) Search(_ context.Context, query string, maxResults int, includeRaw bool) (SearchResponse, error) {
	if c.err != nil {
		return SearchResponse{}, c.err
	}
	c.calls++
	c.queries = append(c.queries, query)
	return SearchResponse{Query: query, Results: []SearchResult{{
		Title:      fmt.Sprintf("Result %d", c.calls),
		URL:        fmt.Sprintf("https://example.com/%d", c.calls),
		Content:    "snippet",
		RawContent: "raw",
	}}}, nil
}

type recordingObserver struct {
	stages   []string
	outcome  string
	runLoops int
}

func (r *recordingObserver) ObserveStage(stage string, _ time.Duration, _ error) {
	r.stages = append(r.stages, stage)
}

func (r *recordingObserver) ObserveRun(outcome string, loops int) {
	r.outcome = outcome
	r.runLoops = loops
}

func newTestEngine(t *testing.T, maxLoops int, search SearchGateway, llm GenerationGateway) *ResearchEngine {
	t.Helper()
	engine, err := NewEngine(LoopConfig{MaxLoops: maxLoops, ModelID: "test"}, search, llm)
	require.NoError(t, err)
	return engine.WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
}

func TestRunEndToEnd(t *testing.T) {
	search := &countingSearch{}
	llm := &scriptedLLM{}
	engine := newTestEngine(t, 3, search, llm)

	report, err := engine.Run(context.Background(), "X")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(report, "## Summary\n\nsummary 4\n\n"))
	assert.Contains(t, report, "### Sources")

	sources := report[strings.Index(report, "### Sources:\n")+len("### Sources:\n"):]
	assert.Equal(t, "* Result 1 : https://example.com/1\n"+
		"* Result 2 : https://example.com/2\n"+
		"* Result 3 : https://example.com/3\n"+
		"* Result 4 : https://example.com/4", sources)

	assert.Equal(t, []string{"initial query", "follow up 1", "follow up 2", "follow up 3"}, search.queries)
}

func TestLoopBoundRunsMaxLoopsPlusOneCycles(t *testing.T) {
	for _, maxLoops := range []int{1, 2, 3, 5} {
		t.Run(fmt.Sprintf("max_%d", maxLoops), func(t *testing.T) {
			search := &countingSearch{}
			engine := newTestEngine(t, maxLoops, search, &scriptedLLM{})

			state := NewResearchState("topic")
			require.NoError(t, engine.execute(context.Background(), state))

			assert.Equal(t, maxLoops+1, state.LoopCount)
			assert.Equal(t, maxLoops+1, search.calls)
		})
	}
}

func TestStateInvariantsAfterEveryStage(t *testing.T) {
	engine := newTestEngine(t, 3, &countingSearch{}, &scriptedLLM{})

	var snapshots []ResearchState
	engine.OnStateUpdate = func(s ResearchState) {
		snapshots = append(snapshots, s)
	}

	_, err := engine.Run(context.Background(), "topic")
	require.NoError(t, err)

	// generate_query + 4 x (web_research, summarize, reflect) + finalize
	require.Len(t, snapshots, 14)

	prevLoop := 0
	for i, s := range snapshots {
		assert.Equal(t, "topic", s.Topic)
		assert.Len(t, s.WebResults, s.LoopCount, "snapshot %d", i)
		assert.Len(t, s.SourcesGathered, s.LoopCount, "snapshot %d", i)
		assert.GreaterOrEqual(t, s.LoopCount, prevLoop)
		assert.LessOrEqual(t, s.LoopCount-prevLoop, 1)
		prevLoop = s.LoopCount
	}

	assert.False(t, snapshots[0].HasSummary(), "summary must be absent before the first summarize")
}

func TestSnapshotDoesNotAliasState(t *testing.T) {
	state := NewResearchState("topic")
	state.recordResearch("corpus", "* a : b")

	snap := state.Snapshot()
	snap.WebResults[0] = "changed"
	snap.SourcesGathered = append(snap.SourcesGathered, "extra")

	assert.Equal(t, []string{"corpus"}, state.WebResults)
	assert.Equal(t, []string{"* a : b"}, state.SourcesGathered)
	assert.Equal(t, 1, state.LoopCount)
}

func TestSummarizeBuildsNewThenExtendPrompts(t *testing.T) {
	llm := &scriptedLLM{}
	engine := newTestEngine(t, 1, &countingSearch{}, llm)

	_, err := engine.Run(context.Background(), "topic")
	require.NoError(t, err)

	require.Len(t, llm.userInputs, 2)
	assert.True(t, strings.HasPrefix(llm.userInputs[0], "Generate a summary of these search results: Sources:"))
	assert.True(t, strings.HasSuffix(llm.userInputs[0], "That addresses the following topic: topic"))
	assert.True(t, strings.HasPrefix(llm.userInputs[1], "Extend the existing summary: summary 1\n\nInclude new search results: "))
	assert.Contains(t, llm.userInputs[1], "https://example.com/2")
	assert.NotContains(t, llm.userInputs[1], "https://example.com/1")
}

func TestReflectMalformedOutputAbortsWithoutMutation(t *testing.T) {
	llm := &scriptedLLM{reflectErr: fmt.Errorf("%w: not json", ErrMalformedModelOutput)}
	observer := &recordingObserver{}
	engine := newTestEngine(t, 3, &countingSearch{}, llm)
	engine.Observer = observer

	state := NewResearchState("topic")
	err := engine.execute(context.Background(), state)
	require.ErrorIs(t, err, ErrMalformedModelOutput)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageReflect, stageErr.Stage)

	assert.Equal(t, "summary 1", state.RunningSummary)
	assert.Equal(t, "initial query", state.CurrentQuery)
	assert.Equal(t, 1, state.LoopCount)
	assert.Equal(t, []string{"generate_query", "web_research", "summarize", "reflect"}, observer.stages)

	report, err := engine.Run(context.Background(), "topic")
	require.ErrorIs(t, err, ErrMalformedModelOutput)
	assert.Empty(t, report)
	assert.Equal(t, "failed", observer.outcome)
}

func TestStructuredOutputMissingKeys(t *testing.T) {
	tests := []struct {
		name string
		out  map[string]any
	}{
		{"missing query", map[string]any{"aspect": "a"}},
		{"empty query", map[string]any{"query": "  "}},
		{"non-string query", map[string]any{"query": 12}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			search := &countingSearch{}
			engine := newTestEngine(t, 3, search, &scriptedLLM{queryOut: tt.out})

			_, err := engine.Run(context.Background(), "topic")
			require.ErrorIs(t, err, ErrMalformedModelOutput)
			assert.Zero(t, search.calls)
		})
	}
}

func TestSearchFailureSurfacesAsSearchUnavailable(t *testing.T) {
	engine := newTestEngine(t, 3, &countingSearch{err: errors.New("connection refused")}, &scriptedLLM{})

	state := NewResearchState("topic")
	err := engine.execute(context.Background(), state)
	require.ErrorIs(t, err, ErrSearchUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Zero(t, state.LoopCount)
	assert.Empty(t, state.WebResults)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	engine := newTestEngine(t, 3, &countingSearch{}, &scriptedLLM{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Run(ctx, "topic")
	require.ErrorIs(t, err, context.Canceled)
}

func TestObserverSeesEveryStage(t *testing.T) {
	observer := &recordingObserver{}
	engine := newTestEngine(t, 1, &countingSearch{}, &scriptedLLM{})
	engine.Observer = observer

	_, err := engine.Run(context.Background(), "topic")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"generate_query",
		"web_research", "summarize", "reflect",
		"web_research", "summarize", "reflect",
		"finalize",
	}, observer.stages)
	assert.Equal(t, "finalized", observer.outcome)
	assert.Equal(t, 2, observer.runLoops)
}

func TestNewEngineValidates(t *testing.T) {
	_, err := NewEngine(LoopConfig{MaxLoops: 0}, &countingSearch{}, &scriptedLLM{})
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = NewEngine(LoopConfig{MaxLoops: 1}, nil, &scriptedLLM{})
	require.Error(t, err)

	_, err = NewEngine(LoopConfig{MaxLoops: 1}, &countingSearch{}, nil)
	require.Error(t, err)
}

func TestRunRejectsInvalidSearchPolicy(t *testing.T) {
	tests := []struct {
		name   string
		policy SearchPolicy
	}{
		{"zero token budget", SearchPolicy{MaxResults: 1, IncludeRawContent: true, MaxTokensPerSource: 0}},
		{"negative token budget", SearchPolicy{MaxResults: 1, IncludeRawContent: true, MaxTokensPerSource: -1}},
		{"no results", SearchPolicy{MaxResults: 0, MaxTokensPerSource: 1000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			search := &countingSearch{}
			engine := newTestEngine(t, 1, search, &scriptedLLM{})
			engine.Policy = tt.policy

			_, err := engine.Run(context.Background(), "topic")
			require.ErrorIs(t, err, ErrConfiguration)
			assert.Zero(t, search.calls)
		})
	}
}

func TestConcurrentRunsAreIndependent(t *testing.T) {
	engine := newTestEngine(t, 2, searchFunc(func(query string) SearchResponse {
		return SearchResponse{Results: []SearchResult{{Title: query, URL: "https://" + query}}}
	}), &scriptedLLM{})

	var wg sync.WaitGroup
	reports := make([]string, 4)
	errs := make([]error, 4)
	for i := range reports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reports[i], errs[i] = engine.Run(context.Background(), fmt.Sprintf("topic-%d", i))
		}(i)
	}
	wg.Wait()

	for i := range reports {
		require.NoError(t, errs[i])
		assert.Equal(t, 3, strings.Count(reports[i], "\n* "), "report %d", i)
	}
}

type searchFunc func(query string) SearchResponse

func (f searchFunc) Search(_ context.Context, query string, _ int, _ bool) (SearchResponse, error) {
	return f(query), nil
}
