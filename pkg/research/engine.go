package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type ResearchEngine struct {
	Config        LoopConfig
	Policy        SearchPolicy
	Search        SearchGateway
	LLM           GenerationGateway
	Formatter     *SourceFormatter
	Logger        *slog.Logger
	Observer      StageObserver
	OnStateUpdate func(state ResearchState)
}

// NewEngine builds an engine with the default search policy. The engine holds
// no per-run state, so one instance may serve many runs.
func NewEngine(cfg LoopConfig, search SearchGateway, llm GenerationGateway) (*ResearchEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if search == nil {
		return nil, errors.New("search gateway is required")
	}
	if llm == nil {
		return nil, errors.New("generation gateway is required")
	}

	logger := slog.Default()
	return &ResearchEngine{
		Config:    cfg,
		Policy:    DefaultSearchPolicy(),
		Search:    search,
		LLM:       llm,
		Formatter: NewSourceFormatter(logger),
		Logger:    logger,
	}, nil
}

// WithLogger returns a copy of the engine that logs (and formats sources)
// through logger.
func (e *ResearchEngine) WithLogger(logger *slog.Logger) *ResearchEngine {
	cp := *e
	cp.Logger = logger
	cp.Formatter = NewSourceFormatter(logger)
	return &cp
}

// Run researches topic and returns the final report. Any stage failure aborts
// the run; there is no partial result.
func (e *ResearchEngine) Run(ctx context.Context, topic string) (string, error) {
	if err := e.Config.Validate(); err != nil {
		return "", err
	}
	if err := e.Policy.Validate(); err != nil {
		return "", err
	}

	state := NewResearchState(topic)
	e.Logger.Info("Starting research loop", "topic", topic, "max_loops", e.Config.MaxLoops)

	err := e.execute(ctx, state)
	if e.Observer != nil {
		outcome := "finalized"
		if err != nil {
			outcome = "failed"
		}
		e.Observer.ObserveRun(outcome, state.LoopCount)
	}
	if err != nil {
		e.Logger.Error("Research loop aborted", "error", err, "loop_count", state.LoopCount)
		return "", err
	}

	e.Logger.Info("Research loop finalized", "loop_count", state.LoopCount, "length", len(state.RunningSummary))
	return state.RunningSummary, nil
}

// execute drives state from GenerateQuery to Finalized. Stages run strictly in
// sequence and each commits its mutation before the next starts.
func (e *ResearchEngine) execute(ctx context.Context, state *ResearchState) error {
	stage := StageGenerateQuery
	for stage != StageFinalized {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		err := e.runStage(ctx, stage, state)
		if e.Observer != nil {
			e.Observer.ObserveStage(stage.String(), time.Since(start), err)
		}
		if err != nil {
			return &StageError{Stage: stage, Err: err}
		}

		if e.OnStateUpdate != nil {
			e.OnStateUpdate(state.Snapshot())
		}
		stage = Next(stage, state, e.Config)
	}
	return nil
}

func (e *ResearchEngine) runStage(ctx context.Context, stage Stage, state *ResearchState) error {
	switch stage {
	case StageGenerateQuery:
		return e.generateQuery(ctx, state)
	case StageWebResearch:
		return e.webResearch(ctx, state)
	case StageSummarize:
		return e.summarize(ctx, state)
	case StageReflect:
		return e.reflect(ctx, state)
	case StageFinalize:
		e.finalize(state)
		return nil
	default:
		return fmt.Errorf("no handler for stage %s", stage)
	}
}

// --- Stage Implementations ---

func (e *ResearchEngine) generateQuery(ctx context.Context, state *ResearchState) error {
	raw, err := e.LLM.GenerateJSON(ctx, queryWriterPrompt(state.Topic), queryWriterRequest)
	if err != nil {
		return fmt.Errorf("query generation failed: %w", err)
	}

	var out queryOutput
	if err := decodeStructured(raw, &out, "query"); err != nil {
		return err
	}

	state.CurrentQuery = out.Query
	e.Logger.Info("Generated query", "query", out.Query, "aspect", out.Aspect)
	return nil
}

func (e *ResearchEngine) webResearch(ctx context.Context, state *ResearchState) error {
	resp, err := e.Search.Search(ctx, state.CurrentQuery, e.Policy.MaxResults, e.Policy.IncludeRawContent)
	if err != nil {
		if !errors.Is(err, ErrSearchUnavailable) {
			err = fmt.Errorf("%w: %w", ErrSearchUnavailable, err)
		}
		return err
	}

	formatter := e.Formatter
	if formatter == nil {
		formatter = NewSourceFormatter(e.Logger)
	}
	corpus, err := formatter.DeduplicateAndFormat(resp, e.Policy.MaxTokensPerSource, e.Policy.IncludeRawContent)
	if err != nil {
		return err
	}
	citations := formatter.FormatCitations(resp)

	state.recordResearch(corpus, citations)
	e.Logger.Info("Web research complete", "query", state.CurrentQuery, "results", len(resp.Results), "loop_count", state.LoopCount)
	return nil
}

func (e *ResearchEngine) summarize(ctx context.Context, state *ResearchState) error {
	extending := state.HasSummary()

	summary, err := e.LLM.Generate(ctx, summarizerInstructions, summarizeRequest(state))
	if err != nil {
		return fmt.Errorf("summarization failed: %w", err)
	}

	state.RunningSummary = summary
	e.Logger.Info("Summary updated", "extended", extending, "length", len(summary))
	return nil
}

func (e *ResearchEngine) reflect(ctx context.Context, state *ResearchState) error {
	raw, err := e.LLM.GenerateJSON(ctx, reflectionPrompt(state.Topic), reflectionRequest(state.RunningSummary))
	if err != nil {
		return fmt.Errorf("reflection failed: %w", err)
	}

	var out reflectionOutput
	if err := decodeStructured(raw, &out, "follow_up_query"); err != nil {
		return err
	}

	state.CurrentQuery = out.FollowUpQuery
	e.Logger.Info("Reflection complete", "knowledge_gap", out.KnowledgeGap, "follow_up_query", out.FollowUpQuery)
	return nil
}

func (e *ResearchEngine) finalize(state *ResearchState) {
	e.Logger.Info("Compiling final report", "cycles", state.LoopCount)
	state.RunningSummary = finalReport(state.RunningSummary, strings.Join(state.SourcesGathered, "\n"))
}
