package research

// Stage identifies a state of the research loop.
type Stage int

const (
	StageGenerateQuery Stage = iota
	StageWebResearch
	StageSummarize
	StageReflect
	StageFinalize
	StageFinalized
)

var stageNames = [...]string{
	StageGenerateQuery: "generate_query",
	StageWebResearch:   "web_research",
	StageSummarize:     "summarize",
	StageReflect:       "reflect",
	StageFinalize:      "finalize",
	StageFinalized:     "finalized",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// Next is the transition function of the loop. Only Reflect branches; the
// branch is decided by route.
func Next(s Stage, state *ResearchState, cfg LoopConfig) Stage {
	switch s {
	case StageGenerateQuery:
		return StageWebResearch
	case StageWebResearch:
		return StageSummarize
	case StageSummarize:
		return StageReflect
	case StageReflect:
		return route(state, cfg)
	default:
		return StageFinalized
	}
}

// route keeps researching while LoopCount <= MaxLoops, so a run performs
// MaxLoops+1 research cycles.
func route(state *ResearchState, cfg LoopConfig) Stage {
	if state.LoopCount <= cfg.MaxLoops {
		return StageWebResearch
	}
	return StageFinalize
}
