package research

import "slices"

// SearchResult is a single hit returned by a SearchGateway. URL is the
// uniqueness key.
type SearchResult struct {
	Title      string `json:"title" mapstructure:"title"`
	URL        string `json:"url" mapstructure:"url"`
	Content    string `json:"content" mapstructure:"content"`
	RawContent string `json:"raw_content,omitempty" mapstructure:"raw_content"`
}

// SearchResponse is one batch of results for a query.
type SearchResponse struct {
	Query   string         `json:"query,omitempty" mapstructure:"query"`
	Results []SearchResult `json:"results" mapstructure:"results"`
}

// SearchPolicy controls how the WebResearch stage queries and renders sources.
type SearchPolicy struct {
	MaxResults         int  `json:"max_results"`
	IncludeRawContent  bool `json:"include_raw_content"`
	MaxTokensPerSource int  `json:"max_tokens_per_source"`
}

// DefaultSearchPolicy fetches one result per query, with
// raw page content included and capped at roughly 1000 tokens.
func DefaultSearchPolicy() SearchPolicy {
	return SearchPolicy{
		MaxResults:         1,
		IncludeRawContent:  true,
		MaxTokensPerSource: 1000,
	}
}

// ResearchState is threaded through every stage of a single run. It is owned
// by one run and must never be shared or reused.
type ResearchState struct {
	Topic           string   `json:"topic"`
	CurrentQuery    string   `json:"current_query"`
	WebResults      []string `json:"web_results"`
	SourcesGathered []string `json:"sources_gathered"`
	LoopCount       int      `json:"loop_count"`
	// RunningSummary is empty until the first Summarize stage.
	RunningSummary string `json:"running_summary,omitempty"`
}

// NewResearchState starts a run for the given topic.
func NewResearchState(topic string) *ResearchState {
	return &ResearchState{
		Topic:           topic,
		WebResults:      []string{},
		SourcesGathered: []string{},
	}
}

// recordResearch appends one cycle worth of research. Both sequences grow
// together and LoopCount tracks their length.
func (s *ResearchState) recordResearch(corpus, citations string) {
	s.WebResults = append(s.WebResults, corpus)
	s.SourcesGathered = append(s.SourcesGathered, citations)
	s.LoopCount++
}

// latestResearch returns the corpus of the most recent cycle.
func (s *ResearchState) latestResearch() string {
	if len(s.WebResults) == 0 {
		return ""
	}
	return s.WebResults[len(s.WebResults)-1]
}

// HasSummary reports whether a Summarize stage has produced text yet.
func (s *ResearchState) HasSummary() bool {
	return s.RunningSummary != ""
}

// Snapshot returns a copy that does not alias the run's slices.
func (s *ResearchState) Snapshot() ResearchState {
	cp := *s
	cp.WebResults = slices.Clone(s.WebResults)
	cp.SourcesGathered = slices.Clone(s.SourcesGathered)
	return cp
}
