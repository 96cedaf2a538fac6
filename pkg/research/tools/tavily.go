package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mikeboe/derma-research/pkg/research"
)

const defaultTavilyURL = "https://api.tavily.com/search"

// Tavily calls the Tavily search API.
type Tavily struct {
	APIKey  string
	BaseURL string
	client  *http.Client
}

// NewTavily constructs a Tavily gateway. A nil client gets a 30s timeout.
func NewTavily(apiKey string, client *http.Client) *Tavily {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Tavily{APIKey: apiKey, BaseURL: defaultTavilyURL, client: client}
}

type tavilyRequest struct {
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

type tavilyResponse struct {
	Query   string `json:"query"`
	Results []struct {
		Title      string  `json:"title"`
		URL        string  `json:"url"`
		Content    string  `json:"content"`
		RawContent *string `json:"raw_content"`
	} `json:"results"`
}

// Search runs one query. Every failure is wrapped with
// research.ErrSearchUnavailable; retries are left to the caller.
func (t *Tavily) Search(ctx context.Context, query string, maxResults int, includeRawContent bool) (research.SearchResponse, error) {
	if strings.TrimSpace(t.APIKey) == "" {
		return research.SearchResponse{}, fmt.Errorf("%w: tavily API key is missing", research.ErrSearchUnavailable)
	}
	if maxResults <= 0 {
		maxResults = 1
	}

	payload, err := json.Marshal(tavilyRequest{
		Query:             query,
		MaxResults:        maxResults,
		IncludeRawContent: includeRawContent,
	})
	if err != nil {
		return research.SearchResponse{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return research.SearchResponse{}, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.APIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return research.SearchResponse{}, fmt.Errorf("%w: %w", research.ErrSearchUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return research.SearchResponse{}, fmt.Errorf("%w: tavily http %d: %s", research.ErrSearchUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return research.SearchResponse{}, fmt.Errorf("%w: decode tavily response: %w", research.ErrSearchUnavailable, err)
	}

	out := research.SearchResponse{Query: query, Results: make([]research.SearchResult, 0, len(decoded.Results))}
	for _, r := range decoded.Results {
		res := research.SearchResult{Title: r.Title, URL: r.URL, Content: r.Content}
		if r.RawContent != nil {
			res.RawContent = *r.RawContent
		}
		out.Results = append(out.Results, res)
	}
	return out, nil
}
