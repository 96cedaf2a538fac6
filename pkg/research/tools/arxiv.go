package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mikeboe/derma-research/pkg/research"
)

const defaultArxivURL = "https://export.arxiv.org/api/query"

// ArxivEntry struct to hold arXiv entry data
type ArxivEntry struct {
	ID        string      `xml:"id"`
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Link      []ArxivLink `xml:"link"`
}

// ArxivLink struct to hold arXiv link data
type ArxivLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
}

// ArxivFeed struct to hold the entire arXiv feed
type ArxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []ArxivEntry `xml:"entry"`
}

// Arxiv is a literature-search gateway over the arXiv Atom API. When a
// Scraper is set and raw content is requested, the PDF of each hit is run
// through OCR to fill RawContent.
type Arxiv struct {
	BaseURL string
	Scraper *Scraper
	Logger  *slog.Logger
	client  *http.Client
}

func NewArxiv(client *http.Client, scraper *Scraper) *Arxiv {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Arxiv{BaseURL: defaultArxivURL, Scraper: scraper, Logger: slog.Default(), client: client}
}

// Search queries arXiv. Failures to fetch the feed are wrapped with
// research.ErrSearchUnavailable; OCR failures only leave RawContent empty.
func (a *Arxiv) Search(ctx context.Context, query string, maxResults int, includeRawContent bool) (research.SearchResponse, error) {
	if maxResults <= 0 {
		maxResults = 1
	}

	params := url.Values{}
	params.Add("search_query", "all:"+query)
	params.Add("max_results", strconv.Itoa(maxResults))
	params.Add("start", "0")
	apiURL := a.BaseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return research.SearchResponse{}, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return research.SearchResponse{}, fmt.Errorf("%w: %w", research.ErrSearchUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return research.SearchResponse{}, fmt.Errorf("%w: failed to read response body: %w", research.ErrSearchUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return research.SearchResponse{}, fmt.Errorf("%w: arxiv returned status %d", research.ErrSearchUnavailable, resp.StatusCode)
	}

	var feed ArxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return research.SearchResponse{}, fmt.Errorf("%w: failed to unmarshal XML: %w", research.ErrSearchUnavailable, err)
	}

	out := research.SearchResponse{Query: query, Results: make([]research.SearchResult, 0, len(feed.Entry))}
	for _, entry := range feed.Entry {
		res := research.SearchResult{
			Title:   collapseSpace(entry.Title),
			URL:     entry.pdfLink(),
			Content: collapseSpace(entry.Summary),
		}
		if includeRawContent && a.Scraper != nil && res.URL != "" {
			text, err := a.Scraper.ScrapePDF(ctx, res.URL)
			if err != nil {
				a.logger().Warn("Failed to scrape, using summary only", "url", res.URL, "error", err)
			} else {
				res.RawContent = text
			}
		}
		out.Results = append(out.Results, res)
	}
	return out, nil
}

func (a *Arxiv) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// pdfLink prefers the PDF link and falls back to the abstract id.
func (e ArxivEntry) pdfLink() string {
	for _, link := range e.Link {
		if link.Type == "application/pdf" {
			return link.Href
		}
	}
	return strings.TrimSpace(e.ID)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
