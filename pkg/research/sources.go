package research

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// charsPerToken is the rough estimate used to turn a token budget into a
// character budget.
const charsPerToken = 4

const truncationMarker = "... [truncated]"

// SourceFormatter renders search batches into the text fed to the summarizer
// and into citation lists.
type SourceFormatter struct {
	Logger *slog.Logger
}

// NewSourceFormatter returns a formatter logging to the given logger, or the
// default logger when nil.
func NewSourceFormatter(logger *slog.Logger) *SourceFormatter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SourceFormatter{Logger: logger}
}

// DeduplicateAndFormat flattens one or more batches, keeps the first result
// seen for each URL and renders every unique source as a block.
//
// input may be a SearchResponse, a []SearchResult, a sequence of either, or
// the decoded-JSON equivalents (map[string]any with a "results" list, or a
// []any of those). Anything else fails with ErrInvalidInputKind.
//
// When includeRawContent is set, raw content is cut to
// maxTokensPerSource*4 characters and suffixed with a truncation marker.
func (f *SourceFormatter) DeduplicateAndFormat(input any, maxTokensPerSource int, includeRawContent bool) (string, error) {
	sources, err := flattenResults(input)
	if err != nil {
		return "", err
	}

	seen := make(map[string]struct{}, len(sources))
	unique := make([]SearchResult, 0, len(sources))
	for _, src := range sources {
		if _, ok := seen[src.URL]; ok {
			continue
		}
		seen[src.URL] = struct{}{}
		unique = append(unique, src)
	}

	charLimit := maxTokensPerSource * charsPerToken

	var sb strings.Builder
	sb.WriteString("Sources:\n\n")
	for _, src := range unique {
		fmt.Fprintf(&sb, "Source %s:\n===\n", src.Title)
		fmt.Fprintf(&sb, "URL: %s\n===\n", src.URL)
		fmt.Fprintf(&sb, "Most relevant content from source: %s\n===\n", strings.TrimSpace(src.Content))
		if includeRawContent {
			raw := src.RawContent
			if raw == "" {
				f.logger().Warn("No raw content found for source", "url", src.URL)
			}
			fmt.Fprintf(&sb, "Full source content limited to %d tokens: %s\n\n", maxTokensPerSource, truncateRunes(raw, charLimit))
		}
	}

	return strings.TrimRightFunc(sb.String(), isSpace), nil
}

// FormatCitations renders one bullet per result, in input order.
func (f *SourceFormatter) FormatCitations(batch SearchResponse) string {
	lines := make([]string, 0, len(batch.Results))
	for _, src := range batch.Results {
		lines = append(lines, fmt.Sprintf("* %s : %s", src.Title, src.URL))
	}
	return strings.Join(lines, "\n")
}

func (f *SourceFormatter) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}

func truncateRunes(s string, limit int) string {
	limit = max(limit, 0)
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + truncationMarker
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}

func flattenResults(input any) ([]SearchResult, error) {
	switch v := input.(type) {
	case SearchResponse:
		return v.Results, nil
	case *SearchResponse:
		if v == nil {
			return nil, fmt.Errorf("%w: nil search response", ErrInvalidInputKind)
		}
		return v.Results, nil
	case []SearchResult:
		return v, nil
	case []SearchResponse:
		var out []SearchResult
		for _, batch := range v {
			out = append(out, batch.Results...)
		}
		return out, nil
	case [][]SearchResult:
		var out []SearchResult
		for _, batch := range v {
			out = append(out, batch...)
		}
		return out, nil
	case map[string]any:
		return decodeBatch(v)
	case []any:
		var out []SearchResult
		for i, item := range v {
			results, err := decodeSequenceItem(item)
			if err != nil {
				return nil, fmt.Errorf("batch %d: %w", i, err)
			}
			out = append(out, results...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrInvalidInputKind, input)
	}
}

// decodeBatch decodes a JSON-shaped batch that must carry a "results" list.
func decodeBatch(m map[string]any) ([]SearchResult, error) {
	raw, ok := m["results"]
	if !ok {
		return nil, fmt.Errorf("%w: batch has no results key", ErrInvalidInputKind)
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: results is %T, not a list", ErrInvalidInputKind, raw)
	}
	return decodeResults(list)
}

// decodeSequenceItem accepts either a batch mapping or a bare list of result
// mappings, the two shapes a sequence element can take.
func decodeSequenceItem(item any) ([]SearchResult, error) {
	switch v := item.(type) {
	case map[string]any:
		return decodeBatch(v)
	case []any:
		return decodeResults(v)
	case SearchResponse:
		return v.Results, nil
	case []SearchResult:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: unsupported element type %T", ErrInvalidInputKind, item)
	}
}

func decodeResults(list []any) ([]SearchResult, error) {
	out := make([]SearchResult, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: result %d is %T", ErrInvalidInputKind, i, item)
		}
		var res SearchResult
		if err := mapstructure.Decode(m, &res); err != nil {
			return nil, fmt.Errorf("%w: result %d: %v", ErrInvalidInputKind, i, err)
		}
		out = append(out, res)
	}
	return out, nil
}
