package journal

import (
	"context"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/momentum/internal/db"
	"github.com/hpungsan/momentum/internal/entry"
	"github.com/hpungsan/momentum/internal/errors"
)

// Search limits
const (
	MaxQueryLength  = db.MaxSearchQueryChars
	MaxSnippetChars = 300
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// ListInput contains parameters for ListEntries.
type ListInput struct {
	Limit  int // default: list_limit_default (20), max: 100
	Offset int // default: 0
}

// ListOutput contains the result of ListEntries.
type ListOutput struct {
	Items      []entry.Summary `json:"items"`
	Pagination Pagination      `json:"pagination"`
	Sort       string          `json:"sort"`
}

// ListEntries returns entry summaries, most recently updated first.
func (c *Coordinator) ListEntries(ctx context.Context, input ListInput) (*ListOutput, error) {
	limit, offset := c.bounds(input.Limit, input.Offset)

	items, total, err := c.index.ListEntries(ctx, c.opts.PreviewChars, limit, offset)
	if err != nil {
		return nil, wrapOp("list_entries", err)
	}

	return &ListOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		Sort: "updated_at_desc",
	}, nil
}

// SearchInput contains parameters for SearchEntries.
type SearchInput struct {
	Query  string // required
	Limit  int
	Offset int
}

// SearchResultItem is a summary with a match snippet.
type SearchResultItem struct {
	entry.Summary
	// Snippet is HTML-safe: entry content is escaped; only <b>...</b>
	// highlight tags are present.
	Snippet string `json:"snippet"`
}

// SearchOutput contains the result of SearchEntries.
type SearchOutput struct {
	Items      []SearchResultItem `json:"items"`
	Pagination Pagination         `json:"pagination"`
	Sort       string             `json:"sort"`
}

// SearchEntries finds entries whose content contains the query, ignoring case.
func (c *Coordinator) SearchEntries(ctx context.Context, input SearchInput) (*SearchOutput, error) {
	const op = "search_entries"

	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, errors.NewInvalidRequest("query is required").WithOp(op)
	}
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("query exceeds maximum length of %d characters", MaxQueryLength)).WithOp(op)
	}

	limit, offset := c.bounds(input.Limit, input.Offset)

	results, total, err := c.index.SearchEntries(ctx, query, c.opts.PreviewChars, limit, offset)
	if err != nil {
		return nil, wrapOp(op, err)
	}

	items := make([]SearchResultItem, len(results))
	for i, r := range results {
		items[i] = SearchResultItem{
			Summary: r.Summary,
			Snippet: truncateSnippet(highlight(r.Snippet, query), MaxSnippetChars),
		}
	}

	return &SearchOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		Sort: "updated_at_desc",
	}, nil
}

func (c *Coordinator) bounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = c.opts.ListLimitDefault
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return limit, max(offset, 0)
}

// highlight HTML-escapes text and wraps each case-insensitive occurrence of
// query in <b> tags. Matching uses the same ASCII-only folding as the index
// search.
func highlight(text, query string) string {
	lowerText := asciiLower(text)
	lowerQuery := asciiLower(query)

	var b strings.Builder
	rest := 0
	for {
		i := strings.Index(lowerText[rest:], lowerQuery)
		if i < 0 {
			break
		}
		start := rest + i
		end := start + len(lowerQuery)
		b.WriteString(html.EscapeString(text[rest:start]))
		b.WriteString("<b>")
		b.WriteString(html.EscapeString(text[start:end]))
		b.WriteString("</b>")
		rest = end
	}
	b.WriteString(html.EscapeString(text[rest:]))
	return b.String()
}

// asciiLower lowercases ASCII letters only, keeping byte offsets aligned with
// the input.
func asciiLower(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}

// truncateSnippet truncates a snippet to approximately maxChars while:
// 1. Preserving valid UTF-8 (never splits multi-byte runes)
// 2. Preserving markup integrity (closes any open <b> tags)
// 3. Preferring word boundaries when possible
func truncateSnippet(s string, maxChars int) string {
	if maxChars <= 0 {
		return "..."
	}
	if len(s) <= maxChars {
		return s
	}

	truncateAt := maxChars
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}
	if truncateAt == 0 {
		return "..."
	}

	truncated := s[:truncateAt]

	// Trim any partial tag or entity suffix.
	if lastLT := strings.LastIndex(truncated, "<"); lastLT != -1 && !strings.Contains(truncated[lastLT:], ">") {
		truncated = truncated[:lastLT]
	}
	if lastAmp := strings.LastIndex(truncated, "&"); lastAmp != -1 && !strings.Contains(truncated[lastAmp:], ";") {
		truncated = truncated[:lastAmp]
	}

	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > truncateAt/2 {
		truncated = truncated[:lastSpace]
	}

	for range strings.Count(truncated, "<b>") - strings.Count(truncated, "</b>") {
		truncated += "</b>"
	}

	return truncated + "..."
}
