package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/momentum/internal/entry"
	"github.com/hpungsan/momentum/internal/errors"
)

// MaxSearchQueryChars bounds search input.
const MaxSearchQueryChars = 1000

// snippetRadius is how many characters of context a search snippet keeps
// before the first match.
const snippetRadius = 60

// SearchResult is a summary plus a raw window of content around the first match.
type SearchResult struct {
	Summary entry.Summary
	Snippet string
}

const summaryColumns = `
	e.id, e.file_path, substr(e.content, 1, ?), e.created_at, e.updated_at,
	COALESCE(m.word_count, 0), m.tags_json, COALESCE(m.read_time, 0)
`

// ListEntries returns entry summaries, most recently updated first, and the
// total entry count.
func (s *IndexStore) ListEntries(ctx context.Context, previewChars, limit, offset int) ([]entry.Summary, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM journal_entries`).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+summaryColumns+`
		FROM journal_entries e
		LEFT JOIN entry_metadata m ON m.entry_id = e.id
		ORDER BY e.updated_at DESC, e.id DESC
		LIMIT ? OFFSET ?
	`, previewLen(previewChars), limit, offset)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	summaries := []entry.Summary{}
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, 0, err
		}
		summaries = append(summaries, *sum)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return summaries, total, nil
}

// SearchEntries returns summaries of entries whose content contains query,
// ignoring case. The match is a literal substring: % and _ have no special
// meaning. SQLite's lower() folds ASCII letters only.
func (s *IndexStore) SearchEntries(ctx context.Context, query string, previewChars, limit, offset int) ([]SearchResult, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM journal_entries
		WHERE instr(lower(content), lower(?)) > 0
	`, query).Scan(&total)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+summaryColumns+`,
			substr(e.content, max(1, instr(lower(e.content), lower(?)) - ?), ?)
		FROM journal_entries e
		LEFT JOIN entry_metadata m ON m.entry_id = e.id
		WHERE instr(lower(e.content), lower(?)) > 0
		ORDER BY e.updated_at DESC, e.id DESC
		LIMIT ? OFFSET ?
	`, previewLen(previewChars), query, snippetRadius, snippetRadius*5, query, limit, offset)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	results := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		sum, err := scanSummary(rows, &r.Snippet)
		if err != nil {
			return nil, 0, err
		}
		r.Summary = *sum
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return results, total, nil
}

func scanSummary(rows *sql.Rows, extra ...any) (*entry.Summary, error) {
	var s entry.Summary
	var createdAt, updatedAt int64
	var tagsJSON sql.NullString
	dest := []any{
		&s.ID, &s.FilePath, &s.ContentPreview, &createdAt, &updatedAt,
		&s.WordCount, &tagsJSON, &s.ReadTime,
	}
	if err := rows.Scan(append(dest, extra...)...); err != nil {
		return nil, errors.NewInternal(err)
	}

	tags, err := unmarshalTags(tagsJSON)
	if err != nil {
		return nil, err
	}
	s.Tags = tags
	s.Title = entry.ExtractTitle(s.ContentPreview)
	s.CreatedAt = fromNanos(createdAt)
	s.UpdatedAt = fromNanos(updatedAt)
	return &s, nil
}

func previewLen(n int) int {
	if n <= 0 {
		return entry.DefaultPreviewChars
	}
	return n
}
