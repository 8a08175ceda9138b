package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/momentum/internal/entry"
	"github.com/hpungsan/momentum/internal/errors"
	"github.com/hpungsan/momentum/internal/version"
)

// VersionOrder selects the sort direction for an entry's version history.
type VersionOrder string

const (
	OrderDesc VersionOrder = "desc" // newest first, for listing
	OrderAsc  VersionOrder = "asc"  // oldest first, for replay
)

// NewVersion contains the fields for AppendVersion.
type NewVersion struct {
	EntryID    string
	Content    string
	ChangeType entry.ChangeType
	Diff       *string
	Changes    []version.Change

	// At is the requested timestamp (default: now). The stored timestamp is
	// bumped past the entry's latest version if needed.
	At time.Time
}

// InsertEntry stores a new entry. Returns CONFLICT if the id exists.
func (t *Tx) InsertEntry(ctx context.Context, e *entry.Entry) error {
	return insertEntry(ctx, t.q, e)
}

// GetEntry reads an entry inside the transaction.
func (t *Tx) GetEntry(ctx context.Context, id string) (*entry.Entry, error) {
	return getEntry(ctx, t.q, id)
}

// UpdateEntryContent replaces an entry's content. Returns NOT_FOUND if absent.
func (t *Tx) UpdateEntryContent(ctx context.Context, id, content string, updatedAt time.Time) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE journal_entries SET content = ?, updated_at = ? WHERE id = ?`,
		content, updatedAt.UnixNano(), id)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound("entry", id)
	}
	return nil
}

// AppendVersion records a new snapshot in the entry's history and returns it.
// Returns NOT_FOUND if the entry does not exist and CONFLICT for a second
// create version. The timestamp is strictly greater than every earlier version
// of the same entry.
func (t *Tx) AppendVersion(ctx context.Context, nv NewVersion) (*entry.Version, error) {
	if !nv.ChangeType.Valid() {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid change type %q", nv.ChangeType))
	}
	if err := entryExists(ctx, t.q, nv.EntryID); err != nil {
		return nil, err
	}

	var count int
	var last int64
	err := t.q.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(MAX(timestamp), 0) FROM entry_versions WHERE entry_id = ?`,
		nv.EntryID).Scan(&count, &last)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if nv.ChangeType == entry.ChangeCreate && count > 0 {
		return nil, errors.NewConflict("create version for entry", nv.EntryID)
	}

	at := nv.At
	if at.IsZero() {
		at = time.Now()
	}
	ts := at.UnixNano()
	if count > 0 && ts <= last {
		ts = last + 1
	}

	v := &entry.Version{
		ID:         entry.NewID(),
		EntryID:    nv.EntryID,
		Content:    nv.Content,
		ChangeType: nv.ChangeType,
		Diff:       nv.Diff,
		Timestamp:  fromNanos(ts),
	}
	if err := insertVersion(ctx, t.q, v, nv.Changes); err != nil {
		return nil, err
	}
	return v, nil
}

// InsertVersion stores a version verbatim, preserving its id and timestamp.
// Used by import; regular writes go through AppendVersion.
func (t *Tx) InsertVersion(ctx context.Context, v *entry.Version, changes []version.Change) error {
	if !v.ChangeType.Valid() {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid change type %q", v.ChangeType))
	}
	if err := entryExists(ctx, t.q, v.EntryID); err != nil {
		return err
	}
	return insertVersion(ctx, t.q, v, changes)
}

// UpsertMetadata replaces the entry's derived metadata (last write wins).
func (t *Tx) UpsertMetadata(ctx context.Context, m entry.Metadata) error {
	tagsJSON, err := marshalTags(m.Tags)
	if err != nil {
		return err
	}
	lastAccessed := m.LastAccessed
	if lastAccessed.IsZero() {
		lastAccessed = time.Now()
	}

	_, err = t.q.ExecContext(ctx, `
		INSERT INTO entry_metadata (entry_id, tags_json, word_count, read_time, last_accessed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entry_id) DO UPDATE SET
			tags_json = excluded.tags_json,
			word_count = excluded.word_count,
			read_time = excluded.read_time,
			last_accessed = excluded.last_accessed
	`, m.EntryID, tagsJSON, m.WordCount, m.ReadTime, lastAccessed.UnixNano())
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// DeleteEntryCascade removes an entry and everything that references it:
// version changes, metadata, versions, then the entry row.
// Returns NOT_FOUND if the entry does not exist.
func (t *Tx) DeleteEntryCascade(ctx context.Context, id string) error {
	if err := entryExists(ctx, t.q, id); err != nil {
		return err
	}

	stmts := []string{
		`DELETE FROM version_changes WHERE version_id IN (SELECT id FROM entry_versions WHERE entry_id = ?)`,
		`DELETE FROM entry_metadata WHERE entry_id = ?`,
		`DELETE FROM entry_versions WHERE entry_id = ?`,
		`DELETE FROM journal_entries WHERE id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := t.q.ExecContext(ctx, stmt, id); err != nil {
			return errors.NewInternal(err)
		}
	}
	return nil
}

// GetEntry retrieves an entry by id. Returns NOT_FOUND if absent.
func (s *IndexStore) GetEntry(ctx context.Context, id string) (*entry.Entry, error) {
	return getEntry(ctx, s.db, id)
}

// GetVersion retrieves a version by id. Returns NOT_FOUND if absent.
func (s *IndexStore) GetVersion(ctx context.Context, id string) (*entry.Version, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, entry_id, content, change_type, diff, timestamp
		FROM entry_versions WHERE id = ?
	`, id)
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("version", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return v, nil
}

// LatestVersion returns the newest version of an entry. Returns NOT_FOUND if
// the entry has no history.
func (s *IndexStore) LatestVersion(ctx context.Context, entryID string) (*entry.Version, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, entry_id, content, change_type, diff, timestamp
		FROM entry_versions WHERE entry_id = ?
		ORDER BY timestamp DESC, rowid DESC
		LIMIT 1
	`, entryID)
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("version", entryID)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return v, nil
}

// GetVersionsForEntry returns an entry's history. An unknown entry yields an
// empty slice, not an error.
func (s *IndexStore) GetVersionsForEntry(ctx context.Context, entryID string, order VersionOrder) ([]entry.Version, error) {
	dir := "DESC"
	if order == OrderAsc {
		dir = "ASC"
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entry_id, content, change_type, diff, timestamp
		FROM entry_versions
		WHERE entry_id = ?
		ORDER BY timestamp `+dir+`, rowid `+dir, entryID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	versions := []entry.Version{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		versions = append(versions, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return versions, nil
}

// GetVersionChanges returns the change list recorded with a version, in order.
func (s *IndexStore) GetVersionChanges(ctx context.Context, versionID string) ([]version.Change, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT operation, position, COALESCE(content, ''), length
		FROM version_changes
		WHERE version_id = ?
		ORDER BY seq
	`, versionID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	changes := []version.Change{}
	for rows.Next() {
		var c version.Change
		var op string
		if err := rows.Scan(&op, &c.Position, &c.Content, &c.Length); err != nil {
			return nil, errors.NewInternal(err)
		}
		c.Operation = version.Operation(op)
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return changes, nil
}

// GetMetadata returns an entry's derived metadata. Returns NOT_FOUND if absent.
func (s *IndexStore) GetMetadata(ctx context.Context, entryID string) (*entry.Metadata, error) {
	var m entry.Metadata
	var tagsJSON sql.NullString
	var lastAccessed int64
	err := s.db.QueryRowContext(ctx, `
		SELECT entry_id, tags_json, word_count, read_time, last_accessed
		FROM entry_metadata WHERE entry_id = ?
	`, entryID).Scan(&m.EntryID, &tagsJSON, &m.WordCount, &m.ReadTime, &lastAccessed)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("entry", entryID)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if m.Tags, err = unmarshalTags(tagsJSON); err != nil {
		return nil, err
	}
	m.LastAccessed = fromNanos(lastAccessed)
	return &m, nil
}

// TouchAccessed records an explicit read of an entry.
func (s *IndexStore) TouchAccessed(ctx context.Context, entryID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE entry_metadata SET last_accessed = ? WHERE entry_id = ?`,
		at.UnixNano(), entryID)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound("entry", entryID)
	}
	return nil
}

// StreamEntries calls fn for every entry, oldest first. fn must not use the
// store: the read cursor holds a connection until the stream ends.
func (s *IndexStore) StreamEntries(ctx context.Context, fn func(*entry.Entry) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, file_path, created_at, updated_at
		FROM journal_entries
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return errors.NewInternal(err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// StreamVersions calls fn for every version of every entry, grouped by entry
// and oldest first within each entry. Same connection caveat as StreamEntries.
func (s *IndexStore) StreamVersions(ctx context.Context, fn func(*entry.Version) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id, v.entry_id, v.content, v.change_type, v.diff, v.timestamp
		FROM entry_versions v
		JOIN journal_entries e ON e.id = v.entry_id
		ORDER BY e.created_at ASC, v.entry_id ASC, v.timestamp ASC, v.rowid ASC
	`)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer rows.Close()

	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return errors.NewInternal(err)
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func insertEntry(ctx context.Context, q DBTX, e *entry.Entry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO journal_entries (id, content, file_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, e.ID, e.Content, e.FilePath, e.CreatedAt.UnixNano(), e.UpdatedAt.UnixNano())
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewConflict("entry", e.ID)
		}
		return errors.NewInternal(err)
	}
	return nil
}

func insertVersion(ctx context.Context, q DBTX, v *entry.Version, changes []version.Change) error {
	var diff sql.NullString
	if v.Diff != nil {
		diff = sql.NullString{String: *v.Diff, Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO entry_versions (id, entry_id, content, change_type, diff, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, v.ID, v.EntryID, v.Content, string(v.ChangeType), diff, v.Timestamp.UnixNano())
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewConflict("version", v.ID)
		}
		return errors.NewInternal(err)
	}

	for i, c := range changes {
		_, err := q.ExecContext(ctx, `
			INSERT INTO version_changes (version_id, seq, operation, position, content, length)
			VALUES (?, ?, ?, ?, ?, ?)
		`, v.ID, i, string(c.Operation), c.Position, c.Content, c.Length)
		if err != nil {
			return errors.NewInternal(err)
		}
	}
	return nil
}

func getEntry(ctx context.Context, q DBTX, id string) (*entry.Entry, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, content, file_path, created_at, updated_at
		FROM journal_entries WHERE id = ?
	`, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("entry", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return e, nil
}

func entryExists(ctx context.Context, q DBTX, id string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM journal_entries WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return errors.NewNotFound("entry", id)
	}
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*entry.Entry, error) {
	var e entry.Entry
	var createdAt, updatedAt int64
	if err := row.Scan(&e.ID, &e.Content, &e.FilePath, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	e.CreatedAt = fromNanos(createdAt)
	e.UpdatedAt = fromNanos(updatedAt)
	return &e, nil
}

func scanVersion(row scanner) (*entry.Version, error) {
	var v entry.Version
	var changeType string
	var diff sql.NullString
	var ts int64
	if err := row.Scan(&v.ID, &v.EntryID, &v.Content, &changeType, &diff, &ts); err != nil {
		return nil, err
	}
	v.ChangeType = entry.ChangeType(changeType)
	if diff.Valid {
		d := diff.String
		v.Diff = &d
	}
	v.Timestamp = fromNanos(ts)
	return &v, nil
}

func marshalTags(tags []string) (sql.NullString, error) {
	if len(tags) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return sql.NullString{}, errors.NewInternal(err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalTags(ns sql.NullString) ([]string, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(ns.String), &tags); err != nil {
		return nil, errors.NewInternal(err)
	}
	return tags, nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE or PRIMARY KEY
// constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
