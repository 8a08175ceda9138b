package journal

import (
	"context"
	"strings"

	"github.com/hpungsan/momentum/internal/db"
	"github.com/hpungsan/momentum/internal/entry"
	"github.com/hpungsan/momentum/internal/errors"
	"github.com/hpungsan/momentum/internal/version"
)

// CreateOutput contains the result of CreateEntry.
type CreateOutput struct {
	ID       string       `json:"id"`
	FilePath string       `json:"file_path"`
	Mirror   MirrorStatus `json:"mirror"`
}

// CreateEntry stores new content as an entry with its create version and
// metadata in one transaction, then mirrors it.
func (c *Coordinator) CreateEntry(ctx context.Context, body string) (*CreateOutput, error) {
	const op = "create_entry"

	now := c.now()
	id := entry.NewID()
	e := &entry.Entry{
		ID:        id,
		Content:   body,
		FilePath:  entry.FilePathFor(id),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := c.index.Atomic(ctx, op, func(tx *db.Tx) error {
		if err := tx.InsertEntry(ctx, e); err != nil {
			return err
		}
		if _, err := tx.AppendVersion(ctx, db.NewVersion{
			EntryID:    id,
			Content:    body,
			ChangeType: entry.ChangeCreate,
			Changes:    version.Diff("", body),
			At:         now,
		}); err != nil {
			return err
		}
		return tx.UpsertMetadata(ctx, entry.DeriveMetadata(id, body, now))
	})
	if err != nil {
		return nil, wrapOp(op, err)
	}

	c.log.Info(ctx, "entry created", "entry_id", id, "path", e.FilePath)

	return &CreateOutput{
		ID:       id,
		FilePath: e.FilePath,
		Mirror:   c.writeMirror(ctx, op, id),
	}, nil
}

// GetEntry returns an entry from the index. Returns NOT_FOUND if absent.
func (c *Coordinator) GetEntry(ctx context.Context, id string) (*entry.Entry, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	e, err := c.index.GetEntry(ctx, id)
	if err != nil {
		return nil, wrapOp("get_entry", err)
	}
	return e, nil
}

// OpenOutput contains the result of OpenEntry.
type OpenOutput struct {
	Entry    *entry.Entry    `json:"entry"`
	Metadata *entry.Metadata `json:"metadata,omitempty"`
	Title    string          `json:"title"`

	// FromMirror is true when the body was read from the content mirror
	// because the index copy was lost.
	FromMirror bool `json:"from_mirror,omitempty"`
}

// OpenEntry reads an entry for display and records the access time. When the
// index body is empty but the latest version is not, the body is read from
// the content mirror instead.
func (c *Coordinator) OpenEntry(ctx context.Context, id string) (*OpenOutput, error) {
	const op = "open_entry"

	e, err := c.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	out := &OpenOutput{Entry: e}
	if e.Content == "" && e.FilePath != "" {
		lost, err := c.bodyLost(ctx, e.ID)
		if err != nil {
			return nil, wrapOp(op, err)
		}
		if lost {
			data, err := c.content.Read(ctx, e.FilePath)
			switch {
			case err == nil && len(data) > 0:
				e.Content = string(data)
				out.FromMirror = true
			case err != nil && !errors.Is(err, errors.ErrNotFound):
				c.log.Warn(ctx, "mirror read failed", "op", op, "entry_id", e.ID, "path", e.FilePath, "error", err)
			}
		}
	}
	out.Title = entry.ExtractTitle(e.Content)

	if err := c.index.TouchAccessed(ctx, e.ID, c.now()); err != nil && !errors.Is(err, errors.ErrNotFound) {
		return nil, wrapOp(op, err)
	}

	meta, err := c.index.GetMetadata(ctx, e.ID)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return nil, wrapOp(op, err)
	}
	out.Metadata = meta

	return out, nil
}

// bodyLost reports whether an entry's empty index body disagrees with its
// latest version. An entry whose latest snapshot is empty was emptied on
// purpose and is served as empty.
func (c *Coordinator) bodyLost(ctx context.Context, id string) (bool, error) {
	v, err := c.index.LatestVersion(ctx, id)
	if errors.Is(err, errors.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return v.Content != "", nil
}

// UpdateOutput contains the result of UpdateEntry and RestoreVersion.
type UpdateOutput struct {
	ID        string       `json:"id"`
	VersionID string       `json:"version_id"`
	Mirror    MirrorStatus `json:"mirror"`
}

// UpdateEntry replaces an entry's content, appends an update version and
// recomputes metadata in one transaction, then mirrors the new content to the
// entry's existing file path.
func (c *Coordinator) UpdateEntry(ctx context.Context, id, body string) (*UpdateOutput, error) {
	return c.update(ctx, "update_entry", id, body)
}

func (c *Coordinator) update(ctx context.Context, op, id, body string) (*UpdateOutput, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required").WithOp(op)
	}

	var v *entry.Version
	err := c.index.Atomic(ctx, op, func(tx *db.Tx) error {
		// Read inside the transaction so the diff is taken against the
		// content this write replaces.
		current, err := tx.GetEntry(ctx, id)
		if err != nil {
			return err
		}

		changes := version.Diff(current.Content, body)
		summary := version.Summarize(changes)
		v, err = tx.AppendVersion(ctx, db.NewVersion{
			EntryID:    id,
			Content:    body,
			ChangeType: entry.ChangeUpdate,
			Diff:       &summary,
			Changes:    changes,
			At:         c.now(),
		})
		if err != nil {
			return err
		}
		if err := tx.UpdateEntryContent(ctx, id, body, v.Timestamp); err != nil {
			return err
		}
		return tx.UpsertMetadata(ctx, entry.DeriveMetadata(id, body, v.Timestamp))
	})
	if err != nil {
		return nil, wrapOp(op, err)
	}

	c.log.Info(ctx, "entry updated", "op", op, "entry_id", id, "version_id", v.ID)

	return &UpdateOutput{
		ID:        id,
		VersionID: v.ID,
		Mirror:    c.writeMirror(ctx, op, id),
	}, nil
}

// DeleteOutput contains the result of DeleteEntry.
type DeleteOutput struct {
	Deleted bool         `json:"deleted"`
	ID      string       `json:"id"`
	Mirror  MirrorStatus `json:"mirror"`
}

// DeleteEntry removes an entry, its versions and metadata, then its mirror
// file. Returns NOT_FOUND if the entry does not exist.
func (c *Coordinator) DeleteEntry(ctx context.Context, id string) (*DeleteOutput, error) {
	const op = "delete_entry"

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required").WithOp(op)
	}

	var filePath string
	err := c.index.Atomic(ctx, op, func(tx *db.Tx) error {
		e, err := tx.GetEntry(ctx, id)
		if err != nil {
			return err
		}
		filePath = e.FilePath
		return tx.DeleteEntryCascade(ctx, id)
	})
	if err != nil {
		return nil, wrapOp(op, err)
	}

	c.log.Info(ctx, "entry deleted", "entry_id", id)

	return &DeleteOutput{
		Deleted: true,
		ID:      id,
		Mirror:  c.deleteMirror(ctx, op, id, filePath),
	}, nil
}

// ExtractTitle derives a display title from markdown content.
func ExtractTitle(content string) string {
	return entry.ExtractTitle(content)
}
