package journal

import (
	"context"
	"strings"

	"github.com/hpungsan/momentum/internal/db"
	"github.com/hpungsan/momentum/internal/entry"
	"github.com/hpungsan/momentum/internal/errors"
	"github.com/hpungsan/momentum/internal/version"
)

// GetVersions returns an entry's history, newest first. An unknown or deleted
// entry yields an empty slice.
func (c *Coordinator) GetVersions(ctx context.Context, entryID string) ([]entry.Version, error) {
	versions, err := c.index.GetVersionsForEntry(ctx, strings.TrimSpace(entryID), db.OrderDesc)
	if err != nil {
		return nil, wrapOp("get_versions", err)
	}
	return versions, nil
}

// GetVersion returns one version. Returns NOT_FOUND if absent.
func (c *Coordinator) GetVersion(ctx context.Context, versionID string) (*entry.Version, error) {
	versionID = strings.TrimSpace(versionID)
	if versionID == "" {
		return nil, errors.NewInvalidRequest("version id is required")
	}
	v, err := c.index.GetVersion(ctx, versionID)
	if err != nil {
		return nil, wrapOp("get_version", err)
	}
	return v, nil
}

// GetVersionChanges returns the change list recorded with a version.
func (c *Coordinator) GetVersionChanges(ctx context.Context, versionID string) ([]version.Change, error) {
	v, err := c.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	changes, err := c.index.GetVersionChanges(ctx, v.ID)
	if err != nil {
		return nil, wrapOp("get_version_changes", err)
	}
	return changes, nil
}

// RestoreVersion makes a version's snapshot the entry's current content.
// History is never rewritten: the restore appends a new update version.
func (c *Coordinator) RestoreVersion(ctx context.Context, versionID string) (*UpdateOutput, error) {
	const op = "restore_version"

	v, err := c.GetVersion(ctx, versionID)
	if err != nil {
		return nil, wrapOp(op, err)
	}
	out, err := c.update(ctx, op, v.EntryID, v.Content)
	if err != nil {
		return nil, err
	}
	c.log.Info(ctx, "version restored", "entry_id", v.EntryID, "restored_version_id", v.ID, "version_id", out.VersionID)
	return out, nil
}
