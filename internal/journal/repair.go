package journal

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/momentum/internal/db"
	"github.com/hpungsan/momentum/internal/entry"
	"github.com/hpungsan/momentum/internal/errors"
	"github.com/hpungsan/momentum/internal/version"
)

// RepairFailure describes one mirror that could not be rewritten.
type RepairFailure struct {
	EntryID string `json:"entry_id"`
	Path    string `json:"path"`
	Error   string `json:"error"`
}

// RepairOutput contains the result of RepairMirrors.
type RepairOutput struct {
	Checked   int             `json:"checked"`
	Rewritten int             `json:"rewritten"`
	Failed    int             `json:"failed"`
	Failures  []RepairFailure `json:"failures,omitempty"`
}

// RepairMirrors compares every entry's mirror with the index and rewrites
// missing or stale mirrors. This is the out-of-band fix for mirror write
// failures reported by create/update.
func (c *Coordinator) RepairMirrors(ctx context.Context) (*RepairOutput, error) {
	const op = "repair_mirrors"

	var (
		mu  sync.Mutex
		out RepairOutput
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.RepairConcurrency)

	streamErr := c.index.StreamEntries(ctx, func(e *entry.Entry) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		g.Go(func() error {
			rewritten, err := c.repairOne(gctx, e)

			mu.Lock()
			defer mu.Unlock()
			out.Checked++
			if err != nil {
				out.Failed++
				out.Failures = append(out.Failures, RepairFailure{EntryID: e.ID, Path: e.FilePath, Error: err.Error()})
				c.log.Error(gctx, "mirror repair failed", "op", op, "entry_id", e.ID, "path", e.FilePath, "error", err)
				return nil
			}
			if rewritten {
				out.Rewritten++
			}
			return nil
		})
		return nil
	})

	waitErr := g.Wait()
	if streamErr != nil {
		return nil, wrapOp(op, streamErr)
	}
	if waitErr != nil {
		return nil, wrapOp(op, waitErr)
	}

	c.log.Info(ctx, "mirror repair finished", "checked", out.Checked, "rewritten", out.Rewritten, "failed", out.Failed)
	return &out, nil
}

// repairOne holds the entry's mirror lock and compares against the index as
// it is now, not the streamed copy, which a concurrent update may have
// replaced.
func (c *Coordinator) repairOne(ctx context.Context, streamed *entry.Entry) (bool, error) {
	unlock := c.mirrorLocks.lock(streamed.ID)
	defer unlock()

	e, err := c.index.GetEntry(ctx, streamed.ID)
	if errors.Is(err, errors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	data, err := c.content.Read(ctx, e.FilePath)
	if err == nil && bytes.Equal(data, []byte(e.Content)) {
		return false, nil
	}
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		c.log.Warn(ctx, "mirror read failed, rewriting", "entry_id", e.ID, "path", e.FilePath, "error", err)
	}
	if err := c.content.Write(ctx, e.FilePath, []byte(e.Content)); err != nil {
		return false, err
	}
	return true, nil
}

// VerifyOutput reports the consistency checks for one entry.
type VerifyOutput struct {
	EntryID      string   `json:"entry_id"`
	Versions     int      `json:"versions"`
	MirrorSynced bool     `json:"mirror_synced"`
	OK           bool     `json:"ok"`
	Problems     []string `json:"problems,omitempty"`
}

// Verify checks an entry's history and mirror:
// exactly one create version and it is the earliest; timestamps strictly
// increase; the latest snapshot equals the entry content; replaying the
// recorded change lists reproduces every snapshot; the mirror matches.
func (c *Coordinator) Verify(ctx context.Context, entryID string) (*VerifyOutput, error) {
	const op = "verify_entry"

	e, err := c.GetEntry(ctx, entryID)
	if err != nil {
		return nil, wrapOp(op, err)
	}
	versions, err := c.index.GetVersionsForEntry(ctx, e.ID, db.OrderAsc)
	if err != nil {
		return nil, wrapOp(op, err)
	}

	out := &VerifyOutput{EntryID: e.ID, Versions: len(versions)}
	problem := func(format string, args ...any) {
		out.Problems = append(out.Problems, fmt.Sprintf(format, args...))
	}

	creates := 0
	steps := make([]version.Step, 0, len(versions))
	for i, v := range versions {
		if v.ChangeType == entry.ChangeCreate {
			creates++
			if i != 0 {
				problem("create version %s is not the earliest", v.ID)
			}
		}
		if i > 0 && !v.Timestamp.After(versions[i-1].Timestamp) {
			problem("version %s timestamp does not increase", v.ID)
		}
		changes, err := c.index.GetVersionChanges(ctx, v.ID)
		if err != nil {
			return nil, wrapOp(op, err)
		}
		steps = append(steps, version.Step{VersionID: v.ID, Changes: changes, Snapshot: v.Content})
	}
	if creates != 1 {
		problem("expected exactly one create version, found %d", creates)
	}
	if len(versions) > 0 && versions[len(versions)-1].Content != e.Content {
		problem("latest version does not match entry content")
	}
	if _, err := version.Replay(steps); err != nil {
		problem("%v", err)
	}

	data, err := c.content.Read(ctx, e.FilePath)
	switch {
	case err == nil:
		out.MirrorSynced = bytes.Equal(data, []byte(e.Content))
		if !out.MirrorSynced {
			problem("mirror %s is stale", e.FilePath)
		}
	case errors.Is(err, errors.ErrNotFound):
		problem("mirror %s is missing", e.FilePath)
	default:
		problem("mirror %s unreadable: %v", e.FilePath, err)
	}

	out.OK = len(out.Problems) == 0
	return out, nil
}
