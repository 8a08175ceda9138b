// Package journal orchestrates the index, version history and content mirror
// behind every journal operation.
//
// Each write commits one index transaction first and then mirrors the entry
// to the content store. The index is authoritative: a failed mirror write is
// logged and reported in the output, never rolled back.
package journal

import (
	"context"
	"path/filepath"
	"time"

	"github.com/hpungsan/momentum/internal/config"
	"github.com/hpungsan/momentum/internal/content"
	"github.com/hpungsan/momentum/internal/db"
	"github.com/hpungsan/momentum/internal/entry"
	"github.com/hpungsan/momentum/internal/errors"
	"github.com/hpungsan/momentum/internal/logging"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Options tunes a Coordinator. Zero values fall back to defaults, except
// MirrorRetries where zero means a single attempt.
type Options struct {
	PreviewChars      int
	ListLimitDefault  int
	MirrorRetries     int
	MirrorRetryDelay  time.Duration
	RepairConcurrency int

	// Config supplies import/export path rules. Nil uses defaults.
	Config *config.Config

	// BaseDir holds the exports directory (default ~/.momentum).
	BaseDir string

	Logger logging.Logger

	// OnMirrorFailure is called after a mirror write gives up.
	OnMirrorFailure func(*errors.Error)

	// Now is the clock (default time.Now).
	Now func() time.Time
}

// OptionsFromConfig maps configuration onto coordinator options.
func OptionsFromConfig(cfg *config.Config, baseDir string, logger logging.Logger) Options {
	return Options{
		BaseDir:           baseDir,
		PreviewChars:      cfg.PreviewChars,
		ListLimitDefault:  cfg.ListLimitDefault,
		MirrorRetries:     cfg.MirrorRetries,
		MirrorRetryDelay:  time.Duration(cfg.MirrorRetryDelayMS) * time.Millisecond,
		RepairConcurrency: cfg.RepairConcurrency,
		Config:            cfg,
		Logger:            logger,
	}
}

// MirrorStatus reports whether the content mirror matches the committed write.
type MirrorStatus struct {
	Synced bool   `json:"synced"`
	Error  string `json:"error,omitempty"`
}

// Coordinator is the single entry point for journal storage operations.
type Coordinator struct {
	index   *db.IndexStore
	content content.Store
	opts    Options
	log     logging.Logger

	mirrorLocks entryLocks
}

// New builds a Coordinator over an index store and a content store.
func New(index *db.IndexStore, store content.Store, opts Options) *Coordinator {
	if opts.PreviewChars <= 0 {
		opts.PreviewChars = entry.DefaultPreviewChars
	}
	if opts.ListLimitDefault <= 0 {
		opts.ListLimitDefault = DefaultListLimit
	}
	if opts.MirrorRetries < 0 {
		opts.MirrorRetries = 0
	}
	if opts.RepairConcurrency <= 0 {
		opts.RepairConcurrency = 4
	}
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.BaseDir == "" {
		if dir, err := DefaultBaseDir(); err == nil {
			opts.BaseDir = dir
		}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		index:   index,
		content: store,
		opts:    opts,
		log:     opts.Logger,
	}
}

// Index returns the underlying index store.
func (c *Coordinator) Index() *db.IndexStore {
	return c.index
}

// Close closes the index database.
func (c *Coordinator) Close() error {
	return c.index.Close()
}

// ExportsDir is the default directory for export files.
func (c *Coordinator) ExportsDir() string {
	return filepath.Join(c.opts.BaseDir, "exports")
}

func (c *Coordinator) now() time.Time {
	return c.opts.Now().UTC()
}

// writeMirror copies the entry's committed content to the mirror, retrying a
// bounded number of times. It runs detached from ctx cancellation: the index
// write has already committed.
//
// Writes for one entry are serialized and always mirror the index as it is
// when the lock is taken, so a slow write can never overwrite a newer one.
func (c *Coordinator) writeMirror(ctx context.Context, op, entryID string) MirrorStatus {
	ctx = context.WithoutCancel(ctx)

	unlock := c.mirrorLocks.lock(entryID)
	defer unlock()

	e, err := c.index.GetEntry(ctx, entryID)
	if errors.Is(err, errors.ErrNotFound) {
		// Deleted since the commit; the delete removed the mirror.
		return MirrorStatus{Synced: true}
	}
	if err != nil {
		return c.mirrorFailed(ctx, op, entryID, entry.FilePathFor(entryID), err)
	}

	for attempt := 0; attempt <= c.opts.MirrorRetries; attempt++ {
		if attempt > 0 && c.opts.MirrorRetryDelay > 0 {
			time.Sleep(c.opts.MirrorRetryDelay)
		}
		if err = c.content.Write(ctx, e.FilePath, []byte(e.Content)); err == nil {
			return MirrorStatus{Synced: true}
		}
	}
	return c.mirrorFailed(ctx, op, entryID, e.FilePath, err)
}

// deleteMirror removes an entry's mirror under the entry's mirror lock.
func (c *Coordinator) deleteMirror(ctx context.Context, op, entryID, path string) MirrorStatus {
	ctx = context.WithoutCancel(ctx)

	unlock := c.mirrorLocks.lock(entryID)
	defer unlock()

	if err := c.content.Delete(ctx, path); err != nil {
		return c.mirrorFailed(ctx, op, entryID, path, err)
	}
	return MirrorStatus{Synced: true}
}

// mirrorFailed logs a mirror error, reports it to OnMirrorFailure and
// returns the unsynced status.
func (c *Coordinator) mirrorFailed(ctx context.Context, op, entryID, path string, err error) MirrorStatus {
	mErr := errors.NewMirrorWrite(op, path, err)
	mErr.Details["entry_id"] = entryID
	c.log.Warn(ctx, "mirror sync failed", "op", op, "entry_id", entryID, "path", path, "error", err)
	if c.opts.OnMirrorFailure != nil {
		c.opts.OnMirrorFailure(mErr)
	}
	return MirrorStatus{Synced: false, Error: mErr.Error()}
}

// wrapOp tags typed errors with the failing operation. Untyped errors become
// INTERNAL errors tagged the same way.
func wrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	if jErr, ok := errors.As(err); ok {
		return jErr.WithOp(op)
	}
	return errors.NewInternal(err).WithOp(op)
}
