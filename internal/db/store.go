package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/momentum/internal/entry"
	"github.com/hpungsan/momentum/internal/errors"
)

// IndexStore is the authoritative relational index of entries, versions and
// metadata. Mutations run through Atomic so each unit of work commits fully
// or not at all.
type IndexStore struct {
	db *sql.DB
}

// NewIndexStore wraps an initialized database (see Init).
func NewIndexStore(db *sql.DB) *IndexStore {
	return &IndexStore{db: db}
}

// DB returns the underlying database handle.
func (s *IndexStore) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *IndexStore) Close() error {
	return s.db.Close()
}

// Tx is a transactional handle passed to Atomic callbacks.
type Tx struct {
	q DBTX
}

// Atomic runs fn inside one transaction named op.
//
// Failures to begin or commit become TRANSACTION errors. NOT_FOUND, CONFLICT
// and INVALID_REQUEST errors returned by fn are passed through unchanged after
// rollback; anything else returned by fn is wrapped as a TRANSACTION error.
// Either way nothing is persisted.
func (s *IndexStore) Atomic(ctx context.Context, op string, fn func(tx *Tx) error) error {
	var fnErr error
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, q DBTX) error {
		fnErr = fn(&Tx{q: q})
		return fnErr
	})
	if err == nil {
		return nil
	}

	if fnErr != nil {
		if jErr, ok := errors.As(fnErr); ok {
			switch jErr.Code {
			case errors.ErrNotFound, errors.ErrConflict, errors.ErrInvalidRequest:
				return fnErr
			case errors.ErrTransaction:
				return jErr.WithOp(op)
			}
		}
		return errors.NewTransaction(op, fnErr)
	}
	return errors.NewTransaction(op, err)
}

// InsertEntry inserts e in its own transaction.
func (s *IndexStore) InsertEntry(ctx context.Context, e *entry.Entry) error {
	return s.Atomic(ctx, "insert_entry", func(tx *Tx) error {
		return tx.InsertEntry(ctx, e)
	})
}

// UpdateEntryContent replaces an entry's content in its own transaction.
func (s *IndexStore) UpdateEntryContent(ctx context.Context, id, content string, updatedAt time.Time) error {
	return s.Atomic(ctx, "update_entry_content", func(tx *Tx) error {
		return tx.UpdateEntryContent(ctx, id, content, updatedAt)
	})
}

// AppendVersion records a snapshot in its own transaction.
func (s *IndexStore) AppendVersion(ctx context.Context, nv NewVersion) (*entry.Version, error) {
	var v *entry.Version
	err := s.Atomic(ctx, "append_version", func(tx *Tx) error {
		var err error
		v, err = tx.AppendVersion(ctx, nv)
		return err
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// UpsertMetadata writes metadata in its own transaction.
func (s *IndexStore) UpsertMetadata(ctx context.Context, m entry.Metadata) error {
	return s.Atomic(ctx, "upsert_metadata", func(tx *Tx) error {
		return tx.UpsertMetadata(ctx, m)
	})
}

// DeleteEntryCascade removes an entry and everything derived from it in its
// own transaction.
func (s *IndexStore) DeleteEntryCascade(ctx context.Context, id string) error {
	return s.Atomic(ctx, "delete_entry", func(tx *Tx) error {
		return tx.DeleteEntryCascade(ctx, id)
	})
}
