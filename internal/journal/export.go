package journal

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/hpungsan/momentum/internal/entry"
	"github.com/hpungsan/momentum/internal/errors"
)

// ExportSchemaVersion is written in the header line of every export.
const ExportSchemaVersion = "1.0"

// Record kinds in an export file.
const (
	RecordEntry   = "entry"
	RecordVersion = "version"
)

// ExportRecord is one line of a JSONL export: the header, an entry, or a
// version snapshot.
type ExportRecord struct {
	// Header fields (only present in the first line)
	MomentumExport bool   `json:"_momentum_export,omitempty"`
	SchemaVersion  string `json:"schema_version,omitempty"`
	ExportedAt     int64  `json:"exported_at,omitempty"`

	Kind    string         `json:"kind,omitempty"`
	Entry   *entry.Entry   `json:"entry,omitempty"`
	Version *entry.Version `json:"version,omitempty"`
}

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path string // optional, default: <base>/exports/journal-<timestamp>.jsonl
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Entries    int    `json:"entries"`
	Versions   int    `json:"versions"`
	ExportedAt int64  `json:"exported_at"`
}

// Export writes every entry and its full version history to a JSONL file.
// Entries come first, then versions grouped by entry, oldest first.
func (c *Coordinator) Export(ctx context.Context, input ExportInput) (*ExportOutput, error) {
	const op = "export"

	now := c.now()
	exportPath := input.Path
	if exportPath == "" {
		exportPath = filepath.Join(c.ExportsDir(), fmt.Sprintf("journal-%s.jsonl", now.Format("2006-01-02T150405")))
	}

	if err := ValidatePath(exportPath, PathCheckWrite, c.opts.Config, c.ExportsDir()); err != nil {
		return nil, wrapOp(op, err)
	}
	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return nil, wrapOp(op, fmt.Errorf("failed to create export directory: %w", err))
	}

	// Write to temp file first, then atomic rename to preserve existing file on failure
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, wrapOp(op, fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openNoFollow(tempPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return nil, wrapOp(op, fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	out := &ExportOutput{Path: exportPath, ExportedAt: now.Unix()}
	if err := writeRecord(file, ExportRecord{
		MomentumExport: true,
		SchemaVersion:  ExportSchemaVersion,
		ExportedAt:     out.ExportedAt,
	}); err != nil {
		return nil, wrapOp(op, err)
	}

	err = c.index.StreamEntries(ctx, func(e *entry.Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		out.Entries++
		return writeRecord(file, ExportRecord{Kind: RecordEntry, Entry: e})
	})
	if err != nil {
		return nil, wrapOp(op, err)
	}

	err = c.index.StreamVersions(ctx, func(v *entry.Version) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		out.Versions++
		return writeRecord(file, ExportRecord{Kind: RecordVersion, Version: v})
	})
	if err != nil {
		return nil, wrapOp(op, err)
	}

	if err := file.Sync(); err != nil {
		return nil, wrapOp(op, err)
	}
	if err := file.Close(); err != nil {
		return nil, wrapOp(op, fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlinked destination.
	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, wrapOp(op, fmt.Errorf("export path is a symlink"))
	}

	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file").WithOp(op)
			}
		}
		return nil, wrapOp(op, fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	c.log.Info(ctx, "journal exported", "path", exportPath, "entries", out.Entries, "versions", out.Versions)
	return out, nil
}

func writeRecord(w io.Writer, r ExportRecord) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
