package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/hpungsan/momentum/internal/db"
	"github.com/hpungsan/momentum/internal/entry"
	"github.com/hpungsan/momentum/internal/errors"
	"github.com/hpungsan/momentum/internal/version"
)

// ImportMode controls collision behavior during import.
type ImportMode string

const (
	ImportModeError   ImportMode = "error"   // fail on collision (atomic)
	ImportModeReplace ImportMode = "replace" // overwrite the existing entry and its history
	ImportModeRename  ImportMode = "rename"  // import under fresh ids
)

// maxImportLine bounds one JSONL record. Entries carry full snapshots.
const maxImportLine = 64 << 20

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string     // required
	Mode ImportMode // default: error
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported       int           `json:"imported"`
	Versions       int           `json:"versions"`
	Skipped        int           `json:"skipped"`
	MirrorFailures int           `json:"mirror_failures"`
	Errors         []ImportError `json:"errors"`
}

// ImportError represents an error that occurred during import.
type ImportError struct {
	Line    int    `json:"line,omitempty"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// importGroup is one entry with its history, oldest version first.
type importGroup struct {
	line     int
	entry    entry.Entry
	versions []entry.Version
}

// Import loads entries and their version histories from a JSONL export file.
// Change lists are recomputed from consecutive snapshots. Mirrors are written
// after the index commits.
func (c *Coordinator) Import(ctx context.Context, input ImportInput) (*ImportOutput, error) {
	const op = "import"

	if input.Path == "" {
		return nil, errors.NewInvalidRequest("path is required").WithOp(op)
	}
	if input.Mode == "" {
		input.Mode = ImportModeError
	}
	if input.Mode != ImportModeError && input.Mode != ImportModeReplace && input.Mode != ImportModeRename {
		return nil, errors.NewInvalidRequest("mode must be one of: error, replace, rename").WithOp(op)
	}

	if err := ValidatePath(input.Path, PathCheckRead, c.opts.Config, c.ExportsDir()); err != nil {
		return nil, wrapOp(op, err)
	}

	file, err := openNoFollow(input.Path, os.O_RDONLY, 0)
	if err != nil {
		return nil, wrapOp(op, err)
	}
	defer file.Close()

	groups, parseErrors := parseImportFile(file)

	// For mode:error, fail on any parse errors
	if input.Mode == ImportModeError && len(parseErrors) > 0 {
		return &ImportOutput{Errors: parseErrors}, nil
	}

	var out *ImportOutput
	var imported []*importGroup
	switch input.Mode {
	case ImportModeError:
		out, imported, err = c.importAtomic(ctx, op, groups)
	default:
		out, imported, err = c.importEach(ctx, op, groups, input.Mode, parseErrors)
	}
	if err != nil {
		return nil, wrapOp(op, err)
	}

	for _, g := range imported {
		if status := c.writeMirror(ctx, op, g.entry.ID); !status.Synced {
			out.MirrorFailures++
		}
	}

	c.log.Info(ctx, "journal imported",
		"path", input.Path, "mode", string(input.Mode),
		"imported", out.Imported, "skipped", out.Skipped, "mirror_failures", out.MirrorFailures)
	return out, nil
}

// parseImportFile reads a JSONL export into per-entry groups. Versions whose
// entry is not in the file, and entries with an inconsistent history, are
// reported as errors.
func parseImportFile(r io.Reader) ([]*importGroup, []ImportError) {
	var (
		groups      []*importGroup
		byID        = map[string]*importGroup{}
		orphans     []ImportError
		parseErrors []ImportError
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxImportLine)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var record ExportRecord
		if err := json.Unmarshal(line, &record); err != nil {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "PARSE_ERROR",
				Message: fmt.Sprintf("invalid JSON: %v", err),
			})
			continue
		}

		// Header line
		if record.MomentumExport {
			if record.SchemaVersion != ExportSchemaVersion {
				parseErrors = append(parseErrors, ImportError{
					Line:    lineNum,
					Code:    "UNSUPPORTED_SCHEMA",
					Message: fmt.Sprintf("unsupported schema version %q", record.SchemaVersion),
				})
			}
			continue
		}

		switch {
		case record.Kind == RecordEntry && record.Entry != nil && record.Entry.ID != "":
			e := *record.Entry
			if _, dup := byID[e.ID]; dup {
				parseErrors = append(parseErrors, ImportError{
					Line: lineNum, ID: e.ID, Code: "DUPLICATE_ENTRY",
					Message: fmt.Sprintf("entry %q appears more than once", e.ID),
				})
				continue
			}
			g := &importGroup{line: lineNum, entry: e}
			byID[e.ID] = g
			groups = append(groups, g)

		case record.Kind == RecordVersion && record.Version != nil && record.Version.ID != "":
			v := *record.Version
			g, ok := byID[v.EntryID]
			if !ok {
				orphans = append(orphans, ImportError{
					Line: lineNum, ID: v.ID, Code: "ORPHAN_VERSION",
					Message: fmt.Sprintf("version references unknown entry %q", v.EntryID),
				})
				continue
			}
			g.versions = append(g.versions, v)

		default:
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "INVALID_RECORD",
				Message: "record must be an entry or version with an id",
			})
		}
	}

	if err := scanner.Err(); err != nil {
		parseErrors = append(parseErrors, ImportError{
			Line:    lineNum,
			Code:    "READ_ERROR",
			Message: fmt.Sprintf("failed to read file: %v", err),
		})
	}

	parseErrors = append(parseErrors, orphans...)

	valid := groups[:0]
	for _, g := range groups {
		if err := g.normalize(); err != nil {
			parseErrors = append(parseErrors, ImportError{
				Line: g.line, ID: g.entry.ID, Code: "INVALID_HISTORY", Message: err.Error(),
			})
			continue
		}
		valid = append(valid, g)
	}
	return valid, parseErrors
}

// normalize orders the history and checks it: one create version first,
// strictly increasing timestamps, and a latest snapshot equal to the entry
// content. An entry without history gets a synthesized create version.
func (g *importGroup) normalize() error {
	e := &g.entry
	// Mirror paths are derived, never taken from the file.
	e.FilePath = entry.FilePathFor(e.ID)
	if e.CreatedAt.IsZero() {
		return fmt.Errorf("entry %q has no created_at", e.ID)
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}

	if len(g.versions) == 0 {
		g.versions = []entry.Version{{
			ID:         entry.NewID(),
			EntryID:    e.ID,
			Content:    e.Content,
			ChangeType: entry.ChangeCreate,
			Timestamp:  e.CreatedAt,
		}}
		return nil
	}

	slices.SortStableFunc(g.versions, func(a, b entry.Version) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	for i, v := range g.versions {
		want := entry.ChangeUpdate
		if i == 0 {
			want = entry.ChangeCreate
		}
		if v.ChangeType != want {
			return fmt.Errorf("version %q: expected change type %q, got %q", v.ID, want, v.ChangeType)
		}
		if i > 0 && !v.Timestamp.After(g.versions[i-1].Timestamp) {
			return fmt.Errorf("version %q: timestamp does not increase", v.ID)
		}
	}
	if last := g.versions[len(g.versions)-1]; last.Content != e.Content {
		return fmt.Errorf("latest version %q does not match entry content", last.ID)
	}
	return nil
}

// renew gives the entry and all of its versions fresh ids.
func (g *importGroup) renew() {
	id := entry.NewID()
	g.entry.ID = id
	g.entry.FilePath = entry.FilePathFor(id)
	for i := range g.versions {
		g.versions[i].ID = entry.NewID()
		g.versions[i].EntryID = id
	}
}

// insert writes the group's entry, history and metadata. Changes are
// recomputed from the snapshots and diff summaries regenerated.
func (g *importGroup) insert(ctx context.Context, tx *db.Tx) error {
	if err := tx.InsertEntry(ctx, &g.entry); err != nil {
		return err
	}
	prev := ""
	for i := range g.versions {
		v := &g.versions[i]
		changes := version.Diff(prev, v.Content)
		if v.ChangeType == entry.ChangeCreate {
			v.Diff = nil
		} else {
			summary := version.Summarize(changes)
			v.Diff = &summary
		}
		if err := tx.InsertVersion(ctx, v, changes); err != nil {
			return err
		}
		prev = v.Content
	}
	return tx.UpsertMetadata(ctx, entry.DeriveMetadata(g.entry.ID, g.entry.Content, g.entry.UpdatedAt))
}

// importAtomic imports every group in one transaction. Any collision aborts
// the whole import.
func (c *Coordinator) importAtomic(ctx context.Context, op string, groups []*importGroup) (*ImportOutput, []*importGroup, error) {
	var collision *ImportError
	versions := 0

	err := c.index.Atomic(ctx, op, func(tx *db.Tx) error {
		for _, g := range groups {
			if err := g.insert(ctx, tx); err != nil {
				if errors.Is(err, errors.ErrConflict) {
					collision = collisionError(g, err)
				}
				return err
			}
			versions += len(g.versions)
		}
		return nil
	})
	if collision != nil {
		return &ImportOutput{Errors: []ImportError{*collision}}, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return &ImportOutput{Imported: len(groups), Versions: versions}, groups, nil
}

// importEach imports groups one transaction at a time, skipping those that
// fail.
func (c *Coordinator) importEach(ctx context.Context, op string, groups []*importGroup, mode ImportMode, parseErrors []ImportError) (*ImportOutput, []*importGroup, error) {
	out := &ImportOutput{
		Skipped: len(parseErrors),
		Errors:  append([]ImportError(nil), parseErrors...),
	}
	var imported []*importGroup

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		err := c.index.Atomic(ctx, op, func(tx *db.Tx) error {
			_, err := tx.GetEntry(ctx, g.entry.ID)
			switch {
			case err == nil && mode == ImportModeReplace:
				if err := tx.DeleteEntryCascade(ctx, g.entry.ID); err != nil {
					return err
				}
			case err == nil && mode == ImportModeRename:
				g.renew()
			case err != nil && !errors.Is(err, errors.ErrNotFound):
				return err
			}
			return g.insert(ctx, tx)
		})
		if err != nil {
			code := "INSERT_FAILED"
			if errors.Is(err, errors.ErrConflict) {
				code = "ID_COLLISION"
			}
			out.Errors = append(out.Errors, ImportError{
				Line: g.line, ID: g.entry.ID, Code: code,
				Message: fmt.Sprintf("failed to import: %v", err),
			})
			out.Skipped++
			continue
		}
		out.Imported++
		out.Versions += len(g.versions)
		imported = append(imported, g)
	}
	return out, imported, nil
}

func collisionError(g *importGroup, err error) *ImportError {
	return &ImportError{
		Line:    g.line,
		ID:      g.entry.ID,
		Code:    "ID_COLLISION",
		Message: err.Error(),
	}
}
