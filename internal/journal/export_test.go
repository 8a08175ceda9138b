package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/momentum/internal/entry"
	"github.com/hpungsan/momentum/internal/errors"
)

func readExportLines(t *testing.T, path string) []ExportRecord {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var records []ExportRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var r ExportRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		records = append(records, r)
	}
	require.NoError(t, scanner.Err())
	return records
}

func writeImportFile(t *testing.T, dir string, lines ...string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0700))
	path := filepath.Join(dir, "import.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0600))
	return path
}

func TestExport_HappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.c.CreateEntry(ctx, "first")
	require.NoError(t, err)
	_, err = env.c.UpdateEntry(ctx, first.ID, "first, revised")
	require.NoError(t, err)
	second, err := env.c.CreateEntry(ctx, "second")
	require.NoError(t, err)

	out, err := env.c.Export(ctx, ExportInput{})
	require.NoError(t, err)
	assert.Equal(t, env.c.ExportsDir(), filepath.Dir(out.Path))
	assert.True(t, strings.HasPrefix(filepath.Base(out.Path), "journal-"))
	assert.Equal(t, 2, out.Entries)
	assert.Equal(t, 3, out.Versions)
	assert.NotZero(t, out.ExportedAt)

	records := readExportLines(t, out.Path)
	require.Len(t, records, 6)
	assert.True(t, records[0].MomentumExport)
	assert.Equal(t, ExportSchemaVersion, records[0].SchemaVersion)

	assert.Equal(t, RecordEntry, records[1].Kind)
	assert.Equal(t, first.ID, records[1].Entry.ID)
	assert.Equal(t, "first, revised", records[1].Entry.Content)
	assert.Equal(t, second.ID, records[2].Entry.ID)

	assert.Equal(t, RecordVersion, records[3].Kind)
	assert.Equal(t, first.ID, records[3].Version.EntryID)
	assert.Equal(t, entry.ChangeCreate, records[3].Version.ChangeType)
	assert.Equal(t, entry.ChangeUpdate, records[4].Version.ChangeType)
	assert.Equal(t, second.ID, records[5].Version.EntryID)

	info, err := os.Stat(out.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// No temp files left behind.
	matches, err := filepath.Glob(filepath.Join(env.c.ExportsDir(), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestExport_RejectsUnsafePath(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.c.Export(context.Background(), ExportInput{Path: filepath.Join(t.TempDir(), "out.jsonl")})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestExportImport_RoundTrip(t *testing.T) {
	src := newTestEnv(t)
	ctx := context.Background()

	created, err := src.c.CreateEntry(ctx, "# Trip\nday one")
	require.NoError(t, err)
	_, err = src.c.UpdateEntry(ctx, created.ID, "# Trip\nday one\nday two #travel")
	require.NoError(t, err)
	exported, err := src.c.Export(ctx, ExportInput{})
	require.NoError(t, err)

	dst := newTestEnv(t)
	path := filepath.Join(dst.c.ExportsDir(), "backup.jsonl")
	data, err := os.ReadFile(exported.Path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))

	out, err := dst.c.Import(ctx, ImportInput{Path: path})
	require.NoError(t, err)
	assert.Empty(t, out.Errors)
	assert.Equal(t, 1, out.Imported)
	assert.Equal(t, 2, out.Versions)

	e, err := dst.c.GetEntry(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "# Trip\nday one\nday two #travel", e.Content)

	srcVersions, err := src.c.GetVersions(ctx, created.ID)
	require.NoError(t, err)
	dstVersions, err := dst.c.GetVersions(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, dstVersions, len(srcVersions))
	for i := range srcVersions {
		assert.Equal(t, srcVersions[i].ID, dstVersions[i].ID)
		assert.Equal(t, srcVersions[i].Content, dstVersions[i].Content)
		assert.True(t, srcVersions[i].Timestamp.Equal(dstVersions[i].Timestamp))
	}

	meta, err := dst.c.Index().GetMetadata(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"travel"}, meta.Tags)

	verify, err := dst.c.Verify(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, verify.OK, "problems: %v", verify.Problems)
}

func TestImport_Modes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.c.CreateEntry(ctx, "original")
	require.NoError(t, err)
	exported, err := env.c.Export(ctx, ExportInput{Path: filepath.Join(env.c.ExportsDir(), "snapshot.jsonl")})
	require.NoError(t, err)
	_, err = env.c.UpdateEntry(ctx, created.ID, "edited after export")
	require.NoError(t, err)

	t.Run("error mode aborts on collision", func(t *testing.T) {
		out, err := env.c.Import(ctx, ImportInput{Path: exported.Path})
		require.NoError(t, err)
		assert.Equal(t, 0, out.Imported)
		require.Len(t, out.Errors, 1)
		assert.Equal(t, "ID_COLLISION", out.Errors[0].Code)

		e, err := env.c.GetEntry(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "edited after export", e.Content)
	})

	t.Run("rename mode imports a copy", func(t *testing.T) {
		out, err := env.c.Import(ctx, ImportInput{Path: exported.Path, Mode: ImportModeRename})
		require.NoError(t, err)
		assert.Equal(t, 1, out.Imported)

		list, err := env.c.ListEntries(ctx, ListInput{})
		require.NoError(t, err)
		require.Len(t, list.Items, 2)

		var copyID string
		for _, item := range list.Items {
			if item.ID != created.ID {
				copyID = item.ID
			}
		}
		copied, err := env.c.GetEntry(ctx, copyID)
		require.NoError(t, err)
		assert.Equal(t, "original", copied.Content)
		assert.Equal(t, entry.FilePathFor(copyID), copied.FilePath)

		body, ok := env.mirror(t, copied)
		require.True(t, ok)
		assert.Equal(t, "original", body)
	})

	t.Run("replace mode restores the exported history", func(t *testing.T) {
		out, err := env.c.Import(ctx, ImportInput{Path: exported.Path, Mode: ImportModeReplace})
		require.NoError(t, err)
		assert.Equal(t, 1, out.Imported)
		assert.Empty(t, out.Errors)

		e, err := env.c.GetEntry(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "original", e.Content)

		versions, err := env.c.GetVersions(ctx, created.ID)
		require.NoError(t, err)
		assert.Len(t, versions, 1)

		body, _ := env.mirror(t, e)
		assert.Equal(t, "original", body)
	})
}

func TestImport_InvalidRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ts := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC).Format(time.RFC3339Nano)

	path := writeImportFile(t, env.c.ExportsDir(),
		`{"_momentum_export":true,"schema_version":"1.0","exported_at":1}`,
		`not json`,
		`{"kind":"entry","entry":{"id":"01GOOD","content":"kept","created_at":"`+ts+`","updated_at":"`+ts+`"}}`,
		`{"kind":"version","version":{"id":"01ORPHAN","entry_id":"01NOBODY","content":"x","change_type":"create","timestamp":"`+ts+`"}}`,
		`{"kind":"entry","entry":{"id":"01BAD","content":"current","created_at":"`+ts+`"}}`,
		`{"kind":"version","version":{"id":"01BADV","entry_id":"01BAD","content":"stale","change_type":"create","timestamp":"`+ts+`"}}`,
	)

	t.Run("error mode reports and imports nothing", func(t *testing.T) {
		out, err := env.c.Import(ctx, ImportInput{Path: path})
		require.NoError(t, err)
		assert.Equal(t, 0, out.Imported)
		codes := map[string]bool{}
		for _, e := range out.Errors {
			codes[e.Code] = true
		}
		assert.True(t, codes["PARSE_ERROR"])
		assert.True(t, codes["ORPHAN_VERSION"])
		assert.True(t, codes["INVALID_HISTORY"])

		list, err := env.c.ListEntries(ctx, ListInput{})
		require.NoError(t, err)
		assert.Empty(t, list.Items)
	})

	t.Run("replace mode skips bad records", func(t *testing.T) {
		out, err := env.c.Import(ctx, ImportInput{Path: path, Mode: ImportModeReplace})
		require.NoError(t, err)
		assert.Equal(t, 1, out.Imported)
		assert.Equal(t, 3, out.Skipped)

		e, err := env.c.GetEntry(ctx, "01GOOD")
		require.NoError(t, err)
		assert.Equal(t, "kept", e.Content)

		// Entries exported without history get a create version.
		versions, err := env.c.GetVersions(ctx, "01GOOD")
		require.NoError(t, err)
		require.Len(t, versions, 1)
		assert.Equal(t, entry.ChangeCreate, versions[0].ChangeType)
	})
}

func TestImport_InvalidInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.c.Import(ctx, ImportInput{})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = env.c.Import(ctx, ImportInput{Path: "x.jsonl", Mode: "merge"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = env.c.Import(ctx, ImportInput{Path: filepath.Join(env.c.ExportsDir(), "absent.jsonl")})
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
