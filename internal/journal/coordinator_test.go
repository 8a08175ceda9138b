package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/momentum/internal/content"
	"github.com/hpungsan/momentum/internal/db"
	"github.com/hpungsan/momentum/internal/entry"
	"github.com/hpungsan/momentum/internal/errors"
)

type testEnv struct {
	c       *Coordinator
	store   *content.FileStore
	baseDir string
}

func newTestEnv(t *testing.T, mutate ...func(*Options)) *testEnv {
	t.Helper()
	baseDir := t.TempDir()
	database, err := db.Init(baseDir)
	require.NoError(t, err)

	store, err := content.NewFileStore(filepath.Join(baseDir, "content"))
	require.NoError(t, err)

	opts := Options{BaseDir: baseDir}
	for _, m := range mutate {
		m(&opts)
	}
	c := New(db.NewIndexStore(database), store, opts)
	t.Cleanup(func() { c.Close() })
	return &testEnv{c: c, store: store, baseDir: baseDir}
}

func (env *testEnv) mirror(t *testing.T, e *entry.Entry) (string, bool) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(env.store.Root(), e.FilePath))
	if os.IsNotExist(err) {
		return "", false
	}
	require.NoError(t, err)
	return string(data), true
}

// failingStore rejects every write.
type failingStore struct {
	content.Store
	mu     sync.Mutex
	writes int
}

func (s *failingStore) Write(_ context.Context, _ string, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	return fmt.Errorf("disk full")
}

func (s *failingStore) Read(_ context.Context, p string) ([]byte, error) {
	return nil, errors.NewNotFound("file", p)
}

func (s *failingStore) Delete(_ context.Context, _ string) error {
	return fmt.Errorf("disk full")
}

// gatedStore holds the first Write until release is closed.
type gatedStore struct {
	content.Store
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedStore(s content.Store) *gatedStore {
	return &gatedStore{Store: s, entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *gatedStore) Write(ctx context.Context, p string, data []byte) error {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.Store.Write(ctx, p, data)
}

// rejectEmptyStore fails writes of empty content.
type rejectEmptyStore struct {
	content.Store
}

func (s *rejectEmptyStore) Write(ctx context.Context, p string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("disk full")
	}
	return s.Store.Write(ctx, p, data)
}

func TestCreateEntry_WritesIndexHistoryAndMirror(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	out, err := env.c.CreateEntry(ctx, "# Morning\nCoffee and #ideas")
	require.NoError(t, err)
	assert.True(t, out.Mirror.Synced)
	assert.Equal(t, entry.FilePathFor(out.ID), out.FilePath)

	e, err := env.c.GetEntry(ctx, out.ID)
	require.NoError(t, err)
	assert.Equal(t, "# Morning\nCoffee and #ideas", e.Content)
	assert.Equal(t, e.CreatedAt, e.UpdatedAt)

	versions, err := env.c.GetVersions(ctx, out.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, entry.ChangeCreate, versions[0].ChangeType)
	assert.Nil(t, versions[0].Diff)
	assert.Equal(t, e.Content, versions[0].Content)

	body, ok := env.mirror(t, e)
	require.True(t, ok)
	assert.Equal(t, e.Content, body)

	meta, err := env.c.Index().GetMetadata(ctx, out.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, meta.WordCount)
	assert.Equal(t, []string{"ideas"}, meta.Tags)
}

func TestCreateEntry_EmptyContent(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.c.CreateEntry(context.Background(), "")
	require.NoError(t, err)

	e, err := env.c.GetEntry(context.Background(), out.ID)
	require.NoError(t, err)
	assert.Equal(t, "", e.Content)
	assert.Equal(t, entry.UntitledTitle, ExtractTitle(e.Content))
}

func TestGetEntry_Errors(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.c.GetEntry(context.Background(), "")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = env.c.GetEntry(context.Background(), "01MISSING")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestUpdateEntry_AppendsOrderedVersions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.c.CreateEntry(ctx, "v0")
	require.NoError(t, err)

	const n = 5
	for i := 1; i <= n; i++ {
		out, err := env.c.UpdateEntry(ctx, created.ID, fmt.Sprintf("v%d", i))
		require.NoError(t, err)
		assert.True(t, out.Mirror.Synced)
		assert.NotEmpty(t, out.VersionID)
	}

	versions, err := env.c.GetVersions(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, versions, n+1)

	// Newest first.
	assert.Equal(t, fmt.Sprintf("v%d", n), versions[0].Content)
	assert.Equal(t, entry.ChangeCreate, versions[n].ChangeType)
	for i := 0; i < n; i++ {
		assert.True(t, versions[i].Timestamp.After(versions[i+1].Timestamp), "timestamps must strictly decrease in listing order")
		assert.Equal(t, entry.ChangeUpdate, versions[i].ChangeType)
		require.NotNil(t, versions[i].Diff)
	}

	e, err := env.c.GetEntry(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, versions[0].Timestamp, e.UpdatedAt)
	assert.Equal(t, fmt.Sprintf("v%d", n), e.Content)

	body, _ := env.mirror(t, e)
	assert.Equal(t, e.Content, body)
}

func TestUpdateEntry_DraftScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.c.CreateEntry(ctx, "# Draft\nline one")
	require.NoError(t, err)
	_, err = env.c.UpdateEntry(ctx, created.ID, "# Draft\nline one\nline two")
	require.NoError(t, err)

	versions, err := env.c.GetVersions(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)

	list, err := env.c.ListEntries(ctx, ListInput{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Contains(t, list.Items[0].ContentPreview, "# Draft")
	assert.Equal(t, "Draft", list.Items[0].Title)
	assert.Equal(t, 6, list.Items[0].WordCount)
}

func TestUpdateEntry_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.c.UpdateEntry(context.Background(), "01MISSING", "text")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	jErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, "update_entry", jErr.Op)
}

func TestUpdateEntry_Concurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.c.CreateEntry(ctx, "start")
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := env.c.UpdateEntry(ctx, created.ID, fmt.Sprintf("writer %d", i)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent update failed: %v", err)
	}

	versions, err := env.c.GetVersions(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, versions, workers+1)

	e, err := env.c.GetEntry(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, versions[0].Content, e.Content)

	body, ok := env.mirror(t, e)
	require.True(t, ok)
	assert.Equal(t, e.Content, body)

	verify, err := env.c.Verify(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, verify.Problems)
	assert.True(t, verify.OK)
}

func TestUpdateEntry_SlowMirrorWriteDoesNotOverwriteNewer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.c.CreateEntry(ctx, "start")
	require.NoError(t, err)

	gate := newGatedStore(env.store)
	env.c.content = gate

	first := make(chan *UpdateOutput, 1)
	go func() {
		out, err := env.c.UpdateEntry(ctx, created.ID, "A")
		assert.NoError(t, err)
		first <- out
	}()
	<-gate.entered // the "A" mirror write is now held

	second := make(chan *UpdateOutput, 1)
	go func() {
		out, err := env.c.UpdateEntry(ctx, created.ID, "B")
		assert.NoError(t, err)
		second <- out
	}()
	require.Eventually(t, func() bool {
		e, err := env.c.GetEntry(ctx, created.ID)
		return err == nil && e.Content == "B"
	}, 5*time.Second, 5*time.Millisecond)

	close(gate.release)
	outA, outB := <-first, <-second
	require.NotNil(t, outA)
	require.NotNil(t, outB)
	assert.True(t, outA.Mirror.Synced)
	assert.True(t, outB.Mirror.Synced)

	e, err := env.c.GetEntry(ctx, created.ID)
	require.NoError(t, err)
	body, ok := env.mirror(t, e)
	require.True(t, ok)
	assert.Equal(t, "B", body)

	verify, err := env.c.Verify(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, verify.Problems)
}

func TestWriteMirror_AfterDeleteLeavesNoFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.c.CreateEntry(ctx, "gone soon")
	require.NoError(t, err)
	_, err = env.c.DeleteEntry(ctx, created.ID)
	require.NoError(t, err)

	// A mirror write from the create that lost the race with the delete.
	status := env.c.writeMirror(ctx, "create_entry", created.ID)
	assert.True(t, status.Synced)

	_, err = os.Stat(filepath.Join(env.store.Root(), created.FilePath))
	assert.True(t, os.IsNotExist(err))
}

func TestRestoreVersion_AppendsUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.c.CreateEntry(ctx, "first draft")
	require.NoError(t, err)
	_, err = env.c.UpdateEntry(ctx, created.ID, "second draft")
	require.NoError(t, err)

	versions, err := env.c.GetVersions(ctx, created.ID)
	require.NoError(t, err)
	createVersion := versions[len(versions)-1]

	out, err := env.c.RestoreVersion(ctx, createVersion.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, out.ID)

	versions, err = env.c.GetVersions(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, out.VersionID, versions[0].ID)
	assert.Equal(t, entry.ChangeUpdate, versions[0].ChangeType)
	assert.Equal(t, "first draft", versions[0].Content)

	e, err := env.c.GetEntry(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "first draft", e.Content)
}

func TestRestoreVersion_NotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.c.RestoreVersion(context.Background(), "01NOVERSION")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestDeleteEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.c.CreateEntry(ctx, "to be removed")
	require.NoError(t, err)
	_, err = env.c.UpdateEntry(ctx, created.ID, "to be removed soon")
	require.NoError(t, err)
	versions, err := env.c.GetVersions(ctx, created.ID)
	require.NoError(t, err)

	out, err := env.c.DeleteEntry(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, out.Deleted)
	assert.True(t, out.Mirror.Synced)

	_, err = env.c.GetEntry(ctx, created.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	remaining, err := env.c.GetVersions(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	_, err = env.c.GetVersionChanges(ctx, versions[0].ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = os.Stat(filepath.Join(env.store.Root(), created.FilePath))
	assert.True(t, os.IsNotExist(err))

	_, err = env.c.DeleteEntry(ctx, created.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestMirrorFailure_StillSucceeds(t *testing.T) {
	baseDir := t.TempDir()
	database, err := db.Init(baseDir)
	require.NoError(t, err)

	var (
		mu       sync.Mutex
		reported []*errors.Error
	)
	store := &failingStore{}
	c := New(db.NewIndexStore(database), store, Options{
		BaseDir:       baseDir,
		MirrorRetries: 2,
		OnMirrorFailure: func(e *errors.Error) {
			mu.Lock()
			defer mu.Unlock()
			reported = append(reported, e)
		},
	})
	defer c.Close()
	ctx := context.Background()

	created, err := c.CreateEntry(ctx, "kept in the index")
	require.NoError(t, err)
	assert.False(t, created.Mirror.Synced)
	assert.Contains(t, created.Mirror.Error, "disk full")
	assert.Equal(t, 3, store.writes)

	e, err := c.GetEntry(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "kept in the index", e.Content)

	updated, err := c.UpdateEntry(ctx, created.ID, "still kept")
	require.NoError(t, err)
	assert.False(t, updated.Mirror.Synced)

	deleted, err := c.DeleteEntry(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)
	assert.False(t, deleted.Mirror.Synced)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 3)
	assert.Equal(t, errors.ErrMirrorWrite, reported[0].Code)
	assert.Equal(t, "create_entry", reported[0].Op)
	assert.Equal(t, created.ID, reported[0].Details["entry_id"])
	assert.Equal(t, "update_entry", reported[1].Op)
	assert.Equal(t, "delete_entry", reported[2].Op)
}

func TestOpenEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.c.CreateEntry(ctx, "## Evening notes\nquiet #walk")
	require.NoError(t, err)

	out, err := env.c.OpenEntry(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Evening notes", out.Title)
	assert.False(t, out.FromMirror)
	require.NotNil(t, out.Metadata)
	assert.Equal(t, []string{"walk"}, out.Metadata.Tags)
	assert.False(t, out.Metadata.LastAccessed.IsZero())
}

func TestOpenEntry_FallsBackToMirror(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.c.CreateEntry(ctx, "# Recovered\nfrom disk")
	require.NoError(t, err)

	// Lose the index body while the history and mirror still hold it.
	_, err = env.c.Index().DB().ExecContext(ctx,
		`UPDATE journal_entries SET content = '' WHERE id = ?`, created.ID)
	require.NoError(t, err)

	out, err := env.c.OpenEntry(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, out.FromMirror)
	assert.Equal(t, "# Recovered\nfrom disk", out.Entry.Content)
	assert.Equal(t, "Recovered", out.Title)
}

func TestOpenEntry_EmptiedEntryIgnoresStaleMirror(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.c.CreateEntry(ctx, "private draft")
	require.NoError(t, err)

	env.c.content = &rejectEmptyStore{Store: env.store}
	updated, err := env.c.UpdateEntry(ctx, created.ID, "")
	require.NoError(t, err)
	require.False(t, updated.Mirror.Synced)

	out, err := env.c.OpenEntry(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, out.FromMirror)
	assert.Equal(t, "", out.Entry.Content)
	assert.Equal(t, entry.UntitledTitle, out.Title)
}

func TestGetVersionChanges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.c.CreateEntry(ctx, "abc")
	require.NoError(t, err)
	updated, err := env.c.UpdateEntry(ctx, created.ID, "abcdef")
	require.NoError(t, err)

	changes, err := env.c.GetVersionChanges(ctx, updated.VersionID)
	require.NoError(t, err)
	require.NotEmpty(t, changes)

	v, err := env.c.GetVersion(ctx, updated.VersionID)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", v.Content)
	assert.Equal(t, created.ID, v.EntryID)

	_, err = env.c.GetVersion(ctx, "")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestInstance_Lifecycle(t *testing.T) {
	require.Nil(t, Instance())
	require.NoError(t, Shutdown())

	ctx := context.Background()
	baseDir := t.TempDir()

	c1, err := Init(ctx, baseDir, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { Shutdown() })

	c2, err := Init(ctx, t.TempDir(), nil, nil)
	require.NoError(t, err)
	assert.Same(t, c1, c2)
	assert.Same(t, c1, Instance())

	out, err := c1.CreateEntry(ctx, "hello")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(baseDir, "content", out.FilePath))
	require.NoError(t, err)

	require.NoError(t, Shutdown())
	assert.Nil(t, Instance())
}
