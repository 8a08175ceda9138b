package assist

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type generatorFunc func(ctx context.Context, text string) (string, error)

func (f generatorFunc) GeneratePrompt(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

func TestTask_ListenReceivesOneResult(t *testing.T) {
	release := make(chan struct{})
	gen := generatorFunc(func(ctx context.Context, text string) (string, error) {
		<-release
		return "prompt for " + text, nil
	})

	task := Start(context.Background(), gen, "entry")
	assert.NotEmpty(t, task.ID())

	var (
		mu      sync.Mutex
		results []Result
	)
	got := make(chan struct{})
	require.NoError(t, task.Listen(func(r Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
		close(got)
	}))
	assert.ErrorIs(t, task.Listen(func(Result) {}), ErrListenerSet)

	close(release)
	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("listener not called")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, 1)
	assert.Equal(t, task.ID(), results[0].TaskID)
	assert.Equal(t, "prompt for entry", results[0].Prompt)
	assert.NoError(t, results[0].Err)
}

func TestTask_ListenAfterFinish(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, text string) (string, error) {
		return "", fmt.Errorf("offline")
	})
	task := Start(context.Background(), gen, "entry")

	res, err := task.Wait(context.Background())
	require.NoError(t, err)
	require.Error(t, res.Err)

	var called Result
	require.NoError(t, task.Listen(func(r Result) { called = r }))
	assert.EqualError(t, called.Err, "offline")
}

func TestTask_StopDetachesListener(t *testing.T) {
	release := make(chan struct{})
	gen := generatorFunc(func(ctx context.Context, text string) (string, error) {
		<-release
		return "late", nil
	})
	task := Start(context.Background(), gen, "entry")

	require.NoError(t, task.Listen(func(Result) { t.Error("listener called after Stop") }))
	task.Stop()
	close(release)

	res, err := task.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "late", res.Prompt)
}

func TestTask_ListenAfterStop(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, text string) (string, error) {
		return "done", nil
	})
	task := Start(context.Background(), gen, "entry")
	task.Stop()

	err := task.Listen(func(Result) { t.Error("listener called after Stop") })
	assert.ErrorIs(t, err, ErrStopped)
	assert.NotErrorIs(t, err, ErrListenerSet)

	_, err = task.Wait(context.Background())
	require.NoError(t, err)
}

func TestTask_WaitHonorsContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	gen := generatorFunc(func(ctx context.Context, text string) (string, error) {
		<-block
		return "", nil
	})
	task := Start(context.Background(), gen, "entry")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := task.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
