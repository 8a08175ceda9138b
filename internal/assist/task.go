package assist

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrListenerSet is returned when a task already has a listener.
	ErrListenerSet = errors.New("task already has a listener")

	// ErrStopped is returned by Listen after Stop.
	ErrStopped = errors.New("task listener stopped")
)

// Result is delivered once per task.
type Result struct {
	TaskID string `json:"task_id"`
	Prompt string `json:"prompt,omitempty"`
	Err    error  `json:"-"`
}

// Task is a prompt generation running in the background.
type Task struct {
	id   string
	done chan struct{}

	mu       sync.Mutex
	result   Result
	finished bool
	listener func(Result)
	stopped  bool
}

// Start runs gen in a new goroutine. Cancelling ctx cancels the generation.
func Start(ctx context.Context, gen Generator, text string) *Task {
	t := &Task{
		id:   uuid.NewString(),
		done: make(chan struct{}),
	}
	go func() {
		prompt, err := gen.GeneratePrompt(ctx, text)
		t.finish(Result{TaskID: t.id, Prompt: prompt, Err: err})
	}()
	return t
}

// ID returns the task id.
func (t *Task) ID() string {
	return t.id
}

// Listen registers the single listener. If the task has already finished,
// fn is called immediately with the result. A second call returns
// ErrListenerSet and leaves the first listener in place. After Stop it
// returns ErrStopped.
func (t *Task) Listen(fn func(Result)) error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return ErrStopped
	}
	if t.listener != nil {
		t.mu.Unlock()
		return ErrListenerSet
	}
	t.listener = fn
	finished, result := t.finished, t.result
	t.mu.Unlock()

	if finished {
		fn(result)
	}
	return nil
}

// Stop detaches the listener. The generation itself keeps running and its
// result stays available through Wait.
func (t *Task) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = nil
	t.stopped = true
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.result, nil
	case <-ctx.Done():
		return Result{TaskID: t.id}, ctx.Err()
	}
}

func (t *Task) finish(r Result) {
	t.mu.Lock()
	t.result = r
	t.finished = true
	fn := t.listener
	t.mu.Unlock()

	close(t.done)
	if fn != nil {
		fn(r)
	}
}
