package session

import (
	"context"
	log "log/slog"
	"runtime/debug"
)

// Task is a handle on one background operation. Cancel only flips the
// context; the work notices it at its own safe points.
type Task struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

func spawn(parent context.Context, name string, fn func(ctx context.Context)) *Task {
	ctx, cancel := context.WithCancel(parent)
	t := &Task{name: name, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				log.Error("Worker panicked", "task", name, "panic", r, "stack", string(debug.Stack()))
			}
		}()
		fn(ctx)
	}()

	return t
}

func (t *Task) Cancel() { t.cancel() }

func (t *Task) Done() <-chan struct{} { return t.done }
