// Package task runs cancellable background computations. The owner polls a
// task for readiness instead of blocking on it; a task the owner no longer
// wants is stopped and handed to a reaper that waits for it to wind down.
package task

import (
	"context"
	"sync"
)

// Waitable is anything that signals completion by closing a channel
type Waitable interface {
	Done() <-chan struct{}
}

// Task is a computation running on its own goroutine. The function receives
// a context that is cancelled when RequestStop is called.
type Task[T any] struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	result T
	err    error

	releaseOnce sync.Once
}

// Run starts fn on a new goroutine
func Run[T any](fn func(ctx context.Context) (T, error)) *Task[T] {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Task[T]{
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(t.done)
		defer cancel()
		t.result, t.err = fn(ctx)
	}()
	return t
}

// RequestStop asks the computation to stop. It does not wait.
func (t *Task[T]) RequestStop() {
	t.cancel()
}

// StopRequested reports whether RequestStop was called or the task ended
func (t *Task[T]) StopRequested() bool {
	return t.ctx.Err() != nil
}

// IsReady reports whether the computation has finished
func (t *Task[T]) IsReady() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done is closed when the computation finishes
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the computation finishes and returns its result
func (t *Task[T]) Wait() (T, error) {
	<-t.done
	return t.result, t.err
}

// Result returns the result of a finished task without blocking. ok is
// false while the task is still running.
func (t *Task[T]) Result() (result T, err error, ok bool) {
	if !t.IsReady() {
		return result, nil, false
	}
	return t.result, t.err, true
}

// Release gives up ownership. An unfinished task is asked to stop and
// handed to the default reaper so the caller never waits on it.
func (t *Task[T]) Release() {
	t.releaseOnce.Do(func() {
		if t.IsReady() {
			return
		}
		t.RequestStop()
		DefaultReaper().Adopt(t)
	})
}
