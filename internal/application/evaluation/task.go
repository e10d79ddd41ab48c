package evaluation

import (
	"context"
	"fmt"
	"runtime/debug"
)

// Future is the pending result of a function started with Go.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Go runs fn in its own goroutine. A panic inside fn is recovered and
// surfaces as the future's error.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("task panic: %v\n%s", r, debug.Stack())
			}
		}()
		f.val, f.err = fn(ctx)
	}()
	return f
}

// Done is closed once the function has returned.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await blocks until the result is ready or ctx ends, whichever is first.
// When ctx ends first the goroutine is abandoned, not stopped.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Ready reports whether the result is available without blocking.
func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Waiter is anything with a completion channel.
type Waiter interface {
	Done() <-chan struct{}
}

// Join is the barrier between two stages: it returns nil once every waiter
// has completed, or ctx.Err() if ctx ends first.
func Join(ctx context.Context, ws ...Waiter) error {
	for _, w := range ws {
		select {
		case <-w.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
