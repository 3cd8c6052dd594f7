package gateway

import (
	"context"
	"sync"
)

// Future is a single-assignment result. Only the gateway can resolve it and
// only the first resolution takes effect.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// resolve stores v and releases waiters. It reports false when the future
// was already resolved.
func (f *Future[T]) resolve(v T) bool {
	resolved := false
	f.once.Do(func() {
		f.value = v
		close(f.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the value is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future resolves or ctx ends.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
