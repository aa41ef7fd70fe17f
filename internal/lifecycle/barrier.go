// Package lifecycle provides the one-shot readiness barrier each service resolves
// when its initialization finishes.
package lifecycle

import (
	"context"
	"errors"
	"sync"
)

// ErrNotResolved is returned by Err before the barrier has been resolved.
var ErrNotResolved = errors.New("lifecycle: not resolved")

// Barrier is a future that is resolved exactly once, with or without an error.
type Barrier struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewBarrier creates an unresolved barrier.
func NewBarrier() *Barrier {
	return &Barrier{done: make(chan struct{})}
}

// Resolve marks the barrier as resolved. Only the first call has an effect.
// It reports whether this call resolved the barrier.
func (b *Barrier) Resolve(err error) bool {
	resolved := false
	b.once.Do(func() {
		b.err = err
		close(b.done)
		resolved = true
	})
	return resolved
}

// Done returns a channel closed once the barrier is resolved.
func (b *Barrier) Done() <-chan struct{} {
	return b.done
}

// Resolved returns true if Resolve has been called.
func (b *Barrier) Resolved() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Err returns the resolution error, or ErrNotResolved if still pending.
func (b *Barrier) Err() error {
	if !b.Resolved() {
		return ErrNotResolved
	}
	return b.err
}

// Wait blocks until the barrier resolves or ctx is done.
// Giving up leaves the barrier untouched.
func (b *Barrier) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		return b.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
