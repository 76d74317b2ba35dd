// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package migrate

import (
	"context"
	"errors"
	"sync"
)

// ErrNoResult can be returned by the function of an Actionable to report
// that it produced no result. In this case, the Actionable is not settled
// and the next call to Execute runs the function again.
var ErrNoResult = errors.New("migrate: action produced no result")

// Actionable runs a function at most once (until settled), and shares
// its outcome with all callers. Concurrent callers of Execute wait for
// the running call to finish and observe the same value and error.
type Actionable[T any] struct {
	fn      func(context.Context) (T, error)
	mu      sync.Mutex
	running chan struct{}
	settled bool
	v       T
	err     error
}

// NewActionable returns an Actionable for the given function.
func NewActionable[T any](fn func(context.Context) (T, error)) *Actionable[T] {
	return &Actionable[T]{fn: fn}
}

// Execute runs the function if it was not run yet, or waits for the
// running call to finish. A waiting caller returns early with the error
// of its context if it is done before the running call finishes.
func (a *Actionable[T]) Execute(ctx context.Context) (T, error) {
	for {
		a.mu.Lock()
		if a.settled {
			v, err := a.v, a.err
			a.mu.Unlock()
			return v, err
		}
		if a.running == nil {
			return a.run(ctx)
		}
		running := a.running
		a.mu.Unlock()
		select {
		case <-running:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// run is called with the lock held.
func (a *Actionable[T]) run(ctx context.Context) (v T, err error) {
	running := make(chan struct{})
	a.running = running
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		if r := recover(); r != nil {
			a.running = nil
			a.mu.Unlock()
			close(running)
			panic(r)
		}
		if !errors.Is(err, ErrNoResult) {
			a.v, a.err, a.settled = v, err, true
		}
		a.running = nil
		a.mu.Unlock()
		close(running)
	}()
	return a.fn(ctx)
}

// Settled reports if the function has run and its outcome is final.
func (a *Actionable[T]) Settled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settled
}
