// SPDX-License-Identifier: Apache-2.0
// Copyright 2022 Jussi Maki

package stream

import (
	"context"
)

type Observable[T any] interface {
	// Observe starts observing a stream of T's.
	// 'next' is called on each element sequentially. If it returns an error the stream closes
	// and this error is returned by Observe().
	// When 'ctx' is cancelled the stream closes and ctx.Err() is returned.
	// A nil return means the stream completed.
	//
	// Implementations of Observe() must maintain the following invariants:
	// - Observe blocks until the stream and any upstreams are closed.
	// - 'next' is called sequentially from the goroutine that called Observe() in
	//   order to maintain good stack traces and not require observer to be thread-safe.
	// - if 'next' returns an error it must not be called again and the same error
	//   must be returned by Observe().
	//
	// Handling of context cancellation is asynchronous and implementation may
	// choose to block on 'next' and only handle cancellation after 'next' returns.
	// If 'next' implements a long-running operation, then it is expected that the caller
	// will handle 'ctx' cancellation in the 'next' function itself.
	Observe(ctx context.Context, next func(T) error) error
}

// FuncObservable wraps a function that implements Observe. Convenience when declaring
// a struct to implement Observe() is overkill.
type FuncObservable[T any] func(context.Context, func(T) error) error

func (f FuncObservable[T]) Observe(ctx context.Context, next func(T) error) error {
	return f(ctx, next)
}

// Operator is a function from one observable to another. Operators hold no
// per-observation state and can be applied to any number of sources.
type Operator[A, B any] func(Observable[A]) Observable[B]

// Apply attaches the operator to 'src'.
func (op Operator[A, B]) Apply(src Observable[A]) Observable[B] {
	return op(src)
}

// Compose returns an operator that applies 'f' and then 'g'.
func Compose[A, B, C any](f Operator[A, B], g Operator[B, C]) Operator[A, C] {
	return func(src Observable[A]) Observable[C] {
		return g(f(src))
	}
}

// Pipe applies the operators to 'src' from left to right.
func Pipe[T any](src Observable[T], ops ...Operator[T, T]) Observable[T] {
	for _, op := range ops {
		src = op(src)
	}
	return src
}
