// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The filtermap Authors

package stream

import (
	"context"
)

// Result is the outcome of a filter-map function: either a value to keep
// or the drop marker. The zero Result is a drop.
type Result[T any] struct {
	value T
	keep  bool
}

// Keep wraps a value that should be emitted.
func Keep[T any](value T) Result[T] {
	return Result[T]{value: value, keep: true}
}

// Drop returns the drop marker for T. A dropped result produces no output.
func Drop[T any]() Result[T] {
	return Result[T]{}
}

// Get returns the kept value and true, or the zero value and false if dropped.
func (r Result[T]) Get() (T, bool) {
	return r.value, r.keep
}

// Dropped is true if the result is the drop marker.
func (r Result[T]) Dropped() bool {
	return !r.keep
}

// FilterMap maps each item from 'src' with 'apply' and emits the results that
// were kept. Items for which 'apply' returns Drop() produce nothing. Errors and
// completion of 'src' are passed through unchanged.
func FilterMap[A, B any](src Observable[A], apply func(A) Result[B]) Observable[B] {
	return FuncObservable[B](
		func(ctx context.Context, next func(B) error) error {
			return src.Observe(
				ctx,
				func(a A) error {
					if b, ok := apply(a).Get(); ok {
						return next(b)
					}
					return nil
				})
		})
}

// FilterMapOK is FilterMap with a comma-ok function. Items for which 'apply'
// returns false are dropped.
func FilterMapOK[A, B any](src Observable[A], apply func(A) (B, bool)) Observable[B] {
	return FilterMap(
		src,
		func(a A) Result[B] {
			if b, ok := apply(a); ok {
				return Keep(b)
			}
			return Drop[B]()
		})
}

// TryFilterMap is FilterMap with a function that may fail. An error from
// 'apply' closes the stream and is returned from Observe() as is.
func TryFilterMap[A, B any](src Observable[A], apply func(A) (Result[B], error)) Observable[B] {
	return FuncObservable[B](
		func(ctx context.Context, next func(B) error) error {
			return src.Observe(
				ctx,
				func(a A) error {
					res, err := apply(a)
					if err != nil {
						return err
					}
					if b, ok := res.Get(); ok {
						return next(b)
					}
					return nil
				})
		})
}

// FilterMapOperator returns FilterMap as a reusable operator.
func FilterMapOperator[A, B any](apply func(A) Result[B]) Operator[A, B] {
	return func(src Observable[A]) Observable[B] {
		return FilterMap(src, apply)
	}
}
