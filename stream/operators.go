// SPDX-License-Identifier: Apache-2.0
// Copyright 2022 Jussi Maki

package stream

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// Map applies a function onto an observable.
func Map[A, B any](src Observable[A], apply func(A) B) Observable[B] {
	return FilterMap(src, func(a A) Result[B] { return Keep(apply(a)) })
}

// Filter keeps only the elements for which the filter function returns true.
func Filter[T any](src Observable[T], filter func(T) bool) Observable[T] {
	return FilterMapOK(src, func(x T) (T, bool) { return x, filter(x) })
}

// FlatMap applies a function that returns an observable of Bs to the source observable of As.
// The observable from the function is flattened (hence FlatMap).
func FlatMap[A, B any](src Observable[A], apply func(A) Observable[B]) Observable[B] {
	return FuncObservable[B](
		func(ctx context.Context, next func(B) error) error {
			return src.Observe(
				ctx,
				func(a A) error {
					return apply(a).Observe(ctx, next)
				})
		})
}

// Concat takes one or more observable of the same type and emits the items from each of
// them in order.
func Concat[T any](srcs ...Observable[T]) Observable[T] {
	return FuncObservable[T](
		func(ctx context.Context, next func(T) error) error {
			for _, src := range srcs {
				if err := src.Observe(ctx, next); err != nil {
					return err
				}
			}
			return nil
		})
}

// OnNext calls the supplied function on each emitted item.
func OnNext[T any](src Observable[T], f func(T)) Observable[T] {
	return FuncObservable[T](
		func(ctx context.Context, next func(T) error) error {
			return src.Observe(
				ctx,
				func(item T) error {
					f(item)
					return next(item)
				})
		})
}

// Take takes 'n' items from the source 'src'.
// The context given to source observable is cancelled after 'n' items
// have been emitted and the resulting cancelled error is ignored.
func Take[T any](n int, src Observable[T]) Observable[T] {
	return FuncObservable[T](
		func(ctx context.Context, next func(T) error) error {
			if n <= 0 {
				return ctx.Err()
			}
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			remaining := n
			err := src.Observe(ctx,
				func(item T) error {
					if remaining == 0 {
						return context.Canceled
					}
					if err := next(item); err != nil {
						return err
					}
					remaining--
					if remaining == 0 {
						cancel()
					}
					return nil
				})

			if remaining == 0 && errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
}

// Skip skips the first 'n' items from the source.
func Skip[T any](n int, src Observable[T]) Observable[T] {
	return FuncObservable[T](
		func(ctx context.Context, next func(T) error) error {
			skip := n
			return src.Observe(ctx,
				func(item T) error {
					if skip > 0 {
						skip--
						return nil
					}
					return next(item)
				})
		})
}

// Throttle limits the rate at which items are emitted.
func Throttle[T any](src Observable[T], ratePerSecond float64, burst int) Observable[T] {
	return FuncObservable[T](
		func(ctx context.Context, next func(T) error) error {
			limiter := rate.NewLimiter(rate.Limit(ratePerSecond), burst)
			return src.Observe(
				ctx,
				func(item T) error {
					if err := limiter.Wait(ctx); err != nil {
						return err
					}
					return next(item)
				})
		})
}

//
// Retrying and error handling
//

// RetryFunc decides whether the processing should be retried for the given error
type RetryFunc func(err error) bool

// Retry resubscribes to the observable if it completes with an error.
// Errors returned by 'next' are not retried.
func Retry[T any](src Observable[T], shouldRetry RetryFunc) Observable[T] {
	return FuncObservable[T](
		func(ctx context.Context, next func(T) error) error {
			for {
				var nextErr error
				err := src.Observe(
					ctx,
					func(item T) error {
						nextErr = next(item)
						return nextErr
					})
				if err == nil || nextErr != nil || ctx.Err() != nil || !shouldRetry(err) {
					return err
				}
			}
		})
}

// AlwaysRetry always asks for a retry regardless of the error.
func AlwaysRetry(err error) bool {
	return true
}

// BackoffRetry retries with an exponential backoff.
func BackoffRetry(shouldRetry RetryFunc, minBackoff, maxBackoff time.Duration) RetryFunc {
	backoff := minBackoff
	return func(err error) bool {
		time.Sleep(backoff)
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		return shouldRetry(err)
	}
}

// LimitRetries limits the number of retries with the given retry method.
// e.g. LimitRetries(BackoffRetry(AlwaysRetry, time.Millisecond, time.Second), 5)
func LimitRetries(shouldRetry RetryFunc, numRetries int) RetryFunc {
	return func(err error) bool {
		if numRetries <= 0 {
			return false
		}
		numRetries--
		return shouldRetry(err)
	}
}
