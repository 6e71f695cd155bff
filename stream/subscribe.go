// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The filtermap Authors

package stream

import (
	"context"
	"errors"
	"sync"
)

// ErrUnsubscribe can be returned from Observer.OnNext to cancel the
// subscription from within the callback. The subscription then ends as if
// Cancel had been called.
var ErrUnsubscribe = errors.New("unsubscribe")

// Observer is a set of callbacks for Subscribe. Any of them may be nil.
type Observer[T any] struct {
	// OnNext is called for each item. Returning an error terminates the
	// subscription and the error is handed to OnError, except for
	// ErrUnsubscribe which cancels it.
	OnNext func(T) error

	// OnError is called once if the stream fails.
	OnError func(error)

	// OnComplete is called once if the stream completes.
	OnComplete func()
}

// Subscription is a running observation started by Subscribe.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu sync.Mutex
	// idle is signalled when a running OnNext returns.
	idle        *sync.Cond
	dispatching bool
	cancelled   bool
	terminated  bool
	err         error
}

// Subscribe observes 'src' in a new goroutine and delivers the items to
// 'observer'. The callbacks are called sequentially and at most one of
// OnError and OnComplete is called. Cancelling 'ctx' is the same as calling
// Cancel().
func Subscribe[T any](ctx context.Context, src Observable[T], observer Observer[T]) *Subscription {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	sub.idle = sync.NewCond(&sub.mu)

	go func() {
		defer close(sub.done)

		err := src.Observe(
			subCtx,
			func(item T) error {
				if !sub.beginNext(ctx) {
					return context.Canceled
				}
				var err error
				if observer.OnNext != nil {
					err = observer.OnNext(item)
				}
				unsubscribe := errors.Is(err, ErrUnsubscribe)
				sub.endNext(unsubscribe)
				if unsubscribe {
					cancel()
					return context.Canceled
				}
				return err
			})
		cancel()

		sub.mu.Lock()
		if sub.cancelled || ctx.Err() != nil {
			// Cancelled subscriptions get no terminal callback.
			sub.cancelled = true
			sub.err = context.Canceled
			if ctx.Err() != nil {
				sub.err = ctx.Err()
			}
			sub.mu.Unlock()
			return
		}
		sub.terminated = true
		sub.err = err
		sub.mu.Unlock()

		if err != nil {
			if observer.OnError != nil {
				observer.OnError(err)
			}
		} else if observer.OnComplete != nil {
			observer.OnComplete()
		}
	}()

	return sub
}

// beginNext marks an OnNext as running unless the subscription has been
// cancelled.
func (s *Subscription) beginNext(parent context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled || parent.Err() != nil {
		return false
	}
	s.dispatching = true
	return true
}

func (s *Subscription) endNext(unsubscribe bool) {
	s.mu.Lock()
	s.dispatching = false
	if unsubscribe {
		s.cancelled = true
	}
	s.idle.Broadcast()
	s.mu.Unlock()
}

// Cancel unsubscribes from the source. It waits for a running OnNext to
// return, and no callbacks are started after Cancel returns. Cancel has no
// effect on a terminated subscription.
//
// Cancel must not be called from OnNext as it would wait for itself. Return
// ErrUnsubscribe instead.
func (s *Subscription) Cancel() {
	s.mu.Lock()
	if !s.terminated {
		s.cancelled = true
	}
	s.mu.Unlock()
	s.cancel()

	s.mu.Lock()
	for s.dispatching {
		s.idle.Wait()
	}
	s.mu.Unlock()
}

// Done returns a channel that is closed when the subscription has ended.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the error the subscription ended with: nil if the source
// completed, the context error if it was cancelled. Only meaningful after
// Done() is closed.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Wait blocks until the subscription has ended and returns Err().
func (s *Subscription) Wait() error {
	<-s.done
	return s.Err()
}
