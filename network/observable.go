/**
 * Copyright (c) 2019, The Artemis Authors.
 *
 * Permission to use, copy, modify, and/or distribute this software for any
 * purpose with or without fee is hereby granted, provided that the above
 * copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package network

import (
	"sync"
)

// Sink receives the events of an Observable: any number of Next calls followed by at most one
// Error or Complete.
type Sink interface {
	Next(payload *Payload)
	Error(err error)
	Complete()
}

// Observer is a Sink built from functions. Nil functions ignore their events.
type Observer struct {
	OnNext     func(payload *Payload)
	OnError    func(err error)
	OnComplete func()
}

var _ Sink = Observer{}

// Next implements Sink.
func (observer Observer) Next(payload *Payload) {
	if observer.OnNext != nil {
		observer.OnNext(payload)
	}
}

// Error implements Sink.
func (observer Observer) Error(err error) {
	if observer.OnError != nil {
		observer.OnError(err)
	}
}

// Complete implements Sink.
func (observer Observer) Complete() {
	if observer.OnComplete != nil {
		observer.OnComplete()
	}
}

// Subscription is returned by Observable.Subscribe to stop receiving events.
type Subscription interface {
	// Unsubscribe stops the delivery of events and releases the resources of the producer. It is
	// safe to call more than once.
	Unsubscribe()

	// Closed returns true after Unsubscribe or after the observable terminated.
	Closed() bool
}

// Observable is a stream of payloads.
type Observable interface {
	Subscribe(sink Sink) Subscription
}

// ObservableFunc adapts a producer function to an Observable. The function starts producing events
// to sink and returns a cleanup function (or nil) called when the subscription ends. Events
// produced after the subscription ends are dropped.
type ObservableFunc func(sink Sink) (cleanup func())

var _ Observable = (ObservableFunc)(nil)

// Subscribe implements Observable.
func (f ObservableFunc) Subscribe(sink Sink) Subscription {
	s := &subscription{
		sink: sink,
	}
	cleanup := f(s)

	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		if cleanup != nil {
			cleanup()
		}
	} else {
		s.cleanup = cleanup
		s.mutex.Unlock()
	}
	return s
}

// subscription guards a sink so that it sees a well-formed sequence of events.
type subscription struct {
	sink Sink

	// Guards closed and cleanup. A producer must not emit events concurrently; the lock is not held
	// while delivering so that a sink can unsubscribe from its callbacks.
	mutex   sync.Mutex
	closed  bool
	cleanup func()
}

var (
	_ Sink         = (*subscription)(nil)
	_ Subscription = (*subscription)(nil)
)

func (s *subscription) Next(payload *Payload) {
	if !s.Closed() {
		s.sink.Next(payload)
	}
}

func (s *subscription) Error(err error) {
	if cleanup, ok := s.close(); ok {
		s.sink.Error(err)
		if cleanup != nil {
			cleanup()
		}
	}
}

func (s *subscription) Complete() {
	if cleanup, ok := s.close(); ok {
		s.sink.Complete()
		if cleanup != nil {
			cleanup()
		}
	}
}

func (s *subscription) Unsubscribe() {
	if cleanup, ok := s.close(); ok && cleanup != nil {
		cleanup()
	}
}

func (s *subscription) Closed() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.closed
}

// close marks the subscription closed. It returns false if it already was.
func (s *subscription) close() (func(), bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return nil, false
	}
	s.closed = true
	cleanup := s.cleanup
	s.cleanup = nil
	return cleanup, true
}

// FromPayloads returns an Observable that emits payloads and completes.
func FromPayloads(payloads ...*Payload) Observable {
	return ObservableFunc(func(sink Sink) func() {
		for _, payload := range payloads {
			sink.Next(payload)
		}
		sink.Complete()
		return nil
	})
}

// FromError returns an Observable that fails with err.
func FromError(err error) Observable {
	return ObservableFunc(func(sink Sink) func() {
		sink.Error(err)
		return nil
	})
}
