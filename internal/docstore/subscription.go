// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package docstore

import (
	"context"
	"log/slog"
	"sync"
)

// Subscription is a live query. Events are delivered in the order the store
// produced them; when the consumer falls behind, an undelivered snapshot is
// replaced by the newer one (each snapshot is complete, so nothing is lost).
type Subscription struct {
	query  Query
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newSubscription(q Query, cancel context.CancelFunc) *Subscription {
	return &Subscription{
		query:  q,
		events: make(chan Event, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Events returns the delivery channel. It is closed when the subscription
// ends, either after an error event or after Close.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Query returns the query this subscription serves.
func (s *Subscription) Query() Query {
	return s.query
}

// Close releases the subscription. It is safe to call more than once and
// from any goroutine. Once Close returns, no further event will be received.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		// Discard anything still buffered.
		for range s.events {
		}
		slog.Debug("docstore subscription closed", "query", s.query.Key())
	})
}

type fetchFunc func(ctx context.Context) (*Snapshot, error)

func (s *Subscription) run(ctx context.Context, fetch fetchFunc, changes <-chan struct{}) {
	defer close(s.done)
	defer close(s.events)

	if !s.refresh(ctx, fetch) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				if ctx.Err() == nil {
					s.deliver(ctx, Event{Err: ErrNotifierClosed})
				}
				return
			}
			if !s.refresh(ctx, fetch) {
				return
			}
		}
	}
}

// refresh reads a snapshot and delivers it. Returns false when the
// subscription must end.
func (s *Subscription) refresh(ctx context.Context, fetch fetchFunc) bool {
	snap, err := fetch(ctx)
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		s.deliver(ctx, Event{Err: err})
		return false
	}
	return s.deliver(ctx, Event{Snapshot: snap})
}

// deliver hands ev to the consumer, replacing a stale undelivered event.
func (s *Subscription) deliver(ctx context.Context, ev Event) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case s.events <- ev:
			return true
		default:
		}
		select {
		case <-s.events:
		default:
		}
	}
}
