// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package live turns a document store subscription into a reactive read
// model: the latest decoded snapshot, the last error, and a loading flag.
package live

import (
	"context"
	"fmt"
	"sync"

	"devblog/internal/docstore"
)

// State is the read model of one live query. Data is replaced wholesale on
// every snapshot and must not be modified by callers.
type State[T any] struct {
	Data    []T
	Err     error
	Loading bool
	Version uint64
}

// Status is the type-erased part of State used by aggregators. Seq counts
// applied state changes; two reads with the same Seq saw the same State.
type Status struct {
	Err     error
	Loading bool
	Version uint64
	Seq     uint64
}

// Decoder converts a snapshot into typed items.
type Decoder[T any] func(*docstore.Snapshot) []T

// Collection is a live, decoded view of one query.
type Collection[T any] struct {
	query   docstore.Query
	decode  Decoder[T]
	sub     *docstore.Subscription
	changes chan struct{}
	done    chan struct{}
	once    sync.Once

	mu     sync.RWMutex
	state  State[T]
	seq    uint64
	closed bool
}

// Watch subscribes to q and keeps the returned Collection current until
// Close. A nil decode uses docstore.DecodeAll.
func Watch[T any](ctx context.Context, s docstore.Subscriber, q docstore.Query, decode Decoder[T]) (*Collection[T], error) {
	sub, err := s.Subscribe(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", q.Key(), err)
	}
	c := newCollection(q, decode)
	c.sub = sub
	go c.pump()
	return c, nil
}

func newCollection[T any](q docstore.Query, decode Decoder[T]) *Collection[T] {
	if decode == nil {
		decode = docstore.DecodeAll[T]
	}
	return &Collection[T]{
		query:   q,
		decode:  decode,
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
		state:   State[T]{Loading: true},
	}
}

func (c *Collection[T]) pump() {
	defer close(c.done)
	for ev := range c.sub.Events() {
		c.Apply(ev)
	}
}

// Apply folds one subscription event into the state and reports whether the
// state changed. A snapshot whose version matches the current one is a
// no-op, so replayed deliveries cause no churn.
func (c *Collection[T]) Apply(ev docstore.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}

	switch {
	case ev.Err != nil:
		c.state = State[T]{Err: ev.Err}
	case ev.Snapshot != nil:
		if !c.state.Loading && c.state.Err == nil && c.state.Version == ev.Snapshot.Version {
			return false
		}
		c.state = State[T]{Data: c.decode(ev.Snapshot), Version: ev.Snapshot.Version}
	default:
		return false
	}
	c.seq++

	select {
	case c.changes <- struct{}{}:
	default:
	}
	return true
}

// State returns the current read model.
func (c *Collection[T]) State() State[T] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Status returns the current state without the data.
func (c *Collection[T]) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{Err: c.state.Err, Loading: c.state.Loading, Version: c.state.Version, Seq: c.seq}
}

// Changes receives a value after each state change. Signals coalesce, so a
// slow reader sees the latest State rather than every intermediate one. The
// channel is closed by Close. Intended for a single reader.
func (c *Collection[T]) Changes() <-chan struct{} {
	return c.changes
}

// Query returns the watched query.
func (c *Collection[T]) Query() docstore.Query {
	return c.query
}

// Close releases the subscription. Safe to call repeatedly; after it
// returns the state no longer changes.
func (c *Collection[T]) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.changes)
		c.mu.Unlock()

		if c.sub != nil {
			c.sub.Close()
			<-c.done
		}
	})
}
