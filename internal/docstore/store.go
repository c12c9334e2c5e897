// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package docstore

import (
	"context"
	"fmt"
	"log/slog"
)

// Store is the document store used by the application: a Backend for
// persistence plus a Notifier that tells subscribers when to re-read.
type Store struct {
	backend  Backend
	notifier Notifier
}

// New creates a Store.
func New(backend Backend, notifier Notifier) *Store {
	return &Store{backend: backend, notifier: notifier}
}

// Backend returns the underlying persistence layer.
func (s *Store) Backend() Backend {
	return s.backend
}

// Fetch runs a one-shot query and returns the snapshot.
func (s *Store) Fetch(ctx context.Context, q Query) (*Snapshot, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	docs, err := s.backend.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", q.Key(), err)
	}
	return newSnapshot(q.Collection, docs), nil
}

// Get reads a single document. Returns ErrNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := Collection(collection).Validate(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrNotFound
	}
	return s.backend.Get(ctx, collection, id)
}

// Set upserts a document and notifies subscribers of the collection.
func (s *Store) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) (*Document, error) {
	if err := Collection(collection).Validate(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("set %s: empty document id", collection)
	}
	doc, err := s.backend.Upsert(ctx, collection, id, data, merge)
	if err != nil {
		return nil, fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	s.publish(ctx, collection)
	return doc, nil
}

// Delete removes a document and notifies subscribers of the collection.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := Collection(collection).Validate(); err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, collection, id); err != nil {
		return err
	}
	s.publish(ctx, collection)
	return nil
}

// publish signals a change. The write already succeeded, so a failed
// notification is logged rather than returned.
func (s *Store) publish(ctx context.Context, collection string) {
	if err := s.notifier.Publish(ctx, collection); err != nil {
		slog.Warn("docstore change notification failed", "collection", collection, "error", err)
	}
}

// Subscribe starts a live query. The first event carries the current
// snapshot; every change to the collection produces a new full snapshot.
// The subscription ends after the first error event or when Close is called.
func (s *Store) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)

	// Listen before the initial read so no change can slip in between.
	changes, err := s.notifier.Listen(ctx, q.Collection)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", q.Key(), err)
	}

	sub := newSubscription(q, cancel)
	go sub.run(ctx, func(ctx context.Context) (*Snapshot, error) {
		return s.Fetch(ctx, q)
	}, changes)

	slog.Debug("docstore subscription started", "query", q.Key())
	return sub, nil
}
