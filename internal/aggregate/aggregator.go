// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package aggregate

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"devblog/internal/docstore"
	"devblog/internal/live"
	"devblog/internal/models"
)

// Source is a live input of an Aggregator.
type Source interface {
	Status() live.Status
	Changes() <-chan struct{}
	Close()
}

// Result is one output of an Aggregator: a derived value or the error that
// stopped it.
type Result[V any] struct {
	Value V
	Err   error
}

// Aggregator recomputes a derived value whenever one of its sources
// changes. Recomputation happens on a single goroutine, so compute never
// runs concurrently with itself.
//
// Nothing is emitted while any source is still loading. The first source
// error is emitted and ends the aggregation; partial results built from the
// healthy sources are never produced. A change that leaves every source
// version as it was emits nothing.
type Aggregator[V any] struct {
	sources []Source
	compute func() V
	updates chan Result[V]
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once

	mu       sync.RWMutex
	latest   *Result[V]
	versions []uint64
}

// New starts an aggregator over sources. It takes ownership of the sources
// and closes them on Close.
func New[V any](ctx context.Context, compute func() V, sources ...Source) *Aggregator[V] {
	ctx, cancel := context.WithCancel(ctx)
	a := &Aggregator[V]{
		sources: sources,
		compute: compute,
		updates: make(chan Result[V], 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go a.run(ctx)
	return a
}

// Updates delivers results, newest first when the reader lags: an unread
// result is replaced by a newer one. Closed when the aggregation ends.
func (a *Aggregator[V]) Updates() <-chan Result[V] {
	return a.updates
}

// Latest returns the most recent result, if any has been produced.
func (a *Aggregator[V]) Latest() (Result[V], bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.latest == nil {
		return Result[V]{}, false
	}
	return *a.latest, true
}

// Close stops the aggregation and closes every source. Idempotent.
func (a *Aggregator[V]) Close() {
	a.once.Do(func() {
		a.cancel()
		<-a.done
		for range a.updates {
		}
		for _, s := range a.sources {
			s.Close()
		}
	})
}

func (a *Aggregator[V]) run(ctx context.Context) {
	defer close(a.done)
	defer close(a.updates)

	trigger := make(chan struct{}, 1)
	trigger <- struct{}{}

	var wg sync.WaitGroup
	for _, s := range a.sources {
		wg.Add(1)
		go func(changes <-chan struct{}) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-changes:
					if !ok {
						return
					}
					select {
					case trigger <- struct{}{}:
					default:
					}
				}
			}
		}(s.Changes())
	}
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-trigger:
			if a.step(ctx) {
				// Release the forwarders so Updates closes.
				a.cancel()
				return
			}
		}
	}
}

// step recomputes if every source is ready and something changed. Returns
// true when the aggregation must stop.
func (a *Aggregator[V]) step(ctx context.Context) bool {
	for ctx.Err() == nil {
		statuses, stop := a.statuses(ctx)
		if stop {
			return true
		}
		if statuses == nil {
			return false
		}

		versions := make([]uint64, len(statuses))
		for i, st := range statuses {
			versions[i] = st.Version
		}
		a.mu.RLock()
		unchanged := a.versions != nil && slices.Equal(versions, a.versions)
		a.mu.RUnlock()
		if unchanged {
			return false
		}

		v := a.compute()
		// compute reads the sources itself; a source that moved meanwhile
		// may have been read half-way, so the value is rebuilt.
		if !a.settled(statuses) {
			continue
		}
		a.mu.Lock()
		a.versions = versions
		a.mu.Unlock()
		a.publish(ctx, Result[V]{Value: v})
		return false
	}
	return false
}

// statuses reads every source. It publishes the first error and reports
// stop, and returns nil statuses while any source is loading.
func (a *Aggregator[V]) statuses(ctx context.Context) ([]live.Status, bool) {
	statuses := make([]live.Status, len(a.sources))
	for i, s := range a.sources {
		statuses[i] = s.Status()
		if err := statuses[i].Err; err != nil {
			slog.Warn("aggregation stopped by source error", "source", i, "error", err)
			a.publish(ctx, Result[V]{Err: err})
			return nil, true
		}
	}
	for _, st := range statuses {
		if st.Loading {
			return nil, false
		}
	}
	return statuses, false
}

// settled reports whether every source is still in the state it had before.
func (a *Aggregator[V]) settled(before []live.Status) bool {
	for i, s := range a.sources {
		st := s.Status()
		if st.Err != nil || st.Loading || st.Version != before[i].Version || st.Seq != before[i].Seq {
			return false
		}
	}
	return true
}

func (a *Aggregator[V]) publish(ctx context.Context, r Result[V]) {
	a.mu.Lock()
	a.latest = &r
	a.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case a.updates <- r:
			return
		default:
		}
		select {
		case <-a.updates:
		default:
		}
	}
}

// NewPostsByCategory watches posts and categories and emits a fresh
// Grouping whenever either changes.
func NewPostsByCategory(ctx context.Context, s docstore.Subscriber) (*Aggregator[Grouping], error) {
	posts, err := live.Watch[models.Post](ctx, s, docstore.Collection(models.CollectionPosts), nil)
	if err != nil {
		return nil, err
	}
	categories, err := live.Watch[models.Category](ctx, s, docstore.Collection(models.CollectionCategories), nil)
	if err != nil {
		posts.Close()
		return nil, err
	}

	return New(ctx, func() Grouping {
		return GroupByCategory(posts.State().Data, categories.State().Data)
	}, posts, categories), nil
}

// NewPostCards watches posts (optionally filtered by q) together with
// authors and categories and emits joined cards.
func NewPostCards(ctx context.Context, s docstore.Subscriber, q docstore.Query) (*Aggregator[[]PostCard], error) {
	if q.Collection == "" {
		q.Collection = models.CollectionPosts
	}
	posts, err := live.Watch[models.Post](ctx, s, q, nil)
	if err != nil {
		return nil, err
	}
	authors, err := live.Watch[models.Author](ctx, s, docstore.Collection(models.CollectionAuthors), nil)
	if err != nil {
		posts.Close()
		return nil, err
	}
	categories, err := live.Watch[models.Category](ctx, s, docstore.Collection(models.CollectionCategories), nil)
	if err != nil {
		posts.Close()
		authors.Close()
		return nil, err
	}

	return New(ctx, func() []PostCard {
		return Cards(posts.State().Data, authors.State().Data, categories.State().Data)
	}, posts, authors, categories), nil
}
