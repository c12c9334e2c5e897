// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cache

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"devblog/internal/docstore"
)

const (
	// keyPrefix is the Valkey key prefix for cached responses.
	keyPrefix = "api:"

	// depsPrefix names the per-collection sets of dependent response keys.
	depsPrefix = "api-deps:"

	// genPrefix names the per-collection invalidation counters. They carry
	// no TTL and survive InvalidateAll.
	genPrefix = "api-gen:"

	// DefaultTTL is how long a response stays cached.
	DefaultTTL = 5 * time.Minute
)

// ResponseCache stores rendered JSON responses in Valkey. Every entry
// records the collections it was built from so a change to any of them
// drops it.
type ResponseCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResponseCache creates a response cache. A zero ttl uses DefaultTTL.
func NewResponseCache(client *redis.Client, ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResponseCache{client: client, ttl: ttl}
}

// errStale aborts a Set whose collections were invalidated after its
// Generation was taken.
var errStale = errors.New("stale response")

// Generation is the invalidation state of a set of collections at one
// moment. A response built after taking it may only be stored while the
// state is unchanged.
type Generation struct {
	Deps  []string
	Marks []string
}

func genKeys(deps []string) []string {
	keys := make([]string, len(deps))
	for i, d := range deps {
		keys[i] = genPrefix + d
	}
	return keys
}

func marks(vals []any) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[i] = s
		}
	}
	return out
}

// Generation reads the invalidation counters of deps. Take it before
// building the response that will be passed to Set.
func (c *ResponseCache) Generation(ctx context.Context, deps ...string) Generation {
	g := Generation{Deps: deps}
	if len(deps) == 0 {
		return g
	}
	vals, err := c.client.MGet(ctx, genKeys(deps)...).Result()
	if err != nil {
		slog.Warn("response cache generation error", "deps", deps, "error", err)
		return g
	}
	g.Marks = marks(vals)
	return g
}

// Get returns the cached body for key. Errors count as a miss.
func (c *ResponseCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Warn("response cache get error", "key", key, "error", err)
		return nil, false
	}
	slog.Debug("response cache hit", "key", key)
	return val, true
}

// Set stores body under key and records it against each collection of gen.
// Nothing is stored when any of them was invalidated since gen was taken.
func (c *ResponseCache) Set(ctx context.Context, key string, body []byte, gen Generation) {
	if len(gen.Marks) != len(gen.Deps) {
		return
	}
	keys := genKeys(gen.Deps)
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		if len(keys) > 0 {
			vals, err := tx.MGet(ctx, keys...).Result()
			if err != nil {
				return err
			}
			if !slices.Equal(marks(vals), gen.Marks) {
				return errStale
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, keyPrefix+key, body, c.ttl)
			for _, coll := range gen.Deps {
				pipe.SAdd(ctx, depsPrefix+coll, keyPrefix+key)
				pipe.Expire(ctx, depsPrefix+coll, 2*c.ttl)
			}
			return nil
		})
		return err
	}, keys...)
	switch {
	case err == nil:
	case errors.Is(err, errStale), errors.Is(err, redis.TxFailedErr):
		slog.Debug("response cache skipped stale entry", "key", key)
	default:
		slog.Warn("response cache set error", "key", key, "error", err)
	}
}

// InvalidateCollection drops every response built from collection and
// bumps its counter so responses still being built are not stored.
func (c *ResponseCache) InvalidateCollection(ctx context.Context, collection string) {
	if err := c.client.Incr(ctx, genPrefix+collection).Err(); err != nil {
		slog.Warn("response cache generation bump error", "collection", collection, "error", err)
	}
	set := depsPrefix + collection
	keys, err := c.client.SMembers(ctx, set).Result()
	if err != nil {
		slog.Warn("response cache members error", "collection", collection, "error", err)
		return
	}
	if err := c.client.Del(ctx, append(keys, set)...).Err(); err != nil {
		slog.Warn("response cache invalidate error", "collection", collection, "error", err)
		return
	}
	if len(keys) > 0 {
		slog.Debug("response cache invalidated", "collection", collection, "deleted", len(keys))
	}
}

// InvalidateAll removes all cached responses by scanning for both prefixes.
func (c *ResponseCache) InvalidateAll(ctx context.Context) {
	deleted := 0
	for _, pattern := range []string{keyPrefix + "*", depsPrefix + "*"} {
		var cursor uint64
		for {
			keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
			if err != nil {
				slog.Warn("response cache scan error", "error", err)
				return
			}
			if len(keys) > 0 {
				if err := c.client.Del(ctx, keys...).Err(); err != nil {
					slog.Warn("response cache bulk delete error", "error", err)
				}
				deleted += len(keys)
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
	}
	if deleted > 0 {
		slog.Info("response cache fully cleared", "deleted", deleted)
	}
}

// Follow invalidates a collection's responses each time the notifier
// reports a change to it. It blocks until ctx is done.
func (c *ResponseCache) Follow(ctx context.Context, n docstore.Notifier, collections ...string) error {
	type feed struct {
		collection string
		changes    <-chan struct{}
	}
	feeds := make([]feed, 0, len(collections))
	for _, coll := range collections {
		ch, err := n.Listen(ctx, coll)
		if err != nil {
			return err
		}
		feeds = append(feeds, feed{collection: coll, changes: ch})
	}

	merged := make(chan string, len(feeds))
	for _, f := range feeds {
		go func() {
			for range f.changes {
				select {
				case merged <- f.collection:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case coll := <-merged:
			c.InvalidateCollection(ctx, coll)
		}
	}
}

// Key builds a cache key from a route name and its parameters.
func Key(route string, parts ...string) string {
	if len(parts) == 0 {
		return route
	}
	return route + ":" + strings.Join(parts, ":")
}
