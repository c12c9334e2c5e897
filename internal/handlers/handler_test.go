// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// handler_test.go provides shared fixtures for handler tests. The document
// store runs on the in-memory backend; account storage and sessions are
// faked so the tests need neither PostgreSQL nor Valkey.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"sync"
	"testing"

	"devblog/internal/cache"
	"devblog/internal/docstore"
	"devblog/internal/models"
)

func newDocs() *docstore.Store {
	return docstore.New(docstore.NewMemoryBackend(), docstore.NewLocalNotifier())
}

func mustSet(t *testing.T, docs *docstore.Store, collection, id string, data map[string]any) {
	t.Helper()
	if _, err := docs.Set(context.Background(), collection, id, data, false); err != nil {
		t.Fatalf("Set %s/%s: %v", collection, id, err)
	}
}

// seedBlog writes two categories, one author and n posts. Post i is
// "post-i"; even posts belong to "go", every third has no category, the
// rest point at "rust". Only post-0 has an author.
func seedBlog(t *testing.T, docs *docstore.Store, n int) {
	t.Helper()
	mustSet(t, docs, models.CollectionCategories, "go", map[string]any{"name": "Go", "slug": "go"})
	mustSet(t, docs, models.CollectionCategories, "rust", map[string]any{"name": "Rust", "slug": "rust"})
	mustSet(t, docs, models.CollectionAuthors, "ann", map[string]any{"name": "Ann", "email": "ann@example.com"})

	for i := range n {
		data := map[string]any{
			"name":    fmt.Sprintf("Post %d", i),
			"slug":    fmt.Sprintf("post-%d", i),
			"content": fmt.Sprintf("# Post %d\n\nBody of post %d.", i, i),
		}
		switch {
		case i%2 == 0:
			data["categoryId"] = "go"
		case i%3 == 0:
		default:
			data["categoryId"] = "rust"
		}
		if i == 0 {
			data["authorId"] = "ann"
		}
		mustSet(t, docs, models.CollectionPosts, fmt.Sprintf("p%02d", i), data)
	}
}

// mapCache is an in-memory ResponseCache. afterGeneration, when set, runs
// once a generation has been handed out.
type mapCache struct {
	mu              sync.Mutex
	entries         map[string][]byte
	deps            map[string][]string
	gens            map[string]int
	afterGeneration func()
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string][]byte{}, deps: map[string][]string{}, gens: map[string]int{}}
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.entries[key]
	return b, ok
}

func (c *mapCache) Generation(_ context.Context, deps ...string) cache.Generation {
	c.mu.Lock()
	g := cache.Generation{Deps: deps, Marks: make([]string, len(deps))}
	for i, d := range deps {
		g.Marks[i] = strconv.Itoa(c.gens[d])
	}
	hook := c.afterGeneration
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	return g
}

func (c *mapCache) Set(_ context.Context, key string, body []byte, gen cache.Generation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, d := range gen.Deps {
		if strconv.Itoa(c.gens[d]) != gen.Marks[i] {
			return
		}
	}
	c.entries[key] = body
	c.deps[key] = gen.Deps
}

func (c *mapCache) invalidate(collection string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[collection]++
	for key, deps := range c.deps {
		if slices.Contains(deps, collection) {
			delete(c.entries, key)
			delete(c.deps, key)
		}
	}
}

// do runs a request through h and returns the recorder.
func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, body io.Reader) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}
