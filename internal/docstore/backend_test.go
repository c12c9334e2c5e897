// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package docstore_test

import (
	"context"
	"errors"
	"os"
	"slices"
	"testing"
	"time"

	"devblog/internal/database"
	"devblog/internal/docstore"
	"devblog/internal/ids"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func testDSN() string {
	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "devblog")
	pass := envOr("POSTGRES_PASSWORD", "changeme")
	name := envOr("POSTGRES_DB", "devblog")
	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable"
}

// uniqueCollection keeps tests sharing one PostgreSQL database apart.
func uniqueCollection(prefix string) string {
	return prefix + "_" + ids.New()
}

func TestMemoryBackend(t *testing.T) {
	runBackendSuite(t, func(t *testing.T) docstore.Backend {
		return docstore.NewMemoryBackend()
	})
}

func TestSQLiteBackend(t *testing.T) {
	runBackendSuite(t, func(t *testing.T) docstore.Backend {
		b, err := docstore.OpenSQLite(":memory:")
		if err != nil {
			t.Fatalf("OpenSQLite: %v", err)
		}
		t.Cleanup(func() { b.Close() })
		return b
	})
}

func TestPostgresBackend(t *testing.T) {
	db, err := database.Connect(testDSN())
	if err != nil {
		t.Skipf("skipping integration test: DB not reachable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	runBackendSuite(t, func(t *testing.T) docstore.Backend {
		return docstore.NewPostgresBackend(db)
	})
}

func runBackendSuite(t *testing.T, newBackend func(t *testing.T) docstore.Backend) {
	ctx := context.Background()

	t.Run("upsert assigns timestamps and keeps createdAt", func(t *testing.T) {
		b := newBackend(t)
		coll := uniqueCollection("ts")

		first, err := b.Upsert(ctx, coll, "a", map[string]any{"name": "one"}, false)
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		if first.CreatedAt.IsZero() || first.UpdatedAt.IsZero() {
			t.Fatalf("timestamps not assigned: %+v", first)
		}

		time.Sleep(2 * time.Millisecond)
		second, err := b.Upsert(ctx, coll, "a", map[string]any{"name": "two"}, true)
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		if !second.CreatedAt.Equal(first.CreatedAt) {
			t.Errorf("CreatedAt changed: %v -> %v", first.CreatedAt, second.CreatedAt)
		}
		if !second.UpdatedAt.After(first.UpdatedAt) {
			t.Errorf("UpdatedAt not advanced: %v -> %v", first.UpdatedAt, second.UpdatedAt)
		}
	})

	t.Run("merge keeps fields, replace drops them", func(t *testing.T) {
		b := newBackend(t)
		coll := uniqueCollection("merge")

		if _, err := b.Upsert(ctx, coll, "a", map[string]any{"name": "x", "slug": "x"}, false); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		d, err := b.Upsert(ctx, coll, "a", map[string]any{"name": "y"}, true)
		if err != nil {
			t.Fatalf("merge: %v", err)
		}
		if d.Data["name"] != "y" || d.Data["slug"] != "x" {
			t.Errorf("merge result = %v", d.Data)
		}

		d, err = b.Upsert(ctx, coll, "a", map[string]any{"name": "z"}, false)
		if err != nil {
			t.Fatalf("replace: %v", err)
		}
		if _, ok := d.Data["slug"]; ok {
			t.Errorf("replace kept slug: %v", d.Data)
		}

		got, err := b.Get(ctx, coll, "a")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Data["name"] != "z" {
			t.Errorf("Get name = %v, want z", got.Data["name"])
		}
	})

	t.Run("get missing", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Get(ctx, uniqueCollection("missing"), "nope")
		if !errors.Is(err, docstore.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("query keeps insertion order and filters", func(t *testing.T) {
		b := newBackend(t)
		coll := uniqueCollection("posts")

		writes := []struct {
			id   string
			data map[string]any
		}{
			{"p3", map[string]any{"name": "c", "categoryId": "go"}},
			{"p1", map[string]any{"name": "a"}},
			{"p2", map[string]any{"name": "b", "categoryId": "go"}},
			{"p4", map[string]any{"name": "d", "categoryId": nil}},
		}
		for _, w := range writes {
			if _, err := b.Upsert(ctx, coll, w.id, w.data, false); err != nil {
				t.Fatalf("Upsert %s: %v", w.id, err)
			}
		}
		// Updating an early document must not move it.
		if _, err := b.Upsert(ctx, coll, "p3", map[string]any{"name": "c2"}, true); err != nil {
			t.Fatalf("Upsert: %v", err)
		}

		all, err := b.Query(ctx, docstore.Collection(coll))
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if got := docIDs(all); !slices.Equal(got, []string{"p3", "p1", "p2", "p4"}) {
			t.Errorf("order = %v", got)
		}

		inGo, err := b.Query(ctx, docstore.Query{
			Collection: coll,
			Where:      []docstore.Filter{docstore.Eq("categoryId", "go")},
		})
		if err != nil {
			t.Fatalf("Query eq: %v", err)
		}
		if got := docIDs(inGo); !slices.Equal(got, []string{"p3", "p2"}) {
			t.Errorf("eq filter = %v", got)
		}

		none, err := b.Query(ctx, docstore.Query{
			Collection: coll,
			Where:      []docstore.Filter{docstore.IsNull("categoryId")},
		})
		if err != nil {
			t.Fatalf("Query null: %v", err)
		}
		if got := docIDs(none); !slices.Equal(got, []string{"p1", "p4"}) {
			t.Errorf("null filter = %v", got)
		}

		limited, err := b.Query(ctx, docstore.Query{Collection: coll, Limit: 2})
		if err != nil {
			t.Fatalf("Query limit: %v", err)
		}
		if got := docIDs(limited); !slices.Equal(got, []string{"p3", "p1"}) {
			t.Errorf("limit = %v", got)
		}
	})

	t.Run("query empty collection", func(t *testing.T) {
		b := newBackend(t)
		docs, err := b.Query(ctx, docstore.Collection(uniqueCollection("empty")))
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if docs == nil || len(docs) != 0 {
			t.Errorf("docs = %#v, want empty non-nil slice", docs)
		}
	})

	t.Run("delete", func(t *testing.T) {
		b := newBackend(t)
		coll := uniqueCollection("del")

		if _, err := b.Upsert(ctx, coll, "a", map[string]any{"x": "1"}, false); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		if err := b.Delete(ctx, coll, "a"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if err := b.Delete(ctx, coll, "a"); !errors.Is(err, docstore.ErrNotFound) {
			t.Errorf("second Delete err = %v, want ErrNotFound", err)
		}
		if _, err := b.Get(ctx, coll, "a"); !errors.Is(err, docstore.ErrNotFound) {
			t.Errorf("Get after delete err = %v, want ErrNotFound", err)
		}
	})

	t.Run("import preserves timestamps and collections lists it", func(t *testing.T) {
		b := newBackend(t)
		coll := uniqueCollection("imp")

		created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		updated := time.Date(2024, 3, 2, 11, 30, 0, 0, time.UTC)
		docs := []docstore.Document{
			{ID: "b", Data: map[string]any{"name": "B"}, CreatedAt: created, UpdatedAt: updated},
			{ID: "a", Data: map[string]any{"name": "A"}, CreatedAt: created, UpdatedAt: updated},
		}
		if err := b.Import(ctx, coll, docs); err != nil {
			t.Fatalf("Import: %v", err)
		}

		got, err := b.Query(ctx, docstore.Collection(coll))
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if ids := docIDs(got); !slices.Equal(ids, []string{"b", "a"}) {
			t.Errorf("order = %v", ids)
		}
		if !got[0].CreatedAt.Equal(created) || !got[0].UpdatedAt.Equal(updated) {
			t.Errorf("timestamps = %v / %v", got[0].CreatedAt, got[0].UpdatedAt)
		}

		names, err := b.Collections(ctx)
		if err != nil {
			t.Fatalf("Collections: %v", err)
		}
		if !slices.Contains(names, coll) {
			t.Errorf("Collections() = %v, missing %s", names, coll)
		}
	})
}

func docIDs(docs []docstore.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}
