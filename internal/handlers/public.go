// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"devblog/internal/aggregate"
	"devblog/internal/cache"
	"devblog/internal/docstore"
	"devblog/internal/markdown"
	"devblog/internal/models"
	"devblog/internal/paginate"
)

const (
	// latestFetchLimit and latestCount shape the random "latest posts" strip:
	// a small recent window is shuffled and cut.
	latestFetchLimit = 15
	latestCount      = 10

	viewportHeader = "Sec-CH-Viewport-Width"
)

// ResponseCache stores encoded responses keyed by route and parameters,
// tagged with the collections they were built from.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Generation(ctx context.Context, deps ...string) cache.Generation
	Set(ctx context.Context, key string, body []byte, gen cache.Generation)
}

// Public serves the read-only blog API.
type Public struct {
	docs    *docstore.Store
	cache   ResponseCache
	siteURL string
	shuffle func(n int, swap func(i, j int))
}

// NewPublic creates the public handler group. cache may be nil.
func NewPublic(docs *docstore.Store, cache ResponseCache, siteURL string) *Public {
	return &Public{
		docs:    docs,
		cache:   cache,
		siteURL: strings.TrimRight(siteURL, "/"),
		shuffle: rand.Shuffle,
	}
}

// page is a paginated list response.
type page[T any] struct {
	Items []T `json:"items"`
	paginate.Info
}

func paged[T any](items []T, r *http.Request) page[T] {
	p := paginate.New(items, pageSize(r))
	p.Goto(intParam(r, "page", 1))
	return page[T]{Items: p.Window(), Info: p.Info()}
}

// pageSize follows the responsive rule using the width query parameter or
// the Sec-CH-Viewport-Width client hint.
func pageSize(r *http.Request) int {
	width := intParam(r, "width", 0)
	if width <= 0 {
		width, _ = strconv.Atoi(r.Header.Get(viewportHeader))
	}
	return paginate.PageSizeForWidth(width)
}

func intParam(r *http.Request, name string, fallback int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(name)); err == nil {
		return v
	}
	return fallback
}

// serveCached answers from the response cache when possible, otherwise
// builds, caches and writes the response.
func (p *Public) serveCached(w http.ResponseWriter, r *http.Request, key string, deps []string, build func(ctx context.Context) (any, error)) {
	ctx := r.Context()
	if p.cache != nil {
		if body, ok := p.cache.Get(ctx, key); ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "HIT")
			w.Write(body)
			return
		}
	}

	var gen cache.Generation
	if p.cache != nil {
		gen = p.cache.Generation(ctx, deps...)
	}
	data, err := build(ctx)
	if err != nil {
		handleStoreError(w, "build "+key, err)
		return
	}
	body, err := json.Marshal(data)
	if err != nil {
		slog.Error("encode response failed", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "an internal error occurred")
		return
	}
	body = append(body, '\n')
	if p.cache != nil {
		p.cache.Set(ctx, key, body, gen)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "MISS")
	w.Write(body)
}

var cardDeps = []string{models.CollectionPosts, models.CollectionAuthors, models.CollectionCategories}

// loadCards fetches posts matching q and joins them with authors and
// categories.
func loadCards(ctx context.Context, docs *docstore.Store, q docstore.Query) ([]aggregate.PostCard, error) {
	var posts []models.Post
	var authors []models.Author
	var categories []models.Category

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snap, err := docs.Fetch(ctx, q)
		if err != nil {
			return err
		}
		posts = docstore.DecodeAll[models.Post](snap)
		return nil
	})
	g.Go(func() (err error) {
		authors, err = fetchAll[models.Author](ctx, docs, models.CollectionAuthors)
		return err
	})
	g.Go(func() (err error) {
		categories, err = fetchAll[models.Category](ctx, docs, models.CollectionCategories)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return aggregate.Cards(posts, authors, categories), nil
}

// cardFor joins a single post with its author and category.
func cardFor(ctx context.Context, docs *docstore.Store, post models.Post) (aggregate.PostCard, error) {
	var authors []models.Author
	var categories []models.Category

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		authors, err = fetchAll[models.Author](ctx, docs, models.CollectionAuthors)
		return err
	})
	g.Go(func() (err error) {
		categories, err = fetchAll[models.Category](ctx, docs, models.CollectionCategories)
		return err
	})
	if err := g.Wait(); err != nil {
		return aggregate.PostCard{}, err
	}
	return aggregate.Cards([]models.Post{post}, authors, categories)[0], nil
}

func fetchAll[T any](ctx context.Context, docs *docstore.Store, collection string) ([]T, error) {
	snap, err := docs.Fetch(ctx, docstore.Collection(collection))
	if err != nil {
		return nil, err
	}
	return docstore.DecodeAll[T](snap), nil
}

// Posts lists every post as a card, paginated.
func (p *Public) Posts(w http.ResponseWriter, r *http.Request) {
	size := pageSize(r)
	num := intParam(r, "page", 1)
	key := cache.Key("posts", strconv.Itoa(num), strconv.Itoa(size))
	p.serveCached(w, r, key, cardDeps, func(ctx context.Context) (any, error) {
		cards, err := loadCards(ctx, p.docs, docstore.Collection(models.CollectionPosts))
		if err != nil {
			return nil, err
		}
		return paged(cards, r), nil
	})
}

// Latest returns a random selection of recent posts. Not cached.
func (p *Public) Latest(w http.ResponseWriter, r *http.Request) {
	q := docstore.Query{Collection: models.CollectionPosts, Limit: latestFetchLimit}
	cards, err := loadCards(r.Context(), p.docs, q)
	if err != nil {
		handleStoreError(w, "latest posts", err)
		return
	}
	p.shuffle(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })
	if len(cards) > latestCount {
		cards = cards[:latestCount]
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": cards})
}

// postView is a single post with its rendered body.
type postView struct {
	aggregate.PostCard
	Content string `json:"content"`
	HTML    string `json:"html"`
}

// Post returns one post by id, falling back to a slug lookup.
func (p *Public) Post(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	p.serveCached(w, r, cache.Key("post", ref), cardDeps, func(ctx context.Context) (any, error) {
		post, err := p.findPost(ctx, ref)
		if err != nil {
			return nil, err
		}
		card, err := cardFor(ctx, p.docs, *post)
		if err != nil {
			return nil, err
		}

		html := post.Content
		if !markdown.IsHTML(post.Content) {
			if html, err = markdown.ToHTML(post.Content); err != nil {
				return nil, err
			}
		}
		return postView{PostCard: card, Content: post.Content, HTML: html}, nil
	})
}

func (p *Public) findPost(ctx context.Context, ref string) (*models.Post, error) {
	doc, err := p.docs.Get(ctx, models.CollectionPosts, ref)
	if err == nil {
		post, err := docstore.Decode[models.Post](*doc)
		return &post, err
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return nil, err
	}

	snap, err := p.docs.Fetch(ctx, docstore.Query{
		Collection: models.CollectionPosts,
		Where:      []docstore.Filter{docstore.Eq("slug", ref)},
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	posts := docstore.DecodeAll[models.Post](snap)
	if len(posts) == 0 {
		return nil, docstore.ErrNotFound
	}
	return &posts[0], nil
}

// ByCategory returns every post grouped into category sections.
func (p *Public) ByCategory(w http.ResponseWriter, r *http.Request) {
	deps := []string{models.CollectionPosts, models.CollectionCategories}
	p.serveCached(w, r, "by-category", deps, func(ctx context.Context) (any, error) {
		var posts []models.Post
		var categories []models.Category
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			posts, err = fetchAll[models.Post](ctx, p.docs, models.CollectionPosts)
			return err
		})
		g.Go(func() (err error) {
			categories, err = fetchAll[models.Category](ctx, p.docs, models.CollectionCategories)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return map[string]any{"sections": aggregate.GroupByCategory(posts, categories).Sections}, nil
	})
}

// Categories lists categories in creation order. An optional limit
// parameter caps the list, as used by the home page strip.
func (p *Public) Categories(w http.ResponseWriter, r *http.Request) {
	limit := max(0, intParam(r, "limit", 0))
	key := cache.Key("categories", strconv.Itoa(limit))
	p.serveCached(w, r, key, []string{models.CollectionCategories}, func(ctx context.Context) (any, error) {
		snap, err := p.docs.Fetch(ctx, docstore.Query{Collection: models.CollectionCategories, Limit: limit})
		if err != nil {
			return nil, err
		}
		return map[string]any{"items": docstore.DecodeAll[models.Category](snap)}, nil
	})
}

// Category returns one category and its posts, paginated.
func (p *Public) Category(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key := cache.Key("category", id, strconv.Itoa(intParam(r, "page", 1)), strconv.Itoa(pageSize(r)))
	p.serveCached(w, r, key, cardDeps, func(ctx context.Context) (any, error) {
		doc, err := p.docs.Get(ctx, models.CollectionCategories, id)
		if err != nil {
			return nil, err
		}
		category, err := docstore.Decode[models.Category](*doc)
		if err != nil {
			return nil, err
		}
		cards, err := loadCards(ctx, p.docs, docstore.Query{
			Collection: models.CollectionPosts,
			Where:      []docstore.Filter{docstore.Eq("categoryId", id)},
		})
		if err != nil {
			return nil, err
		}
		return struct {
			Category models.Category `json:"category"`
			page[aggregate.PostCard]
		}{category, paged(cards, r)}, nil
	})
}

// Authors lists every author.
func (p *Public) Authors(w http.ResponseWriter, r *http.Request) {
	p.serveCached(w, r, "authors", []string{models.CollectionAuthors}, func(ctx context.Context) (any, error) {
		items, err := fetchAll[models.Author](ctx, p.docs, models.CollectionAuthors)
		if err != nil {
			return nil, err
		}
		return map[string]any{"items": items}, nil
	})
}
