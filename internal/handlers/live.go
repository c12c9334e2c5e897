// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"devblog/internal/aggregate"
	"devblog/internal/authz"
	"devblog/internal/docstore"
	"devblog/internal/live"
	"devblog/internal/middleware"
	"devblog/internal/models"
	"devblog/internal/paginate"
)

// Live serves websocket streams that push the current result of a query
// every time the underlying documents change.
type Live struct {
	docs *docstore.Store
}

// NewLive creates the live stream handlers.
func NewLive(docs *docstore.Store) *Live {
	return &Live{docs: docs}
}

// PostsByCategory streams the posts grouped by category.
func (l *Live) PostsByCategory(w http.ResponseWriter, r *http.Request) {
	serveSocket(w, r, "posts-by-category", func(ctx context.Context, s *socket) error {
		if err := s.loading(ctx); err != nil {
			return err
		}
		agg, err := aggregate.NewPostsByCategory(ctx, l.docs)
		if err != nil {
			return s.fail(ctx, err)
		}
		defer agg.Close()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.commands:
			case res, ok := <-agg.Updates():
				if !ok {
					return nil
				}
				if res.Err != nil {
					return s.fail(ctx, res.Err)
				}
				msg := liveMessage{Type: "snapshot", Data: map[string]any{"sections": res.Value.Sections}}
				if err := s.emit(ctx, msg); err != nil {
					return err
				}
			}
		}
	})
}

// Cards streams one page of post cards. The client moves between pages
// with next, prev and goto commands, and reports viewport changes with
// resize. Query parameters: category (optional) and width.
func (l *Live) Cards(w http.ResponseWriter, r *http.Request) {
	q := docstore.Collection(models.CollectionPosts)
	if id := r.URL.Query().Get("category"); id != "" {
		if id == aggregate.Uncategorized {
			q.Where = append(q.Where, docstore.IsNull("categoryId"))
		} else {
			q.Where = append(q.Where, docstore.Eq("categoryId", id))
		}
	}
	width, _ := strconv.Atoi(r.URL.Query().Get("width"))

	serveSocket(w, r, "cards", func(ctx context.Context, s *socket) error {
		if err := s.loading(ctx); err != nil {
			return err
		}
		agg, err := aggregate.NewPostCards(ctx, l.docs, q)
		if err != nil {
			return s.fail(ctx, err)
		}
		defer agg.Close()

		p := paginate.New[aggregate.PostCard](nil, paginate.PageSizeForWidth(width))
		ready := false
		push := func() error {
			if !ready {
				return nil
			}
			info := p.Info()
			return s.emit(ctx, liveMessage{Type: "snapshot", Data: p.Window(), Page: &info})
		}

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case cmd := <-s.commands:
				applyCommand(p, cmd)
				if err := push(); err != nil {
					return err
				}
			case res, ok := <-agg.Updates():
				if !ok {
					return nil
				}
				if res.Err != nil {
					return s.fail(ctx, res.Err)
				}
				p.SetItems(res.Value)
				ready = true
				if err := push(); err != nil {
					return err
				}
			}
		}
	})
}

// applyCommand moves the paginator. A resize changes the page size and
// clamps the current page to the new page count.
func applyCommand[T any](p *paginate.Paginator[T], cmd command) {
	switch cmd.Op {
	case "next":
		p.Next()
	case "prev":
		p.Prev()
	case "goto":
		p.Goto(cmd.Page)
	case "resize":
		p.SetPageSize(paginate.PageSizeForWidth(cmd.Width))
		p.Clamp()
	}
}

// Collection streams every document of posts, categories or authors.
func (l *Live) Collection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	switch name {
	case models.CollectionPosts:
		serveSocket(w, r, name, streamCollection[models.Post](l.docs, name))
	case models.CollectionCategories:
		serveSocket(w, r, name, streamCollection[models.Category](l.docs, name))
	case models.CollectionAuthors:
		serveSocket(w, r, name, streamCollection[models.Author](l.docs, name))
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown collection")
	}
}

func streamCollection[T any](docs *docstore.Store, collection string) func(context.Context, *socket) error {
	return func(ctx context.Context, s *socket) error {
		if err := s.loading(ctx); err != nil {
			return err
		}
		c, err := live.Watch[T](ctx, docs, docstore.Collection(collection), nil)
		if err != nil {
			return s.fail(ctx, err)
		}
		defer c.Close()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.commands:
			case _, ok := <-c.Changes():
				if !ok {
					return nil
				}
				st := c.State()
				if st.Err != nil {
					return s.fail(ctx, st.Err)
				}
				if st.Loading {
					continue
				}
				if err := s.emit(ctx, liveMessage{Type: "snapshot", Data: st.Data}); err != nil {
					return err
				}
			}
		}
	}
}

// AdminFlag streams whether the signed-in user is an admin. The flag is
// false while loading and after any error.
func (l *Live) AdminFlag(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "sign in required")
		return
	}

	serveSocket(w, r, "admin-flag", func(ctx context.Context, s *socket) error {
		if err := s.loading(ctx); err != nil {
			return err
		}
		watcher, err := authz.Watch(ctx, l.docs, p.Email)
		if err != nil {
			return s.fail(ctx, err)
		}
		defer watcher.Close()

		sent, last := false, false
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.commands:
			case _, ok := <-watcher.Changes():
				if !ok {
					return nil
				}
				admin := watcher.IsAdmin()
				if sent && admin == last {
					continue
				}
				sent, last = true, admin
				msg := liveMessage{Type: "snapshot", Data: map[string]bool{"isAdmin": admin}}
				if err := s.emit(ctx, msg); err != nil {
					return err
				}
			}
		}
	})
}
