// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"devblog/internal/authz"
	"devblog/internal/docstore"
	"devblog/internal/ids"
	"devblog/internal/middleware"
	"devblog/internal/models"
	"devblog/internal/slug"
)

// UserCounter reports how many accounts exist.
type UserCounter interface {
	Count(ctx context.Context) (int, error)
}

// Admin groups the admin console API. Every route is mounted behind
// RequireAuth, Require2FA and RequireAdmin.
type Admin struct {
	docs   *docstore.Store
	admins *authz.Registry
	blobs  BlobStore
	users  UserCounter

	Posts      *resource[models.Post]
	Categories *resource[models.Category]
	Authors    *resource[models.Author]
}

// NewAdmin creates the admin handler group. blobs may be nil when object
// storage is not configured; icon uploads then answer 503.
func NewAdmin(docs *docstore.Store, admins *authz.Registry, blobs BlobStore, users UserCounter) *Admin {
	a := &Admin{docs: docs, admins: admins, blobs: blobs, users: users}

	a.Posts = &resource[models.Post]{
		docs:       docs,
		collection: models.CollectionPosts,
		validate:   validatePost,
		prepare:    a.preparePost,
		fields:     func(p *models.Post) map[string]any { return p.Fields() },
	}
	a.Categories = &resource[models.Category]{
		docs:       docs,
		collection: models.CollectionCategories,
		validate:   validateCategory,
		prepare: func(_ context.Context, c *models.Category) fieldErrors {
			if c.Slug == "" {
				c.Slug = slug.Generate(c.Name)
			}
			return nil
		},
		fields:   func(c *models.Category) map[string]any { return c.Fields() },
		onDelete: a.deleteIcon,
	}
	a.Authors = &resource[models.Author]{
		docs:       docs,
		collection: models.CollectionAuthors,
		validate:   validateAuthor,
		fields:     func(au *models.Author) map[string]any { return au.Fields() },
		onDelete:   a.deleteIcon,
	}
	return a
}

// preparePost fills the slug and copies the author and category names onto
// the post so it still renders if either is later deleted.
func (a *Admin) preparePost(ctx context.Context, p *models.Post) fieldErrors {
	errs := fieldErrors{}
	if p.Slug == "" {
		p.Slug = slug.Generate(p.Name)
	}

	p.AuthorName = ""
	if id := p.AuthorKey(); id != "" {
		au, err := getAs[models.Author](ctx, a.docs, models.CollectionAuthors, id)
		switch {
		case errors.Is(err, docstore.ErrNotFound):
			errs.add("authorId", "Author does not exist.")
		case err != nil:
			slog.Warn("resolve post author failed", "id", id, "error", err)
		default:
			p.AuthorName = au.Name
		}
	}

	p.CategoryName = ""
	if id := p.CategoryKey(); id != "" {
		c, err := getAs[models.Category](ctx, a.docs, models.CollectionCategories, id)
		switch {
		case errors.Is(err, docstore.ErrNotFound):
			errs.add("categoryId", "Category does not exist.")
		case err != nil:
			slog.Warn("resolve post category failed", "id", id, "error", err)
		default:
			p.CategoryName = c.Name
		}
	}
	return errs
}

func getAs[T any](ctx context.Context, docs *docstore.Store, collection, id string) (T, error) {
	doc, err := docs.Get(ctx, collection, id)
	if err != nil {
		var zero T
		return zero, err
	}
	return docstore.Decode[T](*doc)
}

// resource serves list/get/create/update/delete for one collection.
type resource[T any] struct {
	docs       *docstore.Store
	collection string
	validate   func(*T) fieldErrors
	prepare    func(context.Context, *T) fieldErrors
	fields     func(*T) map[string]any
	onDelete   func(ctx context.Context, collection string, doc *docstore.Document)
}

// Routes mounts the CRUD endpoints of the collection.
func (rs *resource[T]) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", rs.List)
	r.Post("/", rs.Create)
	r.Get("/{id}", rs.Get)
	r.Put("/{id}", rs.Update)
	r.Delete("/{id}", rs.Delete)
	return r
}

// List returns every document of the collection.
func (rs *resource[T]) List(w http.ResponseWriter, r *http.Request) {
	items, err := fetchAll[T](r.Context(), rs.docs, rs.collection)
	if err != nil {
		handleStoreError(w, "list "+rs.collection, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Get returns one document by id.
func (rs *resource[T]) Get(w http.ResponseWriter, r *http.Request) {
	item, err := getAs[T](r.Context(), rs.docs, rs.collection, chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, "get "+rs.collection, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Create stores a new document under a freshly assigned id.
func (rs *resource[T]) Create(w http.ResponseWriter, r *http.Request) {
	rs.write(w, r, ids.New(), http.StatusCreated)
}

// Update overwrites the fields of an existing document.
func (rs *resource[T]) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := rs.docs.Get(r.Context(), rs.collection, id); err != nil {
		handleStoreError(w, "update "+rs.collection, err)
		return
	}
	rs.write(w, r, id, http.StatusOK)
}

func (rs *resource[T]) write(w http.ResponseWriter, r *http.Request, id string, status int) {
	var item T
	if err := decodeJSON(w, r, &item); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	errs := rs.validate(&item)
	if len(errs) == 0 && rs.prepare != nil {
		errs = rs.prepare(r.Context(), &item)
	}
	if len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	fields := rs.fields(&item)
	// Icons are set by UploadIcon; an empty value keeps the stored one.
	if v, _ := fields["iconURL"].(string); v == "" {
		delete(fields, "iconURL")
	}
	doc, err := rs.docs.Set(r.Context(), rs.collection, id, fields, true)
	if err != nil {
		handleStoreError(w, "write "+rs.collection, err)
		return
	}
	saved, err := docstore.Decode[T](*doc)
	if err != nil {
		handleStoreError(w, "decode "+rs.collection, err)
		return
	}
	slog.Info("document saved", "collection", rs.collection, "id", id, "by", actor(r))
	writeJSON(w, status, saved)
}

// Delete removes a document.
func (rs *resource[T]) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	doc, err := rs.docs.Get(ctx, rs.collection, id)
	if err != nil {
		handleStoreError(w, "delete "+rs.collection, err)
		return
	}
	if err := rs.docs.Delete(ctx, rs.collection, id); err != nil {
		handleStoreError(w, "delete "+rs.collection, err)
		return
	}
	if rs.onDelete != nil {
		rs.onDelete(ctx, rs.collection, doc)
	}
	slog.Info("document deleted", "collection", rs.collection, "id", id, "by", actor(r))
	w.WriteHeader(http.StatusNoContent)
}

func actor(r *http.Request) string {
	if p := middleware.PrincipalFromCtx(r.Context()); p != nil {
		return p.Email
	}
	return ""
}

// ListAdmins returns every admin entry.
func (a *Admin) ListAdmins(w http.ResponseWriter, r *http.Request) {
	list, err := a.admins.List(r.Context())
	if err != nil {
		handleStoreError(w, "list admins", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list})
}

// GrantAdmin registers an email as administrator.
func (a *Admin) GrantAdmin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	admin, err := a.admins.Grant(r.Context(), req.Email)
	if errors.Is(err, authz.ErrInvalidEmail) {
		writeValidation(w, fieldErrors{"email": "Email is not valid."})
		return
	}
	if err != nil {
		handleStoreError(w, "grant admin", err)
		return
	}
	slog.Info("admin granted via console", "email", admin.Email, "by", actor(r))
	writeJSON(w, http.StatusCreated, admin)
}

// RevokeAdmin removes an administrator. Admins cannot revoke themselves.
func (a *Admin) RevokeAdmin(w http.ResponseWriter, r *http.Request) {
	email := models.AdminKey(chi.URLParam(r, "email"))
	if email == models.AdminKey(actor(r)) {
		writeError(w, http.StatusConflict, "conflict", "you cannot revoke your own admin access")
		return
	}
	if err := a.admins.Revoke(r.Context(), email); err != nil {
		handleStoreError(w, "revoke admin", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// dashboardStats are the counters shown on the console's landing page.
type dashboardStats struct {
	Posts      int `json:"posts"`
	Categories int `json:"categories"`
	Authors    int `json:"authors"`
	Admins     int `json:"admins"`
	Users      int `json:"users"`
}

// Dashboard counts documents and accounts concurrently.
func (a *Admin) Dashboard(w http.ResponseWriter, r *http.Request) {
	var stats dashboardStats
	g, ctx := errgroup.WithContext(r.Context())

	count := func(collection string, dst *int) {
		g.Go(func() error {
			snap, err := a.docs.Fetch(ctx, docstore.Collection(collection))
			if err != nil {
				return err
			}
			*dst = len(snap.Docs)
			return nil
		})
	}
	count(models.CollectionPosts, &stats.Posts)
	count(models.CollectionCategories, &stats.Categories)
	count(models.CollectionAuthors, &stats.Authors)
	count(models.CollectionAdmins, &stats.Admins)
	if a.users != nil {
		g.Go(func() (err error) {
			stats.Users, err = a.users.Count(ctx)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		handleStoreError(w, "dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// collectionParam maps the {collection} route segment of icon routes.
func collectionParam(r *http.Request) (string, bool) {
	switch c := strings.ToLower(chi.URLParam(r, "collection")); c {
	case models.CollectionAuthors, models.CollectionCategories:
		return c, true
	}
	return "", false
}
