// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package authz resolves whether a principal is an administrator. Admin
// status is the existence of admins/<lower-cased email> in the document
// store. Every lookup fails closed: errors and timeouts mean "not an admin".
package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"devblog/internal/docstore"
	"devblog/internal/live"
	"devblog/internal/models"
)

// DefaultTimeout bounds a single admin lookup.
const DefaultTimeout = 3 * time.Second

// ErrInvalidEmail is returned when granting admin to a malformed address.
var ErrInvalidEmail = errors.New("invalid email address")

// Principal is the authenticated caller of one request. It is built per
// request and carried in the request context.
type Principal struct {
	UserID      uuid.UUID
	Email       string
	DisplayName string
	IsAdmin     bool
	TwoFADone   bool
}

// Checker performs point lookups in the admins collection.
type Checker struct {
	store   docstore.Getter
	timeout time.Duration
}

// NewChecker creates a Checker. A timeout of zero uses DefaultTimeout.
func NewChecker(store docstore.Getter, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{store: store, timeout: timeout}
}

type lookupResult struct {
	doc *docstore.Document
	err error
}

// IsAdmin reports whether email is registered as an admin. Any failure,
// including a lookup slower than the timeout, resolves to false.
func (c *Checker) IsAdmin(ctx context.Context, email string) bool {
	key := models.AdminKey(email)
	if key == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// The lookup runs apart from the caller so a backend that ignores ctx
	// still cannot hold the request past the timeout.
	done := make(chan lookupResult, 1)
	go func() {
		doc, err := c.store.Get(ctx, models.CollectionAdmins, key)
		done <- lookupResult{doc: doc, err: err}
	}()

	select {
	case <-ctx.Done():
		slog.Warn("admin lookup timed out, denying", "email", key, "error", ctx.Err())
		return false
	case res := <-done:
		if errors.Is(res.err, docstore.ErrNotFound) {
			return false
		}
		if res.err != nil {
			slog.Warn("admin lookup failed, denying", "email", key, "error", res.err)
			return false
		}
		return res.doc != nil
	}
}

// Registry grants and revokes admin status.
type Registry struct {
	store *docstore.Store
}

// NewRegistry creates a Registry over the document store.
func NewRegistry(store *docstore.Store) *Registry {
	return &Registry{store: store}
}

// Grant registers email as an admin. Granting twice is harmless.
func (r *Registry) Grant(ctx context.Context, email string) (*models.Admin, error) {
	key := models.AdminKey(email)
	if !models.ValidEmail(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	doc, err := r.store.Set(ctx, models.CollectionAdmins, key, map[string]any{"email": key}, true)
	if err != nil {
		return nil, fmt.Errorf("grant admin: %w", err)
	}
	slog.Info("admin granted", "email", key)
	return &models.Admin{ID: doc.ID, Email: key, CreatedAt: &doc.CreatedAt}, nil
}

// Revoke removes admin status. Returns docstore.ErrNotFound if email was
// not an admin.
func (r *Registry) Revoke(ctx context.Context, email string) error {
	key := models.AdminKey(email)
	if err := r.store.Delete(ctx, models.CollectionAdmins, key); err != nil {
		return err
	}
	slog.Info("admin revoked", "email", key)
	return nil
}

// List returns every admin in grant order.
func (r *Registry) List(ctx context.Context) ([]models.Admin, error) {
	snap, err := r.store.Fetch(ctx, docstore.Collection(models.CollectionAdmins))
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return docstore.DecodeAll[models.Admin](snap), nil
}

// Watcher is a live admin flag for one email.
type Watcher struct {
	admins *live.Collection[models.Admin]
}

// Watch follows the admin status of email until Close. Like IsAdmin it keys
// on the document id, so entries without an email field still count.
func Watch(ctx context.Context, s docstore.Subscriber, email string) (*Watcher, error) {
	key := models.AdminKey(email)
	c, err := live.Watch[models.Admin](ctx, s, docstore.Collection(models.CollectionAdmins), func(snap *docstore.Snapshot) []models.Admin {
		for _, doc := range snap.Docs {
			if key != "" && doc.ID == key {
				return []models.Admin{{ID: doc.ID, Email: key, CreatedAt: &doc.CreatedAt}}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Watcher{admins: c}, nil
}

// IsAdmin is true only once a snapshot has shown the admin entry. Loading
// and error states are false.
func (w *Watcher) IsAdmin() bool {
	st := w.admins.State()
	return st.Err == nil && !st.Loading && len(st.Data) > 0
}

// Changes signals after every change of the underlying state.
func (w *Watcher) Changes() <-chan struct{} {
	return w.admins.Changes()
}

// Close stops watching. Idempotent.
func (w *Watcher) Close() {
	w.admins.Close()
}
