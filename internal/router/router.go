// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package router sets up all HTTP routes and middleware chains for the
// blog API. It organizes routes into public, account, admin and live groups
// with appropriate middleware stacks.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"devblog/internal/handlers"
	"devblog/internal/middleware"
)

// Options carries the collaborators of the middleware stack.
type Options struct {
	Sessions middleware.SessionGetter
	Admins   middleware.AdminChecker
	// Secure marks cookies Secure and enables HSTS.
	Secure bool
	// AuthLimiter throttles sign-in, sign-up and 2FA attempts. Optional.
	AuthLimiter *middleware.RateLimiter
}

// Handlers groups the handler sets served by the router.
type Handlers struct {
	Public *handlers.Public
	Auth   *handlers.Auth
	Admin  *handlers.Admin
	Live   *handlers.Live
}

// New creates and returns the configured Chi router with all middleware
// and route groups wired up.
func New(opts Options, h Handlers) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to every request.
	r.Use(chimw.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.SecureHeaders(opts.Secure))
	r.Use(middleware.LoadSession(opts.Sessions))
	r.Use(middleware.LoadPrincipal(opts.Admins))

	// Health check and sitemap: no auth, no CSRF.
	r.Get("/health", healthHandler)
	r.Get("/sitemap.xml", h.Public.Sitemap)

	limited := func(r chi.Router) {
		if opts.AuthLimiter != nil {
			r.Use(opts.AuthLimiter.Middleware)
		}
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewCSRF(opts.Secure))

		// Public read API.
		r.Get("/posts", h.Public.Posts)
		r.Get("/posts/latest", h.Public.Latest)
		r.Get("/posts/by-category", h.Public.ByCategory)
		r.Get("/posts/{ref}", h.Public.Post)
		r.Get("/categories", h.Public.Categories)
		r.Get("/categories/{id}", h.Public.Category)
		r.Get("/authors", h.Public.Authors)

		// Accounts.
		r.Route("/auth", func(r chi.Router) {
			r.Get("/csrf", h.Auth.CSRF)
			r.Get("/me", h.Auth.Me)
			r.Post("/logout", h.Auth.Logout)

			r.Group(func(r chi.Router) {
				limited(r)
				r.Post("/signup", h.Auth.Signup)
				r.Post("/login", h.Auth.Login)
			})

			// 2FA requires a session but not completed 2FA.
			r.Group(func(r chi.Router) {
				limited(r)
				r.Use(middleware.RequireAuth)
				r.Post("/2fa/setup", h.Auth.TwoFASetup)
				r.Post("/2fa/verify", h.Auth.TwoFAVerify)
			})
		})

		// Admin console: authenticated, 2FA-verified admins only.
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Use(middleware.Require2FA)
			r.Use(middleware.RequireAdmin)

			r.Get("/dashboard", h.Admin.Dashboard)
			r.Mount("/posts", h.Admin.Posts.Routes())
			r.Mount("/categories", h.Admin.Categories.Routes())
			r.Mount("/authors", h.Admin.Authors.Routes())
			r.Put("/icons/{collection}/{id}", h.Admin.UploadIcon)

			r.Route("/admins", func(r chi.Router) {
				r.Get("/", h.Admin.ListAdmins)
				r.Post("/", h.Admin.GrantAdmin)
				r.Delete("/{email}", h.Admin.RevokeAdmin)
			})
		})
	})

	// Live streams (WebSocket). Upgrades are GET requests, so CSRF does not
	// apply; the upgrader rejects cross-origin handshakes.
	r.Route("/live", func(r chi.Router) {
		r.Get("/posts-by-category", h.Live.PostsByCategory)
		r.Get("/cards", h.Live.Cards)
		r.Get("/collections/{name}", h.Live.Collection)
		r.With(middleware.RequireAuth, middleware.Require2FA).Get("/admin", h.Live.AdminFlag)
	})

	return r
}

// healthHandler returns a simple JSON health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
