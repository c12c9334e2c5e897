// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package main is the entry point for the devblog server.
// It loads configuration, connects to services, sets up routing, and starts
// the HTTP server with graceful shutdown support.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"devblog/internal/authz"
	"devblog/internal/cache"
	"devblog/internal/config"
	"devblog/internal/database"
	"devblog/internal/docstore"
	"devblog/internal/handlers"
	"devblog/internal/middleware"
	"devblog/internal/models"
	"devblog/internal/router"
	"devblog/internal/session"
	"devblog/internal/storage"
	"devblog/internal/store"
)

func main() {
	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured logger: text in development, JSON elsewhere.
	var handler slog.Handler
	if cfg.IsDev() {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))

	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
	)

	if err := run(cfg); err != nil {
		slog.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped gracefully")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.Connect(cfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	// Run pending migrations.
	if err := database.Migrate(db); err != nil {
		return err
	}

	// Connect to Valkey (sessions, response cache, change notifications).
	valkeyClient, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
	if err != nil {
		return err
	}
	defer valkeyClient.Close()

	// The document store keeps blog content in Postgres and fans changes
	// out over Valkey so every instance's subscriptions stay current.
	notifier := docstore.NewValkeyNotifier(valkeyClient)
	docs := docstore.New(docstore.NewPostgresBackend(db), notifier)
	admins := authz.NewRegistry(docs)

	// Seed the first account and the bootstrap admin (no-op once done).
	if err := database.Seed(ctx, db, admins, cfg.BootstrapAdmin); err != nil {
		return err
	}

	// In non-development environments, mark cookies as Secure (HTTPS-only).
	secure := !cfg.IsDev()
	sessionStore := session.NewStore(valkeyClient, secure)
	userStore := store.NewUserStore(db)
	responses := cache.NewResponseCache(valkeyClient, cfg.CacheTTL)
	// Changes made while no server was following the feed (restores, for
	// one) leave stale entries behind.
	responses.InvalidateAll(ctx)

	// Connect to S3-compatible object storage (optional; icon uploads are
	// disabled without it).
	var blobs handlers.BlobStore
	if cfg.HasStorage() {
		client, err := storage.New(cfg.S3Endpoint, cfg.S3Region, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3PublicURL)
		if err != nil {
			return err
		}
		blobs = client
		slog.Info("s3 storage connected", "endpoint", cfg.S3Endpoint, "bucket", cfg.S3Bucket)
	} else {
		slog.Warn("s3 storage not configured, icon uploads disabled")
	}

	authLimiter := middleware.NewRateLimiter(10, time.Minute)
	defer authLimiter.Stop()

	r := router.New(router.Options{
		Sessions:    sessionStore,
		Admins:      authz.NewChecker(docs, cfg.AdminLookupTimeout),
		Secure:      secure,
		AuthLimiter: authLimiter,
	}, router.Handlers{
		Public: handlers.NewPublic(docs, responses, cfg.SiteURL),
		Auth:   handlers.NewAuth(userStore, sessionStore),
		Admin:  handlers.NewAdmin(docs, admins, blobs, userStore),
		Live:   handlers.NewLive(docs),
	})

	// WriteTimeout stays zero: live sockets are long-lived and enforce their
	// own write deadlines.
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return notifier.Run(gctx)
	})
	g.Go(func() error {
		return responses.Follow(gctx, notifier,
			models.CollectionPosts, models.CollectionCategories, models.CollectionAuthors)
	})
	g.Go(func() error {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")

		// Give active requests up to 30 seconds to complete.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
