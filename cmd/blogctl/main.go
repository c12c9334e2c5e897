// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package main is blogctl, the operator CLI for a devblog deployment. It
// talks to the same PostgreSQL and Valkey as the server, using the server's
// environment configuration.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"devblog/internal/authz"
	"devblog/internal/cache"
	"devblog/internal/config"
	"devblog/internal/database"
	"devblog/internal/docstore"
	"devblog/internal/models"
	"devblog/internal/store"
)

const version = "0.1.0"

const usage = `devblog operator CLI.

Grants and revokes admin access, resets lost authenticators, removes
accounts, and copies the document store to and from a SQLite backup file. Connection settings are read from the same
environment variables as the server.

Usage:
    blogctl grant-admin <email>
    blogctl revoke-admin <email>
    blogctl list-admins
    blogctl reset-2fa <email>
    blogctl delete-user <email>
    blogctl backup <file>
    blogctl restore <file> [--no-notify]
    blogctl -h | --help
    blogctl --version

Options:
    -h --help      Show this screen.
    --version      Show version.
    --no-notify    Do not announce restored collections to running servers.`

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := dispatch(ctx, cfg, opts, os.Stdout); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// dispatch connects to the services and runs the selected command.
func dispatch(ctx context.Context, cfg *config.Config, opts docopt.Opts, out io.Writer) error {
	db, err := database.Connect(cfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		return err
	}

	// Without Valkey, writes still land but running servers only see them
	// on their next resubscribe.
	var notifier docstore.Notifier = docstore.NewLocalNotifier()
	client, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
	if err != nil {
		slog.Warn("valkey unavailable, running servers will not be notified", "error", err)
		client = nil
	} else {
		defer client.Close()
		notifier = docstore.NewValkeyNotifier(client)
	}
	docs := docstore.New(docstore.NewPostgresBackend(db), notifier)

	return runCommand(ctx, opts, docs, notifier, client, store.NewUserStore(db), out)
}

// accounts is the part of store.UserStore the CLI needs.
type accounts interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	ResetTOTP(ctx context.Context, userID uuid.UUID) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

// runCommand executes one parsed command against docs. client may be nil.
func runCommand(ctx context.Context, opts docopt.Opts, docs *docstore.Store, notifier docstore.Notifier, client *redis.Client, users accounts, out io.Writer) error {
	registry := authz.NewRegistry(docs)
	email, _ := opts.String("<email>")
	file, _ := opts.String("<file>")

	switch {
	case flag(opts, "grant-admin"):
		a, err := registry.Grant(ctx, email)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "granted admin to %s\n", a.Email)

	case flag(opts, "revoke-admin"):
		if err := registry.Revoke(ctx, email); err != nil {
			return fmt.Errorf("revoke %s: %w", email, err)
		}
		fmt.Fprintf(out, "revoked admin from %s\n", email)

	case flag(opts, "list-admins"):
		list, err := registry.List(ctx)
		if err != nil {
			return err
		}
		for _, a := range list {
			fmt.Fprintln(out, a.Email)
		}

	case flag(opts, "reset-2fa"):
		user, err := findUser(ctx, users, email)
		if err != nil {
			return err
		}
		if err := users.ResetTOTP(ctx, user.ID); err != nil {
			return err
		}
		fmt.Fprintf(out, "reset 2fa for %s\n", user.Email)

	case flag(opts, "delete-user"):
		user, err := findUser(ctx, users, email)
		if err != nil {
			return err
		}
		// Admin status is keyed by email and would otherwise outlive the account.
		if err := registry.Revoke(ctx, user.Email); err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("revoke %s: %w", user.Email, err)
		}
		if err := users.Delete(ctx, user.ID); err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted user %s\n", user.Email)

	case flag(opts, "backup"):
		stats, err := backup(ctx, docs.Backend(), file)
		if err != nil {
			return err
		}
		printStats(out, "backed up", stats)

	case flag(opts, "restore"):
		stats, err := restore(ctx, file, docs.Backend())
		if err != nil {
			return err
		}
		printStats(out, "restored", stats)
		if !flag(opts, "--no-notify") {
			announce(ctx, notifier, stats)
		}
		if client != nil {
			cache.NewResponseCache(client, 0).InvalidateAll(ctx)
		}

	default:
		return fmt.Errorf("no command given")
	}
	return nil
}

func findUser(ctx context.Context, users accounts, email string) (*models.User, error) {
	user, err := users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("no user with email %q", email)
	}
	return user, nil
}

func flag(opts docopt.Opts, name string) bool {
	v, _ := opts.Bool(name)
	return v
}

// backup copies every collection of src into the SQLite file at path.
func backup(ctx context.Context, src docstore.Backend, path string) (docstore.CopyStats, error) {
	dst, err := docstore.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	defer dst.Close()
	return docstore.Copy(ctx, src, dst)
}

// restore copies every collection of the SQLite file at path into dst.
func restore(ctx context.Context, path string, dst docstore.Backend) (docstore.CopyStats, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open backup: %w", err)
	}
	src, err := docstore.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return docstore.Copy(ctx, src, dst)
}

// announce publishes a change for every restored collection so that live
// subscriptions refresh.
func announce(ctx context.Context, n docstore.Notifier, stats docstore.CopyStats) {
	for name := range stats {
		if err := n.Publish(ctx, name); err != nil {
			slog.Warn("change notification failed", "collection", name, "error", err)
		}
	}
}

func printStats(out io.Writer, verb string, stats docstore.CopyStats) {
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "%s %d documents in %s\n", verb, stats[name], name)
	}
}
