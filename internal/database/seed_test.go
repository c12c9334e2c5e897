// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package database

import (
	"context"
	"errors"
	"testing"

	"devblog/internal/models"
)

// recordingGranter captures granted emails instead of writing documents.
type recordingGranter struct {
	granted []string
	err     error
}

func (g *recordingGranter) Grant(_ context.Context, email string) (*models.Admin, error) {
	if g.err != nil {
		return nil, g.err
	}
	key := models.AdminKey(email)
	g.granted = append(g.granted, key)
	return &models.Admin{ID: key, Email: key}, nil
}

func TestSeedIdempotent(t *testing.T) {
	db, err := Connect(testDSN())
	if err != nil {
		t.Skipf("skipping: DB not available: %v", err)
	}
	defer db.Close()

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	// Other packages may share the database, so the users table is not
	// cleared first; Seed must cope with either state.
	ctx := context.Background()
	g := &recordingGranter{}
	if err := Seed(ctx, db, g, "Boot@Example.com"); err != nil {
		t.Fatalf("first Seed: %v", err)
	}
	if err := Seed(ctx, db, g, ""); err != nil {
		t.Fatalf("second Seed: %v", err)
	}

	var userCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM users").Scan(&userCount); err != nil {
		t.Fatalf("count users: %v", err)
	}
	if userCount < 1 {
		t.Errorf("expected at least 1 user, got %d", userCount)
	}

	found := false
	for _, e := range g.granted {
		if e == "boot@example.com" {
			found = true
		}
	}
	if !found {
		t.Errorf("bootstrap admin not granted: %v", g.granted)
	}
}

func TestSeedGrantError(t *testing.T) {
	db, err := Connect(testDSN())
	if err != nil {
		t.Skipf("skipping: DB not available: %v", err)
	}
	defer db.Close()
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	boom := errors.New("store down")
	err = Seed(context.Background(), db, &recordingGranter{err: boom}, "boot@example.com")
	if !errors.Is(err, boom) {
		t.Errorf("Seed err = %v, want wrapped grant error", err)
	}
}
