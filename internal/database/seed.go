// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"devblog/internal/models"
)

// DefaultAdminEmail is the account created on an empty database.
const DefaultAdminEmail = "admin@devblog.local"

// AdminGranter registers an email in the admins collection.
type AdminGranter interface {
	Grant(ctx context.Context, email string) (*models.Admin, error)
}

// Seed creates a default account when the users table is empty and grants
// admin to it and to bootstrapAdmin (if set). The account must enrol in 2FA
// on first login. Safe to run on every start.
func Seed(ctx context.Context, db *sql.DB, admins AdminGranter, bootstrapAdmin string) error {
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return fmt.Errorf("seed check users: %w", err)
	}

	if count == 0 {
		hash, err := bcrypt.GenerateFromPassword([]byte("admin"), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("seed bcrypt: %w", err)
		}
		_, err = db.ExecContext(ctx, `
			INSERT INTO users (email, password_hash, display_name, totp_enabled)
			VALUES ($1, $2, $3, FALSE)
		`, DefaultAdminEmail, string(hash), "Admin")
		if err != nil {
			return fmt.Errorf("seed insert admin: %w", err)
		}
		if _, err := admins.Grant(ctx, DefaultAdminEmail); err != nil {
			return fmt.Errorf("seed grant admin: %w", err)
		}
		slog.Info("database seeded with default admin user",
			"email", DefaultAdminEmail,
			"password", "admin",
		)
	} else {
		slog.Info("database already seeded, skipping")
	}

	if bootstrapAdmin != "" {
		if _, err := admins.Grant(ctx, bootstrapAdmin); err != nil {
			return fmt.Errorf("seed bootstrap admin: %w", err)
		}
	}
	return nil
}
