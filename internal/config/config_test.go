// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package config

import (
	"strings"
	"testing"
	"time"
)

var allEnvVars = []string{
	"APP_HOST", "APP_PORT", "APP_ENV", "SITE_URL",
	"POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB",
	"VALKEY_HOST", "VALKEY_PORT", "VALKEY_PASSWORD",
	"S3_ENDPOINT", "S3_REGION", "S3_ACCESS_KEY", "S3_SECRET_KEY", "S3_BUCKET", "S3_PUBLIC_URL",
	"BOOTSTRAP_ADMIN_EMAIL", "ADMIN_LOOKUP_TIMEOUT", "CACHE_TTL",
}

// clearEnv sets every variable Load reads to "", which envOrDefault treats
// the same as unset. t.Setenv restores the originals after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	check := func(field, got, want string) {
		t.Helper()
		if got != want {
			t.Errorf("%s = %q, want %q", field, got, want)
		}
	}

	check("Host", cfg.Host, "0.0.0.0")
	check("Port", cfg.Port, "8080")
	check("Env", cfg.Env, "development")
	check("SiteURL", cfg.SiteURL, "http://localhost:8080")
	check("DBUser", cfg.DBUser, "devblog")
	check("DBName", cfg.DBName, "devblog")
	check("ValkeyPort", cfg.ValkeyPort, "6379")
	check("S3Region", cfg.S3Region, "us-east-1")
	check("S3Bucket", cfg.S3Bucket, "devblog-public")

	if cfg.AdminLookupTimeout != 3*time.Second {
		t.Errorf("AdminLookupTimeout = %v, want 3s", cfg.AdminLookupTimeout)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL = %v, want 5m", cfg.CacheTTL)
	}
	if cfg.HasStorage() {
		t.Error("HasStorage() = true with no S3 credentials")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_PORT", "9090")
	t.Setenv("APP_ENV", "testing")
	t.Setenv("POSTGRES_HOST", "db.example.com")
	t.Setenv("S3_ENDPOINT", "https://s3.example.com")
	t.Setenv("S3_ACCESS_KEY", "ak")
	t.Setenv("S3_SECRET_KEY", "sk")
	t.Setenv("ADMIN_LOOKUP_TIMEOUT", "750ms")
	t.Setenv("CACHE_TTL", "30")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.IsDev() {
		t.Error("IsDev() = true for testing env")
	}
	if !cfg.HasStorage() {
		t.Error("HasStorage() = false with credentials set")
	}
	if cfg.AdminLookupTimeout != 750*time.Millisecond {
		t.Errorf("AdminLookupTimeout = %v, want 750ms", cfg.AdminLookupTimeout)
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("CacheTTL = %v, want 30s", cfg.CacheTTL)
	}
	if !strings.Contains(cfg.DSN(), "@db.example.com:5432/") {
		t.Errorf("DSN() = %q, missing host", cfg.DSN())
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("CACHE_TTL", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid CACHE_TTL")
	}
}

func TestLoad_ProductionRequiresPassword(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for default password in production")
	}
	if !strings.Contains(err.Error(), "POSTGRES_PASSWORD") {
		t.Errorf("error = %q, want mention of POSTGRES_PASSWORD", err)
	}

	t.Setenv("POSTGRES_PASSWORD", "s3cret")
	if _, err := Load(); err != nil {
		t.Fatalf("Load with password: %v", err)
	}
}

func TestAddr(t *testing.T) {
	cfg := &Config{Host: "127.0.0.1", Port: "3000"}
	if got := cfg.Addr(); got != "127.0.0.1:3000" {
		t.Errorf("Addr() = %q, want 127.0.0.1:3000", got)
	}
}
