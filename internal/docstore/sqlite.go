// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	collection TEXT    NOT NULL,
	id         TEXT    NOT NULL,
	data       TEXT    NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE (collection, id)
);
`

// SQLiteBackend stores documents in a single SQLite file. It backs the
// blogctl backup and restore commands.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a SQLite document file. Use
// ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// One connection: in-memory databases are per-connection, and SQLite
	// allows a single writer anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

// Close closes the database file.
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

func (s *SQLiteBackend) Get(ctx context.Context, collection, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, data, created_at, updated_at
		FROM documents WHERE collection = ? AND id = ?`, collection, id)

	d, err := scanSQLiteDocument(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s/%s: %w", collection, id, err)
	}
	return d, nil
}

func (s *SQLiteBackend) Query(ctx context.Context, q Query) ([]Document, error) {
	query := `SELECT id, data, created_at, updated_at FROM documents WHERE collection = ?`
	args := []any{q.Collection}
	for _, f := range q.Where {
		if f.Value == nil {
			query += ` AND json_extract(data, ?) IS NULL`
			args = append(args, "$."+f.Field)
			continue
		}
		query += ` AND json_extract(data, ?) = ?`
		args = append(args, "$."+f.Field, *f.Value)
	}
	query += ` ORDER BY seq`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents %s: %w", q.Key(), err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		d, err := scanSQLiteDocument(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

func (s *SQLiteBackend) Upsert(ctx context.Context, collection, id string, data map[string]any, merge bool) (*Document, error) {
	raw, err := encodeData(data)
	if err != nil {
		return nil, err
	}

	update := `data = excluded.data`
	if merge {
		update = `data = json_patch(documents.data, excluded.data)`
	}

	now := time.Now().UTC().UnixNano()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET `+update+`, updated_at = excluded.updated_at
		RETURNING id, data, created_at, updated_at`, collection, id, raw, now, now)

	d, err := scanSQLiteDocument(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("upsert document: %w", err)
	}
	return d, nil
}

func (s *SQLiteBackend) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("delete document %s/%s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteBackend) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT collection FROM documents ORDER BY collection`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteBackend) Import(ctx context.Context, collection string, docs []Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("import begin: %w", err)
	}
	defer tx.Rollback()

	for _, d := range docs {
		raw, err := encodeData(d.Data)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, data, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (collection, id) DO UPDATE
			SET data = excluded.data, created_at = excluded.created_at, updated_at = excluded.updated_at`,
			collection, d.ID, raw, d.CreatedAt.UnixNano(), d.UpdatedAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("import %s/%s: %w", collection, d.ID, err)
		}
	}
	return tx.Commit()
}

func scanSQLiteDocument(scan func(dest ...any) error) (*Document, error) {
	var (
		id               string
		raw              string
		created, updated int64
	)
	if err := scan(&id, &raw, &created, &updated); err != nil {
		return nil, err
	}
	d := &Document{ID: id, CreatedAt: unixNano(created), UpdatedAt: unixNano(updated)}
	if err := json.Unmarshal([]byte(raw), &d.Data); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	if d.Data == nil {
		d.Data = map[string]any{}
	}
	return d, nil
}

// unixNano converts stored nanosecond timestamps.
func unixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
