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
)

// PostgresBackend stores documents in the JSONB "documents" table created by
// the database migrations. Timestamps come from the database clock.
type PostgresBackend struct {
	db *sql.DB
}

// NewPostgresBackend wraps an open pgx-backed *sql.DB.
func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (p *PostgresBackend) Get(ctx context.Context, collection, id string) (*Document, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, data, created_at, updated_at
		FROM documents WHERE collection = $1 AND id = $2`, collection, id)

	d, err := scanDocument(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s/%s: %w", collection, id, err)
	}
	return d, nil
}

func (p *PostgresBackend) Query(ctx context.Context, q Query) ([]Document, error) {
	query := `SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1`
	args := []any{q.Collection}
	for _, f := range q.Where {
		args = append(args, f.Field)
		if f.Value == nil {
			query += fmt.Sprintf(` AND (data->>($%d::text)) IS NULL`, len(args))
			continue
		}
		args = append(args, *f.Value)
		query += fmt.Sprintf(` AND data->>($%d::text) = $%d`, len(args)-1, len(args))
	}
	query += ` ORDER BY seq`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents %s: %w", q.Key(), err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		d, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

func (p *PostgresBackend) Upsert(ctx context.Context, collection, id string, data map[string]any, merge bool) (*Document, error) {
	raw, err := encodeData(data)
	if err != nil {
		return nil, err
	}

	update := `data = EXCLUDED.data`
	if merge {
		update = `data = documents.data || EXCLUDED.data`
	}

	row := p.db.QueryRowContext(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET `+update+`, updated_at = NOW()
		RETURNING id, data, created_at, updated_at`, collection, id, raw)

	d, err := scanDocument(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("upsert document: %w", err)
	}
	return d, nil
}

func (p *PostgresBackend) Delete(ctx context.Context, collection, id string) error {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
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

func (p *PostgresBackend) Collections(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
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

func (p *PostgresBackend) Import(ctx context.Context, collection string, docs []Document) error {
	tx, err := p.db.BeginTx(ctx, nil)
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
			VALUES ($1, $2, $3::jsonb, $4, $5)
			ON CONFLICT (collection, id) DO UPDATE
			SET data = EXCLUDED.data, created_at = EXCLUDED.created_at, updated_at = EXCLUDED.updated_at`,
			collection, d.ID, raw, d.CreatedAt, d.UpdatedAt,
		); err != nil {
			return fmt.Errorf("import %s/%s: %w", collection, d.ID, err)
		}
	}
	return tx.Commit()
}

func encodeData(data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode document data: %w", err)
	}
	return string(b), nil
}

// scanDocument reads the id, data, created_at, updated_at column set.
func scanDocument(scan func(dest ...any) error) (*Document, error) {
	var (
		d   Document
		raw []byte
	)
	if err := scan(&d.ID, &raw, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &d.Data); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	if d.Data == nil {
		d.Data = map[string]any{}
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return &d, nil
}
