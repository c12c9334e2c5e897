// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package docstore is a schemaless document database organized into named
// collections. It supports point reads, collection scans, merge upserts and
// live subscriptions that push the complete current result of a query every
// time a document in the collection changes.
//
// Persistence is pluggable (Backend): PostgreSQL JSONB in production, SQLite
// for backup files, and an in-memory map for tests. Change fan-out is done by
// a Notifier: Valkey pub/sub across server instances, or a local in-process
// hub.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

var (
	// ErrNotFound is returned by point reads and deletes of a missing document.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidQuery is returned for malformed collection or field names.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrNotifierClosed ends a subscription whose change feed went away.
	ErrNotifierClosed = errors.New("change notifier closed")
)

var (
	collectionName = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,62}$`)
	fieldName      = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)
)

// Document is one stored record. CreatedAt and UpdatedAt are assigned by the
// backend, never taken from the writer.
type Document struct {
	ID        string         `json:"id"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Filter restricts a query to documents whose top-level Field equals Value.
// A nil Value matches documents where the field is absent or null.
type Filter struct {
	Field string
	Value *string
}

// Eq builds an equality filter.
func Eq(field, value string) Filter {
	return Filter{Field: field, Value: &value}
}

// IsNull builds a filter matching absent or null fields.
func IsNull(field string) Filter {
	return Filter{Field: field}
}

// Query selects documents from one collection. Results are always in
// insertion order (order of first write). Limit <= 0 means no limit.
type Query struct {
	Collection string
	Where      []Filter
	Limit      int
}

// Collection is shorthand for an unfiltered query over a whole collection.
func Collection(name string) Query {
	return Query{Collection: name}
}

// Validate checks collection and field names.
func (q Query) Validate() error {
	if !collectionName.MatchString(q.Collection) {
		return fmt.Errorf("%w: collection %q", ErrInvalidQuery, q.Collection)
	}
	for _, f := range q.Where {
		if !fieldName.MatchString(f.Field) {
			return fmt.Errorf("%w: field %q", ErrInvalidQuery, f.Field)
		}
	}
	return nil
}

// Key identifies the query in logs and cache keys.
func (q Query) Key() string {
	key := q.Collection
	for _, f := range q.Where {
		if f.Value == nil {
			key += "|" + f.Field + "=null"
		} else {
			key += "|" + f.Field + "=" + *f.Value
		}
	}
	if q.Limit > 0 {
		key += "|limit=" + strconv.Itoa(q.Limit)
	}
	return key
}

// Snapshot is the complete current result of a query.
type Snapshot struct {
	Collection string
	Docs       []Document
	// Version fingerprints the ordered contents; equal snapshots share it.
	Version uint64
}

func newSnapshot(collection string, docs []Document) *Snapshot {
	if docs == nil {
		docs = []Document{}
	}
	return &Snapshot{Collection: collection, Docs: docs, Version: fingerprint(docs)}
}

// fingerprint hashes ids, update times and canonical JSON of every document
// in order. encoding/json sorts map keys, so the encoding is stable.
func fingerprint(docs []Document) uint64 {
	h := xxhash.New()
	var ts [8]byte
	for _, d := range docs {
		h.WriteString(d.ID)
		h.Write([]byte{0})
		n := d.UpdatedAt.UnixNano()
		for i := range ts {
			ts[i] = byte(n >> (8 * i))
		}
		h.Write(ts[:])
		b, err := json.Marshal(d.Data)
		if err == nil {
			h.Write(b)
		}
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// Event is one delivery on a subscription: a snapshot or a terminal error.
type Event struct {
	Snapshot *Snapshot
	Err      error
}

// Backend persists documents.
type Backend interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	// Upsert writes data to the document. With merge, top-level fields are
	// merged into the stored document; without, the document is replaced.
	Upsert(ctx context.Context, collection, id string, data map[string]any, merge bool) (*Document, error)
	Delete(ctx context.Context, collection, id string) error
	Collections(ctx context.Context) ([]string, error)
	// Import writes documents verbatim, timestamps included. Used by Copy.
	Import(ctx context.Context, collection string, docs []Document) error
}

// Notifier fans out "collection changed" signals.
type Notifier interface {
	Publish(ctx context.Context, collection string) error
	// Listen returns a channel that receives a value after changes to the
	// collection. Signals are coalesced. The channel is closed when ctx ends.
	Listen(ctx context.Context, collection string) (<-chan struct{}, error)
}

// Getter is the point-read slice of the store.
type Getter interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
}

// Subscriber is the live-query slice of the store.
type Subscriber interface {
	Subscribe(ctx context.Context, q Query) (*Subscription, error)
}
