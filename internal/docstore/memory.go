// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package docstore

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemoryBackend keeps documents in process memory. Used by tests and by
// single-binary development setups without PostgreSQL.
type MemoryBackend struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
	last        time.Time

	// FailWith, when set, makes every operation return it.
	FailWith error
}

type memCollection struct {
	order []string
	docs  map[string]*Document
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{collections: make(map[string]*memCollection)}
}

// now returns a strictly increasing timestamp so every write changes
// UpdatedAt, even within the clock's resolution.
func (m *MemoryBackend) now() time.Time {
	t := time.Now().UTC()
	if !t.After(m.last) {
		t = m.last.Add(time.Microsecond)
	}
	m.last = t
	return t
}

func (m *MemoryBackend) Get(_ context.Context, collection, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}

	c, ok := m.collections[collection]
	if !ok {
		return nil, ErrNotFound
	}
	d, ok := c.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneDoc(d)
	return &out, nil
}

func (m *MemoryBackend) Query(_ context.Context, q Query) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}

	c, ok := m.collections[q.Collection]
	if !ok {
		return []Document{}, nil
	}
	out := make([]Document, 0, len(c.order))
	for _, id := range c.order {
		d := c.docs[id]
		if !matches(d.Data, q.Where) {
			continue
		}
		out = append(out, cloneDoc(d))
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryBackend) Upsert(_ context.Context, collection, id string, data map[string]any, merge bool) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}

	c, ok := m.collections[collection]
	if !ok {
		c = &memCollection{docs: make(map[string]*Document)}
		m.collections[collection] = c
	}

	now := m.now()
	d, exists := c.docs[id]
	if !exists {
		d = &Document{ID: id, Data: map[string]any{}, CreatedAt: now}
		c.docs[id] = d
		c.order = append(c.order, id)
	}
	if merge {
		next := maps.Clone(d.Data)
		maps.Copy(next, data)
		d.Data = next
	} else {
		d.Data = maps.Clone(data)
		if d.Data == nil {
			d.Data = map[string]any{}
		}
	}
	d.UpdatedAt = now

	out := cloneDoc(d)
	return &out, nil
}

func (m *MemoryBackend) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}

	c, ok := m.collections[collection]
	if !ok {
		return ErrNotFound
	}
	if _, ok := c.docs[id]; !ok {
		return ErrNotFound
	}
	delete(c.docs, id)
	c.order = slices.DeleteFunc(c.order, func(s string) bool { return s == id })
	return nil
}

func (m *MemoryBackend) Collections(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}

	names := make([]string, 0, len(m.collections))
	for name, c := range m.collections {
		if len(c.docs) > 0 {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func (m *MemoryBackend) Import(_ context.Context, collection string, docs []Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}

	c, ok := m.collections[collection]
	if !ok {
		c = &memCollection{docs: make(map[string]*Document)}
		m.collections[collection] = c
	}
	for _, d := range docs {
		if _, exists := c.docs[d.ID]; !exists {
			c.order = append(c.order, d.ID)
		}
		cp := cloneDoc(&d)
		c.docs[d.ID] = &cp
	}
	return nil
}

func cloneDoc(d *Document) Document {
	return Document{
		ID:        d.ID,
		Data:      maps.Clone(d.Data),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// matches applies equality filters the same way the SQL backends do: values
// compare as strings, and a nil filter value matches absent or null fields.
func matches(data map[string]any, where []Filter) bool {
	for _, f := range where {
		v, ok := data[f.Field]
		if f.Value == nil {
			if ok && v != nil {
				return false
			}
			continue
		}
		s, isString := v.(string)
		if !ok || !isString || s != *f.Value {
			return false
		}
	}
	return true
}
