// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package docstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
)

// Decode maps a document onto T through its JSON tags. The document id and
// server timestamps are exposed as "id", "createdAt" and "updatedAt"; they
// override same-named keys in the stored data.
func Decode[T any](doc Document) (T, error) {
	var v T

	m := make(map[string]any, len(doc.Data)+3)
	maps.Copy(m, doc.Data)
	m["id"] = doc.ID
	if !doc.CreatedAt.IsZero() {
		m["createdAt"] = doc.CreatedAt
	}
	if !doc.UpdatedAt.IsZero() {
		m["updatedAt"] = doc.UpdatedAt
	}

	b, err := json.Marshal(m)
	if err != nil {
		return v, fmt.Errorf("encode document %s: %w", doc.ID, err)
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	return v, nil
}

// DecodeAll decodes every document in order. Documents that do not fit T
// are skipped with a warning so one bad record cannot blank a whole list.
func DecodeAll[T any](snap *Snapshot) []T {
	if snap == nil {
		return []T{}
	}
	out := make([]T, 0, len(snap.Docs))
	for _, d := range snap.Docs {
		v, err := Decode[T](d)
		if err != nil {
			slog.Warn("skipping malformed document",
				"collection", snap.Collection, "id", d.ID, "error", err)
			continue
		}
		out = append(out, v)
	}
	return out
}
