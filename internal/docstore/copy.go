// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package docstore

import (
	"context"
	"fmt"
	"log/slog"
)

// CopyStats reports how many documents Copy moved per collection.
type CopyStats map[string]int

// Copy writes every document of src into dst, preserving ids, insertion
// order and timestamps. Existing documents in dst with the same id are
// overwritten; others are left alone.
func Copy(ctx context.Context, src, dst Backend) (CopyStats, error) {
	names, err := src.Collections(ctx)
	if err != nil {
		return nil, fmt.Errorf("copy list collections: %w", err)
	}

	stats := make(CopyStats, len(names))
	for _, name := range names {
		docs, err := src.Query(ctx, Collection(name))
		if err != nil {
			return stats, fmt.Errorf("copy read %s: %w", name, err)
		}
		if err := dst.Import(ctx, name, docs); err != nil {
			return stats, fmt.Errorf("copy write %s: %w", name, err)
		}
		stats[name] = len(docs)
		slog.Info("collection copied", "collection", name, "documents", len(docs))
	}
	return stats, nil
}
