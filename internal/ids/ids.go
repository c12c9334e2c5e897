// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package ids generates document identifiers on the client side of a write,
// for entities whose id must be known before the first write (for example
// to name an uploaded icon after its owner).
package ids

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// New returns a random, URL-safe, lexically time-ordered identifier.
func New() string {
	return strings.ToLower(ulid.Make().String())
}

// Valid reports whether id looks like an identifier produced by New.
func Valid(id string) bool {
	_, err := ulid.ParseStrict(strings.ToUpper(id))
	return err == nil
}
