// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"regexp"
	"strings"
	"time"
)

// Author is the byline shown on posts. Author ids are assigned by the
// writer before the first save so the icon can be stored under that id.
type Author struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	IconURL   string     `json:"iconURL,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Fields returns the writable document fields. An empty email is omitted
// so that a merge update keeps the stored one.
func (a *Author) Fields() map[string]any {
	f := map[string]any{
		"name":    a.Name,
		"iconURL": a.IconURL,
	}
	if e := strings.TrimSpace(a.Email); e != "" {
		f["email"] = e
	}
	return f
}

// Admin marks an email as an administrator. The document id is the
// lower-cased email; existence of the document is the only signal used.
type Admin struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// AdminKey normalizes an email into the admins collection key.
func AdminKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}
