// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import "time"

// Category groups posts. Posts reference at most one category.
type Category struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Slug      string     `json:"slug,omitempty"`
	IconURL   string     `json:"iconURL,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Fields returns the writable document fields.
func (c *Category) Fields() map[string]any {
	return map[string]any{
		"name":    c.Name,
		"slug":    c.Slug,
		"iconURL": c.IconURL,
	}
}
