// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Collection names in the document store.
const (
	CollectionPosts      = "posts"
	CollectionCategories = "categories"
	CollectionAuthors    = "authors"
	CollectionAdmins     = "admins"
)

// Post is a blog article. CategoryID and AuthorID are soft references:
// nothing guarantees the referenced document still exists.
type Post struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Slug         string     `json:"slug"`
	Content      string     `json:"content"` // rich-text HTML or Markdown
	IconURL      string     `json:"iconURL,omitempty"`
	AuthorID     *string    `json:"authorId,omitempty"`
	AuthorName   string     `json:"authorName,omitempty"` // denormalized fallback
	CategoryID   *string    `json:"categoryId,omitempty"`
	CategoryName string     `json:"categoryName,omitempty"` // denormalized fallback
	CreatedAt    *time.Time `json:"createdAt,omitempty"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
}

// CategoryKey returns the referenced category id, or "" when the post is
// uncategorized.
func (p *Post) CategoryKey() string {
	if p.CategoryID == nil {
		return ""
	}
	return strings.TrimSpace(*p.CategoryID)
}

// AuthorKey returns the referenced author id, or "" when unset.
func (p *Post) AuthorKey() string {
	if p.AuthorID == nil {
		return ""
	}
	return strings.TrimSpace(*p.AuthorID)
}

// Fields returns the writable document fields. References are always
// present so that a merge write can clear them.
func (p *Post) Fields() map[string]any {
	return map[string]any{
		"name":         p.Name,
		"slug":         p.Slug,
		"content":      p.Content,
		"iconURL":      p.IconURL,
		"authorId":     optional(p.AuthorID),
		"authorName":   p.AuthorName,
		"categoryId":   optional(p.CategoryID),
		"categoryName": p.CategoryName,
	}
}

var (
	tagPattern   = regexp.MustCompile(`<[^>]+>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// Excerpt returns the post content with markup stripped, truncated to at
// most max runes. A truncated excerpt ends with "…".
func (p *Post) Excerpt(max int) string {
	text := tagPattern.ReplaceAllString(p.Content, " ")
	text = strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:max])) + "…"
}

// optional turns an empty or nil reference into a JSON null.
func optional(s *string) any {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return strings.TrimSpace(*s)
}
