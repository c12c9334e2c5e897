// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package aggregate

import (
	"time"

	"devblog/internal/models"
)

const (
	// DefaultAuthorName labels posts whose author cannot be resolved.
	DefaultAuthorName = "Admin"
	// DefaultCategoryName labels posts whose category cannot be resolved.
	DefaultCategoryName = "General"

	excerptLength = 160
)

// PostCard is a post joined with its author and category for list views.
type PostCard struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Slug          string     `json:"slug"`
	IconURL       string     `json:"iconURL,omitempty"`
	Excerpt       string     `json:"excerpt"`
	AuthorID      string     `json:"authorId,omitempty"`
	AuthorName    string     `json:"authorName"`
	AuthorIconURL string     `json:"authorIconURL,omitempty"`
	CategoryID    string     `json:"categoryId,omitempty"`
	CategoryName  string     `json:"categoryName"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
}

// Cards joins posts with authors and categories. Dangling references fall
// back to the post's denormalized names, then to the defaults.
func Cards(posts []models.Post, authors []models.Author, categories []models.Category) []PostCard {
	authorByID := make(map[string]models.Author, len(authors))
	for _, a := range authors {
		authorByID[a.ID] = a
	}
	categoryByID := make(map[string]models.Category, len(categories))
	for _, c := range categories {
		categoryByID[c.ID] = c
	}

	cards := make([]PostCard, 0, len(posts))
	for _, p := range posts {
		card := PostCard{
			ID:           p.ID,
			Name:         p.Name,
			Slug:         p.Slug,
			IconURL:      p.IconURL,
			Excerpt:      p.Excerpt(excerptLength),
			AuthorID:     p.AuthorKey(),
			AuthorName:   firstNonEmpty(p.AuthorName, DefaultAuthorName),
			CategoryID:   p.CategoryKey(),
			CategoryName: firstNonEmpty(p.CategoryName, DefaultCategoryName),
			CreatedAt:    p.CreatedAt,
			UpdatedAt:    p.UpdatedAt,
		}
		if a, ok := authorByID[card.AuthorID]; ok && card.AuthorID != "" {
			card.AuthorName = firstNonEmpty(a.Name, card.AuthorName)
			card.AuthorIconURL = a.IconURL
		}
		if c, ok := categoryByID[card.CategoryID]; ok && card.CategoryID != "" {
			card.CategoryName = firstNonEmpty(c.Name, card.CategoryName)
		}
		cards = append(cards, card)
	}
	return cards
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
