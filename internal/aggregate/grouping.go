// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package aggregate derives read models from several live collections: posts
// grouped by category, and post cards joined with their author and category.
// The derivations are pure functions; Aggregator recomputes them whenever a
// contributing collection changes.
package aggregate

import (
	"devblog/internal/models"
)

// Uncategorized is the bucket for posts without a category id.
const Uncategorized = "uncategorized"

// Section is one ordered group of the category grouping.
type Section struct {
	ID string `json:"id"`
	// Category is nil when the id does not resolve to a known category.
	Category *models.Category `json:"category,omitempty"`
	Posts    []models.Post    `json:"posts"`
}

// Grouping maps category id to the posts assigned to it, in arrival order.
// Each call to GroupByCategory returns a new Grouping; none is ever mutated
// after construction.
type Grouping struct {
	Groups   map[string][]models.Post `json:"groups"`
	Sections []Section                `json:"sections"`
}

// GroupByCategory buckets every post by its category id, or Uncategorized
// when it has none. Every known category gets a group, empty or not. Posts
// referencing an unknown category are grouped under that id without a label.
//
// Sections are ordered: known categories in snapshot order, then unknown ids
// in order of first appearance, then Uncategorized.
func GroupByCategory(posts []models.Post, categories []models.Category) Grouping {
	groups := make(map[string][]models.Post, len(categories)+1)
	known := make(map[string]*models.Category, len(categories))
	for i := range categories {
		c := &categories[i]
		known[c.ID] = c
		groups[c.ID] = []models.Post{}
	}

	var unknown []string
	for _, p := range posts {
		key := p.CategoryKey()
		if key == "" {
			key = Uncategorized
		}
		if _, seen := groups[key]; !seen && key != Uncategorized {
			unknown = append(unknown, key)
		}
		groups[key] = append(groups[key], p)
	}

	sections := make([]Section, 0, len(groups))
	for i := range categories {
		c := categories[i]
		sections = append(sections, Section{ID: c.ID, Category: &c, Posts: groups[c.ID]})
	}
	for _, id := range unknown {
		sections = append(sections, Section{ID: id, Posts: groups[id]})
	}
	if _, isCategory := known[Uncategorized]; !isCategory {
		if ps, ok := groups[Uncategorized]; ok {
			sections = append(sections, Section{ID: Uncategorized, Posts: ps})
		}
	}

	return Grouping{Groups: groups, Sections: sections}
}

// Len returns the number of posts across all groups.
func (g Grouping) Len() int {
	n := 0
	for _, ps := range g.Groups {
		n += len(ps)
	}
	return n
}
