// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"strings"
	"unicode/utf8"

	"devblog/internal/models"
	"devblog/internal/slug"
)

// Validation limits for document fields.
const (
	maxNameLen        = 300
	maxSlugLen        = 300
	maxContentLen     = 200_000
	minAuthorNameLen  = 3
	maxAuthorNameLen  = 50
	minPasswordLen    = 8
	maxPasswordLen    = 72 // bcrypt ignores the rest
	maxDisplayNameLen = 100
)

// fieldErrors collects validation messages keyed by field name.
type fieldErrors map[string]string

func (f fieldErrors) add(field, msg string) {
	if _, ok := f[field]; !ok {
		f[field] = msg
	}
}

func validatePost(p *models.Post) fieldErrors {
	errs := fieldErrors{}
	name := strings.TrimSpace(p.Name)
	switch {
	case name == "":
		errs.add("name", "Name is required.")
	case utf8.RuneCountInString(name) > maxNameLen:
		errs.add("name", "Name is too long (max 300 characters).")
	}
	validateSlug(errs, p.Slug)
	if utf8.RuneCountInString(p.Content) > maxContentLen {
		errs.add("content", "Content is too long (max 200,000 characters).")
	}
	return errs
}

func validateCategory(c *models.Category) fieldErrors {
	errs := fieldErrors{}
	name := strings.TrimSpace(c.Name)
	switch {
	case name == "":
		errs.add("name", "Name is required.")
	case utf8.RuneCountInString(name) > maxNameLen:
		errs.add("name", "Name is too long (max 300 characters).")
	}
	validateSlug(errs, c.Slug)
	return errs
}

func validateAuthor(a *models.Author) fieldErrors {
	errs := fieldErrors{}
	n := utf8.RuneCountInString(strings.TrimSpace(a.Name))
	if n < minAuthorNameLen || n > maxAuthorNameLen {
		errs.add("name", "Name must be between 3 and 50 characters.")
	}
	if e := strings.TrimSpace(a.Email); e != "" && !models.ValidEmail(e) {
		errs.add("email", "Email is not valid.")
	}
	return errs
}

func validateSignup(email, password, displayName string) fieldErrors {
	errs := fieldErrors{}
	if !models.ValidEmail(email) {
		errs.add("email", "Email is not valid.")
	}
	switch n := len(password); {
	case n < minPasswordLen:
		errs.add("password", "Password must be at least 8 characters.")
	case n > maxPasswordLen:
		errs.add("password", "Password is too long (max 72 bytes).")
	}
	if utf8.RuneCountInString(strings.TrimSpace(displayName)) > maxDisplayNameLen {
		errs.add("displayName", "Display name is too long (max 100 characters).")
	}
	return errs
}

// validateSlug accepts an empty slug, which is generated from the name.
func validateSlug(errs fieldErrors, s string) {
	if s == "" {
		return
	}
	if utf8.RuneCountInString(s) > maxSlugLen {
		errs.add("slug", "Slug is too long (max 300 characters).")
		return
	}
	if !slug.Valid(s) {
		errs.add("slug", "Slug may contain lowercase letters, digits and single hyphens.")
	}
}
