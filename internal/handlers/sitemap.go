// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"encoding/xml"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"devblog/internal/models"
)

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

func lastMod(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

// Sitemap lists the home page, every post (by slug when it has one) and
// every category page.
func (p *Public) Sitemap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var posts []models.Post
	var categories []models.Category

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		posts, err = fetchAll[models.Post](gctx, p.docs, models.CollectionPosts)
		return err
	})
	g.Go(func() (err error) {
		categories, err = fetchAll[models.Category](gctx, p.docs, models.CollectionCategories)
		return err
	})
	if err := g.Wait(); err != nil {
		handleStoreError(w, "sitemap", err)
		return
	}

	set := urlSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  []sitemapURL{{Loc: p.siteURL + "/"}},
	}
	for _, post := range posts {
		ref := post.Slug
		if ref == "" {
			ref = post.ID
		}
		set.URLs = append(set.URLs, sitemapURL{
			Loc:     p.siteURL + "/posts/" + url.PathEscape(ref),
			LastMod: lastMod(post.UpdatedAt),
		})
	}
	for _, c := range categories {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:     p.siteURL + "/categories/" + url.PathEscape(c.ID),
			LastMod: lastMod(c.UpdatedAt),
		})
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	enc.Encode(set)
}
