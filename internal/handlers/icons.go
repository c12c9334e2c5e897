// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"devblog/internal/docstore"
	"devblog/internal/imaging"
	"devblog/internal/storage"
)

// maxIconUpload caps the multipart body of an icon upload.
const maxIconUpload = 5 << 20

// BlobStore keeps uploaded icons.
type BlobStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
	Delete(ctx context.Context, key string) error
	ExtractKey(rawURL string) (string, bool)
}

// UploadIcon stores the "icon" form file for an author or category at
// <collection>/<id> and records its URL on the document.
func (a *Admin) UploadIcon(w http.ResponseWriter, r *http.Request) {
	if a.blobs == nil {
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "object storage is not configured")
		return
	}
	collection, ok := collectionParam(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "icons are only stored for authors and categories")
		return
	}
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := a.docs.Get(ctx, collection, id); err != nil {
		handleStoreError(w, "icon target", err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxIconUpload)
	file, _, err := r.FormFile("icon")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "multipart field \"icon\" is required (max 5 MB)")
		return
	}
	defer file.Close()
	raw, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "could not read upload")
		return
	}

	img, err := imaging.Fit(raw, imaging.IconWidth)
	if errors.Is(err, imaging.ErrUnsupported) || errors.Is(err, imaging.ErrTooLarge) {
		writeValidation(w, fieldErrors{"icon": err.Error()})
		return
	}
	if err != nil {
		slog.Error("icon processing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "an internal error occurred")
		return
	}

	url, err := a.blobs.Upload(ctx, storage.Key(collection, id), imaging.ContentType, bytes.NewReader(img.Data), int64(len(img.Data)))
	if err != nil {
		slog.Error("icon upload failed", "collection", collection, "id", id, "error", err)
		writeError(w, http.StatusBadGateway, "storage_error", "icon upload failed")
		return
	}

	doc, err := a.docs.Set(ctx, collection, id, map[string]any{"iconURL": url}, true)
	if err != nil {
		handleStoreError(w, "record icon", err)
		return
	}
	slog.Info("icon uploaded", "collection", collection, "id", id, "width", img.Width, "height", img.Height)
	writeJSON(w, http.StatusOK, map[string]any{"id": doc.ID, "iconURL": url})
}

// deleteIcon removes the stored icon of a deleted document, if it is ours.
func (a *Admin) deleteIcon(ctx context.Context, collection string, doc *docstore.Document) {
	if a.blobs == nil {
		return
	}
	url, _ := doc.Data["iconURL"].(string)
	key, ok := a.blobs.ExtractKey(url)
	if !ok {
		return
	}
	if err := a.blobs.Delete(ctx, key); err != nil {
		slog.Warn("icon cleanup failed", "collection", collection, "key", key, "error", err)
	}
}
