package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

// UploadHandler validates an image upload: multipart field "file", content
// type prefixed image/, size within the configured cap. Nothing is persisted;
// the handler hands back the URL the file would be served under.
func (h *APIHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	if !strings.HasPrefix(header.Header.Get("Content-Type"), "image/") {
		respondError(w, http.StatusBadRequest, "File must be an image")
		return
	}
	if header.Size > h.maxUploadBytes {
		respondError(w, http.StatusBadRequest, "File size exceeds 5MB limit")
		return
	}

	fileName := fmt.Sprintf("img-%d-%s", time.Now().UnixMilli(), filepath.Base(header.Filename))
	respondJSON(w, http.StatusCreated, map[string]string{
		"imageUrl": "/uploads/" + fileName,
		"fileName": fileName,
	})
}
