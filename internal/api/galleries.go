package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opencanvas/canvas-core/internal/canvas"
)

// handleListGalleries returns the galleries present on the device.
func (s *Server) handleListGalleries(w http.ResponseWriter, r *http.Request) {
	galleries, err := s.device.ListGalleries(r.Context())
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"galleries": galleries})
}

// handleListGalleryImages returns one page of a gallery listing.
// Query parameters: offset (default 0), limit (default 100).
func (s *Server) handleListGalleryImages(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	offset, ok := queryInt(w, r, "offset", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", 0)
	if !ok {
		return
	}

	page, err := s.device.ListGalleryImages(r.Context(), canvas.PageParams{
		Gallery: name,
		Offset:  offset,
		Limit:   limit,
	})
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleUploadToGallery stores a multipart image upload in the named
// gallery without displaying it.
func (s *Server) handleUploadToGallery(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	filename, data, ok := readImageForm(w, r)
	if !ok {
		return
	}

	path, err := s.device.UploadToGallery(r.Context(), name, filename, data)
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"result": "ok", "path": path})
}

// queryInt parses a non-negative integer query parameter, writing a
// 400 response on bad input.
func queryInt(w http.ResponseWriter, r *http.Request, key string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, true
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		writeBadRequest(w, key+" must be a non-negative integer")
		return 0, false
	}
	return value, true
}
