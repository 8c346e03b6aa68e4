package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opencanvas/canvas-core/internal/gallery"
)

// syncRequest is the body for POST /sync.
type syncRequest struct {
	SourceDir string `json:"source_dir"`
	Gallery   string `json:"gallery"`
	MaxPhotos int    `json:"max_photos"`
	Overwrite bool   `json:"overwrite"`
}

// handleSync runs a gallery sync from a local directory. The request
// blocks until the run finishes or the client disconnects; progress is
// streamed separately over the WebSocket sync.progress channel.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "sync engine not configured")
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.SourceDir == "" {
		writeBadRequest(w, "source_dir is required")
		return
	}
	if req.MaxPhotos < 0 {
		writeBadRequest(w, "max_photos must be non-negative")
		return
	}

	source, err := gallery.NewDirSource(req.SourceDir)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	result, err := s.syncer.Sync(r.Context(), gallery.Request{
		Source:    source,
		Gallery:   req.Gallery,
		MaxPhotos: req.MaxPhotos,
		Overwrite: req.Overwrite,
	})
	if err != nil && result == nil {
		writeDeviceError(w, err)
		return
	}

	// An interrupted run still returns its partial accounting; the
	// result's error field carries what cut it short.
	writeJSON(w, http.StatusOK, result)
}

// handleListSyncRuns returns recent sync run summaries, newest first.
func (s *Server) handleListSyncRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "sync history not configured")
		return
	}

	limit, ok := queryInt(w, r, "limit", 20)
	if !ok {
		return
	}

	runs, err := s.history.RecentRuns(r.Context(), limit)
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleListSyncRunItems returns the per-item records of one run.
func (s *Server) handleListSyncRunItems(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "sync history not configured")
		return
	}

	runID := chi.URLParam(r, "id")
	items, err := s.history.RunItems(r.Context(), runID)
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	if len(items) == 0 {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no items recorded for run "+runID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "items": items})
}
