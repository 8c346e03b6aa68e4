package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check and metrics (no auth required)
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Device status and control
			r.Route("/device", func(r chi.Router) {
				r.Get("/status", s.handleStatus)
				r.Post("/status/refresh", s.handleStatusRefresh)
				r.Get("/info", s.handleInfo)
				r.Patch("/settings", s.handleUpdateSettings)
				r.Post("/wake", s.handleWake)
				r.Post("/show-next", s.handleShowNext)
				r.Post("/sleep", s.handleSleep)
				r.Post("/reboot", s.handleReboot)
				r.Post("/clear-screen", s.handleClearScreen)
				r.Post("/show", s.handleShow)
				r.Post("/image", s.handlePushImage)
			})

			// Gallery browsing and uploads
			r.Route("/galleries", func(r chi.Router) {
				r.Get("/", s.handleListGalleries)
				r.Route("/{name}", func(r chi.Router) {
					r.Get("/images", s.handleListGalleryImages)
					r.Post("/images", s.handleUploadToGallery)
				})
			})

			// Sync runs and history
			r.Route("/sync", func(r chi.Router) {
				r.Post("/", s.handleSync)
				r.Get("/runs", s.handleListSyncRuns)
				r.Get("/runs/{id}/items", s.handleListSyncRunItems)
			})

			// WebSocket ticket and endpoint (ticket validated in handler)
			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status along with the device
// session's reachability when a session is wired.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{
		"status":  "ok",
		"version": s.version,
	}
	if s.session != nil {
		payload["device_state"] = s.session.State().String()
		if last := s.session.LastContact(); !last.IsZero() {
			payload["last_contact"] = last.UTC()
		}
	}
	writeJSON(w, http.StatusOK, payload)
}
