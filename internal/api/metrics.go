package api

import (
	"net/http"
	"runtime"
	"time"
)

// serverStart records process start for uptime reporting.
var serverStart = time.Now()

// handleMetrics returns basic process and controller metrics as JSON.
// Left unauthenticated for scrape-style monitoring on the LAN.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	payload := map[string]any{
		"version":        s.version,
		"uptime_seconds": int(time.Since(serverStart).Seconds()),
		"goroutines":     runtime.NumGoroutine(),
		"heap_bytes":     mem.HeapAlloc,
		"num_gc":         mem.NumGC,
	}

	if s.hub != nil {
		payload["ws_clients"] = s.hub.ClientCount()
	}
	if s.session != nil {
		payload["device_state"] = s.session.State().String()
	}

	writeJSON(w, http.StatusOK, payload)
}
