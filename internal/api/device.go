package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/opencanvas/canvas-core/internal/canvas"
)

// handleStatus returns the cached status snapshot. The ?max_age query
// parameter (seconds) bounds acceptable staleness; 0 or absent accepts
// any cached snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var maxAge time.Duration
	if raw := r.URL.Query().Get("max_age"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds < 0 {
			writeBadRequest(w, "max_age must be a non-negative integer")
			return
		}
		maxAge = time.Duration(seconds) * time.Second
	}

	status, err := s.device.Status(maxAge)
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleStatusRefresh polls the device for a fresh status snapshot.
func (s *Server) handleStatusRefresh(w http.ResponseWriter, r *http.Request) {
	status, err := s.device.RefreshStatus(r.Context())
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleInfo fetches the device's identity and settings snapshot.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.device.RefreshInfo(r.Context())
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// settingsRequest is the body for PATCH /device/settings. Absent
// fields are left unchanged on the device.
type settingsRequest struct {
	Name            *string `json:"name"`
	SleepDuration   *int    `json:"sleep_duration"`
	MaxIdle         *int    `json:"max_idle"`
	WakeSensitivity *int    `json:"wake_sensitivity"`
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	err := s.device.UpdateSettings(r.Context(), canvas.Settings{
		Name:            req.Name,
		SleepDuration:   req.SleepDuration,
		MaxIdle:         req.MaxIdle,
		WakeSensitivity: req.WakeSensitivity,
	})
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

// Simple command handlers. Each issues one device operation and maps
// the outcome.

func (s *Server) handleWake(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, "wake", s.device.Wake)
}

func (s *Server) handleShowNext(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, "show_next", s.device.ShowNext)
}

func (s *Server) handleSleep(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, "sleep", s.device.Sleep)
}

func (s *Server) handleReboot(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, "reboot", s.device.Reboot)
}

func (s *Server) handleClearScreen(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, "clear_screen", s.device.ClearScreen)
}

func (s *Server) runCommand(w http.ResponseWriter, r *http.Request, name string, op func(ctx context.Context) error) {
	if err := op(r.Context()); err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "ok", "command": name})
}

// showRequest is the body for POST /device/show.
type showRequest struct {
	Filename string `json:"filename"`
	Gallery  string `json:"gallery"`
	PlayType int    `json:"play_type"`
	Duration int    `json:"duration"`
	Dither   *int   `json:"dither"`
}

func (s *Server) handleShow(w http.ResponseWriter, r *http.Request) {
	var req showRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Filename == "" {
		writeBadRequest(w, "filename is required")
		return
	}

	err := s.device.Show(r.Context(), canvas.ShowParams{
		Filename: req.Filename,
		Gallery:  req.Gallery,
		PlayType: req.PlayType,
		Duration: req.Duration,
		Dither:   req.Dither,
	})
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

// handlePushImage accepts a multipart image upload and displays it
// immediately.
func (s *Server) handlePushImage(w http.ResponseWriter, r *http.Request) {
	filename, data, ok := readImageForm(w, r)
	if !ok {
		return
	}

	path, err := s.device.PushImage(r.Context(), filename, data)
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "ok", "path": path})
}

// readImageForm extracts the "image" file field from a multipart form.
// It writes the error response itself when the form is unusable.
func readImageForm(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	file, header, err := r.FormFile("image")
	if err != nil {
		writeBadRequest(w, "multipart field 'image' is required")
		return "", nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeBadRequest(w, "failed to read uploaded file")
		return "", nil, false
	}

	filename := header.Filename
	if filename == "" {
		filename = "upload.jpg"
	}
	return filename, data, true
}
