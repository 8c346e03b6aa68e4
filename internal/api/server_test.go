package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/opencanvas/canvas-core/internal/canvas"
	"github.com/opencanvas/canvas-core/internal/gallery"
	"github.com/opencanvas/canvas-core/internal/infrastructure/config"
	"github.com/opencanvas/canvas-core/internal/infrastructure/logging"
)

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test")
}

// mockController records device operations and returns scripted
// results.
type mockController struct {
	mu           sync.Mutex
	calls        []string
	status       canvas.DeviceStatus
	statusErr    error
	err          error
	lastSettings canvas.Settings
	lastShow     canvas.ShowParams
	lastUpload   struct {
		Gallery  string
		Filename string
		Size     int
	}
	page canvas.GalleryPage
}

func (m *mockController) record(op string) {
	m.mu.Lock()
	m.calls = append(m.calls, op)
	m.mu.Unlock()
}

func (m *mockController) Status(time.Duration) (canvas.DeviceStatus, error) {
	m.record("status")
	return m.status, m.statusErr
}

func (m *mockController) RefreshStatus(context.Context) (canvas.DeviceStatus, error) {
	m.record("refresh_status")
	return m.status, m.err
}

func (m *mockController) RefreshInfo(context.Context) (canvas.DeviceStatus, error) {
	m.record("refresh_info")
	return m.status, m.err
}

func (m *mockController) Wake(context.Context) error        { m.record("wake"); return m.err }
func (m *mockController) ShowNext(context.Context) error    { m.record("show_next"); return m.err }
func (m *mockController) Sleep(context.Context) error       { m.record("sleep"); return m.err }
func (m *mockController) Reboot(context.Context) error      { m.record("reboot"); return m.err }
func (m *mockController) ClearScreen(context.Context) error { m.record("clear_screen"); return m.err }

func (m *mockController) UpdateSettings(_ context.Context, settings canvas.Settings) error {
	m.record("update_settings")
	m.lastSettings = settings
	return m.err
}

func (m *mockController) Show(_ context.Context, params canvas.ShowParams) error {
	m.record("show")
	m.lastShow = params
	return m.err
}

func (m *mockController) PushImage(_ context.Context, filename string, data []byte) (string, error) {
	m.record("push_image")
	m.lastUpload.Filename = filename
	m.lastUpload.Size = len(data)
	return "/gallerys/default/" + filename, m.err
}

func (m *mockController) UploadToGallery(_ context.Context, galleryName, filename string, data []byte) (string, error) {
	m.record("upload")
	m.lastUpload.Gallery = galleryName
	m.lastUpload.Filename = filename
	m.lastUpload.Size = len(data)
	return "/gallerys/" + galleryName + "/" + filename, m.err
}

func (m *mockController) ListGalleries(context.Context) ([]canvas.GalleryInfo, error) {
	m.record("list_galleries")
	return []canvas.GalleryInfo{{Name: "default"}, {Name: "holiday"}}, m.err
}

func (m *mockController) ListGalleryImages(_ context.Context, page canvas.PageParams) (canvas.GalleryPage, error) {
	m.record("list_images")
	result := m.page
	result.Offset = page.Offset
	result.Limit = page.Limit
	return result, m.err
}

func (m *mockController) called(op string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, call := range m.calls {
		if call == op {
			return true
		}
	}
	return false
}

// mockSyncer returns a canned result and records the request.
type mockSyncer struct {
	lastReq gallery.Request
	result  *gallery.Result
	err     error
}

func (m *mockSyncer) Sync(_ context.Context, req gallery.Request) (*gallery.Result, error) {
	m.lastReq = req
	return m.result, m.err
}

func newTestServer(t *testing.T, device Controller, opts ...func(*Deps)) *Server {
	t.Helper()

	deps := Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:       config.WebSocketConfig{MaxMessageSize: 4096, PingInterval: 30, PongTimeout: 10},
		Security: config.SecurityConfig{TicketSecret: "test-secret", TicketTTL: 60},
		Logger:   testLogger(),
		Device:   device,
		Version:  "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}

	server, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return server
}

func doRequest(s *Server, method, path string, body *bytes.Buffer, header http.Header) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	rec := httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rec, req)
	return rec
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		t.Fatal(err)
	}
	return &buf
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &mockController{})

	rec := doRequest(s, http.MethodGet, "/api/v1/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload["status"] != "ok" || payload["version"] != "test" {
		t.Errorf("payload = %v", payload)
	}
}

func TestAuthMiddleware(t *testing.T) {
	device := &mockController{}
	s := newTestServer(t, device, func(d *Deps) {
		d.Security.APIToken = "secret-token"
	})

	t.Run("missing token", func(t *testing.T) {
		rec := doRequest(s, http.MethodGet, "/api/v1/device/status", nil, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		header := http.Header{"Authorization": []string{"Bearer wrong"}}
		rec := doRequest(s, http.MethodGet, "/api/v1/device/status", nil, header)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("valid token", func(t *testing.T) {
		header := http.Header{"Authorization": []string{"Bearer secret-token"}}
		rec := doRequest(s, http.MethodGet, "/api/v1/device/status", nil, header)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("health needs no token", func(t *testing.T) {
		rec := doRequest(s, http.MethodGet, "/api/v1/health", nil, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})
}

func TestStatus(t *testing.T) {
	t.Run("cached snapshot", func(t *testing.T) {
		device := &mockController{status: canvas.DeviceStatus{Name: "frame", BatteryPercent: 55}}
		s := newTestServer(t, device)

		rec := doRequest(s, http.MethodGet, "/api/v1/device/status?max_age=30", nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}

		var status canvas.DeviceStatus
		if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
			t.Fatal(err)
		}
		if status.BatteryPercent != 55 {
			t.Errorf("BatteryPercent = %d, want 55", status.BatteryPercent)
		}
	})

	t.Run("stale cache is 404", func(t *testing.T) {
		device := &mockController{statusErr: canvas.ErrStale}
		s := newTestServer(t, device)

		rec := doRequest(s, http.MethodGet, "/api/v1/device/status", nil, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("bad max_age", func(t *testing.T) {
		s := newTestServer(t, &mockController{})
		rec := doRequest(s, http.MethodGet, "/api/v1/device/status?max_age=soon", nil, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestDeviceErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unreachable", canvas.ErrUnreachable, http.StatusServiceUnavailable},
		{"busy", canvas.ErrDeviceBusy, http.StatusConflict},
		{"timeout", canvas.ErrTimeout, http.StatusGatewayTimeout},
		{"rejected", canvas.ErrOperationRejected, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := &mockController{err: tt.err}
			s := newTestServer(t, device)

			rec := doRequest(s, http.MethodPost, "/api/v1/device/show-next", nil, nil)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestDeviceCommands(t *testing.T) {
	commands := []struct {
		path string
		op   string
	}{
		{"/api/v1/device/wake", "wake"},
		{"/api/v1/device/show-next", "show_next"},
		{"/api/v1/device/sleep", "sleep"},
		{"/api/v1/device/reboot", "reboot"},
		{"/api/v1/device/clear-screen", "clear_screen"},
	}

	for _, tt := range commands {
		t.Run(tt.op, func(t *testing.T) {
			device := &mockController{}
			s := newTestServer(t, device)

			rec := doRequest(s, http.MethodPost, tt.path, nil, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if !device.called(tt.op) {
				t.Errorf("device op %s not invoked", tt.op)
			}
		})
	}
}

func TestUpdateSettings(t *testing.T) {
	device := &mockController{}
	s := newTestServer(t, device)

	body := jsonBody(t, map[string]any{"sleep_duration": 1800, "name": "hallway"})
	rec := doRequest(s, http.MethodPatch, "/api/v1/device/settings", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	if device.lastSettings.SleepDuration == nil || *device.lastSettings.SleepDuration != 1800 {
		t.Error("sleep_duration not forwarded")
	}
	if device.lastSettings.Name == nil || *device.lastSettings.Name != "hallway" {
		t.Error("name not forwarded")
	}
	if device.lastSettings.MaxIdle != nil {
		t.Error("absent max_idle should stay nil")
	}
}

func TestShowValidation(t *testing.T) {
	s := newTestServer(t, &mockController{})

	body := jsonBody(t, map[string]any{"gallery": "default"})
	rec := doRequest(s, http.MethodPost, "/api/v1/device/show", body, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing filename", rec.Code)
	}
}

func TestGalleryListing(t *testing.T) {
	device := &mockController{page: canvas.GalleryPage{
		Items: []canvas.GalleryImage{{Name: "a.jpg", Size: 1000}},
		Total: 1,
	}}
	s := newTestServer(t, device)

	rec := doRequest(s, http.MethodGet, "/api/v1/galleries/holiday/images?offset=10&limit=5", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var page canvas.GalleryPage
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if page.Offset != 10 || page.Limit != 5 {
		t.Errorf("page offset/limit = %d/%d, want 10/5", page.Offset, page.Limit)
	}
	if len(page.Items) != 1 || page.Items[0].Name != "a.jpg" {
		t.Errorf("items = %v", page.Items)
	}
}

func TestUploadToGallery(t *testing.T) {
	device := &mockController{}
	s := newTestServer(t, device)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("image", "beach.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte("jpeg bytes")); err != nil {
		t.Fatal(err)
	}
	form.Close()

	header := http.Header{"Content-Type": []string{form.FormDataContentType()}}
	rec := doRequest(s, http.MethodPost, "/api/v1/galleries/holiday/images", &buf, header)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	if device.lastUpload.Gallery != "holiday" || device.lastUpload.Filename != "beach.jpg" {
		t.Errorf("upload = %+v", device.lastUpload)
	}
	if device.lastUpload.Size != len("jpeg bytes") {
		t.Errorf("upload size = %d", device.lastUpload.Size)
	}
}

func TestSyncEndpoint(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		s := newTestServer(t, &mockController{})
		rec := doRequest(s, http.MethodPost, "/api/v1/sync/", jsonBody(t, map[string]any{"source_dir": "/tmp"}), nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("missing source_dir", func(t *testing.T) {
		s := newTestServer(t, &mockController{}, func(d *Deps) {
			d.Syncer = &mockSyncer{}
		})
		rec := doRequest(s, http.MethodPost, "/api/v1/sync/", jsonBody(t, map[string]any{}), nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("runs sync", func(t *testing.T) {
		syncer := &mockSyncer{result: &gallery.Result{
			RunID:    "run-7",
			Gallery:  "default",
			Examined: 2,
			Uploaded: 2,
		}}
		s := newTestServer(t, &mockController{}, func(d *Deps) {
			d.Syncer = syncer
		})

		dir := t.TempDir()
		body := jsonBody(t, map[string]any{
			"source_dir": dir,
			"gallery":    "default",
			"max_photos": 5,
			"overwrite":  true,
		})
		rec := doRequest(s, http.MethodPost, "/api/v1/sync/", body, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}

		if syncer.lastReq.Gallery != "default" || syncer.lastReq.MaxPhotos != 5 || !syncer.lastReq.Overwrite {
			t.Errorf("sync request = %+v", syncer.lastReq)
		}

		var result gallery.Result
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			t.Fatal(err)
		}
		if result.RunID != "run-7" {
			t.Errorf("RunID = %s, want run-7", result.RunID)
		}
	})

	t.Run("partial result survives run error", func(t *testing.T) {
		// A source failure mid-run yields both a result and an error;
		// the accounting already gathered must reach the client.
		syncer := &mockSyncer{
			result: &gallery.Result{
				RunID:    "run-8",
				Gallery:  "default",
				Examined: 4,
				Uploaded: 3,
				Failed:   1,
				Error:    "gallery: source: stream interrupted",
			},
			err: errors.New("gallery: source: stream interrupted"),
		}
		s := newTestServer(t, &mockController{}, func(d *Deps) {
			d.Syncer = syncer
		})

		body := jsonBody(t, map[string]any{"source_dir": t.TempDir()})
		rec := doRequest(s, http.MethodPost, "/api/v1/sync/", body, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}

		var result gallery.Result
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			t.Fatal(err)
		}
		if result.Uploaded != 3 || result.Failed != 1 {
			t.Errorf("partial counts = %d uploaded / %d failed, want 3/1", result.Uploaded, result.Failed)
		}
		if result.Error == "" {
			t.Error("result error detail missing")
		}
	})

	t.Run("error without result maps to device error", func(t *testing.T) {
		syncer := &mockSyncer{err: canvas.ErrUnreachable}
		s := newTestServer(t, &mockController{}, func(d *Deps) {
			d.Syncer = syncer
		})

		body := jsonBody(t, map[string]any{"source_dir": t.TempDir()})
		rec := doRequest(s, http.MethodPost, "/api/v1/sync/", body, nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})
}

func TestWSTicket(t *testing.T) {
	s := newTestServer(t, &mockController{})

	rec := doRequest(s, http.MethodPost, "/api/v1/auth/ws-ticket", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var payload struct {
		Ticket    string `json:"ticket"`
		ExpiresIn int    `json:"expires_in"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Ticket == "" || payload.ExpiresIn != 60 {
		t.Errorf("payload = %+v", payload)
	}

	if !s.tickets.validate(payload.Ticket) {
		t.Error("freshly issued ticket should validate")
	}
	if s.tickets.validate(payload.Ticket) {
		t.Error("ticket replay should be rejected")
	}
}

func TestWSTicketValidation(t *testing.T) {
	issuer := newTicketIssuer(config.SecurityConfig{TicketSecret: "secret", TicketTTL: 60})

	if issuer.validate("garbage") {
		t.Error("garbage ticket validated")
	}

	other := newTicketIssuer(config.SecurityConfig{TicketSecret: "different", TicketTTL: 60})
	foreign, err := other.issue()
	if err != nil {
		t.Fatal(err)
	}
	if issuer.validate(foreign) {
		t.Error("ticket signed with wrong secret validated")
	}

	unconfigured := newTicketIssuer(config.SecurityConfig{})
	if _, err := unconfigured.issue(); err == nil {
		t.Error("issue() without secret expected error")
	}
}

func TestWebSocketRequiresTicket(t *testing.T) {
	s := newTestServer(t, &mockController{})

	rec := doRequest(s, http.MethodGet, "/api/v1/ws", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}

	rec = doRequest(s, http.MethodGet, "/api/v1/ws?ticket=bogus", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for bogus ticket", rec.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t, &mockController{})

	rec := doRequest(s, http.MethodGet, "/api/v1/health", nil, nil)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("response missing X-Request-ID")
	}

	header := http.Header{"X-Request-ID": []string{"client-supplied"}}
	rec = doRequest(s, http.MethodGet, "/api/v1/health", nil, header)
	if got := rec.Header().Get("X-Request-ID"); got != "client-supplied" {
		t.Errorf("X-Request-ID = %q, want client-supplied", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, &mockController{})

	header := http.Header{"Origin": []string{"http://localhost:3000"}}
	rec := doRequest(s, http.MethodOptions, "/api/v1/device/status", nil, header)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Error("missing CORS allow-origin header")
	}
}

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without device expected error")
	}
	if _, err := New(Deps{Device: &mockController{}}); err == nil {
		t.Error("New() without logger expected error")
	}
}
