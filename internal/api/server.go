package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/opencanvas/canvas-core/internal/canvas"
	"github.com/opencanvas/canvas-core/internal/gallery"
	"github.com/opencanvas/canvas-core/internal/infrastructure/config"
	"github.com/opencanvas/canvas-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Controller is the device surface the API exposes. Satisfied by
// *canvas.Facade; tests substitute a mock.
type Controller interface {
	Status(maxAge time.Duration) (canvas.DeviceStatus, error)
	RefreshStatus(ctx context.Context) (canvas.DeviceStatus, error)
	RefreshInfo(ctx context.Context) (canvas.DeviceStatus, error)
	Wake(ctx context.Context) error
	ShowNext(ctx context.Context) error
	Sleep(ctx context.Context) error
	Reboot(ctx context.Context) error
	ClearScreen(ctx context.Context) error
	UpdateSettings(ctx context.Context, settings canvas.Settings) error
	Show(ctx context.Context, params canvas.ShowParams) error
	PushImage(ctx context.Context, filename string, data []byte) (string, error)
	UploadToGallery(ctx context.Context, gallery, filename string, data []byte) (string, error)
	ListGalleries(ctx context.Context) ([]canvas.GalleryInfo, error)
	ListGalleryImages(ctx context.Context, page canvas.PageParams) (canvas.GalleryPage, error)
}

// Syncer runs gallery syncs. Satisfied by *gallery.Engine.
type Syncer interface {
	Sync(ctx context.Context, req gallery.Request) (*gallery.Result, error)
}

// RunHistory reads persisted sync run history. Satisfied by
// *gallery.Ledger.
type RunHistory interface {
	RecentRuns(ctx context.Context, limit int) ([]gallery.RunSummary, error)
	RunItems(ctx context.Context, runID string) ([]gallery.ItemRecord, error)
}

// StateReader reports the device session's reachability. Satisfied by
// *canvas.Session.
type StateReader interface {
	State() canvas.State
	LastContact() time.Time
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Device   Controller
	Syncer   Syncer      // optional: sync endpoints return 503 when nil
	History  RunHistory  // optional: history endpoints return 503 when nil
	Session  StateReader // optional: enriches status responses
	Hub      *Hub        // optional: injected when the hub outlives the server
	Version  string
}

// Server is the HTTP API server for the Canvas controller.
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	secCfg  config.SecurityConfig
	logger  *logging.Logger
	device  Controller
	syncer  Syncer
	history RunHistory
	session StateReader
	version string
	server  *http.Server
	hub     *Hub
	tickets *ticketIssuer
	cancel  context.CancelFunc
}

// New creates an API server with the given dependencies. The server is
// not started until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Device == nil {
		return nil, fmt.Errorf("device controller is required")
	}

	s := &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		secCfg:  deps.Security,
		logger:  deps.Logger,
		device:  deps.Device,
		syncer:  deps.Syncer,
		history: deps.History,
		session: deps.Session,
		version: deps.Version,
		hub:     deps.Hub,
		tickets: newTicketIssuer(deps.Security),
	}

	return s, nil
}

// Hub returns the WebSocket hub for wiring event producers. Only valid
// after Start.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections. The listener runs in a
// background goroutine; stop it with Close.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	go s.hub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to
// gracefulShutdownTimeout for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
