// Canvas Core - E-Ink Canvas Controller
//
// This is the main entry point for the canvasd daemon. It owns the
// single device session, exposes the REST/WebSocket API, runs gallery
// syncs with persisted history, and optionally announces device state
// over MQTT and telemetry to InfluxDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/opencanvas/canvas-core/migrations"

	"github.com/opencanvas/canvas-core/internal/announce"
	"github.com/opencanvas/canvas-core/internal/api"
	"github.com/opencanvas/canvas-core/internal/canvas"
	"github.com/opencanvas/canvas-core/internal/gallery"
	"github.com/opencanvas/canvas-core/internal/infrastructure/config"
	"github.com/opencanvas/canvas-core/internal/infrastructure/database"
	"github.com/opencanvas/canvas-core/internal/infrastructure/influxdb"
	"github.com/opencanvas/canvas-core/internal/infrastructure/logging"
	"github.com/opencanvas/canvas-core/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Returning an error allows main to handle exit codes
// consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Canvas Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database and run migrations
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		BusyTimeout: time.Duration(cfg.Database.BusyTimeout) * time.Second,
	}, log)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Device session: one transport, one cache, one serialised session.
	transport := canvas.NewHTTPTransport(cfg.Device)
	cache := canvas.NewStatusCache()
	session := canvas.NewSession(transport, cfg.Device, cache, log)
	facade := canvas.NewFacade(session, cache)
	log.Info("device session initialised", "host", cfg.Device.Host, "name", cfg.Device.Name)

	// Sync engine with persisted run history
	ledger := gallery.NewLedger(db, log)
	engine := gallery.NewEngine(session, ledger, cfg.Sync, log)

	// Prune old run history on startup
	if removed, pruneErr := ledger.Prune(ctx, cfg.Sync.HistoryRetentionDays); pruneErr != nil {
		log.Warn("failed to prune sync history", "error", pruneErr)
	} else if removed > 0 {
		log.Info("pruned sync history", "removed", removed)
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	var announcer *announce.Announcer
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		announcer = announce.New(mqttClient, facade, cfg.Device.Name, cfg.MQTT, log)
		if influxClient != nil {
			announcer.SetTelemetry(influxClient)
		}
		if startErr := announcer.Start(); startErr != nil {
			return fmt.Errorf("starting announcer: %w", startErr)
		}
		defer announcer.Stop()
	} else {
		log.Info("MQTT disabled")
	}

	// Start API server
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Device:   facade,
		Syncer:   engine,
		History:  ledger,
		Session:  session,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Wire event fan-out now that all components exist.
	wireEvents(cfg, session, engine, apiServer, announcer, influxClient)

	// Verify infrastructure is healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("Canvas Core stopped")
	return nil
}

// wireEvents connects producers (session state, sync progress) to
// consumers (WebSocket hub, MQTT announcer, InfluxDB telemetry).
func wireEvents(cfg *config.Config, session *canvas.Session, engine *gallery.Engine, apiServer *api.Server, announcer *announce.Announcer, influxClient *influxdb.Client) {
	deviceName := cfg.Device.Name

	session.SetOnStateChange(func(prev, next canvas.State) {
		if hub := apiServer.Hub(); hub != nil {
			hub.Broadcast(api.ChannelDeviceState, map[string]string{
				"previous": prev.String(),
				"state":    next.String(),
			})
		}
		if announcer != nil {
			announcer.HandleStateChange(prev, next)
		}
	})

	engine.SetOnComplete(func(result *gallery.Result) {
		if hub := apiServer.Hub(); hub != nil {
			hub.Broadcast(api.ChannelSyncRun, result)
		}
		if announcer != nil {
			announcer.PublishSyncResult(result)
		}
		if influxClient != nil {
			influxClient.WriteSyncRun(deviceName, result.Gallery,
				result.Examined, result.Uploaded, result.SkippedDuplicate, result.Failed)
		}
	})

	engine.SetOnProgress(func(p gallery.Progress) {
		if hub := apiServer.Hub(); hub != nil {
			hub.Broadcast(api.ChannelSyncProgress, p)
		}
		if announcer != nil {
			announcer.PublishSyncProgress(p)
		}
		if influxClient != nil {
			outcome := 0.0
			if p.Outcome == gallery.OutcomeUploaded || p.Outcome == gallery.OutcomeOverwritten {
				outcome = 1.0
			}
			influxClient.WriteCanvasMetric(deviceName, "sync_item_success", outcome)
		}
	})
}

// getConfigPath returns the configuration file path.
// Uses the CANVAS_CONFIG environment variable if set, otherwise the
// default.
func getConfigPath() string {
	if path := os.Getenv("CANVAS_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections are healthy. MQTT
// and InfluxDB are optional and skipped when not configured.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
