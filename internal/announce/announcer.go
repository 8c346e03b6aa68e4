package announce

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/opencanvas/canvas-core/internal/canvas"
	"github.com/opencanvas/canvas-core/internal/gallery"
	"github.com/opencanvas/canvas-core/internal/infrastructure/config"
	"github.com/opencanvas/canvas-core/internal/infrastructure/logging"
	"github.com/opencanvas/canvas-core/internal/infrastructure/mqtt"
)

const (
	// defaultStatusInterval is used when the configured interval is
	// missing or invalid.
	defaultStatusInterval = 60 * time.Second

	// commandTimeout bounds device operations triggered over MQTT.
	commandTimeout = 30 * time.Second
)

// Publisher is the broker surface the announcer needs. Satisfied by
// *mqtt.Client; tests substitute a recorder.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// TelemetrySink receives numeric device metrics alongside each status
// announcement. Satisfied by *influxdb.Client.
type TelemetrySink interface {
	WriteCanvasMetric(device, measurement string, value float64)
}

// Device is the controller surface commands dispatch against.
// Satisfied by *canvas.Facade.
type Device interface {
	Status(maxAge time.Duration) (canvas.DeviceStatus, error)
	RefreshStatus(ctx context.Context) (canvas.DeviceStatus, error)
	Wake(ctx context.Context) error
	ShowNext(ctx context.Context) error
	Sleep(ctx context.Context) error
	Reboot(ctx context.Context) error
	ClearScreen(ctx context.Context) error
}

// Announcer publishes device state over MQTT and dispatches inbound
// command messages to the device. It announces:
//   - retained status snapshots on a fixed interval
//   - retained availability transitions (online/offline) as the
//     session's reachability changes
//   - sync run summaries and per-item progress as they happen
//
// Thread Safety: all methods are safe for concurrent use after Start.
type Announcer struct {
	pub        Publisher
	device     Device
	topics     mqtt.Topics
	deviceName string
	qos        byte
	interval   time.Duration
	logger     *logging.Logger
	telemetry  TelemetrySink

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates an announcer for the named device.
func New(pub Publisher, device Device, deviceName string, cfg config.MQTTConfig, logger *logging.Logger) *Announcer {
	interval := time.Duration(cfg.StatusInterval) * time.Second
	if interval <= 0 {
		interval = defaultStatusInterval
	}

	return &Announcer{
		pub:        pub,
		device:     device,
		topics:     mqtt.Topics{},
		deviceName: deviceName,
		qos:        byte(cfg.QoS),
		interval:   interval,
		logger:     logger.With("component", "announce"),
	}
}

// SetTelemetry wires a metrics sink; each status announcement also
// records battery, storage, and signal readings. Set during wiring,
// before Start.
func (a *Announcer) SetTelemetry(sink TelemetrySink) {
	a.telemetry = sink
}

// Start subscribes to the device command topic and begins the status
// announcement loop.
func (a *Announcer) Start() error {
	if err := a.pub.Subscribe(a.topics.DeviceCommand(a.deviceName), a.qos, a.handleCommand); err != nil {
		return fmt.Errorf("announce: subscribe commands: %w", err)
	}

	a.done = make(chan struct{})
	a.wg.Add(1)
	go a.statusLoop()

	a.logger.Info("announcer started", "device", a.deviceName, "interval", a.interval)
	return nil
}

// Stop halts the status loop. It publishes a final offline
// availability so subscribers are not left with a stale retained
// "online".
func (a *Announcer) Stop() {
	a.stopOnce.Do(func() {
		if a.done != nil {
			close(a.done)
		}
		a.wg.Wait()
		a.publishAvailability("offline")
		a.logger.Info("announcer stopped")
	})
}

// HandleStateChange publishes availability transitions. Wire it via
// the session's state change callback.
func (a *Announcer) HandleStateChange(prev, next canvas.State) {
	switch next {
	case canvas.StateAwake:
		a.publishAvailability("online")
	case canvas.StateUnreachable:
		a.publishAvailability("offline")
	}
}

// PublishSyncResult announces a finished sync run.
func (a *Announcer) PublishSyncResult(result *gallery.Result) {
	payload, err := json.Marshal(map[string]any{
		"run_id":      result.RunID,
		"gallery":     result.Gallery,
		"examined":    result.Examined,
		"uploaded":    result.Uploaded,
		"overwritten": result.Overwritten,
		"skipped":     result.SkippedDuplicate,
		"failed":      result.Failed,
		"cancelled":   result.Cancelled,
		"started_at":  result.StartedAt.UTC().Format(time.RFC3339),
		"finished_at": result.FinishedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}

	if err := a.pub.Publish(a.topics.SyncRun(a.deviceName), payload, a.qos, false); err != nil {
		a.logger.Warn("failed to publish sync result", "error", err)
	}
}

// PublishSyncProgress announces one examined item. Best effort at QoS
// 0; a dropped progress message is harmless.
func (a *Announcer) PublishSyncProgress(progress gallery.Progress) {
	payload, err := json.Marshal(progress)
	if err != nil {
		return
	}

	if err := a.pub.Publish(a.topics.SyncProgress(a.deviceName), payload, 0, false); err != nil {
		a.logger.Warn("failed to publish sync progress", "error", err)
	}
}

func (a *Announcer) statusLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.done:
			return
		case <-ticker.C:
			a.announceStatus()
		}
	}
}

// announceStatus publishes the freshest status available. The cache is
// used when recent enough; otherwise the device is polled, which also
// doubles as a liveness check driving availability transitions.
func (a *Announcer) announceStatus() {
	if !a.pub.IsConnected() {
		return
	}

	status, err := a.device.Status(a.interval)
	if err != nil {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		status, err = a.device.RefreshStatus(ctx)
		cancel()
		if err != nil {
			a.logger.Warn("status refresh failed", "error", err)
			return
		}
	}

	payload, err := json.Marshal(status)
	if err != nil {
		return
	}

	if err := a.pub.Publish(a.topics.DeviceStatus(a.deviceName), payload, a.qos, true); err != nil {
		a.logger.Warn("failed to publish status", "error", err)
	}

	if a.telemetry != nil {
		a.telemetry.WriteCanvasMetric(a.deviceName, "battery_percent", float64(status.BatteryPercent))
		a.telemetry.WriteCanvasMetric(a.deviceName, "free_storage_bytes", float64(status.FreeStorageBytes))
		a.telemetry.WriteCanvasMetric(a.deviceName, "rssi", float64(status.RSSI))
	}
}

func (a *Announcer) publishAvailability(state string) {
	if err := a.pub.Publish(a.topics.DeviceAvailability(a.deviceName), []byte(state), a.qos, true); err != nil {
		a.logger.Warn("failed to publish availability", "state", state, "error", err)
	}
}
