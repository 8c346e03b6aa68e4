package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for canvasd.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Sync      SyncConfig      `yaml:"sync"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// DeviceConfig describes the e-ink canvas device this controller drives.
type DeviceConfig struct {
	// Host is the device's LAN address (IP or hostname, no scheme).
	Host string `yaml:"host"`

	// Name is the friendly device name used in logs and MQTT topics.
	Name string `yaml:"name"`

	// RequestTimeout is the per-call timeout in seconds for device requests.
	RequestTimeout int `yaml:"request_timeout"`

	// UploadTimeout is the timeout in seconds for image uploads, which
	// take much longer than control calls on e-ink hardware.
	UploadTimeout int `yaml:"upload_timeout"`

	// MaxImageBytes is the largest payload accepted for a single image.
	// Oversized images are rejected before any bytes hit the wire.
	MaxImageBytes int64 `yaml:"max_image_bytes"`

	// Wake controls wake-probe behaviour for a sleeping device.
	Wake WakeConfig `yaml:"wake"`

	// MaxRetries is the total attempt bound for idempotent operations
	// that time out. Non-idempotent operations are never auto-retried.
	MaxRetries int `yaml:"max_retries"`

	// DefaultSleepDuration is the sleep_duration value (seconds) pushed
	// by UpdateSettings when the caller does not specify one.
	DefaultSleepDuration int `yaml:"default_sleep_duration"`
}

// WakeConfig bounds the wake-probe retry loop.
type WakeConfig struct {
	// Probes is the maximum number of wake probes before the session
	// gives up and reports the device unreachable.
	Probes int `yaml:"probes"`

	// Interval is the delay in seconds between consecutive probes.
	Interval int `yaml:"interval"`
}

// SyncConfig holds gallery sync defaults.
type SyncConfig struct {
	// DefaultGallery is the target gallery when a sync request omits one.
	DefaultGallery string `yaml:"default_gallery"`

	// DefaultMaxPhotos bounds successful uploads per sync when a
	// request omits its own limit.
	DefaultMaxPhotos int `yaml:"default_max_photos"`

	// JPEGQuality is the re-encode quality for prepared images (1-100).
	JPEGQuality int `yaml:"jpeg_quality"`

	// HistoryRetentionDays is how long sync run history is kept in SQLite.
	HistoryRetentionDays int `yaml:"history_retention_days"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
// MQTT is optional; when disabled the controller runs standalone.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// StatusInterval is how often the device status snapshot is
	// announced, in seconds.
	StatusInterval int `yaml:"status_interval"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for device telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains API security settings.
type SecurityConfig struct {
	// APIToken is the static bearer token required on protected routes.
	// Empty disables auth (development only).
	APIToken string `yaml:"api_token"`

	// TicketSecret signs short-lived WebSocket tickets. Required when
	// the WebSocket endpoint is used.
	TicketSecret string `yaml:"ticket_secret"`

	// TicketTTL is the ticket lifetime in seconds.
	TicketTTL int `yaml:"ticket_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CANVAS_SECTION_KEY
// For example: CANVAS_DEVICE_HOST, CANVAS_DATABASE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:           "eink-canvas",
			RequestTimeout: 10,
			UploadTimeout:  30,
			MaxImageBytes:  8 << 20,
			Wake: WakeConfig{
				Probes:   3,
				Interval: 2,
			},
			MaxRetries:           3,
			DefaultSleepDuration: 3600,
		},
		Sync: SyncConfig{
			DefaultGallery:       "default",
			DefaultMaxPhotos:     50,
			JPEGQuality:          90,
			HistoryRetentionDays: 90,
		},
		Database: DatabaseConfig{
			Path:        "./data/canvasd.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "canvasd",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			StatusInterval: 60,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8093,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 120,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			TicketTTL: 30,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CANVAS_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CANVAS_DEVICE_HOST"); v != "" {
		cfg.Device.Host = v
	}
	if v := os.Getenv("CANVAS_DEVICE_NAME"); v != "" {
		cfg.Device.Name = v
	}
	if v := os.Getenv("CANVAS_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("CANVAS_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CANVAS_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CANVAS_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("CANVAS_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("CANVAS_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("CANVAS_API_TOKEN"); v != "" {
		cfg.Security.APIToken = v
	}
	if v := os.Getenv("CANVAS_TICKET_SECRET"); v != "" {
		cfg.Security.TicketSecret = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Device.Host == "" {
		errs = append(errs, "device.host is required (set CANVAS_DEVICE_HOST environment variable)")
	}
	if strings.Contains(c.Device.Host, "://") {
		errs = append(errs, "device.host must be a bare address without scheme")
	}
	if c.Device.Wake.Probes < 1 {
		errs = append(errs, "device.wake.probes must be at least 1")
	}
	if c.Device.MaxImageBytes <= 0 {
		errs = append(errs, "device.max_image_bytes must be positive")
	}
	if c.Device.MaxRetries < 1 {
		errs = append(errs, "device.max_retries must be at least 1")
	}

	if c.Sync.DefaultMaxPhotos < 1 {
		errs = append(errs, "sync.default_max_photos must be at least 1")
	}
	if c.Sync.JPEGQuality < 1 || c.Sync.JPEGQuality > 100 {
		errs = append(errs, "sync.jpeg_quality must be between 1 and 100")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetRequestTimeout returns the per-call device request timeout as a Duration.
func (d DeviceConfig) GetRequestTimeout() time.Duration {
	return time.Duration(d.RequestTimeout) * time.Second
}

// GetUploadTimeout returns the image upload timeout as a Duration.
func (d DeviceConfig) GetUploadTimeout() time.Duration {
	return time.Duration(d.UploadTimeout) * time.Second
}

// GetWakeInterval returns the wake-probe interval as a Duration.
func (w WakeConfig) GetWakeInterval() time.Duration {
	return time.Duration(w.Interval) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetTicketTTL returns the WebSocket ticket lifetime as a Duration.
func (s SecurityConfig) GetTicketTTL() time.Duration {
	return time.Duration(s.TicketTTL) * time.Second
}
