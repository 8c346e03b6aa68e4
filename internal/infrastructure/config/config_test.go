package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
device:
  host: "192.168.1.42"
  name: "hallway-canvas"
  request_timeout: 10
  wake:
    probes: 3
    interval: 2
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
api:
  host: "0.0.0.0"
  port: 8093
`
	cfg, err := Load(writeTestConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.Host != "192.168.1.42" {
		t.Errorf("Device.Host = %q, want %q", cfg.Device.Host, "192.168.1.42")
	}
	if cfg.Device.Name != "hallway-canvas" {
		t.Errorf("Device.Name = %q, want %q", cfg.Device.Name, "hallway-canvas")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	content := `
device:
  host: "10.0.0.5"
`
	cfg, err := Load(writeTestConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.Wake.Probes != 3 {
		t.Errorf("Device.Wake.Probes = %d, want default 3", cfg.Device.Wake.Probes)
	}
	if cfg.Sync.DefaultGallery != "default" {
		t.Errorf("Sync.DefaultGallery = %q, want %q", cfg.Sync.DefaultGallery, "default")
	}
	if cfg.Sync.DefaultMaxPhotos != 50 {
		t.Errorf("Sync.DefaultMaxPhotos = %d, want default 50", cfg.Sync.DefaultMaxPhotos)
	}
	if cfg.Device.GetRequestTimeout() != 10*time.Second {
		t.Errorf("GetRequestTimeout() = %v, want 10s", cfg.Device.GetRequestTimeout())
	}
	if cfg.Device.GetUploadTimeout() != 30*time.Second {
		t.Errorf("GetUploadTimeout() = %v, want 30s", cfg.Device.GetUploadTimeout())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeTestConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	content := `
device:
  host: "10.0.0.5"
`
	t.Setenv("CANVAS_DEVICE_HOST", "10.0.0.99")
	t.Setenv("CANVAS_API_TOKEN", "env-token")

	cfg, err := Load(writeTestConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.Host != "10.0.0.99" {
		t.Errorf("Device.Host = %q, want env override %q", cfg.Device.Host, "10.0.0.99")
	}
	if cfg.Security.APIToken != "env-token" {
		t.Errorf("Security.APIToken = %q, want %q", cfg.Security.APIToken, "env-token")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Device.Host = "192.168.1.42"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing device host",
			mutate:  func(c *Config) { c.Device.Host = "" },
			wantErr: true,
		},
		{
			name:    "device host with scheme",
			mutate:  func(c *Config) { c.Device.Host = "http://192.168.1.42" },
			wantErr: true,
		},
		{
			name:    "zero wake probes",
			mutate:  func(c *Config) { c.Device.Wake.Probes = 0 },
			wantErr: true,
		},
		{
			name:    "zero max retries",
			mutate:  func(c *Config) { c.Device.MaxRetries = 0 },
			wantErr: true,
		},
		{
			name:    "negative max image bytes",
			mutate:  func(c *Config) { c.Device.MaxImageBytes = -1 },
			wantErr: true,
		},
		{
			name:    "jpeg quality out of range",
			mutate:  func(c *Config) { c.Sync.JPEGQuality = 101 },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name: "invalid mqtt qos when enabled",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.QoS = 3
			},
			wantErr: true,
		},
		{
			name:    "invalid api port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
