package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: debug
engine:
  base_url: "https://engine.example.com"
  api_key: "secret"
  upload_max_attempts: 5
  upload_backoff: 250ms
  upload_max_backoff: 8s
  result_timeout: 90s
storage:
  postgres_dsn: "postgres://localhost:5432/sagevoice"
quality:
  simulator:
    minimum_rms: 0.002
    warning_recovery_rms: 0.004
`

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogDebug {
		t.Errorf("LogLevel = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Engine.UploadMaxAttempts != 5 {
		t.Errorf("UploadMaxAttempts = %d, want 5", cfg.Engine.UploadMaxAttempts)
	}
	if cfg.Engine.UploadBackoff.Std() != 250*time.Millisecond {
		t.Errorf("UploadBackoff = %v, want 250ms", cfg.Engine.UploadBackoff.Std())
	}
	if cfg.Engine.ResultTimeout.Std() != 90*time.Second {
		t.Errorf("ResultTimeout = %v, want 90s", cfg.Engine.ResultTimeout.Std())
	}
	if cfg.Quality.Simulator.MinimumRMS != 0.002 {
		t.Errorf("Simulator.MinimumRMS = %v, want 0.002", cfg.Quality.Simulator.MinimumRMS)
	}
	// Device block omitted: stays zero so the gate uses its defaults.
	if cfg.Quality.Device != (GateConfig{}) {
		t.Errorf("Device = %+v, want zero value", cfg.Quality.Device)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	yaml := `
server:
  listen_addr: ":8080"
  listen_adr: ":8081"
engine:
  base_url: "https://engine.example.com"
`
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("LoadFromReader() accepted a misspelled field")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			"missing base url",
			func(c *Config) { c.Engine.BaseURL = "" },
			"engine.base_url is required",
		},
		{
			"invalid log level",
			func(c *Config) { c.Server.LogLevel = "verbose" },
			"server.log_level",
		},
		{
			"negative attempts",
			func(c *Config) { c.Engine.UploadMaxAttempts = -1 },
			"upload_max_attempts",
		},
		{
			"backoff exceeds cap",
			func(c *Config) {
				c.Engine.UploadBackoff = Duration(20 * time.Second)
				c.Engine.UploadMaxBackoff = Duration(10 * time.Second)
			},
			"upload_backoff",
		},
		{
			"inverted gate thresholds",
			func(c *Config) {
				c.Quality.Device = GateConfig{MinimumRMS: 0.01, WarningRecoveryRMS: 0.005}
			},
			"quality.device.minimum_rms",
		},
		{
			"partial gate block",
			func(c *Config) {
				c.Quality.Device = GateConfig{MinimumRMS: 0.01}
			},
			"quality.device.warning_recovery_rms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFromReader(strings.NewReader(validYAML))
			if err != nil {
				t.Fatalf("base config invalid: %v", err)
			}
			tt.mutate(cfg)

			err = Validate(cfg)
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %q, want to mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateJoinsAllErrors(t *testing.T) {
	cfg := &Config{}
	cfg.Server.LogLevel = "verbose"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, want := range []string{"server.log_level", "engine.base_url"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() = %q, missing %q", err.Error(), want)
		}
	}
}

func TestDurationUnmarshalYAML(t *testing.T) {
	yaml := `
server:
  listen_addr: ":8080"
engine:
  base_url: "https://engine.example.com"
  result_timeout: not-a-duration
`
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("LoadFromReader() accepted an invalid duration")
	}
}
