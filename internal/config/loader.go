package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Engine.BaseURL == "" {
		errs = append(errs, errors.New("engine.base_url is required"))
	} else if _, err := url.Parse(cfg.Engine.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("engine.base_url %q is not a valid URL: %w", cfg.Engine.BaseURL, err))
	}
	if cfg.Engine.ResultURL != "" {
		if _, err := url.Parse(cfg.Engine.ResultURL); err != nil {
			errs = append(errs, fmt.Errorf("engine.result_url %q is not a valid URL: %w", cfg.Engine.ResultURL, err))
		}
	}
	if cfg.Engine.UploadMaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("engine.upload_max_attempts %d must not be negative", cfg.Engine.UploadMaxAttempts))
	}
	if cfg.Engine.UploadBackoff < 0 || cfg.Engine.UploadMaxBackoff < 0 || cfg.Engine.ResultTimeout < 0 {
		errs = append(errs, errors.New("engine durations must not be negative"))
	}
	if cfg.Engine.UploadMaxBackoff != 0 && cfg.Engine.UploadBackoff > cfg.Engine.UploadMaxBackoff {
		errs = append(errs, errors.New("engine.upload_backoff must not exceed engine.upload_max_backoff"))
	}
	if cfg.Engine.APIKey == "" {
		slog.Warn("engine.api_key is empty; engine requests will be unauthenticated")
	}

	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; baselines will be held in memory and lost on restart")
	}

	errs = append(errs, validateGate("quality.device", cfg.Quality.Device)...)
	errs = append(errs, validateGate("quality.simulator", cfg.Quality.Simulator)...)

	return errors.Join(errs...)
}

// validateGate checks one gate threshold block. A fully zero block keeps the
// built-in defaults and is always valid.
func validateGate(prefix string, g GateConfig) []error {
	if g.MinimumRMS == 0 && g.WarningRecoveryRMS == 0 {
		return nil
	}

	var errs []error
	if g.MinimumRMS <= 0 {
		errs = append(errs, fmt.Errorf("%s.minimum_rms %.4f must be positive", prefix, g.MinimumRMS))
	}
	if g.WarningRecoveryRMS <= 0 {
		errs = append(errs, fmt.Errorf("%s.warning_recovery_rms %.4f must be positive", prefix, g.WarningRecoveryRMS))
	}
	if g.MinimumRMS > 0 && g.WarningRecoveryRMS > 0 && g.MinimumRMS >= g.WarningRecoveryRMS {
		errs = append(errs, fmt.Errorf("%s.minimum_rms %.4f must be below warning_recovery_rms %.4f", prefix, g.MinimumRMS, g.WarningRecoveryRMS))
	}
	return errs
}
