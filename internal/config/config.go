// Package config loads and validates the agent's two configuration
// surfaces: the operational YAML file (agent.yaml, ambient, §6) and the
// minimal JSON network descriptor (network.conf, spec-mandated, §6).
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// validSniffers is the set of accepted sniffer mode strings.
var validSniffers = map[string]bool{
	"btbr":     true,
	"btle":     true,
	"btle-adv": true,
}

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Config is the agent's operational configuration (agent.yaml).
type Config struct {
	// Sniffers lists capture modes: any of "btbr", "btle", "btle-adv". At
	// least one is required. The list is validated only; the agent binary
	// runs the modes named in its positional arguments.
	Sniffers []string `yaml:"sniffers"`

	// PipeDir is the directory containing the named pipes the external
	// capture tools write records to. Defaults to "pipes".
	PipeDir string `yaml:"pipe_dir"`

	// SeenForSeconds is the BTBR/BTLE-Adv reportability threshold: a
	// fingerprint must have been observed for longer than this many
	// seconds before it is reported. Defaults to 60.
	SeenForSeconds int64 `yaml:"seen_for_seconds"`

	// SeenThreshold is the BTLE reportability threshold: a fingerprint
	// must have been observed at least this many times. Defaults to 5.
	SeenThreshold int `yaml:"seen_threshold"`

	// ReportIntervalSeconds is how often the fingerprint reporter job
	// runs. Defaults to 30.
	ReportIntervalSeconds int64 `yaml:"report_interval_seconds"`

	// LocationIntervalSeconds is how often the location reporter job
	// runs. Defaults to 1.
	LocationIntervalSeconds int64 `yaml:"location_interval_seconds"`

	// LogLevel sets the minimum log severity: "debug", "info", "warn", or
	// "error". Defaults to "info".
	LogLevel string `yaml:"log_level"`

	// QueuePath is the path to the local durable SQLite queue backing the
	// HTTP sink. Defaults to "queue.db".
	QueuePath string `yaml:"queue_path"`
}

// LoadConfig reads the YAML file at path, unmarshals it into Config,
// applies defaults, and validates all required fields. It returns a typed
// error describing every validation failure encountered, joined via
// errors.Join.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed for %q: %w", path, err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.PipeDir == "" {
		cfg.PipeDir = "pipes"
	}
	if cfg.SeenForSeconds == 0 {
		cfg.SeenForSeconds = 60
	}
	if cfg.SeenThreshold == 0 {
		cfg.SeenThreshold = 5
	}
	if cfg.ReportIntervalSeconds == 0 {
		cfg.ReportIntervalSeconds = 30
	}
	if cfg.LocationIntervalSeconds == 0 {
		cfg.LocationIntervalSeconds = 1
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.QueuePath == "" {
		cfg.QueuePath = "queue.db"
	}
}

func validate(cfg *Config) error {
	var errs []error

	if len(cfg.Sniffers) == 0 {
		errs = append(errs, errors.New("sniffers: at least one of btbr, btle, btle-adv is required"))
	}
	for i, mode := range cfg.Sniffers {
		if !validSniffers[mode] {
			errs = append(errs, fmt.Errorf("sniffers[%d]: %q must be one of: btbr, btle, btle-adv", i, mode))
		}
	}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.SeenForSeconds < 0 {
		errs = append(errs, fmt.Errorf("seen_for_seconds %d must be >= 0", cfg.SeenForSeconds))
	}
	if cfg.SeenThreshold < 0 {
		errs = append(errs, fmt.Errorf("seen_threshold %d must be >= 0", cfg.SeenThreshold))
	}

	return errors.Join(errs...)
}
