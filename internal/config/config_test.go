package config_test

import (
	"os"
	"strings"
	"testing"

	"github.com/fieldmesh/beacon/internal/config"
)

func writeTemp(t *testing.T, pattern, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), pattern)
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()
	return f.Name()
}

const validYAML = `
sniffers:
  - btbr
  - btle-adv
pipe_dir: /run/beacon/pipes
seen_for_seconds: 90
seen_threshold: 8
report_interval_seconds: 15
location_interval_seconds: 2
log_level: debug
queue_path: /var/lib/beacon/queue.db
`

func TestLoadConfig_Valid(t *testing.T) {
	path := writeTemp(t, "agent-*.yaml", validYAML)
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Sniffers) != 2 || cfg.Sniffers[0] != "btbr" || cfg.Sniffers[1] != "btle-adv" {
		t.Errorf("Sniffers = %v, want [btbr btle-adv]", cfg.Sniffers)
	}
	if cfg.PipeDir != "/run/beacon/pipes" {
		t.Errorf("PipeDir = %q, want /run/beacon/pipes", cfg.PipeDir)
	}
	if cfg.SeenForSeconds != 90 {
		t.Errorf("SeenForSeconds = %d, want 90", cfg.SeenForSeconds)
	}
	if cfg.SeenThreshold != 8 {
		t.Errorf("SeenThreshold = %d, want 8", cfg.SeenThreshold)
	}
	if cfg.ReportIntervalSeconds != 15 {
		t.Errorf("ReportIntervalSeconds = %d, want 15", cfg.ReportIntervalSeconds)
	}
	if cfg.LocationIntervalSeconds != 2 {
		t.Errorf("LocationIntervalSeconds = %d, want 2", cfg.LocationIntervalSeconds)
	}
	if cfg.QueuePath != "/var/lib/beacon/queue.db" {
		t.Errorf("QueuePath = %q, want /var/lib/beacon/queue.db", cfg.QueuePath)
	}
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	path := writeTemp(t, "agent-*.yaml", "sniffers:\n  - btle\n")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.PipeDir != "pipes" {
		t.Errorf("PipeDir default = %q, want pipes", cfg.PipeDir)
	}
	if cfg.SeenForSeconds != 60 {
		t.Errorf("SeenForSeconds default = %d, want 60", cfg.SeenForSeconds)
	}
	if cfg.SeenThreshold != 5 {
		t.Errorf("SeenThreshold default = %d, want 5", cfg.SeenThreshold)
	}
	if cfg.ReportIntervalSeconds != 30 {
		t.Errorf("ReportIntervalSeconds default = %d, want 30", cfg.ReportIntervalSeconds)
	}
	if cfg.LocationIntervalSeconds != 1 {
		t.Errorf("LocationIntervalSeconds default = %d, want 1", cfg.LocationIntervalSeconds)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel default = %q, want info", cfg.LogLevel)
	}
	if cfg.QueuePath != "queue.db" {
		t.Errorf("QueuePath default = %q, want queue.db", cfg.QueuePath)
	}
}

func TestLoadConfig_MissingSniffersIsError(t *testing.T) {
	path := writeTemp(t, "agent-*.yaml", "log_level: info\n")
	_, err := config.LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for missing sniffers, got nil")
	}
	if !strings.Contains(err.Error(), "sniffers") {
		t.Errorf("error = %v, want mention of sniffers", err)
	}
}

func TestLoadConfig_UnknownSnifferIsError(t *testing.T) {
	path := writeTemp(t, "agent-*.yaml", "sniffers:\n  - btbr\n  - classic\n")
	_, err := config.LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for unknown sniffer mode, got nil")
	}
}

func TestLoadConfig_InvalidLogLevelIsError(t *testing.T) {
	path := writeTemp(t, "agent-*.yaml", "sniffers:\n  - btbr\nlog_level: verbose\n")
	_, err := config.LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := config.LoadConfig("/nonexistent/agent.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

const validNetworkConf = `{"hostname": "ingest.example.com", "port": 8443}`

func TestLoadNetworkConfig_Valid(t *testing.T) {
	path := writeTemp(t, "network-*.conf", validNetworkConf)
	nc, err := config.LoadNetworkConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if nc.Hostname != "ingest.example.com" || nc.Port != 8443 {
		t.Errorf("NetworkConfig = %+v, want {ingest.example.com 8443}", nc)
	}
	if got, want := nc.BaseURL(), "https://ingest.example.com:8443"; got != want {
		t.Errorf("BaseURL() = %q, want %q", got, want)
	}
}

func TestLoadNetworkConfig_MissingHostnameIsError(t *testing.T) {
	path := writeTemp(t, "network-*.conf", `{"port": 8443}`)
	_, err := config.LoadNetworkConfig(path)
	if err == nil {
		t.Fatal("expected error for missing hostname, got nil")
	}
}

func TestLoadNetworkConfig_MalformedJSONIsError(t *testing.T) {
	path := writeTemp(t, "network-*.conf", `{not json`)
	_, err := config.LoadNetworkConfig(path)
	if err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
}
