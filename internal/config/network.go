package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// NetworkConfig is the central ingestion API's address, loaded from
// network.conf (§6). Unlike agent.yaml, failure to parse this file is
// always fatal: there is no sensible default for where to report to.
type NetworkConfig struct {
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`
}

// BaseURL returns the https base URL built from Hostname and Port, used as
// the prefix for every /api/* request the sink and reporters make.
func (n NetworkConfig) BaseURL() string {
	return fmt.Sprintf("https://%s:%d", n.Hostname, n.Port)
}

// LoadNetworkConfig reads and parses the JSON file at path.
func LoadNetworkConfig(path string) (*NetworkConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}

	var nc NetworkConfig
	if err := json.Unmarshal(data, &nc); err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}
	if nc.Hostname == "" {
		return nil, fmt.Errorf("config: %q: hostname is required", path)
	}
	if nc.Port <= 0 {
		return nil, fmt.Errorf("config: %q: port must be positive", path)
	}
	return &nc, nil
}
