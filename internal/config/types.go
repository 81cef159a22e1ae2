// Package config provides configuration loading for poolnetd using Viper.
// Configuration is loaded from YAML files with automatic environment variable binding.
//
// Environment variables use the POOLNETD_ prefix and underscore-separated keys:
//   - POOLNETD_SERVER_HOST -> server.host
//   - POOLNETD_SERVER_PORT -> server.port
//   - POOLNETD_SERVER_MAX_CONNECTIONS -> server.max_connections
//   - POOLNETD_STORAGE_ENABLED -> storage.enabled
package config

import (
	"os"
	"strconv"
	"strings"
)

// WorkersMode specifies how worker count is determined.
type WorkersMode int

const (
	// WorkersAuto automatically determines worker count based on available CPUs.
	WorkersAuto WorkersMode = iota
	// WorkersFixed uses a specific worker count.
	WorkersFixed
)

// WorkerSetting represents the workers configuration.
type WorkerSetting struct {
	Mode  WorkersMode
	Value int
}

// String returns the string representation of the worker setting.
func (w WorkerSetting) String() string {
	if w.Mode == WorkersAuto {
		return "auto"
	}
	return strconv.Itoa(w.Value)
}

// ServerConfig contains pool server settings: listen address plus the
// per-pool capacity, buffer, TTL, and bind-retry knobs that feed
// connpool.Config.
type ServerConfig struct {
	Host                string        `yaml:"host"                  mapstructure:"host"`
	Port                int           `yaml:"port"                  mapstructure:"port"`
	Workers             WorkerSetting `yaml:"-"                     mapstructure:"-"`
	WorkersRaw          string        `yaml:"workers"                mapstructure:"workers"`
	TCP                 bool          `yaml:"tcp"                    mapstructure:"tcp"`
	UDP                 bool          `yaml:"udp"                    mapstructure:"udp"`
	IPv6                bool          `yaml:"ipv6"                   mapstructure:"ipv6"`
	Async               bool          `yaml:"async"                  mapstructure:"async"`
	MaxConnections      int           `yaml:"max_connections"        mapstructure:"max_connections"`
	BufSize             int           `yaml:"buf_size"               mapstructure:"buf_size"`
	TTLMs               int           `yaml:"ttl_ms"                 mapstructure:"ttl_ms"`
	BindRetries         int           `yaml:"bind_retries"           mapstructure:"bind_retries"`
	BindRetryIntervalMs int           `yaml:"bind_retry_interval_ms" mapstructure:"bind_retry_interval_ms"`
}

// NotifierConfig holds the notifier section. cmd/poolnetd passes only Debug
// on (as each pool's connpool.Config.Debug); MaxEvents and
// EmitOldDataSignal are loaded but not passed to any pool or notifier.
type NotifierConfig struct {
	MaxEvents         int  `yaml:"max_events"            mapstructure:"max_events"`
	Debug             bool `yaml:"debug"                 mapstructure:"debug"`
	EmitOldDataSignal bool `yaml:"emit_old_data_signal"  mapstructure:"emit_old_data_signal"`
}

// StorageConfig controls the optional sqlite-backed pool observability
// store (internal/poolstore). Disabled by default; cmd/poolnetd only
// imports and wires poolstore when Enabled is true.
type StorageConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path"    mapstructure:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"             json:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"        json:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format" json:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"       json:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"      json:"extra_fields,omitempty"`
}

// APIConfig contains management API settings.
//
// Note: APIKey is intentionally treated as a secret and should not be returned by API endpoints.
type APIConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Host    string `yaml:"host"    mapstructure:"host"`
	Port    int    `yaml:"port"    mapstructure:"port"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
}

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"   mapstructure:"server"`
	Notifier NotifierConfig `yaml:"notifier" mapstructure:"notifier"`
	Logging  LoggingConfig  `yaml:"logging"  mapstructure:"logging"`
	API      APIConfig      `yaml:"api"      mapstructure:"api"`
	Storage  StorageConfig  `yaml:"storage"  mapstructure:"storage"`
}

// ResolveConfigPath determines the config file path from flag or environment.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("POOLNETD_CONFIG")); v != "" {
		return v
	}
	return ""
}

// Load loads configuration from a YAML file with environment variable overrides.
// This is the main entry point for loading configuration.
//
// Configuration priority (highest to lowest):
//  1. Environment variables (POOLNETD_*)
//  2. Config file values
//  3. Default values
func Load(path string) (*Config, error) {
	return loadFromSource(path)
}
