// Package config provides configuration loading and validation for poolnetd.
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Command-line flags (not handled here, see cmd/poolnetd/main.go)
//  2. Environment variables (POOLNETD_* prefix)
//  3. YAML config file (if specified with --config)
//  4. Hardcoded defaults
//
// Environment variables are mapped from POOLNETD_CATEGORY_SETTING format,
// e.g., POOLNETD_SERVER_HOST maps to server.host in YAML.
//
// All configuration is validated during Load() to ensure correctness early.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/jroosing/poolnetd/internal/strutil"
)

// initConfig sets up the config loader with defaults, env binding, and config file.
func initConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Environment variable binding
	// Uses POOLNETD_ prefix: POOLNETD_SERVER_HOST -> server.host
	v.SetEnvPrefix("POOLNETD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

// setDefaults configures all default values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 9090)
	v.SetDefault("server.workers", "auto")
	v.SetDefault("server.tcp", true)
	v.SetDefault("server.udp", false)
	v.SetDefault("server.ipv6", false)
	v.SetDefault("server.async", true)
	v.SetDefault("server.max_connections", 1024)
	v.SetDefault("server.buf_size", 4096)
	v.SetDefault("server.ttl_ms", 0)
	v.SetDefault("server.bind_retries", 3)
	v.SetDefault("server.bind_retry_interval_ms", 200)

	// Notifier defaults
	v.SetDefault("notifier.max_events", 256)
	v.SetDefault("notifier.debug", false)
	v.SetDefault("notifier.emit_old_data_signal", false)

	// Logging defaults
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})

	// Management API defaults
	// Default to disabled and bound to localhost for safety.
	v.SetDefault("api.enabled", false)
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.api_key", "")

	// Storage defaults
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.path", "poolnetd.db")
}

// loadFromSource loads configuration from file and environment.
func loadFromSource(configPath string) (*Config, error) {
	v, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	loadServerConfig(v, cfg)
	loadNotifierConfig(v, cfg)
	loadLoggingConfig(v, cfg)
	loadAPIConfig(v, cfg)
	loadStorageConfig(v, cfg)

	// Normalize and validate
	if err := normalizeConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadServerConfig(v *viper.Viper, cfg *Config) {
	cfg.Server.Host = v.GetString("server.host")
	cfg.Server.Port = v.GetInt("server.port")
	cfg.Server.TCP = v.GetBool("server.tcp")
	cfg.Server.UDP = v.GetBool("server.udp")
	cfg.Server.IPv6 = v.GetBool("server.ipv6")
	cfg.Server.Async = v.GetBool("server.async")
	cfg.Server.MaxConnections = v.GetInt("server.max_connections")
	cfg.Server.BufSize = v.GetInt("server.buf_size")
	cfg.Server.TTLMs = v.GetInt("server.ttl_ms")
	cfg.Server.BindRetries = v.GetInt("server.bind_retries")
	cfg.Server.BindRetryIntervalMs = v.GetInt("server.bind_retry_interval_ms")
	cfg.Server.WorkersRaw = v.GetString("server.workers")
	cfg.Server.Workers = parseWorkers(cfg.Server.WorkersRaw)
}

func loadNotifierConfig(v *viper.Viper, cfg *Config) {
	cfg.Notifier.MaxEvents = v.GetInt("notifier.max_events")
	cfg.Notifier.Debug = v.GetBool("notifier.debug")
	cfg.Notifier.EmitOldDataSignal = v.GetBool("notifier.emit_old_data_signal")
}

func loadLoggingConfig(v *viper.Viper, cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(v.GetString("logging.level"))
	cfg.Logging.Structured = v.GetBool("logging.structured")
	cfg.Logging.StructuredFormat = v.GetString("logging.structured_format")
	cfg.Logging.IncludePID = v.GetBool("logging.include_pid")
	cfg.Logging.ExtraFields = v.GetStringMapString("logging.extra_fields")
}

func loadAPIConfig(v *viper.Viper, cfg *Config) {
	cfg.API.Enabled = v.GetBool("api.enabled")
	cfg.API.Host = v.GetString("api.host")
	cfg.API.Port = v.GetInt("api.port")
	cfg.API.APIKey = v.GetString("api.api_key")
}

func loadStorageConfig(v *viper.Viper, cfg *Config) {
	cfg.Storage.Enabled = v.GetBool("storage.enabled")
	cfg.Storage.Path = v.GetString("storage.path")
}

// parseWorkers converts the workers string to WorkerSetting. raw may carry
// stray shell quoting when sourced from an environment variable, hence the
// TrimQuotes pass before the auto/fixed-count check.
func parseWorkers(raw string) WorkerSetting {
	raw = strings.TrimSpace(strings.ToLower(strutil.TrimQuotes(raw)))
	if raw == "" || raw == "auto" {
		return WorkerSetting{Mode: WorkersAuto}
	}
	if n := strutil.ParseIntDefault(raw, 0, 0, 1<<20); n > 0 {
		return WorkerSetting{Mode: WorkersFixed, Value: n}
	}
	return WorkerSetting{Mode: WorkersAuto}
}

// normalizeConfig validates and normalizes the configuration.
func normalizeConfig(cfg *Config) error {
	// Validate port
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New("server.port must be 1..65535")
	}

	if !cfg.Server.TCP && !cfg.Server.UDP {
		return errors.New("server: at least one of tcp or udp must be enabled")
	}

	if cfg.Server.MaxConnections <= 0 {
		return errors.New("server.max_connections must be positive")
	}
	if cfg.Server.BufSize <= 0 {
		cfg.Server.BufSize = 4096
	}
	if cfg.Server.BindRetries < 0 {
		cfg.Server.BindRetries = 0
	}

	// Normalize notifier
	if cfg.Notifier.MaxEvents <= 0 {
		cfg.Notifier.MaxEvents = 256
	}

	// Normalize logging
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	// Normalize management API
	if cfg.API.Host == "" {
		cfg.API.Host = "127.0.0.1"
	}
	if cfg.API.Enabled {
		if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
			return errors.New("api.port must be 1..65535")
		}
	}

	// Normalize storage
	if cfg.Storage.Enabled && strings.TrimSpace(cfg.Storage.Path) == "" {
		cfg.Storage.Path = "poolnetd.db"
	}

	return nil
}
