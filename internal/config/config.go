// Package config loads the relay's configuration: a YAML file parsed into
// a typed struct (the relay's settings are a known, fixed set), with
// caarlos0/env applying environment overrides after the file loads.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"
)

// RankingPolicy selects the matching engine's candidate ranking.
type RankingPolicy string

const (
	RankingPopulationFirst RankingPolicy = "population_first"
	RankingLowPingFirst    RankingPolicy = "low_ping_first"
)

// StorageBackend selects which Store implementation cmd/relayd wires up.
type StorageBackend string

const (
	StorageFilesystem StorageBackend = "filesystem"
	StorageSQL        StorageBackend = "sql"
)

// Config is the relay's full runtime configuration.
//
// force_into_any_session, verbose, and debug all default to off and must
// be turned on deliberately.
type Config struct {
	ListenAddress string `yaml:"listen_address" env:"RELAY_LISTEN_ADDRESS"`

	StorageBackend StorageBackend `yaml:"storage_backend" env:"RELAY_STORAGE_BACKEND"`
	StorageRoot    string         `yaml:"storage_root" env:"RELAY_STORAGE_ROOT"`
	StorageDSN     string         `yaml:"storage_dsn" env:"RELAY_STORAGE_DSN"`
	DisableCache   bool           `yaml:"disable_cache" env:"RELAY_DISABLE_CACHE"`

	ServerDBAPIKey string `yaml:"server_db_api_key" env:"RELAY_SERVERDB_API_KEY"`
	AdminAPIKey    string `yaml:"admin_api_key" env:"RELAY_ADMIN_API_KEY"`
	AdminAPIListen string `yaml:"admin_api_listen" env:"RELAY_ADMIN_API_LISTEN"`

	ValidateEndpoint     bool          `yaml:"validate_endpoint" env:"RELAY_VALIDATE_ENDPOINT"`
	ValidateTimeoutMs    int           `yaml:"validate_timeout_ms" env:"RELAY_VALIDATE_TIMEOUT_MS"`
	ValidateIntervalSecs int           `yaml:"validate_interval_seconds" env:"RELAY_VALIDATE_INTERVAL_SECONDS"`
	RankingPolicy        RankingPolicy `yaml:"ranking_policy" env:"RELAY_RANKING_POLICY"`
	ForceIntoAnySession  bool          `yaml:"force_into_any_session" env:"RELAY_FORCE_INTO_ANY_SESSION"`

	SessionTTLMinutes             int `yaml:"session_ttl_minutes" env:"RELAY_SESSION_TTL_MINUTES"`
	SessionDisconnectedTimeoutMin int `yaml:"session_disconnected_timeout_minutes" env:"RELAY_SESSION_DISCONNECTED_TIMEOUT_MINUTES"`

	LogDir  string `yaml:"log_dir" env:"RELAY_LOG_DIR"`
	Verbose bool   `yaml:"verbose" env:"RELAY_VERBOSE"`
	Debug   bool   `yaml:"debug" env:"RELAY_DEBUG"`

	SymbolManifestPath string `yaml:"symbol_manifest_path" env:"RELAY_SYMBOL_MANIFEST_PATH"`

	ShutdownGraceSeconds int `yaml:"shutdown_grace_seconds" env:"RELAY_SHUTDOWN_GRACE_SECONDS"`
}

// defaults seeds the base configuration both the YAML file and the
// environment override. Defaults live here, not in envDefault tags:
// env.Parse applies an envDefault whenever the variable is unset,
// regardless of the field's current value, which would silently reset
// every YAML-populated field on a machine without RELAY_* vars.
func defaults() *Config {
	return &Config{
		ListenAddress:                 "0.0.0.0:8080",
		StorageBackend:                StorageFilesystem,
		StorageRoot:                   "data",
		ValidateEndpoint:              true,
		ValidateTimeoutMs:             3000,
		RankingPolicy:                 RankingPopulationFirst,
		SessionTTLMinutes:             1440,
		SessionDisconnectedTimeoutMin: 5,
		LogDir:                        "log",
		ShutdownGraceSeconds:          10,
	}
}

// ValidateTimeout returns ValidateTimeoutMs as a time.Duration.
func (c *Config) ValidateTimeout() time.Duration {
	return time.Duration(c.ValidateTimeoutMs) * time.Millisecond
}

// ValidateInterval returns ValidateIntervalSecs as a time.Duration. Zero
// means registration-time probing only, with no periodic re-probe.
func (c *Config) ValidateInterval() time.Duration {
	return time.Duration(c.ValidateIntervalSecs) * time.Second
}

// SessionTTL returns SessionTTLMinutes as a time.Duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// SessionDisconnectedTimeout returns SessionDisconnectedTimeoutMin as a
// time.Duration, the shortened TTL applied to a session whose peer has
// disconnected.
func (c *Config) SessionDisconnectedTimeout() time.Duration {
	return time.Duration(c.SessionDisconnectedTimeoutMin) * time.Minute
}

// ShutdownGrace returns ShutdownGraceSeconds as a time.Duration.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

// Load seeds the defaults, layers path (if it exists) as YAML on top, then
// applies RELAY_* environment overrides. A missing file is not an error:
// the server must be runnable from environment variables alone. With no
// envDefault tags in play, env.Parse touches only fields whose variable is
// actually set, so YAML values survive an empty environment.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through to the seeded defaults plus environment
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: apply environment overrides: %w", err)
	}

	return cfg, nil
}
