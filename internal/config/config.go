// Package config loads the wise configuration file and exposes it to the
// rest of the process as an atomically swappable snapshot.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is one immutable snapshot of the full configuration. Components
// hold a *Store and read a fresh snapshot per use; they never mutate it.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Rcon      RconConfig      `yaml:"rcon"`
	Polling   PollingConfig   `yaml:"polling"`
	Auth      AuthConfig      `yaml:"auth"`
	Exporting ExportingConfig `yaml:"exporting"`
}

// RconConfig locates the game server.
type RconConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
}

// PollingConfig controls poller cadence.
type PollingConfig struct {
	WaitMS     int `yaml:"wait_ms"`
	CooldownMS int `yaml:"cooldown_ms"`

	// ManagePlayers starts and stops per-player pollers from connect and
	// disconnect log lines.
	ManagePlayers bool `yaml:"manage_players"`
}

// Wait returns the poll period for gamestate and per-player pollers.
func (p PollingConfig) Wait() time.Duration {
	return time.Duration(p.WaitMS) * time.Millisecond
}

// Cooldown returns the delay between spawning per-player pollers.
func (p PollingConfig) Cooldown() time.Duration {
	return time.Duration(p.CooldownMS) * time.Millisecond
}

// AuthConfig lists the tokens accepted on the websocket.
type AuthConfig struct {
	Tokens []TokenConfig `yaml:"tokens"`
}

// TokenConfig is one named access token with its permissions.
type TokenConfig struct {
	Name  string    `yaml:"name"`
	Value string    `yaml:"value"`
	Perms AuthPerms `yaml:"perms"`
}

// AuthPerms gates what a connection may see and do.
type AuthPerms struct {
	ReadRconEvents bool `yaml:"read_rcon_events" json:"read_rcon_events"`
	WriteRcon      bool `yaml:"write_rcon" json:"write_rcon"`
}

// ExportingConfig holds the outward-facing surfaces.
type ExportingConfig struct {
	Websocket WebsocketConfig `yaml:"websocket"`
}

// WebsocketConfig configures the websocket exporter.
type WebsocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`

	// Password optionally required from clients before the token frame.
	Password string `yaml:"password"`

	TLS      bool   `yaml:"tls"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Load reads and validates the configuration file. Secrets may be supplied
// through the environment instead of the file: WISE_RCON_ADDRESS and
// WISE_RCON_PASSWORD override their file counterparts.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if v := os.Getenv("WISE_RCON_ADDRESS"); v != "" {
		cfg.Rcon.Address = v
	}
	if v := os.Getenv("WISE_RCON_PASSWORD"); v != "" {
		cfg.Rcon.Password = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		LogLevel: "info",
		Polling: PollingConfig{
			WaitMS:        1000,
			CooldownMS:    100,
			ManagePlayers: true,
		},
	}
}

func (c *Config) validate() error {
	if c.Rcon.Address == "" {
		return errors.New("config: rcon.address is required")
	}
	if c.Rcon.Password == "" {
		return errors.New("config: rcon.password is required")
	}
	if c.Polling.WaitMS <= 0 {
		return errors.New("config: polling.wait_ms must be positive")
	}
	if c.Polling.CooldownMS < 0 {
		return errors.New("config: polling.cooldown_ms must not be negative")
	}
	ws := c.Exporting.Websocket
	if ws.Enabled && ws.Address == "" {
		return errors.New("config: exporting.websocket.address is required when enabled")
	}
	if ws.TLS && (ws.CertFile == "" || ws.KeyFile == "") {
		return errors.New("config: exporting.websocket cert_file and key_file are required with tls")
	}
	return nil
}

// SlogLevel maps the configured level name onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Store hands out the current snapshot and accepts replacements.
type Store struct {
	current atomic.Pointer[Config]
}

// NewStore creates a store seeded with cfg.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(cfg)
	return s
}

// Get returns the current snapshot. Callers must treat it as read-only.
func (s *Store) Get() *Config {
	return s.current.Load()
}

// Swap installs a new snapshot. In-flight readers keep the old one.
func (s *Store) Swap(cfg *Config) {
	s.current.Store(cfg)
}
