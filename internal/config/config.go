package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
	Agent   AgentConfig   `yaml:"agent"`
	Redact  RedactConfig  `yaml:"redact"`
	Stats   StatsConfig   `yaml:"stats"`
}

type ServerConfig struct {
	Port              int           `yaml:"port" env:"AGENT_HUB_PORT"`
	Host              string        `yaml:"host" env:"AGENT_HUB_HOST"`
	AuthToken         string        `yaml:"auth_token" env:"AGENT_HUB_AUTH_TOKEN"`
	AllowedOrigins    []string      `yaml:"allowed_origins" env:"AGENT_HUB_ALLOWED_ORIGINS"`
	BroadcastThrottle time.Duration `yaml:"broadcast_throttle"`
	SnapshotInterval  time.Duration `yaml:"snapshot_interval"`
}

type SessionConfig struct {
	MaxSessions        int           `yaml:"max_sessions" env:"AGENT_HUB_MAX_SESSIONS"`
	IdleTimeoutSeconds int           `yaml:"idle_timeout_seconds" env:"AGENT_HUB_IDLE_TIMEOUT_SECONDS"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
}

type AgentConfig struct {
	DefaultModel    string            `yaml:"default_model" env:"AGENT_HUB_DEFAULT_MODEL"`
	Models          map[string]string `yaml:"models"`
	AllowedCommands []string          `yaml:"allowed_commands"`
	CommandTimeout  time.Duration     `yaml:"command_timeout"`
}

type RedactConfig struct {
	MaskSessionIDs bool `yaml:"mask_session_ids" env:"AGENT_HUB_MASK_SESSION_IDS"`
	MaskModels     bool `yaml:"mask_models" env:"AGENT_HUB_MASK_MODELS"`
}

type StatsConfig struct {
	Path string `yaml:"path" env:"AGENT_HUB_STATS_PATH"`
}

// Load reads the config file at path (a missing file is fine: defaults
// apply), overlays environment variables, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:              8080,
			Host:              "0.0.0.0",
			BroadcastThrottle: 100 * time.Millisecond,
			SnapshotInterval:  5 * time.Second,
		},
		Session: SessionConfig{
			MaxSessions:        10,
			IdleTimeoutSeconds: 0,
			SweepInterval:      30 * time.Second,
		},
		Agent: AgentConfig{
			DefaultModel: "claude-sonnet-4-5",
			Models: map[string]string{
				"opus":   "claude-opus-4-5",
				"sonnet": "claude-sonnet-4-5",
				"haiku":  "claude-haiku-4-5",
			},
			CommandTimeout: 30 * time.Second,
		},
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the limits the session registry relies on. The registry
// itself never re-validates them.
func (c *Config) Validate() error {
	if c.Session.MaxSessions <= 0 {
		return fmt.Errorf("session.max_sessions must be positive, got %d", c.Session.MaxSessions)
	}
	if c.Session.IdleTimeoutSeconds < 0 {
		return fmt.Errorf("session.idle_timeout_seconds must be non-negative, got %d", c.Session.IdleTimeoutSeconds)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// IdleTimeout returns the idle expiry as a duration; zero means never.
func (c *SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}
