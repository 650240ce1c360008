package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Session.MaxSessions != 10 {
		t.Errorf("default max_sessions = %d, want 10", cfg.Session.MaxSessions)
	}
	if cfg.Session.IdleTimeoutSeconds != 0 {
		t.Errorf("default idle_timeout_seconds = %d, want 0", cfg.Session.IdleTimeoutSeconds)
	}
	if cfg.Agent.DefaultModel == "" {
		t.Error("no default model configured")
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9999
  auth_token: secret
session:
  max_sessions: 3
  idle_timeout_seconds: 60
  sweep_interval: 10s
agent:
  default_model: claude-opus-4-5
  models:
    fast: claude-haiku-4-5
redact:
  mask_session_ids: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Server.AuthToken != "secret" {
		t.Errorf("auth_token = %q", cfg.Server.AuthToken)
	}
	if cfg.Session.MaxSessions != 3 {
		t.Errorf("max_sessions = %d, want 3", cfg.Session.MaxSessions)
	}
	if got := cfg.Session.IdleTimeout(); got != time.Minute {
		t.Errorf("IdleTimeout() = %v, want 1m", got)
	}
	if cfg.Session.SweepInterval != 10*time.Second {
		t.Errorf("sweep_interval = %v, want 10s", cfg.Session.SweepInterval)
	}
	if cfg.Agent.Models["fast"] != "claude-haiku-4-5" {
		t.Errorf("models[fast] = %q", cfg.Agent.Models["fast"])
	}
	if !cfg.Redact.MaskSessionIDs {
		t.Error("mask_session_ids not parsed")
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
session:
  max_sessions: 3
`)
	t.Setenv("AGENT_HUB_MAX_SESSIONS", "7")
	t.Setenv("AGENT_HUB_PORT", "1234")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.MaxSessions != 7 {
		t.Errorf("max_sessions = %d, want env override 7", cfg.Session.MaxSessions)
	}
	if cfg.Server.Port != 1234 {
		t.Errorf("port = %d, want env override 1234", cfg.Server.Port)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"zero max_sessions", "session:\n  max_sessions: 0\n", "max_sessions"},
		{"negative max_sessions", "session:\n  max_sessions: -1\n", "max_sessions"},
		{"negative idle timeout", "session:\n  idle_timeout_seconds: -5\n", "idle_timeout_seconds"},
		{"bad port", "server:\n  port: 99999\n", "port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [not a mapping"))
	if err == nil {
		t.Error("malformed yaml did not error")
	}
}
