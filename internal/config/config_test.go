package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_PATH", "TURN_TIMEOUT", "LLM_MAX_RETRIES", "DIRECTORY_URL", "LOG_LEVEL", "MEMORY_MODE"} {
		t.Setenv(key, "")
	}
	t.Setenv("PORT", "9090")
	t.Setenv("DB_PATH", "/tmp/deskroute.db")
	t.Setenv("TURN_TIMEOUT", "45s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9090" || cfg.DBPath != "/tmp/deskroute.db" {
		t.Fatalf("unexpected port/db: %q %q", cfg.Port, cfg.DBPath)
	}
	if cfg.TurnTimeout != 45*time.Second {
		t.Fatalf("expected 45s turn timeout, got %v", cfg.TurnTimeout)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", cfg.LogLevel)
	}
	if cfg.LLM.MaxRetries != 2 {
		t.Fatalf("expected default LLM retries 2, got %d", cfg.LLM.MaxRetries)
	}
	if cfg.AssistantName != "ME.ai Assistant" {
		t.Fatalf("unexpected assistant name %q", cfg.AssistantName)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("TURN_TIMEOUT", "soon")
	t.Setenv("SESSION_MAX", "many")
	t.Setenv("LOG_LEVEL", "chatty")
	t.Setenv("DIRECTORY_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.TurnTimeout != 30*time.Second {
		t.Fatalf("expected fallback turn timeout, got %v", cfg.TurnTimeout)
	}
	if cfg.Session.MaxSessions != 10000 {
		t.Fatalf("expected fallback session max, got %d", cfg.Session.MaxSessions)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("expected fallback info level, got %v", cfg.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Port:        "8080",
			DBPath:      "db",
			TurnTimeout: time.Second,
			Session:     SessionConfig{MaxSessions: 1, TTL: time.Minute},
			Memory:      MemoryConfig{WindowTurns: 5},
			ConversationLog: ConversationLogConfig{
				Enabled:   true,
				Dir:       "logs",
				QueueSize: 10,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "empty port", mutate: func(c *Config) { c.Port = "" }, wantErr: "PORT"},
		{name: "zero turn timeout", mutate: func(c *Config) { c.TurnTimeout = 0 }, wantErr: "TURN_TIMEOUT"},
		{name: "negative retries", mutate: func(c *Config) { c.LLM.MaxRetries = -1 }, wantErr: "LLM_MAX_RETRIES"},
		{name: "directory without credentials", mutate: func(c *Config) { c.Directory.BaseURL = "http://dir" }, wantErr: "DIRECTORY_USERNAME"},
		{name: "disabled log needs no dir", mutate: func(c *Config) { c.ConversationLog.Enabled = false; c.ConversationLog.Dir = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
