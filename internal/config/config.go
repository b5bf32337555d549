// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	PolicyFile  string
	LogLevel    slog.Level

	AssistantName  string
	SupportContact string
	TurnTimeout    time.Duration

	Session         SessionConfig
	Memory          MemoryConfig
	Directory       DirectoryConfig
	LLM             LLMConfig
	Classifier      ClassifierConfig
	RateLimit       RateLimitConfig
	ConversationLog ConversationLogConfig
}

// SessionConfig bounds the in-memory session store.
type SessionConfig struct {
	MaxSessions   int
	TTL           time.Duration
	SweepInterval time.Duration
}

// MemoryConfig selects conversation memory retention and its mirror.
type MemoryConfig struct {
	Mode        string
	WindowTurns int
	RedisAddr   string
	RedisPrefix string
	RedisTTL    time.Duration
}

// DirectoryConfig configures the employee directory service client.
type DirectoryConfig struct {
	BaseURL  string
	Username string
	Password string
	TokenTTL time.Duration
	Timeout  time.Duration
}

// LLMConfig configures the Anthropic reply generator.
type LLMConfig struct {
	APIKey     string
	Model      string
	MaxRetries int
}

// ClassifierConfig configures the optional gRPC secondary classifier.
type ClassifierConfig struct {
	Addr    string
	Timeout time.Duration
}

// RateLimitConfig configures per-session request throttling.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
}

// ConversationLogConfig controls NDJSON transcript logging.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/deskroute.db"),
		PolicyFile:     getEnv("POLICY_FILE", ""),
		LogLevel:       getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		AssistantName:  getEnv("ASSISTANT_NAME", "ME.ai Assistant"),
		SupportContact: getEnv("SUPPORT_CONTACT", "support@meai.com"),
		TurnTimeout:    getEnvDuration("TURN_TIMEOUT", 30*time.Second),
		Session: SessionConfig{
			MaxSessions:   getEnvInt("SESSION_MAX", 10000),
			TTL:           getEnvDuration("SESSION_TTL", 60*time.Minute),
			SweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", time.Minute),
		},
		Memory: MemoryConfig{
			Mode:        getEnv("MEMORY_MODE", "buffer"),
			WindowTurns: getEnvInt("MEMORY_WINDOW", 10),
			RedisAddr:   getEnv("REDIS_ADDR", ""),
			RedisPrefix: getEnv("REDIS_PREFIX", "deskroute:memory:"),
			RedisTTL:    getEnvDuration("REDIS_TTL", 24*time.Hour),
		},
		Directory: DirectoryConfig{
			BaseURL:  strings.TrimRight(getEnv("DIRECTORY_URL", ""), "/"),
			Username: getEnv("DIRECTORY_USERNAME", ""),
			Password: getEnv("DIRECTORY_PASSWORD", ""),
			TokenTTL: getEnvDuration("DIRECTORY_TOKEN_TTL", 30*time.Minute),
			Timeout:  getEnvDuration("DIRECTORY_TIMEOUT", 10*time.Second),
		},
		LLM: LLMConfig{
			APIKey:     getEnv("ANTHROPIC_API_KEY", ""),
			Model:      getEnv("ANTHROPIC_MODEL", ""),
			MaxRetries: getEnvInt("LLM_MAX_RETRIES", 2),
		},
		Classifier: ClassifierConfig{
			Addr:    getEnv("CLASSIFIER_ADDR", ""),
			Timeout: getEnvDuration("CLASSIFIER_TIMEOUT", 5*time.Second),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT", 30),
			Window:            getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:   getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:       getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			QueueSize: getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT cannot be empty"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH cannot be empty"))
	}
	if c.TurnTimeout <= 0 {
		errs = append(errs, errors.New("TURN_TIMEOUT must be > 0"))
	}
	if c.Session.MaxSessions <= 0 {
		errs = append(errs, errors.New("SESSION_MAX must be > 0"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be > 0"))
	}
	if c.Memory.WindowTurns <= 0 {
		errs = append(errs, errors.New("MEMORY_WINDOW must be > 0"))
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, errors.New("LLM_MAX_RETRIES must be >= 0"))
	}
	if c.Directory.BaseURL != "" && (c.Directory.Username == "" || c.Directory.Password == "") {
		errs = append(errs, errors.New("DIRECTORY_USERNAME and DIRECTORY_PASSWORD are required when DIRECTORY_URL is set"))
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		errs = append(errs, errors.New("CONVERSATION_LOG_DIR cannot be empty"))
	}
	if c.ConversationLog.QueueSize <= 0 {
		errs = append(errs, errors.New("CONVERSATION_LOG_QUEUE_SIZE must be > 0"))
	}
	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env == "development"
	}
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigin returns the origin accepted by CORS and the WebSocket handler.
func (c *Config) AllowedOrigin() string {
	if c.FrontendURL == "" {
		return "*"
	}
	return c.FrontendURL
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
