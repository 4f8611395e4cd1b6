package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string   `env:"APP_ENV" default:"development"`
	Port        string   `env:"PORT" default:"8000"`
	AppURL      string   `env:"APP_URL"`
	LogLevel    string   `env:"LOG_LEVEL" default:"info"`
	LogFormat   string   `env:"LOG_FORMAT" default:"text"`
	CORSOrigins []string `env:"CORS_ORIGINS" default:"http://localhost:3000,http://localhost:3001"`

	RedisURL           string `env:"REDIS_URL"`
	RedisEventsChannel string `env:"REDIS_EVENTS_CHANNEL" default:"dashpulse:events"`

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"100"`
	ConnectionRate          float64 `env:"CONNECTION_RATE" default:"10"`
	ConnectionBurst         int     `env:"CONNECTION_BURST" default:"20"`

	WSSendBuffer   int           `env:"WS_SEND_BUFFER" default:"16"`
	WSWriteTimeout time.Duration `env:"WS_WRITE_TIMEOUT" default:"5s"`
	WSPingInterval time.Duration `env:"WS_PING_INTERVAL" default:"30s"`
	WSIdleTimeout  time.Duration `env:"WS_IDLE_TIMEOUT" default:"0s"` // 0 disables

	APIRateLimit float64 `env:"API_RATE_LIMIT" default:"20"`
	APIRateBurst int     `env:"API_RATE_BURST" default:"40"`

	AgentSweepInterval time.Duration `env:"AGENT_SWEEP_INTERVAL" default:"30s"`
	AgentStaleAfter    time.Duration `env:"AGENT_STALE_AFTER" default:"0s"` // 0 disables the sweeper

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func (c *Config) IsDevelopment() bool { return c.AppEnv == "development" }

// SweeperLeaseTTL is the sweeper leadership lease. The sweeper renews once
// per AGENT_SWEEP_INTERVAL, which is half the lease.
func (c *Config) SweeperLeaseTTL() time.Duration { return 2 * c.AgentSweepInterval }

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, &env.Options{SliceSep: ","}); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json", "pretty"}
)

func validate(cfg *Config) error {
	port, err := strconv.Atoi(cfg.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", cfg.Port)
	}

	if !slices.Contains(logLevels, cfg.LogLevel) {
		return fmt.Errorf("LOG_LEVEL must be one of %v, got %q", logLevels, cfg.LogLevel)
	}
	if !slices.Contains(logFormats, cfg.LogFormat) {
		return fmt.Errorf("LOG_FORMAT must be one of %v, got %q", logFormats, cfg.LogFormat)
	}

	positive := []struct {
		name  string
		value float64
	}{
		{"MAX_WEBSOCKET_CONNECTIONS", float64(cfg.MaxWebSocketConnections)},
		{"MAX_CONNECTIONS_PER_IP", float64(cfg.MaxConnectionsPerIP)},
		{"CONNECTION_RATE", cfg.ConnectionRate},
		{"CONNECTION_BURST", float64(cfg.ConnectionBurst)},
		{"WS_SEND_BUFFER", float64(cfg.WSSendBuffer)},
		{"WS_WRITE_TIMEOUT", float64(cfg.WSWriteTimeout)},
		{"WS_PING_INTERVAL", float64(cfg.WSPingInterval)},
		{"API_RATE_LIMIT", cfg.APIRateLimit},
		{"API_RATE_BURST", float64(cfg.APIRateBurst)},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive", p.name)
		}
	}

	if cfg.WSIdleTimeout < 0 {
		return errors.New("WS_IDLE_TIMEOUT must not be negative")
	}
	if cfg.WSIdleTimeout > 0 && cfg.WSIdleTimeout <= cfg.WSPingInterval {
		return errors.New("WS_IDLE_TIMEOUT must be longer than WS_PING_INTERVAL")
	}

	if cfg.AgentStaleAfter < 0 {
		return errors.New("AGENT_STALE_AFTER must not be negative")
	}
	if cfg.AgentStaleAfter > 0 && cfg.AgentSweepInterval <= 0 {
		return errors.New("AGENT_SWEEP_INTERVAL must be positive when AGENT_STALE_AFTER is set")
	}

	if cfg.RedisURL != "" {
		if _, err := url.Parse(cfg.RedisURL); err != nil {
			return fmt.Errorf("REDIS_URL is not a valid URL: %w", err)
		}
		if cfg.RedisEventsChannel == "" {
			return errors.New("REDIS_EVENTS_CHANNEL is required when REDIS_URL is set")
		}
	}

	if cfg.AppEnv == "production" && cfg.AppURL == "" {
		return errors.New("APP_URL is required in production")
	}

	return nil
}
