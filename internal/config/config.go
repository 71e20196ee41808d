// Package config loads the relay configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Authentication modes.
const (
	AuthTrust = "trust"
	AuthJWT   = "jwt"
)

// Config holds all configuration values.
type Config struct {
	Host     string `env:"CHAT_HOST,default=0.0.0.0"`
	Port     int    `env:"CHAT_PORT,default=8080"`
	NodeName string `env:"CHAT_NODE_NAME,default=chat-node"`

	// Message store
	StoreDriver    string `env:"CHAT_STORE,default=badger"`
	BadgerPath     string `env:"BADGER_PATH,default=./data/messages"`
	ScyllaHosts    string `env:"SCYLLA_HOSTS,default=127.0.0.1:9042"`
	ScyllaKeyspace string `env:"SCYLLA_KEYSPACE,default=chat"`
	MySQLDSN       string `env:"MYSQL_DSN"`

	// Cross-node fan-out; empty runs a single node
	NatsURL string `env:"NATS_URL"`

	// Identity at join time
	AuthMode  string `env:"AUTH_MODE,default=trust"`
	JWTSecret string `env:"JWT_SECRET"`

	// Connections
	OutboundQueueSize int           `env:"OUTBOUND_QUEUE_SIZE,default=64"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	PingInterval      time.Duration `env:"PING_INTERVAL,default=20s"`
	AllowedOrigins    string        `env:"ALLOWED_ORIGINS,default=*"`

	// Logging
	LogFile  string `env:"LOG_FILE"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`
}

// Load reads an optional .env file, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c Config) Validate() error {
	switch strings.ToLower(c.StoreDriver) {
	case "badger", "scylla":
	case "mysql":
		if c.MySQLDSN == "" {
			return fmt.Errorf("MYSQL_DSN is required for the mysql store")
		}
	default:
		return fmt.Errorf("unknown CHAT_STORE %q", c.StoreDriver)
	}
	switch c.AuthMode {
	case AuthTrust:
	case AuthJWT:
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when AUTH_MODE=jwt")
		}
	default:
		return fmt.Errorf("unknown AUTH_MODE %q", c.AuthMode)
	}
	if c.OutboundQueueSize <= 0 {
		return fmt.Errorf("OUTBOUND_QUEUE_SIZE must be positive")
	}
	return nil
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ScyllaHostList splits SCYLLA_HOSTS on commas.
func (c Config) ScyllaHostList() []string {
	return splitList(c.ScyllaHosts)
}

// OriginPatterns splits ALLOWED_ORIGINS on commas.
func (c Config) OriginPatterns() []string {
	return splitList(c.AllowedOrigins)
}

// Level is the parsed LOG_LEVEL.
func (c Config) Level() slog.Level {
	return ParseLogLevel(c.LogLevel)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseLogLevel maps DEBUG/INFO/WARN/ERROR to a slog level, defaulting to INFO.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
