package config

import (
	"fmt"
	"time"
)

const (
	DefaultSubscriptionBuffer = 256
	DefaultWriteWait          = 10 * time.Second
	DefaultPongWait           = 60 * time.Second
)

type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string
	// QueryTimeout bounds HTTP query and mutation handling. Zero disables it.
	QueryTimeout       time.Duration
	SubscriptionBuffer int
	WriteWait          time.Duration
	PongWait           time.Duration
	Seed               bool
	Migrate            bool
}

// UseMemoryStore reports whether the in-memory entity store is selected.
func (c *Config) UseMemoryStore() bool {
	return c.DatabaseDSN == ""
}

type Option func(*Config)

func WithDatabaseDSN(dsn string) Option {
	return func(c *Config) { c.DatabaseDSN = dsn }
}

func WithLogging(level, format string) Option {
	return func(c *Config) {
		c.LogLevel = level
		c.LogFormat = format
	}
}

func WithQueryTimeout(d time.Duration) Option {
	return func(c *Config) { c.QueryTimeout = d }
}

func WithSubscriptionBuffer(n int) Option {
	return func(c *Config) { c.SubscriptionBuffer = n }
}

func WithKeepalive(writeWait, pongWait time.Duration) Option {
	return func(c *Config) {
		c.WriteWait = writeWait
		c.PongWait = pongWait
	}
}

func WithSeed(seed bool) Option {
	return func(c *Config) { c.Seed = seed }
}

func WithMigrate(migrate bool) Option {
	return func(c *Config) { c.Migrate = migrate }
}

func NewConfig(serverAddr string, allowedOrigins []string, opts ...Option) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}

	cfg := &Config{
		ServerAddr:         serverAddr,
		AllowedOrigins:     allowedOrigins,
		LogLevel:           "info",
		LogFormat:          "json",
		SubscriptionBuffer: DefaultSubscriptionBuffer,
		WriteWait:          DefaultWriteWait,
		PongWait:           DefaultPongWait,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.QueryTimeout < 0 {
		return nil, fmt.Errorf("query timeout cannot be negative")
	}
	if cfg.SubscriptionBuffer <= 0 {
		return nil, fmt.Errorf("subscription buffer must be positive")
	}
	if cfg.WriteWait <= 0 || cfg.PongWait <= 0 {
		return nil, fmt.Errorf("keepalive durations must be positive")
	}
	if cfg.Migrate && cfg.UseMemoryStore() {
		return nil, fmt.Errorf("migrations require a database DSN")
	}

	return cfg, nil
}

// PingInterval is how often the server pings a subscription connection; it
// must stay below PongWait.
func (c *Config) PingInterval() time.Duration {
	return (c.PongWait * 9) / 10
}
