package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	defaultDatabaseURL = "./data/iptvcatalog.db"
	defaultServerPort  = "8080"
	defaultUserAgent   = "iptvcatalog/1.0"
	defaultTimeout     = 30 * time.Second
	defaultMaxRetries  = 0
	defaultLockTTL     = 10 * time.Minute
	defaultLogLevel    = "info"
)

var (
	// ErrMissingDatabaseURL is returned when DATABASE_URL resolves to empty.
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("invalid configuration")
)

// Config holds application configuration.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`
	ServerPort  string `yaml:"server_port"`

	UserAgent  string        `yaml:"user_agent"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	// Rate is the request rate per second against providers; 0 disables pacing.
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`

	SyncAllKinds bool          `yaml:"sync_all_kinds"`
	SyncLockTTL  time.Duration `yaml:"sync_lock_ttl"`
	// SyncInterval re-syncs active playlists periodically; 0 disables it.
	SyncInterval time.Duration `yaml:"sync_interval"`

	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		DatabaseURL: defaultDatabaseURL,
		ServerPort:  defaultServerPort,
		UserAgent:   defaultUserAgent,
		Timeout:     defaultTimeout,
		MaxRetries:  defaultMaxRetries,
		SyncLockTTL: defaultLockTTL,
		LogLevel:    defaultLogLevel,
	}
}

// Load builds config from environment variables, after loading .env.local
// and .env without overriding variables already set.
func Load() (*Config, error) {
	loadEnvFiles()
	c := Default()
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// applyEnv overlays set variables on c. Malformed values are errors.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("DATABASE_URL", &c.DatabaseURL)
	str("REDIS_URL", &c.RedisURL)
	str("SERVER_PORT", &c.ServerPort)
	str("FETCHER_USER_AGENT", &c.UserAgent)
	str("LOG_LEVEL", &c.LogLevel)

	var errs []error
	parse := func(key string, fn func(string) error) {
		if v, ok := lookup(key); ok && v != "" {
			if err := fn(v); err != nil {
				errs = append(errs, fmt.Errorf("%s=%q: %w", key, v, err))
			}
		}
	}
	parse("FETCHER_TIMEOUT", durationInto(&c.Timeout))
	parse("FETCHER_MAX_RETRIES", func(v string) (err error) { c.MaxRetries, err = strconv.Atoi(v); return })
	parse("FETCHER_RATE", func(v string) (err error) { c.Rate, err = strconv.ParseFloat(v, 64); return })
	parse("FETCHER_BURST", func(v string) (err error) { c.Burst, err = strconv.Atoi(v); return })
	parse("SYNC_ALL_KINDS", func(v string) (err error) { c.SyncAllKinds, err = strconv.ParseBool(v); return })
	parse("SYNC_LOCK_TTL", durationInto(&c.SyncLockTTL))
	parse("SYNC_INTERVAL", durationInto(&c.SyncInterval))
	parse("LOG_PRETTY", func(v string) (err error) { c.LogPretty, err = strconv.ParseBool(v); return })
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

func durationInto(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	port, err := strconv.Atoi(c.ServerPort)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("%w: server port %q must be between 1 and 65535", ErrInvalid, c.ServerPort)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: fetcher timeout %v must be > 0", ErrInvalid, c.Timeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries %d must be >= 0", ErrInvalid, c.MaxRetries)
	}
	if c.Rate < 0 || c.Burst < 0 {
		return fmt.Errorf("%w: rate and burst must be >= 0", ErrInvalid)
	}
	if c.SyncLockTTL <= 0 {
		return fmt.Errorf("%w: sync lock ttl %v must be > 0", ErrInvalid, c.SyncLockTTL)
	}
	if c.SyncInterval < 0 {
		return fmt.Errorf("%w: sync interval %v must be >= 0", ErrInvalid, c.SyncInterval)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log level %q (want debug, info, warn or error)", ErrInvalid, c.LogLevel)
	}
	return nil
}
