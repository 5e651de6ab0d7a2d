// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

// Package config loads server configuration from defaults, an optional YAML
// file, the environment and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/roito2356/giiku-23/internal/logging"
	"github.com/roito2356/giiku-23/internal/xdg"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "GIIKU_"

// Storage backend names.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
)

// Config is the complete server configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
	Database DatabaseConfig `koanf:"database"`
	Store    StoreConfig    `koanf:"store"`
	Session  SessionConfig  `koanf:"session"`
	Redis    RedisConfig    `koanf:"redis"`
	Hash     HashConfig     `koanf:"hash"`
	Migrate  MigrateConfig  `koanf:"migrate"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr         string `koanf:"addr"`
	SecureCookie bool   `koanf:"secure_cookie"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL      string `koanf:"url"`
	MaxConns int32  `koanf:"max_conns"`
}

// StoreConfig selects where users and completions live.
type StoreConfig struct {
	Backend string `koanf:"backend"`
}

// SessionConfig selects where sessions live and how long they last.
type SessionConfig struct {
	Backend string        `koanf:"backend"`
	TTL     time.Duration `koanf:"ttl"`
}

// RedisConfig configures the Redis session backend.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// HashConfig bounds concurrent password hashing.
type HashConfig struct {
	Workers int `koanf:"workers"`
}

// MigrateConfig controls schema migration on serve.
type MigrateConfig struct {
	Auto bool `koanf:"auto"`
}

// Defaults returns the built-in configuration values keyed by path.
func Defaults() map[string]any {
	return map[string]any{
		"http.addr":          ":8080",
		"http.secure_cookie": false,
		"metrics.addr":       "127.0.0.1:9100",
		"log.format":         "json",
		"log.level":          "info",
		"database.url":       "",
		"database.max_conns": 0,
		"store.backend":      BackendPostgres,
		"session.backend":    BackendPostgres,
		"session.ttl":        "24h",
		"redis.addr":         "127.0.0.1:6379",
		"redis.password":     "",
		"redis.db":           0,
		"hash.workers":       4,
		"migrate.auto":       false,
	}
}

// flagKeys maps flag names to configuration paths.
var flagKeys = map[string]string{
	"http-addr":       "http.addr",
	"secure-cookie":   "http.secure_cookie",
	"metrics-addr":    "metrics.addr",
	"log-format":      "log.format",
	"log-level":       "log.level",
	"database-url":    "database.url",
	"store-backend":   "store.backend",
	"session-backend": "session.backend",
	"session-ttl":     "session.ttl",
	"redis-addr":      "redis.addr",
	"redis-db":        "redis.db",
	"hash-workers":    "hash.workers",
	"auto-migrate":    "migrate.auto",
}

// RegisterFlags adds the configuration flags to flagSet. There is no redis
// password flag; set it in the file or environment.
func RegisterFlags(flagSet *pflag.FlagSet) {
	flagSet.String("config", "", "path to a YAML config file")
	flagSet.String("http-addr", ":8080", "API listen address")
	flagSet.Bool("secure-cookie", false, "mark the session cookie Secure")
	flagSet.String("metrics-addr", "127.0.0.1:9100", "metrics and health listen address (empty disables)")
	flagSet.String("log-format", "json", "log format (json or text)")
	flagSet.String("log-level", "info", "log level (debug, info, warn, error)")
	flagSet.String("database-url", "", "PostgreSQL connection URL")
	flagSet.String("store-backend", BackendPostgres, "user store backend (postgres or memory)")
	flagSet.String("session-backend", BackendPostgres, "session backend (postgres, memory or redis)")
	flagSet.Duration("session-ttl", 24*time.Hour, "session lifetime")
	flagSet.String("redis-addr", "127.0.0.1:6379", "Redis address for the redis session backend")
	flagSet.Int("redis-db", 0, "Redis database number")
	flagSet.Int("hash-workers", 4, "maximum concurrent password hash operations")
	flagSet.Bool("auto-migrate", false, "apply pending migrations before serving")
}

// Load builds a Config. A .env file in the working directory is loaded into
// the process environment first without overriding variables already set.
// Precedence, lowest first: defaults, config file, DATABASE_URL, GIIKU_*
// variables, flags explicitly set on flagSet. The config file is --config,
// then GIIKU_CONFIG, then $XDG_CONFIG_HOME/giiku/config.yaml if present.
func Load(flagSet *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, oops.Code("CONFIG_INVALID").With("source", ".env").Wrap(err)
	}

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("source", "defaults").Wrap(err)
	}

	if path := configPath(flagSet); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("source", path).Wrap(err)
		}
	}

	databaseURL := env.ProviderWithValue("DATABASE_URL", ".", func(name, value string) (string, any) {
		if name != "DATABASE_URL" || value == "" {
			return "", nil
		}
		return "database.url", value
	})
	if err := k.Load(databaseURL, nil); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("source", "DATABASE_URL").Wrap(err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("source", "environment").Wrap(err)
	}

	if flagSet != nil {
		provider := posflag.ProviderWithFlag(flagSet, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flagSet, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode config").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps GIIKU_SESSION_TTL to session.ttl. Variables that name no
// known key are ignored.
func envKey(name string) string {
	rest := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	section, field, ok := strings.Cut(rest, "_")
	if !ok {
		return ""
	}
	key := section + "." + field
	if _, known := Defaults()[key]; !known {
		return ""
	}
	return key
}

func configPath(flagSet *pflag.FlagSet) string {
	if flagSet != nil {
		if path, err := flagSet.GetString("config"); err == nil && path != "" {
			return path
		}
	}
	if path := strings.TrimSpace(os.Getenv(EnvPrefix + "CONFIG")); path != "" {
		return path
	}
	return xdg.DefaultConfigFile()
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http.addr is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log.format must be json or text, got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return oops.With("key", "log.level").Wrap(err)
	}

	switch c.Store.Backend {
	case BackendPostgres, BackendMemory:
	default:
		return invalid("store.backend", "store.backend must be postgres or memory, got %q", c.Store.Backend)
	}
	switch c.Session.Backend {
	case BackendPostgres, BackendMemory, BackendRedis:
	default:
		return invalid("session.backend", "session.backend must be postgres, memory or redis, got %q", c.Session.Backend)
	}
	if c.Session.Backend == BackendPostgres && c.Store.Backend != BackendPostgres {
		return invalid("session.backend", "session.backend postgres requires store.backend postgres")
	}
	if c.NeedsDatabase() && c.Database.URL == "" {
		return invalid("database.url", "database.url or DATABASE_URL is required for the postgres backend")
	}
	if c.Database.MaxConns < 0 {
		return invalid("database.max_conns", "database.max_conns must not be negative")
	}
	if c.Session.TTL <= 0 {
		return invalid("session.ttl", "session.ttl must be positive, got %s", c.Session.TTL)
	}
	if c.Session.Backend == BackendRedis && c.Redis.Addr == "" {
		return invalid("redis.addr", "redis.addr is required for the redis session backend")
	}
	if c.Redis.DB < 0 {
		return invalid("redis.db", "redis.db must not be negative")
	}
	if c.Hash.Workers < 1 {
		return invalid("hash.workers", "hash.workers must be at least 1, got %d", c.Hash.Workers)
	}
	return nil
}

// NeedsDatabase reports whether any backend is PostgreSQL.
func (c *Config) NeedsDatabase() bool {
	return c.Store.Backend == BackendPostgres || c.Session.Backend == BackendPostgres
}

// LogLevel returns the parsed log level. Validate has already checked it.
func (c *Config) LogLevel() slog.Level {
	level, _ := logging.ParseLevel(c.Log.Level) //nolint:errcheck // validated
	return level
}
