// Package config loads the stockcore server configuration from the
// environment, with an optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Addr       string `mapstructure:"APP_ADDR"`
	LogBackend string `mapstructure:"LOG_BACKEND"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`

	SessionSecret string        `mapstructure:"SESSION_SECRET"`
	SessionTTL    time.Duration `mapstructure:"SESSION_TTL"`
	SessionIssuer string        `mapstructure:"SESSION_ISSUER"`
	CookieSecure  bool          `mapstructure:"COOKIE_SECURE"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	CacheProvider   string        `mapstructure:"CACHE_PROVIDER"`
	CacheCodec      string        `mapstructure:"CACHE_CODEC"`
	CacheNamespace  string        `mapstructure:"CACHE_NAMESPACE"`
	CacheDefaultTTL time.Duration `mapstructure:"CACHE_DEFAULT_TTL"`
	CacheMaxMB      int           `mapstructure:"CACHE_MAX_MB"`

	CounterStore string `mapstructure:"COUNTER_STORE"`
	DatabaseURL  string `mapstructure:"DATABASE_URL"`

	UsersFile string `mapstructure:"USERS_FILE"`
}

var defaults = map[string]any{
	"APP_ADDR":          ":8080",
	"LOG_BACKEND":       "zap",
	"LOG_LEVEL":         "info",
	"SESSION_TTL":       "12h",
	"SESSION_ISSUER":    "stockcore",
	"COOKIE_SECURE":     true,
	"REDIS_DB":          0,
	"CACHE_PROVIDER":    "ristretto",
	"CACHE_CODEC":       "json",
	"CACHE_NAMESPACE":   "stockcore",
	"CACHE_DEFAULT_TTL": "5m",
	"CACHE_MAX_MB":      64,
	"COUNTER_STORE":     "memory",
}

var keys = []string{
	"APP_ADDR", "LOG_BACKEND", "LOG_LEVEL",
	"SESSION_SECRET", "SESSION_TTL", "SESSION_ISSUER", "COOKIE_SECURE",
	"REDIS_ADDR", "REDIS_DB", "REDIS_PASSWORD",
	"CACHE_PROVIDER", "CACHE_CODEC", "CACHE_NAMESPACE", "CACHE_DEFAULT_TTL", "CACHE_MAX_MB",
	"COUNTER_STORE", "DATABASE_URL", "USERS_FILE",
}

// Load reads .env (when present) and the environment, applies defaults and
// validates the result.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.LogBackend = strings.ToLower(strings.TrimSpace(c.LogBackend))
	c.CacheProvider = strings.ToLower(strings.TrimSpace(c.CacheProvider))
	c.CacheCodec = strings.ToLower(strings.TrimSpace(c.CacheCodec))
	c.CounterStore = strings.ToLower(strings.TrimSpace(c.CounterStore))
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if len(c.SessionSecret) < 32 {
		errs = append(errs, errors.New("SESSION_SECRET must be at least 32 bytes"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.CacheDefaultTTL <= 0 {
		errs = append(errs, errors.New("CACHE_DEFAULT_TTL must be positive"))
	}
	if c.CacheMaxMB <= 0 {
		errs = append(errs, errors.New("CACHE_MAX_MB must be positive"))
	}
	if !oneOf(c.LogBackend, "zap", "logrus", "slog") {
		errs = append(errs, fmt.Errorf("LOG_BACKEND %q: want zap, logrus or slog", c.LogBackend))
	}
	if !oneOf(c.CacheProvider, "ristretto", "bigcache", "redis") {
		errs = append(errs, fmt.Errorf("CACHE_PROVIDER %q: want ristretto, bigcache or redis", c.CacheProvider))
	}
	if !oneOf(c.CacheCodec, "json", "msgpack", "cbor") {
		errs = append(errs, fmt.Errorf("CACHE_CODEC %q: want json, msgpack or cbor", c.CacheCodec))
	}
	if !oneOf(c.CounterStore, "memory", "redis", "postgres") {
		errs = append(errs, fmt.Errorf("COUNTER_STORE %q: want memory, redis or postgres", c.CounterStore))
	}
	if (c.CacheProvider == "redis" || c.CounterStore == "redis") && c.RedisAddr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required for redis backends"))
	}
	if c.CounterStore == "postgres" && c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required for COUNTER_STORE=postgres"))
	}
	return errors.Join(errs...)
}

// String masks secrets.
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "  Addr: %s\n", c.Addr)
	fmt.Fprintf(&sb, "  LogBackend: %s (%s)\n", c.LogBackend, c.LogLevel)
	fmt.Fprintf(&sb, "  SessionSecret: %s\n", mask(c.SessionSecret))
	fmt.Fprintf(&sb, "  SessionTTL: %s\n", c.SessionTTL)
	fmt.Fprintf(&sb, "  SessionIssuer: %s\n", c.SessionIssuer)
	fmt.Fprintf(&sb, "  CookieSecure: %v\n", c.CookieSecure)
	fmt.Fprintf(&sb, "  RedisAddr: %s (db %d)\n", c.RedisAddr, c.RedisDB)
	fmt.Fprintf(&sb, "  RedisPassword: %s\n", mask(c.RedisPassword))
	fmt.Fprintf(&sb, "  Cache: %s/%s ns=%s ttl=%s max=%dMB\n", c.CacheProvider, c.CacheCodec, c.CacheNamespace, c.CacheDefaultTTL, c.CacheMaxMB)
	fmt.Fprintf(&sb, "  CounterStore: %s\n", c.CounterStore)
	fmt.Fprintf(&sb, "  DatabaseURL: %s\n", mask(c.DatabaseURL))
	fmt.Fprintf(&sb, "  UsersFile: %s\n", c.UsersFile)
	return sb.String()
}

func mask(s string) string {
	if s == "" {
		return "(empty)"
	}
	return "********"
}

func oneOf(s string, allowed ...string) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}
