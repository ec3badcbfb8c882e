// Package config loads storefront settings from defaults, an optional YAML
// file, an optional .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/muraguri00/zalora-luxury/pkg/logger"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSupabase = "supabase"
)

// Config is the complete process configuration.
type Config struct {
	Server    ServerConfig         `yaml:"server"`
	Database  DatabaseConfig       `yaml:"database"`
	Supabase  SupabaseConfig       `yaml:"supabase"`
	Redis     RedisConfig          `yaml:"redis"`
	Mongo     MongoConfig          `yaml:"mongo"`
	Logging   logger.LoggingConfig `yaml:"logging"`
	Auth      AuthConfig           `yaml:"auth"`
	Store     StoreConfig          `yaml:"store"`
	Recovery  RecoveryConfig       `yaml:"recovery"`
	RateLimit RateLimitConfig      `yaml:"rate_limit"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" env:"SERVER_HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
	// AllowedOrigins is a comma separated CORS allowlist. "*" allows any.
	AllowedOrigins string        `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl" env:"IDEMPOTENCY_TTL"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" env:"DATABASE_DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" env:"DATABASE_CONNECT_TIMEOUT"`
}

type SupabaseConfig struct {
	URL            string `yaml:"url" env:"SUPABASE_URL"`
	AnonKey        string `yaml:"anon_key" env:"SUPABASE_ANON_KEY"`
	ServiceRoleKey string `yaml:"service_role_key" env:"SUPABASE_SERVICE_ROLE_KEY"`
	// StorageBucket receives wallet QR images. Empty keeps QR codes inline.
	StorageBucket string `yaml:"storage_bucket" env:"SUPABASE_STORAGE_BUCKET"`
	// Realtime relays row changes into the dashboard event stream.
	Realtime   bool          `yaml:"realtime" env:"SUPABASE_REALTIME"`
	StockRPC   bool          `yaml:"stock_rpc" env:"SUPABASE_STOCK_RPC"`
	MaxRetries int           `yaml:"max_retries" env:"SUPABASE_MAX_RETRIES"`
	Timeout    time.Duration `yaml:"timeout" env:"SUPABASE_TIMEOUT"`
}

// Key returns the key used for server-side access.
func (s SupabaseConfig) Key() string {
	if s.ServiceRoleKey != "" {
		return s.ServiceRoleKey
	}
	return s.AnonKey
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
	Prefix   string `yaml:"prefix" env:"REDIS_PREFIX"`
}

type MongoConfig struct {
	URI      string        `yaml:"uri" env:"MONGO_URI"`
	Database string        `yaml:"database" env:"MONGO_DATABASE"`
	Timeout  time.Duration `yaml:"timeout" env:"MONGO_TIMEOUT"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"SUPABASE_JWT_SECRET"`
	// AdminUserIDs is a comma separated list of user ids treated as admins.
	AdminUserIDs string `yaml:"admin_user_ids" env:"ADMIN_USER_IDS"`
	// RemoteVerify falls back to the hosted auth endpoint for tokens the
	// local secret cannot verify.
	RemoteVerify  bool          `yaml:"remote_verify" env:"AUTH_REMOTE_VERIFY"`
	TokenCacheTTL time.Duration `yaml:"token_cache_ttl" env:"AUTH_TOKEN_CACHE_TTL"`
}

type StoreConfig struct {
	Backend string `yaml:"backend" env:"STORE_BACKEND"`
}

type RecoveryConfig struct {
	Schedule string        `yaml:"schedule" env:"RECOVERY_SCHEDULE"`
	StaleAge time.Duration `yaml:"stale_age" env:"RECOVERY_STALE_AGE"`
}

type RateLimitConfig struct {
	OrdersPerSecond float64 `yaml:"orders_per_second" env:"RATE_LIMIT_ORDERS_PER_SECOND"`
	Burst           int     `yaml:"burst" env:"RATE_LIMIT_BURST"`
}

// Defaults returns a configuration that runs fully in memory.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  "*",
			IdempotencyTTL:  24 * time.Hour,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  5 * time.Second,
		},
		Supabase: SupabaseConfig{
			MaxRetries: 3,
			Timeout:    30 * time.Second,
		},
		Redis: RedisConfig{Prefix: "idem:"},
		Mongo: MongoConfig{Database: "storefront", Timeout: 10 * time.Second},
		Logging: logger.LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Auth:      AuthConfig{TokenCacheTTL: time.Minute},
		Store:     StoreConfig{Backend: BackendMemory},
		RateLimit: RateLimitConfig{OrdersPerSecond: 2, Burst: 5},
	}
}

// Load builds the configuration and validates it.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks that the selected backend has what it needs.
func (c *Config) Validate() error {
	var errs []error

	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn (DATABASE_DSN) is required for the postgres backend"))
		}
	case BackendSupabase:
		if c.Supabase.URL == "" {
			errs = append(errs, errors.New("supabase.url (SUPABASE_URL) is required for the supabase backend"))
		}
		if c.Supabase.Key() == "" {
			errs = append(errs, errors.New("a supabase service role or anon key is required for the supabase backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend %q must be one of memory, postgres, supabase", c.Store.Backend))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Auth.RemoteVerify && c.Supabase.URL == "" {
		errs = append(errs, errors.New("auth.remote_verify requires supabase.url"))
	}
	if c.RateLimit.OrdersPerSecond < 0 {
		errs = append(errs, errors.New("rate_limit.orders_per_second must not be negative"))
	}
	if c.RateLimit.OrdersPerSecond > 0 && c.RateLimit.Burst < 1 {
		errs = append(errs, errors.New("rate_limit.burst must be at least 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// SplitList parses a comma separated setting, dropping blanks.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
