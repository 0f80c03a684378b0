package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the service configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Log      LogConfig
	CORS     CORSConfig
	Metrics  MetricsConfig
	Auth     AuthConfig
	Search   SearchConfig
	Version  VersionConfig
	// ConnectorsFile is the YAML file holding the connector map
	ConnectorsFile string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	LogLevel string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CacheConfig struct {
	Enabled bool
	// Type is "memory" or "redis"
	Type string
}

type LogConfig struct {
	Level  string
	Format string
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

type MetricsConfig struct {
	Enabled bool
}

// AuthConfig names where roles are read from the bearer token
type AuthConfig struct {
	Enabled bool
	// Resource is the client whose resource_access roles are used
	Resource  string
	AdminRole string
}

type SearchConfig struct {
	Timeout     time.Duration
	Concurrency int
	CacheTTL    time.Duration
}

type VersionConfig struct {
	RefreshInterval time.Duration
}

// Load reads .env when present, then the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	r := &reader{}
	cfg := &Config{
		Server: ServerConfig{
			Host:         r.str("SERVER_HOST", "0.0.0.0"),
			Port:         r.integer("SERVER_PORT", 8080),
			ReadTimeout:  r.duration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: r.duration("SERVER_WRITE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Host:     r.str("DB_HOST", "localhost"),
			Port:     r.integer("DB_PORT", 5432),
			User:     r.str("DB_USER", "postgres"),
			Password: r.str("DB_PASSWORD", ""),
			DBName:   r.str("DB_NAME", "viewer_manager"),
			SSLMode:  r.str("DB_SSLMODE", "disable"),
			LogLevel: r.str("DB_LOG_LEVEL", "warn"),
		},
		Redis: RedisConfig{
			Host:     r.str("REDIS_HOST", "localhost"),
			Port:     r.integer("REDIS_PORT", 6379),
			Password: r.str("REDIS_PASSWORD", ""),
			DB:       r.integer("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			Enabled: r.boolean("CACHE_ENABLED", true),
			Type:    r.str("CACHE_TYPE", "memory"),
		},
		Log: LogConfig{
			Level:  r.str("LOG_LEVEL", "info"),
			Format: r.str("LOG_FORMAT", "json"),
		},
		CORS: CORSConfig{
			AllowedOrigins: r.list("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: r.list("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders: r.list("CORS_ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"}),
		},
		Metrics: MetricsConfig{
			Enabled: r.boolean("METRICS_ENABLED", true),
		},
		Auth: AuthConfig{
			Enabled:   r.boolean("AUTH_ENABLED", true),
			Resource:  r.str("AUTH_RESOURCE", "viewer-manager"),
			AdminRole: r.str("AUTH_ADMIN_ROLE", "ROLE_ADMIN"),
		},
		Search: SearchConfig{
			Timeout:     r.duration("SEARCH_TIMEOUT", 30*time.Second),
			Concurrency: r.integer("SEARCH_CONCURRENCY", 8),
			CacheTTL:    r.duration("SEARCH_CACHE_TTL", 5*time.Minute),
		},
		Version: VersionConfig{
			RefreshInterval: r.duration("VERSION_REFRESH_INTERVAL", time.Minute),
		},
		ConnectorsFile: r.str("CONNECTORS_FILE", "connectors.yaml"),
	}

	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required values and ranges
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" || c.Database.DBName == "" {
		errs = append(errs, errors.New("DB_HOST and DB_NAME are required"))
	}
	switch c.Cache.Type {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("CACHE_TYPE must be memory or redis, got %q", c.Cache.Type))
	}
	if c.Search.Timeout <= 0 {
		errs = append(errs, errors.New("SEARCH_TIMEOUT must be positive"))
	}
	if c.Search.Concurrency < 0 {
		errs = append(errs, errors.New("SEARCH_CONCURRENCY must not be negative"))
	}
	if c.Version.RefreshInterval <= 0 {
		errs = append(errs, errors.New("VERSION_REFRESH_INTERVAL must be positive"))
	}
	if c.Auth.Enabled && c.Auth.Resource == "" {
		errs = append(errs, errors.New("AUTH_RESOURCE is required when AUTH_ENABLED is set"))
	}
	if c.ConnectorsFile == "" {
		errs = append(errs, errors.New("CONNECTORS_FILE is required"))
	}

	return errors.Join(errs...)
}

// RedisAddr returns host:port of the Redis server
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// reader collects parse errors so every bad variable is reported at once
type reader struct {
	errs []error
}

func (r *reader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (r *reader) boolean(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (r *reader) list(key string, def []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
