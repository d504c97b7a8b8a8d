package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Store        StoreConfig
	Postgres     PostgresConfig
	Mongo        MongoConfig
	Redis        RedisConfig
	Lock         LockConfig
	Retry        RetryConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
}

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Lock drivers.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// StoreConfig selects the repository backend.
type StoreConfig struct {
	Driver string
}

// MongoConfig holds MongoDB connection values.
type MongoConfig struct {
	URI               string
	Database          string
	ConnectTimeoutSec int
}

// LockConfig selects the record lock backend.
type LockConfig struct {
	Driver  string
	TTLMs   int
	RenewMs int
}

// RetryConfig bounds retries of transient repository failures.
type RetryConfig struct {
	MaxAttempts int
	InitialMs   int
	MaxMs       int
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	PoolSize      int
	DialTimeoutMs int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Encoding    string
	Development bool
	Service     string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	Issuer                string
	AccessTokenTTLMinutes int
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	storeDriver := strings.ToLower(getEnv("STORE_DRIVER", StoreMemory))
	switch storeDriver {
	case StoreMemory, StorePostgres, StoreMongo:
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q", storeDriver)
	}
	appEnv := getEnv("APP_ENV", "development")
	encoding := strings.ToLower(getEnv("LOG_ENCODING", "json"))
	switch encoding {
	case "json", "console":
	default:
		return nil, fmt.Errorf("invalid LOG_ENCODING %q", encoding)
	}
	lockTTL := getEnvAsInt("LOCK_TTL_MS", 10000)

	lockDriver := strings.ToLower(getEnv("LOCK_DRIVER", LockLocal))
	switch lockDriver {
	case LockLocal, LockRedis:
	default:
		return nil, fmt.Errorf("invalid LOCK_DRIVER %q", lockDriver)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk"),
			Env:                   appEnv,
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Store: StoreConfig{
			Driver: storeDriver,
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Mongo: MongoConfig{
			URI:               getEnv("MONGO_URI", "mongodb://127.0.0.1:27017"),
			Database:          getEnv("MONGO_DATABASE", "helpdesk"),
			ConnectTimeoutSec: getEnvAsInt("MONGO_CONNECT_TIMEOUT_SECONDS", 10),
		},
		Redis: RedisConfig{
			Addr:          getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:      os.Getenv("REDIS_PASSWORD"),
			DB:            redisDB,
			PoolSize:      getEnvAsInt("REDIS_POOL_SIZE", 20),
			DialTimeoutMs: getEnvAsInt("REDIS_DIAL_TIMEOUT_MS", 2000),
		},
		Lock: LockConfig{
			Driver:  lockDriver,
			TTLMs:   lockTTL,
			RenewMs: getEnvAsInt("LOCK_RENEW_MS", lockTTL/3),
		},
		Retry: RetryConfig{
			MaxAttempts: getEnvAsInt("REPO_RETRY_MAX_ATTEMPTS", 3),
			InitialMs:   getEnvAsInt("REPO_RETRY_INITIAL_MS", 50),
			MaxMs:       getEnvAsInt("REPO_RETRY_MAX_MS", 1000),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Encoding:    encoding,
			Development: getEnvAsBool("LOG_DEVELOPMENT", appEnv == "development"),
			Service:     getEnv("APP_NAME", "helpdesk"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			Issuer:                getEnv("AUTH_ISSUER", "helpdesk"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// TTL returns the lock expiry.
func (l LockConfig) TTL() time.Duration {
	return time.Duration(l.TTLMs) * time.Millisecond
}

// RenewInterval returns how often a held lock is extended; zero disables renewal.
func (l LockConfig) RenewInterval() time.Duration {
	if l.RenewMs <= 0 {
		return 0
	}
	return time.Duration(l.RenewMs) * time.Millisecond
}

// DialTimeout returns the Redis connect timeout.
func (r RedisConfig) DialTimeout() time.Duration {
	return time.Duration(r.DialTimeoutMs) * time.Millisecond
}

// ConnectTimeout returns the Mongo connect timeout.
func (m MongoConfig) ConnectTimeout() time.Duration {
	return time.Duration(m.ConnectTimeoutSec) * time.Second
}

// Initial returns the first backoff interval.
func (r RetryConfig) Initial() time.Duration {
	return time.Duration(r.InitialMs) * time.Millisecond
}

// Max returns the backoff ceiling.
func (r RetryConfig) Max() time.Duration {
	return time.Duration(r.MaxMs) * time.Millisecond
}

// AccessTokenTTL returns the bearer token lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
