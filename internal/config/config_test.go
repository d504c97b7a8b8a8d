package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"STORE_DRIVER", "LOCK_DRIVER", "LOCK_TTL_MS", "REPO_RETRY_MAX_ATTEMPTS",
		"REPO_RETRY_INITIAL_MS", "REPO_RETRY_MAX_MS", "APP_HOST", "APP_PORT", "MONGO_DATABASE", "REDIS_DB",
		"AUTH_ACCESS_TOKEN_TTL_MINUTES", "LOCK_RENEW_MS", "APP_ENV", "LOG_ENCODING", "LOG_DEVELOPMENT",
		"REDIS_DIAL_TIMEOUT_MS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, LockLocal, cfg.Lock.Driver)
	assert.Equal(t, 10*time.Second, cfg.Lock.TTL())
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Retry.Initial())
	assert.Equal(t, time.Second, cfg.Retry.Max())
	assert.Equal(t, "helpdesk", cfg.Mongo.Database)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, time.Hour, cfg.Auth.AccessTokenTTL())
	assert.Equal(t, 3333*time.Millisecond, cfg.Lock.RenewInterval())
	assert.Equal(t, 2*time.Second, cfg.Redis.DialTimeout())
	assert.Equal(t, "json", cfg.Logger.Encoding)
	assert.True(t, cfg.Logger.Development)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("LOCK_DRIVER", "redis")
	t.Setenv("LOCK_TTL_MS", "2500")
	t.Setenv("REPO_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("APP_HOST", "")
	t.Setenv("HTTP_REQUEST_TIMEOUT_SECONDS", "0")
	t.Setenv("REDIS_DB", "")
	t.Setenv("LOCK_RENEW_MS", "")
	t.Setenv("APP_ENV", "production")
	t.Setenv("LOG_DEVELOPMENT", "")
	t.Setenv("LOG_ENCODING", "Console")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorePostgres, cfg.Store.Driver)
	assert.Equal(t, LockRedis, cfg.Lock.Driver)
	assert.Equal(t, 2500*time.Millisecond, cfg.Lock.TTL())
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, "0.0.0.0:9090", cfg.App.Addr())
	assert.Zero(t, cfg.App.RequestTimeout())
	assert.Equal(t, 833*time.Millisecond, cfg.Lock.RenewInterval())
	assert.False(t, cfg.Logger.Development)
	assert.Equal(t, "console", cfg.Logger.Encoding)
}

func TestLoad_RejectsUnknownDrivers(t *testing.T) {
	t.Setenv("STORE_DRIVER", "cassandra")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("LOCK_DRIVER", "zookeeper")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("LOCK_DRIVER", "")
	t.Setenv("LOG_ENCODING", "xml")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoad_InvalidRedisDB(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("LOCK_DRIVER", "")
	t.Setenv("REDIS_DB", "zero")

	_, err := Load()
	assert.Error(t, err)
}
