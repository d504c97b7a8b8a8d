package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/service"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Store: config.StoreConfig{Driver: config.StoreMemory},
		Lock:  config.LockConfig{Driver: config.LockLocal, TTLMs: 1000},
		Retry: config.RetryConfig{MaxAttempts: 2, InitialMs: 1, MaxMs: 2},
		Auth:  config.AuthConfig{JWTSecret: "test", Issuer: "helpdesk", AccessTokenTTLMinutes: 5},
	}
}

func TestNew_MemoryRuntimeRunsTheEngine(t *testing.T) {
	ctx := context.Background()
	rt, err := New(ctx, memoryConfig(), nil)
	require.NoError(t, err)
	defer rt.Close()

	_, err = rt.Engine.Directory.Register(ctx, service.AgentInput{ID: "a", Name: "A", Email: "a@example.com"})
	require.NoError(t, err)
	ticket, err := rt.Engine.Lifecycle.Create(ctx, service.CreateTicketInput{Subject: "hello"})
	require.NoError(t, err)
	assigned, err := rt.Engine.Assignment.AutoAssign(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", *assigned.AgentID)

	history, err := rt.HistoryLog.ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, history)

	token, _, err := rt.Auth.IssueToken(ctx, "a")
	require.NoError(t, err)
	claims, err := rt.Auth.TokenManager().ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "a", claims.AgentID)
}

func TestNew_PostgresRequiresDSN(t *testing.T) {
	cfg := memoryConfig()
	cfg.Store.Driver = config.StorePostgres

	_, err := New(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "POSTGRES_DSN")
}
