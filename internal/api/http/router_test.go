package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/bootstrap"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
)

type testServer struct {
	app   *fiber.App
	rt    *bootstrap.Runtime
	admin string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	cfg := &config.Config{
		App:   config.AppConfig{Name: "helpdesk", Version: "test", RequestTimeoutSeconds: 5},
		Store: config.StoreConfig{Driver: config.StoreMemory},
		Lock:  config.LockConfig{Driver: config.LockLocal, TTLMs: 1000},
		Retry: config.RetryConfig{MaxAttempts: 1, InitialMs: 1, MaxMs: 1},
		Auth:  config.AuthConfig{JWTSecret: "test-secret", Issuer: "helpdesk", AccessTokenTTLMinutes: 5},
	}
	rt, err := bootstrap.New(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(rt.Close)

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), rt.Metrics, cfg.App.RequestTimeout())
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, nil),
		Tickets:        handlers.NewTicketsHandler(rt.Engine, rt.HistoryLog),
		Agents:         handlers.NewAgentsHandler(rt.Engine.Directory, rt.Engine.Lifecycle),
		Groups:         handlers.NewGroupsHandler(rt.Engine.Directory, rt.Engine.Lifecycle),
		AuthMiddleware: auth.NewAuthMiddleware(rt.Auth.TokenManager(), rt.Engine.Directory),
		Metrics:        rt.Metrics,
	})

	_, err = rt.Engine.Directory.Register(ctx, service.AgentInput{
		ID: "root", Name: "Root", Email: "root@example.com", Role: domain.AgentRoleAdmin,
	})
	require.NoError(t, err)

	s := &testServer{app: app, rt: rt}
	s.admin = s.token(t, "root")
	return s
}

func (s *testServer) token(t *testing.T, agentID string) string {
	t.Helper()
	token, _, err := s.rt.Auth.IssueToken(context.Background(), agentID)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", body)
	return d
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestTicketFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, err := s.rt.Engine.Directory.UpsertGroup(ctx, domain.Group{ID: "support", Name: "Support"})
	require.NoError(t, err)
	_, err = s.rt.Engine.Directory.UpsertGroup(ctx, domain.Group{ID: "empty", Name: "Empty"})
	require.NoError(t, err)

	status, body := s.do(t, fiber.MethodPost, "/api/v1/agents", s.admin, map[string]any{
		"id": "x", "name": "Xena", "email": "xena@example.com", "group_ids": []string{"support"},
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	agentToken := s.token(t, "x")

	status, body = s.do(t, fiber.MethodPost, "/api/v1/tickets", agentToken, map[string]any{
		"subject": "Laptop will not boot", "requester_email": "kim@example.com", "group_id": "support",
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	ticketID := data(t, body)["id"].(string)
	assert.Equal(t, "OPEN", data(t, body)["status"])

	status, body = s.do(t, fiber.MethodPost, "/api/v1/tickets/"+ticketID+"/auto-assign", agentToken, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "x", data(t, body)["agent_id"])
	assert.Equal(t, "IN_PROGRESS", data(t, body)["status"])

	status, body = s.do(t, fiber.MethodPost, "/api/v1/tickets/"+ticketID+"/replies", agentToken, map[string]any{
		"content": "Looking into it", "help_needed": true,
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, true, data(t, body)["help_needed"])
	messages := data(t, body)["messages"].([]any)
	require.Len(t, messages, 1)
	assert.Equal(t, "x", messages[0].(map[string]any)["author_id"])

	status, body = s.do(t, fiber.MethodPost, "/api/v1/tickets/"+ticketID+"/transfer/approve", agentToken, nil)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "NO_PENDING_TRANSFER", errorCode(body))

	status, body = s.do(t, fiber.MethodPost, "/api/v1/tickets/"+ticketID+"/assign", agentToken, map[string]any{
		"target_type": "GROUP", "target_id": "empty",
	})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, true, data(t, body)["queued"])
	queuedTicket := data(t, body)["ticket"].(map[string]any)
	assert.Equal(t, "OPEN", queuedTicket["status"])
	assert.Nil(t, queuedTicket["agent_id"])

	status, body = s.do(t, fiber.MethodGet, "/api/v1/groups/empty/queue", agentToken, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Len(t, body["data"].([]any), 1)

	status, body = s.do(t, fiber.MethodPatch, "/api/v1/tickets/"+ticketID+"/priority", agentToken, map[string]any{
		"priority": "URGENT",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do(t, fiber.MethodGet, "/api/v1/tickets/"+ticketID+"/history", agentToken, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	entries := body["data"].([]any)
	require.NotEmpty(t, entries)
	assert.Equal(t, "ticket_created", entries[0].(map[string]any)["event_type"])
}

func TestAuthAndRoles(t *testing.T) {
	s := newTestServer(t)
	_, err := s.rt.Engine.Directory.Register(context.Background(), service.AgentInput{
		ID: "plain", Name: "Plain", Email: "plain@example.com",
	})
	require.NoError(t, err)
	plain := s.token(t, "plain")

	status, body := s.do(t, fiber.MethodGet, "/api/v1/agents", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, _ = s.do(t, fiber.MethodGet, "/api/v1/agents", "garbage", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = s.do(t, fiber.MethodGet, "/api/v1/agents", plain, nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, body = s.do(t, fiber.MethodPost, "/api/v1/agents", plain, map[string]any{
		"name": "Nope", "email": "nope@example.com",
	})
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))

	status, body = s.do(t, fiber.MethodPatch, "/api/v1/agents/plain/status", s.admin, map[string]any{"status": "INACTIVE"})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "INACTIVE", data(t, body)["status"])

	status, _ = s.do(t, fiber.MethodGet, "/api/v1/agents", plain, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestErrorsAndProbes(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, fiber.MethodGet, "/api/v1/tickets/missing", s.admin, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, body = s.do(t, fiber.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, body = s.do(t, fiber.MethodGet, "/health/live", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = s.do(t, fiber.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	status, _ = s.do(t, fiber.MethodGet, "/metrics", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
}
