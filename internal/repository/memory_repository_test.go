package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/domain"
)

func newTicket(id string, at time.Time) *domain.Ticket {
	return &domain.Ticket{
		ID:        id,
		Subject:   "subject " + id,
		Status:    domain.TicketStatusOpen,
		Priority:  domain.TicketPriorityNormal,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestMemoryRepository_TicketCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	now := time.Now().UTC()

	ticket := newTicket("t1", now)
	require.NoError(t, repo.CreateTicket(ctx, ticket))
	assert.Equal(t, int64(1), ticket.Number)
	assert.Equal(t, int64(1), ticket.Version)

	first, err := repo.LoadTicket(ctx, "t1")
	require.NoError(t, err)
	second, err := repo.LoadTicket(ctx, "t1")
	require.NoError(t, err)

	first.Status = domain.TicketStatusInProgress
	require.NoError(t, repo.SaveTicket(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	second.Status = domain.TicketStatusResolved
	assert.ErrorIs(t, repo.SaveTicket(ctx, second), ErrVersionConflict)

	stored, err := repo.LoadTicket(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, stored.Status)

	assert.ErrorIs(t, repo.SaveTicket(ctx, newTicket("ghost", now)), ErrNotFound)
	_, err = repo.LoadTicket(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepository_CreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	now := time.Now().UTC()

	require.NoError(t, repo.CreateTicket(ctx, newTicket("t1", now)))
	replay := newTicket("t1", now)
	require.NoError(t, repo.CreateTicket(ctx, replay))
	assert.Equal(t, int64(1), replay.Number)

	second := newTicket("t2", now)
	require.NoError(t, repo.CreateTicket(ctx, second))
	assert.Equal(t, int64(2), second.Number)
}

func TestMemoryRepository_MessagesAreAppendOnly(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	now := time.Now().UTC()
	require.NoError(t, repo.CreateTicket(ctx, newTicket("t1", now)))

	msg := &domain.Message{ID: "m1", Type: domain.MessageTypeInbound, Content: "hi", CreatedAt: now}
	loaded, err := repo.LoadTicket(ctx, "t1")
	require.NoError(t, err)
	loaded.HelpNeeded = true
	require.NoError(t, repo.SaveTicketWithMessage(ctx, loaded, msg))
	assert.Equal(t, int64(2), loaded.Version)
	// a replay of the same message bumps the version but keeps one copy
	require.NoError(t, repo.SaveTicketWithMessage(ctx, loaded, msg))

	loaded, err = repo.LoadTicket(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 1)
	assert.Equal(t, "t1", loaded.Messages[0].TicketID)
	assert.True(t, loaded.HelpNeeded)

	// a save carrying a stale thread does not drop stored messages
	loaded.Messages = nil
	require.NoError(t, repo.SaveTicket(ctx, loaded))
	reloaded, err := repo.LoadTicket(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, reloaded.Messages, 1)

	assert.ErrorIs(t, repo.SaveTicketWithMessage(ctx, newTicket("ghost", now), msg), ErrNotFound)
}

func TestMemoryRepository_SaveWithMessageIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	now := time.Now().UTC()
	require.NoError(t, repo.CreateTicket(ctx, newTicket("t1", now)))

	stale, err := repo.LoadTicket(ctx, "t1")
	require.NoError(t, err)
	fresh, err := repo.LoadTicket(ctx, "t1")
	require.NoError(t, err)
	require.NoError(t, repo.SaveTicket(ctx, fresh))

	stale.HelpNeeded = true
	msg := &domain.Message{ID: "m1", Type: domain.MessageTypeOutbound, Content: "hello", CreatedAt: now}
	assert.ErrorIs(t, repo.SaveTicketWithMessage(ctx, stale, msg), ErrVersionConflict)
	assert.Equal(t, int64(1), stale.Version)

	stored, err := repo.LoadTicket(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, stored.HelpNeeded)
	assert.Empty(t, stored.Messages)
}

func TestMemoryRepository_ListTickets(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	agent := "a1"
	group := "g1"

	owned := newTicket("owned", base.Add(2*time.Minute))
	owned.AgentID = &agent
	owned.Status = domain.TicketStatusInProgress
	queued := newTicket("queued", base.Add(time.Minute))
	queued.GroupID = &group
	resolved := newTicket("resolved", base)
	resolved.AgentID = &agent
	resolved.Status = domain.TicketStatusResolved
	for _, tk := range []*domain.Ticket{owned, queued, resolved} {
		require.NoError(t, repo.CreateTicket(ctx, tk))
	}

	byAgent, err := repo.ListTickets(ctx, TicketFilter{AgentID: &agent})
	require.NoError(t, err)
	require.Len(t, byAgent, 2)
	assert.Equal(t, "resolved", byAgent[0].ID)

	open, err := repo.ListTickets(ctx, TicketFilter{
		AgentID:  &agent,
		Statuses: []domain.TicketStatus{domain.TicketStatusInProgress},
	})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "owned", open[0].ID)

	inQueue, err := repo.ListTickets(ctx, TicketFilter{GroupID: &group, Unassigned: true})
	require.NoError(t, err)
	require.Len(t, inQueue, 1)
	assert.Equal(t, "queued", inQueue[0].ID)

	page, err := repo.ListTickets(ctx, TicketFilter{Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestMemoryRepository_AgentInsertAndUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	agent := &domain.Agent{ID: "a1", Name: "A", Role: domain.AgentRoleAgent, Status: domain.AgentStatusActive}
	require.NoError(t, repo.SaveAgent(ctx, agent))
	assert.Equal(t, int64(1), agent.Version)

	dup := &domain.Agent{ID: "a1", Name: "B"}
	assert.ErrorIs(t, repo.SaveAgent(ctx, dup), ErrVersionConflict)

	agent.Name = "A2"
	require.NoError(t, repo.SaveAgent(ctx, agent))

	stale := &domain.Agent{ID: "a1", Name: "stale", Version: 1}
	assert.ErrorIs(t, repo.SaveAgent(ctx, stale), ErrVersionConflict)

	missing := &domain.Agent{ID: "zz", Version: 3}
	assert.ErrorIs(t, repo.SaveAgent(ctx, missing), ErrNotFound)

	agents, err := repo.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "A2", agents[0].Name)
}

func TestMemoryRepository_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo := NewMemoryRepository()

	_, err := repo.LoadTicket(ctx, "t1")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = repo.ListGroups(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
