package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
)

var clockStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// stepClock moves forward one second on every read so successive stamps are ordered.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) Publish(_ context.Context, event events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *eventLog) Subscribe(events.EventType, events.EventHandler) {}

func (l *eventLog) ofType(eventType events.EventType) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, e := range l.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	ctx    context.Context
	store  *repository.MemoryRepository
	engine *Engine
	events *eventLog
}

type fixtureOption func(*Dependencies)

func withRepo(wrap func(repository.Repository) repository.Repository) fixtureOption {
	return func(d *Dependencies) { d.Repo = wrap(d.Repo) }
}

func withClock(clock func() time.Time) fixtureOption {
	return func(d *Dependencies) { d.Clock = clock }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	store := repository.NewMemoryRepository()
	log := &eventLog{}
	clock := &stepClock{t: clockStart}
	deps := Dependencies{
		Repo:       store,
		Dispatcher: log,
		Clock:      clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	return &fixture{
		ctx:    context.Background(),
		store:  store,
		engine: NewEngine(deps),
		events: log,
	}
}

func (f *fixture) group(t *testing.T, id string) {
	t.Helper()
	_, err := f.engine.Directory.UpsertGroup(f.ctx, domain.Group{ID: id, Name: "Group " + id})
	require.NoError(t, err)
}

func (f *fixture) agent(t *testing.T, id string, groupIDs ...string) *domain.Agent {
	t.Helper()
	agent, err := f.engine.Directory.Register(f.ctx, AgentInput{
		ID:       id,
		Name:     "Agent " + id,
		Email:    id + "@example.com",
		GroupIDs: groupIDs,
	})
	require.NoError(t, err)
	return agent
}

// stampAgent writes a LastAssignedAt directly, bypassing the engine clock.
func (f *fixture) stampAgent(t *testing.T, id string, at time.Time) {
	t.Helper()
	agent, err := f.store.LoadAgent(f.ctx, id)
	require.NoError(t, err)
	agent.LastAssignedAt = &at
	require.NoError(t, f.store.SaveAgent(f.ctx, agent))
}

func (f *fixture) ticket(t *testing.T, groupID *string) *domain.Ticket {
	t.Helper()
	ticket, err := f.engine.Lifecycle.Create(f.ctx, CreateTicketInput{
		Subject:        "Printer on fire",
		RequesterName:  "Dana",
		RequesterEmail: "dana@example.com",
		GroupID:        groupID,
	})
	require.NoError(t, err)
	return ticket
}

func (f *fixture) load(t *testing.T, id string) *domain.Ticket {
	t.Helper()
	ticket, err := f.store.LoadTicket(f.ctx, id)
	require.NoError(t, err)
	return ticket
}

func (f *fixture) loadAgent(t *testing.T, id string) *domain.Agent {
	t.Helper()
	agent, err := f.store.LoadAgent(f.ctx, id)
	require.NoError(t, err)
	return agent
}

func ptr[T any](v T) *T {
	return &v
}
