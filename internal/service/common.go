package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/lock"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// maxSaveAttempts bounds reload-and-reapply loops for writes that must not give up on a
// single version conflict.
const maxSaveAttempts = 5

// Dependencies bundles collaborators shared by the engine services.
type Dependencies struct {
	Repo       repository.Repository
	Locker     lock.Locker
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Clock      func() time.Time
}

type actorKey struct{}

// WithActor records the acting agent on ctx so emitted events carry it.
func WithActor(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, actorKey{}, agentID)
}

// ActorFrom returns the acting agent recorded by WithActor.
func ActorFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(actorKey{}).(string)
	return id, ok && id != ""
}

// core carries the collaborators every engine service uses. Services built by one
// Engine share a single core so they contend on the same locks.
type core struct {
	repo       repository.Repository
	locker     lock.Locker
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	clock      func() time.Time
}

func newCore(deps Dependencies) *core {
	c := &core{
		repo:       deps.Repo,
		locker:     deps.Locker,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		clock:      deps.Clock,
	}
	if c.locker == nil {
		c.locker = lock.NewLocal()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	return c
}

// now is truncated to milliseconds, the coarsest timestamp precision of any store.
func (c *core) now() time.Time {
	return c.clock().UTC().Truncate(time.Millisecond)
}

// withLocks acquires keys in the given order and releases them in reverse.
func (c *core) withLocks(ctx context.Context, keys []string, fn func() error) error {
	for _, key := range keys {
		unlock, err := c.locker.Acquire(ctx, key)
		if err != nil {
			return apperrors.FromRepository(err, "lock", map[string]any{"key": key})
		}
		defer unlock()
	}
	return fn()
}

func (c *core) loadTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := c.repo.LoadTicket(ctx, id)
	if err != nil {
		return nil, apperrors.FromRepository(err, "ticket", map[string]any{"ticket_id": id})
	}
	return ticket, nil
}

func (c *core) saveTicket(ctx context.Context, ticket *domain.Ticket) error {
	return c.saveTicketWithMessage(ctx, ticket, nil)
}

// saveTicketWithMessage writes the ticket and, when msg is set, its new message as one
// repository operation.
func (c *core) saveTicketWithMessage(ctx context.Context, ticket *domain.Ticket, msg *domain.Message) error {
	var err error
	if msg != nil {
		err = c.repo.SaveTicketWithMessage(ctx, ticket, msg)
	} else {
		err = c.repo.SaveTicket(ctx, ticket)
	}
	if errors.Is(err, repository.ErrVersionConflict) {
		c.metrics.RecordConflict("ticket")
	}
	return apperrors.FromRepository(err, "ticket", map[string]any{"ticket_id": ticket.ID})
}

func (c *core) loadAgent(ctx context.Context, id string) (*domain.Agent, error) {
	agent, err := c.repo.LoadAgent(ctx, id)
	if err != nil {
		return nil, apperrors.FromRepository(err, "agent", map[string]any{"agent_id": id})
	}
	return agent, nil
}

func (c *core) saveAgent(ctx context.Context, agent *domain.Agent) error {
	err := c.repo.SaveAgent(ctx, agent)
	if errors.Is(err, repository.ErrVersionConflict) {
		c.metrics.RecordConflict("agent")
	}
	return apperrors.FromRepository(err, "agent", map[string]any{"agent_id": agent.ID})
}

func (c *core) requireGroup(ctx context.Context, groupID string) error {
	groups, err := c.repo.ListGroups(ctx)
	if err != nil {
		return apperrors.FromRepository(err, "group", nil)
	}
	for _, g := range groups {
		if g.ID == groupID {
			return nil
		}
	}
	return apperrors.NewNotFound("group", map[string]any{"group_id": groupID})
}

// transition applies a status change and keeps PreviousStatus meaningful only while
// the ticket is resolved.
func (c *core) transition(ticket *domain.Ticket, next domain.TicketStatus) {
	if ticket.Status == next {
		return
	}
	c.metrics.RecordTransition(string(ticket.Status), string(next))
	if next != domain.TicketStatusResolved {
		ticket.PreviousStatus = nil
	}
	ticket.Status = next
}

func (c *core) publish(ctx context.Context, eventType events.EventType, ticketID string, payload interface{}) {
	if c.dispatcher == nil {
		return
	}
	var actor *string
	if id, ok := ActorFrom(ctx); ok {
		actor = &id
	}
	_ = c.dispatcher.Publish(ctx, events.New(eventType, ticketID, actor, c.now(), payload))
}

func (c *core) publishStatusChange(ctx context.Context, ticketID string, old, next domain.TicketStatus) {
	if old == next {
		return
	}
	c.publish(ctx, events.EventTicketStatusChanged, ticketID, events.TicketStatusChangedPayload{
		OldStatus: old,
		NewStatus: next,
	})
}
