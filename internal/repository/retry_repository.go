package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// RetryPolicy bounds the exponential backoff applied to store calls.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// RetryHook observes each retry; op names the repository method.
type RetryHook func(op string, attempt int, err error)

type retryingRepository struct {
	next   Repository
	policy RetryPolicy
	logger *zap.Logger
	hook   RetryHook
}

// WithRetry decorates next so transient failures are retried with bounded exponential
// backoff. Not-found, version conflicts, invalid values and context cancellation are
// returned immediately. Exhausted retries are reported wrapped in ErrUnavailable.
// Versioned writes that conflict after a lost reply are checked against the store and
// reported as successful when the stored row is the caller's own write.
func WithRetry(next Repository, policy RetryPolicy, logger *zap.Logger, hook RetryHook) Repository {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = 50 * time.Millisecond
	}
	if policy.MaxInterval < policy.InitialInterval {
		policy.MaxInterval = policy.InitialInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &retryingRepository{next: next, policy: policy, logger: logger, hook: hook}
}

func (r *retryingRepository) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.policy.InitialInterval
	exp.MaxInterval = r.policy.MaxInterval
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(r.policy.MaxAttempts-1)), ctx)
}

func (r *retryingRepository) do(ctx context.Context, op string, fn func() error) error {
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := fn()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, r.backOff(ctx), func(err error, wait time.Duration) {
		r.logger.Warn("repository call failed; retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
		if r.hook != nil {
			r.hook(op, attempt, err)
		}
	})
	if err == nil {
		return nil
	}
	if retryable(err) {
		return fmt.Errorf("%s after %d attempts: %w", op, attempt, errors.Join(ErrUnavailable, err))
	}
	return err
}

func retryable(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrVersionConflict),
		errors.Is(err, ErrInvalidValue),
		errors.Is(err, ErrStorage),
		errors.Is(err, ErrCorruptRecord),
		errors.Is(err, domain.ErrUnknownValue),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

func (r *retryingRepository) CreateTicket(ctx context.Context, ticket *domain.Ticket) error {
	return r.do(ctx, "CreateTicket", func() error { return r.next.CreateTicket(ctx, ticket) })
}

func (r *retryingRepository) LoadTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := r.do(ctx, "LoadTicket", func() error {
		var err error
		ticket, err = r.next.LoadTicket(ctx, id)
		return err
	})
	return ticket, err
}

func (r *retryingRepository) SaveTicket(ctx context.Context, ticket *domain.Ticket) error {
	return r.doVersioned(ctx, "SaveTicket",
		func() error { return r.next.SaveTicket(ctx, ticket) },
		func() (bool, error) { return r.ticketLanded(ctx, ticket, nil) })
}

func (r *retryingRepository) SaveTicketWithMessage(ctx context.Context, ticket *domain.Ticket, msg *domain.Message) error {
	return r.doVersioned(ctx, "SaveTicketWithMessage",
		func() error { return r.next.SaveTicketWithMessage(ctx, ticket, msg) },
		func() (bool, error) { return r.ticketLanded(ctx, ticket, msg) })
}

// doVersioned retries a version-checked write. A conflict that follows a transient
// failure may be the echo of an attempt that committed but whose reply was lost, so
// landed is asked to recognise the caller's own write before the conflict is reported.
func (r *retryingRepository) doVersioned(ctx context.Context, op string, write func() error, landed func() (bool, error)) error {
	interrupted := false
	return r.do(ctx, op, func() error {
		err := write()
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrVersionConflict) && interrupted:
			ok, lerr := landed()
			if lerr != nil {
				return lerr
			}
			if ok {
				r.logger.Info("version conflict resolved as an earlier committed attempt", zap.String("op", op))
				return nil
			}
		case retryable(err):
			interrupted = true
		}
		return err
	})
}

// ticketLanded reports whether the stored ticket is exactly the write the caller sent:
// one version ahead, stamped with the caller's UpdatedAt and holding msg when given.
func (r *retryingRepository) ticketLanded(ctx context.Context, ticket *domain.Ticket, msg *domain.Message) (bool, error) {
	stored, err := r.next.LoadTicket(ctx, ticket.ID)
	if err != nil {
		return false, err
	}
	if stored.Version != ticket.Version+1 || !stored.UpdatedAt.Equal(ticket.UpdatedAt) {
		return false, nil
	}
	if msg != nil && !stored.HasMessage(msg.ID) {
		return false, nil
	}
	ticket.Version = stored.Version
	ticket.Number = stored.Number
	return true, nil
}

func (r *retryingRepository) ListTickets(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	var tickets []domain.Ticket
	err := r.do(ctx, "ListTickets", func() error {
		var err error
		tickets, err = r.next.ListTickets(ctx, filter)
		return err
	})
	return tickets, err
}

func (r *retryingRepository) LoadAgent(ctx context.Context, id string) (*domain.Agent, error) {
	var agent *domain.Agent
	err := r.do(ctx, "LoadAgent", func() error {
		var err error
		agent, err = r.next.LoadAgent(ctx, id)
		return err
	})
	return agent, err
}

func (r *retryingRepository) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	var agents []domain.Agent
	err := r.do(ctx, "ListAgents", func() error {
		var err error
		agents, err = r.next.ListAgents(ctx)
		return err
	})
	return agents, err
}

func (r *retryingRepository) SaveAgent(ctx context.Context, agent *domain.Agent) error {
	return r.doVersioned(ctx, "SaveAgent",
		func() error { return r.next.SaveAgent(ctx, agent) },
		func() (bool, error) {
			stored, err := r.next.LoadAgent(ctx, agent.ID)
			if err != nil {
				return false, err
			}
			if stored.Version != agent.Version+1 || !stored.UpdatedAt.Equal(agent.UpdatedAt) {
				return false, nil
			}
			agent.Version = stored.Version
			return true, nil
		})
}

func (r *retryingRepository) ListGroups(ctx context.Context) ([]domain.Group, error) {
	var groups []domain.Group
	err := r.do(ctx, "ListGroups", func() error {
		var err error
		groups, err = r.next.ListGroups(ctx)
		return err
	})
	return groups, err
}

func (r *retryingRepository) SaveGroup(ctx context.Context, group *domain.Group) error {
	return r.do(ctx, "SaveGroup", func() error { return r.next.SaveGroup(ctx, group) })
}
