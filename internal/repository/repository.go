package repository

import (
	"context"
	"errors"

	"github.com/spec-kit/helpdesk/internal/domain"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when a compare-and-swap save observes a newer stored version.
	ErrVersionConflict = errors.New("version conflict")
	// ErrInvalidValue is returned when a stored or supplied value fails validation at the boundary.
	ErrInvalidValue = errors.New("invalid value")
	// ErrUnavailable wraps failures that persisted after retrying.
	ErrUnavailable = errors.New("repository unavailable")
	// ErrStorage marks non-transient driver failures that must not be retried.
	ErrStorage = errors.New("storage failure")
	// ErrCorruptRecord marks a stored row or document that no longer decodes into the domain.
	ErrCorruptRecord = errors.New("stored record is invalid")
)

// TicketFilter narrows ticket listings.
type TicketFilter struct {
	AgentID    *string
	GroupID    *string
	Statuses   []domain.TicketStatus
	Unassigned bool
	Limit      int
	Offset     int
}

// TicketRepository persists tickets and their message threads.
//
// SaveTicket never writes messages. SaveTicketWithMessage writes the ticket and appends
// msg as one atomic step: either both land or neither does. Appending is keyed by the
// message id, so a replay never duplicates it.
// ListTickets returns tickets without messages, ordered by creation time.
type TicketRepository interface {
	CreateTicket(ctx context.Context, ticket *domain.Ticket) error
	LoadTicket(ctx context.Context, id string) (*domain.Ticket, error)
	SaveTicket(ctx context.Context, ticket *domain.Ticket) error
	SaveTicketWithMessage(ctx context.Context, ticket *domain.Ticket, msg *domain.Message) error
	ListTickets(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

// AgentRepository persists the agent roster. SaveAgent inserts when Version is zero.
type AgentRepository interface {
	LoadAgent(ctx context.Context, id string) (*domain.Agent, error)
	ListAgents(ctx context.Context) ([]domain.Agent, error)
	SaveAgent(ctx context.Context, agent *domain.Agent) error
}

// GroupRepository persists assignment groups.
type GroupRepository interface {
	ListGroups(ctx context.Context) ([]domain.Group, error)
	SaveGroup(ctx context.Context, group *domain.Group) error
}

// Repository is the storage collaborator the engine depends on.
//
// Saves of tickets and agents are compare-and-swap on Version: the write succeeds only
// when the stored version equals the caller's, and the caller's Version is incremented.
type Repository interface {
	TicketRepository
	AgentRepository
	GroupRepository
}

const defaultListLimit = 200

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
