package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// MemoryRepository implements Repository with in-memory storage.
// Used for development and tests; production runs on Postgres or Mongo.
type MemoryRepository struct {
	mu         sync.RWMutex
	tickets    map[string]*domain.Ticket
	agents     map[string]*domain.Agent
	groups     map[string]*domain.Group
	nextNumber int64
}

// NewMemoryRepository creates an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		tickets:    make(map[string]*domain.Ticket),
		agents:     make(map[string]*domain.Agent),
		groups:     make(map[string]*domain.Group),
		nextNumber: 1,
	}
}

func (r *MemoryRepository) CreateTicket(ctx context.Context, ticket *domain.Ticket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ticket.ID == "" {
		return fmt.Errorf("%w: ticket id required", ErrInvalidValue)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.tickets[ticket.ID]; ok {
		// replayed create of the same id
		ticket.Number = existing.Number
		ticket.Version = existing.Version
		return nil
	}
	ticket.Number = r.nextNumber
	r.nextNumber++
	ticket.Version = 1
	r.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (r *MemoryRepository) LoadTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return stored.Clone(), nil
}

func (r *MemoryRepository) SaveTicket(ctx context.Context, ticket *domain.Ticket) error {
	return r.SaveTicketWithMessage(ctx, ticket, nil)
}

// SaveTicketWithMessage applies the version check, the ticket fields and the message
// inside one critical section. A message id already in the thread is not added twice.
func (r *MemoryRepository) SaveTicketWithMessage(ctx context.Context, ticket *domain.Ticket, msg *domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tickets[ticket.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != ticket.Version {
		return ErrVersionConflict
	}
	next := ticket.Clone()
	next.Messages = stored.Messages
	if msg != nil && !stored.HasMessage(msg.ID) {
		m := msg.Clone()
		m.TicketID = ticket.ID
		next.Messages = append(slices.Clip(next.Messages), m)
	}
	next.Number = stored.Number
	next.Version = stored.Version + 1
	r.tickets[ticket.ID] = next
	ticket.Version = next.Version
	return nil
}

func (r *MemoryRepository) ListTickets(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	matched := make([]domain.Ticket, 0)
	for _, stored := range r.tickets {
		if !matchesFilter(stored, filter) {
			continue
		}
		t := stored.Clone()
		t.Messages = nil
		matched = append(matched, *t)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].Number < matched[j].Number
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []domain.Ticket{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if limit := normalizeLimit(filter.Limit); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func matchesFilter(t *domain.Ticket, filter TicketFilter) bool {
	if filter.AgentID != nil && !t.OwnedBy(*filter.AgentID) {
		return false
	}
	if filter.GroupID != nil && (t.GroupID == nil || *t.GroupID != *filter.GroupID) {
		return false
	}
	if filter.Unassigned && t.AgentID != nil {
		return false
	}
	if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, t.Status) {
		return false
	}
	return true
}

func (r *MemoryRepository) LoadAgent(ctx context.Context, id string) (*domain.Agent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return stored.Clone(), nil
}

func (r *MemoryRepository) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Agent, 0, len(r.agents))
	for _, stored := range r.agents {
		result = append(result, *stored.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *MemoryRepository) SaveAgent(ctx context.Context, agent *domain.Agent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if agent.ID == "" {
		return fmt.Errorf("%w: agent id required", ErrInvalidValue)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.agents[agent.ID]
	switch {
	case !exists && agent.Version != 0:
		return ErrNotFound
	case exists && stored.Version != agent.Version:
		return ErrVersionConflict
	}
	next := agent.Clone()
	next.Version = agent.Version + 1
	r.agents[agent.ID] = next
	agent.Version = next.Version
	return nil
}

func (r *MemoryRepository) ListGroups(ctx context.Context) ([]domain.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Group, 0, len(r.groups))
	for _, g := range r.groups {
		result = append(result, *g)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *MemoryRepository) SaveGroup(ctx context.Context, group *domain.Group) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if group.ID == "" {
		return fmt.Errorf("%w: group id required", ErrInvalidValue)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	g := *group
	r.groups[group.ID] = &g
	return nil
}
