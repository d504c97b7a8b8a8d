package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/lock"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// ReleaseFunc unassigns every unresolved ticket owned by agentID and reports how many
// were released.
type ReleaseFunc func(ctx context.Context, agentID string) (int, error)

// AgentDirectory owns the agent roster: eligibility, the fairness clock and activity
// status changes.
type AgentDirectory struct {
	*core
	release ReleaseFunc
}

// AgentInput describes a new agent.
type AgentInput struct {
	ID        string
	Name      string
	Email     string
	Role      domain.AgentRole
	Status    domain.AgentStatus
	GroupIDs  []string
	AvatarURL string
}

// AgentUpdate carries admin edits; nil fields are left unchanged.
type AgentUpdate struct {
	Name      *string
	Email     *string
	Role      *domain.AgentRole
	GroupIDs  *[]string
	AvatarURL *string
}

// NewAgentDirectory creates a standalone directory. Use NewEngine to get one wired to
// the lifecycle cascade.
func NewAgentDirectory(deps Dependencies) *AgentDirectory {
	return &AgentDirectory{core: newCore(deps)}
}

// OnDeactivate registers the cascade run after an agent becomes INACTIVE.
func (d *AgentDirectory) OnDeactivate(fn ReleaseFunc) {
	d.release = fn
}

// ListEligible returns ACTIVE agents with role AGENT, restricted to members of groupID
// when it is given.
func (d *AgentDirectory) ListEligible(ctx context.Context, groupID *string) ([]domain.Agent, error) {
	agents, err := d.repo.ListAgents(ctx)
	if err != nil {
		return nil, apperrors.FromRepository(err, "agent", nil)
	}
	eligible := make([]domain.Agent, 0, len(agents))
	for i := range agents {
		if !agents[i].Assignable() {
			continue
		}
		if groupID != nil && !agents[i].InGroup(*groupID) {
			continue
		}
		eligible = append(eligible, agents[i])
	}
	return eligible, nil
}

// RecordAssignment stamps the agent's fairness clock. Callers hold the assignment-pool
// lock; the agent record itself is updated with a reload loop so a concurrent admin
// edit cannot make the stamp fail.
func (d *AgentDirectory) RecordAssignment(ctx context.Context, agentID string) error {
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		agent, err := d.loadAgent(ctx, agentID)
		if err != nil {
			return err
		}
		now := d.now()
		agent.LastAssignedAt = &now
		agent.UpdatedAt = now
		err = d.saveAgent(ctx, agent)
		if !isConflict(err) {
			return err
		}
	}
	return apperrors.NewConcurrentModification("agent", map[string]any{"agent_id": agentID})
}

// Deactivate marks the agent INACTIVE and returns its unresolved tickets to the queue.
// Calling it again on an inactive agent re-runs the cascade, which finishes any release
// an earlier call could not complete.
func (d *AgentDirectory) Deactivate(ctx context.Context, agentID string) (*domain.Agent, error) {
	return d.changeStatus(ctx, agentID, domain.AgentStatusInactive)
}

// SetStatus changes an agent's activity status. Only INACTIVE triggers the cascade;
// SUSPENDED agents keep their tickets and merely stop being eligible.
func (d *AgentDirectory) SetStatus(ctx context.Context, agentID string, status domain.AgentStatus) (*domain.Agent, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidationError("invalid agent status", map[string]any{"status": status})
	}
	return d.changeStatus(ctx, agentID, status)
}

func (d *AgentDirectory) changeStatus(ctx context.Context, agentID string, status domain.AgentStatus) (*domain.Agent, error) {
	var (
		agent *domain.Agent
		old   domain.AgentStatus
	)
	// the pool lock keeps an in-flight assignment from picking the agent after the flip
	err := d.withLocks(ctx, []string{lock.PoolKey, lock.AgentKey(agentID)}, func() error {
		var err error
		agent, err = d.loadAgent(ctx, agentID)
		if err != nil {
			return err
		}
		old = agent.Status
		if old == status {
			return nil
		}
		agent.Status = status
		agent.UpdatedAt = d.now()
		return d.saveAgent(ctx, agent)
	})
	if err != nil {
		return nil, err
	}

	released := 0
	if status == domain.AgentStatusInactive && d.release != nil {
		released, err = d.release(ctx, agentID)
		d.metrics.RecordReleased(released)
		if err != nil {
			d.logger.Warn("deactivation cascade incomplete",
				zap.String("agent_id", agentID),
				zap.Int("released", released),
				zap.Error(err))
			return nil, err
		}
	}

	if old != status {
		d.publish(ctx, events.EventAgentStatusChanged, "", events.AgentStatusChangedPayload{
			AgentID:         agentID,
			OldStatus:       old,
			NewStatus:       status,
			ReleasedTickets: released,
		})
	}
	return agent, nil
}

// Register creates an agent. Group ids must exist.
func (d *AgentDirectory) Register(ctx context.Context, input AgentInput) (*domain.Agent, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.TrimSpace(input.Email)
	if name == "" {
		return nil, apperrors.NewValidationError("name is required", nil)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperrors.NewValidationError("invalid email", map[string]any{"email": input.Email})
	}
	if input.Role == "" {
		input.Role = domain.AgentRoleAgent
	}
	if !input.Role.Valid() {
		return nil, apperrors.NewValidationError("invalid agent role", map[string]any{"role": input.Role})
	}
	if input.Status == "" {
		input.Status = domain.AgentStatusActive
	}
	if !input.Status.Valid() {
		return nil, apperrors.NewValidationError("invalid agent status", map[string]any{"status": input.Status})
	}
	groupIDs, err := d.checkGroups(ctx, input.GroupIDs)
	if err != nil {
		return nil, err
	}

	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = uuid.NewString()
	}
	now := d.now()
	agent := &domain.Agent{
		ID:        id,
		Name:      name,
		Email:     email,
		Role:      input.Role,
		Status:    input.Status,
		GroupIDs:  groupIDs,
		AvatarURL: strings.TrimSpace(input.AvatarURL),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.repo.SaveAgent(ctx, agent); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, apperrors.NewValidationError("agent already exists", map[string]any{"agent_id": id})
		}
		return nil, apperrors.FromRepository(err, "agent", map[string]any{"agent_id": id})
	}
	return agent, nil
}

// Update applies admin edits to an agent's profile, role or memberships.
func (d *AgentDirectory) Update(ctx context.Context, agentID string, input AgentUpdate) (*domain.Agent, error) {
	if input.Role != nil && !input.Role.Valid() {
		return nil, apperrors.NewValidationError("invalid agent role", map[string]any{"role": *input.Role})
	}
	if input.Email != nil {
		if _, err := mail.ParseAddress(strings.TrimSpace(*input.Email)); err != nil {
			return nil, apperrors.NewValidationError("invalid email", map[string]any{"email": *input.Email})
		}
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return nil, apperrors.NewValidationError("name is required", nil)
	}
	var groupIDs []string
	if input.GroupIDs != nil {
		var err error
		if groupIDs, err = d.checkGroups(ctx, *input.GroupIDs); err != nil {
			return nil, err
		}
	}

	var agent *domain.Agent
	err := d.withLocks(ctx, []string{lock.AgentKey(agentID)}, func() error {
		var err error
		agent, err = d.loadAgent(ctx, agentID)
		if err != nil {
			return err
		}
		if input.Name != nil {
			agent.Name = strings.TrimSpace(*input.Name)
		}
		if input.Email != nil {
			agent.Email = strings.TrimSpace(*input.Email)
		}
		if input.Role != nil {
			agent.Role = *input.Role
		}
		if input.GroupIDs != nil {
			agent.GroupIDs = groupIDs
		}
		if input.AvatarURL != nil {
			agent.AvatarURL = strings.TrimSpace(*input.AvatarURL)
		}
		agent.UpdatedAt = d.now()
		return d.saveAgent(ctx, agent)
	})
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// Get returns a single agent.
func (d *AgentDirectory) Get(ctx context.Context, agentID string) (*domain.Agent, error) {
	return d.loadAgent(ctx, agentID)
}

// List returns the full roster ordered by id.
func (d *AgentDirectory) List(ctx context.Context) ([]domain.Agent, error) {
	agents, err := d.repo.ListAgents(ctx)
	if err != nil {
		return nil, apperrors.FromRepository(err, "agent", nil)
	}
	return agents, nil
}

// Groups returns every assignment group ordered by id.
func (d *AgentDirectory) Groups(ctx context.Context) ([]domain.Group, error) {
	groups, err := d.repo.ListGroups(ctx)
	if err != nil {
		return nil, apperrors.FromRepository(err, "group", nil)
	}
	return groups, nil
}

// UpsertGroup creates or renames a group. Used by roster seeding.
func (d *AgentDirectory) UpsertGroup(ctx context.Context, group domain.Group) (*domain.Group, error) {
	group.ID = strings.TrimSpace(group.ID)
	group.Name = strings.TrimSpace(group.Name)
	if group.ID == "" || group.Name == "" {
		return nil, apperrors.NewValidationError("group id and name are required", nil)
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = d.now()
	}
	if err := d.repo.SaveGroup(ctx, &group); err != nil {
		return nil, apperrors.FromRepository(err, "group", map[string]any{"group_id": group.ID})
	}
	return &group, nil
}

func (d *AgentDirectory) checkGroups(ctx context.Context, ids []string) ([]string, error) {
	result := make([]string, 0, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	groups, err := d.repo.ListGroups(ctx)
	if err != nil {
		return nil, apperrors.FromRepository(err, "group", nil)
	}
	known := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		known[g.ID] = struct{}{}
	}
	seen := make(map[string]struct{}, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if _, ok := known[id]; !ok {
			return nil, apperrors.NewNotFound("group", map[string]any{"group_id": raw})
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result, nil
}
