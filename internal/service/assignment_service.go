package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/lock"
	"github.com/spec-kit/helpdesk/internal/observability"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// TargetKind selects the manual assignment mode.
type TargetKind string

const (
	TargetAgent TargetKind = "AGENT"
	TargetGroup TargetKind = "GROUP"
)

// ParseTargetKind converts raw input into a TargetKind, rejecting unknown values.
func ParseTargetKind(raw string) (TargetKind, error) {
	k := TargetKind(strings.ToUpper(strings.TrimSpace(raw)))
	switch k {
	case TargetAgent, TargetGroup:
		return k, nil
	}
	return "", fmt.Errorf("%w: assignment target %q", domain.ErrUnknownValue, raw)
}

// AssignTarget names who a ticket is manually assigned to.
type AssignTarget struct {
	Kind TargetKind
	ID   string
}

// AssignResult reports the outcome of a manual assignment. Queued means a group
// assignment found no eligible agent and the ticket waits in the group queue; it is a
// successful outcome.
type AssignResult struct {
	Ticket *domain.Ticket
	Queued bool
}

// AssignmentService picks owners for tickets under the round-robin fairness policy.
type AssignmentService struct {
	*core
	directory *AgentDirectory
}

// NewAssignmentService creates the service on top of directory, sharing its locks.
func NewAssignmentService(directory *AgentDirectory) *AssignmentService {
	return &AssignmentService{core: directory.core, directory: directory}
}

// SelectAgent returns the candidate that has waited longest for a ticket: agents never
// assigned come first, then the oldest LastAssignedAt, ties broken by id.
func SelectAgent(candidates []domain.Agent) (*domain.Agent, error) {
	if len(candidates) == 0 {
		return nil, apperrors.NewNoEligibleAgent(nil)
	}
	ordered := make([]domain.Agent, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return assignedBefore(&ordered[i], &ordered[j])
	})
	chosen := ordered[0].Clone()
	return chosen, nil
}

func assignedBefore(a, b *domain.Agent) bool {
	switch {
	case a.LastAssignedAt == nil && b.LastAssignedAt != nil:
		return true
	case a.LastAssignedAt != nil && b.LastAssignedAt == nil:
		return false
	case a.LastAssignedAt != nil && !a.LastAssignedAt.Equal(*b.LastAssignedAt):
		return a.LastAssignedAt.Before(*b.LastAssignedAt)
	}
	return a.ID < b.ID
}

// AutoAssign gives the ticket to the next eligible agent of its group, or of the whole
// pool for ungrouped tickets. Selection and the fairness stamp happen under the
// assignment-pool lock.
func (s *AssignmentService) AutoAssign(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := s.withLocks(ctx, []string{lock.PoolKey, lock.TicketKey(ticketID)}, func() error {
		t, err := s.loadTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		agent, err := s.pick(ctx, t.GroupID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNoEligibleAgent) {
				s.metrics.RecordAssignment("auto", observability.AssignmentNoEligible)
				s.publish(ctx, events.EventNoEligibleAgent, t.ID, events.NoEligibleAgentPayload{GroupID: t.GroupID})
				return apperrors.NewNoEligibleAgent(map[string]any{"ticket_id": t.ID, "group_id": t.GroupID})
			}
			return err
		}
		if err := s.assignSelected(ctx, t, agent.ID); err != nil {
			return err
		}
		s.metrics.RecordAssignment("auto", observability.AssignmentAssigned)
		ticket = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// ManualAssign assigns directly to an ACTIVE agent, or scopes the ticket to a group and
// runs the fair selection inside it. A group with nobody eligible queues the ticket.
func (s *AssignmentService) ManualAssign(ctx context.Context, ticketID string, target AssignTarget) (*AssignResult, error) {
	target.ID = strings.TrimSpace(target.ID)
	if target.ID == "" {
		return nil, apperrors.NewValidationError("assignment target id is required", nil)
	}
	switch target.Kind {
	case TargetAgent:
		return s.assignToAgent(ctx, ticketID, target.ID)
	case TargetGroup:
		return s.assignToGroup(ctx, ticketID, target.ID)
	}
	return nil, apperrors.NewValidationError("invalid assignment target type", map[string]any{"target_type": target.Kind})
}

func (s *AssignmentService) assignToAgent(ctx context.Context, ticketID, agentID string) (*AssignResult, error) {
	var ticket *domain.Ticket
	err := s.withLocks(ctx, []string{lock.PoolKey, lock.TicketKey(ticketID)}, func() error {
		t, err := s.loadTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		agent, err := s.loadAgent(ctx, agentID)
		if err != nil {
			return err
		}
		if agent.Status != domain.AgentStatusActive {
			return apperrors.NewAgentUnavailable(map[string]any{"agent_id": agent.ID, "status": agent.Status})
		}
		old := t.Status
		s.takeOwnership(t, agent.ID, s.now())
		if err := s.saveTicket(ctx, t); err != nil {
			return err
		}
		s.publishStatusChange(ctx, t.ID, old, t.Status)
		s.publish(ctx, events.EventTicketAssigned, t.ID, events.TicketAssignedPayload{
			AgentID: agent.ID,
			GroupID: t.GroupID,
		})
		s.metrics.RecordAssignment("agent", observability.AssignmentAssigned)
		ticket = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &AssignResult{Ticket: ticket}, nil
}

func (s *AssignmentService) assignToGroup(ctx context.Context, ticketID, groupID string) (*AssignResult, error) {
	result := &AssignResult{}
	err := s.withLocks(ctx, []string{lock.PoolKey, lock.TicketKey(ticketID)}, func() error {
		t, err := s.loadTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if err := s.requireGroup(ctx, groupID); err != nil {
			return err
		}
		t.GroupID = &groupID

		agent, err := s.pick(ctx, t.GroupID)
		if errors.Is(err, apperrors.ErrNoEligibleAgent) {
			old := t.Status
			t.AgentID = nil
			s.transition(t, domain.TicketStatusOpen)
			t.UpdatedAt = s.now()
			if err := s.saveTicket(ctx, t); err != nil {
				return err
			}
			s.publishStatusChange(ctx, t.ID, old, t.Status)
			s.publish(ctx, events.EventTicketQueued, t.ID, events.TicketQueuedPayload{GroupID: groupID})
			s.metrics.RecordAssignment("group", observability.AssignmentQueued)
			result.Ticket = t
			result.Queued = true
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.assignSelected(ctx, t, agent.ID); err != nil {
			return err
		}
		s.metrics.RecordAssignment("group", observability.AssignmentAssigned)
		result.Ticket = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *AssignmentService) pick(ctx context.Context, groupID *string) (*domain.Agent, error) {
	candidates, err := s.directory.ListEligible(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return SelectAgent(candidates)
}

// assignSelected stamps the agent's fairness clock and then persists the ownership. A
// failed stamp leaves the ticket untouched; a failed save after the stamp only moves the
// agent back in the rotation.
func (s *AssignmentService) assignSelected(ctx context.Context, t *domain.Ticket, agentID string) error {
	if err := s.directory.RecordAssignment(ctx, agentID); err != nil {
		return err
	}
	old := t.Status
	s.takeOwnership(t, agentID, s.now())
	if err := s.saveTicket(ctx, t); err != nil {
		s.logger.Warn("fairness clock stamped but ticket not assigned",
			zap.String("ticket_id", t.ID),
			zap.String("agent_id", agentID),
			zap.Error(err))
		return err
	}
	s.publishStatusChange(ctx, t.ID, old, t.Status)
	s.publish(ctx, events.EventTicketAssigned, t.ID, events.TicketAssignedPayload{
		AgentID:   agentID,
		GroupID:   t.GroupID,
		Automatic: true,
	})
	return nil
}

// takeOwnership sets the owner and moves the ticket into IN_PROGRESS. AssignedAt keeps
// the first moment any agent took the ticket.
func (s *AssignmentService) takeOwnership(t *domain.Ticket, agentID string, now time.Time) {
	t.AgentID = &agentID
	s.transition(t, domain.TicketStatusInProgress)
	if t.AssignedAt == nil {
		t.AssignedAt = &now
	}
	t.UpdatedAt = now
}
