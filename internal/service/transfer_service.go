package service

import (
	"context"
	"strings"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/lock"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// TransferService manages the single pending hand-off proposal a ticket may carry.
// There is no decline: a new request replaces the old one, approval consumes it.
type TransferService struct {
	*core
}

// NewTransferService creates the service on top of lifecycle, sharing its locks.
func NewTransferService(lifecycle *LifecycleService) *TransferService {
	return &TransferService{core: lifecycle.core}
}

// Request proposes handing the ticket to targetAgentID, silently superseding any
// pending proposal.
func (s *TransferService) Request(ctx context.Context, ticketID string, requestedBy *string, targetAgentID string) (*domain.Ticket, error) {
	targetAgentID = strings.TrimSpace(targetAgentID)
	if targetAgentID == "" {
		return nil, apperrors.NewValidationError("target agent is required", nil)
	}
	if _, err := s.loadAgent(ctx, targetAgentID); err != nil {
		return nil, err
	}

	var (
		ticket     *domain.Ticket
		superseded *string
	)
	err := s.withLocks(ctx, []string{lock.TicketKey(ticketID)}, func() error {
		t, err := s.loadTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if t.Transfer != nil {
			prev := t.Transfer.TargetAgentID
			superseded = &prev
		}
		now := s.now()
		t.Transfer = &domain.TransferProposal{
			TargetAgentID: targetAgentID,
			RequestedBy:   requestedBy,
			RequestedAt:   now,
		}
		t.UpdatedAt = now
		if err := s.saveTicket(ctx, t); err != nil {
			return err
		}
		ticket = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventTransferRequested, ticket.ID, events.TransferRequestedPayload{
		TargetAgentID:      targetAgentID,
		SupersededTargetID: superseded,
	})
	return ticket, nil
}

// Approve hands the ticket to the proposed agent and restarts its ownership clock.
// Without a pending proposal it fails with NoPendingTransfer and writes nothing. A target
// that is no longer ACTIVE fails with AgentUnavailable and keeps the proposal.
func (s *TransferService) Approve(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	var (
		ticket   *domain.Ticket
		previous *string
		oldState domain.TicketStatus
	)
	err := s.withLocks(ctx, []string{lock.PoolKey, lock.TicketKey(ticketID)}, func() error {
		t, err := s.loadTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if t.Transfer == nil {
			return apperrors.NewNoPendingTransfer(map[string]any{"ticket_id": t.ID})
		}
		target, err := s.loadAgent(ctx, t.Transfer.TargetAgentID)
		if err != nil {
			return err
		}
		if target.Status != domain.AgentStatusActive {
			return apperrors.NewAgentUnavailable(map[string]any{"agent_id": target.ID, "status": target.Status})
		}

		previous = t.AgentID
		oldState = t.Status
		now := s.now()
		t.AgentID = &target.ID
		s.transition(t, domain.TicketStatusInProgress)
		t.AssignedAt = &now
		t.UpdatedAt = now
		t.Transfer = nil
		if err := s.saveTicket(ctx, t); err != nil {
			return err
		}
		ticket = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishStatusChange(ctx, ticket.ID, oldState, ticket.Status)
	s.publish(ctx, events.EventTransferApproved, ticket.ID, events.TransferApprovedPayload{
		PreviousAgentID: previous,
		NewAgentID:      *ticket.AgentID,
	})
	return ticket, nil
}
