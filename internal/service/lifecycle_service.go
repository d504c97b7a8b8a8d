package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/lock"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

const releaseBatchSize = 100

// CreateTicketInput describes a new ticket. ID is optional and, when supplied by the
// caller, makes creation idempotent. InitialMessage is the customer's first contact.
type CreateTicketInput struct {
	ID                   string
	Subject              string
	RequesterName        string
	RequesterEmail       string
	Priority             domain.TicketPriority
	Category             string
	GroupID              *string
	InitialMessage       *string
	InitialHasAttachment bool
}

// MessageInput describes an inbound message or internal note.
type MessageInput struct {
	Type          domain.MessageType
	AuthorID      *string
	Content       string
	HasAttachment bool
}

// Page bounds a listing.
type Page struct {
	Limit  int
	Offset int
}

// LifecycleService drives the ticket status state machine. Every transition is defined
// for every state, so none of these operations fail on status grounds.
type LifecycleService struct {
	*core
}

// NewLifecycleService creates the service on top of directory, sharing its locks.
func NewLifecycleService(directory *AgentDirectory) *LifecycleService {
	return &LifecycleService{core: directory.core}
}

// Create opens a new ticket in OPEN, optionally scoped to a group and carrying the
// first inbound message.
func (s *LifecycleService) Create(ctx context.Context, input CreateTicketInput) (*domain.Ticket, error) {
	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		return nil, apperrors.NewValidationError("subject is required", nil)
	}
	if input.Priority == "" {
		input.Priority = domain.TicketPriorityNormal
	}
	if !input.Priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": input.Priority})
	}
	if input.GroupID != nil {
		if err := s.requireGroup(ctx, *input.GroupID); err != nil {
			return nil, err
		}
	}

	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = uuid.NewString()
	}
	now := s.now()
	ticket := &domain.Ticket{
		ID:             id,
		Subject:        subject,
		RequesterName:  strings.TrimSpace(input.RequesterName),
		RequesterEmail: strings.TrimSpace(input.RequesterEmail),
		Status:         domain.TicketStatusOpen,
		Priority:       input.Priority,
		Category:       strings.TrimSpace(input.Category),
		GroupID:        input.GroupID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if input.InitialMessage != nil && strings.TrimSpace(*input.InitialMessage) != "" {
		ticket.Messages = []domain.Message{{
			ID:            uuid.NewString(),
			TicketID:      id,
			Type:          domain.MessageTypeInbound,
			Content:       strings.TrimSpace(*input.InitialMessage),
			HasAttachment: input.InitialHasAttachment,
			CreatedAt:     now,
		}}
	}

	if err := s.repo.CreateTicket(ctx, ticket); err != nil {
		return nil, apperrors.FromRepository(err, "ticket", map[string]any{"ticket_id": id})
	}
	s.publish(ctx, events.EventTicketCreated, ticket.ID, events.TicketCreatedPayload{
		Number:   ticket.Number,
		GroupID:  ticket.GroupID,
		Priority: ticket.Priority,
		Subject:  ticket.Subject,
	})
	return ticket, nil
}

// RecordOutgoingMessage appends an agent reply. Any unresolved ticket moves to
// IN_PROGRESS; a resolved ticket stays resolved. HelpNeeded takes the supplied value.
func (s *LifecycleService) RecordOutgoingMessage(ctx context.Context, ticketID, authorID, content string, hasAttachment, helpNeeded bool) (*domain.Ticket, error) {
	content = strings.TrimSpace(content)
	if content == "" && !hasAttachment {
		return nil, apperrors.NewValidationError("reply content is required", nil)
	}
	author := strings.TrimSpace(authorID)
	if author == "" {
		return nil, apperrors.NewValidationError("reply author is required", nil)
	}

	return s.mutate(ctx, ticketID, func(t *domain.Ticket) (*domain.Message, bool, error) {
		msg := s.newMessage(t, domain.MessageTypeOutbound, &author, content, hasAttachment)
		if !t.IsResolved() {
			s.transition(t, domain.TicketStatusInProgress)
		}
		t.HelpNeeded = helpNeeded
		t.UpdatedAt = msg.CreatedAt
		return msg, true, nil
	})
}

// RecordInboundOrNote appends a customer message or an internal note without touching
// the status. Outbound replies must go through RecordOutgoingMessage.
func (s *LifecycleService) RecordInboundOrNote(ctx context.Context, ticketID string, input MessageInput) (*domain.Ticket, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" && !input.HasAttachment {
		return nil, apperrors.NewValidationError("message content is required", nil)
	}
	var author *string
	switch input.Type {
	case domain.MessageTypeInbound:
	case domain.MessageTypeInternalNote:
		author = input.AuthorID
	case domain.MessageTypeOutbound:
		return nil, apperrors.NewValidationError("outbound messages must be sent as replies", map[string]any{"type": input.Type})
	default:
		return nil, apperrors.NewValidationError("invalid message type", map[string]any{"type": input.Type})
	}

	return s.mutate(ctx, ticketID, func(t *domain.Ticket) (*domain.Message, bool, error) {
		msg := s.newMessage(t, input.Type, author, content, input.HasAttachment)
		t.UpdatedAt = msg.CreatedAt
		return msg, true, nil
	})
}

// Resolve records the current status and moves the ticket to RESOLVED. Resolving an
// already resolved ticket writes nothing and keeps the captured previous status.
func (s *LifecycleService) Resolve(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.mutate(ctx, ticketID, func(t *domain.Ticket) (*domain.Message, bool, error) {
		if t.IsResolved() {
			return nil, false, nil
		}
		prev := t.Status
		s.transition(t, domain.TicketStatusResolved)
		t.PreviousStatus = &prev
		t.UpdatedAt = s.now()
		return nil, true, nil
	})
}

// Reopen restores the status captured at resolution, or IN_PROGRESS when none was
// captured. Reopening a ticket that is not resolved writes nothing.
func (s *LifecycleService) Reopen(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.mutate(ctx, ticketID, func(t *domain.Ticket) (*domain.Message, bool, error) {
		if !t.IsResolved() {
			return nil, false, nil
		}
		next := domain.TicketStatusInProgress
		if t.PreviousStatus != nil && *t.PreviousStatus != domain.TicketStatusResolved {
			next = *t.PreviousStatus
		}
		s.transition(t, next)
		t.PreviousStatus = nil
		t.UpdatedAt = s.now()
		return nil, true, nil
	})
}

// UpdatePriority is allowed in every status.
func (s *LifecycleService) UpdatePriority(ctx context.Context, ticketID string, priority domain.TicketPriority) (*domain.Ticket, error) {
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}
	var old domain.TicketPriority
	ticket, err := s.mutate(ctx, ticketID, func(t *domain.Ticket) (*domain.Message, bool, error) {
		old = t.Priority
		if t.Priority == priority {
			return nil, false, nil
		}
		t.Priority = priority
		t.UpdatedAt = s.now()
		return nil, true, nil
	})
	if err == nil && old != priority {
		s.publish(ctx, events.EventTicketPriorityChanged, ticketID, events.TicketPriorityChangedPayload{
			OldPriority: old,
			NewPriority: priority,
		})
	}
	return ticket, err
}

// UpdateCategory is allowed in every status.
func (s *LifecycleService) UpdateCategory(ctx context.Context, ticketID, category string) (*domain.Ticket, error) {
	category = strings.TrimSpace(category)
	var old string
	ticket, err := s.mutate(ctx, ticketID, func(t *domain.Ticket) (*domain.Message, bool, error) {
		old = t.Category
		if t.Category == category {
			return nil, false, nil
		}
		t.Category = category
		t.UpdatedAt = s.now()
		return nil, true, nil
	})
	if err == nil && old != category {
		s.publish(ctx, events.EventTicketCategoryChanged, ticketID, events.TicketCategoryChangedPayload{
			OldCategory: old,
			NewCategory: category,
		})
	}
	return ticket, err
}

// ReleaseAgentTickets returns every unresolved ticket owned by agentID to OPEN with no
// owner and no assignment time. It is the deactivation cascade.
func (s *LifecycleService) ReleaseAgentTickets(ctx context.Context, agentID string) (int, error) {
	released := 0
	for {
		batch, err := s.repo.ListTickets(ctx, repository.TicketFilter{
			AgentID:  &agentID,
			Statuses: unresolvedStatuses(),
			Limit:    releaseBatchSize,
		})
		if err != nil {
			return released, apperrors.FromRepository(err, "ticket", nil)
		}
		progress := 0
		for i := range batch {
			ok, err := s.releaseOne(ctx, batch[i].ID, agentID)
			if err != nil {
				return released, err
			}
			if ok {
				progress++
			}
		}
		released += progress
		if progress == 0 || len(batch) < releaseBatchSize {
			return released, nil
		}
	}
}

func (s *LifecycleService) releaseOne(ctx context.Context, ticketID, agentID string) (bool, error) {
	released := false
	err := s.withLocks(ctx, []string{lock.TicketKey(ticketID)}, func() error {
		for attempt := 0; attempt < maxSaveAttempts; attempt++ {
			t, err := s.loadTicket(ctx, ticketID)
			if err != nil {
				return err
			}
			if !t.OwnedBy(agentID) || t.IsResolved() {
				return nil
			}
			old := t.Status
			t.AgentID = nil
			t.AssignedAt = nil
			s.transition(t, domain.TicketStatusOpen)
			t.UpdatedAt = s.now()
			err = s.saveTicket(ctx, t)
			if err == nil {
				released = true
				s.publishStatusChange(ctx, t.ID, old, t.Status)
				s.publish(ctx, events.EventTicketUnassigned, t.ID, events.TicketUnassignedPayload{
					PreviousAgentID: agentID,
					OldStatus:       old,
				})
				return nil
			}
			if !isConflict(err) {
				return err
			}
		}
		return apperrors.NewConcurrentModification("ticket", map[string]any{"ticket_id": ticketID})
	})
	return released, err
}

// Get returns a ticket with its messages.
func (s *LifecycleService) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.loadTicket(ctx, ticketID)
}

// TicketsOwnedBy lists tickets currently owned by agentID, oldest first, without messages.
func (s *LifecycleService) TicketsOwnedBy(ctx context.Context, agentID string, page Page) ([]domain.Ticket, error) {
	if _, err := s.loadAgent(ctx, agentID); err != nil {
		return nil, err
	}
	tickets, err := s.repo.ListTickets(ctx, repository.TicketFilter{
		AgentID: &agentID,
		Limit:   page.Limit,
		Offset:  page.Offset,
	})
	if err != nil {
		return nil, apperrors.FromRepository(err, "ticket", nil)
	}
	return tickets, nil
}

// TicketsQueuedFor lists OPEN unowned tickets waiting in groupID, oldest first.
func (s *LifecycleService) TicketsQueuedFor(ctx context.Context, groupID string, page Page) ([]domain.Ticket, error) {
	if err := s.requireGroup(ctx, groupID); err != nil {
		return nil, err
	}
	tickets, err := s.repo.ListTickets(ctx, repository.TicketFilter{
		GroupID:    &groupID,
		Unassigned: true,
		Statuses:   []domain.TicketStatus{domain.TicketStatusOpen},
		Limit:      page.Limit,
		Offset:     page.Offset,
	})
	if err != nil {
		return nil, apperrors.FromRepository(err, "ticket", nil)
	}
	return tickets, nil
}

// mutateFunc edits a loaded ticket. It returns a message to append, if any, and whether
// the ticket must be written at all.
type mutateFunc func(t *domain.Ticket) (*domain.Message, bool, error)

// mutate runs a read-modify-write of one ticket under its lock. The ticket fields and
// the new message are written together under the version check.
func (s *LifecycleService) mutate(ctx context.Context, ticketID string, fn mutateFunc) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := s.withLocks(ctx, []string{lock.TicketKey(ticketID)}, func() error {
		t, err := s.loadTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		old := t.Status
		msg, changed, err := fn(t)
		if err != nil {
			return err
		}
		ticket = t
		if !changed {
			return nil
		}
		if err := s.saveTicketWithMessage(ctx, t, msg); err != nil {
			return err
		}
		if msg != nil {
			t.Messages = append(t.Messages, *msg)
			s.publish(ctx, events.EventTicketMessageAdded, t.ID, events.TicketMessageAddedPayload{
				MessageID:     msg.ID,
				MessageType:   msg.Type,
				AuthorID:      msg.AuthorID,
				HasAttachment: msg.HasAttachment,
				BodyPreview:   preview(msg.Content),
			})
		}
		s.publishStatusChange(ctx, t.ID, old, t.Status)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// newMessage builds a message whose timestamp is strictly after the ticket's last one.
func (s *LifecycleService) newMessage(t *domain.Ticket, msgType domain.MessageType, authorID *string, content string, hasAttachment bool) *domain.Message {
	at := s.now()
	if last := t.LastMessageAt(); !at.After(last) {
		at = last.Add(time.Millisecond)
	}
	return &domain.Message{
		ID:            uuid.NewString(),
		TicketID:      t.ID,
		AuthorID:      authorID,
		Type:          msgType,
		Content:       content,
		HasAttachment: hasAttachment,
		CreatedAt:     at,
	}
}

func unresolvedStatuses() []domain.TicketStatus {
	return []domain.TicketStatus{
		domain.TicketStatusOpen,
		domain.TicketStatusPendingAgent,
		domain.TicketStatusInProgress,
		domain.TicketStatusWaitingCustomer,
	}
}

func isConflict(err error) bool {
	return errors.Is(err, apperrors.ErrConcurrentModification)
}

func preview(body string) string {
	const max = 120
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	return string(runes[:max]) + "..."
}
