package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketCategoryChanged EventType = "ticket_category_changed"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventTicketQueued          EventType = "ticket_queued"
	EventTicketUnassigned      EventType = "ticket_unassigned"
	EventTicketMessageAdded    EventType = "ticket_message_added"
	EventTransferRequested     EventType = "transfer_requested"
	EventTransferApproved      EventType = "transfer_approved"
	EventAgentStatusChanged    EventType = "agent_status_changed"
	EventNoEligibleAgent       EventType = "assignment_no_eligible_agent"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	ActorID   *string     `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// New builds an event with a fresh id.
func New(eventType EventType, ticketID string, actorID *string, at time.Time, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		ActorID:   actorID,
		Timestamp: at,
		Payload:   payload,
	}
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Number   int64                 `json:"number"`
	GroupID  *string               `json:"group_id,omitempty"`
	Priority domain.TicketPriority `json:"priority"`
	Subject  string                `json:"subject"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}

// TicketCategoryChangedPayload payload.
type TicketCategoryChangedPayload struct {
	OldCategory string `json:"old_category"`
	NewCategory string `json:"new_category"`
}

// TicketAssignedPayload payload. Automatic is false for direct manual assignment.
type TicketAssignedPayload struct {
	AgentID   string  `json:"agent_id"`
	GroupID   *string `json:"group_id,omitempty"`
	Automatic bool    `json:"automatic"`
}

// TicketQueuedPayload is emitted when a group assignment found nobody to take the ticket.
type TicketQueuedPayload struct {
	GroupID string `json:"group_id"`
}

// TicketUnassignedPayload is emitted for each ticket released by agent deactivation.
type TicketUnassignedPayload struct {
	PreviousAgentID string              `json:"previous_agent_id"`
	OldStatus       domain.TicketStatus `json:"old_status"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	MessageID     string             `json:"message_id"`
	MessageType   domain.MessageType `json:"message_type"`
	AuthorID      *string            `json:"author_id,omitempty"`
	HasAttachment bool               `json:"has_attachment"`
	BodyPreview   string             `json:"body_preview"`
}

// TransferRequestedPayload payload. SupersededTargetID is set when an earlier proposal
// was replaced.
type TransferRequestedPayload struct {
	TargetAgentID      string  `json:"target_agent_id"`
	SupersededTargetID *string `json:"superseded_target_id,omitempty"`
}

// TransferApprovedPayload payload.
type TransferApprovedPayload struct {
	PreviousAgentID *string `json:"previous_agent_id,omitempty"`
	NewAgentID      string  `json:"new_agent_id"`
}

// AgentStatusChangedPayload payload. ReleasedTickets counts tickets returned to the queue.
type AgentStatusChangedPayload struct {
	AgentID         string             `json:"agent_id"`
	OldStatus       domain.AgentStatus `json:"old_status"`
	NewStatus       domain.AgentStatus `json:"new_status"`
	ReleasedTickets int                `json:"released_tickets"`
}

// NoEligibleAgentPayload payload.
type NoEligibleAgentPayload struct {
	GroupID *string `json:"group_id,omitempty"`
}
