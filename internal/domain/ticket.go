package domain

import (
	"fmt"
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen            TicketStatus = "OPEN"
	TicketStatusPendingAgent    TicketStatus = "PENDING_AGENT"
	TicketStatusInProgress      TicketStatus = "IN_PROGRESS"
	TicketStatusWaitingCustomer TicketStatus = "WAITING_CUSTOMER"
	TicketStatusResolved        TicketStatus = "RESOLVED"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusPendingAgent, TicketStatusInProgress,
		TicketStatusWaitingCustomer, TicketStatusResolved:
		return true
	}
	return false
}

// ParseTicketStatus converts raw input into a TicketStatus, rejecting unknown values.
func ParseTicketStatus(raw string) (TicketStatus, error) {
	s := TicketStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: ticket status %q", ErrUnknownValue, raw)
	}
	return s, nil
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityNormal TicketPriority = "NORMAL"
	TicketPriorityHigh   TicketPriority = "HIGH"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityNormal, TicketPriorityHigh:
		return true
	}
	return false
}

// ParseTicketPriority converts raw input into a TicketPriority, rejecting unknown values.
func ParseTicketPriority(raw string) (TicketPriority, error) {
	p := TicketPriority(strings.ToUpper(strings.TrimSpace(raw)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: ticket priority %q", ErrUnknownValue, raw)
	}
	return p, nil
}

// TransferProposal is a pending hand-off of a ticket to another agent.
type TransferProposal struct {
	TargetAgentID string
	RequestedBy   *string
	RequestedAt   time.Time
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID             string
	Number         int64
	Subject        string
	RequesterName  string
	RequesterEmail string
	Status         TicketStatus
	PreviousStatus *TicketStatus
	Priority       TicketPriority
	Category       string
	AgentID        *string
	GroupID        *string
	HelpNeeded     bool
	Messages       []Message
	Transfer       *TransferProposal
	CreatedAt      time.Time
	UpdatedAt      time.Time
	AssignedAt     *time.Time
	Version        int64
}

// IsResolved reports whether the ticket is in the terminal working state.
func (t *Ticket) IsResolved() bool {
	return t.Status == TicketStatusResolved
}

// OwnedBy reports whether agentID currently owns the ticket.
func (t *Ticket) OwnedBy(agentID string) bool {
	return t.AgentID != nil && *t.AgentID == agentID
}

// LastMessageAt returns the creation time of the newest message, or the zero time.
func (t *Ticket) LastMessageAt() time.Time {
	if len(t.Messages) == 0 {
		return time.Time{}
	}
	return t.Messages[len(t.Messages)-1].CreatedAt
}

// HasMessage reports whether the thread already holds a message with id.
func (t *Ticket) HasMessage(id string) bool {
	for i := range t.Messages {
		if t.Messages[i].ID == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	c.PreviousStatus = clonePtr(t.PreviousStatus)
	c.AgentID = clonePtr(t.AgentID)
	c.GroupID = clonePtr(t.GroupID)
	c.AssignedAt = clonePtr(t.AssignedAt)
	if t.Messages != nil {
		c.Messages = make([]Message, len(t.Messages))
		for i := range t.Messages {
			c.Messages[i] = t.Messages[i].Clone()
		}
	}
	if t.Transfer != nil {
		tr := *t.Transfer
		tr.RequestedBy = clonePtr(t.Transfer.RequestedBy)
		c.Transfer = &tr
	}
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
