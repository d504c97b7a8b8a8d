package dto

import (
	"encoding/json"
	"time"
)

// CreateTicketRequest payload. ID is optional; supplying one makes retries safe.
type CreateTicketRequest struct {
	ID             string  `json:"id"`
	Subject        string  `json:"subject"`
	RequesterName  string  `json:"requester_name"`
	RequesterEmail string  `json:"requester_email"`
	Priority       string  `json:"priority"`
	Category       string  `json:"category"`
	GroupID        *string `json:"group_id"`
	Message        *string `json:"message"`
	HasAttachment  bool    `json:"has_attachment"`
}

// AssignRequest payload for manual assignment.
type AssignRequest struct {
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
}

// ReplyRequest payload for an agent reply.
type ReplyRequest struct {
	Content       string `json:"content"`
	HasAttachment bool   `json:"has_attachment"`
	HelpNeeded    bool   `json:"help_needed"`
}

// MessageRequest payload for inbound messages and internal notes.
type MessageRequest struct {
	Type          string `json:"type"`
	Content       string `json:"content"`
	HasAttachment bool   `json:"has_attachment"`
}

// PriorityRequest payload.
type PriorityRequest struct {
	Priority string `json:"priority"`
}

// CategoryRequest payload.
type CategoryRequest struct {
	Category string `json:"category"`
}

// TransferRequest payload.
type TransferRequest struct {
	TargetAgentID string `json:"target_agent_id"`
}

// TicketSummary response, used in listings.
type TicketSummary struct {
	ID             string     `json:"id"`
	Number         int64      `json:"number"`
	Subject        string     `json:"subject"`
	Status         string     `json:"status"`
	PreviousStatus *string    `json:"previous_status,omitempty"`
	Priority       string     `json:"priority"`
	Category       string     `json:"category"`
	AgentID        *string    `json:"agent_id"`
	GroupID        *string    `json:"group_id"`
	HelpNeeded     bool       `json:"help_needed"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	AssignedAt     *time.Time `json:"assigned_at"`
	Version        int64      `json:"version"`
}

// TicketDetailResponse provides full ticket info including the thread.
type TicketDetailResponse struct {
	TicketSummary
	RequesterName  string            `json:"requester_name"`
	RequesterEmail string            `json:"requester_email"`
	Transfer       *TransferResponse `json:"transfer"`
	Messages       []MessageResponse `json:"messages"`
}

// TransferResponse describes a pending hand-off.
type TransferResponse struct {
	TargetAgentID string    `json:"target_agent_id"`
	RequestedBy   *string   `json:"requested_by"`
	RequestedAt   time.Time `json:"requested_at"`
}

// MessageResponse represents a thread message.
type MessageResponse struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	AuthorID      *string   `json:"author_id"`
	Content       string    `json:"content"`
	HasAttachment bool      `json:"has_attachment"`
	CreatedAt     time.Time `json:"created_at"`
}

// AssignResponse wraps the ticket with the queued flag; a queued ticket is a success.
type AssignResponse struct {
	Ticket TicketDetailResponse `json:"ticket"`
	Queued bool                 `json:"queued"`
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	ActorID   *string         `json:"actor_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
