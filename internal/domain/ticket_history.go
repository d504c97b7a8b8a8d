package domain

import "time"

// TicketHistory is an immutable audit trail entry. One is written for every domain event
// that concerns a ticket; Payload holds the event payload as JSON.
type TicketHistory struct {
	ID        string
	TicketID  string
	ActorID   *string
	EventType string
	Payload   []byte
	CreatedAt time.Time
}
