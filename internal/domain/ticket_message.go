package domain

import (
	"fmt"
	"strings"
	"time"
)

// MessageType differentiates customer traffic, replies and notes.
type MessageType string

const (
	MessageTypeInbound      MessageType = "INBOUND"
	MessageTypeOutbound     MessageType = "OUTBOUND"
	MessageTypeInternalNote MessageType = "INTERNAL_NOTE"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeInbound, MessageTypeOutbound, MessageTypeInternalNote:
		return true
	}
	return false
}

// ParseMessageType converts raw input into a MessageType, rejecting unknown values.
func ParseMessageType(raw string) (MessageType, error) {
	t := MessageType(strings.ToUpper(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: message type %q", ErrUnknownValue, raw)
	}
	return t, nil
}

// Message captures communications in a ticket thread. Immutable once appended.
type Message struct {
	ID            string
	TicketID      string
	AuthorID      *string
	Type          MessageType
	Content       string
	HasAttachment bool
	CreatedAt     time.Time
}

// Clone returns a copy that shares no pointers with m.
func (m Message) Clone() Message {
	m.AuthorID = clonePtr(m.AuthorID)
	return m
}
