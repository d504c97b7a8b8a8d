package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// AgentRole enumerates internal operator roles.
type AgentRole string

const (
	AgentRoleAdmin AgentRole = "ADMIN"
	AgentRoleAgent AgentRole = "AGENT"
)

// Valid reports whether r is a known role.
func (r AgentRole) Valid() bool {
	switch r {
	case AgentRoleAdmin, AgentRoleAgent:
		return true
	}
	return false
}

// ParseAgentRole converts raw input into an AgentRole, rejecting unknown values.
func ParseAgentRole(raw string) (AgentRole, error) {
	r := AgentRole(strings.ToUpper(strings.TrimSpace(raw)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: agent role %q", ErrUnknownValue, raw)
	}
	return r, nil
}

// AgentStatus enumerates account activity states.
type AgentStatus string

const (
	AgentStatusActive    AgentStatus = "ACTIVE"
	AgentStatusSuspended AgentStatus = "SUSPENDED"
	AgentStatusInactive  AgentStatus = "INACTIVE"
)

// Valid reports whether s is a known status.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusActive, AgentStatusSuspended, AgentStatusInactive:
		return true
	}
	return false
}

// ParseAgentStatus converts raw input into an AgentStatus, rejecting unknown values.
func ParseAgentStatus(raw string) (AgentStatus, error) {
	s := AgentStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: agent status %q", ErrUnknownValue, raw)
	}
	return s, nil
}

// Agent models a support agent or administrator.
type Agent struct {
	ID             string
	Name           string
	Email          string
	Role           AgentRole
	Status         AgentStatus
	GroupIDs       []string
	LastAssignedAt *time.Time
	AvatarURL      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Version        int64
}

// InGroup reports whether the agent belongs to groupID.
func (a *Agent) InGroup(groupID string) bool {
	return slices.Contains(a.GroupIDs, groupID)
}

// Assignable reports whether the agent may receive tickets at all.
func (a *Agent) Assignable() bool {
	return a.Role == AgentRoleAgent && a.Status == AgentStatusActive
}

// Clone returns a deep copy.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	c := *a
	c.GroupIDs = slices.Clone(a.GroupIDs)
	c.LastAssignedAt = clonePtr(a.LastAssignedAt)
	return &c
}
