package dto

import "time"

// CreateAgentRequest payload.
type CreateAgentRequest struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Role      string   `json:"role"`
	Status    string   `json:"status"`
	GroupIDs  []string `json:"group_ids"`
	AvatarURL string   `json:"avatar_url"`
}

// UpdateAgentRequest payload; absent fields are left unchanged.
type UpdateAgentRequest struct {
	Name      *string   `json:"name"`
	Email     *string   `json:"email"`
	Role      *string   `json:"role"`
	GroupIDs  *[]string `json:"group_ids"`
	AvatarURL *string   `json:"avatar_url"`
}

// AgentStatusRequest payload.
type AgentStatusRequest struct {
	Status string `json:"status"`
}

// AgentResponse represents an agent.
type AgentResponse struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	Role           string     `json:"role"`
	Status         string     `json:"status"`
	GroupIDs       []string   `json:"group_ids"`
	LastAssignedAt *time.Time `json:"last_assigned_at"`
	AvatarURL      string     `json:"avatar_url,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// GroupResponse represents an assignment group.
type GroupResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
