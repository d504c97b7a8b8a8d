package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// AgentsHandler manages the roster endpoints.
type AgentsHandler struct {
	directory *service.AgentDirectory
	lifecycle *service.LifecycleService
}

// NewAgentsHandler constructs handler.
func NewAgentsHandler(directory *service.AgentDirectory, lifecycle *service.LifecycleService) *AgentsHandler {
	return &AgentsHandler{directory: directory, lifecycle: lifecycle}
}

// ListAgents GET /agents.
func (h *AgentsHandler) ListAgents(c *fiber.Ctx) error {
	agents, err := h.directory.List(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.AgentResponse, 0, len(agents))
	for i := range agents {
		items = append(items, agentResponse(&agents[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetAgent GET /agents/:id.
func (h *AgentsHandler) GetAgent(c *fiber.Ctx) error {
	agent, err := h.directory.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": agentResponse(agent)})
}

// OwnedTickets GET /agents/:id/tickets.
func (h *AgentsHandler) OwnedTickets(c *fiber.Ctx) error {
	tickets, err := h.lifecycle.TicketsOwnedBy(c.UserContext(), c.Params("id"), parsePage(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummaries(tickets)})
}

// CreateAgent POST /agents.
func (h *AgentsHandler) CreateAgent(c *fiber.Ctx) error {
	var req dto.CreateAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	input := service.AgentInput{
		ID:        req.ID,
		Name:      req.Name,
		Email:     req.Email,
		GroupIDs:  req.GroupIDs,
		AvatarURL: req.AvatarURL,
	}
	if req.Role != "" {
		role, err := domain.ParseAgentRole(req.Role)
		if err != nil {
			return err
		}
		input.Role = role
	}
	if req.Status != "" {
		status, err := domain.ParseAgentStatus(req.Status)
		if err != nil {
			return err
		}
		input.Status = status
	}
	agent, err := h.directory.Register(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": agentResponse(agent)})
}

// UpdateAgent PUT /agents/:id.
func (h *AgentsHandler) UpdateAgent(c *fiber.Ctx) error {
	var req dto.UpdateAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	update := service.AgentUpdate{
		Name:      req.Name,
		Email:     req.Email,
		GroupIDs:  req.GroupIDs,
		AvatarURL: req.AvatarURL,
	}
	if req.Role != nil {
		role, err := domain.ParseAgentRole(*req.Role)
		if err != nil {
			return err
		}
		update.Role = &role
	}
	agent, err := h.directory.Update(c.UserContext(), c.Params("id"), update)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": agentResponse(agent)})
}

// SetStatus PATCH /agents/:id/status. INACTIVE releases the agent's open tickets.
func (h *AgentsHandler) SetStatus(c *fiber.Ctx) error {
	var req dto.AgentStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	status, err := domain.ParseAgentStatus(req.Status)
	if err != nil {
		return err
	}
	agent, err := h.directory.SetStatus(c.UserContext(), c.Params("id"), status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": agentResponse(agent)})
}
