package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/service"
)

// GroupsHandler serves assignment groups and their queues.
type GroupsHandler struct {
	directory *service.AgentDirectory
	lifecycle *service.LifecycleService
}

// NewGroupsHandler constructs handler.
func NewGroupsHandler(directory *service.AgentDirectory, lifecycle *service.LifecycleService) *GroupsHandler {
	return &GroupsHandler{directory: directory, lifecycle: lifecycle}
}

// ListGroups GET /groups.
func (h *GroupsHandler) ListGroups(c *fiber.Ctx) error {
	groups, err := h.directory.Groups(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.GroupResponse, 0, len(groups))
	for _, g := range groups {
		items = append(items, dto.GroupResponse{
			ID:          g.ID,
			Name:        g.Name,
			Description: g.Description,
			CreatedAt:   g.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// Queue GET /groups/:id/queue lists OPEN unowned tickets waiting in the group.
func (h *GroupsHandler) Queue(c *fiber.Ctx) error {
	tickets, err := h.lifecycle.TicketsQueuedFor(c.UserContext(), c.Params("id"), parsePage(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummaries(tickets)})
}
