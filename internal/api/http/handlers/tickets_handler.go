package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// TicketsHandler exposes the lifecycle, assignment and transfer operations.
type TicketsHandler struct {
	engine  *service.Engine
	history *service.HistoryService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(engine *service.Engine, history *service.HistoryService) *TicketsHandler {
	return &TicketsHandler{engine: engine, history: history}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	var priority domain.TicketPriority
	if req.Priority != "" {
		p, err := domain.ParseTicketPriority(req.Priority)
		if err != nil {
			return err
		}
		priority = p
	}
	ticket, err := h.engine.Lifecycle.Create(c.UserContext(), service.CreateTicketInput{
		ID:                   req.ID,
		Subject:              req.Subject,
		RequesterName:        req.RequesterName,
		RequesterEmail:       req.RequesterEmail,
		Priority:             priority,
		Category:             req.Category,
		GroupID:              req.GroupID,
		InitialMessage:       req.Message,
		InitialHasAttachment: req.HasAttachment,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.engine.Lifecycle.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// History GET /tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	entries, err := h.history.ListByTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": historyResponses(entries)})
}

// AutoAssign POST /tickets/:id/auto-assign.
func (h *TicketsHandler) AutoAssign(c *fiber.Ctx) error {
	ticket, err := h.engine.Assignment.AutoAssign(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// Assign POST /tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	kind, err := service.ParseTargetKind(req.TargetType)
	if err != nil {
		return err
	}
	result, err := h.engine.Assignment.ManualAssign(c.UserContext(), c.Params("id"), service.AssignTarget{
		Kind: kind,
		ID:   req.TargetID,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AssignResponse{
		Ticket: ticketDetail(result.Ticket),
		Queued: result.Queued,
	}})
}

// Reply POST /tickets/:id/replies. The author is the calling agent.
func (h *TicketsHandler) Reply(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.ReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.engine.Lifecycle.RecordOutgoingMessage(c.UserContext(), c.Params("id"),
		principal.Agent.ID, req.Content, req.HasAttachment, req.HelpNeeded)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// AddMessage POST /tickets/:id/messages. Notes are attributed to the calling agent;
// inbound messages carry no author.
func (h *TicketsHandler) AddMessage(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.MessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	msgType, err := domain.ParseMessageType(req.Type)
	if err != nil {
		return err
	}
	ticket, err := h.engine.Lifecycle.RecordInboundOrNote(c.UserContext(), c.Params("id"), service.MessageInput{
		Type:          msgType,
		AuthorID:      &principal.Agent.ID,
		Content:       req.Content,
		HasAttachment: req.HasAttachment,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// Resolve POST /tickets/:id/resolve.
func (h *TicketsHandler) Resolve(c *fiber.Ctx) error {
	ticket, err := h.engine.Lifecycle.Resolve(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// Reopen POST /tickets/:id/reopen.
func (h *TicketsHandler) Reopen(c *fiber.Ctx) error {
	ticket, err := h.engine.Lifecycle.Reopen(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// UpdatePriority PATCH /tickets/:id/priority.
func (h *TicketsHandler) UpdatePriority(c *fiber.Ctx) error {
	var req dto.PriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	priority, err := domain.ParseTicketPriority(req.Priority)
	if err != nil {
		return err
	}
	ticket, err := h.engine.Lifecycle.UpdatePriority(c.UserContext(), c.Params("id"), priority)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// UpdateCategory PATCH /tickets/:id/category.
func (h *TicketsHandler) UpdateCategory(c *fiber.Ctx) error {
	var req dto.CategoryRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.engine.Lifecycle.UpdateCategory(c.UserContext(), c.Params("id"), req.Category)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// RequestTransfer POST /tickets/:id/transfer.
func (h *TicketsHandler) RequestTransfer(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.TransferRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.engine.Transfers.Request(c.UserContext(), c.Params("id"), &principal.Agent.ID, req.TargetAgentID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// ApproveTransfer POST /tickets/:id/transfer/approve.
func (h *TicketsHandler) ApproveTransfer(c *fiber.Ctx) error {
	ticket, err := h.engine.Transfers.Approve(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}
