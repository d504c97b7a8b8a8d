package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
)

const maxPageSize = 200

func parsePage(c *fiber.Ctx) service.Page {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return service.Page{Limit: pageSize, Offset: (page - 1) * pageSize}
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	summary := dto.TicketSummary{
		ID:         ticket.ID,
		Number:     ticket.Number,
		Subject:    ticket.Subject,
		Status:     string(ticket.Status),
		Priority:   string(ticket.Priority),
		Category:   ticket.Category,
		AgentID:    ticket.AgentID,
		GroupID:    ticket.GroupID,
		HelpNeeded: ticket.HelpNeeded,
		CreatedAt:  ticket.CreatedAt,
		UpdatedAt:  ticket.UpdatedAt,
		AssignedAt: ticket.AssignedAt,
		Version:    ticket.Version,
	}
	if ticket.PreviousStatus != nil {
		prev := string(*ticket.PreviousStatus)
		summary.PreviousStatus = &prev
	}
	return summary
}

func ticketSummaries(tickets []domain.Ticket) []dto.TicketSummary {
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return items
}

func ticketDetail(ticket *domain.Ticket) dto.TicketDetailResponse {
	msgs := make([]dto.MessageResponse, 0, len(ticket.Messages))
	for _, msg := range ticket.Messages {
		msgs = append(msgs, dto.MessageResponse{
			ID:            msg.ID,
			Type:          string(msg.Type),
			AuthorID:      msg.AuthorID,
			Content:       msg.Content,
			HasAttachment: msg.HasAttachment,
			CreatedAt:     msg.CreatedAt,
		})
	}
	detail := dto.TicketDetailResponse{
		TicketSummary:  ticketSummary(ticket),
		RequesterName:  ticket.RequesterName,
		RequesterEmail: ticket.RequesterEmail,
		Messages:       msgs,
	}
	if ticket.Transfer != nil {
		detail.Transfer = &dto.TransferResponse{
			TargetAgentID: ticket.Transfer.TargetAgentID,
			RequestedBy:   ticket.Transfer.RequestedBy,
			RequestedAt:   ticket.Transfer.RequestedAt,
		}
	}
	return detail
}

func agentResponse(agent *domain.Agent) dto.AgentResponse {
	groups := agent.GroupIDs
	if groups == nil {
		groups = []string{}
	}
	return dto.AgentResponse{
		ID:             agent.ID,
		Name:           agent.Name,
		Email:          agent.Email,
		Role:           string(agent.Role),
		Status:         string(agent.Status),
		GroupIDs:       groups,
		LastAssignedAt: agent.LastAssignedAt,
		AvatarURL:      agent.AvatarURL,
		CreatedAt:      agent.CreatedAt,
		UpdatedAt:      agent.UpdatedAt,
	}
}

func historyResponses(entries []domain.TicketHistory) []dto.TicketHistoryResponse {
	resp := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		payload := entry.Payload
		if len(payload) == 0 {
			payload = []byte("{}")
		}
		resp = append(resp, dto.TicketHistoryResponse{
			ID:        entry.ID,
			EventType: entry.EventType,
			ActorID:   entry.ActorID,
			Payload:   payload,
			CreatedAt: entry.CreatedAt,
		})
	}
	return resp
}
