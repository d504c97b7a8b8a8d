package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
)

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	logger *zap.Logger
	cfg    config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		logger: logger,
		cfg:    cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	for _, eventType := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketStatusChanged,
		events.EventTicketPriorityChanged,
		events.EventTicketCategoryChanged,
		events.EventTicketUnassigned,
		events.EventAgentStatusChanged,
	} {
		dispatcher.Subscribe(eventType, n.handleAudit)
	}
	dispatcher.Subscribe(events.EventTicketAssigned, n.handleOwnerChange)
	dispatcher.Subscribe(events.EventTransferApproved, n.handleOwnerChange)
	dispatcher.Subscribe(events.EventTransferRequested, n.handleTransferRequested)
	dispatcher.Subscribe(events.EventTicketQueued, n.handleQueued)
	dispatcher.Subscribe(events.EventNoEligibleAgent, n.handleQueued)
	dispatcher.Subscribe(events.EventTicketMessageAdded, n.handleTicketMessageAdded)
}

func (n *NotificationService) handleAudit(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type), n.fields(event)...)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleOwnerChange(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type), n.fields(event)...)
	n.sendEmailNotificationStub(ctx, event)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleTransferRequested(ctx context.Context, event events.Event) error {
	fields := n.fields(event)
	if payload, ok := event.Payload.(events.TransferRequestedPayload); ok && payload.SupersededTargetID != nil {
		fields = append(fields, zap.String("superseded_target_id", *payload.SupersededTargetID))
	}
	n.logger.Info(string(event.Type), fields...)
	n.sendEmailNotificationStub(ctx, event)
	return nil
}

// handleQueued warns because a ticket is waiting with nobody able to take it.
func (n *NotificationService) handleQueued(ctx context.Context, event events.Event) error {
	n.logger.Warn(string(event.Type), n.fields(event)...)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleTicketMessageAdded(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type), n.fields(event)...)
	if payload, ok := event.Payload.(events.TicketMessageAddedPayload); ok && payload.MessageType == domain.MessageTypeOutbound {
		n.sendEmailNotificationStub(ctx, event)
	}
	return nil
}

func (n *NotificationService) fields(event events.Event) []zap.Field {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.Any("payload", event.Payload),
	}
	if event.TicketID != "" {
		fields = append(fields, zap.String("ticket_id", event.TicketID))
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", *event.ActorID))
	}
	return fields
}

func (n *NotificationService) sendEmailNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}
