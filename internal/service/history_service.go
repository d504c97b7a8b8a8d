package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// HistoryService turns ticket events into the audit trail.
type HistoryService struct {
	repo      repository.TicketHistoryRepository
	lifecycle *LifecycleService
	logger    *zap.Logger
}

// NewHistoryService builds the service.
func NewHistoryService(repo repository.TicketHistoryRepository, lifecycle *LifecycleService, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{repo: repo, lifecycle: lifecycle, logger: logger}
}

// RegisterHandlers subscribes the recorder to every ticket-scoped event.
func (s *HistoryService) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	for _, eventType := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketStatusChanged,
		events.EventTicketPriorityChanged,
		events.EventTicketCategoryChanged,
		events.EventTicketAssigned,
		events.EventTicketQueued,
		events.EventTicketUnassigned,
		events.EventTicketMessageAdded,
		events.EventTransferRequested,
		events.EventTransferApproved,
		events.EventNoEligibleAgent,
	} {
		dispatcher.Subscribe(eventType, s.record)
	}
}

func (s *HistoryService) record(ctx context.Context, event events.Event) error {
	if event.TicketID == "" {
		return nil
	}
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}
	entry := &domain.TicketHistory{
		ID:        event.ID,
		TicketID:  event.TicketID,
		ActorID:   event.ActorID,
		EventType: string(event.Type),
		Payload:   payload,
		CreatedAt: event.Timestamp,
	}
	if err := s.repo.Record(ctx, entry); err != nil {
		s.logger.Warn("ticket history not recorded",
			zap.String("ticket_id", event.TicketID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		return err
	}
	return nil
}

// ListByTicket returns the audit trail of an existing ticket, oldest first.
func (s *HistoryService) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	if _, err := s.lifecycle.Get(ctx, ticketID); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.FromRepository(err, "ticket history", map[string]any{"ticket_id": ticketID})
	}
	return entries, nil
}
