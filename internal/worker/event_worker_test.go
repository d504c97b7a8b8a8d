package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/service"
)

type countingDispatcher struct {
	handlers map[events.EventType]int
}

func (d *countingDispatcher) Publish(context.Context, events.Event) error { return nil }

func (d *countingDispatcher) Subscribe(eventType events.EventType, _ events.EventHandler) {
	d.handlers[eventType]++
}

func TestStartEventWorkers_RegistersHistoryAndNotifications(t *testing.T) {
	dispatcher := &countingDispatcher{handlers: map[events.EventType]int{}}
	engine := service.NewEngine(service.Dependencies{Repo: repository.NewMemoryRepository()})

	StartEventWorkers(dispatcher, zap.NewNop(), map[string]Subscriber{
		"history":       service.NewHistoryService(repository.NewMemoryTicketHistory(), engine.Lifecycle, nil),
		"notifications": service.NewNotificationService(nil, config.NotificationConfig{}),
	})

	assert.Equal(t, 2, dispatcher.handlers[events.EventTicketCreated])
	assert.Equal(t, 2, dispatcher.handlers[events.EventTicketMessageAdded])
	assert.Equal(t, 1, dispatcher.handlers[events.EventAgentStatusChanged])
}

func TestStartEventWorkers_NilDispatcher(t *testing.T) {
	assert.NotPanics(t, func() {
		StartEventWorkers(nil, nil, map[string]Subscriber{
			"notifications": service.NewNotificationService(nil, config.NotificationConfig{}),
		})
	})
}
