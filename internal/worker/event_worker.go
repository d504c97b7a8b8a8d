package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/events"
)

// Subscriber attaches its event handlers to a dispatcher.
type Subscriber interface {
	RegisterHandlers(dispatcher events.Dispatcher)
}

// StartEventWorkers registers the audit trail, notification and any other subscribers
// on dispatcher. Handlers run on the dispatcher's goroutine for each published event.
func StartEventWorkers(dispatcher events.Dispatcher, logger *zap.Logger, subscribers map[string]Subscriber) {
	if dispatcher == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	for name, sub := range subscribers {
		if sub == nil {
			continue
		}
		sub.RegisterHandlers(dispatcher)
		logger.Debug("event subscriber registered", zap.String("subscriber", name))
	}
}
