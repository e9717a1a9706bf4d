package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/coaching-payments/internal/core/events"
)

// ConfirmedSink receives every confirmed payment, for example to archive the
// receipt or forward it to downstream consumers.
type ConfirmedSink interface {
	Name() string
	HandlePaymentConfirmed(ctx context.Context, event *events.PaymentConfirmedEvent) error
}

type EventHandler struct {
	sinks  []ConfirmedSink
	logger *slog.Logger
}

func NewEventHandler(logger *slog.Logger, sinks ...ConfirmedSink) *EventHandler {
	return &EventHandler{
		sinks:  sinks,
		logger: logger,
	}
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	names := make([]string, 0, len(h.sinks))
	for _, sink := range h.sinks {
		eventBus.Subscribe(events.EventTypePaymentConfirmed, h.handlerFor(sink))
		names = append(names, sink.Name())
	}

	h.logger.Info("payment event handlers registered",
		"event_type", events.EventTypePaymentConfirmed,
		"sinks", names)
}

func (h *EventHandler) handlerFor(sink ConfirmedSink) events.Handler {
	return func(ctx context.Context, event events.Event) error {
		confirmed, ok := event.(*events.PaymentConfirmedEvent)
		if !ok {
			h.logger.Error("invalid event type for payment confirmed handler", "event_type", event.EventType())
			return fmt.Errorf("expected PaymentConfirmedEvent, got %T", event)
		}

		if err := sink.HandlePaymentConfirmed(ctx, confirmed); err != nil {
			h.logger.Error("payment confirmed sink failed",
				"sink", sink.Name(),
				"session_id", confirmed.SessionID,
				"event_id", confirmed.EventID(),
				"error", err)
			return fmt.Errorf("%s failed for session %s: %w", sink.Name(), confirmed.SessionID, err)
		}

		h.logger.Info("payment confirmed event handled",
			"sink", sink.Name(),
			"session_id", confirmed.SessionID,
			"event_id", confirmed.EventID())
		return nil
	}
}
