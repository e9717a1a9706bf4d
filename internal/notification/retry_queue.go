package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/frahmantamala/coaching-payments/internal/broker"
	"github.com/frahmantamala/coaching-payments/internal/core/events"
)

// RetryQueue parks failed confirmation emails on a Kafka topic and resends
// them from the notifications worker.
type RetryQueue struct {
	publisher   broker.Publisher
	mailer      Mailer
	topic       string
	maxAttempts int
	logger      *slog.Logger
}

func NewRetryQueue(publisher broker.Publisher, mailer Mailer, topic string, maxAttempts int, logger *slog.Logger) *RetryQueue {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &RetryQueue{
		publisher:   publisher,
		mailer:      mailer,
		topic:       topic,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// RegisterEventHandlers enqueues every failed notification published on bus.
func (q *RetryQueue) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypeNotificationFailed, q.onNotificationFailed)
}

func (q *RetryQueue) onNotificationFailed(ctx context.Context, event events.Event) error {
	failed, ok := event.(*events.NotificationFailedEvent)
	if !ok {
		return fmt.Errorf("expected NotificationFailedEvent, got %T", event)
	}
	msg, ok := failed.Message.(Message)
	if !ok {
		return fmt.Errorf("notification failed event for session %s carries no message", failed.SessionID)
	}
	msg.Attempts++
	return q.Enqueue(ctx, msg)
}

func (q *RetryQueue) Enqueue(ctx context.Context, msg Message) error {
	if err := q.publisher.Publish(ctx, q.topic, msg.Receipt.SessionID, msg); err != nil {
		return fmt.Errorf("failed to enqueue notification retry: %w", err)
	}
	q.logger.Info("notification queued for retry",
		"session_id", msg.Receipt.SessionID,
		"attempts", msg.Attempts)
	return nil
}

// HandleRetry resends one queued email. A failed resend is queued again until
// maxAttempts is reached, after which the message is dropped and logged.
func (q *RetryQueue) HandleRetry(ctx context.Context, km kafka.Message) error {
	var msg Message
	if err := json.Unmarshal(km.Value, &msg); err != nil {
		return fmt.Errorf("unmarshal notification retry: %w", err)
	}
	log := q.logger.With("session_id", msg.Receipt.SessionID, "attempts", msg.Attempts)

	err := q.mailer.Send(ctx, msg)
	if err == nil {
		log.Info("confirmation email resent", "client_email", msg.To)
		return nil
	}

	msg.Attempts++
	if msg.Attempts >= q.maxAttempts {
		log.Error("giving up on confirmation email",
			"client_email", msg.To,
			"invoice_number", msg.Receipt.InvoiceNumber,
			"error", err)
		return nil
	}

	log.Warn("confirmation email resend failed", "error", err)
	return q.Enqueue(ctx, msg)
}
