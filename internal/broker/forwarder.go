package broker

import (
	"context"

	"github.com/frahmantamala/coaching-payments/internal/core/events"
)

type Publisher interface {
	Publish(ctx context.Context, topic, key string, v any) error
}

// Forwarder relays confirmed payments to a Kafka topic for downstream
// consumers such as scheduling and onboarding.
type Forwarder struct {
	publisher Publisher
	topic     string
}

func NewForwarder(publisher Publisher, topic string) *Forwarder {
	return &Forwarder{publisher: publisher, topic: topic}
}

func (f *Forwarder) Name() string {
	return "kafka-forwarder"
}

func (f *Forwarder) HandlePaymentConfirmed(ctx context.Context, event *events.PaymentConfirmedEvent) error {
	return f.publisher.Publish(ctx, f.topic, event.SessionID, event)
}
