package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/frahmantamala/coaching-payments/internal/core/events"
	"github.com/frahmantamala/coaching-payments/internal/payment"
)

// Dispatcher sends confirmation emails. It never fails upward: every outcome,
// including a panicking mailer, is reported through the NotifyResult.
type Dispatcher struct {
	mailer   Mailer
	eventBus *events.EventBus
	logger   *slog.Logger
}

func NewDispatcher(mailer Mailer, eventBus *events.EventBus, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		mailer:   mailer,
		eventBus: eventBus,
		logger:   logger,
	}
}

func (d *Dispatcher) Notify(ctx context.Context, clientEmail string, receipt *payment.Receipt) (result payment.NotifyResult) {
	clientEmail = strings.TrimSpace(clientEmail)
	if clientEmail == "" || receipt == nil || d.mailer == nil {
		return payment.NotifyResult{Skipped: true}
	}

	msg := NewMessage(clientEmail, receipt)
	log := d.logger.With("session_id", receipt.SessionID, "invoice_number", receipt.InvoiceNumber)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("mailer panic: %v", r)
			log.Error("confirmation email panicked", "panic", r)
			d.failed(ctx, log, msg, err)
			result = payment.NotifyResult{Err: err}
		}
	}()

	if err := d.mailer.Send(ctx, msg); err != nil {
		log.Error("failed to send confirmation email", "client_email", clientEmail, "error", err)
		d.failed(ctx, log, msg, err)
		return payment.NotifyResult{Err: err}
	}

	return payment.NotifyResult{Success: true}
}

func (d *Dispatcher) failed(ctx context.Context, log *slog.Logger, msg Message, cause error) {
	if d.eventBus == nil {
		return
	}
	event := events.NewNotificationFailedEvent(msg.Receipt.SessionID, msg.To, msg.Receipt.InvoiceNumber, cause.Error(), msg)
	if err := d.eventBus.Publish(ctx, event); err != nil {
		log.Warn("failed to publish notification failed event", "error", err)
	}
}
