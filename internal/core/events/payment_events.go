package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentConfirmed   = "payment.confirmed"
	EventTypeNotificationFailed = "notification.failed"
)

// PaymentConfirmedEvent is published once a confirmation produced a receipt.
type PaymentConfirmedEvent struct {
	BaseEvent
	SessionID        string `json:"session_id"`
	PendingPaymentID string `json:"pending_payment_id,omitempty"`
	InvoiceNumber    string `json:"invoice_number"`
	ClientEmail      string `json:"client_email"`
	TransactionID    string `json:"transaction_id"`
	TotalCents       int64  `json:"total_cents"`
	BaseCents        int64  `json:"base_cents"`
	BonusCents       int64  `json:"bonus_cents"`
	Receipt          any    `json:"receipt"`
}

func NewPaymentConfirmedEvent(sessionID, pendingPaymentID, invoiceNumber, clientEmail, transactionID string, totalCents, baseCents, bonusCents int64, receipt any) *PaymentConfirmedEvent {
	return &PaymentConfirmedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentConfirmed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"session_id":         sessionID,
				"pending_payment_id": pendingPaymentID,
				"invoice_number":     invoiceNumber,
				"client_email":       clientEmail,
				"transaction_id":     transactionID,
				"total_cents":        totalCents,
				"base_cents":         baseCents,
				"bonus_cents":        bonusCents,
			},
		},
		SessionID:        sessionID,
		PendingPaymentID: pendingPaymentID,
		InvoiceNumber:    invoiceNumber,
		ClientEmail:      clientEmail,
		TransactionID:    transactionID,
		TotalCents:       totalCents,
		BaseCents:        baseCents,
		BonusCents:       bonusCents,
		Receipt:          receipt,
	}
}

// NotificationFailedEvent records a confirmation email that could not be sent.
type NotificationFailedEvent struct {
	BaseEvent
	SessionID     string `json:"session_id"`
	ClientEmail   string `json:"client_email"`
	InvoiceNumber string `json:"invoice_number"`
	Reason        string `json:"reason"`
	// Message is the email that failed, kept so it can be resent.
	Message any `json:"message"`
}

func NewNotificationFailedEvent(sessionID, clientEmail, invoiceNumber, reason string, message any) *NotificationFailedEvent {
	return &NotificationFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeNotificationFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"session_id":     sessionID,
				"client_email":   clientEmail,
				"invoice_number": invoiceNumber,
				"reason":         reason,
			},
		},
		SessionID:     sessionID,
		ClientEmail:   clientEmail,
		InvoiceNumber: invoiceNumber,
		Reason:        reason,
		Message:       message,
	}
}
