package paymentgateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type SessionStatus string

const (
	SessionStatusOpen     SessionStatus = "open"
	SessionStatusComplete SessionStatus = "complete"
	SessionStatusExpired  SessionStatus = "expired"
)

const (
	PaymentStatusPaid              = "paid"
	PaymentStatusUnpaid            = "unpaid"
	PaymentStatusNoPaymentRequired = "no_payment_required"
)

// Metadata keys written on the checkout session when it is created.
const (
	MetadataPendingPaymentID = "pendingPaymentId"
	MetadataClientName       = "clientName"
	MetadataClientEmail      = "clientEmail"
	MetadataInvoiceNumber    = "invoiceNumber"
	MetadataBaseAmount       = "baseAmount"
	MetadataDescription      = "description"
)

const ExpandPaymentIntent = "payment_intent"

// Session is a checkout session as reported by the gateway. Amounts are in
// minor units.
type Session struct {
	ID                 string            `json:"id"`
	AmountTotal        int64             `json:"amount_total"`
	Currency           string            `json:"currency"`
	Status             SessionStatus     `json:"status"`
	PaymentStatus      string            `json:"payment_status"`
	Metadata           map[string]string `json:"metadata"`
	CustomerDetails    *CustomerDetails  `json:"customer_details"`
	PaymentIntent      *PaymentIntent    `json:"payment_intent"`
	PaymentMethodTypes []string          `json:"payment_method_types"`
	Created            int64             `json:"created"`
}

type CustomerDetails struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// PaymentIntent decodes from either its id or the expanded object.
type PaymentIntent struct {
	ID           string `json:"id"`
	Amount       int64  `json:"amount"`
	Status       string `json:"status"`
	LatestCharge string `json:"-"`
}

func (pi *PaymentIntent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &pi.ID)
	}

	var raw struct {
		ID           string          `json:"id"`
		Amount       int64           `json:"amount"`
		Status       string          `json:"status"`
		LatestCharge json.RawMessage `json:"latest_charge"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal payment intent: %w", err)
	}
	pi.ID, pi.Amount, pi.Status = raw.ID, raw.Amount, raw.Status

	charge := bytes.TrimSpace(raw.LatestCharge)
	switch {
	case len(charge) == 0 || string(charge) == "null":
	case charge[0] == '"':
		if err := json.Unmarshal(charge, &pi.LatestCharge); err != nil {
			return fmt.Errorf("unmarshal latest charge: %w", err)
		}
	default:
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(charge, &obj); err != nil {
			return fmt.Errorf("unmarshal latest charge: %w", err)
		}
		pi.LatestCharge = obj.ID
	}
	return nil
}

// Paid reports whether the session settled. An open checkout, or one whose
// payment is still processing, is not paid.
func (s *Session) Paid() bool {
	if s.Status != SessionStatusComplete {
		return false
	}
	return s.PaymentStatus == PaymentStatusPaid || s.PaymentStatus == PaymentStatusNoPaymentRequired
}

// TransactionID prefers the settled charge, then the payment intent, then
// the session itself.
func (s *Session) TransactionID() string {
	if s.PaymentIntent != nil {
		if s.PaymentIntent.LatestCharge != "" {
			return s.PaymentIntent.LatestCharge
		}
		if s.PaymentIntent.ID != "" {
			return s.PaymentIntent.ID
		}
	}
	return s.ID
}

func (s *Session) MetadataValue(key string) string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata[key]
}

// CreatedAt falls back to now when the gateway omitted the timestamp.
func (s *Session) CreatedAt() time.Time {
	if s.Created == 0 {
		return time.Now().UTC()
	}
	return time.Unix(s.Created, 0).UTC()
}

// PaymentMethod returns the first listed payment method type.
func (s *Session) PaymentMethod() string {
	if len(s.PaymentMethodTypes) == 0 {
		return "card"
	}
	return s.PaymentMethodTypes[0]
}

type ErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
