package pendingpayment

import (
	"time"

	"github.com/frahmantamala/coaching-payments/internal/core/compact"
	"github.com/frahmantamala/coaching-payments/internal/core/money"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// IsTerminal reports whether s closes the quote. A paid session still
// completes a cancelled or expired quote.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusExpired
}

// PendingPayment is a quoted charge awaiting settlement. Once completed the
// base amount, client identity and invoice number never change.
type PendingPayment struct {
	ID               string
	ClientName       string
	ClientEmail      string
	BaseAmount       money.Money
	BonusAmount      *money.Money
	TotalAmount      *money.Money
	Description      string
	Status           Status
	GatewaySessionID *string
	InvoiceNumber    string
	Notes            *string
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Completion is the sparse write applied by the completed transition.
// BonusAmount and TotalAmount are always written; Notes only when present.
type Completion struct {
	BonusAmount      money.Money
	TotalAmount      money.Money
	GatewaySessionID string
	Notes            compact.Option[string]
	CompletedAt      time.Time
}

// Document field names shared by the document stores.
const (
	FieldStatus           = "status"
	FieldBonusAmount      = "bonusAmount"
	FieldTotalAmount      = "totalAmount"
	FieldGatewaySessionID = "gatewaySessionId"
	FieldNotes            = "notes"
	FieldVersion          = "version"
	FieldUpdatedAt        = "updatedAt"
)

// Fields lists the completion write with money in cents. Notes stays absent
// unless set so it is never persisted as null or "".
func (c Completion) Fields() compact.Fields {
	return compact.Fields{
		FieldStatus:           compact.Some(string(StatusCompleted)),
		FieldBonusAmount:      compact.Some(c.BonusAmount.Cents()),
		FieldTotalAmount:      compact.Some(c.TotalAmount.Cents()),
		FieldGatewaySessionID: compact.Some(c.GatewaySessionID),
		FieldNotes:            c.Notes,
		FieldUpdatedAt:        compact.Some(c.CompletedAt),
	}
}

// Payload is the sparse completion write keyed by document field name.
func (c Completion) Payload() map[string]any {
	return compact.Compact(c.Fields())
}

// Apply mutates p in memory the same way stores persist a Completion.
func (p *PendingPayment) Apply(c Completion) {
	bonus, total, session := c.BonusAmount, c.TotalAmount, c.GatewaySessionID
	p.Status = StatusCompleted
	p.BonusAmount = &bonus
	p.TotalAmount = &total
	p.GatewaySessionID = &session
	if notes, ok := c.Notes.Get(); ok {
		p.Notes = &notes
	}
	p.Version++
	p.UpdatedAt = c.CompletedAt
}
