package payment

import (
	"context"
	"errors"

	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/invoice"
	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/pendingpayment"
)

var (
	// ErrPaymentAlreadyCompleted is returned when a completion write finds the
	// record already completed, either before the write or by losing a race.
	ErrPaymentAlreadyCompleted = errors.New("pending payment already completed")
	ErrInvoiceVersionConflict  = errors.New("invoice was modified concurrently")
)

// PendingPaymentRepository persists pending payments. GetByID returns
// internal.ErrPendingPaymentNotFound for unknown ids.
type PendingPaymentRepository interface {
	GetByID(ctx context.Context, id string) (*pendingpayment.PendingPayment, error)
	GetBySessionID(ctx context.Context, sessionID string) (*pendingpayment.PendingPayment, error)
	Create(ctx context.Context, p *pendingpayment.PendingPayment) error
	// Complete applies c only when the record is not completed yet.
	Complete(ctx context.Context, id string, c pendingpayment.Completion) error
}

// InvoiceRepository persists invoices. Lookups return
// internal.ErrInvoiceNotFound when nothing matches.
type InvoiceRepository interface {
	GetByID(ctx context.Context, id string) (*invoice.Invoice, error)
	LatestByClientEmail(ctx context.Context, email string) (*invoice.Invoice, error)
	// GetBySessionID returns the invoice last settled by sessionID.
	GetBySessionID(ctx context.Context, sessionID string) (*invoice.Invoice, error)
	ListByClientEmail(ctx context.Context, email string, limit int) ([]*invoice.Invoice, error)
	Create(ctx context.Context, inv *invoice.Invoice) error
	// Update writes the settlement fields of inv when the stored version
	// still equals inv.Version, and bumps the version.
	Update(ctx context.Context, inv *invoice.Invoice) error
}

type Gateway interface {
	Configured() bool
	RetrieveSession(ctx context.Context, sessionID string, expand ...string) (*paymentgateway.Session, error)
}

type Notifier interface {
	Notify(ctx context.Context, clientEmail string, receipt *Receipt) NotifyResult
}

type NotifyResult struct {
	Success bool
	Skipped bool
	Err     error
}
