package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/frahmantamala/coaching-payments/internal"
	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/invoice"
	"github.com/frahmantamala/coaching-payments/internal/core/money"
)

const (
	FallbackClientName  = "Unknown Client"
	FallbackClientEmail = "unknown@example.com"
	DefaultDescription  = "Coaching Services"
)

type ResolveMode string

const (
	ModeUpdate ResolveMode = "update"
	ModeCreate ResolveMode = "create"
)

// Snapshot is what is known about the payment when no invoice exists yet.
type Snapshot struct {
	ClientName    string
	ClientEmail   string
	InvoiceNumber string
	Description   string
	BaseAmount    money.Money
}

// WithFallbacks fills missing identity fields with placeholder values.
func (s Snapshot) WithFallbacks() Snapshot {
	if strings.TrimSpace(s.ClientName) == "" {
		s.ClientName = FallbackClientName
	}
	if strings.TrimSpace(s.ClientEmail) == "" {
		s.ClientEmail = FallbackClientEmail
	}
	if strings.TrimSpace(s.Description) == "" {
		s.Description = DefaultDescription
	}
	return s
}

type Resolution struct {
	Mode    ResolveMode
	Invoice *invoice.Invoice
}

// InvoiceResolver finds the invoice a confirmation settles.
type InvoiceResolver struct {
	repo   InvoiceRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewInvoiceResolver(repo InvoiceRepository, logger *slog.Logger) *InvoiceResolver {
	return &InvoiceResolver{repo: repo, logger: logger, now: time.Now}
}

// Resolve returns the most recently created invoice for clientEmail, or a new
// unsaved invoice built from snap. Placeholder emails are never looked up so
// anonymous payments cannot settle each other's invoices.
func (r *InvoiceResolver) Resolve(ctx context.Context, clientEmail, invoiceNumber string, snap Snapshot) (*Resolution, error) {
	snap.ClientEmail = clientEmail
	snap.InvoiceNumber = invoiceNumber
	snap = snap.WithFallbacks()

	if snap.ClientEmail != FallbackClientEmail {
		existing, err := r.repo.LatestByClientEmail(ctx, snap.ClientEmail)
		switch {
		case err == nil:
			r.logger.Info("resolved existing invoice",
				"invoice_id", existing.ID,
				"invoice_number", existing.InvoiceNumber,
				"client_email", snap.ClientEmail)
			return &Resolution{Mode: ModeUpdate, Invoice: existing}, nil
		case !errors.Is(err, apperrors.ErrInvoiceNotFound):
			return nil, fmt.Errorf("failed to look up invoice by client email: %w", err)
		}
	}

	inv := r.synthesize(snap)
	r.logger.Info("no invoice found, synthesizing one",
		"invoice_number", inv.InvoiceNumber,
		"client_email", snap.ClientEmail)
	return &Resolution{Mode: ModeCreate, Invoice: inv}, nil
}

func (r *InvoiceResolver) synthesize(snap Snapshot) *invoice.Invoice {
	now := r.now().UTC()
	number := snap.InvoiceNumber
	if number == "" {
		number = NewInvoiceNumber(now)
	}

	inv := &invoice.Invoice{
		ID:            uuid.New().String(),
		InvoiceNumber: number,
		ClientName:    snap.ClientName,
		ClientEmail:   snap.ClientEmail,
		LineItems: []invoice.LineItem{{
			ID:          uuid.New().String(),
			Description: snap.Description,
			Quantity:    1,
			UnitPrice:   snap.BaseAmount,
			Total:       snap.BaseAmount,
			Type:        invoice.LineItemService,
		}},
		TaxAmount: money.Zero,
		Currency:  money.Currency,
		Status:    invoice.StatusPaid,
		IssueDate: now,
		DueDate:   now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	inv.Recalculate()
	return inv
}

// NewInvoiceNumber returns a number such as INV-20240131-1A2B3C4D.
func NewInvoiceNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("INV-%s-%s", at.Format("20060102"), suffix)
}

// InvoiceReconciler brings a resolved invoice to paid.
type InvoiceReconciler struct {
	repo   InvoiceRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewInvoiceReconciler(repo InvoiceRepository, logger *slog.Logger) *InvoiceReconciler {
	return &InvoiceReconciler{repo: repo, logger: logger, now: time.Now}
}

// MarkPaid settles the invoice and persists it. Repeating it for the same
// session writes nothing, and a bonus line is appended at most once.
func (rc *InvoiceReconciler) MarkPaid(ctx context.Context, res *Resolution, amounts Amounts, transactionID, sessionID string) (*invoice.Invoice, error) {
	inv := res.Invoice
	log := rc.logger.With("session_id", sessionID, "invoice_number", inv.InvoiceNumber)

	if res.Mode == ModeUpdate && alreadySettled(inv, sessionID) {
		log.Info("invoice already paid for this session, skipping")
		return inv, nil
	}

	rc.settle(log, inv, amounts, transactionID, sessionID)

	switch res.Mode {
	case ModeCreate:
		if err := rc.repo.Create(ctx, inv); err != nil {
			return nil, fmt.Errorf("failed to create invoice: %w", err)
		}
	default:
		if err := rc.repo.Update(ctx, inv); err != nil {
			if !errors.Is(err, ErrInvoiceVersionConflict) {
				return nil, fmt.Errorf("failed to update invoice: %w", err)
			}
			log.Warn("invoice changed while settling, retrying once", "invoice_id", inv.ID)
			if inv, err = rc.retry(ctx, log, inv.ID, amounts, transactionID, sessionID); err != nil {
				return nil, err
			}
		}
	}

	log.Info("invoice marked paid",
		"invoice_id", inv.ID,
		"mode", res.Mode,
		"total", inv.Total.String(),
		"line_items", len(inv.LineItems))

	rc.verify(ctx, log, inv)
	return inv, nil
}

func (rc *InvoiceReconciler) retry(ctx context.Context, log *slog.Logger, id string, amounts Amounts, transactionID, sessionID string) (*invoice.Invoice, error) {
	fresh, err := rc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload invoice: %w", err)
	}
	if alreadySettled(fresh, sessionID) {
		return fresh, nil
	}
	rc.settle(log, fresh, amounts, transactionID, sessionID)
	if err := rc.repo.Update(ctx, fresh); err != nil {
		return nil, fmt.Errorf("failed to update invoice: %w", err)
	}
	return fresh, nil
}

func (rc *InvoiceReconciler) settle(log *slog.Logger, inv *invoice.Invoice, amounts Amounts, transactionID, sessionID string) {
	now := rc.now().UTC()
	bonus := amounts.Bonus

	inv.Status = invoice.StatusPaid
	inv.PaidDate = &now
	inv.BonusAmount = &bonus
	inv.TransactionID = &transactionID
	inv.GatewaySessionID = &sessionID
	inv.UpdatedAt = now

	if bonus.IsPositive() && !inv.HasBonusLine() {
		inv.LineItems = append(inv.LineItems, invoice.LineItem{
			ID:          uuid.New().String(),
			Description: invoice.BonusLineDescription,
			Quantity:    1,
			UnitPrice:   bonus,
			Total:       bonus,
			Type:        invoice.LineItemBonus,
		})
	}

	// Line items plus tax stay the source of truth for the total; a gap
	// against the charged amount is left for manual reconciliation.
	inv.Recalculate()
	if !inv.Total.Equal(amounts.Total) {
		log.Warn("invoice total differs from charged amount",
			"invoice_total", inv.Total.String(),
			"charged_total", amounts.Total.String())
	}
}

func (rc *InvoiceReconciler) verify(ctx context.Context, log *slog.Logger, want *invoice.Invoice) {
	got, err := rc.repo.GetByID(ctx, want.ID)
	if err != nil {
		log.Warn("failed to re-read invoice after settlement", "invoice_id", want.ID, "error", err)
		return
	}
	if got.Status != invoice.StatusPaid || !got.Total.Equal(want.Total) || len(got.LineItems) != len(want.LineItems) {
		log.Warn("invoice re-read does not match settlement write",
			"invoice_id", want.ID,
			"status", got.Status,
			"total", got.Total.String())
	}
}

func alreadySettled(inv *invoice.Invoice, sessionID string) bool {
	return inv.Status == invoice.StatusPaid &&
		inv.GatewaySessionID != nil && *inv.GatewaySessionID == sessionID
}
