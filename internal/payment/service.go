package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	apperrors "github.com/frahmantamala/coaching-payments/internal"
	"github.com/frahmantamala/coaching-payments/internal/core/compact"
	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/pendingpayment"
	"github.com/frahmantamala/coaching-payments/internal/core/events"
	"github.com/frahmantamala/coaching-payments/internal/core/money"
	"github.com/frahmantamala/coaching-payments/internal/lock"
)

type ServiceAPI interface {
	Confirm(ctx context.Context, sessionID string, skipEmail bool) (*Receipt, error)
}

type Dependencies struct {
	Gateway        Gateway
	PendingPayment PendingPaymentRepository
	Invoice        InvoiceRepository
	Notifier       Notifier
	Locker         lock.Locker
	LockRetry      lock.RetryPolicy
	EventBus       *events.EventBus
	Logger         *slog.Logger
}

// Service confirms completed checkout sessions. Only the pending payment
// transition decides the outcome; invoice and email stages are best-effort.
type Service struct {
	gateway    Gateway
	payments   PendingPaymentRepository
	invoices   InvoiceRepository
	updater    *RecordUpdater
	resolver   *InvoiceResolver
	reconciler *InvoiceReconciler
	notifier   Notifier
	locker     lock.Locker
	lockRetry  lock.RetryPolicy
	eventBus   *events.EventBus
	logger     *slog.Logger
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retry := deps.LockRetry
	if retry.Attempts == 0 {
		retry = lock.DefaultRetryPolicy
	}
	locker := deps.Locker
	if locker == nil {
		locker = lock.NewMemoryLocker()
	}

	return &Service{
		gateway:    deps.Gateway,
		payments:   deps.PendingPayment,
		invoices:   deps.Invoice,
		updater:    NewRecordUpdater(deps.PendingPayment, logger),
		resolver:   NewInvoiceResolver(deps.Invoice, logger),
		reconciler: NewInvoiceReconciler(deps.Invoice, logger),
		notifier:   deps.Notifier,
		locker:     locker,
		lockRetry:  retry,
		eventBus:   deps.EventBus,
		logger:     logger,
	}
}

// settlement is the outcome of the pending payment stage.
type settlement struct {
	record    *pendingpayment.PendingPayment
	amounts   Amounts
	duplicate bool
}

// Confirm settles sessionID. Callers only ever see a validation,
// configuration or upstream error.
func (s *Service) Confirm(ctx context.Context, sessionID string, skipEmail bool) (receipt *Receipt, err error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, apperrors.ErrMissingSessionID
	}
	if s.gateway == nil || !s.gateway.Configured() {
		s.logger.Error("payment gateway is not configured", "session_id", sessionID)
		return nil, apperrors.ErrGatewayNotConfigured
	}

	log := s.logger.With("session_id", sessionID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("payment confirmation panicked", "panic", r, "stack", string(debug.Stack()))
			receipt, err = nil, apperrors.NewUpstreamError("payment confirmation failed", fmt.Errorf("panic: %v", r))
		}
	}()

	lease, err := lock.Obtain(ctx, s.locker, "confirm:"+sessionID, s.lockRetry)
	if err != nil {
		log.Error("failed to acquire confirmation lock", "error", err)
		return nil, apperrors.NewUpstreamError("payment confirmation failed", err)
	}
	defer func() {
		if releaseErr := lease.Release(context.WithoutCancel(ctx)); releaseErr != nil {
			log.Warn("failed to release confirmation lock", "error", releaseErr)
		}
	}()

	session, err := s.gateway.RetrieveSession(ctx, sessionID, paymentgateway.ExpandPaymentIntent)
	if err != nil {
		log.Error("failed to retrieve checkout session", "error", err)
		return nil, apperrors.NewUpstreamError("payment confirmation failed", err)
	}
	if !session.Paid() {
		log.Warn("checkout session is not paid",
			"status", session.Status,
			"payment_status", session.PaymentStatus)
		return nil, apperrors.ErrSessionNotPaid
	}

	result, err := s.settle(ctx, log, session)
	if err != nil {
		log.Error("failed to record payment", "error", err)
		return nil, apperrors.NewUpstreamError("payment confirmation failed", err)
	}

	invoiceNumber := result.record.InvoiceNumber
	if invoiceNumber == "" {
		invoiceNumber = session.MetadataValue(paymentgateway.MetadataInvoiceNumber)
	}

	if result.duplicate {
		log.Info("session already confirmed, returning existing receipt",
			"pending_payment_id", result.record.ID)
		s.isolate(log, "invoice", func() error {
			settled, err := s.repairInvoice(ctx, log, result, session, invoiceNumber)
			if err == nil {
				invoiceNumber = settled
			}
			return err
		})
		return newReceipt(result.record, session, invoiceNumber), nil
	}

	s.isolate(log, "invoice", func() error {
		settled, err := s.reconcileInvoice(ctx, result, session, invoiceNumber)
		if err == nil {
			invoiceNumber = settled
		}
		return err
	})

	receipt = newReceipt(result.record, session, invoiceNumber)

	s.isolate(log, "notification", func() error {
		return s.notify(ctx, log, result.record, receipt, skipEmail)
	})

	s.publish(ctx, log, result, receipt)

	log.Info("payment confirmed",
		"pending_payment_id", result.record.ID,
		"total", receipt.TotalAmount,
		"bonus", receipt.BonusAmount,
		"transaction_id", receipt.TransactionID)

	return receipt, nil
}

// settle completes the quoted pending payment, or records a standalone one
// when the session carries no usable quote.
func (s *Service) settle(ctx context.Context, log *slog.Logger, session *paymentgateway.Session) (*settlement, error) {
	total := money.FromCents(session.AmountTotal)
	pendingID := session.MetadataValue(paymentgateway.MetadataPendingPaymentID)

	if pendingID != "" {
		quote, err := s.payments.GetByID(ctx, pendingID)
		switch {
		case err == nil:
			if quote.Status.IsTerminal() && quote.Status != pendingpayment.StatusCompleted {
				log.Warn("settling a pending payment that was closed",
					"pending_payment_id", pendingID,
					"status", quote.Status)
			}
			amounts := Reconcile(total, compact.Some(quote.BaseAmount))
			if amounts.Underpaid() {
				log.Warn("charged total is below the quoted base",
					"quoted_base", amounts.Base.String(),
					"charged_total", total.String())
			}

			record, err := s.updater.Complete(ctx, pendingID, session.ID, amounts)
			switch {
			case err == nil:
				return &settlement{record: record, amounts: amounts}, nil
			case errors.Is(err, ErrPaymentAlreadyCompleted):
				return &settlement{record: record, amounts: amounts, duplicate: true}, nil
			case !errors.Is(err, apperrors.ErrPendingPaymentNotFound):
				return nil, err
			}
		case !errors.Is(err, apperrors.ErrPendingPaymentNotFound):
			return nil, fmt.Errorf("failed to load pending payment: %w", err)
		}
		log.Warn("pending payment referenced by session not found, recording standalone payment",
			"pending_payment_id", pendingID)
	}

	return s.recordStandalone(ctx, log, session, total)
}

func (s *Service) recordStandalone(ctx context.Context, log *slog.Logger, session *paymentgateway.Session, total money.Money) (*settlement, error) {
	quotedBase := compact.Some(total)
	if raw := session.MetadataValue(paymentgateway.MetadataBaseAmount); raw != "" {
		base, err := money.Parse(raw)
		if err != nil {
			log.Warn("ignoring unparsable base amount in session metadata", "base_amount", raw, "error", err)
		} else {
			quotedBase = compact.Some(base)
		}
	}
	amounts := Reconcile(total, quotedBase)

	snap := standaloneSnapshot(session).WithFallbacks()
	invoiceNumber := snap.InvoiceNumber
	if invoiceNumber == "" {
		invoiceNumber = NewInvoiceNumber(session.CreatedAt())
	}

	sessionID := session.ID
	record, err := s.updater.Record(ctx, &pendingpayment.PendingPayment{
		ClientName:       snap.ClientName,
		ClientEmail:      snap.ClientEmail,
		BaseAmount:       amounts.Base,
		Description:      snap.Description,
		GatewaySessionID: &sessionID,
		InvoiceNumber:    invoiceNumber,
	}, amounts)
	switch {
	case err == nil:
		return &settlement{record: record, amounts: amounts}, nil
	case errors.Is(err, ErrPaymentAlreadyCompleted):
		return &settlement{record: record, amounts: amounts, duplicate: true}, nil
	default:
		return nil, err
	}
}

func standaloneSnapshot(session *paymentgateway.Session) Snapshot {
	snap := Snapshot{
		ClientName:    session.MetadataValue(paymentgateway.MetadataClientName),
		ClientEmail:   session.MetadataValue(paymentgateway.MetadataClientEmail),
		InvoiceNumber: session.MetadataValue(paymentgateway.MetadataInvoiceNumber),
		Description:   session.MetadataValue(paymentgateway.MetadataDescription),
	}
	if session.CustomerDetails != nil {
		if snap.ClientName == "" {
			snap.ClientName = session.CustomerDetails.Name
		}
		if snap.ClientEmail == "" {
			snap.ClientEmail = session.CustomerDetails.Email
		}
	}
	return snap
}

// reconcileInvoice returns the number of the invoice it settled.
func (s *Service) reconcileInvoice(ctx context.Context, result *settlement, session *paymentgateway.Session, invoiceNumber string) (string, error) {
	rec := result.record
	res, err := s.resolver.Resolve(ctx, rec.ClientEmail, invoiceNumber, Snapshot{
		ClientName:  rec.ClientName,
		Description: rec.Description,
		BaseAmount:  rec.BaseAmount,
	})
	if err != nil {
		return "", err
	}

	inv, err := s.reconciler.MarkPaid(ctx, res, result.amounts, session.TransactionID(), session.ID)
	if err != nil {
		return "", err
	}
	return inv.InvoiceNumber, nil
}

// repairInvoice finishes the invoice stage of an earlier confirmation of the
// same session. An invoice already settled by the session is left untouched.
func (s *Service) repairInvoice(ctx context.Context, log *slog.Logger, result *settlement, session *paymentgateway.Session, invoiceNumber string) (string, error) {
	inv, err := s.invoices.GetBySessionID(ctx, session.ID)
	switch {
	case err == nil:
		return inv.InvoiceNumber, nil
	case !errors.Is(err, apperrors.ErrInvoiceNotFound):
		return "", fmt.Errorf("failed to load invoice settled by session: %w", err)
	}
	log.Warn("invoice stage of an earlier confirmation did not finish, retrying",
		"pending_payment_id", result.record.ID)
	return s.reconcileInvoice(ctx, result, session, invoiceNumber)
}

func (s *Service) notify(ctx context.Context, log *slog.Logger, rec *pendingpayment.PendingPayment, receipt *Receipt, skipEmail bool) error {
	if s.notifier == nil || skipEmail {
		log.Info("confirmation email skipped", "skip_email", skipEmail)
		return nil
	}

	email := rec.ClientEmail
	if email == FallbackClientEmail {
		email = ""
	}

	result := s.notifier.Notify(ctx, email, receipt)
	switch {
	case result.Skipped:
		log.Info("confirmation email skipped, no client email")
	case !result.Success:
		return fmt.Errorf("failed to send confirmation email: %w", result.Err)
	default:
		log.Info("confirmation email sent", "client_email", email)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, log *slog.Logger, result *settlement, receipt *Receipt) {
	if s.eventBus == nil {
		return
	}
	event := events.NewPaymentConfirmedEvent(
		receipt.SessionID,
		result.record.ID,
		receipt.InvoiceNumber,
		receipt.ClientEmail,
		receipt.TransactionID,
		result.amounts.Total.Cents(),
		result.amounts.SettledBase().Cents(),
		result.amounts.Bonus.Cents(),
		receipt,
	)
	if err := s.eventBus.Publish(ctx, event); err != nil {
		log.Warn("failed to publish payment confirmed event", "error", err)
	}
}

// isolate runs a best-effort stage; its errors and panics are only logged.
func (s *Service) isolate(log *slog.Logger, stage string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("confirmation stage panicked", "stage", stage, "panic", r)
		}
	}()
	if err := fn(); err != nil {
		log.Error("confirmation stage failed", "stage", stage, "error", err)
	}
}
