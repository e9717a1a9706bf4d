package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/frahmantamala/coaching-payments/internal"
	"github.com/frahmantamala/coaching-payments/internal/core/compact"
	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/pendingpayment"
)

// RecordUpdater performs the single completed transition of a pending payment.
type RecordUpdater struct {
	repo   PendingPaymentRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewRecordUpdater(repo PendingPaymentRepository, logger *slog.Logger) *RecordUpdater {
	return &RecordUpdater{repo: repo, logger: logger, now: time.Now}
}

// Complete marks paymentID completed with the reconciled amounts. When the
// record is already completed it returns the stored record together with
// ErrPaymentAlreadyCompleted and writes nothing.
func (u *RecordUpdater) Complete(ctx context.Context, paymentID, sessionID string, amounts Amounts) (*pendingpayment.PendingPayment, error) {
	log := u.logger.With("session_id", sessionID, "pending_payment_id", paymentID)

	current, err := u.repo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if !ShouldApply(compact.Some(current.Status)) {
		log.Info("pending payment already completed, skipping transition")
		return current, ErrPaymentAlreadyCompleted
	}

	completion := pendingpayment.Completion{
		BonusAmount:      amounts.Bonus,
		TotalAmount:      amounts.Total,
		GatewaySessionID: sessionID,
		Notes:            bonusNotes(amounts),
		CompletedAt:      u.now().UTC(),
	}

	if err := u.repo.Complete(ctx, paymentID, completion); err != nil {
		if errors.Is(err, ErrPaymentAlreadyCompleted) {
			log.Warn("pending payment completed concurrently")
			winner, readErr := u.repo.GetByID(ctx, paymentID)
			if readErr != nil {
				return nil, fmt.Errorf("failed to read pending payment after conflict: %w", readErr)
			}
			return winner, ErrPaymentAlreadyCompleted
		}
		return nil, fmt.Errorf("failed to complete pending payment: %w", err)
	}

	log.Info("pending payment completed",
		"total", amounts.Total.String(),
		"bonus", amounts.Bonus.String())

	updated := *current
	updated.Apply(completion)
	u.verify(ctx, log, paymentID, &updated)

	return &updated, nil
}

// verify re-reads the record and only logs when the store does not show the
// write yet.
func (u *RecordUpdater) verify(ctx context.Context, log *slog.Logger, paymentID string, want *pendingpayment.PendingPayment) {
	got, err := u.repo.GetByID(ctx, paymentID)
	if err != nil {
		log.Warn("failed to re-read pending payment after completion", "error", err)
		return
	}
	if got.Status != pendingpayment.StatusCompleted ||
		got.TotalAmount == nil || !got.TotalAmount.Equal(*want.TotalAmount) ||
		got.BonusAmount == nil || !got.BonusAmount.Equal(*want.BonusAmount) {
		log.Warn("pending payment re-read does not match completion write",
			"status", got.Status,
			"want_total", want.TotalAmount.String())
	}
}

// Record creates a completed pending payment for a session that had no quote
// to reconcile against. It returns the existing record when the session was
// already recorded.
func (u *RecordUpdater) Record(ctx context.Context, p *pendingpayment.PendingPayment, amounts Amounts) (*pendingpayment.PendingPayment, error) {
	sessionID := ""
	if p.GatewaySessionID != nil {
		sessionID = *p.GatewaySessionID
	}
	log := u.logger.With("session_id", sessionID)

	if sessionID != "" {
		existing, err := u.repo.GetBySessionID(ctx, sessionID)
		switch {
		case err == nil:
			log.Info("standalone payment already recorded", "pending_payment_id", existing.ID)
			return existing, ErrPaymentAlreadyCompleted
		case !errors.Is(err, apperrors.ErrPendingPaymentNotFound):
			return nil, fmt.Errorf("failed to look up payment by session: %w", err)
		}
	}

	now := u.now().UTC()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	bonus, total := amounts.Bonus, amounts.Total
	p.Status = pendingpayment.StatusCompleted
	p.BonusAmount = &bonus
	p.TotalAmount = &total
	p.Notes = bonusNotes(amounts).Ptr()
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := u.repo.Create(ctx, p); err != nil {
		// A store with a unique session index reports a concurrent insert.
		if errors.Is(err, ErrPaymentAlreadyCompleted) && sessionID != "" {
			if winner, getErr := u.repo.GetBySessionID(ctx, sessionID); getErr == nil {
				return winner, ErrPaymentAlreadyCompleted
			}
		}
		return nil, fmt.Errorf("failed to create standalone payment record: %w", err)
	}

	log.Info("standalone payment recorded",
		"pending_payment_id", p.ID,
		"total", total.String())
	return p, nil
}

func bonusNotes(amounts Amounts) compact.Option[string] {
	if !amounts.Bonus.IsPositive() {
		return compact.None[string]()
	}
	return compact.Some(fmt.Sprintf("Includes bonus payment of %s", amounts.Bonus.Format()))
}
