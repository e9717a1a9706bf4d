package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	apperrors "github.com/frahmantamala/coaching-payments/internal"
	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/pendingpayment"
	paymentpkg "github.com/frahmantamala/coaching-payments/internal/payment"
)

type PendingPaymentRepository struct {
	db *gorm.DB
}

func NewPendingPaymentRepository(db *gorm.DB) paymentpkg.PendingPaymentRepository {
	return &PendingPaymentRepository{
		db: db,
	}
}

func (r *PendingPaymentRepository) first(ctx context.Context, query string, arg any) (*pendingpayment.PendingPayment, error) {
	var m PendingPaymentModel
	err := r.db.WithContext(ctx).Where(query, arg).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrPendingPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.toDomain(), nil
}

func (r *PendingPaymentRepository) GetByID(ctx context.Context, id string) (*pendingpayment.PendingPayment, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *PendingPaymentRepository) GetBySessionID(ctx context.Context, sessionID string) (*pendingpayment.PendingPayment, error) {
	return r.first(ctx, "gateway_session_id = ?", sessionID)
}

func (r *PendingPaymentRepository) Create(ctx context.Context, p *pendingpayment.PendingPayment) error {
	if p.Version == 0 {
		p.Version = 1
	}
	err := r.db.WithContext(ctx).Create(fromPendingPayment(p)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return paymentpkg.ErrPaymentAlreadyCompleted
	}
	return err
}

// Complete is a single conditional UPDATE; a record that is already
// completed matches no rows.
func (r *PendingPaymentRepository) Complete(ctx context.Context, id string, c pendingpayment.Completion) error {
	updates := map[string]interface{}{
		"status":             string(pendingpayment.StatusCompleted),
		"bonus_amount":       c.BonusAmount.Cents(),
		"total_amount":       c.TotalAmount.Cents(),
		"gateway_session_id": c.GatewaySessionID,
		"updated_at":         c.CompletedAt,
		"version":            gorm.Expr("version + 1"),
	}
	if notes, ok := c.Notes.Get(); ok {
		updates["notes"] = notes
	}

	res := r.db.WithContext(ctx).Model(&PendingPaymentModel{}).
		Where("id = ? AND status <> ?", id, string(pendingpayment.StatusCompleted)).
		UpdateColumns(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to complete pending payment %s: %w", id, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return paymentpkg.ErrPaymentAlreadyCompleted
}
