package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	apperrors "github.com/frahmantamala/coaching-payments/internal"
	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/invoice"
	paymentpkg "github.com/frahmantamala/coaching-payments/internal/payment"
)

type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) paymentpkg.InvoiceRepository {
	return &InvoiceRepository{
		db: db,
	}
}

func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*invoice.Invoice, error) {
	var m InvoiceModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.toDomain(), nil
}

func (r *InvoiceRepository) LatestByClientEmail(ctx context.Context, email string) (*invoice.Invoice, error) {
	var m InvoiceModel
	err := r.db.WithContext(ctx).Where("client_email = ?", email).Order("created_at DESC").First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.toDomain(), nil
}

func (r *InvoiceRepository) GetBySessionID(ctx context.Context, sessionID string) (*invoice.Invoice, error) {
	var m InvoiceModel
	err := r.db.WithContext(ctx).Where("gateway_session_id = ?", sessionID).Order("updated_at DESC").First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.toDomain(), nil
}

func (r *InvoiceRepository) ListByClientEmail(ctx context.Context, email string, limit int) ([]*invoice.Invoice, error) {
	var models []InvoiceModel
	q := r.db.WithContext(ctx).Where("client_email = ?", email).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}

	invoices := make([]*invoice.Invoice, len(models))
	for i := range models {
		invoices[i] = models[i].toDomain()
	}
	return invoices, nil
}

func (r *InvoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	inv.Version = 1
	return r.db.WithContext(ctx).Create(fromInvoice(inv)).Error
}

func (r *InvoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	m := fromInvoice(inv)
	updates := map[string]interface{}{
		"status":             m.Status,
		"line_items":         m.LineItems,
		"subtotal":           m.Subtotal,
		"total":              m.Total,
		"paid_date":          m.PaidDate,
		"gateway_session_id": m.GatewaySessionID,
		"transaction_id":     m.TransactionID,
		"bonus_amount":       m.BonusAmount,
		"updated_at":         m.UpdatedAt,
		"version":            gorm.Expr("version + 1"),
	}

	res := r.db.WithContext(ctx).Model(&InvoiceModel{}).
		Where("id = ? AND version = ?", inv.ID, inv.Version).
		UpdateColumns(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update invoice %s: %w", inv.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, inv.ID); err != nil {
			return err
		}
		return paymentpkg.ErrInvoiceVersionConflict
	}

	inv.Version++
	return nil
}
