package postgres

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/invoice"
	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/pendingpayment"
	"github.com/frahmantamala/coaching-payments/internal/core/money"
)

type PendingPaymentModel struct {
	ID               string    `gorm:"column:id;primaryKey"`
	ClientName       string    `gorm:"column:client_name;not null"`
	ClientEmail      string    `gorm:"column:client_email;not null;index"`
	BaseAmount       int64     `gorm:"column:base_amount;not null"`
	BonusAmount      *int64    `gorm:"column:bonus_amount"`
	TotalAmount      *int64    `gorm:"column:total_amount"`
	Description      string    `gorm:"column:description"`
	Status           string    `gorm:"column:status;not null;default:pending"`
	GatewaySessionID *string   `gorm:"column:gateway_session_id;uniqueIndex"`
	InvoiceNumber    string    `gorm:"column:invoice_number"`
	Notes            *string   `gorm:"column:notes"`
	Version          int64     `gorm:"column:version;not null;default:1"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

func (PendingPaymentModel) TableName() string {
	return "pending_payments"
}

func fromPendingPayment(p *pendingpayment.PendingPayment) *PendingPaymentModel {
	return &PendingPaymentModel{
		ID:               p.ID,
		ClientName:       p.ClientName,
		ClientEmail:      p.ClientEmail,
		BaseAmount:       p.BaseAmount.Cents(),
		BonusAmount:      centsPtr(p.BonusAmount),
		TotalAmount:      centsPtr(p.TotalAmount),
		Description:      p.Description,
		Status:           string(p.Status),
		GatewaySessionID: p.GatewaySessionID,
		InvoiceNumber:    p.InvoiceNumber,
		Notes:            p.Notes,
		Version:          p.Version,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func (m *PendingPaymentModel) toDomain() *pendingpayment.PendingPayment {
	return &pendingpayment.PendingPayment{
		ID:               m.ID,
		ClientName:       m.ClientName,
		ClientEmail:      m.ClientEmail,
		BaseAmount:       money.FromCents(m.BaseAmount),
		BonusAmount:      moneyPtr(m.BonusAmount),
		TotalAmount:      moneyPtr(m.TotalAmount),
		Description:      m.Description,
		Status:           pendingpayment.Status(m.Status),
		GatewaySessionID: m.GatewaySessionID,
		InvoiceNumber:    m.InvoiceNumber,
		Notes:            m.Notes,
		Version:          m.Version,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// LineItems is stored as a JSON text column so the same schema runs on
// postgres and sqlite.
type LineItems []invoice.LineItem

func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *LineItems) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported line items column type %T", src)
	}
	return json.Unmarshal(raw, l)
}

type InvoiceModel struct {
	ID               string     `gorm:"column:id;primaryKey"`
	InvoiceNumber    string     `gorm:"column:invoice_number;not null"`
	ClientName       string     `gorm:"column:client_name"`
	ClientEmail      string     `gorm:"column:client_email;not null;index:idx_invoices_client_created,priority:1"`
	LineItems        LineItems  `gorm:"column:line_items;type:text"`
	Subtotal         int64      `gorm:"column:subtotal"`
	TaxAmount        int64      `gorm:"column:tax_amount"`
	Total            int64      `gorm:"column:total"`
	Currency         string     `gorm:"column:currency"`
	Status           string     `gorm:"column:status;not null"`
	IssueDate        time.Time  `gorm:"column:issue_date"`
	DueDate          time.Time  `gorm:"column:due_date"`
	PaidDate         *time.Time `gorm:"column:paid_date"`
	GatewaySessionID *string    `gorm:"column:gateway_session_id;index"`
	TransactionID    *string    `gorm:"column:transaction_id"`
	BonusAmount      *int64     `gorm:"column:bonus_amount"`
	Notes            *string    `gorm:"column:notes"`
	Version          int64      `gorm:"column:version;not null;default:1"`
	CreatedAt        time.Time  `gorm:"column:created_at;index:idx_invoices_client_created,priority:2,sort:desc"`
	UpdatedAt        time.Time  `gorm:"column:updated_at"`
}

func (InvoiceModel) TableName() string {
	return "invoices"
}

func fromInvoice(inv *invoice.Invoice) *InvoiceModel {
	return &InvoiceModel{
		ID:               inv.ID,
		InvoiceNumber:    inv.InvoiceNumber,
		ClientName:       inv.ClientName,
		ClientEmail:      inv.ClientEmail,
		LineItems:        LineItems(inv.LineItems),
		Subtotal:         inv.Subtotal.Cents(),
		TaxAmount:        inv.TaxAmount.Cents(),
		Total:            inv.Total.Cents(),
		Currency:         inv.Currency,
		Status:           string(inv.Status),
		IssueDate:        inv.IssueDate,
		DueDate:          inv.DueDate,
		PaidDate:         inv.PaidDate,
		GatewaySessionID: inv.GatewaySessionID,
		TransactionID:    inv.TransactionID,
		BonusAmount:      centsPtr(inv.BonusAmount),
		Notes:            inv.Notes,
		Version:          inv.Version,
		CreatedAt:        inv.CreatedAt,
		UpdatedAt:        inv.UpdatedAt,
	}
}

func (m *InvoiceModel) toDomain() *invoice.Invoice {
	return &invoice.Invoice{
		ID:               m.ID,
		InvoiceNumber:    m.InvoiceNumber,
		ClientName:       m.ClientName,
		ClientEmail:      m.ClientEmail,
		LineItems:        []invoice.LineItem(m.LineItems),
		Subtotal:         money.FromCents(m.Subtotal),
		TaxAmount:        money.FromCents(m.TaxAmount),
		Total:            money.FromCents(m.Total),
		Currency:         m.Currency,
		Status:           invoice.Status(m.Status),
		IssueDate:        m.IssueDate,
		DueDate:          m.DueDate,
		PaidDate:         m.PaidDate,
		GatewaySessionID: m.GatewaySessionID,
		TransactionID:    m.TransactionID,
		BonusAmount:      moneyPtr(m.BonusAmount),
		Notes:            m.Notes,
		Version:          m.Version,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func centsPtr(m *money.Money) *int64 {
	if m == nil {
		return nil
	}
	c := m.Cents()
	return &c
}

func moneyPtr(c *int64) *money.Money {
	if c == nil {
		return nil
	}
	m := money.FromCents(*c)
	return &m
}
