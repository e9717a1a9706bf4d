// Package document maps pending payments and invoices to the shape stored in
// the document databases. Money is kept in cents and absent optional fields
// are omitted rather than stored as null.
package document

import (
	"time"

	"github.com/frahmantamala/coaching-payments/internal/core/compact"
	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/invoice"
	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/pendingpayment"
	"github.com/frahmantamala/coaching-payments/internal/core/money"
)

// Invoice field names.
const (
	FieldID               = "_id"
	FieldClientEmail      = "clientEmail"
	FieldCreatedAt        = "createdAt"
	FieldStatus           = "status"
	FieldLineItems        = "lineItems"
	FieldSubtotal         = "subtotal"
	FieldTotal            = "total"
	FieldPaidDate         = "paidDate"
	FieldGatewaySessionID = "gatewaySessionId"
	FieldTransactionID    = "transactionId"
	FieldBonusAmount      = "bonusAmount"
	FieldVersion          = "version"
	FieldUpdatedAt        = "updatedAt"
)

type PendingPayment struct {
	ID               string    `firestore:"-" bson:"_id"`
	ClientName       string    `firestore:"clientName" bson:"clientName"`
	ClientEmail      string    `firestore:"clientEmail" bson:"clientEmail"`
	BaseAmount       int64     `firestore:"baseAmount" bson:"baseAmount"`
	BonusAmount      *int64    `firestore:"bonusAmount,omitempty" bson:"bonusAmount,omitempty"`
	TotalAmount      *int64    `firestore:"totalAmount,omitempty" bson:"totalAmount,omitempty"`
	Description      string    `firestore:"description" bson:"description"`
	Status           string    `firestore:"status" bson:"status"`
	GatewaySessionID *string   `firestore:"gatewaySessionId,omitempty" bson:"gatewaySessionId,omitempty"`
	InvoiceNumber    string    `firestore:"invoiceNumber" bson:"invoiceNumber"`
	Notes            *string   `firestore:"notes,omitempty" bson:"notes,omitempty"`
	Version          int64     `firestore:"version" bson:"version"`
	CreatedAt        time.Time `firestore:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time `firestore:"updatedAt" bson:"updatedAt"`
}

func FromPendingPayment(p *pendingpayment.PendingPayment) PendingPayment {
	return PendingPayment{
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

func (d PendingPayment) ToDomain() *pendingpayment.PendingPayment {
	return &pendingpayment.PendingPayment{
		ID:               d.ID,
		ClientName:       d.ClientName,
		ClientEmail:      d.ClientEmail,
		BaseAmount:       money.FromCents(d.BaseAmount),
		BonusAmount:      moneyPtr(d.BonusAmount),
		TotalAmount:      moneyPtr(d.TotalAmount),
		Description:      d.Description,
		Status:           pendingpayment.Status(d.Status),
		GatewaySessionID: d.GatewaySessionID,
		InvoiceNumber:    d.InvoiceNumber,
		Notes:            d.Notes,
		Version:          d.Version,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

type LineItem struct {
	ID          string `firestore:"id" bson:"id"`
	Description string `firestore:"description" bson:"description"`
	Quantity    int64  `firestore:"quantity" bson:"quantity"`
	UnitPrice   int64  `firestore:"unitPrice" bson:"unitPrice"`
	Total       int64  `firestore:"total" bson:"total"`
	Type        string `firestore:"type" bson:"type"`
}

type Invoice struct {
	ID               string     `firestore:"-" bson:"_id"`
	InvoiceNumber    string     `firestore:"invoiceNumber" bson:"invoiceNumber"`
	ClientName       string     `firestore:"clientName" bson:"clientName"`
	ClientEmail      string     `firestore:"clientEmail" bson:"clientEmail"`
	LineItems        []LineItem `firestore:"lineItems" bson:"lineItems"`
	Subtotal         int64      `firestore:"subtotal" bson:"subtotal"`
	TaxAmount        int64      `firestore:"taxAmount" bson:"taxAmount"`
	Total            int64      `firestore:"total" bson:"total"`
	Currency         string     `firestore:"currency" bson:"currency"`
	Status           string     `firestore:"status" bson:"status"`
	IssueDate        time.Time  `firestore:"issueDate" bson:"issueDate"`
	DueDate          time.Time  `firestore:"dueDate" bson:"dueDate"`
	PaidDate         *time.Time `firestore:"paidDate,omitempty" bson:"paidDate,omitempty"`
	GatewaySessionID *string    `firestore:"gatewaySessionId,omitempty" bson:"gatewaySessionId,omitempty"`
	TransactionID    *string    `firestore:"transactionId,omitempty" bson:"transactionId,omitempty"`
	BonusAmount      *int64     `firestore:"bonusAmount,omitempty" bson:"bonusAmount,omitempty"`
	Notes            *string    `firestore:"notes,omitempty" bson:"notes,omitempty"`
	Version          int64      `firestore:"version" bson:"version"`
	CreatedAt        time.Time  `firestore:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time  `firestore:"updatedAt" bson:"updatedAt"`
}

func FromInvoice(inv *invoice.Invoice) Invoice {
	return Invoice{
		ID:               inv.ID,
		InvoiceNumber:    inv.InvoiceNumber,
		ClientName:       inv.ClientName,
		ClientEmail:      inv.ClientEmail,
		LineItems:        fromLineItems(inv.LineItems),
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

func (d Invoice) ToDomain() *invoice.Invoice {
	items := make([]invoice.LineItem, 0, len(d.LineItems))
	for _, li := range d.LineItems {
		items = append(items, invoice.LineItem{
			ID:          li.ID,
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitPrice:   money.FromCents(li.UnitPrice),
			Total:       money.FromCents(li.Total),
			Type:        invoice.LineItemType(li.Type),
		})
	}
	return &invoice.Invoice{
		ID:               d.ID,
		InvoiceNumber:    d.InvoiceNumber,
		ClientName:       d.ClientName,
		ClientEmail:      d.ClientEmail,
		LineItems:        items,
		Subtotal:         money.FromCents(d.Subtotal),
		TaxAmount:        money.FromCents(d.TaxAmount),
		Total:            money.FromCents(d.Total),
		Currency:         d.Currency,
		Status:           invoice.Status(d.Status),
		IssueDate:        d.IssueDate,
		DueDate:          d.DueDate,
		PaidDate:         d.PaidDate,
		GatewaySessionID: d.GatewaySessionID,
		TransactionID:    d.TransactionID,
		BonusAmount:      moneyPtr(d.BonusAmount),
		Notes:            d.Notes,
		Version:          d.Version,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

// Settlement is the sparse field set written when an invoice is settled.
// The version is left to the store so it can bump it atomically.
func Settlement(inv *invoice.Invoice) map[string]any {
	d := FromInvoice(inv)
	return compact.Compact(compact.Fields{
		FieldStatus:           compact.Some(d.Status),
		FieldLineItems:        compact.Some(d.LineItems),
		FieldSubtotal:         compact.Some(d.Subtotal),
		FieldTotal:            compact.Some(d.Total),
		FieldUpdatedAt:        compact.Some(d.UpdatedAt),
		FieldPaidDate:         compact.FromPtr(d.PaidDate),
		FieldGatewaySessionID: compact.FromPtr(d.GatewaySessionID),
		FieldTransactionID:    compact.FromPtr(d.TransactionID),
		FieldBonusAmount:      compact.FromPtr(d.BonusAmount),
	})
}

func fromLineItems(items []invoice.LineItem) []LineItem {
	out := make([]LineItem, 0, len(items))
	for _, li := range items {
		out = append(out, LineItem{
			ID:          li.ID,
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice.Cents(),
			Total:       li.Total.Cents(),
			Type:        string(li.Type),
		})
	}
	return out
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
