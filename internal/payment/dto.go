package payment

import (
	errors "github.com/frahmantamala/coaching-payments/internal"
	"github.com/frahmantamala/coaching-payments/internal/core/common/validation"
	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/invoice"
	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/pendingpayment"
	"github.com/frahmantamala/coaching-payments/internal/core/money"
)

// ConfirmRequest is the body of POST /payments/confirm
type ConfirmRequest struct {
	SessionID string `json:"sessionId"`
	SkipEmail bool   `json:"skipEmail,omitempty"`
}

func (r *ConfirmRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("sessionId", r.SessionID).RequiredWithCode(errors.ErrCodeMissingSessionID).MaxLength(255)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// PendingPaymentResponse is the operator view of a pending payment
type PendingPaymentResponse struct {
	ID               string  `json:"id"`
	ClientName       string  `json:"clientName"`
	ClientEmail      string  `json:"clientEmail"`
	BaseAmount       string  `json:"baseAmount"`
	BonusAmount      *string `json:"bonusAmount,omitempty"`
	TotalAmount      *string `json:"totalAmount,omitempty"`
	Description      string  `json:"description"`
	Status           string  `json:"status"`
	GatewaySessionID *string `json:"gatewaySessionId,omitempty"`
	InvoiceNumber    string  `json:"invoiceNumber"`
	Notes            *string `json:"notes,omitempty"`
	CreatedAt        string  `json:"createdAt"`
	UpdatedAt        string  `json:"updatedAt"`
}

func ToPendingPaymentResponse(p *pendingpayment.PendingPayment) PendingPaymentResponse {
	return PendingPaymentResponse{
		ID:               p.ID,
		ClientName:       p.ClientName,
		ClientEmail:      p.ClientEmail,
		BaseAmount:       p.BaseAmount.Format(),
		BonusAmount:      formatPtr(p.BonusAmount),
		TotalAmount:      formatPtr(p.TotalAmount),
		Description:      p.Description,
		Status:           string(p.Status),
		GatewaySessionID: p.GatewaySessionID,
		InvoiceNumber:    p.InvoiceNumber,
		Notes:            p.Notes,
		CreatedAt:        p.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:        p.UpdatedAt.UTC().Format(timeLayout),
	}
}

// InvoiceResponse is the operator view of an invoice
type InvoiceResponse struct {
	ID               string             `json:"id"`
	InvoiceNumber    string             `json:"invoiceNumber"`
	ClientName       string             `json:"clientName"`
	ClientEmail      string             `json:"clientEmail"`
	LineItems        []invoice.LineItem `json:"lineItems"`
	Subtotal         string             `json:"subtotal"`
	TaxAmount        string             `json:"taxAmount"`
	Total            string             `json:"total"`
	Currency         string             `json:"currency"`
	Status           string             `json:"status"`
	PaidDate         *string            `json:"paidDate,omitempty"`
	GatewaySessionID *string            `json:"gatewaySessionId,omitempty"`
	TransactionID    *string            `json:"transactionId,omitempty"`
	BonusAmount      *string            `json:"bonusAmount,omitempty"`
	CreatedAt        string             `json:"createdAt"`
}

func ToInvoiceResponse(inv *invoice.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:               inv.ID,
		InvoiceNumber:    inv.InvoiceNumber,
		ClientName:       inv.ClientName,
		ClientEmail:      inv.ClientEmail,
		LineItems:        inv.LineItems,
		Subtotal:         inv.Subtotal.Format(),
		TaxAmount:        inv.TaxAmount.Format(),
		Total:            inv.Total.Format(),
		Currency:         inv.Currency,
		Status:           string(inv.Status),
		GatewaySessionID: inv.GatewaySessionID,
		TransactionID:    inv.TransactionID,
		BonusAmount:      formatPtr(inv.BonusAmount),
		CreatedAt:        inv.CreatedAt.UTC().Format(timeLayout),
	}
	if inv.PaidDate != nil {
		paid := inv.PaidDate.UTC().Format(timeLayout)
		resp.PaidDate = &paid
	}
	return resp
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func formatPtr(m *money.Money) *string {
	if m == nil {
		return nil
	}
	s := m.Format()
	return &s
}
