package payment

import (
	"time"

	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/pendingpayment"
	"github.com/frahmantamala/coaching-payments/internal/core/money"
)

// Receipt is returned to the caller of a confirmation. Amounts are formatted
// as "USD 123.45" and BaseAmount + BonusAmount always equals TotalAmount.
type Receipt struct {
	SessionID     string `json:"sessionId"`
	TotalAmount   string `json:"totalAmount"`
	BaseAmount    string `json:"baseAmount"`
	BonusAmount   string `json:"bonusAmount"`
	ClientName    string `json:"clientName"`
	ClientEmail   string `json:"clientEmail"`
	TransactionID string `json:"transactionId"`
	InvoiceNumber string `json:"invoiceNumber"`
	PaymentMethod string `json:"paymentMethod"`
	Date          string `json:"date"`
}

// newReceipt builds the receipt from the completed record so that repeated
// confirmations of a session report the same values. invoiceNumber names the
// settled invoice and falls back to the quoted one.
func newReceipt(rec *pendingpayment.PendingPayment, session *paymentgateway.Session, invoiceNumber string) *Receipt {
	total := money.FromCents(session.AmountTotal)
	if rec.TotalAmount != nil {
		total = *rec.TotalAmount
	}
	bonus := money.Zero
	if rec.BonusAmount != nil {
		bonus = *rec.BonusAmount
	}

	if invoiceNumber == "" {
		invoiceNumber = rec.InvoiceNumber
	}
	if invoiceNumber == "" {
		invoiceNumber = session.MetadataValue(paymentgateway.MetadataInvoiceNumber)
	}

	date := rec.UpdatedAt
	if date.IsZero() {
		date = time.Now()
	}

	return &Receipt{
		SessionID:     session.ID,
		TotalAmount:   total.Format(),
		BaseAmount:    total.Sub(bonus).Format(),
		BonusAmount:   bonus.Format(),
		ClientName:    rec.ClientName,
		ClientEmail:   rec.ClientEmail,
		TransactionID: session.TransactionID(),
		InvoiceNumber: invoiceNumber,
		PaymentMethod: session.PaymentMethod(),
		Date:          date.UTC().Format(time.RFC3339),
	}
}
