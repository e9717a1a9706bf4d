package notification

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/frahmantamala/coaching-payments/internal/payment"
)

var confirmationTemplate = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Thank you for your payment{{if .ClientName}}, {{.ClientName}}{{end}}!</h2>
  <p>Your payment for invoice <strong>{{.InvoiceNumber}}</strong> has been received.</p>
  <table cellpadding="6" style="border-collapse: collapse;">
    <tr><td>Base amount</td><td>{{.BaseAmount}}</td></tr>
    {{if .HasBonus}}<tr><td>Additional payment (bonus)</td><td>{{.BonusAmount}}</td></tr>{{end}}
    <tr><td><strong>Total paid</strong></td><td><strong>{{.TotalAmount}}</strong></td></tr>
    <tr><td>Payment method</td><td>{{.PaymentMethod}}</td></tr>
    <tr><td>Transaction</td><td>{{.TransactionID}}</td></tr>
    <tr><td>Date</td><td>{{.Date}}</td></tr>
  </table>
</body>
</html>`))

type confirmationView struct {
	payment.Receipt
	HasBonus bool
}

// Render produces the HTML body of a confirmation email.
func Render(receipt payment.Receipt) (string, error) {
	view := confirmationView{
		Receipt:  receipt,
		HasBonus: receipt.BonusAmount != "" && receipt.BonusAmount != "USD 0.00",
	}

	var buf bytes.Buffer
	if err := confirmationTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("failed to render confirmation email: %w", err)
	}
	return buf.String(), nil
}
