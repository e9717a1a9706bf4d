package notification

import (
	"fmt"

	"github.com/frahmantamala/coaching-payments/internal/payment"
)

// Message is one confirmation email. It is serialized onto the retry topic,
// so it carries everything needed to render it again.
type Message struct {
	To       string          `json:"to"`
	ToName   string          `json:"toName"`
	Subject  string          `json:"subject"`
	Receipt  payment.Receipt `json:"receipt"`
	Attempts int             `json:"attempts"`
}

func NewMessage(email string, receipt *payment.Receipt) Message {
	return Message{
		To:      email,
		ToName:  receipt.ClientName,
		Subject: Subject(receipt.InvoiceNumber),
		Receipt: *receipt,
	}
}

func Subject(invoiceNumber string) string {
	return fmt.Sprintf("Payment Confirmation - Invoice %s", invoiceNumber)
}
