package invoice

import (
	"strings"
	"time"

	"github.com/frahmantamala/coaching-payments/internal/core/money"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

type LineItemType string

const (
	LineItemService LineItemType = "service"
	LineItemBonus   LineItemType = "bonus"
)

const (
	// BonusMarker identifies the bonus line item by description.
	BonusMarker          = "Bonus"
	BonusLineDescription = "Additional Payment (Bonus)"
)

type LineItem struct {
	ID          string       `json:"id"`
	Description string       `json:"description"`
	Quantity    int64        `json:"quantity"`
	UnitPrice   money.Money  `json:"unitPrice"`
	Total       money.Money  `json:"total"`
	Type        LineItemType `json:"type"`
}

func (li LineItem) IsBonus() bool {
	return strings.Contains(li.Description, BonusMarker)
}

type Invoice struct {
	ID               string
	InvoiceNumber    string
	ClientName       string
	ClientEmail      string
	LineItems        []LineItem
	Subtotal         money.Money
	TaxAmount        money.Money
	Total            money.Money
	Currency         string
	Status           Status
	IssueDate        time.Time
	DueDate          time.Time
	PaidDate         *time.Time
	GatewaySessionID *string
	TransactionID    *string
	BonusAmount      *money.Money
	Notes            *string
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (inv *Invoice) HasBonusLine() bool {
	for _, li := range inv.LineItems {
		if li.IsBonus() {
			return true
		}
	}
	return false
}

// Recalculate keeps Total equal to the line item sum plus tax.
func (inv *Invoice) Recalculate() {
	totals := make([]money.Money, 0, len(inv.LineItems))
	for _, li := range inv.LineItems {
		totals = append(totals, li.Total)
	}
	subtotal := money.Sum(totals...)
	inv.Subtotal = subtotal
	inv.Total = subtotal.Add(inv.TaxAmount)
}
