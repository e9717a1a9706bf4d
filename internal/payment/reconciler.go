package payment

import (
	"github.com/frahmantamala/coaching-payments/internal/core/compact"
	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/pendingpayment"
	"github.com/frahmantamala/coaching-payments/internal/core/money"
)

// Amounts is the settled split of a gateway charge.
type Amounts struct {
	Base  money.Money
	Bonus money.Money
	Total money.Money
}

// Reconcile treats the gateway total as authoritative. The bonus is whatever
// was paid beyond the quoted base and is never negative.
func Reconcile(gatewayTotal money.Money, quotedBase compact.Option[money.Money]) Amounts {
	base := money.Zero
	if q, ok := quotedBase.Get(); ok && !q.IsNegative() {
		base = q
	}
	return Amounts{
		Base:  base,
		Bonus: gatewayTotal.Sub(base).ClampZero(),
		Total: gatewayTotal,
	}
}

// SettledBase is the part of the total covering the quote. It is lower than
// Base only for underpaid sessions, and SettledBase + Bonus == Total holds.
func (a Amounts) SettledBase() money.Money {
	return a.Total.Sub(a.Bonus)
}

func (a Amounts) Underpaid() bool {
	return a.Base.GreaterThan(a.Total)
}

// ShouldApply is false only for records already completed; missing records
// and every other status may be (re)applied.
func ShouldApply(current compact.Option[pendingpayment.Status]) bool {
	status, ok := current.Get()
	return !ok || status != pendingpayment.StatusCompleted
}
