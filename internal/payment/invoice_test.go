package payment_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/coaching-payments/internal/core/compact"
	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/invoice"
	"github.com/frahmantamala/coaching-payments/internal/core/money"
	paymentPkg "github.com/frahmantamala/coaching-payments/internal/payment"
)

func openInvoice(id, email string, createdAt time.Time, base int64) *invoice.Invoice {
	inv := &invoice.Invoice{
		ID:            id,
		InvoiceNumber: "INV-" + id,
		ClientName:    "Jane Client",
		ClientEmail:   email,
		LineItems: []invoice.LineItem{{
			ID:          id + "-li-1",
			Description: "Leadership coaching",
			Quantity:    1,
			UnitPrice:   money.FromCents(base),
			Total:       money.FromCents(base),
			Type:        invoice.LineItemService,
		}},
		Currency:  money.Currency,
		Status:    invoice.StatusSent,
		IssueDate: createdAt,
		DueDate:   createdAt.AddDate(0, 0, 14),
		Version:   1,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	inv.Recalculate()
	return inv
}

func bonusLines(inv *invoice.Invoice) int {
	n := 0
	for _, li := range inv.LineItems {
		if li.IsBonus() {
			n++
		}
	}
	return n
}

var _ = Describe("InvoiceResolver", func() {
	var (
		ctx      context.Context
		repo     *mockInvoiceRepository
		resolver *paymentPkg.InvoiceResolver
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = newMockInvoiceRepository()
		resolver = paymentPkg.NewInvoiceResolver(repo, discardLogger())
	})

	It("should pick the most recently created invoice for the email", func() {
		repo.seed(openInvoice("old", "jane@example.com", fixedNow.Add(-48*time.Hour), 10000))
		repo.seed(openInvoice("new", "jane@example.com", fixedNow, 10000))
		repo.seed(openInvoice("mid", "jane@example.com", fixedNow.Add(-24*time.Hour), 10000))
		repo.seed(openInvoice("other", "bob@example.com", fixedNow.Add(time.Hour), 10000))

		res, err := resolver.Resolve(ctx, "jane@example.com", "", paymentPkg.Snapshot{})

		Expect(err).ToNot(HaveOccurred())
		Expect(res.Mode).To(Equal(paymentPkg.ModeUpdate))
		Expect(res.Invoice.ID).To(Equal("new"))
	})

	It("should synthesize a paid invoice with one base line item", func() {
		res, err := resolver.Resolve(ctx, "jane@example.com", "INV-77", paymentPkg.Snapshot{
			ClientName:  "Jane Client",
			Description: "Leadership coaching",
			BaseAmount:  money.FromCents(10000),
		})

		Expect(err).ToNot(HaveOccurred())
		Expect(res.Mode).To(Equal(paymentPkg.ModeCreate))
		inv := res.Invoice
		Expect(inv.InvoiceNumber).To(Equal("INV-77"))
		Expect(inv.Status).To(Equal(invoice.StatusPaid))
		Expect(inv.LineItems).To(HaveLen(1))
		Expect(inv.LineItems[0].Description).To(Equal("Leadership coaching"))
		Expect(inv.LineItems[0].Total.Cents()).To(Equal(int64(10000)))
		Expect(inv.Total.Cents()).To(Equal(int64(10000)))
		Expect(inv.Currency).To(Equal("USD"))
		Expect(repo.creates).To(BeZero())
	})

	It("should fall back to placeholder identity without looking anything up", func() {
		repo.seed(openInvoice("anon", paymentPkg.FallbackClientEmail, fixedNow, 10000))

		res, err := resolver.Resolve(ctx, "", "", paymentPkg.Snapshot{BaseAmount: money.FromCents(4000)})

		Expect(err).ToNot(HaveOccurred())
		Expect(res.Mode).To(Equal(paymentPkg.ModeCreate))
		Expect(res.Invoice.ClientName).To(Equal("Unknown Client"))
		Expect(res.Invoice.ClientEmail).To(Equal("unknown@example.com"))
		Expect(res.Invoice.InvoiceNumber).To(HavePrefix("INV-"))
		Expect(repo.calls).To(BeZero())
	})

	It("should surface lookup failures", func() {
		repo.lookupError = errors.New("unavailable")

		_, err := resolver.Resolve(ctx, "jane@example.com", "", paymentPkg.Snapshot{})

		Expect(err).To(MatchError(ContainSubstring("unavailable")))
	})
})

var _ = Describe("InvoiceReconciler", func() {
	var (
		ctx        context.Context
		repo       *mockInvoiceRepository
		reconciler *paymentPkg.InvoiceReconciler
		amounts    paymentPkg.Amounts
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = newMockInvoiceRepository()
		reconciler = paymentPkg.NewInvoiceReconciler(repo, discardLogger())
		amounts = paymentPkg.Reconcile(money.FromCents(15000), compact.Some(money.FromCents(10000)))
	})

	It("should mark an existing invoice paid and append one bonus line", func() {
		repo.seed(openInvoice("inv_1", "jane@example.com", fixedNow, 10000))
		existing := repo.get("inv_1")

		inv, err := reconciler.MarkPaid(ctx, &paymentPkg.Resolution{Mode: paymentPkg.ModeUpdate, Invoice: existing}, amounts, "ch_1", "cs_1")

		Expect(err).ToNot(HaveOccurred())
		stored := repo.get("inv_1")
		Expect(stored.Status).To(Equal(invoice.StatusPaid))
		Expect(stored.PaidDate).ToNot(BeNil())
		Expect(*stored.TransactionID).To(Equal("ch_1"))
		Expect(*stored.GatewaySessionID).To(Equal("cs_1"))
		Expect(stored.BonusAmount.Cents()).To(Equal(int64(5000)))
		Expect(stored.LineItems).To(HaveLen(2))
		Expect(stored.LineItems[1].Description).To(Equal("Additional Payment (Bonus)"))
		Expect(stored.LineItems[1].Quantity).To(Equal(int64(1)))
		Expect(stored.LineItems[1].UnitPrice.Cents()).To(Equal(int64(5000)))
		Expect(stored.Total.Cents()).To(Equal(int64(15000)))
		Expect(inv.Total.Cents()).To(Equal(int64(15000)))
	})

	It("should never duplicate the bonus line across repeated confirmations", func() {
		repo.seed(openInvoice("inv_1", "jane@example.com", fixedNow, 10000))

		for i := 0; i < 3; i++ {
			_, err := reconciler.MarkPaid(ctx, &paymentPkg.Resolution{Mode: paymentPkg.ModeUpdate, Invoice: repo.get("inv_1")}, amounts, "ch_1", "cs_1")
			Expect(err).ToNot(HaveOccurred())
		}

		stored := repo.get("inv_1")
		Expect(bonusLines(stored)).To(Equal(1))
		Expect(repo.updates).To(Equal(1))
	})

	It("should not append a second bonus line for a different session", func() {
		inv := openInvoice("inv_1", "jane@example.com", fixedNow, 10000)
		inv.LineItems = append(inv.LineItems, invoice.LineItem{
			ID: "b", Description: "Tip (Bonus)", Quantity: 1,
			UnitPrice: money.FromCents(5000), Total: money.FromCents(5000), Type: invoice.LineItemBonus,
		})
		inv.Recalculate()
		repo.seed(inv)

		_, err := reconciler.MarkPaid(ctx, &paymentPkg.Resolution{Mode: paymentPkg.ModeUpdate, Invoice: repo.get("inv_1")}, amounts, "ch_2", "cs_2")

		Expect(err).ToNot(HaveOccurred())
		Expect(bonusLines(repo.get("inv_1"))).To(Equal(1))
	})

	It("should skip the bonus line when there is no bonus", func() {
		repo.seed(openInvoice("inv_1", "jane@example.com", fixedNow, 10000))
		exact := paymentPkg.Reconcile(money.FromCents(10000), compact.Some(money.FromCents(10000)))

		_, err := reconciler.MarkPaid(ctx, &paymentPkg.Resolution{Mode: paymentPkg.ModeUpdate, Invoice: repo.get("inv_1")}, exact, "ch_1", "cs_1")

		Expect(err).ToNot(HaveOccurred())
		stored := repo.get("inv_1")
		Expect(stored.LineItems).To(HaveLen(1))
		Expect(stored.BonusAmount.IsZero()).To(BeTrue())
	})

	It("should keep the total equal to line items plus tax", func() {
		inv := openInvoice("inv_1", "jane@example.com", fixedNow, 10000)
		inv.TaxAmount = money.FromCents(800)
		inv.Recalculate()
		repo.seed(inv)

		_, err := reconciler.MarkPaid(ctx, &paymentPkg.Resolution{Mode: paymentPkg.ModeUpdate, Invoice: repo.get("inv_1")}, amounts, "ch_1", "cs_1")

		Expect(err).ToNot(HaveOccurred())
		stored := repo.get("inv_1")
		sum := money.Zero
		for _, li := range stored.LineItems {
			sum = sum.Add(li.Total)
		}
		Expect(stored.Total.Equal(sum.Add(stored.TaxAmount))).To(BeTrue())
	})

	It("should persist synthesized invoices with create", func() {
		resolver := paymentPkg.NewInvoiceResolver(repo, discardLogger())
		res, err := resolver.Resolve(ctx, "new@example.com", "", paymentPkg.Snapshot{BaseAmount: money.FromCents(10000)})
		Expect(err).ToNot(HaveOccurred())

		inv, err := reconciler.MarkPaid(ctx, res, amounts, "ch_1", "cs_1")

		Expect(err).ToNot(HaveOccurred())
		Expect(repo.creates).To(Equal(1))
		Expect(repo.updates).To(BeZero())
		Expect(repo.get(inv.ID).LineItems).To(HaveLen(2))
	})

	It("should reload and retry once after a version conflict", func() {
		repo.seed(openInvoice("inv_1", "jane@example.com", fixedNow, 10000))
		stale := repo.get("inv_1")
		concurrent := repo.get("inv_1")
		concurrent.Notes = func() *string { s := "edited"; return &s }()
		Expect(repo.Update(ctx, concurrent)).To(Succeed())

		_, err := reconciler.MarkPaid(ctx, &paymentPkg.Resolution{Mode: paymentPkg.ModeUpdate, Invoice: stale}, amounts, "ch_1", "cs_1")

		Expect(err).ToNot(HaveOccurred())
		stored := repo.get("inv_1")
		Expect(stored.Status).To(Equal(invoice.StatusPaid))
		Expect(*stored.Notes).To(Equal("edited"))
		Expect(bonusLines(stored)).To(Equal(1))
	})

	It("should return store failures", func() {
		repo.seed(openInvoice("inv_1", "jane@example.com", fixedNow, 10000))
		repo.updateError = errors.New("permission denied")

		_, err := reconciler.MarkPaid(ctx, &paymentPkg.Resolution{Mode: paymentPkg.ModeUpdate, Invoice: repo.get("inv_1")}, amounts, "ch_1", "cs_1")

		Expect(err).To(MatchError(ContainSubstring("permission denied")))
	})
})
