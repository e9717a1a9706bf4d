package payment_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/coaching-payments/internal"
	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/invoice"
	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/pendingpayment"
	"github.com/frahmantamala/coaching-payments/internal/core/events"
	"github.com/frahmantamala/coaching-payments/internal/core/money"
	"github.com/frahmantamala/coaching-payments/internal/lock"
	paymentPkg "github.com/frahmantamala/coaching-payments/internal/payment"
)

func checkoutSession(id string, totalCents int64, metadata map[string]string) *paymentgateway.Session {
	return &paymentgateway.Session{
		ID:            id,
		AmountTotal:   totalCents,
		Currency:      "usd",
		Status:        paymentgateway.SessionStatusComplete,
		PaymentStatus: paymentgateway.PaymentStatusPaid,
		Metadata:      metadata,
		CustomerDetails: &paymentgateway.CustomerDetails{
			Email: "jane@example.com",
			Name:  "Jane Client",
		},
		PaymentIntent:      &paymentgateway.PaymentIntent{ID: "pi_" + id, LatestCharge: "ch_" + id},
		PaymentMethodTypes: []string{"card"},
		Created:            fixedNow.Unix(),
	}
}

func paidTransitions(repo *mockInvoiceRepository) int {
	return repo.creates + repo.updates
}

var _ = Describe("Service", func() {
	var (
		ctx       context.Context
		gateway   *mockGateway
		payments  *mockPendingPaymentRepository
		invoices  *mockInvoiceRepository
		notifier  *mockNotifier
		eventBus  *events.EventBus
		service   *paymentPkg.Service
		published []*events.PaymentConfirmedEvent
		pubMu     sync.Mutex
	)

	newService := func() *paymentPkg.Service {
		return paymentPkg.NewService(paymentPkg.Dependencies{
			Gateway:        gateway,
			PendingPayment: payments,
			Invoice:        invoices,
			Notifier:       notifier,
			Locker:         lock.NewMemoryLocker(),
			EventBus:       eventBus,
			Logger:         discardLogger(),
		})
	}

	BeforeEach(func() {
		ctx = context.Background()
		gateway = newMockGateway()
		payments = newMockPendingPaymentRepository()
		invoices = newMockInvoiceRepository()
		notifier = &mockNotifier{}
		eventBus = events.NewEventBus(discardLogger())
		published = nil
		eventBus.Subscribe(events.EventTypePaymentConfirmed, func(_ context.Context, e events.Event) error {
			pubMu.Lock()
			defer pubMu.Unlock()
			published = append(published, e.(*events.PaymentConfirmedEvent))
			return nil
		})
		service = newService()
	})

	Context("input and configuration guards", func() {
		It("should reject a missing session id as a bad request", func() {
			_, err := service.Confirm(ctx, "  ", false)

			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeValidation))
			Expect(appErr.StatusCode).To(Equal(400))
		})

		It("should return a configuration error without touching any store", func() {
			gateway.configured = false

			_, err := service.Confirm(ctx, "cs_1", false)

			Expect(errors.Is(err, apperrors.ErrGatewayNotConfigured)).To(BeTrue())
			Expect(gateway.calls).To(BeZero())
			Expect(payments.calls).To(BeZero())
			Expect(invoices.calls).To(BeZero())
			Expect(notifier.count()).To(BeZero())
		})

		It("should reject an unpaid session before writing anything", func() {
			payments.seed(pendingQuote("pp_1", 10000))
			invoices.seed(openInvoice("inv_1", "jane@example.com", fixedNow, 10000))
			session := checkoutSession("cs_open", 15000, map[string]string{
				paymentgateway.MetadataPendingPaymentID: "pp_1",
			})
			session.Status = paymentgateway.SessionStatusOpen
			session.PaymentStatus = paymentgateway.PaymentStatusUnpaid
			gateway.sessions["cs_open"] = session

			_, err := service.Confirm(ctx, "cs_open", false)

			Expect(errors.Is(err, apperrors.ErrSessionNotPaid)).To(BeTrue())
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeValidation))
			Expect(appErr.StatusCode).To(Equal(400))
			Expect(payments.writes).To(BeZero())
			Expect(payments.get("pp_1").Status).To(Equal(pendingpayment.StatusPending))
			Expect(invoices.calls).To(BeZero())
			Expect(invoices.get("inv_1").Status).To(Equal(invoice.StatusSent))
			Expect(notifier.count()).To(BeZero())
		})

		It("should reject a completed session whose payment is still processing", func() {
			session := checkoutSession("cs_async", 15000, nil)
			session.PaymentStatus = paymentgateway.PaymentStatusUnpaid
			gateway.sessions["cs_async"] = session

			_, err := service.Confirm(ctx, "cs_async", false)

			Expect(errors.Is(err, apperrors.ErrSessionNotPaid)).To(BeTrue())
			Expect(payments.writes).To(BeZero())
			Expect(payments.all()).To(BeEmpty())
		})

		It("should treat a missing gateway as unconfigured", func() {
			gateway = nil
			svc := paymentPkg.NewService(paymentPkg.Dependencies{PendingPayment: payments, Invoice: invoices, Logger: discardLogger()})

			_, err := svc.Confirm(ctx, "cs_1", false)

			Expect(errors.Is(err, apperrors.ErrGatewayNotConfigured)).To(BeTrue())
			Expect(payments.calls).To(BeZero())
		})
	})

	Context("with a pending payment in the session metadata", func() {
		BeforeEach(func() {
			payments.seed(pendingQuote("pp_1", 10000))
			gateway.sessions["cs_1"] = checkoutSession("cs_1", 15000, map[string]string{
				paymentgateway.MetadataPendingPaymentID: "pp_1",
				paymentgateway.MetadataInvoiceNumber:    "INV-100",
			})
		})

		It("should complete the payment, settle the invoice and return a receipt", func() {
			invoices.seed(openInvoice("inv_1", "jane@example.com", fixedNow, 10000))

			receipt, err := service.Confirm(ctx, "cs_1", false)

			Expect(err).ToNot(HaveOccurred())
			Expect(receipt.TotalAmount).To(Equal("USD 150.00"))
			Expect(receipt.BaseAmount).To(Equal("USD 100.00"))
			Expect(receipt.BonusAmount).To(Equal("USD 50.00"))
			Expect(receipt.ClientEmail).To(Equal("jane@example.com"))
			Expect(receipt.TransactionID).To(Equal("ch_cs_1"))
			Expect(receipt.InvoiceNumber).To(Equal("INV-inv_1"))
			Expect(receipt.PaymentMethod).To(Equal("card"))
			Expect(receipt.Date).ToNot(BeEmpty())

			Expect(payments.get("pp_1").Status).To(Equal(pendingpayment.StatusCompleted))
			stored := invoices.get("inv_1")
			Expect(stored.Status).To(Equal(invoice.StatusPaid))
			Expect(bonusLines(stored)).To(Equal(1))
			Expect(notifier.sent).To(ConsistOf("jane@example.com"))

			eventBus.Wait()
			Expect(published).To(HaveLen(1))
			Expect(published[0].SessionID).To(Equal("cs_1"))
			Expect(published[0].BonusCents).To(Equal(int64(5000)))
		})

		It("should be idempotent across repeated confirmations", func() {
			invoices.seed(openInvoice("inv_1", "jane@example.com", fixedNow, 10000))

			first, err := service.Confirm(ctx, "cs_1", false)
			Expect(err).ToNot(HaveOccurred())
			second, err := service.Confirm(ctx, "cs_1", false)
			Expect(err).ToNot(HaveOccurred())

			Expect(second).To(Equal(first))
			Expect(payments.writes).To(Equal(1))
			Expect(paidTransitions(invoices)).To(Equal(1))
			Expect(bonusLines(invoices.get("inv_1"))).To(Equal(1))
			Expect(notifier.count()).To(Equal(1))

			eventBus.Wait()
			Expect(published).To(HaveLen(1))
		})

		It("should name the settled invoice in the notified receipt", func() {
			invoices.seed(openInvoice("inv_7", "jane@example.com", fixedNow, 10000))

			receipt, err := service.Confirm(ctx, "cs_1", false)

			Expect(err).ToNot(HaveOccurred())
			Expect(receipt.InvoiceNumber).To(Equal("INV-inv_7"))
			Expect(notifier.receipts).To(HaveLen(1))
			Expect(notifier.receipts[0].InvoiceNumber).To(Equal("INV-inv_7"))

			eventBus.Wait()
			Expect(published).To(HaveLen(1))
			Expect(published[0].InvoiceNumber).To(Equal("INV-inv_7"))
		})

		It("should keep the quoted invoice number when the invoice stage fails", func() {
			invoices.lookupError = errors.New("index missing")

			receipt, err := service.Confirm(ctx, "cs_1", true)

			Expect(err).ToNot(HaveOccurred())
			Expect(receipt.InvoiceNumber).To(Equal("INV-100"))
		})

		It("should finish the invoice stage on a repeated confirmation", func() {
			invoices.seed(openInvoice("inv_1", "jane@example.com", fixedNow, 10000))
			invoices.lookupError = errors.New("transient")

			first, err := service.Confirm(ctx, "cs_1", false)
			Expect(err).ToNot(HaveOccurred())
			Expect(invoices.get("inv_1").Status).To(Equal(invoice.StatusSent))

			invoices.lookupError = nil
			second, err := service.Confirm(ctx, "cs_1", false)
			Expect(err).ToNot(HaveOccurred())

			stored := invoices.get("inv_1")
			Expect(stored.Status).To(Equal(invoice.StatusPaid))
			Expect(bonusLines(stored)).To(Equal(1))
			Expect(*stored.GatewaySessionID).To(Equal("cs_1"))
			Expect(second.InvoiceNumber).To(Equal("INV-inv_1"))
			Expect(second.TotalAmount).To(Equal(first.TotalAmount))
			Expect(payments.writes).To(Equal(1))
			Expect(notifier.count()).To(Equal(1))

			_, err = service.Confirm(ctx, "cs_1", false)
			Expect(err).ToNot(HaveOccurred())
			Expect(paidTransitions(invoices)).To(Equal(1))
			Expect(bonusLines(invoices.get("inv_1"))).To(Equal(1))
		})

		It("should settle a pending payment that was cancelled before checkout completed", func() {
			quote := payments.get("pp_1")
			quote.Status = pendingpayment.StatusCancelled
			payments.seed(quote)

			receipt, err := service.Confirm(ctx, "cs_1", true)

			Expect(err).ToNot(HaveOccurred())
			Expect(receipt.BonusAmount).To(Equal("USD 50.00"))
			Expect(payments.get("pp_1").Status).To(Equal(pendingpayment.StatusCompleted))
		})

		It("should update only the most recently created invoice", func() {
			invoices.seed(openInvoice("older", "jane@example.com", fixedNow.Add(-72*time.Hour), 10000))
			invoices.seed(openInvoice("newest", "jane@example.com", fixedNow, 10000))

			_, err := service.Confirm(ctx, "cs_1", false)

			Expect(err).ToNot(HaveOccurred())
			Expect(invoices.get("newest").Status).To(Equal(invoice.StatusPaid))
			Expect(invoices.get("older").Status).To(Equal(invoice.StatusSent))
			Expect(invoices.get("older").LineItems).To(HaveLen(1))
		})

		It("should synthesize an invoice when the client has none", func() {
			_, err := service.Confirm(ctx, "cs_1", false)

			Expect(err).ToNot(HaveOccurred())
			all := invoices.all()
			Expect(all).To(HaveLen(1))
			Expect(all[0].InvoiceNumber).To(Equal("INV-100"))
			Expect(all[0].Status).To(Equal(invoice.StatusPaid))
			Expect(all[0].Total.Cents()).To(Equal(int64(15000)))
		})

		It("should report a zero bonus for an underpaid session", func() {
			gateway.sessions["cs_1"].AmountTotal = 9000

			receipt, err := service.Confirm(ctx, "cs_1", true)

			Expect(err).ToNot(HaveOccurred())
			Expect(receipt.BonusAmount).To(Equal("USD 0.00"))
			Expect(receipt.TotalAmount).To(Equal("USD 90.00"))
			Expect(payments.get("pp_1").BaseAmount.Cents()).To(Equal(int64(10000)))
		})

		It("should not fail when the invoice stage fails", func() {
			invoices.lookupError = errors.New("index missing")

			receipt, err := service.Confirm(ctx, "cs_1", false)

			Expect(err).ToNot(HaveOccurred())
			Expect(receipt.TotalAmount).To(Equal("USD 150.00"))
			Expect(payments.get("pp_1").Status).To(Equal(pendingpayment.StatusCompleted))
			Expect(notifier.count()).To(Equal(1))
		})

		It("should return the same receipt when the email dispatcher panics", func() {
			baseline, err := service.Confirm(ctx, "cs_1", true)
			Expect(err).ToNot(HaveOccurred())

			payments.seed(pendingQuote("pp_2", 10000))
			gateway.sessions["cs_2"] = checkoutSession("cs_2", 15000, map[string]string{
				paymentgateway.MetadataPendingPaymentID: "pp_2",
				paymentgateway.MetadataInvoiceNumber:    "INV-100",
			})
			notifier.panics = true

			receipt, err := service.Confirm(ctx, "cs_2", false)

			Expect(err).ToNot(HaveOccurred())
			Expect(receipt.TotalAmount).To(Equal(baseline.TotalAmount))
			Expect(receipt.BaseAmount).To(Equal(baseline.BaseAmount))
			Expect(receipt.BonusAmount).To(Equal(baseline.BonusAmount))
			Expect(receipt.ClientEmail).To(Equal(baseline.ClientEmail))
			Expect(receipt.InvoiceNumber).To(Equal(baseline.InvoiceNumber))
		})

		It("should succeed when the email fails to send", func() {
			notifier.fail = errors.New("smtp 421")

			receipt, err := service.Confirm(ctx, "cs_1", false)

			Expect(err).ToNot(HaveOccurred())
			Expect(receipt).ToNot(BeNil())
		})

		It("should not send email when the caller asked to skip it", func() {
			_, err := service.Confirm(ctx, "cs_1", true)

			Expect(err).ToNot(HaveOccurred())
			Expect(notifier.count()).To(BeZero())
		})

		It("should fall back to a standalone record when the pending payment is gone", func() {
			gateway.sessions["cs_1"].Metadata[paymentgateway.MetadataPendingPaymentID] = "pp_deleted"

			receipt, err := service.Confirm(ctx, "cs_1", true)

			Expect(err).ToNot(HaveOccurred())
			Expect(receipt.TotalAmount).To(Equal("USD 150.00"))
			Expect(payments.all()).To(HaveLen(2))
		})
	})

	Context("without a pending payment id", func() {
		It("should record a completed payment using session identity", func() {
			gateway.sessions["cs_9"] = checkoutSession("cs_9", 12000, map[string]string{
				paymentgateway.MetadataClientName:  "Sam Client",
				paymentgateway.MetadataClientEmail: "sam@example.com",
				paymentgateway.MetadataBaseAmount:  "100.00",
			})

			receipt, err := service.Confirm(ctx, "cs_9", false)

			Expect(err).ToNot(HaveOccurred())
			Expect(receipt.ClientEmail).To(Equal("sam@example.com"))
			Expect(receipt.BonusAmount).To(Equal("USD 20.00"))

			records := payments.all()
			Expect(records).To(HaveLen(1))
			Expect(records[0].Status).To(Equal(pendingpayment.StatusCompleted))
			Expect(records[0].ClientName).To(Equal("Sam Client"))
			Expect(*records[0].GatewaySessionID).To(Equal("cs_9"))
			Expect(notifier.sent).To(ConsistOf("sam@example.com"))
		})

		It("should use placeholder identity when nothing is known", func() {
			session := checkoutSession("cs_anon", 5000, nil)
			session.CustomerDetails = nil
			gateway.sessions["cs_anon"] = session

			receipt, err := service.Confirm(ctx, "cs_anon", false)

			Expect(err).ToNot(HaveOccurred())
			Expect(receipt.ClientEmail).To(Equal("unknown@example.com"))
			Expect(receipt.BonusAmount).To(Equal("USD 0.00"))
			Expect(receipt.BaseAmount).To(Equal("USD 50.00"))

			records := payments.all()
			Expect(records).To(HaveLen(1))
			Expect(records[0].ClientName).To(Equal("Unknown Client"))
			Expect(records[0].ClientEmail).To(Equal("unknown@example.com"))
			Expect(invoices.all()).To(HaveLen(1))
			Expect(notifier.count()).To(BeZero())
		})

		It("should record a standalone session only once", func() {
			gateway.sessions["cs_9"] = checkoutSession("cs_9", 12000, nil)

			first, err := service.Confirm(ctx, "cs_9", false)
			Expect(err).ToNot(HaveOccurred())
			second, err := service.Confirm(ctx, "cs_9", false)
			Expect(err).ToNot(HaveOccurred())

			Expect(second).To(Equal(first))
			Expect(payments.all()).To(HaveLen(1))
			Expect(invoices.all()).To(HaveLen(1))
			Expect(notifier.count()).To(Equal(1))
		})
	})

	Context("receipt amounts", func() {
		DescribeTable("base plus bonus equals total",
			func(total, base int64) {
				payments.seed(pendingQuote("pp_r", base))
				gateway.sessions["cs_r"] = checkoutSession("cs_r", total, map[string]string{
					paymentgateway.MetadataPendingPaymentID: "pp_r",
				})

				receipt, err := service.Confirm(ctx, "cs_r", true)
				Expect(err).ToNot(HaveOccurred())

				sum := money.MustParse(receipt.BaseAmount).Add(money.MustParse(receipt.BonusAmount))
				Expect(sum.Equal(money.MustParse(receipt.TotalAmount))).To(BeTrue())
			},
			Entry("bonus", int64(15000), int64(10000)),
			Entry("exact", int64(10000), int64(10000)),
			Entry("underpaid", int64(9000), int64(10000)),
			Entry("odd cents", int64(10001), int64(9999)),
		)
	})

	Context("upstream failures", func() {
		It("should map gateway errors to an upstream error", func() {
			gateway.err = errors.New("connection reset")

			_, err := service.Confirm(ctx, "cs_1", false)

			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeUpstream))
			Expect(appErr.StatusCode).To(Equal(500))
			Expect(payments.calls).To(BeZero())
		})

		It("should map store failures of the payment stage to an upstream error", func() {
			gateway.sessions["cs_1"] = checkoutSession("cs_1", 15000, map[string]string{
				paymentgateway.MetadataPendingPaymentID: "pp_1",
			})
			payments.getError = errors.New("unavailable")

			_, err := service.Confirm(ctx, "cs_1", false)

			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeUpstream))
		})

		It("should map a held session lock to an upstream error", func() {
			locker := lock.NewMemoryLocker()
			_, err := locker.Acquire(ctx, "confirm:cs_1")
			Expect(err).ToNot(HaveOccurred())
			svc := paymentPkg.NewService(paymentPkg.Dependencies{
				Gateway:        gateway,
				PendingPayment: payments,
				Invoice:        invoices,
				Locker:         locker,
				LockRetry:      lock.RetryPolicy{Attempts: 2, Wait: time.Millisecond},
				Logger:         discardLogger(),
			})

			_, err = svc.Confirm(ctx, "cs_1", false)

			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeUpstream))
			Expect(gateway.calls).To(BeZero())
		})
	})

	It("should serialize concurrent confirmations of one session", func() {
		payments.seed(pendingQuote("pp_1", 10000))
		invoices.seed(openInvoice("inv_1", "jane@example.com", fixedNow, 10000))
		gateway.sessions["cs_1"] = checkoutSession("cs_1", 15000, map[string]string{
			paymentgateway.MetadataPendingPaymentID: "pp_1",
		})
		svc := paymentPkg.NewService(paymentPkg.Dependencies{
			Gateway:        gateway,
			PendingPayment: payments,
			Invoice:        invoices,
			Notifier:       notifier,
			Locker:         lock.NewMemoryLocker(),
			LockRetry:      lock.RetryPolicy{Attempts: 200, Wait: time.Millisecond},
			Logger:         discardLogger(),
		})

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := svc.Confirm(ctx, "cs_1", false)
				Expect(err).ToNot(HaveOccurred())
			}()
		}
		wg.Wait()

		Expect(payments.writes).To(Equal(1))
		Expect(bonusLines(invoices.get("inv_1"))).To(Equal(1))
		Expect(notifier.count()).To(Equal(1))
	})
})
