package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/coaching-payments/internal"
	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/pendingpayment"
	"github.com/frahmantamala/coaching-payments/internal/core/money"
	paymentPkg "github.com/frahmantamala/coaching-payments/internal/payment"
)

// Mock service for testing
type mockService struct {
	receipt   *paymentPkg.Receipt
	err       error
	sessionID string
	skipEmail bool
	calls     int
}

func (m *mockService) Confirm(_ context.Context, sessionID string, skipEmail bool) (*paymentPkg.Receipt, error) {
	m.calls++
	m.sessionID = sessionID
	m.skipEmail = skipEmail
	return m.receipt, m.err
}

type errorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

var _ = Describe("Handler", func() {
	var (
		svc     *mockService
		handler *paymentPkg.Handler
	)

	BeforeEach(func() {
		svc = &mockService{}
		handler = paymentPkg.NewHandler(svc, discardLogger())
	})

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/confirm", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		handler.ConfirmPayment(w, req)
		return w
	}

	It("should return the receipt on success", func() {
		svc.receipt = &paymentPkg.Receipt{
			SessionID:     "cs_1",
			TotalAmount:   "USD 150.00",
			BaseAmount:    "USD 100.00",
			BonusAmount:   "USD 50.00",
			ClientEmail:   "jane@example.com",
			TransactionID: "ch_1",
			InvoiceNumber: "INV-1",
			Date:          "2024-03-01T10:00:00Z",
		}

		w := post(`{"sessionId":"cs_1","skipEmail":true}`)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(svc.sessionID).To(Equal("cs_1"))
		Expect(svc.skipEmail).To(BeTrue())

		var body map[string]string
		Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
		Expect(body).To(HaveKeyWithValue("totalAmount", "USD 150.00"))
		Expect(body).To(HaveKeyWithValue("baseAmount", "USD 100.00"))
		Expect(body).To(HaveKeyWithValue("bonusAmount", "USD 50.00"))
		Expect(body).To(HaveKeyWithValue("clientEmail", "jane@example.com"))
		Expect(body).To(HaveKeyWithValue("transactionId", "ch_1"))
		Expect(body).To(HaveKeyWithValue("invoiceNumber", "INV-1"))
		Expect(body).To(HaveKey("date"))
	})

	It("should return 400 for a missing session id without calling the service", func() {
		w := post(`{}`)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(svc.calls).To(BeZero())
		var env errorEnvelope
		Expect(json.Unmarshal(w.Body.Bytes(), &env)).To(Succeed())
		Expect(env.Error.Type).To(Equal("VALIDATION_ERROR"))
	})

	It("should return 400 for malformed JSON", func() {
		w := post(`{"sessionId":`)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("should return 500 for configuration errors", func() {
		svc.err = apperrors.ErrGatewayNotConfigured

		w := post(`{"sessionId":"cs_1"}`)

		Expect(w.Code).To(Equal(http.StatusInternalServerError))
		var env errorEnvelope
		Expect(json.Unmarshal(w.Body.Bytes(), &env)).To(Succeed())
		Expect(env.Error.Type).To(Equal("CONFIGURATION_ERROR"))
	})

	It("should hide unexpected error details", func() {
		svc.err = errors.New("pq: relation pending_payments does not exist")

		w := post(`{"sessionId":"cs_1"}`)

		Expect(w.Code).To(Equal(http.StatusInternalServerError))
		Expect(w.Body.String()).ToNot(ContainSubstring("pending_payments"))
		var env errorEnvelope
		Expect(json.Unmarshal(w.Body.Bytes(), &env)).To(Succeed())
		Expect(env.Error.Type).To(Equal("UPSTREAM_ERROR"))
	})
})

var _ = Describe("AdminHandler", func() {
	var (
		payments *mockPendingPaymentRepository
		invoices *mockInvoiceRepository
		router   *chi.Mux
	)

	BeforeEach(func() {
		payments = newMockPendingPaymentRepository()
		invoices = newMockInvoiceRepository()
		h := paymentPkg.NewAdminHandler(payments, invoices, discardLogger())
		router = chi.NewRouter()
		router.Get("/pending-payments/{id}", h.GetPendingPayment)
		router.Get("/invoices", h.ListInvoices)
	})

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, &bytes.Buffer{}))
		return w
	}

	It("should return a pending payment", func() {
		p := pendingQuote("pp_1", 10000)
		total := money.FromCents(15000)
		p.TotalAmount = &total
		p.Status = pendingpayment.StatusCompleted
		payments.seed(p)

		w := get("/pending-payments/pp_1")

		Expect(w.Code).To(Equal(http.StatusOK))
		var body map[string]interface{}
		Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
		Expect(body).To(HaveKeyWithValue("status", "completed"))
		Expect(body).To(HaveKeyWithValue("totalAmount", "USD 150.00"))
		Expect(body).ToNot(HaveKey("notes"))
	})

	It("should return 404 for unknown pending payments", func() {
		w := get("/pending-payments/missing")

		Expect(w.Code).To(Equal(http.StatusNotFound))
	})

	It("should list invoices newest first", func() {
		invoices.seed(openInvoice("a", "jane@example.com", fixedNow.AddDate(0, 0, -1), 10000))
		invoices.seed(openInvoice("b", "jane@example.com", fixedNow, 10000))

		w := get("/invoices?client_email=jane@example.com&limit=1")

		Expect(w.Code).To(Equal(http.StatusOK))
		var body struct {
			Invoices []paymentPkg.InvoiceResponse `json:"invoices"`
			Count    int                          `json:"count"`
		}
		Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Count).To(Equal(1))
		Expect(body.Invoices[0].ID).To(Equal("b"))
	})

	It("should require client_email", func() {
		Expect(get("/invoices").Code).To(Equal(http.StatusBadRequest))
		Expect(get("/invoices?client_email=a@b.c&limit=-1").Code).To(Equal(http.StatusBadRequest))
	})
})
