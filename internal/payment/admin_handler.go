package payment

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/coaching-payments/internal"
	"github.com/frahmantamala/coaching-payments/internal/transport"
)

const (
	defaultInvoiceListLimit = 20
	maxInvoiceListLimit     = 100
)

// AdminHandler exposes read-only views operators use to reconcile payments
// from logs.
type AdminHandler struct {
	transport.BaseHandler
	PendingPayments PendingPaymentRepository
	Invoices        InvoiceRepository
}

func NewAdminHandler(pendingPayments PendingPaymentRepository, invoices InvoiceRepository, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		BaseHandler:     transport.BaseHandler{Logger: logger},
		PendingPayments: pendingPayments,
		Invoices:        invoices,
	}
}

// GetPendingPayment handles GET /api/v1/admin/pending-payments/{id}
func (h *AdminHandler) GetPendingPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.HandleError(w, errors.NewValidationFieldError("id", "id is required", errors.ErrCodeValidationFailed))
		return
	}

	p, err := h.PendingPayments.GetByID(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToPendingPaymentResponse(p))
}

// ListInvoices handles GET /api/v1/admin/invoices?client_email=&limit=
func (h *AdminHandler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("client_email")
	if email == "" {
		h.HandleError(w, errors.NewValidationFieldError("client_email", "client_email is required", errors.ErrCodeValidationFailed))
		return
	}

	limit := defaultInvoiceListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.HandleError(w, errors.NewValidationFieldError("limit", "limit must be a positive integer", errors.ErrCodeValidationFailed))
			return
		}
		limit = min(n, maxInvoiceListLimit)
	}

	invoices, err := h.Invoices.ListByClientEmail(r.Context(), email, limit)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	resp := make([]InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		resp = append(resp, ToInvoiceResponse(inv))
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"invoices": resp,
		"count":    len(resp),
	})
}
