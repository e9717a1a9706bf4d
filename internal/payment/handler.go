package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"

	errors "github.com/frahmantamala/coaching-payments/internal"
	"github.com/frahmantamala/coaching-payments/internal/transport"
	"github.com/frahmantamala/coaching-payments/pkg/logger"
)

type Handler struct {
	transport.BaseHandler
	PaymentService ServiceAPI
	Logger         *slog.Logger
}

func NewHandler(paymentService ServiceAPI, log *slog.Logger) *Handler {
	return &Handler{
		BaseHandler:    transport.BaseHandler{Logger: log},
		PaymentService: paymentService,
		Logger:         log,
	}
}

// ConfirmPayment handles POST /api/v1/payments/confirm
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	log := logger.FromOr(r.Context(), h.Logger)

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("ConfirmPayment: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	if err := req.Validate(); err != nil {
		log.Warn("ConfirmPayment: validation error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	receipt, err := h.PaymentService.Confirm(r.Context(), req.SessionID, req.SkipEmail)
	if err != nil {
		log.Error("ConfirmPayment: service error", "error", err, "session_id", req.SessionID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, receipt)
}
