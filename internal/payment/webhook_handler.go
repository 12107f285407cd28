package payment

import (
	"io"
	"net/http"

	errors "github.com/frahmantamala/payconfirm/internal"
	"github.com/frahmantamala/payconfirm/internal/transport"
)

const maxCallbackBodyBytes = 1 << 20

type WebhookHandler struct {
	*transport.BaseHandler
	paymentService ServiceAPI
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, paymentService ServiceAPI) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler:    baseHandler,
		paymentService: paymentService,
	}
}

// HandlePaymentCallback handles POST /api/v1/payments/callback. Duplicate and
// unmatched callbacks are acknowledged with 200; only ledger failures return
// 5xx so the gateway retries.
func (h *WebhookHandler) HandlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBodyBytes))
	if err != nil {
		h.Logger.Error("failed to read payment callback body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeInvalidPayload))
		return
	}

	resp, err := h.paymentService.HandleCallback(r.Context(), body)
	if err != nil {
		h.Logger.Warn("payment callback rejected", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("payment callback processed", "outcome", resp.Outcome)
	h.WriteJSON(w, http.StatusOK, resp)
}
