package payment

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/payconfirm/internal/transport"
)

type ServiceAPI interface {
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error)
	HandleCallback(ctx context.Context, raw []byte) (*CallbackResponse, error)
	GetStatus(ctx context.Context, token string) (*StatusResponse, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

// InitiatePayment handles POST /api/v1/payments/initiate
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req InitiateRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.Logger.Warn("InitiatePayment: failed to parse request body", "error", appErr)
		h.HandleError(w, appErr)
		return
	}

	resp, err := h.Service.Initiate(r.Context(), req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

// GetPaymentStatus handles POST /api/v1/payments/status
func (h *Handler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	h.writeStatus(w, r, req.IdempotencyToken)
}

// GetPaymentStatusByToken handles GET /api/v1/payments/{token}/status
func (h *Handler) GetPaymentStatusByToken(w http.ResponseWriter, r *http.Request) {
	h.writeStatus(w, r, chi.URLParam(r, "token"))
}

func (h *Handler) writeStatus(w http.ResponseWriter, r *http.Request, token string) {
	resp, err := h.Service.GetStatus(r.Context(), token)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}
