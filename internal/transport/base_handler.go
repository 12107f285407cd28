package transport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/frahmantamala/payconfirm/internal"
	"github.com/frahmantamala/payconfirm/pkg/logger"
)

// BaseHandler provides common functionality for HTTP handlers
type BaseHandler struct {
	Logger *slog.Logger
}

// NewBaseHandler creates a base handler with logger
func NewBaseHandler(lg *slog.Logger) *BaseHandler {
	if lg == nil {
		lg = logger.LoggerWrapper()
		if lg == nil {
			lg = slog.Default()
		}
	}
	return &BaseHandler{Logger: lg}
}

// WriteJSON writes a JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("failed to encode JSON response", "error", err)
	}
}

// HandleError renders an AppError in the standard envelope.
func (h *BaseHandler) HandleError(w http.ResponseWriter, appErr *apperrors.AppError) {
	status, body := appErr.ToHTTPResponse()
	if status == 0 {
		status = http.StatusInternalServerError
	}
	h.WriteJSON(w, status, body)
}

// HandleServiceError maps an error returned by a service to an HTTP response.
// Anything that is not an AppError becomes a 500 without leaking its text.
func (h *BaseHandler) HandleServiceError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	if appErr, ok := apperrors.IsAppError(err); ok {
		if appErr.StatusCode >= http.StatusInternalServerError {
			h.Logger.Error("service error", "code", appErr.Code, "error", err)
		}
		h.HandleError(w, appErr)
		return
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		h.HandleError(w, apperrors.NewValidationError("invalid request body", apperrors.ErrCodeInvalidPayload))
		return
	}

	h.Logger.Error("unhandled service error", "error", err)
	h.HandleError(w, apperrors.NewInternalError("internal server error", err))
}

// DecodeJSON decodes the request body into dst, returning an INVALID_PAYLOAD
// validation error on malformed input.
func (h *BaseHandler) DecodeJSON(r *http.Request, dst interface{}) *apperrors.AppError {
	if r.Body == nil {
		return apperrors.NewValidationError("request body is required", apperrors.ErrCodeInvalidPayload)
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.NewValidationError("invalid request body", apperrors.ErrCodeInvalidPayload).WithCause(err)
	}
	return nil
}
