package payment

import (
	"strings"
	"time"

	errors "github.com/frahmantamala/payconfirm/internal"
	"github.com/frahmantamala/payconfirm/internal/core/common/validation"
)

type InitiateRequest struct {
	Phone  string `json:"phone"`
	Amount int64  `json:"amount"`
	Label  string `json:"label"`
}

func (r *InitiateRequest) Validate(minimumAmount int64) *errors.AppError {
	return validation.ValidatePaymentRequest(r.Phone, r.Amount, r.Label, minimumAmount)
}

// Normalized returns a copy with the phone in 254XXXXXXXXX form and the label trimmed.
func (r *InitiateRequest) Normalized() InitiateRequest {
	phone, _ := validation.NormalizePhone(r.Phone)
	return InitiateRequest{
		Phone:  phone,
		Amount: r.Amount,
		Label:  strings.TrimSpace(r.Label),
	}
}

type InitiateResponse struct {
	Success              bool   `json:"success"`
	IdempotencyToken     string `json:"idempotencyToken"`
	GatewayTransactionID string `json:"gatewayTransactionId,omitempty"`
	Message              string `json:"message"`
}

type StatusRequest struct {
	IdempotencyToken string `json:"idempotencyToken"`
}

func (r *StatusRequest) Validate() *errors.AppError {
	validator := validation.NewValidator()
	validator.Field("idempotencyToken", r.IdempotencyToken).Required()
	return validator.Validate()
}

type StatusResponse struct {
	Success           bool       `json:"success"`
	IdempotencyToken  string     `json:"idempotencyToken"`
	Status            string     `json:"status"`
	ResultCode        string     `json:"resultCode,omitempty"`
	ResultDescription string     `json:"resultDescription,omitempty"`
	ReceiptNumber     string     `json:"receiptNumber,omitempty"`
	Amount            int64      `json:"amount"`
	Phone             string     `json:"phone"`
	Label             string     `json:"label"`
	CreatedAt         time.Time  `json:"createdAt"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
}

type CallbackResponse struct {
	Success bool   `json:"success"`
	Outcome string `json:"outcome"`
}
