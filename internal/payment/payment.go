package payment

import (
	"time"

	"github.com/frahmantamala/payconfirm/internal/core/datamodel/payment"
)

type Payment struct {
	IdempotencyToken     string
	GatewayTransactionID string
	Phone                string
	Amount               int64
	Label                string
	Status               string
	ResultCode           string
	ResultDescription    string
	ReceiptNumber        string
	CreatedAt            time.Time
	CompletedAt          *time.Time
}

func FromDataModel(p *payment.PaymentRecord) *Payment {
	if p == nil {
		return nil
	}
	return &Payment{
		IdempotencyToken:     p.IdempotencyToken,
		GatewayTransactionID: p.GatewayTransactionID,
		Phone:                p.Phone,
		Amount:               p.Amount,
		Label:                p.Label,
		Status:               p.Status,
		ResultCode:           deref(p.ResultCode),
		ResultDescription:    deref(p.ResultDescription),
		ReceiptNumber:        deref(p.ReceiptNumber),
		CreatedAt:            p.CreatedAt,
		CompletedAt:          p.CompletedAt,
	}
}

func (p *Payment) ToStatusResponse() StatusResponse {
	return StatusResponse{
		Success:           true,
		IdempotencyToken:  p.IdempotencyToken,
		Status:            p.Status,
		ResultCode:        p.ResultCode,
		ResultDescription: p.ResultDescription,
		ReceiptNumber:     p.ReceiptNumber,
		Amount:            p.Amount,
		Phone:             p.Phone,
		Label:             p.Label,
		CreatedAt:         p.CreatedAt,
		CompletedAt:       p.CompletedAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
