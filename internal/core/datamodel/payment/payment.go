package payment

import (
	"encoding/json"
	"time"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// PaymentRecord is one push-prompt attempt, keyed by the gateway-issued token.
type PaymentRecord struct {
	ID                   int64      `gorm:"primaryKey"`
	IdempotencyToken     string     `gorm:"column:idempotency_token;not null;uniqueIndex"`
	GatewayTransactionID string     `gorm:"column:gateway_transaction_id"`
	Phone                string     `gorm:"column:phone;not null"`
	Amount               int64      `gorm:"column:amount;not null"`
	Label                string     `gorm:"column:label;not null"`
	Status               string     `gorm:"column:status;not null;default:pending;index"`
	ResultCode           *string    `gorm:"column:result_code"`
	ResultDescription    *string    `gorm:"column:result_description"`
	ReceiptNumber        *string    `gorm:"column:receipt_number"`
	CompletedAt          *time.Time `gorm:"column:completed_at"`
	CreatedAt            time.Time  `gorm:"column:created_at"`
	UpdatedAt            time.Time  `gorm:"column:updated_at"`
}

func (PaymentRecord) TableName() string {
	return "payments"
}

// TerminalUpdate carries the fields written by the single pending -> terminal transition.
type TerminalUpdate struct {
	Status            string
	ResultCode        string
	ResultDescription string
	ReceiptNumber     string
	CompletedAt       time.Time
}

const (
	CallbackOutcomeApplied   = "applied"
	CallbackOutcomeDuplicate = "duplicate"
	CallbackOutcomeUnmatched = "unmatched"
)

// CallbackRecord is the audit trail of every gateway callback, applied or not.
type CallbackRecord struct {
	ID               int64           `gorm:"primaryKey"`
	IdempotencyToken string          `gorm:"column:idempotency_token;not null;index"`
	ResultCode       string          `gorm:"column:result_code"`
	Outcome          string          `gorm:"column:outcome;not null"`
	Payload          json.RawMessage `gorm:"column:payload;type:jsonb"`
	ReceivedAt       time.Time       `gorm:"column:received_at"`
}

func (CallbackRecord) TableName() string {
	return "payment_callbacks"
}
