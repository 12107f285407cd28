package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentInitiated = "payment.initiated"
	EventTypePaymentCompleted = "payment.completed"
	EventTypePaymentFailed    = "payment.failed"
	EventTypePaymentAnomaly   = "payment.anomaly"
)

// Anomaly reasons for callbacks that did not change the ledger.
const (
	AnomalyReasonDuplicate = "duplicate"
	AnomalyReasonUnmatched = "unmatched"
)

func newBaseEvent(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

type PaymentInitiatedEvent struct {
	BaseEvent
	IdempotencyToken     string `json:"idempotency_token"`
	GatewayTransactionID string `json:"gateway_transaction_id"`
	Amount               int64  `json:"amount"`
	Label                string `json:"label"`
	Persisted            bool   `json:"persisted"`
}

func NewPaymentInitiatedEvent(token, transactionID string, amount int64, label string, persisted bool) *PaymentInitiatedEvent {
	return &PaymentInitiatedEvent{
		BaseEvent: newBaseEvent(EventTypePaymentInitiated, map[string]interface{}{
			"idempotency_token":      token,
			"gateway_transaction_id": transactionID,
			"amount":                 amount,
			"label":                  label,
			"persisted":              persisted,
		}),
		IdempotencyToken:     token,
		GatewayTransactionID: transactionID,
		Amount:               amount,
		Label:                label,
		Persisted:            persisted,
	}
}

type PaymentCompletedEvent struct {
	BaseEvent
	IdempotencyToken string `json:"idempotency_token"`
	Amount           int64  `json:"amount"`
	ReceiptNumber    string `json:"receipt_number"`
}

func NewPaymentCompletedEvent(token string, amount int64, receiptNumber string) *PaymentCompletedEvent {
	return &PaymentCompletedEvent{
		BaseEvent: newBaseEvent(EventTypePaymentCompleted, map[string]interface{}{
			"idempotency_token": token,
			"amount":            amount,
			"receipt_number":    receiptNumber,
		}),
		IdempotencyToken: token,
		Amount:           amount,
		ReceiptNumber:    receiptNumber,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	IdempotencyToken string `json:"idempotency_token"`
	Amount           int64  `json:"amount"`
	ResultCode       string `json:"result_code"`
	FailureReason    string `json:"failure_reason"`
}

func NewPaymentFailedEvent(token string, amount int64, resultCode, failureReason string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: newBaseEvent(EventTypePaymentFailed, map[string]interface{}{
			"idempotency_token": token,
			"amount":            amount,
			"result_code":       resultCode,
			"failure_reason":    failureReason,
		}),
		IdempotencyToken: token,
		Amount:           amount,
		ResultCode:       resultCode,
		FailureReason:    failureReason,
	}
}

// PaymentAnomalyEvent reports a callback that matched no pending record.
type PaymentAnomalyEvent struct {
	BaseEvent
	IdempotencyToken string `json:"idempotency_token"`
	Reason           string `json:"reason"`
	ResultCode       string `json:"result_code"`
	CurrentStatus    string `json:"current_status,omitempty"`
}

func NewPaymentAnomalyEvent(token, reason, resultCode, currentStatus string) *PaymentAnomalyEvent {
	return &PaymentAnomalyEvent{
		BaseEvent: newBaseEvent(EventTypePaymentAnomaly, map[string]interface{}{
			"idempotency_token": token,
			"reason":            reason,
			"result_code":       resultCode,
			"current_status":    currentStatus,
		}),
		IdempotencyToken: token,
		Reason:           reason,
		ResultCode:       resultCode,
		CurrentStatus:    currentStatus,
	}
}
