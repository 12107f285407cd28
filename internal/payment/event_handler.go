package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/payconfirm/internal/core/events"
)

// EventHandler logs payment lifecycle events and counts them.
type EventHandler struct {
	metrics *Metrics
	logger  *slog.Logger
}

func NewEventHandler(metrics *Metrics, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		metrics: metrics,
		logger:  logger,
	}
}

func (h *EventHandler) HandlePaymentInitiated(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.PaymentInitiatedEvent)
	if !ok {
		return fmt.Errorf("expected PaymentInitiatedEvent, got %T", event)
	}

	h.metrics.event(e.EventType())
	h.logger.Info("payment awaiting confirmation",
		"idempotency_token", e.IdempotencyToken,
		"amount", e.Amount,
		"label", e.Label,
		"persisted", e.Persisted,
		"event_id", e.EventID())
	return nil
}

func (h *EventHandler) HandlePaymentCompleted(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.PaymentCompletedEvent)
	if !ok {
		return fmt.Errorf("expected PaymentCompletedEvent, got %T", event)
	}

	h.metrics.event(e.EventType())
	h.logger.Info("payment completed",
		"idempotency_token", e.IdempotencyToken,
		"amount", e.Amount,
		"receipt_number", e.ReceiptNumber,
		"event_id", e.EventID())
	return nil
}

func (h *EventHandler) HandlePaymentFailed(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.PaymentFailedEvent)
	if !ok {
		return fmt.Errorf("expected PaymentFailedEvent, got %T", event)
	}

	h.metrics.event(e.EventType())
	h.logger.Info("payment failed",
		"idempotency_token", e.IdempotencyToken,
		"result_code", e.ResultCode,
		"failure_reason", e.FailureReason,
		"event_id", e.EventID())
	return nil
}

func (h *EventHandler) HandlePaymentAnomaly(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.PaymentAnomalyEvent)
	if !ok {
		return fmt.Errorf("expected PaymentAnomalyEvent, got %T", event)
	}

	h.metrics.event(e.EventType())
	h.logger.Warn("payment reconciliation anomaly",
		"idempotency_token", e.IdempotencyToken,
		"reason", e.Reason,
		"result_code", e.ResultCode,
		"current_status", e.CurrentStatus,
		"event_id", e.EventID())
	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentInitiated, h.HandlePaymentInitiated)
	eventBus.Subscribe(events.EventTypePaymentCompleted, h.HandlePaymentCompleted)
	eventBus.Subscribe(events.EventTypePaymentFailed, h.HandlePaymentFailed)
	eventBus.Subscribe(events.EventTypePaymentAnomaly, h.HandlePaymentAnomaly)

	h.logger.Info("payment event handlers registered",
		"handlers", []string{
			events.EventTypePaymentInitiated,
			events.EventTypePaymentCompleted,
			events.EventTypePaymentFailed,
			events.EventTypePaymentAnomaly,
		})
}
