package payment

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	errors "github.com/frahmantamala/payconfirm/internal"
	"github.com/frahmantamala/payconfirm/internal/core/datamodel/payment"
	"github.com/frahmantamala/payconfirm/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/payconfirm/internal/core/events"
)

var tracer = otel.Tracer("github.com/frahmantamala/payconfirm/internal/payment")

// ErrRecordNotFound is returned by repositories when no record carries the token.
var ErrRecordNotFound = stderrors.New("payment record not found")

type RepositoryAPI interface {
	Create(ctx context.Context, p *payment.PaymentRecord) error
	GetByToken(ctx context.Context, token string) (*payment.PaymentRecord, error)
	ApplyTerminalUpdate(ctx context.Context, token string, update payment.TerminalUpdate) (bool, error)
	RecordCallback(ctx context.Context, c *payment.CallbackRecord) error
}

// GatewayAPI triggers a push prompt. Implementations return
// errors.ErrGatewayUnavailable or errors.GatewayRejected on failure.
type GatewayAPI interface {
	PushSTK(ctx context.Context, req *paymentgateway.PushRequest) (*paymentgateway.PushResponse, error)
}

type ServiceConfig struct {
	MinimumAmount int64
	CallbackURL   string
}

type Service struct {
	repo     RepositoryAPI
	gateway  GatewayAPI
	eventBus *events.EventBus
	metrics  *Metrics
	logger   *slog.Logger
	config   ServiceConfig
	now      func() time.Time
}

func NewService(repo RepositoryAPI, gateway GatewayAPI, eventBus *events.EventBus, metrics *Metrics, logger *slog.Logger, cfg ServiceConfig) *Service {
	if cfg.MinimumAmount <= 0 {
		cfg.MinimumAmount = errors.DefaultMinimumAmount
	}
	return &Service{
		repo:     repo,
		gateway:  gateway,
		eventBus: eventBus,
		metrics:  metrics,
		logger:   logger,
		config:   cfg,
		now:      time.Now,
	}
}

// Initiate validates the request, asks the gateway for a push prompt and
// records a pending ledger entry under the returned token.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	ctx, span := tracer.Start(ctx, "payment.Initiate")
	defer span.End()

	if appErr := req.Validate(s.config.MinimumAmount); appErr != nil {
		s.metrics.initiation("invalid")
		return nil, appErr
	}
	normalized := req.Normalized()

	timer := s.metrics.gatewayTimer()
	pushResp, err := s.gateway.PushSTK(ctx, &paymentgateway.PushRequest{
		Phone:       normalized.Phone,
		Amount:      normalized.Amount,
		BundleName:  normalized.Label,
		CallbackURL: s.config.CallbackURL,
	})
	timer.ObserveDuration()
	if err != nil {
		appErr, ok := errors.IsAppError(err)
		if !ok {
			appErr = errors.ErrGatewayUnavailable.WithCause(err)
		}
		s.metrics.initiation(string(appErr.Code))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(appErr.Code))
		s.logger.Error("gateway push failed",
			"error", err,
			"code", appErr.Code,
			"phone", normalized.Phone,
			"amount", normalized.Amount)
		return nil, appErr
	}
	if pushResp == nil || pushResp.CheckoutRequestID == "" {
		s.metrics.initiation(string(errors.ErrCodeGatewayRejected))
		s.logger.Error("gateway accepted push without a token", "phone", normalized.Phone)
		return nil, errors.GatewayRejected("gateway did not return a checkout request id")
	}

	token := pushResp.CheckoutRequestID
	span.SetAttributes(attribute.String("payment.idempotency_token", token))
	record := &payment.PaymentRecord{
		IdempotencyToken:     token,
		GatewayTransactionID: pushResp.TransactionID,
		Phone:                normalized.Phone,
		Amount:               normalized.Amount,
		Label:                normalized.Label,
		Status:               payment.StatusPending,
	}

	persisted := true
	if err := s.repo.Create(ctx, record); err != nil {
		// the prompt is already on the user's phone; the callback will
		// surface as an unmatched anomaly
		persisted = false
		span.RecordError(err)
		s.metrics.persistenceWarning()
		s.logger.Error("persistence warning: failed to record initiated payment",
			"error", err,
			"idempotency_token", token,
			"phone", normalized.Phone,
			"amount", normalized.Amount)
	}

	s.metrics.initiation("accepted")
	s.publish(ctx, events.NewPaymentInitiatedEvent(token, pushResp.TransactionID, normalized.Amount, normalized.Label, persisted))

	s.logger.Info("payment initiated",
		"idempotency_token", token,
		"gateway_transaction_id", pushResp.TransactionID,
		"amount", normalized.Amount)

	message := pushResp.Message
	if message == "" {
		message = "Check your phone and enter your M-PESA PIN to complete the payment"
	}

	return &InitiateResponse{
		Success:              true,
		IdempotencyToken:     token,
		GatewayTransactionID: pushResp.TransactionID,
		Message:              message,
	}, nil
}

// HandleCallback applies a gateway callback at most once per token. Callbacks
// that find no pending record are acknowledged and reported as anomalies.
func (s *Service) HandleCallback(ctx context.Context, raw []byte) (*CallbackResponse, error) {
	var payload paymentgateway.CallbackPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.metrics.callback("malformed")
		return nil, errors.NewValidationError("invalid callback payload", errors.ErrCodeInvalidPayload).WithCause(err)
	}
	if err := payload.Validate(); err != nil {
		s.metrics.callback("malformed")
		return nil, errors.NewValidationError(err.Error(), errors.ErrCodeInvalidPayload)
	}

	token := payload.Token()
	resultCode := string(*payload.ResultCode)

	ctx, span := tracer.Start(ctx, "payment.HandleCallback")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.idempotency_token", token),
		attribute.String("payment.result_code", resultCode),
	)

	update := payment.TerminalUpdate{
		Status:            payment.StatusFailed,
		ResultCode:        resultCode,
		ResultDescription: payload.Description(),
		CompletedAt:       s.now().UTC(),
	}
	if payload.ResultCode.IsSuccess() {
		update.Status = payment.StatusCompleted
		update.ReceiptNumber = payload.Receipt()
		if update.ResultDescription == "" {
			update.ResultDescription = "The service request is processed successfully."
		}
	} else if update.ResultDescription == "" {
		update.ResultDescription = "Payment was not completed"
	}

	applied, err := s.repo.ApplyTerminalUpdate(ctx, token, update)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "terminal update failed")
		s.logger.Error("failed to apply callback", "error", err, "idempotency_token", token)
		return nil, errors.ErrPersistenceFailed.WithCause(err)
	}

	outcome := payment.CallbackOutcomeApplied
	if applied {
		s.logger.Info("callback applied",
			"idempotency_token", token,
			"status", update.Status,
			"result_code", resultCode)
		s.publishTerminal(ctx, token, update, payload)
	} else {
		outcome, err = s.classifyUnapplied(ctx, token, resultCode)
		if err != nil {
			return nil, err
		}
	}
	s.metrics.callback(outcome)
	span.SetAttributes(attribute.String("payment.callback_outcome", outcome))

	s.recordCallback(ctx, token, resultCode, outcome, raw)

	return &CallbackResponse{Success: true, Outcome: outcome}, nil
}

func (s *Service) classifyUnapplied(ctx context.Context, token, resultCode string) (string, error) {
	existing, err := s.repo.GetByToken(ctx, token)
	switch {
	case stderrors.Is(err, ErrRecordNotFound):
		s.metrics.anomaly(events.AnomalyReasonUnmatched)
		s.logger.Warn("reconciliation anomaly: callback for unknown token",
			"idempotency_token", token,
			"result_code", resultCode)
		s.publish(ctx, events.NewPaymentAnomalyEvent(token, events.AnomalyReasonUnmatched, resultCode, ""))
		return payment.CallbackOutcomeUnmatched, nil
	case err != nil:
		s.logger.Error("failed to read payment after unapplied callback", "error", err, "idempotency_token", token)
		return "", errors.ErrPersistenceFailed.WithCause(err)
	default:
		s.metrics.anomaly(events.AnomalyReasonDuplicate)
		s.logger.Warn("reconciliation anomaly: callback for settled payment",
			"idempotency_token", token,
			"result_code", resultCode,
			"current_status", existing.Status)
		s.publish(ctx, events.NewPaymentAnomalyEvent(token, events.AnomalyReasonDuplicate, resultCode, existing.Status))
		return payment.CallbackOutcomeDuplicate, nil
	}
}

func (s *Service) publishTerminal(ctx context.Context, token string, update payment.TerminalUpdate, payload paymentgateway.CallbackPayload) {
	amount, _ := payload.Amount.Int64()
	if update.Status == payment.StatusCompleted {
		s.publish(ctx, events.NewPaymentCompletedEvent(token, amount, update.ReceiptNumber))
		return
	}
	s.publish(ctx, events.NewPaymentFailedEvent(token, amount, update.ResultCode, update.ResultDescription))
}

// recordCallback writes the audit row. Failures never change the acknowledgment.
func (s *Service) recordCallback(ctx context.Context, token, resultCode, outcome string, raw []byte) {
	payloadJSON := json.RawMessage(raw)
	if !json.Valid(payloadJSON) {
		payloadJSON = nil
	}
	err := s.repo.RecordCallback(ctx, &payment.CallbackRecord{
		IdempotencyToken: token,
		ResultCode:       resultCode,
		Outcome:          outcome,
		Payload:          payloadJSON,
		ReceivedAt:       s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("failed to record callback audit entry", "error", err, "idempotency_token", token)
	}
}

// GetStatus is a pure read of the ledger.
func (s *Service) GetStatus(ctx context.Context, token string) (*StatusResponse, error) {
	req := StatusRequest{IdempotencyToken: token}
	if appErr := req.Validate(); appErr != nil {
		return nil, appErr
	}

	record, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		if stderrors.Is(err, ErrRecordNotFound) {
			s.metrics.statusLookup("not_found")
			return nil, errors.ErrPaymentNotFound
		}
		s.logger.Error("failed to read payment status", "error", err, "idempotency_token", token)
		return nil, fmt.Errorf("get payment status: %w", errors.NewInternalError("failed to read payment status", err))
	}

	s.metrics.statusLookup(record.Status)
	resp := FromDataModel(record).ToStatusResponse()
	return &resp, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}
