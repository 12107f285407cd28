package payment_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/frahmantamala/payconfirm/internal/core/datamodel/payment"
	"github.com/frahmantamala/payconfirm/internal/core/datamodel/paymentgateway"
	paymentpkg "github.com/frahmantamala/payconfirm/internal/payment"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// mockPaymentRepository mirrors the conditional update of the gorm repository.
type mockPaymentRepository struct {
	mu        sync.Mutex
	payments  map[string]*payment.PaymentRecord
	callbacks []*payment.CallbackRecord
	nextID    int64

	createError   error
	getError      error
	updateError   error
	callbackError error
}

func newMockPaymentRepository() *mockPaymentRepository {
	return &mockPaymentRepository{
		payments: make(map[string]*payment.PaymentRecord),
	}
}

func (m *mockPaymentRepository) Create(ctx context.Context, p *payment.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createError != nil {
		return m.createError
	}
	if _, exists := m.payments[p.IdempotencyToken]; exists {
		return errors.New("duplicate idempotency token")
	}
	m.nextID++
	p.ID = m.nextID
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.payments[p.IdempotencyToken] = &cp
	return nil
}

func (m *mockPaymentRepository) GetByToken(ctx context.Context, token string) (*payment.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getError != nil {
		return nil, m.getError
	}
	p, ok := m.payments[token]
	if !ok {
		return nil, paymentpkg.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPaymentRepository) ApplyTerminalUpdate(ctx context.Context, token string, update payment.TerminalUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateError != nil {
		return false, m.updateError
	}
	p, ok := m.payments[token]
	if !ok || p.Status != payment.StatusPending {
		return false, nil
	}
	p.Status = update.Status
	p.ResultCode = strPtr(update.ResultCode)
	p.ResultDescription = strPtr(update.ResultDescription)
	if update.ReceiptNumber != "" {
		p.ReceiptNumber = strPtr(update.ReceiptNumber)
	}
	completedAt := update.CompletedAt
	p.CompletedAt = &completedAt
	return true, nil
}

func (m *mockPaymentRepository) RecordCallback(ctx context.Context, c *payment.CallbackRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.callbackError != nil {
		return m.callbackError
	}
	m.callbacks = append(m.callbacks, c)
	return nil
}

func (m *mockPaymentRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payments)
}

func (m *mockPaymentRepository) callbackOutcomes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	outcomes := make([]string, 0, len(m.callbacks))
	for _, c := range m.callbacks {
		outcomes = append(outcomes, c.Outcome)
	}
	return outcomes
}

type mockGateway struct {
	mu       sync.Mutex
	calls    []*paymentgateway.PushRequest
	response *paymentgateway.PushResponse
	err      error
	counter  int
}

func (g *mockGateway) PushSTK(ctx context.Context, req *paymentgateway.PushRequest) (*paymentgateway.PushResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, req)
	if g.err != nil {
		return nil, g.err
	}
	if g.response != nil {
		return g.response, nil
	}
	g.counter++
	return &paymentgateway.PushResponse{
		TransactionID:     fmt.Sprintf("TXN%03d", g.counter),
		CheckoutRequestID: fmt.Sprintf("ws_CO_191020261200%03d", g.counter),
	}, nil
}

func (g *mockGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func strPtr(s string) *string {
	return &s
}

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return -1
	}
	return m.GetCounter().GetValue()
}
