// Package reconcile reports payments the gateway never answered for and
// summarizes ledger activity over a window.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payconfirm/internal/core/datamodel/payment"
)

const (
	DefaultStaleAfter = 10 * time.Minute
	DefaultWindow     = 24 * time.Hour
	DefaultLimit      = 100
)

type Config struct {
	// StaleAfter is how long a payment may stay pending before it is reported.
	StaleAfter time.Duration
	Window     time.Duration
	Limit      int
}

func (c Config) withDefaults() Config {
	if c.StaleAfter <= 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	return c
}

type Report struct {
	GeneratedAt      time.Time       `json:"generatedAt"`
	From             time.Time       `json:"from"`
	To               time.Time       `json:"to"`
	Statuses         []StatusTotal   `json:"statuses"`
	CallbackOutcomes []OutcomeTotal  `json:"callbackOutcomes"`
	CompletedAmount  decimal.Decimal `json:"completedAmount"`
	Stale            []StalePayment  `json:"stale"`
	Anomalies        int64           `json:"anomalies"`
}

type Service struct {
	store  StoreAPI
	config Config
	logger *slog.Logger
	stale  prometheus.Gauge
}

// NewService registers the stale gauge on reg when reg is not nil.
func NewService(store StoreAPI, config Config, reg prometheus.Registerer, logger *slog.Logger) *Service {
	s := &Service{
		store:  store,
		config: config.withDefaults(),
		logger: logger,
	}
	if reg != nil {
		s.stale = promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "payconfirm_stale_pending_payments",
			Help: "Pending payments older than the stale threshold at the last reconciliation run.",
		})
	}
	return s
}

// Run builds a report for the window ending at now.
func (s *Service) Run(ctx context.Context, now time.Time) (*Report, error) {
	if s.store == nil {
		return nil, errors.New("reconcile store not configured")
	}

	from := now.Add(-s.config.Window)
	report := &Report{GeneratedAt: now, From: from, To: now, CompletedAmount: decimal.Zero}

	stale, err := s.store.StalePending(ctx, now.Add(-s.config.StaleAfter), s.config.Limit)
	if err != nil {
		return nil, err
	}
	report.Stale = stale

	statuses, err := s.store.StatusTotals(ctx, from, now)
	if err != nil {
		return nil, err
	}
	report.Statuses = statuses
	for _, total := range statuses {
		if total.Status == payment.StatusCompleted {
			report.CompletedAmount = report.CompletedAmount.Add(total.Amount)
		}
	}

	outcomes, err := s.store.CallbackOutcomes(ctx, from, now)
	if err != nil {
		return nil, err
	}
	report.CallbackOutcomes = outcomes
	for _, outcome := range outcomes {
		if outcome.Outcome != payment.CallbackOutcomeApplied {
			report.Anomalies += outcome.Count
		}
	}

	if s.stale != nil {
		s.stale.Set(float64(len(stale)))
	}

	for _, p := range stale {
		s.logger.Warn("payment still pending past threshold",
			"idempotency_token", p.IdempotencyToken,
			"amount", p.Amount,
			"age", now.Sub(p.CreatedAt).Round(time.Second).String())
	}
	s.logger.Info("reconciliation report generated",
		"stale", len(stale),
		"anomalies", report.Anomalies,
		"completed_amount", report.CompletedAmount.String())

	return report, nil
}
