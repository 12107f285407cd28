package reconcile_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payconfirm/internal/core/datamodel/payment"
	"github.com/frahmantamala/payconfirm/internal/reconcile"
	"github.com/frahmantamala/payconfirm/pkg/logger"
)

type fakeStore struct {
	stale    []reconcile.StalePayment
	statuses []reconcile.StatusTotal
	outcomes []reconcile.OutcomeTotal
	err      error

	cutoff time.Time
	from   time.Time
	to     time.Time
	limit  int
}

func (f *fakeStore) StalePending(_ context.Context, createdBefore time.Time, limit int) ([]reconcile.StalePayment, error) {
	f.cutoff, f.limit = createdBefore, limit
	return f.stale, f.err
}

func (f *fakeStore) StatusTotals(_ context.Context, from, to time.Time) ([]reconcile.StatusTotal, error) {
	f.from, f.to = from, to
	return f.statuses, nil
}

func (f *fakeStore) CallbackOutcomes(_ context.Context, _, _ time.Time) ([]reconcile.OutcomeTotal, error) {
	return f.outcomes, nil
}

var _ = Describe("Service", func() {
	var (
		store *fakeStore
		reg   *prometheus.Registry
		svc   *reconcile.Service
		now   time.Time
	)

	BeforeEach(func() {
		now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
		reg = prometheus.NewRegistry()
		store = &fakeStore{
			stale: []reconcile.StalePayment{
				{IdempotencyToken: "ws_CO_A", Amount: 105, CreatedAt: now.Add(-time.Hour)},
			},
			statuses: []reconcile.StatusTotal{
				{Status: payment.StatusCompleted, Count: 3, Amount: decimal.NewFromInt(315)},
				{Status: payment.StatusFailed, Count: 1, Amount: decimal.NewFromInt(105)},
			},
			outcomes: []reconcile.OutcomeTotal{
				{Outcome: payment.CallbackOutcomeApplied, Count: 4},
				{Outcome: payment.CallbackOutcomeDuplicate, Count: 2},
				{Outcome: payment.CallbackOutcomeUnmatched, Count: 1},
			},
		}
		svc = reconcile.NewService(store, reconcile.Config{StaleAfter: 15 * time.Minute, Window: time.Hour, Limit: 5}, reg, logger.Discard())
	})

	It("builds the report from the configured window and threshold", func() {
		report, err := svc.Run(context.Background(), now)
		Expect(err).NotTo(HaveOccurred())

		Expect(store.cutoff).To(Equal(now.Add(-15 * time.Minute)))
		Expect(store.limit).To(Equal(5))
		Expect(store.from).To(Equal(now.Add(-time.Hour)))
		Expect(store.to).To(Equal(now))

		Expect(report.Stale).To(HaveLen(1))
		Expect(report.CompletedAmount.Equal(decimal.NewFromInt(315))).To(BeTrue())
		Expect(report.Anomalies).To(Equal(int64(3)))
	})

	It("publishes the stale count as a gauge", func() {
		_, err := svc.Run(context.Background(), now)
		Expect(err).NotTo(HaveOccurred())

		families, err := reg.Gather()
		Expect(err).NotTo(HaveOccurred())

		var gauge *dto.Metric
		for _, family := range families {
			if family.GetName() == "payconfirm_stale_pending_payments" {
				gauge = family.GetMetric()[0]
			}
		}
		Expect(gauge).NotTo(BeNil())
		Expect(gauge.GetGauge().GetValue()).To(Equal(1.0))
	})

	It("returns store errors", func() {
		store.err = errors.New("connection refused")
		_, err := svc.Run(context.Background(), now)
		Expect(err).To(MatchError("connection refused"))
	})

	It("applies defaults", func() {
		svc = reconcile.NewService(store, reconcile.Config{}, nil, logger.Discard())
		_, err := svc.Run(context.Background(), now)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.cutoff).To(Equal(now.Add(-reconcile.DefaultStaleAfter)))
		Expect(store.limit).To(Equal(reconcile.DefaultLimit))
	})
})
