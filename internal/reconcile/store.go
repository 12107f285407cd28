package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payconfirm/internal/core/datamodel/payment"
)

type StalePayment struct {
	IdempotencyToken     string    `db:"idempotency_token"`
	GatewayTransactionID string    `db:"gateway_transaction_id"`
	Phone                string    `db:"phone"`
	Amount               int64     `db:"amount"`
	Label                string    `db:"label"`
	CreatedAt            time.Time `db:"created_at"`
}

type StatusTotal struct {
	Status string          `db:"status" json:"status"`
	Count  int64           `db:"count" json:"count"`
	Amount decimal.Decimal `db:"total_amount" json:"amount"`
}

type OutcomeTotal struct {
	Outcome string `db:"outcome" json:"outcome"`
	Count   int64  `db:"count" json:"count"`
}

type StoreAPI interface {
	StalePending(ctx context.Context, createdBefore time.Time, limit int) ([]StalePayment, error)
	StatusTotals(ctx context.Context, from, to time.Time) ([]StatusTotal, error)
	CallbackOutcomes(ctx context.Context, from, to time.Time) ([]OutcomeTotal, error)
}

// Store runs read-only reporting queries against the ledger tables.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) StalePending(ctx context.Context, createdBefore time.Time, limit int) ([]StalePayment, error) {
	query := s.db.Rebind(`
		SELECT idempotency_token, COALESCE(gateway_transaction_id, '') AS gateway_transaction_id,
		       phone, amount, label, created_at
		FROM payments
		WHERE status = ? AND created_at < ?
		ORDER BY created_at ASC
		LIMIT ?`)

	var stale []StalePayment
	if err := s.db.SelectContext(ctx, &stale, query, payment.StatusPending, createdBefore, limit); err != nil {
		return nil, fmt.Errorf("select stale pending payments: %w", err)
	}
	return stale, nil
}

func (s *Store) StatusTotals(ctx context.Context, from, to time.Time) ([]StatusTotal, error) {
	query := s.db.Rebind(`
		SELECT status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total_amount
		FROM payments
		WHERE created_at >= ? AND created_at < ?
		GROUP BY status
		ORDER BY status`)

	var totals []StatusTotal
	if err := s.db.SelectContext(ctx, &totals, query, from, to); err != nil {
		return nil, fmt.Errorf("select status totals: %w", err)
	}
	return totals, nil
}

func (s *Store) CallbackOutcomes(ctx context.Context, from, to time.Time) ([]OutcomeTotal, error) {
	query := s.db.Rebind(`
		SELECT outcome, COUNT(*) AS count
		FROM payment_callbacks
		WHERE received_at >= ? AND received_at < ?
		GROUP BY outcome
		ORDER BY outcome`)

	var totals []OutcomeTotal
	if err := s.db.SelectContext(ctx, &totals, query, from, to); err != nil {
		return nil, fmt.Errorf("select callback outcomes: %w", err)
	}
	return totals, nil
}
