package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/frahmantamala/payconfirm/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/payconfirm/internal/payment"
	"gorm.io/gorm"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) paymentpkg.RepositoryAPI {
	return &PaymentRepository{
		db: db,
	}
}

func (r *PaymentRepository) Create(ctx context.Context, p *payment.PaymentRecord) error {
	if p.Status == "" {
		p.Status = payment.StatusPending
	}
	return r.db.WithContext(ctx).Create(p).Error
}

// GetByToken returns paymentpkg.ErrRecordNotFound when no record carries the token.
func (r *PaymentRepository) GetByToken(ctx context.Context, token string) (*payment.PaymentRecord, error) {
	var p payment.PaymentRecord
	err := r.db.WithContext(ctx).Where("idempotency_token = ?", token).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, paymentpkg.ErrRecordNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ApplyTerminalUpdate moves a pending record to its terminal status. The
// status guard in the WHERE clause makes the first writer win; applied is
// false when no pending record matched.
func (r *PaymentRepository) ApplyTerminalUpdate(ctx context.Context, token string, update payment.TerminalUpdate) (bool, error) {
	if update.Status != payment.StatusCompleted && update.Status != payment.StatusFailed {
		return false, fmt.Errorf("invalid terminal status %q", update.Status)
	}

	updates := map[string]interface{}{
		"status":             update.Status,
		"result_code":        update.ResultCode,
		"result_description": update.ResultDescription,
		"completed_at":       update.CompletedAt,
		"updated_at":         update.CompletedAt,
	}
	if update.ReceiptNumber != "" {
		updates["receipt_number"] = update.ReceiptNumber
	}

	result := r.db.WithContext(ctx).
		Model(&payment.PaymentRecord{}).
		Where("idempotency_token = ? AND status = ?", token, payment.StatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *PaymentRepository) RecordCallback(ctx context.Context, c *payment.CallbackRecord) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *PaymentRepository) ListCallbacks(ctx context.Context, token string) ([]*payment.CallbackRecord, error) {
	var callbacks []*payment.CallbackRecord
	err := r.db.WithContext(ctx).
		Where("idempotency_token = ?", token).
		Order("received_at ASC, id ASC").
		Find(&callbacks).Error
	return callbacks, err
}
