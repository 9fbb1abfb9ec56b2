package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"resale/internal/model"
)

// PaymentRepository payment intent repository interface
type PaymentRepository interface {
	Create(ctx context.Context, intent *model.PaymentIntent) error
	GetByIntentNo(ctx context.Context, intentNo string) (*model.PaymentIntent, error)

	// FindOpenByOrder returns the intent still awaiting payment, or nil
	FindOpenByOrder(ctx context.Context, orderID uint64) (*model.PaymentIntent, error)

	// MarkSucceeded moves an open intent to succeeded and reports whether it was open
	MarkSucceeded(ctx context.Context, id uint64, transactionID string, at time.Time) (bool, error)

	// CancelOpenByOrder cancels every open intent of the order
	CancelOpenByOrder(ctx context.Context, orderID uint64) (int64, error)
}

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a payment intent repository
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, intent *model.PaymentIntent) error {
	return translate(r.db.WithContext(ctx).Create(intent).Error, "")
}

func (r *paymentRepository) GetByIntentNo(ctx context.Context, intentNo string) (*model.PaymentIntent, error) {
	var intent model.PaymentIntent
	if err := r.db.WithContext(ctx).Where("intent_no = ?", intentNo).First(&intent).Error; err != nil {
		return nil, translate(err, "payment intent not found")
	}
	return &intent, nil
}

func (r *paymentRepository) FindOpenByOrder(ctx context.Context, orderID uint64) (*model.PaymentIntent, error) {
	var intent model.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, model.IntentStatusRequiresPayment).
		Order("id DESC").
		First(&intent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &intent, nil
}

func (r *paymentRepository) MarkSucceeded(ctx context.Context, id uint64, transactionID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.PaymentIntent{}).
		Where("id = ? AND status = ?", id, model.IntentStatusRequiresPayment).
		Updates(map[string]interface{}{
			"status":                  model.IntentStatusSucceeded,
			"provider_transaction_id": transactionID,
			"succeeded_at":            at,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *paymentRepository) CancelOpenByOrder(ctx context.Context, orderID uint64) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.PaymentIntent{}).
		Where("order_id = ? AND status = ?", orderID, model.IntentStatusRequiresPayment).
		Update("status", model.IntentStatusCanceled)
	return res.RowsAffected, res.Error
}
