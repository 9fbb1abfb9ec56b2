package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"resale/internal/model"
)

// OrderFilter selects orders by party and status. Zero values are ignored.
type OrderFilter struct {
	BuyerID  uint64
	SellerID uint64
	Status   model.OrderStatus
}

// StatusChange a conditional order status update. The row changes only if
// it is still in From.
type StatusChange struct {
	From                 model.OrderStatus
	To                   model.OrderStatus
	At                   time.Time
	PaymentTransactionID *string
}

// OrderRepository order repository interface
type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id uint64) (*model.Order, error)
	GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error)
	List(ctx context.Context, filter OrderFilter, page, pageSize int) ([]*model.Order, int64, error)

	// UpdateStatus applies change and reports whether a row matched the guard
	UpdateStatus(ctx context.Context, id uint64, change StatusChange) (bool, error)
}

// orderRepository order repository implementation
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates an order repository
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create creates an order
func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	return translate(r.db.WithContext(ctx).Create(order).Error, "")
}

// GetByID gets an order by ID
func (r *orderRepository) GetByID(ctx context.Context, id uint64) (*model.Order, error) {
	var order model.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, translate(err, "order not found")
	}
	return &order, nil
}

// GetByOrderNo gets an order by order number
func (r *orderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error) {
	var order model.Order
	if err := r.db.WithContext(ctx).Where("order_no = ?", orderNo).First(&order).Error; err != nil {
		return nil, translate(err, "order not found")
	}
	return &order, nil
}

// List lists orders newest first
func (r *orderRepository) List(ctx context.Context, filter OrderFilter, page, pageSize int) ([]*model.Order, int64, error) {
	var (
		orders []*model.Order
		total  int64
	)

	db := r.db.WithContext(ctx).Model(&model.Order{})
	if filter.BuyerID != 0 {
		db = db.Where("buyer_id = ?", filter.BuyerID)
	}
	if filter.SellerID != 0 {
		db = db.Where("seller_id = ?", filter.SellerID)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Order("created_at DESC").Order("id DESC").
		Offset(pageOffset(page, pageSize)).
		Limit(pageSize).
		Find(&orders).Error
	return orders, total, err
}

// UpdateStatus guarded status change. The timestamp column for the target
// status is stamped in the same statement.
func (r *orderRepository) UpdateStatus(ctx context.Context, id uint64, change StatusChange) (bool, error) {
	updates := map[string]interface{}{
		"status": change.To,
	}
	if col := model.TimestampColumn(change.To); col != "" {
		updates[col] = change.At
	}
	if change.PaymentTransactionID != nil {
		updates["payment_transaction_id"] = *change.PaymentTransactionID
	}

	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", id, change.From).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}
