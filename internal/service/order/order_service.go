package order

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"resale/internal/model"
	"resale/internal/monitor"
	"resale/internal/repository"
	"resale/pkg/log"
	"resale/pkg/snowflake"
	"resale/pkg/utils"
)

// Roles for listing orders
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
)

// Config checkout pricing in basis points of the base amount
type Config struct {
	ServiceFeeBP int64
	TaxBP        int64
}

// CreateOrderRequest checkout request
type CreateOrderRequest struct {
	PostID           uint64 `json:"post_id" binding:"required"`
	DeliveryFee      int64  `json:"delivery_fee" binding:"min=0,lte=1000000000000"`
	PaymentMethod    string `json:"payment_method" binding:"required,oneof=card wallet bank"`
	ShippingAddress  string `json:"shipping_address" binding:"required,max=255"`
	ShippingReceiver string `json:"shipping_receiver" binding:"required,max=50"`
	ShippingPhone    string `json:"shipping_phone" binding:"required,phone"`
}

// ListQuery filters a user's orders
type ListQuery struct {
	Role     string
	Status   model.OrderStatus
	Page     int
	PageSize int
}

// OrderService order service interface
type OrderService interface {
	// CreateOrder buys an active post
	CreateOrder(ctx context.Context, buyerID uint64, req *CreateOrderRequest) (*model.Order, error)

	// GetOrder returns an order visible to its buyer or seller
	GetOrder(ctx context.Context, orderID, userID uint64) (*model.Order, error)

	// ListOrders lists the user's orders as buyer or seller
	ListOrders(ctx context.Context, userID uint64, q ListQuery) ([]*model.Order, int64, error)

	// UpdateOrderStatus seller-driven status change
	UpdateOrderStatus(ctx context.Context, orderID uint64, status model.OrderStatus, actingUserID uint64) (*model.Order, error)

	// CancelOrder buyer cancels before payment
	CancelOrder(ctx context.Context, orderID, actingUserID uint64) (*model.Order, error)

	// ConfirmReceipt buyer completes a shipped order
	ConfirmReceipt(ctx context.Context, orderID, actingUserID uint64) (*model.Order, error)
}

// orderService order service implementation
type orderService struct {
	gateway     repository.Gateway
	idGenerator *snowflake.IDGenerator
	config      Config
	metrics     *monitor.MetricsCollector
	now         func() time.Time
}

// NewOrderService creates an order service. metrics may be nil.
func NewOrderService(
	gateway repository.Gateway,
	idGenerator *snowflake.IDGenerator,
	config Config,
	metrics *monitor.MetricsCollector,
) OrderService {
	return &orderService{
		gateway:     gateway,
		idGenerator: idGenerator,
		config:      config,
		metrics:     metrics,
		now:         time.Now,
	}
}

var (
	errPostGone     = utils.NewError(utils.CodeInvalidState, "post is no longer active")
	errPaidBySystem = utils.NewError(utils.CodeForbidden, "paid is set by payment confirmation")
)

// CreateOrder creates an order
func (s *orderService) CreateOrder(ctx context.Context, buyerID uint64, req *CreateOrderRequest) (*model.Order, error) {
	logger := log.WithContext(ctx).WithFields(logrus.Fields{
		"buyer_id": buyerID,
		"post_id":  req.PostID,
	})
	logger.Info("Start creating order")

	if !model.IsValidPaymentMethod(req.PaymentMethod) {
		return nil, utils.Errorf(utils.CodeInvalidParam, "unsupported payment method %q", req.PaymentMethod)
	}
	if req.DeliveryFee < 0 || req.DeliveryFee > model.MaxAmount {
		return nil, utils.Errorf(utils.CodeInvalidParam, "delivery fee must be between 0 and %d cents", model.MaxAmount)
	}

	var order *model.Order
	err := s.gateway.Transaction(ctx, func(tx repository.Gateway) error {
		// 1. Load post
		post, err := tx.Posts().GetByID(ctx, req.PostID)
		if err != nil {
			return err
		}

		// 2. Ownership before state: self-purchase is always Forbidden
		if post.PosterID == buyerID {
			return utils.NewError(utils.CodeForbidden, "cannot buy your own post")
		}
		if !post.IsActive() {
			return errPostGone
		}

		// 3. Claim the post
		ok, err := tx.Posts().UpdateStatus(ctx, post.ID, model.PostStatusActive, model.PostStatusSold)
		if err != nil {
			return err
		}
		if !ok {
			return errPostGone
		}

		// 4. Snapshot fees and insert
		fees, err := model.ComputeFees(post.Price, req.DeliveryFee, s.config.ServiceFeeBP, s.config.TaxBP)
		if err != nil {
			return utils.WrapError(err, utils.CodeInvalidState, "post price cannot be checked out")
		}
		orderID, orderNo := s.idGenerator.NextNo("RS")
		order = &model.Order{
			ID:               orderID,
			OrderNo:          orderNo,
			BuyerID:          buyerID,
			SellerID:         post.PosterID,
			PostID:           post.ID,
			PostTitle:        post.Title,
			BaseAmount:       fees.Base,
			DeliveryFee:      fees.Delivery,
			ServiceFee:       fees.Service,
			Tax:              fees.Tax,
			Total:            fees.Total,
			PaymentMethod:    req.PaymentMethod,
			Status:           model.OrderStatusPendingPayment,
			ShippingAddress:  req.ShippingAddress,
			ShippingReceiver: req.ShippingReceiver,
			ShippingPhone:    req.ShippingPhone,
		}
		return tx.Orders().Create(ctx, order)
	})
	if err != nil {
		s.metrics.RecordOrderCreation("failure")
		logger.WithError(err).Warn("Failed to create order")
		return nil, err
	}

	s.metrics.RecordOrderCreation("success")
	logger.WithFields(logrus.Fields{
		"order_no": order.OrderNo,
		"total":    order.Total,
	}).Info("Order created")
	return order, nil
}

// GetOrder gets an order
func (s *orderService) GetOrder(ctx context.Context, orderID, userID uint64) (*model.Order, error) {
	order, err := s.gateway.Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsParty(userID) {
		return nil, utils.NewError(utils.CodeForbidden, "not a party to this order")
	}
	return order, nil
}

// ListOrders lists orders
func (s *orderService) ListOrders(ctx context.Context, userID uint64, q ListQuery) ([]*model.Order, int64, error) {
	filter := repository.OrderFilter{Status: q.Status}
	switch q.Role {
	case RoleBuyer, "":
		filter.BuyerID = userID
	case RoleSeller:
		filter.SellerID = userID
	default:
		return nil, 0, utils.Errorf(utils.CodeInvalidParam, "unknown role %q", q.Role)
	}
	if q.Status != "" && !q.Status.IsValid() {
		return nil, 0, utils.Errorf(utils.CodeInvalidParam, "unknown status %q", q.Status)
	}
	return s.gateway.Orders().List(ctx, filter, q.Page, q.PageSize)
}

// UpdateOrderStatus seller-driven transition. Paid is reserved for the
// payment callback, which goes through Apply.
func (s *orderService) UpdateOrderStatus(ctx context.Context, orderID uint64, status model.OrderStatus, actingUserID uint64) (*model.Order, error) {
	if !status.IsValid() {
		return nil, utils.Errorf(utils.CodeInvalidParam, "unknown status %q", status)
	}
	return s.transition(ctx, orderID, status, func(o *model.Order) error {
		if o.SellerID != actingUserID {
			return utils.NewError(utils.CodeForbidden, "only the seller can update this order")
		}
		if status == model.OrderStatusPaid {
			return errPaidBySystem
		}
		return nil
	})
}

// CancelOrder buyer cancels a pending order; the post is relisted
func (s *orderService) CancelOrder(ctx context.Context, orderID, actingUserID uint64) (*model.Order, error) {
	return s.transition(ctx, orderID, model.OrderStatusCanceled, func(o *model.Order) error {
		if o.BuyerID != actingUserID {
			return utils.NewError(utils.CodeForbidden, "only the buyer can cancel this order")
		}
		return nil
	})
}

// ConfirmReceipt buyer marks a shipped order completed
func (s *orderService) ConfirmReceipt(ctx context.Context, orderID, actingUserID uint64) (*model.Order, error) {
	return s.transition(ctx, orderID, model.OrderStatusCompleted, func(o *model.Order) error {
		if o.BuyerID != actingUserID {
			return utils.NewError(utils.CodeForbidden, "only the buyer can confirm receipt")
		}
		return nil
	})
}

// transition loads the order, authorizes, checks the table and applies a
// single guarded update, all in one transaction.
func (s *orderService) transition(
	ctx context.Context,
	orderID uint64,
	to model.OrderStatus,
	authorize func(*model.Order) error,
) (*model.Order, error) {
	var (
		updated *model.Order
		from    model.OrderStatus
	)
	err := s.gateway.Transaction(ctx, func(tx repository.Gateway) error {
		order, err := tx.Orders().GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if err := authorize(order); err != nil {
			return err
		}
		from = order.Status

		if err := Apply(ctx, tx, order, to, s.now(), nil); err != nil {
			return err
		}

		updated, err = tx.Orders().GetByID(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordOrderTransition(string(from), string(to))
	log.WithContext(ctx).WithFields(logrus.Fields{
		"order_no": updated.OrderNo,
		"from":     from,
		"to":       to,
	}).Info("Order status changed")
	return updated, nil
}

// Apply moves order to status inside tx. It enforces the transition table,
// performs the guarded update and runs the side effects of entering the new
// status. A guard miss means another writer changed the order first.
func Apply(ctx context.Context, tx repository.Gateway, order *model.Order, to model.OrderStatus, at time.Time, transactionID *string) error {
	if !order.Status.CanTransitionTo(to) {
		return utils.NewInvalidTransition(string(order.Status), string(to))
	}

	ok, err := tx.Orders().UpdateStatus(ctx, order.ID, repository.StatusChange{
		From:                 order.Status,
		To:                   to,
		At:                   at,
		PaymentTransactionID: transactionID,
	})
	if err != nil {
		return err
	}
	if !ok {
		return utils.Errorf(utils.CodeConflict, "order %s was modified concurrently", order.OrderNo)
	}

	if to == model.OrderStatusCanceled {
		return relist(ctx, tx, order)
	}
	return nil
}

// relist returns the post of a canceled order to the market and voids any
// open payment intent
func relist(ctx context.Context, tx repository.Gateway, order *model.Order) error {
	ok, err := tx.Posts().UpdateStatus(ctx, order.PostID, model.PostStatusSold, model.PostStatusActive)
	if err != nil {
		return err
	}
	if !ok {
		log.WithContext(ctx).WithFields(logrus.Fields{
			"order_no": order.OrderNo,
			"post_id":  order.PostID,
		}).Warn("Post not relisted, it is no longer sold")
	}

	if _, err := tx.Payments().CancelOpenByOrder(ctx, order.ID); err != nil {
		return err
	}
	return nil
}
