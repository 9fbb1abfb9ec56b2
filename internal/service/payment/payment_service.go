package payment

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"resale/internal/model"
	"resale/internal/monitor"
	"resale/internal/repository"
	ordersvc "resale/internal/service/order"
	"resale/pkg/breaker"
	"resale/pkg/log"
	"resale/pkg/snowflake"
	"resale/pkg/utils"
)

// SignatureHeader carries the callback HMAC
const SignatureHeader = "X-Payment-Signature"

// Config payment settings
type Config struct {
	Currency      string
	WebhookSecret string
}

// CallbackRequest provider notification that an intent was paid
type CallbackRequest struct {
	IntentNo      string `json:"intent_no" binding:"required"`
	TransactionID string `json:"transaction_id" binding:"required,max=64"`
}

// PaymentService payment service interface
type PaymentService interface {
	// CreateIntent opens (or reuses) a payment intent for a pending order
	CreateIntent(ctx context.Context, orderID, buyerID uint64) (*model.PaymentIntent, error)
	// ConfirmIntent applies a signed provider callback
	ConfirmIntent(ctx context.Context, req *CallbackRequest, signature string) (*model.PaymentIntent, error)
}

type paymentService struct {
	gateway  repository.Gateway
	provider Provider
	breaker  *breaker.CircuitBreaker
	idGen    *snowflake.IDGenerator
	config   Config
	metrics  *monitor.MetricsCollector
	now      func() time.Time
}

// NewPaymentService creates payment service
func NewPaymentService(
	gateway repository.Gateway,
	provider Provider,
	cb *breaker.CircuitBreaker,
	idGen *snowflake.IDGenerator,
	config Config,
	metrics *monitor.MetricsCollector,
) PaymentService {
	if config.Currency == "" {
		config.Currency = "USD"
	}
	return &paymentService{
		gateway:  gateway,
		provider: provider,
		breaker:  cb,
		idGen:    idGen,
		config:   config,
		metrics:  metrics,
		now:      time.Now,
	}
}

// CallbackPayload is the signed message of a callback
func CallbackPayload(intentNo, transactionID string) string {
	return intentNo + "." + transactionID
}

func (s *paymentService) CreateIntent(ctx context.Context, orderID, buyerID uint64) (*model.PaymentIntent, error) {
	order, err := s.gateway.Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, utils.NewError(utils.CodeForbidden, "only the buyer can pay for this order")
	}
	if order.Status != model.OrderStatusPendingPayment {
		return nil, utils.Errorf(utils.CodeInvalidState, "order is %s, not awaiting payment", order.Status)
	}

	if open, err := s.gateway.Payments().FindOpenByOrder(ctx, orderID); err != nil || open != nil {
		return open, err
	}

	_, intentNo := s.idGen.NextNo("PI")
	opened, err := breaker.Do(ctx, s.breaker, func(ctx context.Context) (*ProviderIntent, error) {
		return s.provider.CreateIntent(ctx, IntentParams{
			Reference: intentNo,
			Amount:    order.Total,
			Currency:  s.config.Currency,
		})
	})
	if err != nil {
		s.metrics.RecordPaymentEvent("rejected")
		log.WithContext(ctx).WithError(err).WithField("order_no", order.OrderNo).Error("Payment provider call failed")
		if breaker.IsCircuitBreakerError(err) {
			return nil, utils.WrapError(err, utils.CodeServiceError, "payment provider unavailable")
		}
		return nil, utils.WrapError(err, utils.CodeServiceError, "failed to open payment")
	}

	intent := &model.PaymentIntent{
		IntentNo:     intentNo,
		OrderID:      order.ID,
		BuyerID:      buyerID,
		Amount:       order.Total,
		Currency:     s.config.Currency,
		Provider:     s.provider.Name(),
		ProviderRef:  opened.Ref,
		ClientSecret: opened.ClientSecret,
		Status:       model.IntentStatusRequiresPayment,
	}
	err = s.gateway.Transaction(ctx, func(tx repository.Gateway) error {
		// a concurrent request may have opened one meanwhile
		open, err := tx.Payments().FindOpenByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if open != nil {
			intent = open
			return nil
		}
		return tx.Payments().Create(ctx, intent)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPaymentEvent("intent_created")
	log.WithContext(ctx).WithFields(logrus.Fields{
		"intent_no": intent.IntentNo,
		"order_no":  order.OrderNo,
		"amount":    intent.Amount,
	}).Info("Payment intent opened")
	return intent, nil
}

func (s *paymentService) ConfirmIntent(ctx context.Context, req *CallbackRequest, signature string) (*model.PaymentIntent, error) {
	payload := CallbackPayload(req.IntentNo, req.TransactionID)
	if s.config.WebhookSecret == "" || !utils.VerifyHMAC(s.config.WebhookSecret, payload, strings.TrimSpace(signature)) {
		s.metrics.RecordPaymentEvent("rejected")
		return nil, utils.NewError(utils.CodeUnauthorized, "invalid callback signature")
	}

	var (
		intent    *model.PaymentIntent
		duplicate bool
	)
	err := s.gateway.Transaction(ctx, func(tx repository.Gateway) error {
		var err error
		intent, err = tx.Payments().GetByIntentNo(ctx, req.IntentNo)
		if err != nil {
			return err
		}

		switch intent.Status {
		case model.IntentStatusSucceeded:
			if intent.ProviderTransactionID != nil && *intent.ProviderTransactionID == req.TransactionID {
				duplicate = true
				return nil
			}
			return utils.NewError(utils.CodeConflict, "intent already paid by another transaction")
		case model.IntentStatusCanceled:
			return utils.NewError(utils.CodeInvalidState, "payment intent was canceled")
		}

		now := s.now()
		ok, err := tx.Payments().MarkSucceeded(ctx, intent.ID, req.TransactionID, now)
		if err != nil {
			return err
		}
		if !ok {
			return utils.Errorf(utils.CodeConflict, "intent %s was modified concurrently", intent.IntentNo)
		}

		order, err := tx.Orders().GetByID(ctx, intent.OrderID)
		if err != nil {
			return err
		}
		txID := req.TransactionID
		if err := ordersvc.Apply(ctx, tx, order, model.OrderStatusPaid, now, &txID); err != nil {
			return err
		}

		intent, err = tx.Payments().GetByIntentNo(ctx, req.IntentNo)
		return err
	})
	if err != nil {
		log.WithContext(ctx).WithError(err).WithField("intent_no", req.IntentNo).Warn("Payment callback rejected")
		return nil, err
	}

	if duplicate {
		s.metrics.RecordPaymentEvent("duplicate")
		return intent, nil
	}
	s.metrics.RecordPaymentEvent("confirmed")
	s.metrics.RecordOrderTransition(string(model.OrderStatusPendingPayment), string(model.OrderStatusPaid))
	log.WithContext(ctx).WithFields(logrus.Fields{
		"intent_no":      intent.IntentNo,
		"order_id":       intent.OrderID,
		"transaction_id": req.TransactionID,
	}).Info("Payment confirmed")
	return intent, nil
}
