package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resale/internal/model"
	"resale/internal/repository"
	"resale/internal/repository/memstore"
	postsvc "resale/internal/service/post"
	"resale/pkg/snowflake"
	"resale/pkg/utils"
)

const (
	sellerID = uint64(10)
	buyerID  = uint64(20)
	otherID  = uint64(30)
)

func newTestService(t *testing.T, gw repository.Gateway) OrderService {
	t.Helper()
	gen, err := snowflake.NewIDGenerator(1)
	require.NoError(t, err)
	return NewOrderService(gw, gen, Config{ServiceFeeBP: 500, TaxBP: 800}, nil)
}

func seedPost(t *testing.T, store *memstore.Store, price int64) *model.Post {
	t.Helper()
	post := &model.Post{PosterID: sellerID, Title: "road bike", Price: price, Condition: model.ConditionGood}
	require.NoError(t, store.Posts().Create(context.Background(), post))
	return post
}

func checkoutFor(postID uint64) *CreateOrderRequest {
	return &CreateOrderRequest{
		PostID:           postID,
		PaymentMethod:    model.PaymentMethodCard,
		ShippingAddress:  "1 Main St",
		ShippingReceiver: "Buyer",
		ShippingPhone:    "+15550001111",
	}
}

func codeOf(err error) utils.ResponseCode {
	return utils.GetErrorCode(err)
}

// markPaid confirms payment the way the payment callback does
func markPaid(t *testing.T, store *memstore.Store, orderID uint64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Transaction(ctx, func(tx repository.Gateway) error {
		o, err := tx.Orders().GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		txID := "sandbox-tx-1"
		return Apply(ctx, tx, o, model.OrderStatusPaid, time.Now(), &txID)
	}))
}

func TestCreateOrder_FeeSnapshot(t *testing.T) {
	store := memstore.New()
	svc := newTestService(t, store)
	post := seedPost(t, store, 10000)

	order, err := svc.CreateOrder(context.Background(), buyerID, checkoutFor(post.ID))
	require.NoError(t, err)

	assert.Equal(t, int64(10000), order.BaseAmount)
	assert.Equal(t, int64(0), order.DeliveryFee)
	assert.Equal(t, int64(500), order.ServiceFee)
	assert.Equal(t, int64(800), order.Tax)
	assert.Equal(t, int64(11300), order.Total)
	assert.Equal(t, model.OrderStatusPendingPayment, order.Status)
	assert.Equal(t, sellerID, order.SellerID)
	assert.Equal(t, "road bike", order.PostTitle)
	assert.NotEmpty(t, order.OrderNo)

	got, _ := store.Posts().GetByID(context.Background(), post.ID)
	assert.Equal(t, model.PostStatusSold, got.Status)
}

func TestCreateOrder_PriceEditKeepsSnapshot(t *testing.T) {
	store := memstore.New()
	svc := newTestService(t, store)
	posts := postsvc.NewPostService(store.Posts())
	ctx := context.Background()
	post := seedPost(t, store, 10000)

	first, err := svc.CreateOrder(ctx, buyerID, checkoutFor(post.ID))
	require.NoError(t, err)
	_, err = svc.CancelOrder(ctx, first.ID, buyerID)
	require.NoError(t, err)

	newPrice := int64(20000)
	edited, err := posts.UpdatePost(ctx, post.ID, sellerID, &postsvc.UpdatePostRequest{Price: &newPrice})
	require.NoError(t, err)
	require.Equal(t, newPrice, edited.Price)

	stored, err := store.Orders().GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), stored.BaseAmount)
	assert.Equal(t, int64(500), stored.ServiceFee)
	assert.Equal(t, int64(800), stored.Tax)
	assert.Equal(t, int64(11300), stored.Total)

	second, err := svc.CreateOrder(ctx, otherID, checkoutFor(post.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(20000), second.BaseAmount)
	assert.Equal(t, int64(1000), second.ServiceFee)
	assert.Equal(t, int64(1600), second.Tax)
	assert.Equal(t, int64(22600), second.Total)
}

func TestCreateOrder_AmountBounds(t *testing.T) {
	store := memstore.New()
	svc := newTestService(t, store)
	ctx := context.Background()

	post := seedPost(t, store, 1000)
	req := checkoutFor(post.ID)
	req.DeliveryFee = model.MaxAmount + 1
	_, err := svc.CreateOrder(ctx, buyerID, req)
	assert.Equal(t, utils.CodeInvalidParam, codeOf(err))

	req.DeliveryFee = model.MaxAmount
	order, err := svc.CreateOrder(ctx, buyerID, req)
	require.NoError(t, err)
	assert.Equal(t, model.MaxAmount, order.DeliveryFee)

	// a price written around the post service cannot overflow the fee math
	huge := seedPost(t, store, 20_000_000_000_000_000)
	_, err = svc.CreateOrder(ctx, buyerID, checkoutFor(huge.ID))
	assert.Equal(t, utils.CodeInvalidState, codeOf(err))

	got, _ := store.Posts().GetByID(ctx, huge.ID)
	assert.Equal(t, model.PostStatusActive, got.Status)
}

func TestCreateOrder_Rejections(t *testing.T) {
	store := memstore.New()
	svc := newTestService(t, store)
	ctx := context.Background()
	post := seedPost(t, store, 5000)

	_, err := svc.CreateOrder(ctx, buyerID, checkoutFor(9999))
	assert.Equal(t, utils.CodeNotFound, codeOf(err))

	_, err = svc.CreateOrder(ctx, sellerID, checkoutFor(post.ID))
	assert.Equal(t, utils.CodeForbidden, codeOf(err))

	_, err = svc.CreateOrder(ctx, buyerID, checkoutFor(post.ID))
	require.NoError(t, err)

	// sold post: a second buyer gets InvalidState, the owner still gets Forbidden
	_, err = svc.CreateOrder(ctx, otherID, checkoutFor(post.ID))
	assert.Equal(t, utils.CodeInvalidState, codeOf(err))
	_, err = svc.CreateOrder(ctx, sellerID, checkoutFor(post.ID))
	assert.Equal(t, utils.CodeForbidden, codeOf(err))

	req := checkoutFor(post.ID)
	req.PaymentMethod = "barter"
	_, err = svc.CreateOrder(ctx, buyerID, req)
	assert.Equal(t, utils.CodeInvalidParam, codeOf(err))
}

func TestCreateOrder_ConcurrentBuyersOneWins(t *testing.T) {
	store := memstore.New()
	svc := newTestService(t, store)
	post := seedPost(t, store, 2500)

	const buyers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(buyer uint64) {
			defer wg.Done()
			if _, err := svc.CreateOrder(context.Background(), buyer, checkoutFor(post.ID)); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			} else {
				assert.Equal(t, utils.CodeInvalidState, codeOf(err))
			}
		}(100 + uint64(i))
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	_, total, err := store.Orders().List(context.Background(), repository.OrderFilter{}, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestUpdateOrderStatus_Table(t *testing.T) {
	store := memstore.New()
	svc := newTestService(t, store)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, buyerID, checkoutFor(seedPost(t, store, 1000).ID))
	require.NoError(t, err)

	_, err = svc.UpdateOrderStatus(ctx, order.ID, model.OrderStatusPaid, buyerID)
	assert.Equal(t, utils.CodeForbidden, codeOf(err))

	_, err = svc.UpdateOrderStatus(ctx, order.ID, model.OrderStatusShipped, sellerID)
	assert.Equal(t, utils.CodeInvalidTransition, codeOf(err))
	assert.Contains(t, err.Error(), "pending_payment")
	assert.Contains(t, err.Error(), "shipped")

	_, err = svc.UpdateOrderStatus(ctx, order.ID, model.OrderStatus("lost"), sellerID)
	assert.Equal(t, utils.CodeInvalidParam, codeOf(err))

	markPaid(t, store, order.ID)
	paid, err := svc.GetOrder(ctx, order.ID, sellerID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, paid.Status)
	assert.NotNil(t, paid.PaidAt)

	shipped, err := svc.UpdateOrderStatus(ctx, order.ID, model.OrderStatusShipped, sellerID)
	require.NoError(t, err)
	assert.NotNil(t, shipped.ShippedAt)

	refunded, err := svc.UpdateOrderStatus(ctx, order.ID, model.OrderStatusRefunded, sellerID)
	require.NoError(t, err)
	assert.NotNil(t, refunded.RefundedAt)

	// terminal
	_, err = svc.UpdateOrderStatus(ctx, order.ID, model.OrderStatusCompleted, sellerID)
	assert.Equal(t, utils.CodeInvalidTransition, codeOf(err))
}

func TestUpdateOrderStatus_SellerCannotMarkPaid(t *testing.T) {
	store := memstore.New()
	svc := newTestService(t, store)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, buyerID, checkoutFor(seedPost(t, store, 1000).ID))
	require.NoError(t, err)

	_, err = svc.UpdateOrderStatus(ctx, order.ID, model.OrderStatusPaid, sellerID)
	assert.Equal(t, utils.CodeForbidden, codeOf(err))

	got, _ := store.Orders().GetByID(ctx, order.ID)
	assert.Equal(t, model.OrderStatusPendingPayment, got.Status)
	assert.Nil(t, got.PaidAt)

	// payment confirmation still lands afterwards
	markPaid(t, store, order.ID)
	got, _ = store.Orders().GetByID(ctx, order.ID)
	assert.Equal(t, model.OrderStatusPaid, got.Status)
	require.NotNil(t, got.PaymentTransactionID)
	assert.Equal(t, "sandbox-tx-1", *got.PaymentTransactionID)
}

// staleGateway simulates a writer that changed the order between read and update
type staleGateway struct {
	repository.Gateway
}

func (g staleGateway) Orders() repository.OrderRepository {
	return staleOrders{g.Gateway.Orders()}
}

func (g staleGateway) Transaction(ctx context.Context, fn func(tx repository.Gateway) error) error {
	return g.Gateway.Transaction(ctx, func(tx repository.Gateway) error {
		return fn(staleGateway{tx})
	})
}

type staleOrders struct {
	repository.OrderRepository
}

func (staleOrders) UpdateStatus(context.Context, uint64, repository.StatusChange) (bool, error) {
	return false, nil
}

func TestUpdateOrderStatus_GuardMissIsConflict(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	order, err := newTestService(t, store).CreateOrder(ctx, buyerID, checkoutFor(seedPost(t, store, 1000).ID))
	require.NoError(t, err)
	markPaid(t, store, order.ID)

	svc := newTestService(t, staleGateway{store})
	_, err = svc.UpdateOrderStatus(ctx, order.ID, model.OrderStatusShipped, sellerID)
	assert.Equal(t, utils.CodeConflict, codeOf(err))

	got, _ := store.Orders().GetByID(ctx, order.ID)
	assert.Equal(t, model.OrderStatusPaid, got.Status)
}

func TestCancelOrder(t *testing.T) {
	store := memstore.New()
	svc := newTestService(t, store)
	ctx := context.Background()
	post := seedPost(t, store, 1000)

	order, err := svc.CreateOrder(ctx, buyerID, checkoutFor(post.ID))
	require.NoError(t, err)
	require.NoError(t, store.Payments().Create(ctx, &model.PaymentIntent{IntentNo: "PI1", OrderID: order.ID}))

	_, err = svc.CancelOrder(ctx, order.ID, sellerID)
	assert.Equal(t, utils.CodeForbidden, codeOf(err))

	canceled, err := svc.CancelOrder(ctx, order.ID, buyerID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCanceled, canceled.Status)
	assert.NotNil(t, canceled.CanceledAt)

	relisted, _ := store.Posts().GetByID(ctx, post.ID)
	assert.Equal(t, model.PostStatusActive, relisted.Status)

	open, _ := store.Payments().FindOpenByOrder(ctx, order.ID)
	assert.Nil(t, open)

	// relisted post can be bought again
	_, err = svc.CreateOrder(ctx, otherID, checkoutFor(post.ID))
	assert.NoError(t, err)
}

func TestCancelOrder_AfterPaymentFails(t *testing.T) {
	store := memstore.New()
	svc := newTestService(t, store)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, buyerID, checkoutFor(seedPost(t, store, 1000).ID))
	require.NoError(t, err)
	markPaid(t, store, order.ID)

	_, err = svc.CancelOrder(ctx, order.ID, buyerID)
	assert.Equal(t, utils.CodeInvalidTransition, codeOf(err))
}

func TestConfirmReceipt(t *testing.T) {
	store := memstore.New()
	svc := newTestService(t, store)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, buyerID, checkoutFor(seedPost(t, store, 1000).ID))
	require.NoError(t, err)

	_, err = svc.ConfirmReceipt(ctx, order.ID, buyerID)
	assert.Equal(t, utils.CodeInvalidTransition, codeOf(err))

	markPaid(t, store, order.ID)
	_, err = svc.UpdateOrderStatus(ctx, order.ID, model.OrderStatusShipped, sellerID)
	require.NoError(t, err)

	_, err = svc.ConfirmReceipt(ctx, order.ID, sellerID)
	assert.Equal(t, utils.CodeForbidden, codeOf(err))

	done, err := svc.ConfirmReceipt(ctx, order.ID, buyerID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
}

func TestGetAndListOrders(t *testing.T) {
	store := memstore.New()
	svc := newTestService(t, store)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, buyerID, checkoutFor(seedPost(t, store, 1000).ID))
	require.NoError(t, err)

	_, err = svc.GetOrder(ctx, order.ID, otherID)
	assert.Equal(t, utils.CodeForbidden, codeOf(err))
	got, err := svc.GetOrder(ctx, order.ID, sellerID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNo, got.OrderNo)

	list, total, err := svc.ListOrders(ctx, buyerID, ListQuery{Role: RoleBuyer, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, list, 1)

	_, total, err = svc.ListOrders(ctx, buyerID, ListQuery{Role: RoleSeller, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	_, _, err = svc.ListOrders(ctx, buyerID, ListQuery{Role: "courier"})
	assert.Equal(t, utils.CodeInvalidParam, codeOf(err))
}
