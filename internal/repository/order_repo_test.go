package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"resale/internal/model"
	"resale/pkg/utils"
)

const orderGuardSQL = "UPDATE `orders` SET `paid_at`=?,`payment_transaction_id`=?,`status`=?,`updated_at`=? WHERE id = ? AND status = ?"

func TestOrderRepository_UpdateStatus_Guarded(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewOrderRepository(db)

	txID := "txn_1"
	change := StatusChange{
		From:                 model.OrderStatusPendingPayment,
		To:                   model.OrderStatusPaid,
		At:                   time.Now(),
		PaymentTransactionID: &txID,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(orderGuardSQL)).
		WithArgs(sqlmock.AnyArg(), txID, "paid", sqlmock.AnyArg(), uint64(42), "pending_payment").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := repo.UpdateStatus(context.Background(), 42, change)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !ok {
		t.Error("Expected guarded update to apply")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestOrderRepository_UpdateStatus_GuardMiss(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewOrderRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `orders` SET `shipped_at`=?,`status`=?,`updated_at`=? WHERE id = ? AND status = ?")).
		WithArgs(sqlmock.AnyArg(), "shipped", sqlmock.AnyArg(), uint64(42), "paid").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ok, err := repo.UpdateStatus(context.Background(), 42, StatusChange{
		From: model.OrderStatusPaid,
		To:   model.OrderStatusShipped,
		At:   time.Now(),
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if ok {
		t.Error("Expected guard miss to report false")
	}
}

func TestOrderRepository_GetByID_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewOrderRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `orders` WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), 1)
	if utils.GetErrorCode(err) != utils.CodeNotFound {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestOrderRepository_List(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewOrderRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM `orders` WHERE buyer_id = ? AND status = ?")).
		WithArgs(uint64(3), "paid").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `orders` WHERE buyer_id = ? AND status = ? ORDER BY created_at DESC,id DESC LIMIT ? OFFSET ?")).
		WithArgs(uint64(3), "paid", 1, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_no", "buyer_id", "status"}).
			AddRow(11, "ORD11", 3, "paid"))

	orders, total, err := repo.List(context.Background(), OrderFilter{
		BuyerID: 3,
		Status:  model.OrderStatusPaid,
	}, 2, 1)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if total != 2 || len(orders) != 1 || orders[0].OrderNo != "ORD11" {
		t.Errorf("Unexpected result total=%d orders=%+v", total, orders)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}
