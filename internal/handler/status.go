package handler

import (
	"strings"

	"resale/internal/model"
	"resale/pkg/utils"
)

// Order statuses are upper snake case on the wire
var orderStatusNames = map[model.OrderStatus]string{
	model.OrderStatusPendingPayment: "PENDING_PAYMENT",
	model.OrderStatusPaid:           "PAID",
	model.OrderStatusShipped:        "SHIPPED",
	model.OrderStatusCompleted:      "COMPLETED",
	model.OrderStatusCanceled:       "CANCELED",
	model.OrderStatusRefunded:       "REFUNDED",
}

var orderStatusByName = func() map[string]model.OrderStatus {
	m := make(map[string]model.OrderStatus, len(orderStatusNames))
	for status, name := range orderStatusNames {
		m[name] = status
	}
	return m
}()

// OrderStatusName returns the wire name of s
func OrderStatusName(s model.OrderStatus) string {
	if name, ok := orderStatusNames[s]; ok {
		return name
	}
	return strings.ToUpper(string(s))
}

// ParseOrderStatus converts a wire name into a stored status
func ParseOrderStatus(name string) (model.OrderStatus, error) {
	status, ok := orderStatusByName[strings.TrimSpace(name)]
	if !ok {
		return "", utils.Errorf(utils.CodeInvalidParam, "unknown order status %q", name)
	}
	return status, nil
}

// OrderResponse order with its wire status
type OrderResponse struct {
	*model.Order
	Status string `json:"status"`
}

func newOrderResponse(o *model.Order) OrderResponse {
	return OrderResponse{Order: o, Status: OrderStatusName(o.Status)}
}

func newOrderResponses(orders []*model.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, newOrderResponse(o))
	}
	return out
}
