package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"resale/internal/model"
	"resale/internal/service/order"
	"resale/pkg/utils"
)

// OrderHandler order handler
type OrderHandler struct {
	orderService order.OrderService
	maxPageSize  int
}

// UpdateStatusRequest seller status change
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// NewOrderHandler creates an order handler
func NewOrderHandler(orderService order.OrderService, maxPageSize int) *OrderHandler {
	if maxPageSize <= 0 {
		maxPageSize = 100
	}
	return &OrderHandler{
		orderService: orderService,
		maxPageSize:  maxPageSize,
	}
}

// CreateOrder buys a post
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	var req order.CreateOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	o, err := h.orderService.CreateOrder(c.Request.Context(), user.UserID, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.CreatedResponse(c, newOrderResponse(o))
}

// GetOrder gets an order by id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	o, err := h.orderService.GetOrder(c.Request.Context(), id, user.UserID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, newOrderResponse(o))
}

// ListOrders lists the caller's orders. role is buyer (default) or seller.
func (h *OrderHandler) ListOrders(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	page, size, ok := pageParams(c, h.maxPageSize)
	if !ok {
		return
	}

	q := order.ListQuery{
		Role:     c.DefaultQuery("role", order.RoleBuyer),
		Page:     page,
		PageSize: size,
	}
	if raw := c.Query("status"); raw != "" {
		status, err := ParseOrderStatus(raw)
		if err != nil {
			utils.HandleError(c, err)
			return
		}
		q.Status = status
	}

	orders, total, err := h.orderService.ListOrders(c.Request.Context(), user.UserID, q)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessPageResponse(c, newOrderResponses(orders), total, page, size)
}

// UpdateOrderStatus seller moves the order along the lifecycle
func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	status, err := ParseOrderStatus(req.Status)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	o, err := h.orderService.UpdateOrderStatus(c.Request.Context(), id, status, user.UserID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, newOrderResponse(o))
}

// CancelOrder buyer cancels an unpaid order
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	h.buyerAction(c, h.orderService.CancelOrder)
}

// ConfirmReceipt buyer completes a shipped order
func (h *OrderHandler) ConfirmReceipt(c *gin.Context) {
	h.buyerAction(c, h.orderService.ConfirmReceipt)
}

func (h *OrderHandler) buyerAction(c *gin.Context, action func(ctx context.Context, orderID, userID uint64) (*model.Order, error)) {
	user, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	o, err := action(c.Request.Context(), id, user.UserID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, newOrderResponse(o))
}
