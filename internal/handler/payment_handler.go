package handler

import (
	"github.com/gin-gonic/gin"

	"resale/internal/service/payment"
	"resale/pkg/utils"
)

// PaymentHandler payment handler
type PaymentHandler struct {
	paymentService payment.PaymentService
}

// NewPaymentHandler creates a payment handler
func NewPaymentHandler(paymentService payment.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// CreateIntent opens a payment for the buyer's pending order
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	intent, err := h.paymentService.CreateIntent(c.Request.Context(), id, user.UserID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.CreatedResponse(c, intent)
}

// Callback provider notification, authenticated by signature instead of a token
func (h *PaymentHandler) Callback(c *gin.Context) {
	var req payment.CallbackRequest
	if !bindJSON(c, &req) {
		return
	}

	intent, err := h.paymentService.ConfirmIntent(c.Request.Context(), &req, c.GetHeader(payment.SignatureHeader))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"intent_no": intent.IntentNo,
		"status":    intent.Status,
	})
}
