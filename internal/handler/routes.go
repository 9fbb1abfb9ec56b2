package handler

import (
	"github.com/gin-gonic/gin"
)

// Handlers groups the API handlers
type Handlers struct {
	Auth    *AuthHandler
	Post    *PostHandler
	Order   *OrderHandler
	Payment *PaymentHandler
	Chat    *ChatHandler
}

// RegisterRoutes mounts the API on v1. requireAuth guards everything except
// registration, login, refresh, public listing reads and the payment callback.
func RegisterRoutes(v1 *gin.RouterGroup, h Handlers, requireAuth gin.HandlerFunc) {
	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/refresh", h.Auth.RefreshToken)
	}

	v1.GET("/posts", h.Post.ListPosts)
	v1.GET("/posts/:id", h.Post.GetPost)
	v1.POST("/payments/callback", h.Payment.Callback)

	protected := v1.Group("")
	protected.Use(requireAuth)
	{
		protected.POST("/auth/logout", h.Auth.Logout)
		protected.POST("/auth/change-password", h.Auth.ChangePassword)
		protected.GET("/auth/me", h.Auth.Me)

		protected.POST("/posts", h.Post.CreatePost)
		protected.PATCH("/posts/:id", h.Post.UpdatePost)
		protected.POST("/posts/:id/withdraw", h.Post.WithdrawPost)

		orders := protected.Group("/orders")
		{
			orders.POST("", h.Order.CreateOrder)
			orders.GET("", h.Order.ListOrders)
			orders.GET("/:id", h.Order.GetOrder)
			orders.PATCH("/:id/status", h.Order.UpdateOrderStatus)
			orders.POST("/:id/cancel", h.Order.CancelOrder)
			orders.POST("/:id/confirm", h.Order.ConfirmReceipt)
			orders.POST("/:id/payment-intents", h.Payment.CreateIntent)
		}

		chatGroup := protected.Group("/chat")
		{
			chatGroup.POST("/rooms", h.Chat.CreateRoom)
			chatGroup.GET("/rooms", h.Chat.ListRooms)
			chatGroup.GET("/rooms/:id", h.Chat.GetRoom)
			chatGroup.GET("/rooms/:id/messages", h.Chat.ListMessages)
			chatGroup.POST("/rooms/:id/messages", h.Chat.SendMessage)
			chatGroup.POST("/rooms/:id/read", h.Chat.MarkRoomRead)
			chatGroup.POST("/messages/:id/read", h.Chat.MarkMessageRead)
			chatGroup.GET("/unread", h.Chat.UnreadTotal)
		}
	}
}
