package handler

import (
	"github.com/gin-gonic/gin"

	"resale/internal/service/auth"
	"resale/pkg/utils"
)

// AuthHandler authentication handler
type AuthHandler struct {
	authService auth.AuthService
}

// NewAuthHandler creates an authentication handler
func NewAuthHandler(authService auth.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Register user registration
func (h *AuthHandler) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"user_id":  user.ID,
		"username": user.Username,
	})
}

// Login user login
func (h *AuthHandler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	tokenResp, err := h.authService.Login(c.Request.Context(), &req, auth.ClientInfo{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, tokenResp)
}

// Logout ends the current session
func (h *AuthHandler) Logout(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}

	if err := h.authService.Logout(c.Request.Context(), user.SessionID); err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, nil)
}

// RefreshToken exchanges a refresh token for a new pair
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req auth.RefreshRequest
	if !bindJSON(c, &req) {
		return
	}

	tokenResp, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, tokenResp)
}

// ChangePassword changes password and signs out other sessions
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	var req auth.ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.authService.ChangePassword(c.Request.Context(), user.UserID, user.SessionID, &req); err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, nil)
}

// Me returns the caller's profile
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}

	profile, err := h.authService.Profile(c.Request.Context(), user.UserID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, profile)
}
