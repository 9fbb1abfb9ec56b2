package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	jwtutil "resale/internal/utils"
	"resale/pkg/utils"
)

const (
	// AuthorizationHeader authentication header name
	AuthorizationHeader = "Authorization"
	// BearerPrefix Bearer prefix
	BearerPrefix = "Bearer "

	identityKey = "identity"
)

// Identity the authenticated caller. It is stored by value so handlers
// cannot change it for the rest of the chain.
type Identity struct {
	UserID    uint64
	Username  string
	Role      string
	SessionID string
}

// TokenValidator validates an access token against its session
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*jwtutil.JWTClaims, error)
}

// Auth rejects requests without a valid bearer token
func Auth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthorizationHeader)
		if authHeader == "" {
			utils.Error(c, utils.CodeUnauthorized, "missing authorization header")
			return
		}
		if !strings.HasPrefix(authHeader, BearerPrefix) {
			utils.Error(c, utils.CodeUnauthorized, "invalid authorization header format")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, BearerPrefix))
		if token == "" {
			utils.Error(c, utils.CodeUnauthorized, "missing token")
			return
		}

		claims, err := validator.ValidateToken(c.Request.Context(), token)
		if err != nil {
			msg := "invalid token"
			if appErr, ok := utils.IsAppError(err); ok && appErr.Code == utils.CodeUnauthorized {
				msg = appErr.Message
			}
			utils.Error(c, utils.CodeUnauthorized, msg)
			return
		}

		c.Set(identityKey, Identity{
			UserID:    claims.UserID,
			Username:  claims.Username,
			Role:      claims.Role,
			SessionID: claims.SessionID,
		})
		c.Next()
	}
}

// GetIdentity returns the caller set by Auth
func GetIdentity(c *gin.Context) (Identity, bool) {
	v, exists := c.Get(identityKey)
	if !exists {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}
