package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"resale/pkg/utils"
)

// Timeout puts a deadline on the request context. The handler keeps running
// on the request goroutine; if it returns after the deadline without writing
// a response, a 503 envelope is written instead.
func Timeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			utils.Error(c, utils.CodeServiceError, "request timeout")
		}
	}
}
