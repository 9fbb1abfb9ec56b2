package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"resale/pkg/limiter"
	"resale/pkg/log"
	"resale/pkg/utils"
)

// RateLimit rejects requests once the key derived by keyFunc runs out of
// budget. Limiter failures let the request through.
func RateLimit(l limiter.RateLimiter, keyFunc func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFunc(c)
		allowed, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			log.WithContext(c.Request.Context()).WithError(err).Warn("Rate limiter unavailable")
			c.Next()
			return
		}
		if !allowed {
			log.WithContext(c.Request.Context()).WithFields(logrus.Fields{
				"key":    key,
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Warn("Rate limit exceeded")
			c.Header("Retry-After", "1")
			utils.Error(c, utils.CodeRateLimit, "too many requests")
			return
		}
		c.Next()
	}
}

// IPRateLimit limits per client IP
func IPRateLimit(l limiter.RateLimiter) gin.HandlerFunc {
	return RateLimit(l, func(c *gin.Context) string {
		return c.ClientIP()
	})
}
