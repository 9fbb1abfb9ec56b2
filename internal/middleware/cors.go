package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"resale/internal/config"
)

var defaultAllowHeaders = []string{
	"Origin",
	"Content-Length",
	"Content-Type",
	"Authorization",
	"X-Requested-With",
	"Accept",
	"X-Request-ID",
}

// CORS cross-origin middleware built from config. An empty origin list
// allows every origin.
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	c := cors.DefaultConfig()
	if len(cfg.AllowOrigins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.AllowOrigins
	}

	c.AllowHeaders = defaultAllowHeaders
	if len(cfg.AllowHeaders) > 0 {
		c.AllowHeaders = cfg.AllowHeaders
	}
	if len(cfg.AllowMethods) > 0 {
		c.AllowMethods = cfg.AllowMethods
	}
	c.ExposeHeaders = append([]string{TraceIDHeader}, cfg.ExposeHeaders...)
	// browsers refuse credentials with a wildcard origin
	c.AllowCredentials = cfg.AllowCredentials && !c.AllowAllOrigins
	if cfg.MaxAge > 0 {
		c.MaxAge = cfg.MaxAge
	}
	return cors.New(c)
}
