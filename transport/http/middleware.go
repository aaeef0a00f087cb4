package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/zeoauth/internal/logger"
	"github.com/layer-3/zeoauth/service"
)

// ContextKeyAddress holds the authenticated wallet address
const ContextKeyAddress = "userAddress"

const bearerPrefix = "Bearer "

// AuthMiddleware creates middleware that validates session tokens
func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")

		if len(auth) <= len(bearerPrefix) || !strings.EqualFold(auth[:len(bearerPrefix)], bearerPrefix) {
			abortWithCode(c, http.StatusUnauthorized, CodeUnauthorized)
			return
		}

		token := strings.TrimSpace(auth[len(bearerPrefix):])

		address, err := authService.Authenticate(c.Request.Context(), token)
		if err != nil {
			abortWithCode(c, http.StatusUnauthorized, CodeUnauthorized)
			return
		}

		c.Set(ContextKeyAddress, address)

		c.Next()
	}
}

// BodyLimit rejects reads past limit bytes of the request body
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// RequestLogger logs every handled request
func RequestLogger(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		l.Info(
			"got HTTP request",
			"method", c.Request.Method,
			"uri", c.Request.RequestURI,
			"duration", time.Since(start),
			"status", c.Writer.Status(),
			"size", c.Writer.Size(),
		)
	}
}
