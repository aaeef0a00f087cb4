package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/zeoauth/internal/logger"
	"github.com/layer-3/zeoauth/service"
)

const (
	// DefaultMaxBodyBytes caps request bodies
	DefaultMaxBodyBytes = 1 << 20

	corsMaxAge = 12 * time.Hour
)

// RouterConfig holds transport level settings
type RouterConfig struct {
	// Origins allowed to call the API from a browser. Empty or "*" allows any origin.
	CORSOrigins []string

	// Upper bound for a request body, DefaultMaxBodyBytes if zero
	MaxBodyBytes int64
}

// SetupRouter sets up the Gin router.
// Routes are served both at the root and under /api.
func SetupRouter(authService *service.AuthService, l logger.Logger, cfg RouterConfig) *gin.Engine {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		RequestLogger(l),
		cors.New(corsConfig(cfg.CORSOrigins)),
		BodyLimit(cfg.MaxBodyBytes),
	)

	handlers := NewAuthHandlers(authService, l)
	authMiddleware := AuthMiddleware(authService)

	for _, group := range []*gin.RouterGroup{&router.RouterGroup, router.Group("/api")} {
		auth := group.Group("/auth/wallet")
		{
			auth.GET("/nonce", handlers.Nonce)
			auth.POST("/verify", handlers.Verify)
		}

		// Protected routes
		group.GET("/me", authMiddleware, handlers.Me)
	}

	router.NoRoute(NotFound)

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       corsMaxAge,
	}

	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}

	cfg.AllowOrigins = origins
	return cfg
}
