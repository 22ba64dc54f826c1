package routes

import (
	"github.com/autocare360/autocare-backend/internal/handlers"
	"github.com/autocare360/autocare-backend/internal/middleware"
	"github.com/gin-gonic/gin"
)

// Setup mounts middleware and every API route on r.
func Setup(r *gin.Engine) {
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.ErrorHandlerMiddleware())
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware())

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		RegisterAuthRoutes(auth)

		// The push socket is long-lived; keep it out of the request limiter.
		RegisterPushRoutes(api)

		limited := api.Group("")
		limited.Use(middleware.GeneralRateLimit())
		RegisterMessageRoutes(limited)
	}

	r.GET("/health", handlers.Health)
}
