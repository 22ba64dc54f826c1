package routes

import (
	"github.com/autocare360/autocare-backend/internal/handlers"
	"github.com/autocare360/autocare-backend/internal/middleware"
	"github.com/gin-gonic/gin"
)

func RegisterAuthRoutes(r gin.IRouter) {
	r.POST("/login", handlers.Login)

	authed := r.Group("")
	authed.Use(middleware.AuthMiddleware())
	{
		authed.POST("/logout", handlers.Logout)
		authed.GET("/me", handlers.Me)
	}
}

func RegisterMessageRoutes(r gin.IRouter) {
	messages := r.Group("/messages")
	messages.Use(middleware.AuthMiddleware())
	{
		messages.POST("", middleware.SendRateLimit(), handlers.CreateMessage)
		messages.GET("", handlers.GetMessages) // ?userId=...
		messages.GET("/mine", handlers.GetMyThread)
		messages.GET("/unread-count", handlers.GetUnreadCount)
		messages.POST("/read/:counterpartId", handlers.MarkRead)
		messages.GET("/customers/:customerId", middleware.StaffOnly(), handlers.GetCustomerThread)
	}

	conversations := r.Group("/conversations")
	conversations.Use(middleware.AuthMiddleware(), middleware.StaffOnly())
	{
		conversations.GET("", handlers.GetConversations)
	}
}

// RegisterPushRoutes mounts the websocket endpoint. It authenticates from
// the token query parameter, not the Authorization header.
func RegisterPushRoutes(r gin.IRouter) {
	r.GET("/ws", handlers.PushHandler)
}
