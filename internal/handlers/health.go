package handlers

import (
	"net/http"

	"github.com/autocare360/autocare-backend/internal/database"
	"github.com/gin-gonic/gin"
)

// Health GET /health
func Health(c *gin.Context) {
	dbStatus := "ok"
	if !database.Ping() {
		dbStatus = "error"
	}
	redisStatus := database.PingRedis(c.Request.Context())

	status := "ok"
	if dbStatus != "ok" || redisStatus == "error" {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"checks": gin.H{
			"database": dbStatus,
			"redis":    redisStatus,
		},
	})
}
