package handlers

import (
	"net/http"

	"github.com/autocare360/autocare-backend/internal/middleware"
	"github.com/autocare360/autocare-backend/internal/realtime"
	"github.com/autocare360/autocare-backend/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// PushHandler GET /ws?token=<jwt>
// The credential is checked before the upgrade; topic subscription happens
// over the socket.
func PushHandler(c *gin.Context) {
	if Hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Push channel disabled"})
		return
	}

	token := c.Query("token")
	if token == "" {
		logger.Warn().Str("ip", c.ClientIP()).Msg("Push connection rejected: no token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	user, _, ok := middleware.Authenticate(c, token)
	if !ok {
		logger.Warn().Str("ip", c.ClientIP()).Msg("Push connection rejected: invalid token")
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("Error upgrading to websocket")
		return
	}

	conn := realtime.NewConnection(user.ID, user.Role, ws)
	logger.Info().Str("session", conn.ID).Uint("user_id", user.ID).Msg("Push session opened")
	Hub.Router.Attach(conn)
	logger.Info().Str("session", conn.ID).Uint("user_id", user.ID).Msg("Push session closed")
}
