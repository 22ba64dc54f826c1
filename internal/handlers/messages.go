package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/autocare360/autocare-backend/internal/database"
	"github.com/autocare360/autocare-backend/internal/middleware"
	"github.com/autocare360/autocare-backend/internal/models"
	"github.com/autocare360/autocare-backend/internal/realtime"
	"github.com/autocare360/autocare-backend/internal/services"
	"github.com/autocare360/autocare-backend/pkg/errors"
	"github.com/autocare360/autocare-backend/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Hub delivers push events; nil disables real-time emission.
var Hub *realtime.Hub

func messageService() *services.MessageService {
	return services.NewMessageService(database.DB)
}

// respondError writes err as JSON, mapping AppError to its status.
func respondError(c *gin.Context, err error, fallback string) {
	if appErr, ok := errors.AsAppError(err); ok {
		c.JSON(appErr.Code, gin.H{"error": appErr.Message})
		return
	}
	logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg(fallback)
	c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
}

func parseUserID(raw string) (uint, bool) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func publish(ctx context.Context, ev models.Event, audience models.Audience) {
	if Hub == nil {
		return
	}
	if err := Hub.Publish(ctx, ev, audience); err != nil {
		// The REST response already carries the result; a lost push is
		// recovered by the client's next fetch.
		logger.Warn().Err(err).Str("type", string(ev.Type)).Msg("Failed to publish push event")
	}
}

// CreateMessage POST /messages
func CreateMessage(c *gin.Context) {
	sender, _ := middleware.CurrentUser(c)

	var req services.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	msg, audience, err := messageService().Create(c.Request.Context(), sender, req)
	if err != nil {
		respondError(c, err, "Failed to send message")
		return
	}

	publish(c.Request.Context(), models.Event{Type: models.EventMessageCreated, Message: msg}, audience)

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// GetMessages GET /messages?userId=<counterpart>
func GetMessages(c *gin.Context) {
	me := c.GetUint(middleware.ContextUserID)
	other, ok := parseUserID(c.Query("userId"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId required"})
		return
	}

	messages, err := messageService().ListPair(c.Request.Context(), me, other)
	if err != nil {
		respondError(c, err, "Failed to fetch messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// GetMyThread GET /messages/mine
// The authenticated customer's pool-shared thread.
func GetMyThread(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	if user.Role != models.RoleCustomer {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only customers have a support thread"})
		return
	}

	messages, err := messageService().ListForCustomer(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err, "Failed to fetch messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// GetCustomerThread GET /messages/customers/:customerId
func GetCustomerThread(c *gin.Context) {
	customerID, ok := parseUserID(c.Param("customerId"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid customerId"})
		return
	}

	svc := messageService()
	customer, err := svc.GetUser(c.Request.Context(), customerID)
	if err != nil {
		respondError(c, err, "Failed to fetch messages")
		return
	}
	if customer.Role != models.RoleCustomer {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User is not a customer"})
		return
	}

	messages, err := svc.ListForCustomer(c.Request.Context(), customerID)
	if err != nil {
		respondError(c, err, "Failed to fetch messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// GetConversations GET /conversations
func GetConversations(c *gin.Context) {
	conversations, err := messageService().Conversations(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to fetch conversations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// MarkRead POST /messages/read/:counterpartId
// "pool" (or 0) marks a customer's whole shared thread.
func MarkRead(c *gin.Context) {
	reader, _ := middleware.CurrentUser(c)

	raw := c.Param("counterpartId")
	counterpartID := models.PoolCounterpart
	if raw != "pool" && raw != "0" {
		id, ok := parseUserID(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid counterpartId"})
			return
		}
		counterpartID = id
	}

	marked, audience, err := messageService().MarkRead(c.Request.Context(), reader, counterpartID)
	if err != nil {
		respondError(c, err, "Failed to mark read")
		return
	}

	if marked > 0 {
		publish(c.Request.Context(), models.Event{
			Type:          models.EventMessagesRead,
			ReaderID:      reader.ID,
			ReaderRole:    reader.Role,
			CounterpartID: counterpartID,
		}, audience)
	}

	c.JSON(http.StatusOK, gin.H{"markedRead": marked})
}

// GetUnreadCount GET /messages/unread-count
func GetUnreadCount(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	count, err := messageService().UnreadCount(c.Request.Context(), user)
	if err != nil {
		respondError(c, err, "Failed to count unread messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}
