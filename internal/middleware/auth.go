package middleware

import (
	"net/http"
	"strings"

	"github.com/autocare360/autocare-backend/internal/database"
	"github.com/autocare360/autocare-backend/internal/models"
	"github.com/autocare360/autocare-backend/pkg/utils"
	"github.com/gin-gonic/gin"
)

// Context keys set by AuthMiddleware.
const (
	ContextUserID = "userId"
	ContextUser   = "user"
	ContextClaims = "claims"
)

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.Split(c.GetHeader("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Authenticate validates a raw token and loads its user. It is shared by the
// REST middleware and the push endpoint.
func Authenticate(c *gin.Context, token string) (*models.User, *utils.Claims, bool) {
	claims, err := utils.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token: " + err.Error()})
		c.Abort()
		return nil, nil, false
	}

	if database.IsTokenBlacklisted(c.Request.Context(), claims.GetJTI()) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token has been revoked"})
		c.Abort()
		return nil, nil, false
	}

	var user models.User
	if err := database.DB.WithContext(c.Request.Context()).First(&user, "id = ?", claims.UserID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found or inactive"})
		c.Abort()
		return nil, nil, false
	}

	c.Set(ContextUserID, user.ID)
	c.Set(ContextUser, &user)
	c.Set(ContextClaims, claims)
	return &user, claims, true
}

func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}
		if _, _, ok := Authenticate(c, token); !ok {
			return
		}
		c.Next()
	}
}

// StaffOnly allows EMPLOYEE and ADMIN users through.
func StaffOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}
		if !user.Role.IsStaff() {
			c.JSON(http.StatusForbidden, gin.H{"error": "Staff access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser returns the user stored by AuthMiddleware.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, exists := c.Get(ContextUser)
	if !exists {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}
