package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/autocare360/autocare-backend/internal/database"
	"github.com/autocare360/autocare-backend/internal/middleware"
	"github.com/autocare360/autocare-backend/internal/models"
	"github.com/autocare360/autocare-backend/pkg/logger"
	"github.com/autocare360/autocare-backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login POST /auth/login
func Login(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))

	var user models.User
	if err := database.DB.WithContext(c.Request.Context()).Where("email = ?", email).First(&user).Error; err != nil {
		logger.Warn().Str("email", email).Msg("Login failed: user not found")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		logger.Warn().Str("email", email).Msg("Login failed: invalid password")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := utils.GenerateToken(user.ID, string(user.Role))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to generate token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	logger.Info().Uint("user_id", user.ID).Str("role", string(user.Role)).Msg("User logged in")

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  user,
	})
}

// Logout POST /auth/logout
// Revokes the presented token; open push sessions drop on their next handshake.
func Logout(c *gin.Context) {
	v, _ := c.Get(middleware.ContextClaims)
	claims, ok := v.(*utils.Claims)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if err := database.BlacklistToken(c.Request.Context(), claims.GetJTI(), ttl); err != nil {
		logger.Error().Err(err).Msg("Failed to revoke token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log out"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me GET /auth/me
// The client core resolves currentUserId from here once per view activation.
func Me(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	c.JSON(http.StatusOK, gin.H{"user": user})
}
