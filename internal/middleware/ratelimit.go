package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/autocare360/autocare-backend/internal/config"
	"github.com/autocare360/autocare-backend/internal/database"
	"github.com/autocare360/autocare-backend/pkg/logger"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	ips   map[string]*rateLimiterEntry
	mu    sync.Mutex
	r     rate.Limit
	burst int
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter creates a limiter allowing r requests per second with the
// given burst. Idle entries are evicted every minute.
func NewIPRateLimiter(r rate.Limit, burst int) *IPRateLimiter {
	rl := &IPRateLimiter{
		ips:   make(map[string]*rateLimiterEntry),
		r:     r,
		burst: burst,
	}
	go rl.cleanup()
	return rl
}

func (rl *IPRateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		for ip, entry := range rl.ips {
			if time.Since(entry.lastSeen) > 3*time.Minute {
				delete(rl.ips, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// GetLimiter returns the rate limiter for the given IP
func (rl *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.ips[ip]
	if !exists {
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(rl.r, rl.burst)}
		rl.ips[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

var (
	// Login: 20 per minute
	AuthLimiter = NewIPRateLimiter(rate.Limit(20.0/60.0), 10)

	// General API: 10/sec
	GeneralLimiter = NewIPRateLimiter(rate.Limit(10.0), 50)
)

// RateLimitMiddleware rejects requests once the caller's IP bucket is empty.
func RateLimitMiddleware(limiter *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.GetLimiter(ip).Allow() {
			logger.Warn().
				Str("ip", ip).
				Str("path", c.Request.URL.Path).
				Msg("Rate limit exceeded")

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "Too many requests",
				"message": "Rate limit exceeded. Please slow down.",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func AuthRateLimit() gin.HandlerFunc {
	return RateLimitMiddleware(AuthLimiter)
}

func GeneralRateLimit() gin.HandlerFunc {
	return RateLimitMiddleware(GeneralLimiter)
}

// SendRateLimit caps message creation per user across all server instances.
// It is a no-op without Redis. Must run after AuthMiddleware.
func SendRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, window := 30, time.Minute
		if config.AppConfig != nil {
			limit, window = config.AppConfig.SendRateLimit, config.AppConfig.SendRateWindow
		}
		userID := c.GetUint(ContextUserID)

		ok, err := database.CheckRateLimit(c.Request.Context(), fmt.Sprintf("send:%d", userID), limit, window)
		if err != nil {
			// Redis trouble must not block support traffic.
			logger.Warn().Err(err).Uint("user_id", userID).Msg("Send rate limit check failed")
			c.Next()
			return
		}
		if !ok {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "Too many messages",
				"message": "You are sending messages too quickly.",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
