package middleware

import (
	"net/url"
	"time"

	"github.com/autocare360/autocare-backend/pkg/logger"
	"github.com/gin-gonic/gin"
)

// LoggingMiddleware logs all incoming requests with timing
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		var userID uint
		if v, ok := c.Get(ContextUserID); ok {
			userID, _ = v.(uint)
		}

		event := logger.Log.Info()
		if status >= 400 {
			event = logger.Log.Warn()
		}
		if status >= 500 {
			event = logger.Log.Error()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", redactQuery(c.Request.URL)).
			Int("status", status).
			Dur("latency", latency).
			Str("ip", c.ClientIP()).
			Uint("user_id", userID).
			Int("body_size", c.Writer.Size()).
			Msg("request")
	}
}

// Query parameters that carry credentials. The push endpoint takes the
// session JWT as ?token=.
var sensitiveParams = []string{"token"}

func redactQuery(u *url.URL) string {
	if u.RawQuery == "" {
		return ""
	}
	q := u.Query()
	redacted := false
	for _, key := range sensitiveParams {
		if _, ok := q[key]; ok {
			q.Set(key, "[redacted]")
			redacted = true
		}
	}
	if !redacted {
		return u.RawQuery
	}
	return q.Encode()
}
