package database

import (
	"context"
	"fmt"
	"time"

	"github.com/autocare360/autocare-backend/internal/config"
	"github.com/autocare360/autocare-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Redis is nil when the server runs without Redis; every helper below
// degrades to a local no-op in that case.
var Redis *redis.Client

func InitRedis() {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Failed to connect to Redis; push fan-out stays local and send rate limiting is disabled")
		_ = client.Close()
		return
	}
	Redis = client
	logger.Info().Str("addr", config.AppConfig.RedisAddr).Msg("Connected to Redis")
}

// PingRedis returns "ok", "error" or "not configured" for the health check.
func PingRedis(ctx context.Context) string {
	if Redis == nil {
		return "not configured"
	}
	if err := Redis.Ping(ctx).Err(); err != nil {
		return "error"
	}
	return "ok"
}

// CheckRateLimit counts one hit for key in a fixed window and reports whether
// it is still within limit.
func CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if Redis == nil || limit <= 0 {
		return true, nil
	}
	redisKey := fmt.Sprintf("rate_limit:%s", key)
	count, err := Redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		Redis.Expire(ctx, redisKey, window)
	}
	return count <= int64(limit), nil
}

// BlacklistToken revokes a token id until its natural expiry.
func BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error {
	if Redis == nil || jti == "" || ttl <= 0 {
		return nil
	}
	return Redis.Set(ctx, "token_blacklist:"+jti, "1", ttl).Err()
}

// IsTokenBlacklisted reports whether a token id was revoked via logout.
func IsTokenBlacklisted(ctx context.Context, jti string) bool {
	if Redis == nil || jti == "" {
		return false
	}
	n, err := Redis.Exists(ctx, "token_blacklist:"+jti).Result()
	return err == nil && n > 0
}
