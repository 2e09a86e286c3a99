package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rtc-coordinator/internal/database"
	apperrors "rtc-coordinator/pkg/errors"
	"rtc-coordinator/pkg/logger"
	"rtc-coordinator/pkg/response"
)

// RateLimiter implements a Redis fixed-window rate limit per caller
type RateLimiter struct {
	redis    *database.RedisClient
	requests int
	window   time.Duration
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter
// requests: maximum number of requests allowed
// window: time window for the rate limit (e.g., 1 minute)
func NewRateLimiter(redis *database.RedisClient, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:    redis,
		requests: requests,
		window:   window,
		now:      time.Now,
	}
}

// Middleware returns a Gin middleware for rate limiting
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := "ip:" + c.ClientIP()
		if userID, ok := UserID(c); ok {
			identifier = fmt.Sprintf("user:%d", userID)
		}

		count, resetAt, err := rl.hit(c.Request.Context(), identifier)
		if err != nil {
			// Fail-open: signaling must keep working while Redis is down
			logger.Debug("Rate limit check skipped", zap.String("identifier", identifier), zap.Error(err))
			c.Next()
			return
		}

		remaining := rl.requests - int(count)
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))

		if count > int64(rl.requests) {
			c.Header("Retry-After", strconv.FormatInt(max(resetAt-rl.now().Unix(), 1), 10))
			response.FromError(c, apperrors.RateLimitExceededError())
			c.Abort()
			return
		}

		c.Next()
	}
}

// hit counts one request in the current window and returns the count and window reset time
func (rl *RateLimiter) hit(ctx context.Context, identifier string) (int64, int64, error) {
	windowSeconds := int64(rl.window.Seconds())
	if windowSeconds <= 0 {
		windowSeconds = 1
	}
	windowStart := rl.now().Unix() / windowSeconds * windowSeconds
	key := fmt.Sprintf("ratelimit:%s:%d", identifier, windowStart)

	count, err := rl.redis.SafeIncrWithExpiry(ctx, key, rl.window)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to increment rate limit: %w", err)
	}
	return count, windowStart + windowSeconds, nil
}
