package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/finboard/finboard/backend/gateway/pkg/logger"
	"github.com/finboard/finboard/backend/gateway/pkg/metrics"
)

// windowNow is the clock used to pick the window bucket.
var windowNow = time.Now

// RedisRateLimitMiddleware provides a fixed-window Redis-backed limiter shared
// by all gateway replicas. Each window has its own key, so a key that lost its
// expiry only lingers and never blocks the next window. Up to
// floor(rps*window)+burst requests pass per window.
func RedisRateLimitMiddleware(client *redis.Client, rps float64, burst int, window time.Duration) gin.HandlerFunc {
	if client == nil {
		return RateLimitMiddleware(rps, burst)
	}
	windowSeconds := int64(window.Seconds())
	if windowSeconds <= 0 {
		windowSeconds = 1
	}
	allowedPerWindow := int64(rps*float64(windowSeconds)) + int64(burst)
	if allowedPerWindow < 1 {
		allowedPerWindow = 1
	}
	ttl := time.Duration(windowSeconds+1) * time.Second
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		now := windowNow().Unix()
		redisKey := fmt.Sprintf("rl:%s:%d", limitKey(c), now/windowSeconds)

		var incr *redis.IntCmd
		_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, redisKey)
			pipe.Expire(ctx, redisKey, ttl)
			return nil
		})
		if err != nil {
			logger.Errorf("rate limit check failed: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Rate limit check failed"})
			return
		}
		if incr.Val() > allowedPerWindow {
			c.Header("Retry-After", strconv.FormatInt(windowSeconds-now%windowSeconds, 10))
			metrics.RateLimitRejected.WithLabelValues("redis").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "Rate limit exceeded"})
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("redis").Inc()
		c.Next()
	}
}
