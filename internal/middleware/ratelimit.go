package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SigninRateLimit throttles credential-guessing by client IP using a Redis
// counter with a rolling window. Redis being down fails open: losing the
// throttle is better than losing signin.
func SigninRateLimit(cache *redis.Client, maxAttempts int, window time.Duration, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cache == nil || maxAttempts <= 0 {
			c.Next()
			return
		}

		key := "signin:attempts:" + c.ClientIP()

		count, err := cache.Incr(c.Request.Context(), key).Result()
		if err != nil {
			log.Warn().Err(err).Msg("signin rate limit unavailable")
			c.Next()
			return
		}
		if count == 1 {
			if err := cache.Expire(c.Request.Context(), key, window).Err(); err != nil {
				log.Warn().Err(err).Msg("signin rate limit expire failed")
			}
		}

		if count > int64(maxAttempts) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too_many_attempts"})
			return
		}

		c.Next()
	}
}
