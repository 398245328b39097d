package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimit caps the whole API surface with a shared token bucket. Bursts up
// to twice the sustained rate are allowed.
func RateLimit(requestsPerSecond float64) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(requestsPerSecond), int(requestsPerSecond*2))
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "rate limit exceeded",
				"message": "too many requests",
			})
			return
		}
		c.Next()
	}
}
