package middleware

import (
	"context"
	"time"

	"codelab/internal/common/cache"
	pkgerrors "codelab/pkg/errors"
	"codelab/pkg/utils/logger"
	"codelab/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const ipRateKeyPrefix = "rate:ip:"

// RateLimitPolicy caps requests per client IP within a fixed window.
type RateLimitPolicy struct {
	IPMax  int           `yaml:"ipMax"`
	Window time.Duration `yaml:"window"`
}

// IPRateLimit rejects clients that exceed policy with TooManyRequests. A
// zero IPMax or nil counter disables it, and a failing counter lets the
// request through.
func IPRateLimit(counter cache.Cache, policy RateLimitPolicy) gin.HandlerFunc {
	if counter == nil || policy.IPMax <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	window := policy.Window
	if window <= 0 {
		window = time.Minute
	}
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 500*time.Millisecond)
		n, err := counter.IncrWindow(ctx, ipRateKeyPrefix+c.ClientIP(), window)
		cancel()
		if err != nil {
			logger.Warn(c.Request.Context(), "rate limit counter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if n > int64(policy.IPMax) {
			response.AbortWithError(c, pkgerrors.New(pkgerrors.TooManyRequests))
			return
		}
		c.Next()
	}
}
