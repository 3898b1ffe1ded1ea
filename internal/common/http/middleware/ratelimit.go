package middleware

import (
	"context"
	"fmt"
	"time"

	"ojbox/internal/common/ratelimit"
	pkgerrors "ojbox/pkg/errors"
	"ojbox/pkg/utils/logger"
	"ojbox/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimitPolicy bounds hits per client IP in one window.
type RateLimitPolicy struct {
	Window time.Duration
	IPMax  int
}

// RateLimitObserver is told about rejected requests.
type RateLimitObserver interface {
	ObserveRateLimited(ctx context.Context, route string)
}

// RateLimitMiddleware enforces the per-IP limit for each route. Counter
// failures let the request through so an unavailable Redis never blocks
// the sandbox.
func RateLimitMiddleware(limiter *ratelimit.Limiter, policy RateLimitPolicy, observer RateLimitObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || policy.IPMax <= 0 {
			c.Next()
			return
		}
		route := c.FullPath()
		key := fmt.Sprintf("ojbox:rate:ip:%s:%s", c.ClientIP(), route)
		err := limiter.Allow(c.Request.Context(), key, policy.IPMax, policy.Window)
		switch {
		case err == nil:
			c.Next()
		case pkgerrors.Is(err, pkgerrors.TooManyRequests):
			if observer != nil {
				observer.ObserveRateLimited(c.Request.Context(), route)
			}
			response.AbortWithError(c, err)
		default:
			logger.Warn(c.Request.Context(), "rate limit check failed, allowing request",
				zap.String("route", route), zap.Error(err))
			c.Next()
		}
	}
}
