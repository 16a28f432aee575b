package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"qrtrack/internal/logging"
	"qrtrack/internal/metrics"
	"qrtrack/internal/types"
)

// RateLimit limits requests per client IP. rate uses the limiter format ("120-M").
// A nil client keeps counters in process memory.
func RateLimit(rate string, client *redis.Client) (gin.HandlerFunc, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("parse rate %q: %w", rate, err)
	}

	var store limiter.Store
	if client != nil {
		store, err = sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: "qrtrack:limit"})
		if err != nil {
			return nil, fmt.Errorf("create redis limiter store: %w", err)
		}
	} else {
		store = memory.NewStore()
	}

	return mgin.NewMiddleware(limiter.New(store, r),
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			metrics.RateLimitHits.WithLabelValues(c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, types.Response{
				Success: false,
				Message: "too many requests",
			})
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			// Fail open.
			logging.Ctx(c.Request.Context()).Warn().Err(err).Msg("Rate limiter unavailable")
			c.Next()
		}),
	), nil
}
