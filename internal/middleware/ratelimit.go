package middleware

import (
	"math"
	"strconv"
	"time"

	"calma_backend/internal/common"
	"calma_backend/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiterConfig holds the per-client token bucket settings.
type RateLimiterConfig struct {
	Rate  rate.Limit
	Burst int
}

// NewRateLimiterConfig converts the per-minute setting from config. A
// non-positive rate disables limiting.
func NewRateLimiterConfig(cfg *config.Config) RateLimiterConfig {
	return RateLimiterConfig{
		Rate:  rate.Limit(float64(cfg.AuthRateLimitPerMinute) / 60.0),
		Burst: cfg.AuthRateLimitBurst,
	}
}

// RateLimiter limits requests per client IP.
type RateLimiter struct {
	config   RateLimiterConfig
	limiters *cache.Cache
	logger   *zap.Logger
}

// NewRateLimiter creates a RateLimiter. A client's limiter is evicted only
// after it has been idle for as long as its bucket takes to refill.
func NewRateLimiter(cfg RateLimiterConfig, logger *zap.Logger) *RateLimiter {
	idle := time.Minute
	if cfg.Rate > 0 && cfg.Burst > 0 {
		refill := time.Duration(float64(cfg.Burst) / float64(cfg.Rate) * float64(time.Second))
		if refill > idle {
			idle = refill
		}
	}
	return newRateLimiter(cfg, idle, logger)
}

func newRateLimiter(cfg RateLimiterConfig, idle time.Duration, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		config:   cfg,
		limiters: cache.New(idle, 2*idle),
		logger:   logger.Named("RateLimiter"),
	}
}

// Enabled reports whether requests are limited at all.
func (rl *RateLimiter) Enabled() bool {
	return rl.config.Rate > 0 && rl.config.Burst > 0
}

// Middleware returns the gin handler enforcing the limit.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	if !rl.Enabled() {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		key := c.ClientIP()
		if !rl.limiterFor(key).Allow() {
			rl.logger.Warn("Rate limit exceeded",
				zap.String("ip", key),
				zap.String("path", c.FullPath()),
				zap.String("request_id", common.GetRequestIDFromContext(c)),
			)
			c.Header("Retry-After", strconv.Itoa(rl.retryAfterSeconds()))
			common.RespondWithError(c, common.ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

// LimiterCount returns the number of tracked clients.
func (rl *RateLimiter) LimiterCount() int {
	return rl.limiters.ItemCount()
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	if v, found := rl.limiters.Get(key); found {
		limiter := v.(*rate.Limiter)
		// Slide the expiry so an active client keeps its bucket.
		rl.limiters.Set(key, limiter, cache.DefaultExpiration)
		return limiter
	}
	limiter := rate.NewLimiter(rl.config.Rate, rl.config.Burst)
	if err := rl.limiters.Add(key, limiter, cache.DefaultExpiration); err != nil {
		// Another request created it first.
		if v, found := rl.limiters.Get(key); found {
			return v.(*rate.Limiter)
		}
	}
	return limiter
}

func (rl *RateLimiter) retryAfterSeconds() int {
	secs := int(math.Ceil(1.0 / float64(rl.config.Rate)))
	if secs < 1 {
		secs = 1
	}
	return secs
}
