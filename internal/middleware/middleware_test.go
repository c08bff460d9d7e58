package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"calma_backend/internal/common"
	"calma_backend/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Limit(1.0 / 60.0), Burst: 2}, zap.NewNop())
	r := gin.New()
	r.GET("/ping", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/ping", "10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/ping", "10.0.0.1:1234").Code)

	rec := serve(r, http.MethodGet, "/ping", "10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "TOO_MANY_REQUESTS")

	// A different client has its own bucket.
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/ping", "10.0.0.2:1234").Code)
	assert.Equal(t, 2, rl.LimiterCount())
}

func TestRateLimiter_ActiveClientKeepsItsBucket(t *testing.T) {
	rl := newRateLimiter(RateLimiterConfig{Rate: rate.Limit(1.0 / 3600.0), Burst: 2}, 100*time.Millisecond, zap.NewNop())
	r := gin.New()
	r.GET("/ping", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	allowed := 0
	deadline := time.Now().Add(350 * time.Millisecond)
	for time.Now().Before(deadline) {
		if serve(r, http.MethodGet, "/ping", "10.0.0.1:1234").Code == http.StatusNoContent {
			allowed++
		}
		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, 2, allowed, "a client that never goes idle must not get a fresh burst")
	assert.Equal(t, 1, rl.LimiterCount())
}

func TestRateLimiter_DisabledPassesThrough(t *testing.T) {
	rl := NewRateLimiter(NewRateLimiterConfig(&config.Config{AuthRateLimitPerMinute: 0, AuthRateLimitBurst: 5}), zap.NewNop())
	require.False(t, rl.Enabled())

	r := gin.New()
	r.GET("/ping", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/ping", "10.0.0.1:1234").Code)
	}
	assert.Zero(t, rl.LimiterCount())
}

func TestNewRateLimiterConfig(t *testing.T) {
	cfg := NewRateLimiterConfig(&config.Config{AuthRateLimitPerMinute: 120, AuthRateLimitBurst: 20})

	assert.InDelta(t, 2.0, float64(cfg.Rate), 1e-9)
	assert.Equal(t, 20, cfg.Burst)
}

func TestZapLogger_SetsRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := gin.New()
	r.Use(ZapLogger(zap.New(core), &config.Config{GinMode: gin.TestMode}))
	var seenID string
	var seenLogger bool
	r.GET("/ping", func(c *gin.Context) {
		seenID = common.GetRequestIDFromContext(c)
		_, seenLogger = c.Get(common.LoggerKey)
		c.Status(http.StatusOK)
	})

	rec := serve(r, http.MethodGet, "/ping", "")

	require.NotEmpty(t, seenID)
	assert.True(t, seenLogger)
	assert.Equal(t, seenID, rec.Header().Get(RequestIDHeader))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Request handled", logs.All()[0].Message)
}

func TestZapLogger_KeepsIncomingRequestID(t *testing.T) {
	r := gin.New()
	r.Use(ZapLogger(zap.NewNop(), &config.Config{GinMode: gin.TestMode}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}

func TestErrorHandler(t *testing.T) {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(ErrorHandler(zap.NewNop()))
	r.GET("/api-error", func(c *gin.Context) { _ = c.Error(common.ErrConflict) })
	r.GET("/plain-error", func(c *gin.Context) { _ = c.Error(errors.New("boom")) })
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := serve(r, http.MethodGet, "/api-error", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "CONFLICT")

	rec = serve(r, http.MethodGet, "/plain-error", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_SERVER_ERROR")
	assert.NotContains(t, rec.Body.String(), "boom")

	rec = serve(r, http.MethodGet, "/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")

	rec = serve(r, http.MethodPost, "/ok", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Body.String(), "METHOD_NOT_ALLOWED")
}
