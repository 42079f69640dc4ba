package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringline/ringline/internal/v1/config"
)

func testConfig(apiRate, wsRate string) *config.Config {
	return &config.Config{
		RateLimitAPIGlobal: apiRate,
		RateLimitWsIP:      wsRate,
	}
}

func TestNew_InvalidRateFormat(t *testing.T) {
	_, err := New(testConfig("bogus", "100-M"), nil)
	assert.Error(t, err)

	_, err = New(testConfig("100-M", "bogus"), nil)
	assert.Error(t, err)
}

func TestNew_MemoryStoreWithoutRedis(t *testing.T) {
	rl, err := New(testConfig("100-M", "100-M"), nil)
	require.NoError(t, err)
	assert.NotNil(t, rl.store)
}

func TestGlobalMiddleware_AllowsUnderLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl, err := New(testConfig("100-M", "100-M"), nil)
	require.NoError(t, err)

	router := gin.New()
	router.Use(rl.GlobalMiddleware())
	router.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "100", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "99", w.Header().Get("X-RateLimit-Remaining"))
}

func TestGlobalMiddleware_RejectsOverLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl, err := New(testConfig("2-M", "100-M"), nil)
	require.NoError(t, err)

	router := gin.New()
	router.Use(rl.GlobalMiddleware())
	router.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		router.ServeHTTP(last, httptest.NewRequest(http.MethodGet, "/ok", nil))
	}

	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
}

func TestCheckWebSocket(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl, err := New(testConfig("100-M", "2-M"), nil)
	require.NoError(t, err)

	newCtx := func() (*gin.Context, *httptest.ResponseRecorder) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/ws", nil)
		return c, w
	}

	for i := 0; i < 2; i++ {
		c, _ := newCtx()
		assert.True(t, rl.CheckWebSocket(c))
	}

	c, w := newCtx()
	assert.False(t, rl.CheckWebSocket(c))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
