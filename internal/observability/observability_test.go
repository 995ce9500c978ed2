package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/auth-service/internal/config"
)

func TestNewLogger(t *testing.T) {
	app := config.AppConfig{Name: "auth-service", Version: "test", Env: "test"}

	logger, err := NewLogger(config.LoggerConfig{Level: "DEBUG", Encoding: "console", Development: true}, app)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	logger, err = NewLogger(config.LoggerConfig{Level: "nonsense", Encoding: "xml"}, app)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/auth/login", "POST", 200, time.Millisecond)
	m.RecordRequest("/auth/login", "POST", 200, time.Millisecond)
	m.RecordError("/auth/login", "POST", "INVALID_CREDENTIALS")
	m.RecordAuthEvent("user_logged_in")

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Requests["/auth/login|POST|200"])
	assert.Equal(t, int64(1), snap.Errors["/auth/login|POST|INVALID_CREDENTIALS"])
	assert.Equal(t, int64(1), snap.AuthEvents["user_logged_in"])

	snap.Requests["/auth/login|POST|200"] = 99
	assert.Equal(t, int64(2), m.Snapshot().Requests["/auth/login|POST|200"])

	var nilMetrics *Metrics
	nilMetrics.RecordAuthEvent("ignored")
	assert.Empty(t, nilMetrics.Snapshot().Requests)
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	metrics := NewMetrics()

	app := fiber.New()
	app.Use(RequestLogger(zap.New(core), metrics))
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-1")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "req-1", resp.Header.Get("X-Request-ID"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "request", entry.Message)
	assert.Equal(t, "req-1", entry.ContextMap()["request_id"])
	assert.Equal(t, int64(http.StatusNoContent), entry.ContextMap()["status"])
	assert.Equal(t, int64(1), metrics.Snapshot().Requests["/ping|GET|204"])
}
