package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/crm-admin/internal/config"
	apperrors "github.com/spec-kit/crm-admin/pkg/util/errorutil"
)

var testApp = config.AppConfig{Name: "crm-admin", Version: "1.2.3", Env: "staging"}

func TestNewLogger_Levels(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "DEBUG"}, testApp)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = NewLogger(config.LoggerConfig{Level: "nonsense"}, testApp)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestNewLogger_ServiceFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := NewLogger(config.LoggerConfig{Level: "info", Format: "json", Output: path}, testApp)
	require.NoError(t, err)

	logger.Info("user logged in", zap.String("user_id", "u1"))
	require.NoError(t, logger.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(raw), &entry))
	assert.Equal(t, "user logged in", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "crm-admin", entry["service"])
	assert.Equal(t, "1.2.3", entry["version"])
	assert.Equal(t, "staging", entry["env"])
	assert.Equal(t, "u1", entry["user_id"])
}

func TestLoggerConfig(t *testing.T) {
	prod := loggerConfig(config.LoggerConfig{Level: "warn"}, "production")
	assert.Equal(t, "json", prod.Encoding)
	assert.Equal(t, []string{"stdout"}, prod.OutputPaths)
	assert.False(t, prod.Development)
	require.NotNil(t, prod.Sampling)
	assert.Equal(t, zapcore.WarnLevel, prod.Level.Level())

	dev := loggerConfig(config.LoggerConfig{Format: "console"}, "development")
	assert.Equal(t, "console", dev.Encoding)
	assert.True(t, dev.Development)
	assert.Nil(t, dev.Sampling)
	assert.Equal(t, zapcore.InfoLevel, dev.Level.Level())
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/x", "GET", 200, time.Millisecond)
	m.RecordError("/x", "GET", "NOT_FOUND")
	m.RecordAuth("login", "success")
	m.RecordReclaim(3, nil)
	assert.Nil(t, m.Registry())
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.RecordAuth("login", "success")
	m.RecordAuth("login", "success")
	m.RecordAuth("login", "invalid_credentials")
	m.RecordReclaim(5, nil)
	m.RecordReclaim(0, errors.New("db down"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.authOps.WithLabelValues("login", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authOps.WithLabelValues("login", "invalid_credentials")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.reclaimedTok))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reclaimRuns.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reclaimRuns.WithLabelValues("success")))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.RecordAuth("refresh", "success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `crm_admin_auth_operations_total{operation="refresh",outcome="success"} 1`)
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	metrics := NewMetrics()

	app := fiber.New()
	app.Use(RequestLogger(zap.New(core), metrics))
	app.Get("/ok/:id", func(c *fiber.Ctx) error {
		return c.SendString(RequestID(c))
	})
	app.Get("/fail", func(c *fiber.Ctx) error {
		return apperrors.NewInvalidToken()
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ok/42", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.NotEmpty(t, body)
	assert.Equal(t, string(body), resp.Header.Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/ok/1", nil)
	req.Header.Set(HeaderRequestID, "client-supplied")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "client-supplied", resp.Header.Get(HeaderRequestID))

	_, err = app.Test(httptest.NewRequest(http.MethodGet, "/fail", nil))
	require.NoError(t, err)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 3)
	assert.EqualValues(t, http.StatusUnauthorized, entries[2].ContextMap()["status"])
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.requests.WithLabelValues("/ok/:id", "GET", "200")))
}
