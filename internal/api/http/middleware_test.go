package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/crm-admin/internal/observability"
	apperrors "github.com/spec-kit/crm-admin/pkg/util/errorutil"
)

func newMiddlewareApp(t *testing.T, timeout time.Duration) (*fiber.App, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	app := fiber.New()
	RegisterMiddlewares(app, zap.New(core), observability.NewMetrics(), timeout)

	app.Get("/panic", func(c *fiber.Ctx) error {
		panic("boom")
	})
	app.Get("/slow", func(c *fiber.Ctx) error {
		<-c.UserContext().Done()
		return fmt.Errorf("load user: %w", c.UserContext().Err())
	})
	app.Get("/invalid", func(c *fiber.Ctx) error {
		return apperrors.NewValidationError("invalid payload", map[string]any{"email": "valid email required"})
	})
	app.Get("/broken", func(c *fiber.Ctx) error {
		return apperrors.NewInternalError(errors.New("connection reset"))
	})
	return app, logs
}

func get(t *testing.T, app *fiber.App, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body["error"].(map[string]any)
}

func TestErrorEnvelope(t *testing.T) {
	app, logs := newMiddlewareApp(t, time.Second)

	resp, e := get(t, app, "/invalid")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", e["code"])
	assert.Equal(t, map[string]any{"email": "valid email required"}, e["details"])
	assert.NotEmpty(t, e["requestId"])
	assert.Equal(t, resp.Header.Get(observability.HeaderRequestID), e["requestId"])
	assert.Zero(t, logs.FilterMessage("request failed").Len())

	resp, e = get(t, app, "/broken")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "INTERNAL_ERROR", e["code"])
	assert.Equal(t, "internal server error", e["message"])
	assert.NotContains(t, e, "details")
	failed := logs.FilterMessage("request failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, e["requestId"], failed[0].ContextMap()["request_id"])
}

func TestErrorEnvelope_RecoversPanic(t *testing.T) {
	app, logs := newMiddlewareApp(t, time.Second)

	resp, e := get(t, app, "/panic")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "INTERNAL_ERROR", e["code"])
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestRequestDeadline(t *testing.T) {
	app, _ := newMiddlewareApp(t, 20*time.Millisecond)

	resp, e := get(t, app, "/slow")
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	assert.Equal(t, "REQUEST_TIMEOUT", e["code"])
	assert.Equal(t, "Request timed out", e["message"])
}
