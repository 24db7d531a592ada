package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/crm-admin/internal/domain"
	"github.com/spec-kit/crm-admin/internal/repository"
	apperrors "github.com/spec-kit/crm-admin/pkg/util/errorutil"
)

const (
	userID  = "6f1c2a3e-0000-4000-8000-000000000001"
	adminID = "6f1c2a3e-0000-4000-8000-000000000002"
	ghostID = "6f1c2a3e-0000-4000-8000-000000000003"
)

type stubUsers map[string]*domain.User

// GetByID fails on a non-UUID id the way a uuid column does.
func (s stubUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.New("invalid input syntax for type uuid")
	}
	if u, ok := s[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, repository.ErrNotFound
}

type failingUsers struct{}

func (failingUsers) GetByID(context.Context, string) (*domain.User, error) {
	return nil, context.DeadlineExceeded
}

func newTestApp(verifier *Verifier) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).JSON(fiber.Map{"error": fiber.Map{"code": de.Code, "message": de.Message}})
		},
	})
	mw := NewAuthMiddleware(verifier)
	app.Get("/me", mw.Handle, func(c *fiber.Ctx) error {
		user, _ := UserFromContext(c)
		return c.JSON(fiber.Map{"id": user.ID, "hash": user.PasswordHash})
	})
	app.Get("/admin", mw.Handle, RequireRoles(AdminRoles...), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/users/:id", mw.Handle, RequireOwnerOrRoles("id", AdminRoles...), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/open", RequireRoles(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func call(t *testing.T, app *fiber.App, path, authz string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authz != "" {
		req.Header.Set(fiber.HeaderAuthorization, authz)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func errorMessage(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	msg, _ := e["message"].(string)
	return msg
}

func TestAuthMiddleware(t *testing.T) {
	now := time.Now()
	tm := NewTokenManager("secret", 15*time.Minute)
	users := stubUsers{
		userID:  {ID: userID, Role: domain.RoleUser, PasswordHash: "hash"},
		adminID: {ID: adminID, Role: domain.RoleAdmin},
	}
	app := newTestApp(NewVerifier(tm, users, func() time.Time { return now }))

	userToken, _, err := tm.Encode(userID, now)
	require.NoError(t, err)
	adminToken, _, err := tm.Encode(adminID, now)
	require.NoError(t, err)
	ghostToken, _, err := tm.Encode(ghostID, now)
	require.NoError(t, err)
	malformedToken, _, err := tm.Encode("not-a-uuid", now)
	require.NoError(t, err)
	expiredToken, _, err := tm.Encode(userID, now.Add(-time.Hour))
	require.NoError(t, err)

	t.Run("valid token loads user without hash", func(t *testing.T) {
		status, body := call(t, app, "/me", "Bearer "+userToken)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, userID, body["id"])
		assert.Empty(t, body["hash"])
	})

	t.Run("scheme is case insensitive", func(t *testing.T) {
		status, _ := call(t, app, "/me", "bearer "+userToken)
		assert.Equal(t, http.StatusOK, status)
	})

	missing := map[string]string{
		"no header":    "",
		"basic scheme": "Basic dXNlcjpwdw==",
		"empty bearer": "Bearer ",
		"bare token":   userToken,
	}
	for name, header := range missing {
		t.Run(name, func(t *testing.T) {
			status, body := call(t, app, "/me", header)
			assert.Equal(t, http.StatusUnauthorized, status)
			assert.Equal(t, "No token provided", errorMessage(body))
		})
	}

	invalid := map[string]string{
		"garbage":           "Bearer nope",
		"expired":           "Bearer " + expiredToken,
		"deleted subject":   "Bearer " + ghostToken,
		"malformed subject": "Bearer " + malformedToken,
	}
	for name, header := range invalid {
		t.Run(name, func(t *testing.T) {
			status, body := call(t, app, "/me", header)
			assert.Equal(t, http.StatusUnauthorized, status)
			assert.Equal(t, "Invalid token", errorMessage(body))
		})
	}

	t.Run("role gate", func(t *testing.T) {
		status, body := call(t, app, "/admin", "Bearer "+userToken)
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "Insufficient permissions", errorMessage(body))

		status, _ = call(t, app, "/admin", "Bearer "+adminToken)
		assert.Equal(t, http.StatusNoContent, status)
	})

	t.Run("owner or admin gate", func(t *testing.T) {
		status, _ := call(t, app, "/users/"+userID, "Bearer "+userToken)
		assert.Equal(t, http.StatusNoContent, status)
		status, _ = call(t, app, "/users/"+adminID, "Bearer "+userToken)
		assert.Equal(t, http.StatusForbidden, status)
		status, _ = call(t, app, "/users/"+userID, "Bearer "+adminToken)
		assert.Equal(t, http.StatusNoContent, status)
	})

	t.Run("gate without authentication", func(t *testing.T) {
		status, body := call(t, app, "/open", "")
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "Authentication required", errorMessage(body))
	})
}

func TestAuthMiddleware_StoreFailureIsInternal(t *testing.T) {
	tm := NewTokenManager("secret", time.Minute)
	app := newTestApp(NewVerifier(tm, failingUsers{}, nil))
	token, _, err := tm.Encode(userID, time.Now())
	require.NoError(t, err)

	status, _ := call(t, app, "/me", "Bearer "+token)
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer  abc ")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	_, ok = BearerToken("Token abc")
	assert.False(t, ok)
}
