package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/crm-admin/internal/api/dto"
	"github.com/spec-kit/crm-admin/internal/auth"
	"github.com/spec-kit/crm-admin/internal/domain"
	"github.com/spec-kit/crm-admin/internal/service"
	apperrors "github.com/spec-kit/crm-admin/pkg/util/errorutil"
)

// UserReader loads accounts and their history.
type UserReader interface {
	Get(ctx context.Context, id string) (*domain.User, error)
	History(ctx context.Context, userID string, limit int) ([]domain.HistoryEntry, error)
}

// SessionRevoker ends every session of a user.
type SessionRevoker interface {
	LogoutAll(ctx context.Context, userID string, meta service.ClientMeta) (int64, error)
}

// UsersHandler exposes account endpoints.
type UsersHandler struct {
	users    UserReader
	sessions SessionRevoker
}

// NewUsersHandler constructs handler.
func NewUsersHandler(users UserReader, sessions SessionRevoker) *UsersHandler {
	return &UsersHandler{users: users, sessions: sessions}
}

// Me handles GET /api/users/me.
func (h *UsersHandler) Me(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("Authentication required")
	}
	return c.JSON(fiber.Map{"user": dto.NewUserResponse(user)})
}

// Get handles GET /api/users/:id.
func (h *UsersHandler) Get(c *fiber.Ctx) error {
	id, err := userIDParam(c)
	if err != nil {
		return err
	}
	user, err := h.users.Get(c.UserContext(), id)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(fiber.Map{"user": dto.NewUserResponse(user)})
}

// History handles GET /api/users/:id/history.
func (h *UsersHandler) History(c *fiber.Ctx) error {
	id, err := userIDParam(c)
	if err != nil {
		return err
	}
	limit := parseInt(c.Query("limit"), 50)
	entries, err := h.users.History(c.UserContext(), id, limit)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(fiber.Map{"history": dto.NewHistoryResponse(entries)})
}

// RevokeSessions handles POST /api/admin/users/:id/sessions/revoke. Operators
// may only act on users whose role does not outrank their own.
func (h *UsersHandler) RevokeSessions(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("Authentication required")
	}
	id, err := userIDParam(c)
	if err != nil {
		return err
	}
	target, err := h.users.Get(c.UserContext(), id)
	if err != nil {
		return serviceError(err)
	}
	if !actor.Role.AtLeast(target.Role) {
		return apperrors.NewForbidden("Insufficient permissions")
	}

	meta := clientMeta(c)
	meta.ActorID = actor.ID
	revoked, err := h.sessions.LogoutAll(c.UserContext(), target.ID, meta)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(dto.MessageResponse{Message: "Sessions revoked", Revoked: &revoked})
}

// userIDParam reads the :id route param. Account ids are UUIDs, so anything
// else names no user.
func userIDParam(c *fiber.Ctx) (string, error) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", apperrors.NewNotFound("user", nil)
	}
	return id, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
