package auth

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/crm-admin/internal/domain"
	apperrors "github.com/spec-kit/crm-admin/pkg/util/errorutil"
)

// Authorize checks that user is present and holds one of the allowed roles.
// An empty allowed list only requires authentication.
func Authorize(user *domain.User, allowed ...domain.Role) error {
	if user == nil {
		return ErrUnauthenticated
	}
	if len(allowed) == 0 {
		return nil
	}
	for _, role := range allowed {
		if user.Role == role {
			return nil
		}
	}
	return ErrForbidden
}

// AuthorizeOwner is Authorize that also admits the owner of the resource.
func AuthorizeOwner(user *domain.User, ownerID string, allowed ...domain.Role) error {
	if user == nil {
		return ErrUnauthenticated
	}
	if ownerID != "" && user.ID == ownerID {
		return nil
	}
	if len(allowed) == 0 {
		return ErrForbidden
	}
	return Authorize(user, allowed...)
}

// AdminRoles are the roles allowed to manage other users.
var AdminRoles = []domain.Role{domain.RoleSuperAdmin, domain.RoleAdmin}

// RequireRoles ensures the caller holds one of the allowed roles.
func RequireRoles(allowed ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, _ := UserFromContext(c)
		if err := Authorize(user, allowed...); err != nil {
			return gateError(err)
		}
		return c.Next()
	}
}

// RequireOwnerOrRoles admits the user whose id equals the route param, or any
// caller holding one of the allowed roles.
func RequireOwnerOrRoles(param string, allowed ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, _ := UserFromContext(c)
		if err := AuthorizeOwner(user, c.Params(param), allowed...); err != nil {
			return gateError(err)
		}
		return c.Next()
	}
}

func gateError(err error) error {
	if errors.Is(err, ErrUnauthenticated) {
		return apperrors.NewUnauthorized("Authentication required")
	}
	return apperrors.NewForbidden("Insufficient permissions")
}
