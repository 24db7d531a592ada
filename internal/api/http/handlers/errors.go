package handlers

import (
	"errors"

	"github.com/spec-kit/crm-admin/internal/repository"
	"github.com/spec-kit/crm-admin/internal/service"
	apperrors "github.com/spec-kit/crm-admin/pkg/util/errorutil"
)

// serviceError translates service and repository errors into API errors.
// Anything unrecognized is an internal error; its cause is logged, never sent.
func serviceError(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return apperrors.NewInvalidCredentials()
	case errors.Is(err, service.ErrUserExists):
		return apperrors.NewUserExists()
	case errors.Is(err, service.ErrUnknownCompany):
		return apperrors.NewValidationError("invalid registration", map[string]any{"companyId": "unknown company"})
	case errors.Is(err, service.ErrUnknownRefreshToken):
		return apperrors.NewInvalidRefreshToken("Invalid refresh token")
	case errors.Is(err, service.ErrExpiredRefreshToken):
		return apperrors.NewInvalidRefreshToken("Refresh token expired")
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("user", nil)
	default:
		return apperrors.NewInternalError(err)
	}
}
