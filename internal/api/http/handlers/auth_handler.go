package handlers

import (
	"context"
	"net/mail"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/crm-admin/internal/api/dto"
	"github.com/spec-kit/crm-admin/internal/auth"
	"github.com/spec-kit/crm-admin/internal/service"
	apperrors "github.com/spec-kit/crm-admin/pkg/util/errorutil"
)

const maxPasswordLength = 72

// SessionManager is the part of the auth service the HTTP layer drives.
type SessionManager interface {
	Register(ctx context.Context, in service.RegisterInput) (*service.Session, error)
	Login(ctx context.Context, in service.LoginInput) (*service.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*service.RefreshResult, error)
	Logout(ctx context.Context, userID, refreshToken string, meta service.ClientMeta) (int64, error)
	LogoutAll(ctx context.Context, userID string, meta service.ClientMeta) (int64, error)
}

// AuthHandler exposes session endpoints.
type AuthHandler struct {
	sessions SessionManager
}

// NewAuthHandler constructs handler.
func NewAuthHandler(sessions SessionManager) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.CompanyID != nil && strings.TrimSpace(*req.CompanyID) == "" {
		req.CompanyID = nil
	}
	if problems := validateRegister(req); len(problems) > 0 {
		return apperrors.NewValidationError("invalid registration", problems)
	}

	session, err := h.sessions.Register(c.UserContext(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		CompanyID: req.CompanyID,
		Meta:      clientMeta(c),
	})
	if err != nil {
		return serviceError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(sessionResponse(session))
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	session, err := h.sessions.Login(c.UserContext(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Meta:     clientMeta(c),
	})
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(sessionResponse(session))
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.RefreshToken == "" {
		return apperrors.NewValidationError("refreshToken required", nil)
	}

	result, err := h.sessions.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(dto.RefreshResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    result.ExpiresIn,
	})
}

// Logout handles POST /api/auth/logout. Without a refreshToken in the body
// every session of the caller ends.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("Authentication required")
	}
	var req dto.LogoutRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}

	if _, err := h.sessions.Logout(c.UserContext(), user.ID, req.RefreshToken, clientMeta(c)); err != nil {
		return serviceError(err)
	}
	return c.JSON(dto.MessageResponse{Message: "Logged out successfully"})
}

// LogoutAll handles POST /api/auth/logout-all.
func (h *AuthHandler) LogoutAll(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("Authentication required")
	}
	if _, err := h.sessions.LogoutAll(c.UserContext(), user.ID, clientMeta(c)); err != nil {
		return serviceError(err)
	}
	return c.JSON(dto.MessageResponse{Message: "Logged out from all devices"})
}

// Verify handles GET /api/auth/verify.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewInvalidToken()
	}
	return c.JSON(dto.VerifyResponse{User: dto.NewUserResponse(user), Valid: true})
}

func sessionResponse(s *service.Session) dto.SessionResponse {
	return dto.SessionResponse{
		User:         dto.NewUserResponse(s.User),
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresIn:    s.ExpiresIn,
	}
}

func validateRegister(req dto.RegisterRequest) map[string]any {
	problems := map[string]any{}
	// ParseAddress also accepts display names and comments; only a bare
	// address is stored.
	if addr, err := mail.ParseAddress(req.Email); err != nil || addr.Address != req.Email {
		problems["email"] = "valid email required"
	}
	switch {
	case req.Password == "":
		problems["password"] = "password required"
	case len(req.Password) > maxPasswordLength:
		problems["password"] = "password too long"
	}
	if strings.TrimSpace(req.FirstName) == "" {
		problems["firstName"] = "firstName required"
	}
	if strings.TrimSpace(req.LastName) == "" {
		problems["lastName"] = "lastName required"
	}
	if req.CompanyID != nil {
		if _, err := uuid.Parse(*req.CompanyID); err != nil {
			problems["companyId"] = "companyId must be a UUID"
		}
	}
	return problems
}

func clientMeta(c *fiber.Ctx) service.ClientMeta {
	return service.ClientMeta{
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}
}
