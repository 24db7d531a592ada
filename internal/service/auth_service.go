package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/crm-admin/internal/auth"
	"github.com/spec-kit/crm-admin/internal/config"
	"github.com/spec-kit/crm-admin/internal/domain"
	"github.com/spec-kit/crm-admin/internal/events"
	"github.com/spec-kit/crm-admin/internal/observability"
	"github.com/spec-kit/crm-admin/internal/repository"
)

var (
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when registering an email that is taken.
	ErrUserExists = errors.New("user already exists")
	// ErrUnknownRefreshToken is returned for refresh tokens the store does not hold.
	ErrUnknownRefreshToken = errors.New("invalid refresh token")
	// ErrExpiredRefreshToken is returned for a stored token past its expiry.
	ErrExpiredRefreshToken = errors.New("refresh token expired")
	// ErrUnknownCompany is returned when registering into a missing company.
	ErrUnknownCompany = errors.New("unknown company")
	// ErrTokenConflict reports a generated refresh token colliding with a
	// stored one. Callers may retry.
	ErrTokenConflict = errors.New("refresh token collision")
)

// ClientMeta describes the caller for the audit trail.
type ClientMeta struct {
	IP        string
	UserAgent string
	// ActorID is set when an operator acts on another user's sessions.
	ActorID string
}

// LoginInput carries login credentials.
type LoginInput struct {
	Email    string
	Password string
	Meta     ClientMeta
}

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	CompanyID *string
	Meta      ClientMeta
}

// Session is the result of a successful login or registration.
type Session struct {
	User             *domain.User
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64
}

// RefreshResult is returned by Refresh. RefreshToken is only set when
// rotation is enabled.
type RefreshResult struct {
	UserID           string
	AccessToken      string
	AccessExpiresAt  time.Time
	ExpiresIn        int64
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// AuthService issues, refreshes and revokes sessions.
type AuthService struct {
	users         repository.UserRepository
	refreshTokens repository.RefreshTokenRepository
	dispatcher    events.Dispatcher
	logger        *zap.Logger
	metrics       *observability.Metrics
	tokenMgr      *auth.TokenManager
	credentials   *auth.CredentialVerifier
	verifier      *auth.Verifier
	bcryptCost    int
	refreshTTL    time.Duration
	rotate        bool
	now           func() time.Time
}

// AuthDependencies encapsulates collaborators of the auth service.
type AuthDependencies struct {
	UserRepo         repository.UserRepository
	RefreshTokenRepo repository.RefreshTokenRepository
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
	Metrics          *observability.Metrics
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tokenMgr := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL())
	refreshTTL := cfg.Auth.RefreshTokenTTL()
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &AuthService{
		users:         deps.UserRepo,
		refreshTokens: deps.RefreshTokenRepo,
		dispatcher:    deps.Dispatcher,
		logger:        logger,
		metrics:       deps.Metrics,
		tokenMgr:      tokenMgr,
		credentials:   auth.NewCredentialVerifier(cfg.Auth.BcryptCost),
		verifier:      auth.NewVerifier(tokenMgr, deps.UserRepo, now),
		bcryptCost:    cfg.Auth.BcryptCost,
		refreshTTL:    refreshTTL,
		rotate:        cfg.Auth.RotateRefreshTokens,
		now:           now,
	}
}

// Verifier exposes the access token verifier sharing this service's secret.
func (s *AuthService) Verifier() *auth.Verifier {
	return s.verifier
}

// Authenticate checks credentials. An unknown email still pays for a hash
// comparison and yields the same error as a wrong password.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.credentials.VerifyMissing(password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user by email: %w", err)
	}
	if !s.credentials.Verify(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and opens a new session.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	user, err := s.Authenticate(ctx, in.Email, in.Password)
	if err != nil {
		s.metrics.RecordAuth("login", outcome(err))
		return nil, err
	}
	session, err := s.issue(ctx, user)
	if err != nil {
		s.metrics.RecordAuth("login", outcome(err))
		return nil, err
	}
	s.metrics.RecordAuth("login", "success")
	s.publish(ctx, events.EventUserLoggedIn, user.ID, in.Meta, nil)
	return session, nil
}

// Register creates an account with the default role and opens a session.
// An existing email is rejected before any hashing or token work.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		s.metrics.RecordAuth("register", "user_exists")
		return nil, ErrUserExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		s.metrics.RecordAuth("register", "error")
		return nil, fmt.Errorf("load user by email: %w", err)
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		s.metrics.RecordAuth("register", "error")
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Email:        in.Email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		CompanyID:    in.CompanyID,
		Role:         domain.DefaultRole,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// Lost a race with a concurrent registration of the same email.
		if errors.Is(err, repository.ErrConflict) {
			s.metrics.RecordAuth("register", "user_exists")
			return nil, ErrUserExists
		}
		if errors.Is(err, repository.ErrInvalidReference) {
			s.metrics.RecordAuth("register", "unknown_company")
			return nil, ErrUnknownCompany
		}
		s.metrics.RecordAuth("register", "error")
		return nil, fmt.Errorf("create user: %w", err)
	}

	session, err := s.issue(ctx, user)
	if err != nil {
		s.metrics.RecordAuth("register", "error")
		return nil, err
	}
	s.metrics.RecordAuth("register", "success")
	s.publish(ctx, events.EventUserRegistered, user.ID, in.Meta, nil)
	return session, nil
}

// Refresh exchanges a refresh token for a new access token. An expired token
// is deleted on sight. With rotation enabled the presented token is consumed
// and a new one returned; a concurrent second use of it fails.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	result, err := s.refresh(ctx, refreshToken)
	s.metrics.RecordAuth("refresh", outcome(err))
	return result, err
}

func (s *AuthService) refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if refreshToken == "" {
		return nil, ErrUnknownRefreshToken
	}
	stored, err := s.refreshTokens.GetByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnknownRefreshToken
		}
		return nil, fmt.Errorf("load refresh token: %w", err)
	}

	now := s.now()
	if stored.Expired(now) {
		if _, err := s.refreshTokens.DeleteByToken(ctx, refreshToken); err != nil {
			s.logger.Warn("delete expired refresh token", zap.String("user_id", stored.UserID), zap.Error(err))
		}
		return nil, ErrExpiredRefreshToken
	}

	result := &RefreshResult{UserID: stored.UserID}
	if s.rotate {
		deleted, err := s.refreshTokens.DeleteByToken(ctx, refreshToken)
		if err != nil {
			return nil, fmt.Errorf("consume refresh token: %w", err)
		}
		if !deleted {
			return nil, ErrUnknownRefreshToken
		}
		next, err := s.createRefreshToken(ctx, stored.UserID, now)
		if err != nil {
			return nil, err
		}
		result.RefreshToken = next.Token
		result.RefreshExpiresAt = next.ExpiresAt
	}

	access, accessExp, err := s.tokenMgr.Encode(stored.UserID, now)
	if err != nil {
		return nil, err
	}
	result.AccessToken = access
	result.AccessExpiresAt = accessExp
	result.ExpiresIn = int64(s.tokenMgr.TTL().Seconds())
	return result, nil
}

// Logout ends the session identified by refreshToken, or every session of
// userID when refreshToken is empty. Unknown tokens and tokens owned by
// another user are ignored. Access tokens already issued stay valid until
// they expire.
func (s *AuthService) Logout(ctx context.Context, userID, refreshToken string, meta ClientMeta) (int64, error) {
	if refreshToken == "" {
		return s.revokeAll(ctx, "logout", events.EventUserLoggedOut, userID, meta)
	}

	var revoked int64
	stored, err := s.refreshTokens.GetByToken(ctx, refreshToken)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		s.metrics.RecordAuth("logout", "error")
		return 0, fmt.Errorf("load refresh token: %w", err)
	case stored.UserID != userID:
		s.logger.Warn("logout with foreign refresh token ignored",
			zap.String("user_id", userID), zap.String("owner_id", stored.UserID))
	default:
		deleted, err := s.refreshTokens.DeleteByToken(ctx, refreshToken)
		if err != nil {
			s.metrics.RecordAuth("logout", "error")
			return 0, fmt.Errorf("delete refresh token: %w", err)
		}
		if deleted {
			revoked = 1
		}
	}

	s.metrics.RecordAuth("logout", "success")
	s.publish(ctx, events.EventUserLoggedOut, userID, meta, events.LogoutPayload{SingleSession: true, Revoked: revoked})
	return revoked, nil
}

// LogoutAll ends every session of userID.
func (s *AuthService) LogoutAll(ctx context.Context, userID string, meta ClientMeta) (int64, error) {
	return s.revokeAll(ctx, "logout_all", events.EventUserLoggedOutAll, userID, meta)
}

func (s *AuthService) revokeAll(ctx context.Context, op string, eventType events.EventType, userID string, meta ClientMeta) (int64, error) {
	revoked, err := s.refreshTokens.DeleteByUser(ctx, userID)
	if err != nil {
		s.metrics.RecordAuth(op, "error")
		return 0, fmt.Errorf("delete user refresh tokens: %w", err)
	}
	s.metrics.RecordAuth(op, "success")
	s.publish(ctx, eventType, userID, meta, events.LogoutPayload{Revoked: revoked})
	return revoked, nil
}

func (s *AuthService) issue(ctx context.Context, user *domain.User) (*Session, error) {
	now := s.now()
	access, accessExp, err := s.tokenMgr.Encode(user.ID, now)
	if err != nil {
		return nil, err
	}
	refresh, err := s.createRefreshToken(ctx, user.ID, now)
	if err != nil {
		return nil, err
	}
	return &Session{
		User:             user.Sanitized(),
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh.Token,
		RefreshExpiresAt: refresh.ExpiresAt,
		ExpiresIn:        int64(s.tokenMgr.TTL().Seconds()),
	}, nil
}

func (s *AuthService) createRefreshToken(ctx context.Context, userID string, now time.Time) (*domain.RefreshToken, error) {
	value, err := auth.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	token := &domain.RefreshToken{
		Token:     value,
		UserID:    userID,
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}
	if err := s.refreshTokens.Create(ctx, token); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrTokenConflict
		}
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return token, nil
}

// publish emits an audit event. Failures never affect the caller.
func (s *AuthService) publish(ctx context.Context, eventType events.EventType, userID string, meta ClientMeta, payload any) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    userID,
		ActorID:   meta.ActorID,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Timestamp: s.now(),
		Payload:   payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish audit event",
			zap.String("event_type", string(eventType)),
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrUserExists):
		return "user_exists"
	case errors.Is(err, ErrUnknownRefreshToken):
		return "invalid_refresh_token"
	case errors.Is(err, ErrExpiredRefreshToken):
		return "expired_refresh_token"
	default:
		return "error"
	}
}
