package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/crm-admin/internal/domain"
	"github.com/spec-kit/crm-admin/internal/repository"
)

// UserLookup resolves a token subject to the current user record.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// Verifier turns a bearer access token into the current user.
type Verifier struct {
	tokens *TokenManager
	users  UserLookup
	now    func() time.Time
}

// NewVerifier constructs a verifier. A nil clock defaults to time.Now.
func NewVerifier(tokens *TokenManager, users UserLookup, now func() time.Time) *Verifier {
	if now == nil {
		now = time.Now
	}
	return &Verifier{tokens: tokens, users: users, now: now}
}

// Authorize decodes token and loads its subject. Only the identity is taken
// from the token; everything else comes from the user store. The returned user
// has no password hash.
func (v *Verifier) Authorize(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	claims, err := v.tokens.Decode(token, v.now())
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, fmt.Errorf("%w: malformed subject", ErrInvalidToken)
	}
	user, err := v.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: subject no longer exists", ErrInvalidToken)
		}
		return nil, fmt.Errorf("load token subject: %w", err)
	}
	return user.Sanitized(), nil
}
