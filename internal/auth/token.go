package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL is used when no positive TTL is configured.
const DefaultAccessTokenTTL = 15 * time.Minute

// TokenManager handles issuing and validating access tokens. The signing secret
// is fixed for the lifetime of the manager.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// Claims describes the access token payload. The registered exp claim is a
// JSON number and cannot hold nanoseconds at current epoch values, so the exact
// expiry travels alongside it in ExpiresAtNano.
type Claims struct {
	UserID        string `json:"userId"`
	ExpiresAtNano int64  `json:"expNano,omitempty"`
	jwt.RegisteredClaims
}

// Expiry returns the instant after which the token is rejected.
func (c *Claims) Expiry() (time.Time, bool) {
	if c.ExpiresAtNano != 0 {
		return time.Unix(0, c.ExpiresAtNano).UTC(), true
	}
	if c.ExpiresAt == nil {
		return time.Time{}, false
	}
	return c.ExpiresAt.Time, true
}

// TTL returns the access token lifetime.
func (tm *TokenManager) TTL() time.Duration {
	return tm.ttl
}

// Encode builds and signs an access token for userID that stays valid up to
// and including now+TTL.
func (tm *TokenManager) Encode(userID string, now time.Time) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("empty user id")
	}
	expiresAt := now.Add(tm.ttl)
	claims := &Claims{
		UserID:        userID,
		ExpiresAtNano: expiresAt.UnixNano(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return tokenString, expiresAt, nil
}

// Decode validates the signature and expiry of tokenStr at now. Every failure
// is reported as ErrInvalidToken; the cause is kept for logging.
func (tm *TokenManager) Decode(tokenStr string, now time.Time) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	expiresAt, ok := claims.Expiry()
	if !ok {
		return nil, fmt.Errorf("%w: missing expiry", ErrInvalidToken)
	}
	if now.After(expiresAt) {
		return nil, fmt.Errorf("%w: expired", ErrInvalidToken)
	}
	return claims, nil
}
