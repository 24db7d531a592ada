package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spec-kit/crm-admin/internal/domain"
)

// RefreshTokenRepository persists opaque refresh tokens. It is the single
// source of truth for refresh sessions; callers never cache rows.
type RefreshTokenRepository interface {
	// Create stores a new token. A duplicate token value yields ErrConflict.
	Create(ctx context.Context, token *domain.RefreshToken) error

	// GetByToken returns the row for token or ErrNotFound.
	GetByToken(ctx context.Context, token string) (*domain.RefreshToken, error)

	// DeleteByToken removes token. Deleting a missing token is not an error;
	// the boolean reports whether a row was removed.
	DeleteByToken(ctx context.Context, token string) (bool, error)

	// DeleteByUser removes every token owned by userID.
	DeleteByUser(ctx context.Context, userID string) (int64, error)

	// DeleteExpired removes every token whose expiry is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type refreshTokenRepository struct {
	db DBTX
}

// NewRefreshTokenRepository returns a Postgres-backed implementation.
func NewRefreshTokenRepository(db DBTX) RefreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

func (r *refreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	const query = `
        INSERT INTO refresh_tokens (token, user_id, expires_at, created_at)
        VALUES ($1, $2, $3, $4)`

	if _, err := r.db.Exec(ctx, query,
		token.Token,
		token.UserID,
		token.ExpiresAt,
		token.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (r *refreshTokenRepository) GetByToken(ctx context.Context, tokenStr string) (*domain.RefreshToken, error) {
	const query = `
        SELECT token, user_id, expires_at, created_at
        FROM refresh_tokens WHERE token=$1`

	var token domain.RefreshToken
	if err := r.db.QueryRow(ctx, query, tokenStr).Scan(
		&token.Token,
		&token.UserID,
		&token.ExpiresAt,
		&token.CreatedAt,
	); err != nil {
		if err = mapNoRows(err); errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("select refresh token: %w", err)
	}
	return &token, nil
}

func (r *refreshTokenRepository) DeleteByToken(ctx context.Context, tokenStr string) (bool, error) {
	const query = `DELETE FROM refresh_tokens WHERE token=$1`

	cmd, err := r.db.Exec(ctx, query, tokenStr)
	if err != nil {
		return false, fmt.Errorf("delete refresh token: %w", err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *refreshTokenRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE user_id=$1`

	cmd, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user refresh tokens: %w", err)
	}
	return cmd.RowsAffected(), nil
}

func (r *refreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at <= $1`

	cmd, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return cmd.RowsAffected(), nil
}
