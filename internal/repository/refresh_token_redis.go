package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/crm-admin/internal/domain"
)

const reclaimBatchSize = 500

var _ RefreshTokenRepository = (*RedisRefreshTokenRepository)(nil)

// redisRefreshToken is the JSON value stored per token.
type redisRefreshToken struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// RedisRefreshTokenRepository implements RefreshTokenRepository on Redis.
//
// Layout under prefix:
//
//	refresh:<token>       JSON row
//	refresh:user:<userID> set of the user's tokens
//	refresh:expiry        sorted set of tokens scored by expiry (unix ms)
//
// Keys carry no TTL; expired rows are removed by DeleteExpired so that a
// late exchange still sees the row and can report it as expired.
type RedisRefreshTokenRepository struct {
	client redis.Cmdable
	prefix string
}

// NewRedisRefreshTokenRepository creates the store. Prefix may be empty.
func NewRedisRefreshTokenRepository(client redis.Cmdable, prefix string) *RedisRefreshTokenRepository {
	return &RedisRefreshTokenRepository{client: client, prefix: prefix}
}

func (r *RedisRefreshTokenRepository) tokenKey(token string) string {
	return r.prefix + "refresh:" + token
}

func (r *RedisRefreshTokenRepository) userKey(userID string) string {
	return r.prefix + "refresh:user:" + userID
}

func (r *RedisRefreshTokenRepository) expiryKey() string {
	return r.prefix + "refresh:expiry"
}

func (r *RedisRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	b, err := json.Marshal(redisRefreshToken{
		Token:     token.Token,
		UserID:    token.UserID,
		ExpiresAt: token.ExpiresAt.UTC(),
		CreatedAt: token.CreatedAt.UTC(),
	})
	if err != nil {
		return err
	}

	ok, err := r.client.SetNX(ctx, r.tokenKey(token.Token), b, 0).Result()
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	if !ok {
		return ErrConflict
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, r.userKey(token.UserID), token.Token)
		pipe.ZAdd(ctx, r.expiryKey(), redis.Z{
			Score:  expiryScore(token.ExpiresAt),
			Member: token.Token,
		})
		return nil
	})
	if err != nil {
		_ = r.client.Del(ctx, r.tokenKey(token.Token)).Err()
		return fmt.Errorf("index refresh token: %w", err)
	}
	return nil
}

func (r *RedisRefreshTokenRepository) GetByToken(ctx context.Context, tokenStr string) (*domain.RefreshToken, error) {
	b, err := r.client.Get(ctx, r.tokenKey(tokenStr)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load refresh token: %w", err)
	}
	var row redisRefreshToken
	if err := json.Unmarshal(b, &row); err != nil {
		return nil, fmt.Errorf("decode refresh token: %w", err)
	}
	return &domain.RefreshToken{
		Token:     row.Token,
		UserID:    row.UserID,
		ExpiresAt: row.ExpiresAt,
		CreatedAt: row.CreatedAt,
	}, nil
}

func (r *RedisRefreshTokenRepository) DeleteByToken(ctx context.Context, tokenStr string) (bool, error) {
	row, err := r.GetByToken(ctx, tokenStr)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	var del *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, r.tokenKey(tokenStr))
		pipe.SRem(ctx, r.userKey(row.UserID), tokenStr)
		pipe.ZRem(ctx, r.expiryKey(), tokenStr)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete refresh token: %w", err)
	}
	return del.Val() > 0, nil
}

func (r *RedisRefreshTokenRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	tokens, err := r.client.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("list user refresh tokens: %w", err)
	}
	if len(tokens) == 0 {
		return 0, nil
	}

	members := make([]interface{}, len(tokens))
	for i, token := range tokens {
		members[i] = token
	}

	dels := make([]*redis.IntCmd, 0, len(tokens))
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, token := range tokens {
			dels = append(dels, pipe.Del(ctx, r.tokenKey(token)))
		}
		// SREM rather than DEL keeps tokens added since SMEMBERS.
		pipe.SRem(ctx, r.userKey(userID), members...)
		pipe.ZRem(ctx, r.expiryKey(), members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete user refresh tokens: %w", err)
	}
	return sumDeleted(dels), nil
}

func (r *RedisRefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	maxScore := strconv.FormatInt(now.UnixMilli(), 10)
	for {
		tokens, err := r.client.ZRangeByScore(ctx, r.expiryKey(), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   maxScore,
			Count: reclaimBatchSize,
		}).Result()
		if err != nil {
			return total, fmt.Errorf("scan expired refresh tokens: %w", err)
		}
		if len(tokens) == 0 {
			return total, nil
		}

		deleted, err := r.deleteBatch(ctx, tokens)
		total += deleted
		if err != nil {
			return total, err
		}
	}
}

func (r *RedisRefreshTokenRepository) deleteBatch(ctx context.Context, tokens []string) (int64, error) {
	keys := make([]string, len(tokens))
	members := make([]interface{}, len(tokens))
	for i, token := range tokens {
		keys[i] = r.tokenKey(token)
		members[i] = token
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("load expired refresh tokens: %w", err)
	}
	owners := make(map[string][]interface{})
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var row redisRefreshToken
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			continue
		}
		owners[row.UserID] = append(owners[row.UserID], tokens[i])
	}

	dels := make([]*redis.IntCmd, 0, len(keys))
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			dels = append(dels, pipe.Del(ctx, key))
		}
		for userID, owned := range owners {
			pipe.SRem(ctx, r.userKey(userID), owned...)
		}
		pipe.ZRem(ctx, r.expiryKey(), members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return sumDeleted(dels), nil
}

// expiryScore rounds up to the next millisecond, so a score at or below the
// current millisecond always belongs to an expired token.
func expiryScore(t time.Time) float64 {
	ms := t.UnixMilli()
	if t.After(time.UnixMilli(ms)) {
		ms++
	}
	return float64(ms)
}

func sumDeleted(cmds []*redis.IntCmd) int64 {
	var n int64
	for _, cmd := range cmds {
		n += cmd.Val()
	}
	return n
}
