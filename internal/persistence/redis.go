package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/crm-admin/internal/config"
)

// Redis holds the client used by the Redis refresh token store together with
// the key prefix that namespaces this deployment.
type Redis struct {
	Client    *redis.Client
	KeyPrefix string
}

// NewRedis builds the client and pings it once. An unreachable server is
// logged, not fatal; readiness reports it.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	opts := redisOptions(cfg)
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.String("addr", opts.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis",
			zap.String("addr", opts.Addr),
			zap.Int("db", opts.DB),
			zap.String("key_prefix", cfg.KeyPrefix))
	}

	return &Redis{Client: client, KeyPrefix: cfg.KeyPrefix}
}

func redisOptions(cfg config.RedisConfig) *redis.Options {
	dialTimeout := 5 * time.Second
	if cfg.DialTimeoutSec > 0 {
		dialTimeout = time.Duration(cfg.DialTimeoutSec) * time.Second
	}
	return &redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: dialTimeout,
	}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}
