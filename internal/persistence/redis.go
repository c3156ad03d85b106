package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/repairdesk/repairdesk/internal/config"
)

const redisPingTimeout = 3 * time.Second

// Redis holds the client used for webhook redelivery guards.
type Redis struct {
	Client *redis.Client
}

// NewRedis builds the client and checks connectivity once. An unreachable
// server is logged, not fatal: the webhook guard lets events through while
// Redis is down.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		ClientName: cfg.ClientName,
	})

	r := &Redis{Client: client}
	if err := r.Ping(ctx); err != nil {
		logger.Warn("redis unreachable; webhook redelivery guard degraded", zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	}
	return r
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity within a short deadline.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	return r.Client.Ping(ctx).Err()
}
