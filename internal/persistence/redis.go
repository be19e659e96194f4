package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/local-scope/localscope/internal/config"
)

// Redis holds refresh tokens and revoked session ids on the server, and the
// persisted session of the command line client.
type Redis struct {
	Client *redis.Client
}

// NewRedis builds a client without touching the network.
func NewRedis(cfg config.RedisConfig) *Redis {
	return &Redis{Client: redis.NewClient(redisOptions(cfg))}
}

// ConnectRedis builds a client and fails unless Redis answers a ping within ctx.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*Redis, error) {
	r := NewRedis(cfg)
	if err := r.Ping(ctx); err != nil {
		r.Close()
		return nil, fmt.Errorf("redis at %s: %w", cfg.Addr, err)
	}
	logger.Debug("connected to redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return r, nil
}

func redisOptions(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
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
