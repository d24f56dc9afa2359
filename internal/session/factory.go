package session

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/healthqa/internal/config"
	"go.uber.org/zap"
)

// NewStore builds the configured backend.
func NewStore(ctx context.Context, cfg config.SessionConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(cfg.TTL.Duration(), cfg.MaxSessions), nil
	case "redis":
		store, err := NewRedisStore(ctx, RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password.Value(),
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.TTL.Duration(),
		}, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}
