package cache

import (
	"go.uber.org/zap"

	"github.com/hms/backend/internal/domain/shared"
	"github.com/hms/backend/internal/infrastructure/config"
)

// NewIdempotencyStore creates the idempotency store appropriate for the
// configuration: Redis when enabled and reachable, otherwise in-memory.
// A Redis connection failure falls back to the in-memory store with a
// warning rather than refusing to start.
func NewIdempotencyStore(cfg config.RedisConfig, logger *zap.Logger) shared.IdempotencyStore {
	if !cfg.Enabled {
		logger.Info("using in-memory idempotency store")
		return NewInMemoryIdempotencyStore()
	}

	store, err := NewRedisIdempotencyStore(cfg)
	if err != nil {
		logger.Warn("redis unavailable, falling back to in-memory idempotency store",
			zap.String("addr", cfg.RedisAddr()),
			zap.Error(err),
		)
		return NewInMemoryIdempotencyStore()
	}

	logger.Info("using redis idempotency store", zap.String("addr", cfg.RedisAddr()))
	return store
}
