package cache

import (
	"go.uber.org/zap"

	"github.com/erp/receivables/internal/domain/shared"
)

// NewIdempotencyStore returns a Redis-backed store when Redis is reachable,
// falling back to the in-memory store otherwise. The fallback keeps a single
// instance functional without Redis but does not survive restarts.
func NewIdempotencyStore(cfg RedisConfig, logger *zap.Logger) shared.IdempotencyStore {
	store, err := NewRedisIdempotencyStore(cfg)
	if err != nil {
		logger.Warn("redis unavailable, using in-memory idempotency store",
			zap.String("addr", cfg.Addr),
			zap.Error(err),
		)
		return NewInMemoryIdempotencyStore()
	}

	logger.Info("using redis idempotency store", zap.String("addr", cfg.Addr))
	return store
}
