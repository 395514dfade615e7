package memory

import (
	"time"

	"rpc-failover/internal/config"
	"rpc-failover/internal/domain/entity"
	domainRepo "rpc-failover/internal/domain/repository"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Compile-time check
var _ domainRepo.RateLimitRepository = (*RateLimitRepository)(nil)

// RateLimitRepository implements the global rate-limit cooldown table on top
// of go-cache. Each entry carries its own TTL equal to the remaining cooldown,
// so a lookup past the expiry reports "not limited" without any bookkeeping of
// our own; the cleanup interval reclaims the memory.
type RateLimitRepository struct {
	cache  *cache.Cache
	logger *zap.Logger
}

// NewRateLimitRepository creates a new in-memory rate-limit table.
func NewRateLimitRepository(cfg config.CacheConfig, logger *zap.Logger) domainRepo.RateLimitRepository {
	cleanupInterval := cfg.GetCleanupInterval()

	c := cache.New(cache.NoExpiration, cleanupInterval)
	logger.Info("Initialized go-cache for rate-limit table",
		zap.Duration("cleanupInterval", cleanupInterval))

	return &RateLimitRepository{
		cache:  c,
		logger: logger.Named("RateLimitTable"),
	}
}

// MarkLimited records the cooldown expiry for the endpoint. Expiries in the
// past are ignored.
func (r *RateLimitRepository) MarkLimited(url entity.RPCURL, until time.Time) {
	ttl := time.Until(until)
	if ttl <= 0 {
		return
	}
	r.cache.Set(url.String(), until, ttl)
	r.logger.Debug("Rate-limit cooldown set",
		zap.String("url", url.String()),
		zap.Time("until", until))
}

// IsLimited reports whether the endpoint is currently in cooldown.
func (r *RateLimitRepository) IsLimited(url entity.RPCURL) bool {
	_, found := r.cache.Get(url.String())
	return found
}

// LimitedUntil returns the cooldown expiry for the endpoint, if any.
func (r *RateLimitRepository) LimitedUntil(url entity.RPCURL) (time.Time, bool) {
	x, found := r.cache.Get(url.String())
	if !found {
		return time.Time{}, false
	}
	until, ok := x.(time.Time)
	if !ok {
		r.logger.Warn("Rate-limit table data type mismatch",
			zap.String("url", url.String()))
		return time.Time{}, false
	}
	return until, true
}
