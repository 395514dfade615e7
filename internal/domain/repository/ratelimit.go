package repository

import (
	"time"

	"rpc-failover/internal/domain/entity"
)

// RateLimitRepository is the global rate-limit cooldown table, keyed by
// endpoint URL only (not per chain): an endpoint shared across chains is
// rate-limited everywhere simultaneously. Entries expire lazily — a lookup
// past the expiry removes the entry and reports "not limited".
type RateLimitRepository interface {
	// MarkLimited records that the endpoint is rate limited until the given time.
	MarkLimited(url entity.RPCURL, until time.Time)

	// IsLimited reports whether the endpoint is currently in cooldown.
	IsLimited(url entity.RPCURL) bool

	// LimitedUntil returns the cooldown expiry for the endpoint, if any.
	LimitedUntil(url entity.RPCURL) (time.Time, bool)
}
