package port

import (
	"context"
	"time"

	"rpc-failover/internal/domain/entity"
)

// RequestOptions carries per-call overrides for Request. Zero values fall back
// to the chain settings and then the manager defaults.
type RequestOptions struct {
	Timeout       time.Duration
	RetryAttempts int
}

// FailoverService is the primary interface of the RPC health and failover
// manager: it delivers JSON-RPC payloads to one of a chain's configured
// endpoints with retry, backoff and automatic failover, and continuously
// refines per-endpoint health state.
type FailoverService interface {
	// InitializeChain resolves and seeds the chain's endpoint health records.
	// Idempotent: subsequent calls for the same chain are no-ops.
	InitializeChain(ctx context.Context, chainID int64) error

	// Request delivers the payload to the first endpoint that answers
	// successfully, trying alternates in fallback order.
	Request(ctx context.Context, chainID int64, payload []byte) ([]byte, error)

	// RequestWithOptions is Request with per-call timeout/retry overrides.
	RequestWithOptions(ctx context.Context, chainID int64, payload []byte, opts RequestOptions) ([]byte, error)

	// GetHealthyEndpoints returns healthy, not rate-limited endpoints ordered
	// by descending observed success rate; endpoints with no recorded traffic
	// rank last.
	GetHealthyEndpoints(chainID int64) []entity.RPCURL

	// GetFallbackOrder returns the healthy set followed by all remaining
	// configured endpoints in their original order.
	GetFallbackOrder(chainID int64) []entity.RPCURL

	// GetBestEndpoint returns the top healthy endpoint, else the first
	// configured one. The second return is false when the chain has none.
	GetBestEndpoint(chainID int64) (entity.RPCURL, bool)

	// GetHealthSnapshot returns a read-only diagnostic view keyed by URL.
	GetHealthSnapshot(chainID int64) map[string]entity.EndpointSnapshot

	// GetStatistics aggregates health counters across the chain's endpoints.
	GetStatistics(chainID int64) entity.ChainStatistics

	// UpdateHealth records one success or failure observation for an endpoint.
	// Silently ignores chains or endpoints that were never initialized.
	UpdateHealth(chainID int64, url entity.RPCURL, success bool, responseTimeMs *int64)

	// IsRateLimited reports whether the endpoint is in rate-limit cooldown.
	IsRateLimited(url entity.RPCURL) bool

	// MarkRateLimited puts the endpoint into cooldown, globally across chains.
	MarkRateLimited(url entity.RPCURL)

	// ComputeBackoffDelay returns the exponential backoff delay for the given
	// zero-indexed attempt, using the chain's retry delay when configured.
	ComputeBackoffDelay(chainID int64, attempt int) time.Duration

	// ResetChain restores every endpoint of the chain to the Unknown state.
	// The global rate-limit table is left untouched.
	ResetChain(chainID int64)

	// Start launches the periodic background health sweep. Stop halts it and
	// waits for the in-flight sweep to finish.
	Start(ctx context.Context)
	Stop()
}
