package entity

import "time"

// Protocol defines the type for RPC protocols.
type Protocol string

// Constants for known protocols.
const (
	ProtocolHTTP    Protocol = "http"
	ProtocolHTTPS   Protocol = "https"
	ProtocolWS      Protocol = "ws"
	ProtocolWSS     Protocol = "wss"
	ProtocolUnknown Protocol = "unknown"
)

// HealthStatus classifies the observed reliability of an endpoint.
type HealthStatus string

// Constants for endpoint health states.
const (
	StatusUnknown     HealthStatus = "unknown"
	StatusHealthy     HealthStatus = "healthy"
	StatusUnhealthy   HealthStatus = "unhealthy"
	StatusRateLimited HealthStatus = "rate_limited"
)

// FailureThreshold is the number of accumulated failures after which an
// endpoint is considered unhealthy.
const FailureThreshold = 3

// EndpointHealth is the mutable reliability record tracked per (chain, endpoint).
type EndpointHealth struct {
	URL              RPCURL
	Status           HealthStatus
	LastCheckedAt    *time.Time
	SuccessCount     int64
	FailureCount     int64
	LastSuccessAt    *time.Time
	RateLimitedUntil *time.Time
	ResponseTimeMs   *int64
}

// NewEndpointHealth creates a fresh record in the Unknown state.
func NewEndpointHealth(url RPCURL) *EndpointHealth {
	return &EndpointHealth{
		URL:    url,
		Status: StatusUnknown,
	}
}

// RecordSuccess applies a successful observation: the endpoint becomes healthy,
// the failure count is forgiven by one (floor zero), and the latency sample is
// stored when provided.
func (h *EndpointHealth) RecordSuccess(now time.Time, responseTimeMs *int64) {
	h.Status = StatusHealthy
	h.SuccessCount++
	h.LastSuccessAt = &now
	if h.FailureCount > 0 {
		h.FailureCount--
	}
	if responseTimeMs != nil {
		h.ResponseTimeMs = responseTimeMs
	}
	h.LastCheckedAt = &now
}

// RecordFailure applies a failed observation. The status only flips to
// unhealthy once the failure count reaches FailureThreshold; below that the
// prior status is kept.
func (h *EndpointHealth) RecordFailure(now time.Time) {
	h.FailureCount++
	if h.FailureCount >= FailureThreshold {
		h.Status = StatusUnhealthy
	}
	h.LastCheckedAt = &now
}

// MarkRateLimited forces the record into the rate-limited state until the
// given expiry.
func (h *EndpointHealth) MarkRateLimited(until time.Time) {
	h.Status = StatusRateLimited
	h.RateLimitedUntil = &until
}

// TotalRequests returns the number of recorded observations.
func (h *EndpointHealth) TotalRequests() int64 {
	return h.SuccessCount + h.FailureCount
}

// SuccessRate returns successes over total observations, 0 when there is no
// recorded traffic.
func (h *EndpointHealth) SuccessRate() float64 {
	total := h.TotalRequests()
	if total == 0 {
		return 0
	}
	return float64(h.SuccessCount) / float64(total)
}

// EndpointSnapshot is the read-only diagnostic view of one endpoint's health.
type EndpointSnapshot struct {
	URL            string       `json:"url"`
	Status         HealthStatus `json:"status"`
	LastCheckedAt  *time.Time   `json:"lastCheckedAt,omitempty"`
	SuccessCount   int64        `json:"successCount"`
	FailureCount   int64        `json:"failureCount"`
	SuccessRate    float64      `json:"successRate"`
	ResponseTimeMs *int64       `json:"responseTimeMs,omitempty"`
	IsRateLimited  bool         `json:"isRateLimited"`
}

// ChainStatistics aggregates health across all endpoints of a chain.
type ChainStatistics struct {
	TotalEndpoints     int     `json:"totalEndpoints"`
	HealthyCount       int     `json:"healthyCount"`
	RateLimitedCount   int     `json:"rateLimitedCount"`
	UnhealthyCount     int     `json:"unhealthyCount"`
	TotalRequests      int64   `json:"totalRequests"`
	TotalSuccesses     int64   `json:"totalSuccesses"`
	OverallSuccessRate float64 `json:"overallSuccessRate"`
}

// TimeoutSettings carries per-chain request overrides. Zero values mean "use
// the manager default".
type TimeoutSettings struct {
	RPCTimeout    time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}
