package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"rpc-failover/internal/application/port"
	"rpc-failover/internal/config"
	"rpc-failover/internal/domain"
	"rpc-failover/internal/domain/entity"
	domainRepo "rpc-failover/internal/domain/repository"
	domainService "rpc-failover/internal/domain/service"
	"rpc-failover/internal/pkg/apperrors"

	"go.uber.org/zap"
)

// Compile-time check to ensure failoverService implements FailoverService
var _ port.FailoverService = (*failoverService)(nil)

const defaultRateLimitCooldown = 5 * time.Minute

// chainState holds everything the manager tracks for one chain: the configured
// endpoint order, the per-endpoint health records, and the cached fallback
// order (re-derived after every health update).
type chainState struct {
	urls     []entity.RPCURL
	health   map[entity.RPCURL]*entity.EndpointHealth
	fallback []entity.RPCURL
}

// failoverService implements the port.FailoverService interface. It is the
// sole writer of the health-record store and the rate-limit table; all
// mutations go through UpdateHealth and MarkRateLimited.
type failoverService struct {
	chainCfg   domainRepo.ChainConfigProvider
	rateLimits domainRepo.RateLimitRepository
	transport  domainService.RPCTransport
	logger     *zap.Logger
	cfg        config.RPCConfig

	mu     sync.RWMutex
	chains map[int64]*chainState

	sweepMu     sync.Mutex
	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

// NewFailoverService creates the failover manager. The background health
// sweep does not auto-start; call Start explicitly.
func NewFailoverService(
	chainCfg domainRepo.ChainConfigProvider,
	rateLimits domainRepo.RateLimitRepository,
	transport domainService.RPCTransport,
	logger *zap.Logger,
	cfg config.RPCConfig,
) port.FailoverService {
	return &failoverService{
		chainCfg:   chainCfg,
		rateLimits: rateLimits,
		transport:  transport,
		logger:     logger.Named("FailoverService"),
		cfg:        cfg,
		chains:     make(map[int64]*chainState),
	}
}

// InitializeChain fetches the candidate endpoint list for the chain on first
// call and seeds Unknown health records in provider order.
func (s *failoverService) InitializeChain(ctx context.Context, chainID int64) error {
	s.mu.RLock()
	_, exists := s.chains[chainID]
	s.mu.RUnlock()
	if exists {
		return nil
	}

	urls, err := s.chainCfg.RPCURLs(ctx, chainID)
	if err != nil {
		return fmt.Errorf("failed to resolve endpoints for chain %d: %w", chainID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.chains[chainID]; exists {
		return nil
	}

	st := &chainState{
		urls:     append([]entity.RPCURL(nil), urls...),
		health:   make(map[entity.RPCURL]*entity.EndpointHealth, len(urls)),
		fallback: append([]entity.RPCURL(nil), urls...),
	}
	for _, u := range urls {
		st.health[u] = entity.NewEndpointHealth(u)
	}
	s.chains[chainID] = st

	s.logger.Info("Initialized chain",
		zap.Int64("chainId", chainID),
		zap.Int("endpointCount", len(urls)))
	return nil
}

// Request delivers the payload using the resolved default options.
func (s *failoverService) Request(ctx context.Context, chainID int64, payload []byte) ([]byte, error) {
	return s.RequestWithOptions(ctx, chainID, payload, port.RequestOptions{})
}

// RequestWithOptions iterates endpoints in fallback order, retrying each with
// exponential backoff, until one answers successfully or everything is
// exhausted.
func (s *failoverService) RequestWithOptions(
	ctx context.Context,
	chainID int64,
	payload []byte,
	opts port.RequestOptions,
) ([]byte, error) {
	timeout, attempts := s.resolveRequestSettings(chainID, opts)

	order := s.GetFallbackOrder(chainID)
	if len(order) == 0 {
		return nil, fmt.Errorf("%w %d", domain.ErrNoEndpointsConfigured, chainID)
	}

	var lastErr error
	for _, url := range order {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if s.IsRateLimited(url) {
			s.logger.Debug("Skipping rate-limited endpoint",
				zap.Int64("chainId", chainID), zap.String("url", url.String()))
			continue
		}

		body, err := s.tryEndpoint(ctx, chainID, url, payload, timeout, attempts)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		lastErr = err
		s.logger.Debug("Endpoint exhausted, moving to next",
			zap.Int64("chainId", chainID), zap.String("url", url.String()), zap.Error(err))
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w %d: %v", domain.ErrAllEndpointsFailed, chainID, lastErr)
	}
	return nil, fmt.Errorf("%w %d", domain.ErrAllEndpointsFailed, chainID)
}

// resolveRequestSettings layers per-call options over per-chain settings over
// manager defaults.
func (s *failoverService) resolveRequestSettings(chainID int64, opts port.RequestOptions) (time.Duration, int) {
	settings := s.chainCfg.TimeoutSettings(chainID)

	timeout := s.cfg.Timeout
	if settings.RPCTimeout > 0 {
		timeout = settings.RPCTimeout
	}
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	attempts := s.cfg.RetryAttempts
	if settings.RetryAttempts > 0 {
		attempts = settings.RetryAttempts
	}
	if opts.RetryAttempts > 0 {
		attempts = opts.RetryAttempts
	}
	if attempts <= 0 {
		attempts = 1
	}
	return timeout, attempts
}

// tryEndpoint runs up to `attempts` attempts against one endpoint. It returns
// the response body on the first success; otherwise the error that should be
// remembered as the endpoint's last failure. Rate-limit signals, timeouts and
// application-level errors abandon the endpoint immediately; only generic
// transport errors consume further attempts here.
func (s *failoverService) tryEndpoint(
	ctx context.Context,
	chainID int64,
	url entity.RPCURL,
	payload []byte,
	timeout time.Duration,
	attempts int,
) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := s.ComputeBackoffDelay(chainID, attempt-1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		res, err := s.transport.Call(ctx, url, payload, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if entity.IsRateLimitMessage(err.Error()) {
				s.MarkRateLimited(url)
				return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrRateLimited, url, err)
			}
			if errors.Is(err, apperrors.ErrTimeout) {
				s.UpdateHealth(chainID, url, false, nil)
				return nil, err
			}
			lastErr = err
			if attempt == attempts-1 {
				s.UpdateHealth(chainID, url, false, nil)
			}
			continue
		}

		if res.StatusCode == http.StatusTooManyRequests || res.StatusCode == http.StatusForbidden {
			s.MarkRateLimited(url)
			return nil, fmt.Errorf("%w: %s returned http status %d", apperrors.ErrRateLimited, url, res.StatusCode)
		}
		if res.StatusCode != 0 && res.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("%w: %s returned http status %d",
				apperrors.ErrExternalServiceFailure, url, res.StatusCode)
			if attempt == attempts-1 {
				s.UpdateHealth(chainID, url, false, nil)
			}
			continue
		}

		var rpcResp entity.JSONRPCResponse
		if uerr := json.Unmarshal(res.Body, &rpcResp); uerr != nil {
			lastErr = fmt.Errorf("%w: %s returned invalid JSON response: %v",
				apperrors.ErrExternalServiceFailure, url, uerr)
			if attempt == attempts-1 {
				s.UpdateHealth(chainID, url, false, nil)
			}
			continue
		}

		if rpcResp.Error != nil {
			if rpcResp.Error.IsRateLimit() {
				s.MarkRateLimited(url)
				return nil, fmt.Errorf("%w: %s json-rpc error: %d %s",
					apperrors.ErrRateLimited, url, rpcResp.Error.Code, rpcResp.Error.Message)
			}
			s.UpdateHealth(chainID, url, false, nil)
			return nil, fmt.Errorf("%w: %s json-rpc error: %d %s",
				apperrors.ErrExternalServiceFailure, url, rpcResp.Error.Code, rpcResp.Error.Message)
		}

		latencyMs := res.Latency.Milliseconds()
		s.UpdateHealth(chainID, url, true, &latencyMs)
		return res.Body, nil
	}
	return nil, lastErr
}

// GetHealthyEndpoints returns the chain's healthy, not rate-limited endpoints
// sorted by descending success rate. Endpoints with no recorded traffic rank
// last; remaining ties keep their configured relative order.
func (s *failoverService) GetHealthyEndpoints(chainID int64) []entity.RPCURL {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.chains[chainID]
	if st == nil {
		return nil
	}
	return s.healthyEndpointsLocked(st)
}

func (s *failoverService) healthyEndpointsLocked(st *chainState) []entity.RPCURL {
	healthy := make([]entity.RPCURL, 0, len(st.urls))
	for _, u := range st.urls {
		rec := st.health[u]
		if rec == nil || rec.Status != entity.StatusHealthy {
			continue
		}
		if s.rateLimits.IsLimited(u) {
			continue
		}
		healthy = append(healthy, u)
	}

	sort.SliceStable(healthy, func(i, j int) bool {
		a, b := st.health[healthy[i]], st.health[healthy[j]]
		aTotal, bTotal := a.TotalRequests(), b.TotalRequests()
		if aTotal == 0 {
			return false
		}
		if bTotal == 0 {
			return true
		}
		return a.SuccessRate() > b.SuccessRate()
	})
	return healthy
}

// GetFallbackOrder returns the cached fallback order: healthy endpoints first,
// then every remaining configured endpoint in its original order.
func (s *failoverService) GetFallbackOrder(chainID int64) []entity.RPCURL {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.chains[chainID]
	if st == nil {
		return nil
	}
	return append([]entity.RPCURL(nil), st.fallback...)
}

func (s *failoverService) fallbackOrderLocked(st *chainState) []entity.RPCURL {
	healthy := s.healthyEndpointsLocked(st)
	inHealthy := make(map[entity.RPCURL]struct{}, len(healthy))
	for _, u := range healthy {
		inHealthy[u] = struct{}{}
	}
	order := append([]entity.RPCURL(nil), healthy...)
	for _, u := range st.urls {
		if _, ok := inHealthy[u]; !ok {
			order = append(order, u)
		}
	}
	return order
}

// GetBestEndpoint returns the top healthy endpoint, falling back to the first
// configured one.
func (s *failoverService) GetBestEndpoint(chainID int64) (entity.RPCURL, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.chains[chainID]
	if st == nil {
		return "", false
	}
	if healthy := s.healthyEndpointsLocked(st); len(healthy) > 0 {
		return healthy[0], true
	}
	if len(st.urls) > 0 {
		return st.urls[0], true
	}
	return "", false
}

// UpdateHealth records one observation for an endpoint and re-derives the
// chain's fallback order. Unknown chains or endpoints are silently ignored:
// health bookkeeping is called from best-effort paths.
func (s *failoverService) UpdateHealth(chainID int64, url entity.RPCURL, success bool, responseTimeMs *int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.chains[chainID]
	if st == nil {
		return
	}
	rec := st.health[url]
	if rec == nil {
		return
	}

	now := time.Now()
	if success {
		rec.RecordSuccess(now, responseTimeMs)
	} else {
		rec.RecordFailure(now)
	}
	st.fallback = s.fallbackOrderLocked(st)

	s.logger.Debug("Endpoint health updated",
		zap.Int64("chainId", chainID),
		zap.String("url", url.String()),
		zap.Bool("success", success),
		zap.String("status", string(rec.Status)),
		zap.Int64("failureCount", rec.FailureCount))
}

// IsRateLimited checks the global cooldown table; expired entries are lazily
// evicted by the lookup.
func (s *failoverService) IsRateLimited(url entity.RPCURL) bool {
	return s.rateLimits.IsLimited(url)
}

// MarkRateLimited puts the endpoint into cooldown globally and stamps the
// rate-limited status on every chain that tracks this URL.
func (s *failoverService) MarkRateLimited(url entity.RPCURL) {
	cooldown := s.cfg.RateLimitCooldown
	if cooldown <= 0 {
		cooldown = defaultRateLimitCooldown
	}
	until := time.Now().Add(cooldown)
	s.rateLimits.MarkLimited(url, until)

	s.mu.Lock()
	for _, st := range s.chains {
		if rec := st.health[url]; rec != nil {
			rec.MarkRateLimited(until)
			st.fallback = s.fallbackOrderLocked(st)
		}
	}
	s.mu.Unlock()

	s.logger.Warn("Endpoint rate limited",
		zap.String("url", url.String()),
		zap.Time("until", until))
}

// ComputeBackoffDelay returns baseDelay * 2^attempt, where baseDelay is the
// chain's configured retry delay when present.
func (s *failoverService) ComputeBackoffDelay(chainID int64, attempt int) time.Duration {
	base := s.cfg.RetryDelay
	if settings := s.chainCfg.TimeoutSettings(chainID); settings.RetryDelay > 0 {
		base = settings.RetryDelay
	}
	if base <= 0 {
		base = time.Second
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 16 {
		attempt = 16
	}
	return base * time.Duration(1<<uint(attempt))
}

// GetHealthSnapshot returns a read-only diagnostic view of the chain's
// endpoint health, keyed by URL.
func (s *failoverService) GetHealthSnapshot(chainID int64) map[string]entity.EndpointSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[string]entity.EndpointSnapshot)
	st := s.chains[chainID]
	if st == nil {
		return snapshot
	}
	for _, u := range st.urls {
		rec := st.health[u]
		if rec == nil {
			continue
		}
		snapshot[u.String()] = entity.EndpointSnapshot{
			URL:            u.String(),
			Status:         rec.Status,
			LastCheckedAt:  rec.LastCheckedAt,
			SuccessCount:   rec.SuccessCount,
			FailureCount:   rec.FailureCount,
			SuccessRate:    rec.SuccessRate(),
			ResponseTimeMs: rec.ResponseTimeMs,
			IsRateLimited:  s.rateLimits.IsLimited(u),
		}
	}
	return snapshot
}

// GetStatistics aggregates health counters across the chain's endpoints.
func (s *failoverService) GetStatistics(chainID int64) entity.ChainStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats entity.ChainStatistics
	st := s.chains[chainID]
	if st == nil {
		return stats
	}

	stats.TotalEndpoints = len(st.urls)
	for _, u := range st.urls {
		rec := st.health[u]
		if rec == nil {
			continue
		}
		limited := s.rateLimits.IsLimited(u)
		switch {
		case limited:
			stats.RateLimitedCount++
		case rec.Status == entity.StatusHealthy:
			stats.HealthyCount++
		}
		stats.TotalRequests += rec.TotalRequests()
		stats.TotalSuccesses += rec.SuccessCount
	}
	stats.UnhealthyCount = stats.TotalEndpoints - stats.HealthyCount - stats.RateLimitedCount
	if stats.TotalRequests > 0 {
		stats.OverallSuccessRate = float64(stats.TotalSuccesses) / float64(stats.TotalRequests)
	}
	return stats
}

// ResetChain restores every endpoint of the chain to its initial Unknown
// state and rebuilds the fallback order from the raw configured list. The
// global rate-limit table is not touched.
func (s *failoverService) ResetChain(chainID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.chains[chainID]
	if st == nil {
		return
	}
	for _, u := range st.urls {
		st.health[u] = entity.NewEndpointHealth(u)
	}
	st.fallback = append([]entity.RPCURL(nil), st.urls...)

	s.logger.Info("Chain health reset", zap.Int64("chainId", chainID))
}
