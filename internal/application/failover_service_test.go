package application

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rpc-failover/internal/adapter/storage/memory"
	"rpc-failover/internal/application/port"
	"rpc-failover/internal/config"
	"rpc-failover/internal/domain"
	"rpc-failover/internal/domain/entity"
	domainService "rpc-failover/internal/domain/service"
	"rpc-failover/internal/pkg/apperrors"
)

const (
	urlA = entity.RPCURL("https://a.example.com")
	urlB = entity.RPCURL("https://b.example.com")
	urlC = entity.RPCURL("https://c.example.com")
)

// fakeChainConfig is an in-memory ChainConfigProvider.
type fakeChainConfig struct {
	urls     map[int64][]entity.RPCURL
	settings map[int64]entity.TimeoutSettings
}

func (f *fakeChainConfig) RPCURLs(_ context.Context, chainID int64) ([]entity.RPCURL, error) {
	urls, ok := f.urls[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: chain %d", domain.ErrChainNotFound, chainID)
	}
	return urls, nil
}

func (f *fakeChainConfig) TimeoutSettings(chainID int64) entity.TimeoutSettings {
	return f.settings[chainID]
}

// fakeTransport routes calls to per-URL handlers and counts attempts.
type fakeTransport struct {
	mu       sync.Mutex
	handlers map[entity.RPCURL]func(payload []byte) (*domainService.CallResult, error)
	calls    map[entity.RPCURL]int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handlers: make(map[entity.RPCURL]func(payload []byte) (*domainService.CallResult, error)),
		calls:    make(map[entity.RPCURL]int),
	}
}

func (f *fakeTransport) respond(url entity.RPCURL, handler func(payload []byte) (*domainService.CallResult, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[url] = handler
}

func (f *fakeTransport) callCount(url entity.RPCURL) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeTransport) Call(
	_ context.Context,
	url entity.RPCURL,
	payload []byte,
	_ time.Duration,
) (*domainService.CallResult, error) {
	f.mu.Lock()
	f.calls[url]++
	handler := f.handlers[url]
	f.mu.Unlock()
	if handler == nil {
		return nil, fmt.Errorf("%w: no handler for %s", apperrors.ErrExternalServiceFailure, url)
	}
	return handler(payload)
}

func succeedWith(result string) func(payload []byte) (*domainService.CallResult, error) {
	body := []byte(`{"jsonrpc":"2.0","id":1,"result":"` + result + `"}`)
	return func(_ []byte) (*domainService.CallResult, error) {
		return &domainService.CallResult{Body: body, StatusCode: 200, Latency: 5 * time.Millisecond}, nil
	}
}

func failWithTimeout() func(payload []byte) (*domainService.CallResult, error) {
	return func(_ []byte) (*domainService.CallResult, error) {
		return nil, fmt.Errorf("%w: request timed out", apperrors.ErrTimeout)
	}
}

func failWithTransportError() func(payload []byte) (*domainService.CallResult, error) {
	return func(_ []byte) (*domainService.CallResult, error) {
		return nil, fmt.Errorf("%w: connection refused", apperrors.ErrExternalServiceFailure)
	}
}

func respondJSONRPCError(code int, message string) func(payload []byte) (*domainService.CallResult, error) {
	body := []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"error":{"code":%d,"message":"%s"}}`, code, message))
	return func(_ []byte) (*domainService.CallResult, error) {
		return &domainService.CallResult{Body: body, StatusCode: 200, Latency: time.Millisecond}, nil
	}
}

func respondStatus(status int) func(payload []byte) (*domainService.CallResult, error) {
	return func(_ []byte) (*domainService.CallResult, error) {
		return &domainService.CallResult{StatusCode: status, Latency: time.Millisecond}, nil
	}
}

type serviceOption func(*config.RPCConfig)

func withCooldown(d time.Duration) serviceOption {
	return func(cfg *config.RPCConfig) { cfg.RateLimitCooldown = d }
}

func withRetryAttempts(n int) serviceOption {
	return func(cfg *config.RPCConfig) { cfg.RetryAttempts = n }
}

func newTestService(
	t *testing.T,
	chainCfg *fakeChainConfig,
	transport *fakeTransport,
	opts ...serviceOption,
) port.FailoverService {
	t.Helper()
	cfg := config.RPCConfig{
		Timeout:             time.Second,
		RetryAttempts:       3,
		RetryDelay:          time.Millisecond,
		HealthCheckInterval: time.Minute,
		RateLimitCooldown:   time.Minute,
		MaxConcurrentProbes: 2,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	rateLimits := memory.NewRateLimitRepository(
		config.CacheConfig{DefaultExpiration: time.Minute, CleanupInterval: time.Minute},
		zap.NewNop(),
	)
	return NewFailoverService(chainCfg, rateLimits, transport, zap.NewNop(), cfg)
}

func twoEndpointConfig() *fakeChainConfig {
	return &fakeChainConfig{
		urls:     map[int64][]entity.RPCURL{1: {urlA, urlB}},
		settings: map[int64]entity.TimeoutSettings{},
	}
}

func TestInitializeChain_Idempotent(t *testing.T) {
	transport := newFakeTransport()
	svc := newTestService(t, twoEndpointConfig(), transport)

	require.NoError(t, svc.InitializeChain(context.Background(), 1))
	svc.UpdateHealth(1, urlA, true, nil)

	require.NoError(t, svc.InitializeChain(context.Background(), 1))

	snapshot := svc.GetHealthSnapshot(1)
	assert.Equal(t, int64(1), snapshot[urlA.String()].SuccessCount,
		"re-initialization must not reset existing health records")
}

func TestInitializeChain_UnknownChain(t *testing.T) {
	transport := newFakeTransport()
	svc := newTestService(t, twoEndpointConfig(), transport)

	err := svc.InitializeChain(context.Background(), 999)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrChainNotFound)
}

func TestUpdateHealth_FailureThreshold(t *testing.T) {
	transport := newFakeTransport()
	svc := newTestService(t, twoEndpointConfig(), transport)
	require.NoError(t, svc.InitializeChain(context.Background(), 1))

	svc.UpdateHealth(1, urlA, false, nil)
	svc.UpdateHealth(1, urlA, false, nil)
	snapshot := svc.GetHealthSnapshot(1)
	assert.Equal(t, entity.StatusUnknown, snapshot[urlA.String()].Status,
		"two failures must not change the prior status")
	assert.Equal(t, int64(2), snapshot[urlA.String()].FailureCount)

	svc.UpdateHealth(1, urlA, false, nil)
	snapshot = svc.GetHealthSnapshot(1)
	assert.Equal(t, entity.StatusUnhealthy, snapshot[urlA.String()].Status,
		"the third failure crosses the threshold")
}

func TestUpdateHealth_TwoFailuresKeepHealthyStatus(t *testing.T) {
	transport := newFakeTransport()
	svc := newTestService(t, twoEndpointConfig(), transport)
	require.NoError(t, svc.InitializeChain(context.Background(), 1))

	svc.UpdateHealth(1, urlA, true, nil)
	svc.UpdateHealth(1, urlA, false, nil)
	svc.UpdateHealth(1, urlA, false, nil)

	snapshot := svc.GetHealthSnapshot(1)
	assert.Equal(t, entity.StatusHealthy, snapshot[urlA.String()].Status)
	assert.Equal(t, int64(2), snapshot[urlA.String()].FailureCount)
}

func TestUpdateHealth_SuccessRecovery(t *testing.T) {
	transport := newFakeTransport()
	svc := newTestService(t, twoEndpointConfig(), transport)
	require.NoError(t, svc.InitializeChain(context.Background(), 1))

	for i := 0; i < 5; i++ {
		svc.UpdateHealth(1, urlA, false, nil)
	}
	svc.UpdateHealth(1, urlA, true, nil)

	snapshot := svc.GetHealthSnapshot(1)
	assert.Equal(t, entity.StatusHealthy, snapshot[urlA.String()].Status,
		"any success flips the status to healthy")
	assert.Equal(t, int64(4), snapshot[urlA.String()].FailureCount,
		"success decrements the failure count by exactly one")

	// The floor is zero.
	svc2 := newTestService(t, twoEndpointConfig(), transport)
	require.NoError(t, svc2.InitializeChain(context.Background(), 1))
	svc2.UpdateHealth(1, urlA, true, nil)
	snapshot = svc2.GetHealthSnapshot(1)
	assert.Equal(t, int64(0), snapshot[urlA.String()].FailureCount)
}

func TestUpdateHealth_UninitializedIsNoop(t *testing.T) {
	transport := newFakeTransport()
	svc := newTestService(t, twoEndpointConfig(), transport)

	// Neither the chain nor the endpoint exists; both must be silent no-ops.
	svc.UpdateHealth(42, urlA, true, nil)

	require.NoError(t, svc.InitializeChain(context.Background(), 1))
	svc.UpdateHealth(1, urlC, false, nil)
	snapshot := svc.GetHealthSnapshot(1)
	_, tracked := snapshot[urlC.String()]
	assert.False(t, tracked)
}

func TestGetHealthyEndpoints_OrderedBySuccessRate(t *testing.T) {
	transport := newFakeTransport()
	chainCfg := &fakeChainConfig{
		urls:     map[int64][]entity.RPCURL{1: {urlA, urlB, urlC}},
		settings: map[int64]entity.TimeoutSettings{},
	}
	svc := newTestService(t, chainCfg, transport)
	require.NoError(t, svc.InitializeChain(context.Background(), 1))

	svc.UpdateHealth(1, urlA, true, nil)
	svc.UpdateHealth(1, urlA, false, nil)
	svc.UpdateHealth(1, urlA, true, nil)
	for i := 0; i < 3; i++ {
		svc.UpdateHealth(1, urlB, true, nil)
	}
	svc.UpdateHealth(1, urlC, true, nil)
	svc.UpdateHealth(1, urlC, true, nil)
	svc.UpdateHealth(1, urlC, false, nil)
	svc.UpdateHealth(1, urlC, false, nil)

	// Effective counters: A 2 successes / 0 failures (the second success
	// forgave the failure) = 1.0, B = 1.0, C = 2/4 = 0.5. A and B tie at the
	// top in configured order, C ranks after them.
	healthy := svc.GetHealthyEndpoints(1)
	require.Len(t, healthy, 3)
	assert.Equal(t, urlA, healthy[0])
	assert.Equal(t, urlB, healthy[1])
	assert.Equal(t, urlC, healthy[2])
}

func TestHealthyEndpointOrdering_ZeroTrafficRanksLast(t *testing.T) {
	// Exercised against the internal ordering directly: a healthy record with
	// no recorded traffic must never rank ahead of one with recorded successes.
	rateLimits := memory.NewRateLimitRepository(
		config.CacheConfig{DefaultExpiration: time.Minute, CleanupInterval: time.Minute},
		zap.NewNop(),
	)
	s := &failoverService{
		rateLimits: rateLimits,
		logger:     zap.NewNop(),
		chains:     make(map[int64]*chainState),
	}

	fresh := entity.NewEndpointHealth(urlA)
	fresh.Status = entity.StatusHealthy
	proven := entity.NewEndpointHealth(urlB)
	proven.Status = entity.StatusHealthy
	proven.SuccessCount = 1

	st := &chainState{
		urls: []entity.RPCURL{urlA, urlB},
		health: map[entity.RPCURL]*entity.EndpointHealth{
			urlA: fresh,
			urlB: proven,
		},
	}

	ordered := s.healthyEndpointsLocked(st)
	require.Len(t, ordered, 2)
	assert.Equal(t, urlB, ordered[0], "an endpoint with recorded traffic outranks a zero-traffic one")
	assert.Equal(t, urlA, ordered[1])
}

func TestGetFallbackOrder_HealthyFirstThenConfiguredOrder(t *testing.T) {
	transport := newFakeTransport()
	chainCfg := &fakeChainConfig{
		urls:     map[int64][]entity.RPCURL{1: {urlA, urlB, urlC}},
		settings: map[int64]entity.TimeoutSettings{},
	}
	svc := newTestService(t, chainCfg, transport)
	require.NoError(t, svc.InitializeChain(context.Background(), 1))

	svc.UpdateHealth(1, urlB, true, nil)

	order := svc.GetFallbackOrder(1)
	require.Equal(t, []entity.RPCURL{urlB, urlA, urlC}, order)
}

func TestComputeBackoffDelay(t *testing.T) {
	transport := newFakeTransport()
	chainCfg := &fakeChainConfig{
		urls: map[int64][]entity.RPCURL{1: {urlA}, 2: {urlA}},
		settings: map[int64]entity.TimeoutSettings{
			2: {RetryDelay: 250 * time.Millisecond},
		},
	}
	cfg := config.RPCConfig{RetryDelay: time.Second}
	rateLimits := memory.NewRateLimitRepository(
		config.CacheConfig{CleanupInterval: time.Minute}, zap.NewNop())
	svc := NewFailoverService(chainCfg, rateLimits, transport, zap.NewNop(), cfg)

	assert.Equal(t, time.Second, svc.ComputeBackoffDelay(1, 0))
	assert.Equal(t, 2*time.Second, svc.ComputeBackoffDelay(1, 1))
	assert.Equal(t, 4*time.Second, svc.ComputeBackoffDelay(1, 2))

	// Chain-specific retry delay overrides the manager default.
	assert.Equal(t, 250*time.Millisecond, svc.ComputeBackoffDelay(2, 0))
	assert.Equal(t, time.Second, svc.ComputeBackoffDelay(2, 2))
}

func TestRequest_NoEndpointsConfigured(t *testing.T) {
	transport := newFakeTransport()
	chainCfg := &fakeChainConfig{
		urls:     map[int64][]entity.RPCURL{7: {}},
		settings: map[int64]entity.TimeoutSettings{},
	}
	svc := newTestService(t, chainCfg, transport)
	require.NoError(t, svc.InitializeChain(context.Background(), 7))

	_, err := svc.Request(context.Background(), 7, []byte(`{}`))
	assert.ErrorIs(t, err, domain.ErrNoEndpointsConfigured)
}

func TestRequest_FailoverOnTimeout(t *testing.T) {
	transport := newFakeTransport()
	transport.respond(urlA, failWithTimeout())
	transport.respond(urlB, succeedWith("0x10"))

	svc := newTestService(t, twoEndpointConfig(), transport)
	require.NoError(t, svc.InitializeChain(context.Background(), 1))

	body, err := svc.Request(context.Background(), 1, []byte(`{"jsonrpc":"2.0","method":"eth_blockNumber","params":[],"id":1}`))
	require.NoError(t, err)
	assert.Contains(t, string(body), `"0x10"`)

	assert.Equal(t, 1, transport.callCount(urlA), "a timeout abandons the endpoint without retries")
	assert.Equal(t, 1, transport.callCount(urlB))

	snapshot := svc.GetHealthSnapshot(1)
	assert.Equal(t, int64(1), snapshot[urlA.String()].FailureCount)
	assert.Equal(t, entity.StatusHealthy, snapshot[urlB.String()].Status)
	assert.Equal(t, int64(1), snapshot[urlB.String()].SuccessCount)
}

func TestRequest_RateLimitShortCircuit(t *testing.T) {
	transport := newFakeTransport()
	transport.respond(urlA, respondJSONRPCError(-32005, "request quota exceeded"))
	transport.respond(urlB, succeedWith("0x1"))

	svc := newTestService(t, twoEndpointConfig(), transport)
	require.NoError(t, svc.InitializeChain(context.Background(), 1))

	body, err := svc.Request(context.Background(), 1, []byte(`{}`))
	require.NoError(t, err)
	assert.Contains(t, string(body), `"0x1"`)

	assert.Equal(t, 1, transport.callCount(urlA), "a rate-limit error abandons remaining retries")
	assert.True(t, svc.IsRateLimited(urlA))
	assert.False(t, svc.IsRateLimited(urlB))
}

func TestRequest_RateLimitedHTTPStatus(t *testing.T) {
	transport := newFakeTransport()
	transport.respond(urlA, respondStatus(429))
	transport.respond(urlB, succeedWith("0x2"))

	svc := newTestService(t, twoEndpointConfig(), transport)
	require.NoError(t, svc.InitializeChain(context.Background(), 1))

	body, err := svc.Request(context.Background(), 1, []byte(`{}`))
	require.NoError(t, err)
	assert.Contains(t, string(body), `"0x2"`)
	assert.Equal(t, 1, transport.callCount(urlA))
	assert.True(t, svc.IsRateLimited(urlA))
}

func TestRequest_SkipsRateLimitedEndpoint(t *testing.T) {
	transport := newFakeTransport()
	transport.respond(urlA, succeedWith("never"))
	transport.respond(urlB, succeedWith("0x3"))

	svc := newTestService(t, twoEndpointConfig(), transport)
	require.NoError(t, svc.InitializeChain(context.Background(), 1))

	svc.MarkRateLimited(urlA)

	body, err := svc.Request(context.Background(), 1, []byte(`{}`))
	require.NoError(t, err)
	assert.Contains(t, string(body), `"0x3"`)
	assert.Equal(t, 0, transport.callCount(urlA), "rate-limited endpoints get zero attempts")
}

func TestRequest_RetriesGenericTransportErrors(t *testing.T) {
	transport := newFakeTransport()
	transport.respond(urlA, failWithTransportError())
	transport.respond(urlB, succeedWith("0x4"))

	svc := newTestService(t, twoEndpointConfig(), transport)
	require.NoError(t, svc.InitializeChain(context.Background(), 1))

	body, err := svc.Request(context.Background(), 1, []byte(`{}`))
	require.NoError(t, err)
	assert.Contains(t, string(body), `"0x4"`)

	assert.Equal(t, 3, transport.callCount(urlA), "generic transport errors consume all retries")
	snapshot := svc.GetHealthSnapshot(1)
	assert.Equal(t, int64(1), snapshot[urlA.String()].FailureCount,
		"the health failure is recorded once, after retries are exhausted")
}

func TestRequest_AppErrorMovesToNextEndpoint(t *testing.T) {
	transport := newFakeTransport()
	transport.respond(urlA, respondJSONRPCError(-32000, "execution reverted"))
	transport.respond(urlB, succeedWith("0x5"))

	svc := newTestService(t, twoEndpointConfig(), transport)
	require.NoError(t, svc.InitializeChain(context.Background(), 1))

	body, err := svc.Request(context.Background(), 1, []byte(`{}`))
	require.NoError(t, err)
	assert.Contains(t, string(body), `"0x5"`)

	assert.Equal(t, 1, transport.callCount(urlA), "an application-level error abandons the endpoint")
	snapshot := svc.GetHealthSnapshot(1)
	assert.Equal(t, int64(1), snapshot[urlA.String()].FailureCount)
	assert.False(t, svc.IsRateLimited(urlA))
}

func TestRequest_ExhaustionCarriesLastError(t *testing.T) {
	transport := newFakeTransport()
	transport.respond(urlA, failWithTimeout())
	transport.respond(urlB, respondJSONRPCError(-32000, "execution reverted"))

	svc := newTestService(t, twoEndpointConfig(), transport, withRetryAttempts(1))
	require.NoError(t, svc.InitializeChain(context.Background(), 1))

	_, err := svc.Request(context.Background(), 1, []byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAllEndpointsFailed)
	assert.Contains(t, err.Error(), "execution reverted", "the last observed error is surfaced")
}

func TestRequest_FirstSuccessStopsFailover(t *testing.T) {
	transport := newFakeTransport()
	transport.respond(urlA, succeedWith("0x6"))
	transport.respond(urlB, succeedWith("never"))

	svc := newTestService(t, twoEndpointConfig(), transport)
	require.NoError(t, svc.InitializeChain(context.Background(), 1))

	body, err := svc.Request(context.Background(), 1, []byte(`{}`))
	require.NoError(t, err)
	assert.Contains(t, string(body), `"0x6"`)
	assert.Equal(t, 0, transport.callCount(urlB), "no further endpoints are tried after a success")
}

func TestRequest_ContextCancellation(t *testing.T) {
	transport := newFakeTransport()
	transport.respond(urlA, failWithTransportError())
	transport.respond(urlB, succeedWith("never"))

	svc := newTestService(t, twoEndpointConfig(), transport)
	require.NoError(t, svc.InitializeChain(context.Background(), 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Request(ctx, 1, []byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRateLimit_ExpiryIdempotence(t *testing.T) {
	transport := newFakeTransport()
	svc := newTestService(t, twoEndpointConfig(), transport, withCooldown(30*time.Millisecond))
	require.NoError(t, svc.InitializeChain(context.Background(), 1))

	svc.MarkRateLimited(urlA)
	assert.True(t, svc.IsRateLimited(urlA))

	time.Sleep(50 * time.Millisecond)
	assert.False(t, svc.IsRateLimited(urlA), "cooldown has elapsed")
	assert.False(t, svc.IsRateLimited(urlA), "expired entries stay evicted")
}

func TestMarkRateLimited_StampsEveryChainTrackingTheURL(t *testing.T) {
	transport := newFakeTransport()
	chainCfg := &fakeChainConfig{
		urls: map[int64][]entity.RPCURL{
			1: {urlA, urlB},
			2: {urlA, urlC},
		},
		settings: map[int64]entity.TimeoutSettings{},
	}
	svc := newTestService(t, chainCfg, transport)
	require.NoError(t, svc.InitializeChain(context.Background(), 1))
	require.NoError(t, svc.InitializeChain(context.Background(), 2))

	svc.MarkRateLimited(urlA)

	for _, chainID := range []int64{1, 2} {
		snapshot := svc.GetHealthSnapshot(chainID)
		assert.Equal(t, entity.StatusRateLimited, snapshot[urlA.String()].Status,
			"chain %d must see the shared endpoint as rate limited", chainID)
		assert.True(t, snapshot[urlA.String()].IsRateLimited)
	}
}

func TestGetBestEndpoint(t *testing.T) {
	transport := newFakeTransport()
	svc := newTestService(t, twoEndpointConfig(), transport)

	_, ok := svc.GetBestEndpoint(1)
	assert.False(t, ok, "uninitialized chain has no best endpoint")

	require.NoError(t, svc.InitializeChain(context.Background(), 1))

	best, ok := svc.GetBestEndpoint(1)
	require.True(t, ok)
	assert.Equal(t, urlA, best, "with no healthy endpoints the first configured one wins")

	svc.UpdateHealth(1, urlB, true, nil)
	best, ok = svc.GetBestEndpoint(1)
	require.True(t, ok)
	assert.Equal(t, urlB, best)
}

func TestGetHealthSnapshot_Fields(t *testing.T) {
	transport := newFakeTransport()
	svc := newTestService(t, twoEndpointConfig(), transport)
	require.NoError(t, svc.InitializeChain(context.Background(), 1))

	latency := int64(42)
	svc.UpdateHealth(1, urlA, true, &latency)

	snapshot := svc.GetHealthSnapshot(1)
	rec := snapshot[urlA.String()]
	assert.Equal(t, entity.StatusHealthy, rec.Status)
	assert.Equal(t, int64(1), rec.SuccessCount)
	assert.Equal(t, 1.0, rec.SuccessRate)
	require.NotNil(t, rec.ResponseTimeMs)
	assert.Equal(t, int64(42), *rec.ResponseTimeMs)
	assert.NotNil(t, rec.LastCheckedAt)

	fresh := snapshot[urlB.String()]
	assert.Equal(t, entity.StatusUnknown, fresh.Status)
	assert.Equal(t, 0.0, fresh.SuccessRate, "success rate is 0 with no recorded traffic")
}

func TestGetStatistics(t *testing.T) {
	transport := newFakeTransport()
	svc := newTestService(t, twoEndpointConfig(), transport)
	require.NoError(t, svc.InitializeChain(context.Background(), 1))

	for i := 0; i < 3; i++ {
		svc.UpdateHealth(1, urlA, true, nil)
	}
	svc.UpdateHealth(1, urlA, false, nil)

	stats := svc.GetStatistics(1)
	assert.Equal(t, 2, stats.TotalEndpoints)
	assert.Equal(t, 1, stats.HealthyCount)
	assert.Equal(t, 0, stats.RateLimitedCount)
	assert.Equal(t, 1, stats.UnhealthyCount)
	assert.Equal(t, int64(4), stats.TotalRequests)
	assert.Equal(t, int64(3), stats.TotalSuccesses)
	assert.InDelta(t, 0.75, stats.OverallSuccessRate, 1e-9)
}

func TestResetChain(t *testing.T) {
	transport := newFakeTransport()
	svc := newTestService(t, twoEndpointConfig(), transport)
	require.NoError(t, svc.InitializeChain(context.Background(), 1))

	svc.UpdateHealth(1, urlA, true, nil)
	svc.UpdateHealth(1, urlB, false, nil)
	svc.MarkRateLimited(urlB)

	svc.ResetChain(1)

	snapshot := svc.GetHealthSnapshot(1)
	for _, u := range []entity.RPCURL{urlA, urlB} {
		rec := snapshot[u.String()]
		assert.Equal(t, entity.StatusUnknown, rec.Status)
		assert.Equal(t, int64(0), rec.SuccessCount)
		assert.Equal(t, int64(0), rec.FailureCount)
	}

	assert.Equal(t, []entity.RPCURL{urlA, urlB}, svc.GetFallbackOrder(1),
		"fallback order is rebuilt from the configured list")
	assert.True(t, svc.IsRateLimited(urlB), "reset does not touch the global rate-limit table")
}

func TestEndToEnd_TimeoutThenSuccess(t *testing.T) {
	transport := newFakeTransport()
	transport.respond(urlA, failWithTimeout())
	transport.respond(urlB, succeedWith("0x10"))

	svc := newTestService(t, twoEndpointConfig(), transport)
	require.NoError(t, svc.InitializeChain(context.Background(), 1))

	body, err := svc.Request(context.Background(), 1,
		[]byte(`{"jsonrpc":"2.0","method":"eth_blockNumber","params":[],"id":1}`))
	require.NoError(t, err)
	assert.Contains(t, string(body), `"result":"0x10"`)

	snapshot := svc.GetHealthSnapshot(1)
	a := snapshot[urlA.String()]
	assert.Equal(t, int64(1), a.FailureCount)
	assert.Equal(t, entity.StatusUnknown, a.Status, "one failure stays below the threshold")
	b := snapshot[urlB.String()]
	assert.Equal(t, entity.StatusHealthy, b.Status)
	assert.Equal(t, int64(1), b.SuccessCount)
}
