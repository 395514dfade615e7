package chainlist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	dto "rpc-failover/internal/adapter/storage/chainlist/dto"
	"rpc-failover/internal/config"
	"rpc-failover/internal/domain"
	"rpc-failover/internal/domain/entity"
	domainRepo "rpc-failover/internal/domain/repository"
	"rpc-failover/internal/pkg/apperrors"

	"github.com/patrickmn/go-cache"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Compile-time check
var _ domainRepo.RemoteChainSource = (*Repository)(nil)

const chainsByIDKey = "chains_by_id"

// Repository implements RemoteChainSource against the Chainlist registry. The
// parsed registry is cached so a burst of unknown-chain lookups costs one
// fetch.
type Repository struct {
	client   *fasthttp.Client
	url      string
	cacheTTL time.Duration
	cache    *cache.Cache
	logger   *zap.Logger
}

// NewRepository creates a new Chainlist-backed chain source.
func NewRepository(cfg config.ChainlistConfig, cacheCfg config.CacheConfig, logger *zap.Logger) *Repository {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = cacheCfg.GetDefaultExpiration()
	}
	return &Repository{
		client:   &fasthttp.Client{},
		url:      cfg.URL,
		cacheTTL: ttl,
		cache:    cache.New(ttl, cacheCfg.GetCleanupInterval()),
		logger:   logger.Named("ChainlistSource"),
	}
}

// ChainRPCURLs resolves a chain's RPC endpoints from the registry.
func (r *Repository) ChainRPCURLs(ctx context.Context, chainID int64) ([]entity.RPCURL, error) {
	byID, err := r.chainsByID(ctx)
	if err != nil {
		return nil, err
	}
	chain, ok := byID[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: chain %d not present in chainlist registry", domain.ErrChainNotFound, chainID)
	}
	return append([]entity.RPCURL(nil), chain.RPC...), nil
}

// chainsByID returns the cached registry index, fetching it when absent.
func (r *Repository) chainsByID(ctx context.Context) (map[int64]entity.Chain, error) {
	if x, found := r.cache.Get(chainsByIDKey); found {
		if byID, ok := x.(map[int64]entity.Chain); ok {
			r.logger.Debug("Chainlist cache hit")
			return byID, nil
		}
		r.logger.Warn("Chainlist cache data type mismatch", zap.Any("type", fmt.Sprintf("%T", x)))
	}

	chains, err := r.fetchAllChains(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]entity.Chain, len(chains))
	for _, c := range chains {
		byID[c.ChainID] = c
	}
	r.cache.Set(chainsByIDKey, byID, r.cacheTTL)
	return byID, nil
}

// fetchAllChains fetches the full registry from the configured Chainlist URL.
func (r *Repository) fetchAllChains(ctx context.Context) ([]entity.Chain, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(r.url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAcceptEncoding, "gzip")

	deadline, hasDeadline := ctx.Deadline()
	timeout := 15 * time.Second
	if hasDeadline {
		requestTimeout := time.Until(deadline)
		if requestTimeout > 0 && requestTimeout < timeout {
			timeout = requestTimeout
		}
	}

	r.logger.Debug("Fetching chains from Chainlist",
		zap.String("url", r.url),
		zap.Duration("timeout", timeout))

	err := r.client.DoTimeout(req, resp, timeout)
	if err != nil {
		r.logger.Error("Failed to execute request to Chainlist", zap.Error(err))
		return nil, fmt.Errorf("%w: failed to execute request to Chainlist: %v",
			apperrors.ErrExternalServiceFailure, err)
	}

	if resp.StatusCode() == fasthttp.StatusNotFound {
		r.logger.Warn("Chainlist source reported not found",
			zap.Int("statusCode", resp.StatusCode()))
		return nil, fmt.Errorf("%w: chainlist source reported not found (%s)", apperrors.ErrNotFound, r.url)
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		r.logger.Error("Chainlist returned non-OK status",
			zap.Int("statusCode", resp.StatusCode()))
		return nil, fmt.Errorf("%w: chainlist returned status %d",
			apperrors.ErrExternalServiceFailure, resp.StatusCode())
	}

	var body []byte
	contentEncoding := resp.Header.Peek(fasthttp.HeaderContentEncoding)
	if bytes.EqualFold(contentEncoding, []byte("gzip")) {
		body, err = resp.BodyGunzip()
		if err != nil {
			r.logger.Error("Failed to gunzip Chainlist response body", zap.Error(err))
			return nil, fmt.Errorf("%w: failed to decompress chainlist response: %v",
				apperrors.ErrExternalServiceFailure, err)
		}
	} else {
		body = resp.Body()
	}

	var rawChains []dto.ChainRaw
	if err := json.Unmarshal(body, &rawChains); err != nil {
		r.logger.Error("Failed to unmarshal Chainlist response", zap.Error(err))
		return nil, fmt.Errorf("%w: failed to parse chainlist response: %v",
			apperrors.ErrExternalServiceFailure, err)
	}

	domainChains := toDomainChains(rawChains, r.logger)
	r.logger.Info("Fetched chains from Chainlist", zap.Int("count", len(domainChains)))
	return domainChains, nil
}
