package chainconfig

import (
	"context"
	"fmt"

	"rpc-failover/internal/config"
	"rpc-failover/internal/domain"
	"rpc-failover/internal/domain/entity"
	domainRepo "rpc-failover/internal/domain/repository"

	"go.uber.org/zap"
)

// Compile-time check
var _ domainRepo.ChainConfigProvider = (*Repository)(nil)

// Repository implements ChainConfigProvider from the statically configured
// chain list, optionally falling back to a remote chain source for chains the
// static configuration does not know.
type Repository struct {
	urls     map[int64][]entity.RPCURL
	settings map[int64]entity.TimeoutSettings
	remote   domainRepo.RemoteChainSource
	logger   *zap.Logger
}

// NewRepository builds the provider from the configured chains. Invalid RPC
// URLs are skipped with a warning rather than failing the whole chain. The
// remote source may be nil.
func NewRepository(
	chains []config.ChainConfig,
	remote domainRepo.RemoteChainSource,
	logger *zap.Logger,
) *Repository {
	r := &Repository{
		urls:     make(map[int64][]entity.RPCURL, len(chains)),
		settings: make(map[int64]entity.TimeoutSettings, len(chains)),
		remote:   remote,
		logger:   logger.Named("ChainConfig"),
	}

	for _, c := range chains {
		validated := make([]entity.RPCURL, 0, len(c.RPCURLs))
		for _, raw := range c.RPCURLs {
			u, err := entity.NewRPCURL(raw)
			if err != nil {
				r.logger.Warn("Skipping invalid RPC URL in chain config",
					zap.Int64("chainId", c.ChainID),
					zap.String("rawUrl", raw),
					zap.Error(err))
				continue
			}
			validated = append(validated, u)
		}
		r.urls[c.ChainID] = validated
		r.settings[c.ChainID] = entity.TimeoutSettings{
			RPCTimeout:    c.RPCTimeout,
			RetryAttempts: c.RetryAttempts,
			RetryDelay:    c.RetryDelay,
		}
		r.logger.Info("Registered chain",
			zap.Int64("chainId", c.ChainID),
			zap.String("name", c.Name),
			zap.Int("endpointCount", len(validated)))
	}

	return r
}

// RPCURLs returns the candidate endpoints for a chain in configured order,
// consulting the remote source for chains absent from static configuration.
func (r *Repository) RPCURLs(ctx context.Context, chainID int64) ([]entity.RPCURL, error) {
	if urls, ok := r.urls[chainID]; ok {
		return append([]entity.RPCURL(nil), urls...), nil
	}

	if r.remote != nil {
		r.logger.Debug("Chain not in static config, consulting remote source",
			zap.Int64("chainId", chainID))
		urls, err := r.remote.ChainRPCURLs(ctx, chainID)
		if err != nil {
			return nil, err
		}
		return urls, nil
	}

	return nil, fmt.Errorf("%w: chain %d is not configured", domain.ErrChainNotFound, chainID)
}

// TimeoutSettings returns the per-chain request overrides; zero values mean
// the manager defaults apply. Chains only known to the remote source have no
// overrides.
func (r *Repository) TimeoutSettings(chainID int64) entity.TimeoutSettings {
	return r.settings[chainID]
}
