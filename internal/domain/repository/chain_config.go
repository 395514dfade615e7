package repository

import (
	"context"

	"rpc-failover/internal/domain/entity"
)

// ChainConfigProvider supplies, per chain ID, the candidate RPC endpoint list
// and the per-chain request overrides. It is a read-only collaborator of the
// failover manager.
type ChainConfigProvider interface {
	// RPCURLs returns the candidate endpoints for a chain in priority order.
	// An empty slice means the chain has no endpoints; domain.ErrChainNotFound
	// means no configuration source knows the chain at all.
	RPCURLs(ctx context.Context, chainID int64) ([]entity.RPCURL, error)

	// TimeoutSettings returns the per-chain request overrides. Zero-valued
	// fields mean the manager defaults apply.
	TimeoutSettings(chainID int64) entity.TimeoutSettings
}

// RemoteChainSource resolves a chain's RPC endpoints from an external registry
// (e.g. chainid.network). Used as a fallback when static configuration does
// not know the chain.
type RemoteChainSource interface {
	ChainRPCURLs(ctx context.Context, chainID int64) ([]entity.RPCURL, error)
}
