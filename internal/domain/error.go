package domain

import "errors"

var (
	// ErrChainNotFound means the requested chain is known to no configuration source.
	ErrChainNotFound = errors.New("chain not found")

	// ErrNoEndpointsConfigured means the chain has no candidate RPC endpoints at all.
	ErrNoEndpointsConfigured = errors.New("no endpoints configured for chain")

	// ErrAllEndpointsFailed means every endpoint/attempt combination was exhausted
	// without a successful response.
	ErrAllEndpointsFailed = errors.New("all endpoints failed for chain")
)
