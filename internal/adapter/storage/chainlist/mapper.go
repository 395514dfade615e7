package chainlist

import (
	dto "rpc-failover/internal/adapter/storage/chainlist/dto"
	"rpc-failover/internal/domain/entity"

	"go.uber.org/zap"
)

// mapNetworkType converts a raw DTO network type to its domain entity counterpart.
func mapNetworkType(rawType dto.NetworkTypeRaw) entity.NetworkType {
	switch rawType {
	case dto.NetworkMainnetRaw:
		return entity.NetworkMainnet
	case dto.NetworkTestnetRaw:
		return entity.NetworkTestnet
	default:
		return entity.NetworkType(rawType)
	}
}

// toDomainChains converts raw DTO chains to domain chains, validating every
// RPC URL and skipping the ones that cannot serve as endpoints.
func toDomainChains(rawChains []dto.ChainRaw, logger *zap.Logger) []entity.Chain {
	if rawChains == nil {
		return nil
	}
	domainChains := make([]entity.Chain, 0, len(rawChains))
	for _, raw := range rawChains {
		var domainRPCs []entity.RPCURL
		if raw.RPC != nil {
			domainRPCs = make([]entity.RPCURL, 0, len(raw.RPC))
			for _, rpcStr := range raw.RPC {
				rpcURL, err := entity.NewRPCURL(rpcStr)
				if err != nil {
					if logger != nil {
						logger.Warn("Skipping invalid RPC URL during mapping",
							zap.String("rawUrl", rpcStr),
							zap.Int64("chainId", raw.ChainID),
							zap.Error(err))
					}
					continue
				}
				domainRPCs = append(domainRPCs, rpcURL)
			}
		}

		domainChains = append(domainChains, entity.Chain{
			Name:    raw.Name,
			Chain:   raw.Chain,
			ChainID: raw.ChainID,
			RPC:     domainRPCs,
			Network: mapNetworkType(raw.Network),
		})
	}
	return domainChains
}
