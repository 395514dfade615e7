package entity

// NetworkType defines the type for network classifications (e.g., mainnet, testnet).
type NetworkType string

// Constants for known network types.
const (
	NetworkMainnet NetworkType = "mainnet"
	NetworkTestnet NetworkType = "testnet"
)

// Chain is the slice of chain metadata the failover manager cares about: the
// chain identity and its candidate RPC endpoints in source order.
type Chain struct {
	Name    string      `json:"name"`
	Chain   string      `json:"chain"`
	ChainID int64       `json:"chainId"`
	RPC     []RPCURL    `json:"rpc"`
	Network NetworkType `json:"network,omitempty"`
}
