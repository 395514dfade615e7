package chainlist_dto

// NetworkTypeRaw defines the type for network classifications (e.g., mainnet, testnet) from raw data.
type NetworkTypeRaw string

// Constants for known network types from raw data.
const (
	NetworkMainnetRaw NetworkTypeRaw = "mainnet"
	NetworkTestnetRaw NetworkTypeRaw = "testnet"
)

// ChainRaw is the subset of the Chainlist payload the failover manager needs:
// chain identity plus its RPC endpoint list.
type ChainRaw struct {
	Name    string         `json:"name"`
	Chain   string         `json:"chain"`
	RPC     []string       `json:"rpc"`
	ChainID int64          `json:"chainId"`
	Network NetworkTypeRaw `json:"network,omitempty"`
}
