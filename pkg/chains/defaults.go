package chains

import "github.com/ethereum/go-ethereum/common"

// Mainnet chain IDs
const (
	EthereumChainID  = 1
	OptimismChainID  = 10
	BSCChainID       = 56
	PolygonChainID   = 137
	BaseChainID      = 8453
	ArbitrumChainID  = 42161
	AvalancheChainID = 43114
)

func stablecoins(usdc, usdt string, decimals int32) map[TokenType]Token {
	return map[TokenType]Token{
		TokenTypeUSDC: {Symbol: TokenTypeUSDC, Address: common.HexToAddress(usdc), Decimals: decimals},
		TokenTypeUSDT: {Symbol: TokenTypeUSDT, Address: common.HexToAddress(usdt), Decimals: decimals},
	}
}

// DefaultDescriptors returns the built-in mainnet descriptors
// BSC stablecoins use 18 decimals, every other chain uses 6
func DefaultDescriptors() []ChainDescriptor {
	return []ChainDescriptor{
		{
			ID:                 EthereumChainID,
			Name:               "ETHEREUM",
			Slug:               "ethereum",
			NativeAsset:        NativeAsset{Symbol: "ETH", Decimals: 18},
			Tokens:             stablecoins("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "0xdAC17F958D2ee523a2206206994597C13D831ec7", 6),
			RPCURL:             "https://eth.llamarpc.com",
			ExplorerTxURL:      "https://etherscan.io/tx/{hash}",
			ExplorerAddressURL: "https://etherscan.io/address/{address}",
		},
		{
			ID:                 OptimismChainID,
			Name:               "OPTIMISM",
			Slug:               "optimism",
			NativeAsset:        NativeAsset{Symbol: "ETH", Decimals: 18},
			Tokens:             stablecoins("0x0b2C639c533813f4Aa9D7837cAf62653d097Ff85", "0x94b008aA00579c1307B0EF2c499aD98a8ce58e58", 6),
			RPCURL:             "https://mainnet.optimism.io",
			ExplorerTxURL:      "https://optimistic.etherscan.io/tx/{hash}",
			ExplorerAddressURL: "https://optimistic.etherscan.io/address/{address}",
		},
		{
			ID:                 BSCChainID,
			Name:               "BSC",
			Slug:               "bsc",
			NativeAsset:        NativeAsset{Symbol: "BNB", Decimals: 18},
			Tokens:             stablecoins("0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d", "0x55d398326f99059fF775485246999027B3197955", 18),
			RPCURL:             "https://bsc-dataseed.bnbchain.org",
			ExplorerTxURL:      "https://bscscan.com/tx/{hash}",
			ExplorerAddressURL: "https://bscscan.com/address/{address}",
		},
		{
			ID:                 PolygonChainID,
			Name:               "POLYGON",
			Slug:               "polygon",
			NativeAsset:        NativeAsset{Symbol: "POL", Decimals: 18},
			Tokens:             stablecoins("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", "0xc2132D05D31c914a87C6611C10748AEb04B58e8F", 6),
			RPCURL:             "https://polygon-rpc.com",
			ExplorerTxURL:      "https://polygonscan.com/tx/{hash}",
			ExplorerAddressURL: "https://polygonscan.com/address/{address}",
		},
		{
			ID:                 BaseChainID,
			Name:               "BASE",
			Slug:               "base",
			NativeAsset:        NativeAsset{Symbol: "ETH", Decimals: 18},
			Tokens:             stablecoins("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", "0xfde4C96c8593536E31F229EA8f37b2ADa2699bb2", 6),
			RPCURL:             "https://mainnet.base.org",
			ExplorerTxURL:      "https://basescan.org/tx/{hash}",
			ExplorerAddressURL: "https://basescan.org/address/{address}",
		},
		{
			ID:                 ArbitrumChainID,
			Name:               "ARBITRUM",
			Slug:               "arbitrum",
			NativeAsset:        NativeAsset{Symbol: "ETH", Decimals: 18},
			Tokens:             stablecoins("0xaf88d065e77c8cC2239327C5EDb3A432268e5831", "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9", 6),
			RPCURL:             "https://arb1.arbitrum.io/rpc",
			ExplorerTxURL:      "https://arbiscan.io/tx/{hash}",
			ExplorerAddressURL: "https://arbiscan.io/address/{address}",
		},
		{
			ID:                 AvalancheChainID,
			Name:               "AVALANCHE",
			Slug:               "avalanche",
			NativeAsset:        NativeAsset{Symbol: "AVAX", Decimals: 18},
			Tokens:             stablecoins("0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E", "0x9702230A8Ea53601f5cD2dc00fDBc13d4dF4A8c7", 6),
			RPCURL:             "https://avalanche-c-chain-rpc.publicnode.com",
			ExplorerTxURL:      "https://snowtrace.io/tx/{hash}",
			ExplorerAddressURL: "https://snowtrace.io/address/{address}",
		},
	}
}

// DefaultRegistry returns a registry populated with the built-in mainnet descriptors
func DefaultRegistry() *Registry {
	return NewRegistry(DefaultDescriptors()...)
}
