package wallet

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/bridgerunner/pkg/chainclient"
	"github.com/speedrun-hq/bridgerunner/pkg/chains"
)

const nativeDecimals = 18

// ChainBalances reads ERC20 balances through per-chain RPC clients
type ChainBalances struct {
	clients map[int]*chainclient.Client
}

// NewChainBalances creates a balance observer over clients
func NewChainBalances(clients []*chainclient.Client) *ChainBalances {
	byChain := make(map[int]*chainclient.Client, len(clients))
	for _, c := range clients {
		byChain[c.ChainID] = c
	}
	return &ChainBalances{clients: byChain}
}

// TokenBalance returns owner's balance of token on chainID in whole token units.
// The native currency placeholder address reads the gas token balance.
func (b *ChainBalances) TokenBalance(ctx context.Context, chainID int, token, owner common.Address) (string, error) {
	client, ok := b.clients[chainID]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnsupportedChain, chainID)
	}

	if token == chains.NativeCurrencyAddress {
		raw, err := client.NativeBalance(ctx, owner)
		if err != nil {
			return "", err
		}
		return chains.FormatBaseUnits(raw, nativeDecimals), nil
	}

	raw, err := client.TokenBalance(ctx, token, owner)
	if err != nil {
		return "", err
	}
	decimals, err := client.TokenDecimals(ctx, token)
	if err != nil {
		return "", err
	}
	return chains.FormatBaseUnits(raw, int32(decimals)), nil
}
