package chainclient

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/speedrun-hq/bridgerunner/pkg/contracts"
	"github.com/speedrun-hq/bridgerunner/pkg/logger"
)

const (
	// DefaultGasMultiplier pads the suggested gas price by 10%
	DefaultGasMultiplier = 1.1

	// DefaultDecimalsTTL is how long token decimals are cached
	DefaultDecimalsTTL = 30 * time.Minute

	rpcTimeout          = 10 * time.Second
	receiptPollInterval = 2 * time.Second
)

// Backend is the subset of the Ethereum JSON-RPC API used by the bridge
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Client contains client and config information for a specific blockchain
type Client struct {
	ChainID       int
	RPCURL        string
	GasMultiplier float64
	backend       Backend
	decimals      *TTLCache[uint8]
	logger        logger.Logger
}

// Dial connects to the RPC endpoint of a chain and checks that it serves the expected chain id
func Dial(ctx context.Context, chainID int, rpcURL string, gasMultiplier float64, logger logger.Logger) (*Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("no RPC URL configured for chain %d", chainID)
	}

	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain %d: %v", chainID, err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	remoteID, err := rpc.ChainID(timeoutCtx)
	if err != nil {
		rpc.Close()
		return nil, fmt.Errorf("failed to get chain ID: %v", err)
	}
	if remoteID.Int64() != int64(chainID) {
		rpc.Close()
		return nil, fmt.Errorf("RPC URL for chain %d serves chain %s", chainID, remoteID)
	}

	client := NewWithBackend(chainID, rpc, logger)
	client.RPCURL = rpcURL
	if gasMultiplier > 0 {
		client.GasMultiplier = gasMultiplier
	}
	return client, nil
}

// NewWithBackend wraps an already connected backend
func NewWithBackend(chainID int, backend Backend, logger logger.Logger) *Client {
	return &Client{
		ChainID:       chainID,
		GasMultiplier: DefaultGasMultiplier,
		backend:       backend,
		decimals:      NewTTLCache[uint8](DefaultDecimalsTTL),
		logger:        logger,
	}
}

// Backend returns the underlying RPC backend
func (c *Client) Backend() Backend {
	return c.backend
}

// GasPrice returns the network's suggested gas price padded by the gas multiplier
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	gasPrice, err := c.backend.SuggestGasPrice(timeoutCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %v", err)
	}

	multiplied := new(big.Float).Mul(
		new(big.Float).SetInt(gasPrice),
		big.NewFloat(c.GasMultiplier),
	)
	finalGasPrice := new(big.Int)
	multiplied.Int(finalGasPrice)

	c.logger.DebugWithChain(c.ChainID, "Gas price %s wei (multiplier: %.2f)", finalGasPrice.String(), c.GasMultiplier)
	return finalGasPrice, nil
}

// TokenBalance returns the raw ERC20 balance of owner
func (c *Client) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	parsed, err := contracts.ERC20()
	if err != nil {
		return nil, err
	}
	data, err := parsed.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf: %v", err)
	}

	out, err := c.call(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance of %s: %v", token.Hex(), err)
	}

	values, err := parsed.Unpack("balanceOf", out)
	if err != nil || len(values) != 1 {
		return nil, fmt.Errorf("failed to unpack balanceOf: %v", err)
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type %T", values[0])
	}
	return balance, nil
}

// NativeBalance returns the gas token balance of owner in wei
func (c *Client) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	balance, err := c.backend.BalanceAt(timeoutCtx, owner, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get native balance: %v", err)
	}
	return balance, nil
}

// TokenDecimals returns the decimals of an ERC20 token, cached per address
func (c *Client) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	if d, ok := c.decimals.Get(token.Hex()); ok {
		return d, nil
	}

	parsed, err := contracts.ERC20()
	if err != nil {
		return 0, err
	}
	data, err := parsed.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("failed to pack decimals: %v", err)
	}
	out, err := c.call(ctx, token, data)
	if err != nil {
		return 0, fmt.Errorf("failed to get decimals of %s: %v", token.Hex(), err)
	}
	values, err := parsed.Unpack("decimals", out)
	if err != nil || len(values) != 1 {
		return 0, fmt.Errorf("failed to unpack decimals: %v", err)
	}
	d, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals result type %T", values[0])
	}

	c.decimals.Set(token.Hex(), d)
	return d, nil
}

// WaitForReceipt polls for the receipt of a transaction until it is mined or ctx ends
func (c *Client) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			c.logger.DebugWithChain(c.ChainID, "Receipt lookup for %s failed: %v", txHash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	return c.backend.CallContract(timeoutCtx, ethereum.CallMsg{To: &to, Data: data}, nil)
}
