// Package wallet defines the capabilities the bridge consumes from a wallet and
// a private-key implementation of them.
package wallet

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUserRejected is returned when the wallet owner declines a request
var ErrUserRejected = errors.New("request rejected by user")

// ErrUnsupportedChain is returned when the wallet cannot operate on a chain
var ErrUnsupportedChain = errors.New("chain not supported by wallet")

// Wallet is the signing capability injected into the orchestrator
type Wallet interface {
	Address() common.Address
	ActiveChainID(ctx context.Context) (int, error)
	RequestChainSwitch(ctx context.Context, chainID int) error
	SendTransaction(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error)
}

// ChainChangeNotifier is implemented by wallets that push active chain changes.
// The returned function cancels the subscription.
type ChainChangeNotifier interface {
	SubscribeChainChanged(fn func(chainID int)) (unsubscribe func())
}

// ReceiptWaiter is implemented by wallets that can wait for a transaction to be mined.
// It reports whether the transaction succeeded.
type ReceiptWaiter interface {
	WaitForReceipt(ctx context.Context, chainID int, txHash common.Hash) (bool, error)
}

// BalanceObserver reads token balances as decimal strings in whole token units
type BalanceObserver interface {
	TokenBalance(ctx context.Context, chainID int, token, owner common.Address) (string, error)
}
