package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/speedrun-hq/bridgerunner/pkg/chainclient"
	"github.com/speedrun-hq/bridgerunner/pkg/logger"
)

// gasLimitBufferPercent pads estimated gas limits
const gasLimitBufferPercent = 20

// TxRequest describes a transaction awaiting the owner's approval
type TxRequest struct {
	ChainID int
	To      common.Address
	Data    []byte
	Value   *big.Int
}

// Approver decides whether a transaction may be signed. Returning ErrUserRejected
// declines it.
type Approver func(ctx context.Context, req TxRequest) error

// KeyedWallet signs with a local private key. Its active chain is a local
// selection among the chains it has clients for.
type KeyedWallet struct {
	key      *ecdsa.PrivateKey
	address  common.Address
	clients  map[int]*chainclient.Client
	nonces   *chainclient.NonceManager
	approver Approver
	logger   logger.Logger

	mu          sync.Mutex
	active      int
	subscribers map[int]func(int)
	nextSubID   int
	sentNonces  map[common.Hash]uint64
}

// NewKeyedWallet creates a wallet from a hex private key, active on initialChain
func NewKeyedWallet(privateKeyHex string, clients []*chainclient.Client, initialChain int, logger logger.Logger) (*KeyedWallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %v", err)
	}

	byChain := make(map[int]*chainclient.Client, len(clients))
	for _, c := range clients {
		byChain[c.ChainID] = c
	}
	if _, ok := byChain[initialChain]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChain, initialChain)
	}

	return &KeyedWallet{
		key:         key,
		address:     crypto.PubkeyToAddress(key.PublicKey),
		clients:     byChain,
		nonces:      chainclient.NewNonceManager(logger),
		logger:      logger,
		active:      initialChain,
		subscribers: make(map[int]func(int)),
		sentNonces:  make(map[common.Hash]uint64),
	}, nil
}

// SetApprover installs a hook consulted before every signature
func (w *KeyedWallet) SetApprover(approver Approver) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.approver = approver
}

// Address returns the signing address
func (w *KeyedWallet) Address() common.Address {
	return w.address
}

// ActiveChainID returns the currently selected chain
func (w *KeyedWallet) ActiveChainID(ctx context.Context) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active, nil
}

// RequestChainSwitch selects another chain and notifies subscribers
func (w *KeyedWallet) RequestChainSwitch(ctx context.Context, chainID int) error {
	if _, ok := w.clients[chainID]; !ok {
		return fmt.Errorf("%w: %d", ErrUnsupportedChain, chainID)
	}

	w.mu.Lock()
	changed := w.active != chainID
	w.active = chainID
	subs := make([]func(int), 0, len(w.subscribers))
	for _, fn := range w.subscribers {
		subs = append(subs, fn)
	}
	w.mu.Unlock()

	if changed {
		w.logger.InfoWithChain(chainID, "Wallet switched to chain %d", chainID)
		for _, fn := range subs {
			fn(chainID)
		}
	}
	return nil
}

// SubscribeChainChanged registers fn for active chain changes
func (w *KeyedWallet) SubscribeChainChanged(fn func(chainID int)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextSubID
	w.nextSubID++
	w.subscribers[id] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.subscribers, id)
	}
}

// SendTransaction signs and broadcasts a transaction on the active chain
func (w *KeyedWallet) SendTransaction(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	if value == nil {
		value = big.NewInt(0)
	}

	w.mu.Lock()
	chainID := w.active
	approver := w.approver
	w.mu.Unlock()

	client, ok := w.clients[chainID]
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: %d", ErrUnsupportedChain, chainID)
	}

	if approver != nil {
		if err := approver(ctx, TxRequest{ChainID: chainID, To: to, Data: data, Value: value}); err != nil {
			if errors.Is(err, ErrUserRejected) {
				return common.Hash{}, err
			}
			return common.Hash{}, fmt.Errorf("%w: %v", ErrUserRejected, err)
		}
	}

	backend := client.Backend()
	gasPrice, err := client.GasPrice(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	gas, err := backend.EstimateGas(ctx, ethereum.CallMsg{From: w.address, To: &to, Data: data, Value: value})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate gas: %v", err)
	}
	gas += gas * gasLimitBufferPercent / 100

	nonce, err := w.nonces.GetNonce(ctx, chainID, backend, w.address)
	if err != nil {
		return common.Hash{}, err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(int64(chainID))), w.key)
	if err != nil {
		w.nonces.ReleaseNonce(chainID, nonce)
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %v", err)
	}

	if err := backend.SendTransaction(ctx, signed); err != nil {
		w.nonces.ReleaseNonce(chainID, nonce)
		return common.Hash{}, fmt.Errorf("failed to send transaction: %v", err)
	}

	w.nonces.TrackTransaction(chainID, signed.Hash(), nonce)
	w.mu.Lock()
	w.sentNonces[signed.Hash()] = nonce
	w.mu.Unlock()

	w.logger.InfoWithChain(chainID, "Transaction sent: %s (nonce %d, gas %d)", signed.Hash().Hex(), nonce, gas)
	return signed.Hash(), nil
}

// WaitForReceipt waits until a transaction sent by this wallet is mined
func (w *KeyedWallet) WaitForReceipt(ctx context.Context, chainID int, txHash common.Hash) (bool, error) {
	client, ok := w.clients[chainID]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrUnsupportedChain, chainID)
	}

	receipt, err := client.WaitForReceipt(ctx, txHash)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	nonce, tracked := w.sentNonces[txHash]
	delete(w.sentNonces, txHash)
	w.mu.Unlock()
	if tracked {
		w.nonces.MarkTransactionConfirmed(chainID, nonce)
	}

	return receipt.Status == types.ReceiptStatusSuccessful, nil
}
