package chainclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/bridgerunner/pkg/logger"
)

const nonceResyncInterval = 5 * time.Minute

// NonceSource is the part of a backend needed to sync nonces
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// pendingTx is a broadcast transaction awaiting its receipt
type pendingTx struct {
	hash      common.Hash
	createdAt time.Time
}

// NonceManager hands out nonces per chain for a single sending account
type NonceManager struct {
	mu     sync.Mutex
	chains map[int]*chainNonceData
	now    func() time.Time
	logger logger.Logger
}

type chainNonceData struct {
	mu           sync.Mutex
	currentNonce uint64
	pendingTxs   map[uint64]pendingTx
	lastSync     time.Time
}

// NewNonceManager creates a new nonce manager
func NewNonceManager(logger logger.Logger) *NonceManager {
	return &NonceManager{
		chains: make(map[int]*chainNonceData),
		now:    time.Now,
		logger: logger,
	}
}

func (nm *NonceManager) chain(chainID int) *chainNonceData {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	data, ok := nm.chains[chainID]
	if !ok {
		data = &chainNonceData{pendingTxs: make(map[uint64]pendingTx)}
		nm.chains[chainID] = data
	}
	return data
}

// GetNonce reserves and returns the next available nonce
func (nm *NonceManager) GetNonce(ctx context.Context, chainID int, source NonceSource, address common.Address) (uint64, error) {
	data := nm.chain(chainID)
	data.mu.Lock()
	defer data.mu.Unlock()

	now := nm.now()
	if data.lastSync.IsZero() || now.Sub(data.lastSync) > nonceResyncInterval || len(data.pendingTxs) == 0 {
		nonce, err := source.PendingNonceAt(ctx, address)
		if err != nil {
			return 0, fmt.Errorf("failed to get pending nonce: %v", err)
		}
		if nonce > data.currentNonce || len(data.pendingTxs) == 0 {
			if nonce != data.currentNonce {
				nm.logger.DebugWithChain(chainID, "Updating nonce: %d -> %d", data.currentNonce, nonce)
			}
			data.currentNonce = nonce
		}
		data.lastSync = now
	}

	nonce := data.currentNonce
	data.currentNonce++
	return nonce, nil
}

// TrackTransaction records a broadcast transaction under its nonce
func (nm *NonceManager) TrackTransaction(chainID int, txHash common.Hash, nonce uint64) {
	data := nm.chain(chainID)
	data.mu.Lock()
	defer data.mu.Unlock()

	data.pendingTxs[nonce] = pendingTx{hash: txHash, createdAt: nm.now()}
	nm.logger.DebugWithChain(chainID, "Tracking transaction with nonce %d: %s", nonce, txHash.Hex())
}

// MarkTransactionConfirmed removes a mined transaction from the pending set
func (nm *NonceManager) MarkTransactionConfirmed(chainID int, nonce uint64) bool {
	data := nm.chain(chainID)
	data.mu.Lock()
	defer data.mu.Unlock()

	if _, exists := data.pendingTxs[nonce]; !exists {
		return false
	}
	delete(data.pendingTxs, nonce)
	return true
}

// ReleaseNonce gives back a nonce whose transaction never reached the network.
// The nonce is only reused if nothing above it has been handed out since.
func (nm *NonceManager) ReleaseNonce(chainID int, nonce uint64) bool {
	data := nm.chain(chainID)
	data.mu.Lock()
	defer data.mu.Unlock()

	delete(data.pendingTxs, nonce)
	if data.currentNonce == nonce+1 {
		data.currentNonce = nonce
		nm.logger.DebugWithChain(chainID, "Reusing nonce %d", nonce)
		return true
	}
	return false
}

// PendingCount returns the number of tracked transactions for a chain
func (nm *NonceManager) PendingCount(chainID int) int {
	data := nm.chain(chainID)
	data.mu.Lock()
	defer data.mu.Unlock()
	return len(data.pendingTxs)
}
