package chainswitch

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/bridgerunner/pkg/logger"
	"github.com/speedrun-hq/bridgerunner/pkg/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubWallet switches according to its fields
type stubWallet struct {
	mu        sync.Mutex
	active    int
	ignore    bool
	switchErr error
	requests  []int
}

func (w *stubWallet) Address() common.Address { return common.Address{} }

func (w *stubWallet) ActiveChainID(ctx context.Context) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active, nil
}

func (w *stubWallet) RequestChainSwitch(ctx context.Context, chainID int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.requests = append(w.requests, chainID)
	if w.switchErr != nil {
		return w.switchErr
	}
	if !w.ignore {
		w.active = chainID
	}
	return nil
}

func (w *stubWallet) SendTransaction(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	return common.Hash{}, errors.New("not supported")
}

// notifyingWallet applies the switch asynchronously and announces it
type notifyingWallet struct {
	stubWallet
	delay time.Duration
	subs  []func(int)
}

func (w *notifyingWallet) SubscribeChainChanged(fn func(int)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs = append(w.subs, fn)
	return func() {}
}

func (w *notifyingWallet) RequestChainSwitch(ctx context.Context, chainID int) error {
	w.mu.Lock()
	w.requests = append(w.requests, chainID)
	subs := append([]func(int){}, w.subs...)
	w.mu.Unlock()

	go func() {
		time.Sleep(w.delay)
		w.mu.Lock()
		w.active = chainID
		w.mu.Unlock()
		for _, fn := range subs {
			fn(chainID)
		}
	}()
	return nil
}

func TestEnsureChainAlreadyActive(t *testing.T) {
	w := &stubWallet{active: 8453}
	c := NewCoordinator(w, 10*time.Millisecond, &logger.EmptyLogger{})

	res, err := c.EnsureChain(context.Background(), 8453)
	require.NoError(t, err)
	assert.False(t, res.Switched)
	assert.Empty(t, w.requests)
}

func TestEnsureChainSwitches(t *testing.T) {
	w := &stubWallet{active: 1}
	c := NewCoordinator(w, 10*time.Millisecond, &logger.EmptyLogger{})

	res, err := c.EnsureChain(context.Background(), 8453)
	require.NoError(t, err)
	assert.True(t, res.Switched)
	assert.Equal(t, []int{8453}, w.requests)
}

func TestEnsureChainUnverified(t *testing.T) {
	w := &stubWallet{active: 1, ignore: true}
	c := NewCoordinator(w, 10*time.Millisecond, &logger.EmptyLogger{})

	_, err := c.EnsureChain(context.Background(), 8453)
	var switchErr *SwitchError
	require.ErrorAs(t, err, &switchErr)
	assert.Equal(t, ReasonUnverified, switchErr.Reason)
	assert.Equal(t, 1, switchErr.Observed)
	assert.Equal(t, []int{8453}, w.requests, "exactly one switch request")
}

func TestEnsureChainRejectedAndTechnical(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason Reason
	}{
		{"rejected", wallet.ErrUserRejected, ReasonRejected},
		{"wrapped rejection", errors.Join(errors.New("prompt closed"), wallet.ErrUserRejected), ReasonRejected},
		{"technical", errors.New("rpc unavailable"), ReasonTechnical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &stubWallet{active: 1, switchErr: tt.err}
			c := NewCoordinator(w, 10*time.Millisecond, &logger.EmptyLogger{})

			_, err := c.EnsureChain(context.Background(), 8453)
			var switchErr *SwitchError
			require.ErrorAs(t, err, &switchErr)
			assert.Equal(t, tt.reason, switchErr.Reason)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestEnsureChainWaitsForNotification(t *testing.T) {
	w := &notifyingWallet{stubWallet: stubWallet{active: 1}, delay: 20 * time.Millisecond}
	c := NewCoordinator(w, time.Second, &logger.EmptyLogger{})

	res, err := c.EnsureChain(context.Background(), 42161)
	require.NoError(t, err)
	assert.True(t, res.Switched)
	assert.Equal(t, 42161, res.ChainID)
}

func TestEnsureChainNotificationTimeout(t *testing.T) {
	w := &notifyingWallet{stubWallet: stubWallet{active: 1}, delay: time.Second}
	c := NewCoordinator(w, 20*time.Millisecond, &logger.EmptyLogger{})

	start := time.Now()
	_, err := c.EnsureChain(context.Background(), 42161)
	var switchErr *SwitchError
	require.ErrorAs(t, err, &switchErr)
	assert.Equal(t, ReasonUnverified, switchErr.Reason)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
