package chainclient

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/speedrun-hq/bridgerunner/pkg/contracts"
	"github.com/speedrun-hq/bridgerunner/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu        sync.Mutex
	balances  map[common.Address]*big.Int
	decimals  uint8
	calls     map[string]int
	nonce     uint64
	gasPrice  *big.Int
	receipts  map[common.Hash]*types.Receipt
	sent      []*types.Transaction
	lastCalls []ethereum.CallMsg
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		balances: make(map[common.Address]*big.Int),
		decimals: 6,
		calls:    make(map[string]int),
		gasPrice: big.NewInt(10_000_000_000),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (f *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(8453), nil
}

func (f *fakeBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return big.NewInt(2_000_000_000_000_000_000), nil
}

func (f *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCalls = append(f.lastCalls, call)

	parsed, err := contracts.ERC20()
	if err != nil {
		return nil, err
	}
	method, err := parsed.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	f.calls[method.Name]++

	switch method.Name {
	case "balanceOf":
		args, err := method.Inputs.Unpack(call.Data[4:])
		if err != nil {
			return nil, err
		}
		balance, ok := f.balances[args[0].(common.Address)]
		if !ok {
			balance = big.NewInt(0)
		}
		return method.Outputs.Pack(balance)
	case "decimals":
		return method.Outputs.Pack(f.decimals)
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 50_000, nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[txHash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

var (
	usdc  = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	owner = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func TestTokenBalance(t *testing.T) {
	backend := newFakeBackend()
	backend.balances[owner] = big.NewInt(100_000_000)
	client := NewWithBackend(8453, backend, &logger.EmptyLogger{})

	balance, err := client.TokenBalance(context.Background(), usdc, owner)
	require.NoError(t, err)
	assert.Equal(t, "100000000", balance.String())

	require.Len(t, backend.lastCalls, 1)
	assert.Equal(t, usdc, *backend.lastCalls[0].To)

	other, err := client.TokenBalance(context.Background(), usdc, common.HexToAddress("0x2222222222222222222222222222222222222222"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), other.Int64())
}

func TestTokenDecimalsCached(t *testing.T) {
	backend := newFakeBackend()
	client := NewWithBackend(8453, backend, &logger.EmptyLogger{})

	for i := 0; i < 3; i++ {
		d, err := client.TokenDecimals(context.Background(), usdc)
		require.NoError(t, err)
		assert.Equal(t, uint8(6), d)
	}
	assert.Equal(t, 1, backend.calls["decimals"])
}

func TestGasPriceMultiplier(t *testing.T) {
	backend := newFakeBackend()
	client := NewWithBackend(8453, backend, &logger.EmptyLogger{})

	price, err := client.GasPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "11000000000", price.String())

	client.GasMultiplier = 2
	price, err = client.GasPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "20000000000", price.String())
}

func TestWaitForReceipt(t *testing.T) {
	backend := newFakeBackend()
	client := NewWithBackend(8453, backend, &logger.EmptyLogger{})
	hash := common.HexToHash("0x01")
	backend.receipts[hash] = &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: hash}

	receipt, err := client.WaitForReceipt(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.WaitForReceipt(ctx, common.HexToHash("0x02"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTTLCache(t *testing.T) {
	cache := NewTTLCache[uint8](time.Minute)
	current := time.Unix(1_700_000_000, 0)
	cache.now = func() time.Time { return current }

	cache.Set("usdc", 6)
	d, ok := cache.Get("usdc")
	assert.True(t, ok)
	assert.Equal(t, uint8(6), d)

	_, ok = cache.Get("usdt")
	assert.False(t, ok)

	current = current.Add(2 * time.Minute)
	_, ok = cache.Get("usdc")
	assert.False(t, ok)

	cache.Clear()
	assert.Equal(t, 0, cache.Len())
}

func TestNonceManager(t *testing.T) {
	backend := newFakeBackend()
	backend.nonce = 7
	nm := NewNonceManager(&logger.EmptyLogger{})
	ctx := context.Background()

	n, err := nm.GetNonce(ctx, 8453, backend, owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), n)
	nm.TrackTransaction(8453, common.HexToHash("0xaa"), n)

	n2, err := nm.GetNonce(ctx, 8453, backend, owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), n2, "pending transactions keep the local counter ahead of the node")

	assert.True(t, nm.ReleaseNonce(8453, n2))
	assert.Equal(t, 1, nm.PendingCount(8453))

	assert.True(t, nm.MarkTransactionConfirmed(8453, n))
	assert.False(t, nm.MarkTransactionConfirmed(8453, n))
	assert.Equal(t, 0, nm.PendingCount(8453))

	backend.nonce = 8
	n3, err := nm.GetNonce(ctx, 8453, backend, owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), n3)

	other, err := nm.GetNonce(ctx, 42161, backend, owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), other, "chains are tracked independently")
}
