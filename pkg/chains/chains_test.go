package chains

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	assert.Equal(t, []int{1, 10, 56, 137, 8453, 42161, 43114}, r.IDs())
	assert.Equal(t, "BASE", r.GetChainName(BaseChainID))
	assert.Equal(t, "", r.GetChainName(999))

	usdc, err := r.Token(BaseChainID, TokenTypeUSDC)
	require.NoError(t, err)
	assert.Equal(t, int32(6), usdc.Decimals)
	assert.Equal(t, common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), usdc.Address)

	bsc, err := r.Token(BSCChainID, TokenTypeUSDT)
	require.NoError(t, err)
	assert.Equal(t, int32(18), bsc.Decimals)

	_, err = r.Token(999, TokenTypeUSDC)
	assert.Error(t, err)

	assert.Equal(t, TokenTypeUSDC, r.GetTokenType(common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")))
	assert.Equal(t, TokenType(""), r.GetTokenType(common.HexToAddress("0x1234")))
}

func TestExplorerLinks(t *testing.T) {
	d, ok := DefaultRegistry().Chain(ArbitrumChainID)
	require.True(t, ok)

	assert.Equal(t, "https://arbiscan.io/tx/0xdead", d.ExplorerTx("0xdead"))
	assert.Equal(t, "", d.ExplorerTx(""))
	assert.Equal(t,
		"https://arbiscan.io/address/0x0000000000000000000000000000000000000001",
		d.ExplorerAddress(common.HexToAddress("0x1")),
	)
}

func TestMergeYAML(t *testing.T) {
	r := DefaultRegistry()

	data := []byte(`
chains:
  - id: 8453
    rpc_url: https://base.internal:8545
    tokens:
      usdc: {address: "0x1111111111111111111111111111111111111111", decimals: 6}
  - id: 324
    name: zksync
    explorer_tx_url: https://explorer.zksync.io/tx/{hash}
    tokens:
      USDC: {address: "0x2222222222222222222222222222222222222222", decimals: 6}
`)
	require.NoError(t, r.MergeYAML(data))

	base, ok := r.Chain(BaseChainID)
	require.True(t, ok)
	assert.Equal(t, "https://base.internal:8545", base.RPCURL)
	assert.Equal(t, "BASE", base.Name)
	assert.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), base.Tokens[TokenTypeUSDC].Address)
	assert.Contains(t, base.Tokens, TokenTypeUSDT, "tokens not in the file are kept")

	zk, ok := r.Chain(324)
	require.True(t, ok)
	assert.Equal(t, "ZKSYNC", zk.Name)
	assert.Equal(t, "zksync", zk.Slug)
	assert.Equal(t, "ETH", zk.NativeAsset.Symbol)
	assert.Equal(t, "https://explorer.zksync.io/tx/0xab", zk.ExplorerTx("0xab"))
}

func TestMergeYAMLRejectsInvalidEntries(t *testing.T) {
	tests := map[string]string{
		"bad_id":       "chains:\n  - id: 0\n",
		"bad_address":  "chains:\n  - id: 1\n    tokens:\n      USDC: {address: nope, decimals: 6}\n",
		"bad_decimals": "chains:\n  - id: 1\n    tokens:\n      USDC: {address: \"0x1111111111111111111111111111111111111111\", decimals: 99}\n",
		"bad_yaml":     "chains: [",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			require.Error(t, DefaultRegistry().MergeYAML([]byte(data)))
		})
	}
}

func TestLoadRegistryFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chains:\n  - id: 10\n    rpc_url: http://op.local\n"), 0o600))

	r := DefaultRegistry()
	require.NoError(t, r.LoadRegistryFile(path))
	op, _ := r.Chain(OptimismChainID)
	assert.Equal(t, "http://op.local", op.RPCURL)

	assert.Error(t, r.LoadRegistryFile(filepath.Join(t.TempDir(), "missing.yaml")))
}
