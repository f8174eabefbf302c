package chains

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals int32
		expected string
		isErr    bool
	}{
		{name: "whole_usdc", amount: "25", decimals: 6, expected: "25000000"},
		{name: "fractional_usdc", amount: "0.5", decimals: 6, expected: "500000"},
		{name: "smallest_unit", amount: "0.000001", decimals: 6, expected: "1"},
		{name: "trailing_zeros_beyond_precision", amount: "1.5000000", decimals: 6, expected: "1500000"},
		{name: "bsc_18_decimals", amount: "1000", decimals: 18, expected: "1000000000000000000000"},
		{name: "surrounding_whitespace", amount: " 7 ", decimals: 6, expected: "7000000"},
		{name: "zero_is_representable", amount: "0", decimals: 6, expected: "0"},
		{name: "too_precise", amount: "0.0000001", decimals: 6, isErr: true},
		{name: "negative", amount: "-1", decimals: 6, isErr: true},
		{name: "empty", amount: "", decimals: 6, isErr: true},
		{name: "garbage", amount: "12abc", decimals: 6, isErr: true},
		{name: "scientific_notation", amount: "1e3", decimals: 6, isErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ToBaseUnits(tt.amount, tt.decimals)
			if tt.isErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, result.String())
		})
	}
}

func TestParsePositiveAmount(t *testing.T) {
	_, err := ParsePositiveAmount("0", 6)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ParsePositiveAmount("0.00", 6)
	require.ErrorIs(t, err, ErrInvalidAmount)

	v, err := ParsePositiveAmount("10", 6)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10_000_000), v)
}

func TestFormatBaseUnits(t *testing.T) {
	require.Equal(t, "25", FormatBaseUnits(big.NewInt(25_000_000), 6))
	require.Equal(t, "0.5", FormatBaseUnits(big.NewInt(500_000), 6))
	require.Equal(t, "0", FormatBaseUnits(nil, 6))
}

func TestGetStandardizedAmount(t *testing.T) {
	registry := DefaultRegistry()

	// Helper function for creating big.Int from string
	setString := func(s string) *big.Int {
		bigInt, ok := new(big.Int).SetString(s, 10)
		if !ok {
			t.Fatalf("Failed to set string %s to big.Int", s)
		}
		return bigInt
	}

	tests := []struct {
		name       string
		baseAmount *big.Int
		chainID    int
		tokenType  TokenType
		expected   float64
		isErr      bool
	}{
		{name: "USDC_Ethereum_1_token", baseAmount: big.NewInt(1000000), chainID: EthereumChainID, tokenType: TokenTypeUSDC, expected: 1.0},
		{name: "USDC_Base_half_token", baseAmount: big.NewInt(500000), chainID: BaseChainID, tokenType: TokenTypeUSDC, expected: 0.5},
		{name: "USDC_BSC_1_token", baseAmount: setString("1000000000000000000"), chainID: BSCChainID, tokenType: TokenTypeUSDC, expected: 1.0},
		{name: "USDT_Arbitrum_250_tokens", baseAmount: big.NewInt(250000000), chainID: ArbitrumChainID, tokenType: TokenTypeUSDT, expected: 250.0},
		{name: "USDT_BSC_small_amount", baseAmount: setString("100000000000000000"), chainID: BSCChainID, tokenType: TokenTypeUSDT, expected: 0.1},
		{name: "nil_amount", baseAmount: nil, chainID: EthereumChainID, tokenType: TokenTypeUSDC, isErr: true},
		{name: "zero_amount", baseAmount: big.NewInt(0), chainID: EthereumChainID, tokenType: TokenTypeUSDC, isErr: true},
		{name: "negative_amount", baseAmount: big.NewInt(-1000000), chainID: EthereumChainID, tokenType: TokenTypeUSDC, isErr: true},
		{name: "unknown_chain", baseAmount: big.NewInt(1), chainID: 999, tokenType: TokenTypeUSDC, isErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := registry.GetStandardizedAmount(tt.baseAmount, tt.chainID, tt.tokenType)
			if tt.isErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.InDelta(t, tt.expected, result, 1e-9)
		})
	}
}
