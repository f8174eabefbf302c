package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/bridgerunner/pkg/bridge"
	"github.com/speedrun-hq/bridgerunner/pkg/chains"
	"github.com/speedrun-hq/bridgerunner/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("PRIVATE_KEY", testKey)

	cfg, err := loadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, DefaultRelayAPIEndpoint, cfg.Relay.APIEndpoint)
	assert.Equal(t, DefaultFallbackURL, cfg.Relay.FallbackURL)
	assert.Equal(t, DefaultRelayRateLimit, cfg.Relay.RateLimit)

	assert.Equal(t, chains.BaseChainID, cfg.Session.SourceChain)
	assert.Equal(t, chains.ArbitrumChainID, cfg.Session.DestinationChain)
	assert.Equal(t, chains.TokenTypeUSDC, cfg.Session.Token)
	assert.Equal(t, bridge.PurposeBridge, cfg.Session.Purpose)
	assert.Equal(t, common.Address{}, cfg.Session.Recipient)
	assert.Equal(t, DefaultQuoteDebounce, cfg.Session.QuoteDebounce)
	assert.Equal(t, DefaultQuoteTTL, cfg.Session.QuoteTTL)
	assert.True(t, cfg.Session.WaitForReceipt)

	assert.Equal(t, DefaultSettlementPollInterval, cfg.Settlement.PollInterval)
	assert.Equal(t, DefaultSettlementMaxAttempts, cfg.Settlement.MaxAttempts)
	assert.Equal(t, DefaultSwitchVerifyTimeout, cfg.SwitchVerifyTimeout)
	assert.Equal(t, DefaultMetricsPort, cfg.MetricsPort)
	assert.Empty(t, cfg.NATSURL)

	assert.Equal(t, CircuitBreakerConfig{
		Enabled:        true,
		Threshold:      DefaultCircuitBreakerThreshold,
		WindowDuration: DefaultCircuitBreakerWindow,
		ResetTimeout:   DefaultCircuitBreakerReset,
	}, cfg.CircuitBreaker)
	assert.Equal(t, LoggerConfig{Level: logger.InfoLevel, Coloring: true}, cfg.LoggerConfig)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("PRIVATE_KEY", testKey)
	t.Setenv("BRIDGE_SOURCE_CHAIN", "arbitrum")
	t.Setenv("BRIDGE_DESTINATION_CHAIN", "10")
	t.Setenv("BRIDGE_TOKEN", "usdt")
	t.Setenv("BRIDGE_PURPOSE", "gas_swap")
	t.Setenv("BRIDGE_AMOUNT", "12.5")
	t.Setenv("BRIDGE_RECIPIENT", "0x00000000000000000000000000000000000000AA")
	t.Setenv("BRIDGE_WAIT_FOR_RECEIPT", "false")
	t.Setenv("QUOTE_DEBOUNCE", "250ms")
	t.Setenv("SETTLEMENT_MAX_ATTEMPTS", "10")
	t.Setenv("RELAY_RATE_LIMIT", "0.5")
	t.Setenv("OPTIMISM_RPC_URL", "https://optimism.example.org")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_COLORING", "false")

	cfg, err := loadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, chains.ArbitrumChainID, cfg.Session.SourceChain)
	assert.Equal(t, chains.OptimismChainID, cfg.Session.DestinationChain)
	assert.Equal(t, chains.TokenTypeUSDT, cfg.Session.Token)
	assert.Equal(t, bridge.PurposeGasSwap, cfg.Session.Purpose)
	assert.Equal(t, "12.5", cfg.Session.Amount)
	assert.Equal(t, common.HexToAddress("0xAA"), cfg.Session.Recipient)
	assert.False(t, cfg.Session.WaitForReceipt)
	assert.Equal(t, 250*time.Millisecond, cfg.Session.QuoteDebounce)
	assert.Equal(t, 10, cfg.Settlement.MaxAttempts)
	assert.Equal(t, 0.5, cfg.Relay.RateLimit)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, logger.DebugLevel, cfg.LoggerConfig.Level)
	assert.False(t, cfg.LoggerConfig.Coloring)

	optimism, ok := cfg.Registry.Chain(chains.OptimismChainID)
	require.True(t, ok)
	assert.Equal(t, "https://optimism.example.org", optimism.RPCURL)
}

func TestLoadFromEnvErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing private key", env: map[string]string{"PRIVATE_KEY": ""}},
		{name: "same chains", env: map[string]string{"BRIDGE_SOURCE_CHAIN": "base", "BRIDGE_DESTINATION_CHAIN": "8453"}},
		{name: "unknown chain", env: map[string]string{"BRIDGE_SOURCE_CHAIN": "solana"}},
		{name: "unsupported chain id", env: map[string]string{"BRIDGE_DESTINATION_CHAIN": "999"}},
		{name: "bad token", env: map[string]string{"BRIDGE_TOKEN": "DAI"}},
		{name: "bad purpose", env: map[string]string{"BRIDGE_PURPOSE": "swap"}},
		{name: "bad recipient", env: map[string]string{"BRIDGE_RECIPIENT": "0x1234"}},
		{name: "bad duration", env: map[string]string{"QUOTE_TTL": "soon"}},
		{name: "negative duration", env: map[string]string{"SETTLEMENT_POLL_INTERVAL": "-1s"}},
		{name: "zero attempts", env: map[string]string{"SETTLEMENT_MAX_ATTEMPTS": "0"}},
		{name: "bad rate", env: map[string]string{"RELAY_RATE_LIMIT": "fast"}},
		{name: "bad bool", env: map[string]string{"CIRCUIT_BREAKER_ENABLED": "yes"}},
		{name: "bad port", env: map[string]string{"METRICS_PORT": "http"}},
		{name: "bad endpoint", env: map[string]string{"RELAY_API_ENDPOINT": "relay"}},
		{name: "bad rpc url", env: map[string]string{"BASE_RPC_URL": "base"}},
		{name: "bad log level", env: map[string]string{"LOG_LEVEL": "verbose"}},
		{name: "missing chains file", env: map[string]string{"CHAINS_FILE": "/nonexistent/chains.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PRIVATE_KEY", testKey)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := loadFromEnv()
			assert.Error(t, err)
		})
	}
}

func TestGetEnvRegistryWithChainsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	data := []byte(`chains:
  - id: 8453
    rpc_url: https://base.example.org
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	t.Setenv("CHAINS_FILE", path)

	registry, err := GetEnvRegistry()
	require.NoError(t, err)

	base, ok := registry.Chain(chains.BaseChainID)
	require.True(t, ok)
	assert.Equal(t, "https://base.example.org", base.RPCURL)

	t.Setenv("BASE_RPC_URL", "https://override.example.org")
	registry, err = GetEnvRegistry()
	require.NoError(t, err)
	base, _ = registry.Chain(chains.BaseChainID)
	assert.Equal(t, "https://override.example.org", base.RPCURL)
}
