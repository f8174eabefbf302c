package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/bridgerunner/pkg/bridge"
	"github.com/speedrun-hq/bridgerunner/pkg/chains"
	"github.com/speedrun-hq/bridgerunner/pkg/fallback"
	"github.com/speedrun-hq/bridgerunner/pkg/logger"
	"github.com/speedrun-hq/bridgerunner/pkg/relayclient"
	"github.com/speedrun-hq/bridgerunner/pkg/settlement"
)

const (
	// DefaultRelayAPIEndpoint is the relay network's public API
	DefaultRelayAPIEndpoint = "https://api.relay.link"

	// DefaultFallbackURL is the bridge site offered when in-app bridging fails
	DefaultFallbackURL = fallback.DefaultBaseURL

	// DefaultRelayRateLimit caps requests per second to the relay API
	DefaultRelayRateLimit = relayclient.DefaultRequestsPerSecond

	// DefaultQuoteDebounce delays quote requests while the amount is edited
	DefaultQuoteDebounce = bridge.DefaultDebounce

	// DefaultQuoteTTL is how long a quote may be submitted
	DefaultQuoteTTL = bridge.DefaultQuoteTTL

	// DefaultSettlementPollInterval is the delay before each settlement status check
	DefaultSettlementPollInterval = settlement.DefaultInterval

	// DefaultSettlementMaxAttempts bounds the settlement status checks per transfer
	DefaultSettlementMaxAttempts = settlement.DefaultMaxAttempts

	// DefaultSwitchVerifyTimeout bounds the wait for a chain switch to take effect
	DefaultSwitchVerifyTimeout = 5 * time.Second

	// DefaultSourceChain is where funds are bridged from
	DefaultSourceChain = chains.BaseChainID

	// DefaultDestinationChain is where funds are bridged to
	DefaultDestinationChain = chains.ArbitrumChainID

	// DefaultToken is the bridged stablecoin
	DefaultToken = chains.TokenTypeUSDC

	// DefaultMetricsPort defines the default port for the metrics server
	DefaultMetricsPort = "8080"

	// DefaultCircuitBreakerEnabled defines whether the circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker
	DefaultCircuitBreakerWindow = 5 * time.Minute

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker
	DefaultCircuitBreakerReset = 15 * time.Minute

	// DefaultLogLevel is used when LOG_LEVEL is not set
	DefaultLogLevel = logger.InfoLevel

	// DefaultLogColoring enables colored chain tags
	DefaultLogColoring = true
)

// GetEnvRelayAPIEndpoint returns the relay API endpoint from environment variables
func GetEnvRelayAPIEndpoint() (string, error) {
	return getEnvURL("RELAY_API_ENDPOINT", DefaultRelayAPIEndpoint)
}

// GetEnvFallbackURL returns the base URL of fallback bridge links
func GetEnvFallbackURL() (string, error) {
	return getEnvURL("RELAY_FALLBACK_URL", DefaultFallbackURL)
}

// GetEnvRelayRateLimit returns the relay request rate limit in requests per second
func GetEnvRelayRateLimit() (float64, error) {
	value := os.Getenv("RELAY_RATE_LIMIT")
	if value == "" {
		return DefaultRelayRateLimit, nil
	}

	limit, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid RELAY_RATE_LIMIT value: %s, must be a number", value)
	}
	if limit <= 0 {
		return 0, fmt.Errorf("RELAY_RATE_LIMIT must be greater than 0")
	}
	return limit, nil
}

// GetEnvQuoteDebounce returns the quote debounce delay
func GetEnvQuoteDebounce() (time.Duration, error) {
	return getEnvDuration("QUOTE_DEBOUNCE", DefaultQuoteDebounce)
}

// GetEnvQuoteTTL returns how long a quote stays valid
func GetEnvQuoteTTL() (time.Duration, error) {
	return getEnvDuration("QUOTE_TTL", DefaultQuoteTTL)
}

// GetEnvSettlementPollInterval returns the settlement polling interval
func GetEnvSettlementPollInterval() (time.Duration, error) {
	return getEnvDuration("SETTLEMENT_POLL_INTERVAL", DefaultSettlementPollInterval)
}

// GetEnvSettlementMaxAttempts returns the settlement polling budget
func GetEnvSettlementMaxAttempts() (int, error) {
	return getEnvPositiveInt("SETTLEMENT_MAX_ATTEMPTS", DefaultSettlementMaxAttempts)
}

// GetEnvSwitchVerifyTimeout returns the chain switch verification timeout
func GetEnvSwitchVerifyTimeout() (time.Duration, error) {
	return getEnvDuration("SWITCH_VERIFY_TIMEOUT", DefaultSwitchVerifyTimeout)
}

// GetEnvChain resolves a chain given by id, name or slug in key
func GetEnvChain(key string, defaultChain int, registry *chains.Registry) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultChain, nil
	}

	if id, err := strconv.Atoi(value); err == nil {
		if _, ok := registry.Chain(id); !ok {
			return 0, fmt.Errorf("invalid %s value: chain %d is not supported", key, id)
		}
		return id, nil
	}

	for _, id := range registry.IDs() {
		d, _ := registry.Chain(id)
		if strings.EqualFold(d.Name, value) || strings.EqualFold(d.Slug, value) {
			return id, nil
		}
	}
	return 0, fmt.Errorf("invalid %s value: %s is not a supported chain", key, value)
}

// GetEnvToken returns the bridged token symbol
func GetEnvToken() (chains.TokenType, error) {
	value := strings.ToUpper(strings.TrimSpace(os.Getenv("BRIDGE_TOKEN")))
	switch chains.TokenType(value) {
	case "":
		return DefaultToken, nil
	case chains.TokenTypeUSDC, chains.TokenTypeUSDT:
		return chains.TokenType(value), nil
	}
	return "", fmt.Errorf("invalid BRIDGE_TOKEN value: %s, must be 'USDC' or 'USDT'", value)
}

// GetEnvPurpose returns the session purpose
func GetEnvPurpose() (bridge.Purpose, error) {
	purpose, err := bridge.ParsePurpose(os.Getenv("BRIDGE_PURPOSE"))
	if err != nil {
		return "", fmt.Errorf("invalid BRIDGE_PURPOSE value: %v", err)
	}
	return purpose, nil
}

// GetEnvRecipient returns the destination address, or the zero address when unset
func GetEnvRecipient() (common.Address, error) {
	value := os.Getenv("BRIDGE_RECIPIENT")
	if value == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid BRIDGE_RECIPIENT value: %s, must be a valid Ethereum address", value)
	}
	return common.HexToAddress(value), nil
}

// GetEnvWaitForReceipt returns whether the deposit receipt is awaited before polling
func GetEnvWaitForReceipt() (bool, error) {
	return getEnvBool("BRIDGE_WAIT_FOR_RECEIPT", true)
}

// GetEnvMetricsPort returns the metrics server port from environment variables
func GetEnvMetricsPort() (string, error) {
	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		return DefaultMetricsPort, nil
	}

	// Validate port format
	if _, err := strconv.Atoi(metricsPort); err != nil {
		return "", fmt.Errorf("invalid METRICS_PORT value: %s, must be a valid integer", metricsPort)
	}
	return metricsPort, nil
}

// GetEnvCircuitBreakerEnabled returns whether the circuit breaker is enabled from environment variables
func GetEnvCircuitBreakerEnabled() (bool, error) {
	return getEnvBool("CIRCUIT_BREAKER_ENABLED", DefaultCircuitBreakerEnabled)
}

// GetEnvCircuitBreakerThreshold returns the circuit breaker threshold from environment variables
func GetEnvCircuitBreakerThreshold() (int, error) {
	return getEnvPositiveInt("CIRCUIT_BREAKER_THRESHOLD", DefaultCircuitBreakerThreshold)
}

// GetEnvCircuitBreakerWindow returns the circuit breaker window duration from environment variables
func GetEnvCircuitBreakerWindow() (time.Duration, error) {
	return getEnvDuration("CIRCUIT_BREAKER_WINDOW", DefaultCircuitBreakerWindow)
}

// GetEnvCircuitBreakerReset returns the circuit breaker reset timeout from environment variables
func GetEnvCircuitBreakerReset() (time.Duration, error) {
	return getEnvDuration("CIRCUIT_BREAKER_RESET", DefaultCircuitBreakerReset)
}

// GetEnvNATSURL returns the NATS server URL; empty disables snapshot publishing
func GetEnvNATSURL() (string, error) {
	return getEnvURL("NATS_URL", "")
}

// GetEnvOTLPEndpoint returns the trace collector endpoint; empty disables tracing
func GetEnvOTLPEndpoint() string {
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
}

// GetEnvLogLevel returns the minimum log level
func GetEnvLogLevel() (logger.Level, error) {
	value := os.Getenv("LOG_LEVEL")
	if value == "" {
		return DefaultLogLevel, nil
	}
	level, err := logger.ParseLevel(value)
	if err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL value: %s, must be one of debug, info, notice, error", value)
	}
	return level, nil
}

// GetEnvLogColoring returns whether log output is colored
func GetEnvLogColoring() (bool, error) {
	return getEnvBool("LOG_COLORING", DefaultLogColoring)
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be a valid duration string", key, value)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return parsed, nil
}

func getEnvPositiveInt(key string, def int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be an integer", key, value)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return n, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	switch value := os.Getenv(key); value {
	case "":
		return def, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s value: %s, must be 'true' or 'false'", key, value)
	}
}

func getEnvURL(key, def string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}

	// Validate URL format
	if _, err := url.ParseRequestURI(value); err != nil {
		return "", fmt.Errorf("invalid %s value: %s, must be a valid URL", key, value)
	}
	return value, nil
}
