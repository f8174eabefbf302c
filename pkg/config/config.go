package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/speedrun-hq/bridgerunner/pkg/bridge"
	"github.com/speedrun-hq/bridgerunner/pkg/chains"
	"github.com/speedrun-hq/bridgerunner/pkg/logger"
)

// Config holds the configuration for a bridge session
type Config struct {
	Registry   *chains.Registry
	PrivateKey string

	Relay      RelayConfig
	Session    SessionConfig
	Settlement SettlementConfig

	SwitchVerifyTimeout time.Duration
	MetricsPort         string
	MetricsAPIKey       string
	NATSURL             string
	OTLPEndpoint        string
	CircuitBreaker      CircuitBreakerConfig
	LoggerConfig        LoggerConfig
}

// RelayConfig holds the relay API settings
type RelayConfig struct {
	APIEndpoint string
	FallbackURL string
	RateLimit   float64
}

// SessionConfig describes what the session bridges
type SessionConfig struct {
	SourceChain      int
	DestinationChain int
	Token            chains.TokenType
	Purpose          bridge.Purpose
	Recipient        common.Address
	// Amount is submitted once at startup when set
	Amount         string
	QuoteDebounce  time.Duration
	QuoteTTL       time.Duration
	WaitForReceipt bool
}

// SettlementConfig holds the settlement polling settings
type SettlementConfig struct {
	PollInterval time.Duration
	MaxAttempts  int
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}
	return loadFromEnv()
}

func loadFromEnv() (*Config, error) {
	registry, err := GetEnvRegistry()
	if err != nil {
		return nil, err
	}

	relay, err := loadRelayConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig(registry)
	if err != nil {
		return nil, err
	}

	pollInterval, err := GetEnvSettlementPollInterval()
	if err != nil {
		return nil, err
	}

	maxAttempts, err := GetEnvSettlementMaxAttempts()
	if err != nil {
		return nil, err
	}

	switchTimeout, err := GetEnvSwitchVerifyTimeout()
	if err != nil {
		return nil, err
	}

	metricsPort, err := GetEnvMetricsPort()
	if err != nil {
		return nil, err
	}

	natsURL, err := GetEnvNATSURL()
	if err != nil {
		return nil, err
	}

	cb, err := loadCircuitBreakerConfig()
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	logColoring, err := GetEnvLogColoring()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Registry:   registry,
		PrivateKey: os.Getenv("PRIVATE_KEY"),
		Relay:      relay,
		Session:    session,
		Settlement: SettlementConfig{
			PollInterval: pollInterval,
			MaxAttempts:  maxAttempts,
		},
		SwitchVerifyTimeout: switchTimeout,
		MetricsPort:         metricsPort,
		MetricsAPIKey:       os.Getenv("METRICS_API_KEY"),
		NATSURL:             natsURL,
		OTLPEndpoint:        GetEnvOTLPEndpoint(),
		CircuitBreaker:      cb,
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
	}

	// Validate required environment variables
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadRelayConfig() (RelayConfig, error) {
	endpoint, err := GetEnvRelayAPIEndpoint()
	if err != nil {
		return RelayConfig{}, err
	}

	fallbackURL, err := GetEnvFallbackURL()
	if err != nil {
		return RelayConfig{}, err
	}

	rateLimit, err := GetEnvRelayRateLimit()
	if err != nil {
		return RelayConfig{}, err
	}

	return RelayConfig{
		APIEndpoint: endpoint,
		FallbackURL: fallbackURL,
		RateLimit:   rateLimit,
	}, nil
}

func loadSessionConfig(registry *chains.Registry) (SessionConfig, error) {
	source, err := GetEnvChain("BRIDGE_SOURCE_CHAIN", DefaultSourceChain, registry)
	if err != nil {
		return SessionConfig{}, err
	}

	destination, err := GetEnvChain("BRIDGE_DESTINATION_CHAIN", DefaultDestinationChain, registry)
	if err != nil {
		return SessionConfig{}, err
	}

	token, err := GetEnvToken()
	if err != nil {
		return SessionConfig{}, err
	}

	purpose, err := GetEnvPurpose()
	if err != nil {
		return SessionConfig{}, err
	}

	recipient, err := GetEnvRecipient()
	if err != nil {
		return SessionConfig{}, err
	}

	debounce, err := GetEnvQuoteDebounce()
	if err != nil {
		return SessionConfig{}, err
	}

	ttl, err := GetEnvQuoteTTL()
	if err != nil {
		return SessionConfig{}, err
	}

	waitForReceipt, err := GetEnvWaitForReceipt()
	if err != nil {
		return SessionConfig{}, err
	}

	return SessionConfig{
		SourceChain:      source,
		DestinationChain: destination,
		Token:            token,
		Purpose:          purpose,
		Recipient:        recipient,
		Amount:           os.Getenv("BRIDGE_AMOUNT"),
		QuoteDebounce:    debounce,
		QuoteTTL:         ttl,
		WaitForReceipt:   waitForReceipt,
	}, nil
}

func loadCircuitBreakerConfig() (CircuitBreakerConfig, error) {
	enabled, err := GetEnvCircuitBreakerEnabled()
	if err != nil {
		return CircuitBreakerConfig{}, err
	}

	threshold, err := GetEnvCircuitBreakerThreshold()
	if err != nil {
		return CircuitBreakerConfig{}, err
	}

	window, err := GetEnvCircuitBreakerWindow()
	if err != nil {
		return CircuitBreakerConfig{}, err
	}

	reset, err := GetEnvCircuitBreakerReset()
	if err != nil {
		return CircuitBreakerConfig{}, err
	}

	return CircuitBreakerConfig{
		Enabled:        enabled,
		Threshold:      threshold,
		WindowDuration: window,
		ResetTimeout:   reset,
	}, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY environment variable is required")
	}

	s := cfg.Session
	if s.SourceChain == s.DestinationChain {
		return fmt.Errorf("BRIDGE_SOURCE_CHAIN and BRIDGE_DESTINATION_CHAIN must differ")
	}
	for _, id := range []int{s.SourceChain, s.DestinationChain} {
		d, _ := cfg.Registry.Chain(id)
		if d.RPCURL == "" {
			return fmt.Errorf("%s for chain %d is required", rpcEnvKey(d), id)
		}
	}
	if _, err := cfg.Registry.Token(s.SourceChain, s.Token); err != nil {
		return fmt.Errorf("invalid BRIDGE_TOKEN: %v", err)
	}
	if s.Purpose != bridge.PurposeGasSwap {
		if _, err := cfg.Registry.Token(s.DestinationChain, s.Token); err != nil {
			return fmt.Errorf("invalid BRIDGE_TOKEN: %v", err)
		}
	}
	return nil
}
