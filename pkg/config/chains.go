package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/speedrun-hq/bridgerunner/pkg/chains"
)

// rpcEnvKey returns the variable overriding a chain's RPC URL, e.g. BASE_RPC_URL
func rpcEnvKey(d chains.ChainDescriptor) string {
	return strings.ToUpper(strings.ReplaceAll(d.Name, " ", "_")) + "_RPC_URL"
}

// GetEnvRegistry builds the chain registry from the built-in defaults, the
// optional CHAINS_FILE and per chain <NAME>_RPC_URL overrides
func GetEnvRegistry() (*chains.Registry, error) {
	registry := chains.DefaultRegistry()

	if path := os.Getenv("CHAINS_FILE"); path != "" {
		if err := registry.LoadRegistryFile(path); err != nil {
			return nil, fmt.Errorf("invalid CHAINS_FILE: %v", err)
		}
	}

	if err := applyRPCOverrides(registry); err != nil {
		return nil, err
	}
	return registry, nil
}

func applyRPCOverrides(registry *chains.Registry) error {
	for _, id := range registry.IDs() {
		d, _ := registry.Chain(id)
		key := rpcEnvKey(d)
		value := os.Getenv(key)
		if value == "" {
			continue
		}
		if _, err := url.ParseRequestURI(value); err != nil {
			return fmt.Errorf("invalid %s value: %s, must be a valid URL", key, value)
		}
		d.RPCURL = value
		registry.Put(d)
	}
	return nil
}
