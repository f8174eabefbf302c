package chains

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// registryFile is the YAML layout of a chain registry override file:
//
//	chains:
//	  - id: 8453
//	    name: BASE
//	    rpc_url: https://base.example
//	    tokens:
//	      USDC: {address: "0x...", decimals: 6}
type registryFile struct {
	Chains []fileChain `yaml:"chains"`
}

type fileChain struct {
	ID                 int                  `yaml:"id"`
	Name               string               `yaml:"name"`
	Slug               string               `yaml:"slug"`
	NativeSymbol       string               `yaml:"native_symbol"`
	NativeDecimals     *int32               `yaml:"native_decimals"`
	RPCURL             string               `yaml:"rpc_url"`
	ExplorerTxURL      string               `yaml:"explorer_tx_url"`
	ExplorerAddressURL string               `yaml:"explorer_address_url"`
	Tokens             map[string]fileToken `yaml:"tokens"`
}

type fileToken struct {
	Address  string `yaml:"address"`
	Decimals int32  `yaml:"decimals"`
}

// LoadRegistryFile reads a YAML registry file and merges it over the registry.
// Fields left empty in the file keep the existing descriptor's value.
func (r *Registry) LoadRegistryFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read chains file: %v", err)
	}
	return r.MergeYAML(data)
}

// MergeYAML merges YAML registry data over the registry
func (r *Registry) MergeYAML(data []byte) error {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse chains file: %v", err)
	}

	for _, fc := range file.Chains {
		if fc.ID <= 0 {
			return fmt.Errorf("chain entry with invalid id %d", fc.ID)
		}
		d, exists := r.Chain(fc.ID)
		if !exists {
			d = ChainDescriptor{ID: fc.ID, NativeAsset: NativeAsset{Symbol: "ETH", Decimals: 18}}
		}
		merged, err := mergeChain(d, fc)
		if err != nil {
			return err
		}
		r.Put(merged)
	}
	return nil
}

func mergeChain(d ChainDescriptor, fc fileChain) (ChainDescriptor, error) {
	if fc.Name != "" {
		d.Name = strings.ToUpper(fc.Name)
	}
	if fc.Slug != "" {
		d.Slug = fc.Slug
	} else if d.Slug == "" {
		d.Slug = strings.ToLower(d.Name)
	}
	if fc.NativeSymbol != "" {
		d.NativeAsset.Symbol = fc.NativeSymbol
	}
	if fc.NativeDecimals != nil {
		d.NativeAsset.Decimals = *fc.NativeDecimals
	}
	if fc.RPCURL != "" {
		d.RPCURL = fc.RPCURL
	}
	if fc.ExplorerTxURL != "" {
		d.ExplorerTxURL = fc.ExplorerTxURL
	}
	if fc.ExplorerAddressURL != "" {
		d.ExplorerAddressURL = fc.ExplorerAddressURL
	}

	tokens := make(map[TokenType]Token, len(d.Tokens)+len(fc.Tokens))
	for k, v := range d.Tokens {
		tokens[k] = v
	}
	for symbol, ft := range fc.Tokens {
		if !common.IsHexAddress(ft.Address) {
			return d, fmt.Errorf("chain %d: invalid %s address: %s", d.ID, symbol, ft.Address)
		}
		if ft.Decimals < 0 || ft.Decimals > 36 {
			return d, fmt.Errorf("chain %d: invalid %s decimals: %d", d.ID, symbol, ft.Decimals)
		}
		tt := TokenType(strings.ToUpper(symbol))
		tokens[tt] = Token{Symbol: tt, Address: common.HexToAddress(ft.Address), Decimals: ft.Decimals}
	}
	d.Tokens = tokens
	return d, nil
}
