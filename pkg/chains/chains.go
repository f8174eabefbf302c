package chains

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// TokenType represents the symbol of a supported stablecoin
type TokenType string

const (
	// TokenTypeUSDC represents USDC token
	TokenTypeUSDC TokenType = "USDC"
	// TokenTypeUSDT represents USDT token
	TokenTypeUSDT TokenType = "USDT"
)

// NativeCurrencyAddress is the placeholder address relay APIs use for a chain's gas token
var NativeCurrencyAddress = common.HexToAddress("0x0000000000000000000000000000000000000000")

// Token is a token contract deployed on one chain
type Token struct {
	Symbol   TokenType
	Address  common.Address
	Decimals int32
}

// NativeAsset describes a chain's gas token
type NativeAsset struct {
	Symbol   string
	Decimals int32
}

// ChainDescriptor is the static description of a supported network
type ChainDescriptor struct {
	ID          int
	Name        string
	Slug        string
	NativeAsset NativeAsset
	Tokens      map[TokenType]Token
	RPCURL      string
	// ExplorerTxURL and ExplorerAddressURL are templates containing {hash} and {address}
	ExplorerTxURL      string
	ExplorerAddressURL string
}

// ExplorerTx returns the explorer link for a transaction hash, or "" if no template is configured
func (d ChainDescriptor) ExplorerTx(hash string) string {
	if d.ExplorerTxURL == "" || hash == "" {
		return ""
	}
	return strings.ReplaceAll(d.ExplorerTxURL, "{hash}", hash)
}

// ExplorerAddress returns the explorer link for an address, or "" if no template is configured
func (d ChainDescriptor) ExplorerAddress(address common.Address) string {
	if d.ExplorerAddressURL == "" {
		return ""
	}
	return strings.ReplaceAll(d.ExplorerAddressURL, "{address}", address.Hex())
}

// Registry holds the chain descriptors known to the process
type Registry struct {
	mu     sync.RWMutex
	chains map[int]ChainDescriptor
}

// NewRegistry creates a registry from the given descriptors
func NewRegistry(descriptors ...ChainDescriptor) *Registry {
	r := &Registry{chains: make(map[int]ChainDescriptor, len(descriptors))}
	for _, d := range descriptors {
		r.Put(d)
	}
	return r
}

// Put adds or replaces a chain descriptor
func (r *Registry) Put(d ChainDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.Tokens == nil {
		d.Tokens = make(map[TokenType]Token)
	}
	r.chains[d.ID] = d
}

// Chain returns the descriptor for a chain ID
func (r *Registry) Chain(chainID int) (ChainDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.chains[chainID]
	return d, ok
}

// Token returns the token contract for a symbol on a chain
func (r *Registry) Token(chainID int, tokenType TokenType) (Token, error) {
	d, ok := r.Chain(chainID)
	if !ok {
		return Token{}, fmt.Errorf("unsupported chain: %d", chainID)
	}
	token, ok := d.Tokens[tokenType]
	if !ok {
		return Token{}, fmt.Errorf("token %s not configured for chain %d", tokenType, chainID)
	}
	return token, nil
}

// IDs returns the supported chain IDs in ascending order
func (r *Registry) IDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// GetChainName returns the name of the chain for a given chain ID, or "" when unknown
func (r *Registry) GetChainName(chainID int) string {
	d, ok := r.Chain(chainID)
	if !ok {
		return ""
	}
	return d.Name
}

// GetTokenType returns the symbol of a token address on any chain, or "" if not found
func (r *Registry) GetTokenType(address common.Address) TokenType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.chains {
		for symbol, token := range d.Tokens {
			if token.Address == address {
				return symbol
			}
		}
	}
	return ""
}
