// Package fallback builds links to the relay provider's hosted bridge page so a
// transfer can be finished by hand when the automated path cannot complete.
package fallback

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/bridgerunner/pkg/chains"
)

// DefaultBaseURL is the relay provider's hosted bridge interface
const DefaultBaseURL = "https://relay.link/bridge"

// Link identifies the transfer a fallback URL should prefill
type Link struct {
	SourceChain      int
	DestinationChain int
	Token            common.Address
	DestinationToken common.Address
	Amount           string
	Recipient        common.Address
}

// Builder produces fallback URLs against a base URL and chain registry
type Builder struct {
	baseURL  string
	registry *chains.Registry
}

// NewBuilder creates a builder. An empty baseURL selects DefaultBaseURL.
func NewBuilder(baseURL string, registry *chains.Registry) *Builder {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Builder{
		baseURL:  strings.TrimRight(baseURL, "/"),
		registry: registry,
	}
}

// Build returns the fallback URL for a transfer. Identical inputs always yield
// the identical string.
func (b *Builder) Build(link Link) string {
	return BuildFallbackURL(b.baseURL, b.slug(link.DestinationChain), link)
}

func (b *Builder) slug(chainID int) string {
	if b.registry != nil {
		if d, ok := b.registry.Chain(chainID); ok && d.Slug != "" {
			return d.Slug
		}
	}
	return strconv.Itoa(chainID)
}

// BuildFallbackURL formats a fallback link. The destination path segment is
// destSlug; the remaining transfer fields are encoded as sorted query parameters.
func BuildFallbackURL(baseURL, destSlug string, link Link) string {
	q := url.Values{}
	q.Set("fromChainId", strconv.Itoa(link.SourceChain))
	q.Set("toChainId", strconv.Itoa(link.DestinationChain))
	q.Set("fromCurrency", strings.ToLower(link.Token.Hex()))
	if link.DestinationToken != (common.Address{}) || link.Token == (common.Address{}) {
		q.Set("toCurrency", strings.ToLower(link.DestinationToken.Hex()))
	}
	if amount := strings.TrimSpace(link.Amount); amount != "" {
		q.Set("amount", amount)
	}
	if link.Recipient != (common.Address{}) {
		q.Set("toAddress", link.Recipient.Hex())
	}

	return fmt.Sprintf("%s/%s?%s", strings.TrimRight(baseURL, "/"), url.PathEscape(destSlug), q.Encode())
}
