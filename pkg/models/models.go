package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/bridgerunner/pkg/chains"
)

// BridgeIntent is the transfer the user currently wants to make
type BridgeIntent struct {
	SourceChain      int
	DestinationChain int
	Token            chains.TokenType
	// OriginCurrency is the token contract on the source chain
	OriginCurrency common.Address
	// DestinationCurrency is the token contract on the destination chain, or the
	// native currency placeholder when bridging into gas
	DestinationCurrency common.Address
	Amount              string
	AmountBaseUnits     *big.Int
	Sender              common.Address
	Recipient           common.Address
}

// Fee is one line of a quote's fee breakdown
type Fee struct {
	Kind            string `json:"kind"`
	Currency        string `json:"currency"`
	Amount          string `json:"amount"`
	AmountFormatted string `json:"amountFormatted"`
	AmountUSD       string `json:"amountUsd"`
}

// BridgeQuote is a priced transfer offer from the relay network
type BridgeQuote struct {
	RequestID           string         `json:"requestId"`
	SourceChain         int            `json:"sourceChain"`
	DestinationChain    int            `json:"destinationChain"`
	SourceAmount        *big.Int       `json:"sourceAmount"`
	SourceAmountText    string         `json:"sourceAmountText"`
	DestAmountEstimate  *big.Int       `json:"destAmountEstimate"`
	DestAmountFormatted string         `json:"destAmountFormatted"`
	FeeTotal            string         `json:"feeTotal"`
	Fees                []Fee          `json:"fees"`
	DepositAddress      common.Address `json:"depositAddress"`
	TimeEstimate        time.Duration  `json:"timeEstimate"`
	Generation          uint64         `json:"generation"`
	FetchedAt           time.Time      `json:"fetchedAt"`
	ExpiresAt           time.Time      `json:"expiresAt"`
}

// Expired reports whether the quote can no longer be used for submission at now
func (q *BridgeQuote) Expired(now time.Time) bool {
	return q == nil || !now.Before(q.ExpiresAt)
}

// TransferStatus is the settlement status of a submitted transfer
type TransferStatus string

const (
	TransferPending  TransferStatus = "pending"
	TransferComplete TransferStatus = "complete"
	TransferFailed   TransferStatus = "failed"
	TransferRefunded TransferStatus = "refunded"
	TransferTimedOut TransferStatus = "timed_out"
)

// IsTerminal reports whether no further status change is expected
func (s TransferStatus) IsTerminal() bool {
	return s != TransferPending && s != ""
}

// BridgeTransferRecord tracks one submitted transfer for the lifetime of a session
type BridgeTransferRecord struct {
	TxHash           common.Hash    `json:"txHash"`
	RequestID        string         `json:"requestId"`
	SourceChain      int            `json:"sourceChain"`
	DestinationChain int            `json:"destinationChain"`
	AmountBaseUnits  *big.Int       `json:"amountBaseUnits"`
	SubmittedAt      time.Time      `json:"submittedAt"`
	Status           TransferStatus `json:"status"`
	PollAttempts     int            `json:"pollAttempts"`
	Reason           string         `json:"reason,omitempty"`
}
