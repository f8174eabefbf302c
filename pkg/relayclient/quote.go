package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"github.com/speedrun-hq/bridgerunner/pkg/contracts"
	"github.com/speedrun-hq/bridgerunner/pkg/metrics"
	"github.com/speedrun-hq/bridgerunner/pkg/models"
)

// UnknownResponseError is returned when a quote response cannot be turned into a usable quote
type UnknownResponseError struct {
	Reason string
	Body   string
}

func (e *UnknownResponseError) Error() string {
	return fmt.Sprintf("unrecognized quote response: %s", e.Reason)
}

// QuoteRequest is the body of a relay quote request
type QuoteRequest struct {
	User                string `json:"user"`
	OriginChainID       int    `json:"originChainId"`
	DestinationChainID  int    `json:"destinationChainId"`
	OriginCurrency      string `json:"originCurrency"`
	DestinationCurrency string `json:"destinationCurrency"`
	Amount              string `json:"amount"`
	Recipient           string `json:"recipient"`
	TradeType           string `json:"tradeType"`
	UseDepositAddress   bool   `json:"useDepositAddress"`
}

type quoteResponse struct {
	Steps   []quoteStep         `json:"steps"`
	Fees    map[string]quoteFee `json:"fees"`
	Details *quoteDetails       `json:"details"`
}

type quoteStep struct {
	ID             string      `json:"id"`
	Action         string      `json:"action"`
	Kind           string      `json:"kind"`
	RequestID      string      `json:"requestId"`
	DepositAddress string      `json:"depositAddress"`
	Items          []stepItem  `json:"items"`
	Description    string      `json:"description"`
	Extra          interface{} `json:"-"`
}

type stepItem struct {
	Status string    `json:"status"`
	Data   *stepData `json:"data"`
}

type stepData struct {
	From    string      `json:"from"`
	To      string      `json:"to"`
	Data    string      `json:"data"`
	Value   string      `json:"value"`
	ChainID json.Number `json:"chainId"`
}

type quoteFee struct {
	Currency *struct {
		Symbol string `json:"symbol"`
	} `json:"currency"`
	Amount          string `json:"amount"`
	AmountFormatted string `json:"amountFormatted"`
	AmountUSD       string `json:"amountUsd"`
}

type quoteDetails struct {
	CurrencyOut *struct {
		Amount          string `json:"amount"`
		AmountFormatted string `json:"amountFormatted"`
	} `json:"currencyOut"`
	TimeEstimate float64 `json:"timeEstimate"`
}

// RequestQuote asks the relay to price a transfer. The returned quote carries
// everything except the orchestrator-owned generation and expiry.
func (c *Client) RequestQuote(ctx context.Context, intent models.BridgeIntent) (*models.BridgeQuote, error) {
	if intent.AmountBaseUnits == nil || intent.AmountBaseUnits.Sign() <= 0 {
		return nil, fmt.Errorf("quote amount must be positive")
	}
	if c.breaker != nil && c.breaker.IsOpen() {
		return nil, ErrCircuitOpen
	}

	recipient := intent.Recipient
	if recipient == (common.Address{}) {
		recipient = intent.Sender
	}

	req := QuoteRequest{
		User:                intent.Sender.Hex(),
		OriginChainID:       intent.SourceChain,
		DestinationChainID:  intent.DestinationChain,
		OriginCurrency:      intent.OriginCurrency.Hex(),
		DestinationCurrency: intent.DestinationCurrency.Hex(),
		Amount:              intent.AmountBaseUnits.String(),
		Recipient:           recipient.Hex(),
		TradeType:           "EXACT_INPUT",
		UseDepositAddress:   true,
	}

	metrics.QuotesRequested.WithLabelValues(fmt.Sprint(intent.SourceChain), fmt.Sprint(intent.DestinationChain)).Inc()
	start := time.Now()

	body, err := c.do(ctx, http.MethodPost, "/quote", req)
	if err != nil {
		c.recordFailure(ctx, err)
		return nil, fmt.Errorf("failed to fetch quote: %w", err)
	}
	metrics.QuoteLatency.Observe(time.Since(start).Seconds())

	quote, err := parseQuote(body, intent)
	if err != nil {
		c.recordFailure(ctx, err)
		return nil, err
	}
	if c.breaker != nil {
		c.breaker.RecordSuccess()
	}

	quote.FetchedAt = time.Now()
	c.logger.DebugWithChain(intent.SourceChain, "Received quote %s: deposit %s, out %s, fee %s",
		quote.RequestID, quote.DepositAddress.Hex(), quote.DestAmountFormatted, quote.FeeTotal)
	return quote, nil
}

func (c *Client) recordFailure(ctx context.Context, err error) {
	// cancellation is the caller's decision, not a relay fault
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return
	}
	var statusErr *StatusCodeError
	if errors.As(err, &statusErr) && statusErr.StatusCode < http.StatusInternalServerError {
		return
	}
	if c.breaker != nil {
		c.breaker.RecordFailure()
	}
}

// parseQuote validates a raw quote response against the intent it answers
func parseQuote(body []byte, intent models.BridgeIntent) (*models.BridgeQuote, error) {
	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &UnknownResponseError{Reason: fmt.Sprintf("invalid JSON: %v", err), Body: truncate(string(body))}
	}
	if len(resp.Steps) == 0 {
		return nil, &UnknownResponseError{Reason: "no execution steps", Body: truncate(string(body))}
	}

	step, depositAddress, err := depositStep(resp.Steps, intent)
	if err != nil {
		return nil, &UnknownResponseError{Reason: err.Error(), Body: truncate(string(body))}
	}

	if resp.Details == nil || resp.Details.CurrencyOut == nil {
		return nil, &UnknownResponseError{Reason: "missing destination amount", Body: truncate(string(body))}
	}
	destAmount, ok := new(big.Int).SetString(resp.Details.CurrencyOut.Amount, 10)
	if !ok || destAmount.Sign() < 0 {
		return nil, &UnknownResponseError{Reason: "invalid destination amount", Body: truncate(string(body))}
	}

	fees, total := collectFees(resp.Fees)

	return &models.BridgeQuote{
		RequestID:           step.RequestID,
		SourceChain:         intent.SourceChain,
		DestinationChain:    intent.DestinationChain,
		SourceAmount:        new(big.Int).Set(intent.AmountBaseUnits),
		SourceAmountText:    intent.Amount,
		DestAmountEstimate:  destAmount,
		DestAmountFormatted: resp.Details.CurrencyOut.AmountFormatted,
		FeeTotal:            total,
		Fees:                fees,
		DepositAddress:      depositAddress,
		TimeEstimate:        time.Duration(resp.Details.TimeEstimate * float64(time.Second)),
	}, nil
}

// depositStep finds the step carrying the deposit address. The address comes
// from the step itself or, failing that, from the transfer calldata of its first item.
func depositStep(steps []quoteStep, intent models.BridgeIntent) (quoteStep, common.Address, error) {
	for _, step := range steps {
		if step.Kind != "" && step.Kind != "transaction" {
			continue
		}
		if strings.TrimSpace(step.RequestID) == "" {
			continue
		}

		if addr, ok := parseAddress(step.DepositAddress); ok {
			return step, addr, nil
		}

		for _, item := range step.Items {
			if item.Data == nil {
				continue
			}
			if !strings.EqualFold(item.Data.To, intent.OriginCurrency.Hex()) {
				continue
			}
			calldata, err := hexutil.Decode(item.Data.Data)
			if err != nil {
				continue
			}
			to, amount, err := contracts.UnpackTransfer(calldata)
			if err != nil {
				continue
			}
			if amount.Cmp(intent.AmountBaseUnits) != 0 {
				return step, common.Address{}, fmt.Errorf("deposit calldata amount %s differs from requested %s", amount, intent.AmountBaseUnits)
			}
			if to == (common.Address{}) {
				continue
			}
			return step, to, nil
		}
	}
	return quoteStep{}, common.Address{}, fmt.Errorf("no step with a usable deposit address")
}

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	addr := common.HexToAddress(s)
	return addr, addr != (common.Address{})
}

// collectFees flattens the fee map in a stable order and sums the USD amounts
func collectFees(raw map[string]quoteFee) ([]models.Fee, string) {
	kinds := make([]string, 0, len(raw))
	for kind := range raw {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	total := decimal.Zero
	fees := make([]models.Fee, 0, len(kinds))
	for _, kind := range kinds {
		f := raw[kind]
		fee := models.Fee{
			Kind:            kind,
			Amount:          f.Amount,
			AmountFormatted: f.AmountFormatted,
			AmountUSD:       f.AmountUSD,
		}
		if f.Currency != nil {
			fee.Currency = f.Currency.Symbol
		}
		if usd, err := decimal.NewFromString(f.AmountUSD); err == nil {
			total = total.Add(usd)
		}
		fees = append(fees, fee)
	}
	return fees, total.StringFixed(2)
}
