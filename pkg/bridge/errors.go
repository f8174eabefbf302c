package bridge

import (
	"errors"
	"fmt"
)

// Kind classifies bridge errors
type Kind string

const (
	KindInvalidAmount        Kind = "invalid_amount"
	KindInvalidState         Kind = "invalid_state"
	KindQuote                Kind = "quote"
	KindUnknownQuoteResponse Kind = "unknown_quote_response"
	KindExpiredQuote         Kind = "expired_quote"
	KindInsufficientBalance  Kind = "insufficient_balance"
	KindBalanceUnavailable   Kind = "balance_unavailable"
	KindChainSwitch          Kind = "chain_switch"
	KindSubmission           Kind = "submission"
	KindSettlement           Kind = "settlement"
	KindSettlementTimeout    Kind = "settlement_timeout"
)

// Error codes surfaced to callers
const (
	CodeInvalidAmount        = "invalid_amount"
	CodeBusy                 = "transfer_in_progress"
	CodeNotReady             = "not_ready"
	CodeNoQuote              = "no_quote"
	CodeQuoteFailed          = "quote_failed"
	CodeQuoteRejected        = "quote_rejected"
	CodeQuotesUnavailable    = "quotes_unavailable"
	CodeUnknownQuoteResponse = "unknown_quote_response"
	CodeExpiredQuote         = "expired_quote"
	CodeInsufficientBalance  = "insufficient_balance"
	CodeBalanceUnavailable   = "balance_unavailable"
	CodeChainSwitchFailed    = "chain_switch_failed"
	CodeSubmissionRejected   = "submission_rejected"
	CodeSubmissionFailed     = "submission_failed"
	CodeTransactionReverted  = "transaction_reverted"
	CodeSettlementFailed     = "settlement_failed"
	CodeSettlementRefunded   = "settlement_refunded"
	CodeSettlementDelayed    = "settlement_delayed"
)

// Sentinels for errors.Is; they match any *Error of the same kind
var (
	ErrInvalidAmount        = &Error{Kind: KindInvalidAmount}
	ErrInvalidState         = &Error{Kind: KindInvalidState}
	ErrQuote                = &Error{Kind: KindQuote}
	ErrUnknownQuoteResponse = &Error{Kind: KindUnknownQuoteResponse}
	ErrExpiredQuote         = &Error{Kind: KindExpiredQuote}
	ErrInsufficientBalance  = &Error{Kind: KindInsufficientBalance}
	ErrBalanceUnavailable   = &Error{Kind: KindBalanceUnavailable}
	ErrChainSwitch          = &Error{Kind: KindChainSwitch}
	ErrSubmission           = &Error{Kind: KindSubmission}
	ErrSettlement           = &Error{Kind: KindSettlement}
	ErrSettlementTimeout    = &Error{Kind: KindSettlementTimeout}
)

var (
	// ErrQuoteSuperseded is returned for a quote response that a newer request replaced
	ErrQuoteSuperseded = errors.New("quote superseded by a newer request")

	// ErrSessionReset is returned by operations interrupted by Reset
	ErrSessionReset = errors.New("bridge session was reset")

	// ErrClosed is returned after Close
	ErrClosed = errors.New("bridge session closed")
)

// Error is a classified bridge failure. Message is meant for the user; Error()
// carries the technical detail.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
	// Benign marks outcomes the user chose, such as declining a signature
	Benign bool
	// Advisory marks conditions that do not mean the transfer failed
	Advisory bool
}

func (e *Error) Error() string {
	code := e.Code
	if code == "" {
		code = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", code, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", code, e.Message)
	}
	return code
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by kind. An unknown quote response is also a quote error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Code != "" || t.Err != nil {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindQuote && e.Kind == KindUnknownQuoteResponse
}

// ErrorView is the serializable form of an Error
type ErrorView struct {
	Kind     Kind   `json:"kind"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Detail   string `json:"detail,omitempty"`
	Benign   bool   `json:"benign,omitempty"`
	Advisory bool   `json:"advisory,omitempty"`
}

func (e *Error) view() *ErrorView {
	if e == nil {
		return nil
	}
	v := &ErrorView{
		Kind:     e.Kind,
		Code:     e.Code,
		Message:  e.Message,
		Benign:   e.Benign,
		Advisory: e.Advisory,
	}
	if e.Err != nil {
		v.Detail = e.Err.Error()
	}
	return v
}

func newError(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: cause}
}
