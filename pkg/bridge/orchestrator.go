// Package bridge drives a single bridge session: amount entry, quoting, network
// verification, the deposit transfer and settlement tracking.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/speedrun-hq/bridgerunner/pkg/chains"
	"github.com/speedrun-hq/bridgerunner/pkg/chainswitch"
	"github.com/speedrun-hq/bridgerunner/pkg/fallback"
	"github.com/speedrun-hq/bridgerunner/pkg/logger"
	"github.com/speedrun-hq/bridgerunner/pkg/metrics"
	"github.com/speedrun-hq/bridgerunner/pkg/models"
	"github.com/speedrun-hq/bridgerunner/pkg/relayclient"
	"github.com/speedrun-hq/bridgerunner/pkg/settlement"
	"github.com/speedrun-hq/bridgerunner/pkg/wallet"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultDebounce delays quote requests while the amount is being edited
	DefaultDebounce = 600 * time.Millisecond

	// DefaultQuoteTTL is how long a quote may be used for submission
	DefaultQuoteTTL = 30 * time.Second

	// DefaultReceiptTimeout bounds the optional wait for the deposit receipt
	DefaultReceiptTimeout = 2 * time.Minute

	nativeDecimals = 18
	tracerName     = "github.com/speedrun-hq/bridgerunner/pkg/bridge"
)

// Purpose selects what a session bridges
type Purpose string

const (
	// PurposeBridge moves a stablecoin between two chains
	PurposeBridge Purpose = "bridge"
	// PurposeChainBridge moves a stablecoin into one fixed destination chain
	PurposeChainBridge Purpose = "chain_bridge"
	// PurposeGasSwap delivers the destination chain's native gas token
	PurposeGasSwap Purpose = "gas_swap"
)

// ParsePurpose parses a purpose name; empty selects PurposeBridge
func ParsePurpose(s string) (Purpose, error) {
	switch p := Purpose(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PurposeBridge, nil
	case PurposeBridge, PurposeChainBridge, PurposeGasSwap:
		return p, nil
	default:
		return "", fmt.Errorf("unknown bridge purpose: %s", s)
	}
}

// Params configures what a session bridges
type Params struct {
	SourceChain      int
	DestinationChain int
	Token            chains.TokenType
	Purpose          Purpose
	// Recipient defaults to the wallet address
	Recipient common.Address
}

// Options tunes session timing
type Options struct {
	Debounce       time.Duration
	QuoteTTL       time.Duration
	WaitForReceipt bool
	ReceiptTimeout time.Duration
	Now            func() time.Time
}

// QuoteService prices transfers
type QuoteService interface {
	RequestQuote(ctx context.Context, intent models.BridgeIntent) (*models.BridgeQuote, error)
}

// ChainSwitcher moves the wallet to a target chain
type ChainSwitcher interface {
	EnsureChain(ctx context.Context, target int) (chainswitch.Result, error)
}

// SettlementPoller waits for the relay to settle a request
type SettlementPoller interface {
	Poll(ctx context.Context, requestID string, onAttempt func(settlement.Attempt)) (settlement.Outcome, error)
	MaxAttempts() int
}

// Deps are the collaborators of an Orchestrator. Switcher and Fallback are optional.
type Deps struct {
	Registry *chains.Registry
	Quotes   QuoteService
	Wallet   wallet.Wallet
	Balances wallet.BalanceObserver
	Switcher ChainSwitcher
	Poller   SettlementPoller
	Fallback *fallback.Builder
	Logger   logger.Logger
}

// Orchestrator is the state machine of one bridge session
type Orchestrator struct {
	params       Params
	opts         Options
	deps         Deps
	logger       logger.Logger
	tracer       trace.Tracer
	source       chains.ChainDescriptor
	destination  chains.ChainDescriptor
	token        chains.Token
	destCurrency common.Address
	destSymbol   string
	destDecimals int32
	dispatcher   *dispatcher

	mu            sync.Mutex
	wg            sync.WaitGroup
	closed        bool
	sessionID     string
	epoch         uint64
	sessCtx       context.Context
	cancel        context.CancelFunc
	debounce      *time.Timer
	generation    uint64
	version       uint64
	state         State
	statusMessage string
	lastErr       *Error
	intent        models.BridgeIntent
	quote         *models.BridgeQuote
	transfer      *models.BridgeTransferRecord
	explorerURL   string
	observedChain int
	balances      map[int]string
	executing     bool
	sending       bool
}

// New creates an idle session
func New(params Params, deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Registry == nil || deps.Quotes == nil || deps.Wallet == nil || deps.Balances == nil || deps.Poller == nil {
		return nil, fmt.Errorf("registry, quote service, wallet, balance observer and poller are required")
	}
	if deps.Logger == nil {
		deps.Logger = &logger.EmptyLogger{}
	}
	if params.SourceChain == params.DestinationChain {
		return nil, fmt.Errorf("source and destination chain must differ")
	}
	if params.Purpose == "" {
		params.Purpose = PurposeBridge
	}
	if params.Token == "" {
		params.Token = chains.TokenTypeUSDC
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.QuoteTTL <= 0 {
		opts.QuoteTTL = DefaultQuoteTTL
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = DefaultReceiptTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	source, ok := deps.Registry.Chain(params.SourceChain)
	if !ok {
		return nil, fmt.Errorf("unsupported source chain %d", params.SourceChain)
	}
	destination, ok := deps.Registry.Chain(params.DestinationChain)
	if !ok {
		return nil, fmt.Errorf("unsupported destination chain %d", params.DestinationChain)
	}
	token, err := deps.Registry.Token(params.SourceChain, params.Token)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		params:      params,
		opts:        opts,
		deps:        deps,
		logger:      deps.Logger,
		tracer:      otel.Tracer(tracerName),
		source:      source,
		destination: destination,
		token:       token,
		dispatcher:  newDispatcher(),
		sessionID:   uuid.NewString(),
		state:       StateIdle,
		balances:    make(map[int]string),
	}

	if params.Purpose == PurposeGasSwap {
		o.destCurrency = chains.NativeCurrencyAddress
		o.destSymbol = destination.NativeAsset.Symbol
		o.destDecimals = destination.NativeAsset.Decimals
	} else {
		destToken, err := deps.Registry.Token(params.DestinationChain, params.Token)
		if err != nil {
			return nil, err
		}
		o.destCurrency = destToken.Address
		o.destSymbol = string(destToken.Symbol)
		o.destDecimals = destToken.Decimals
	}

	if o.deps.Switcher == nil {
		o.deps.Switcher = chainswitch.NewCoordinator(deps.Wallet, 0, deps.Logger)
	}
	if o.deps.Fallback == nil {
		o.deps.Fallback = fallback.NewBuilder("", deps.Registry)
	}
	if params.Recipient == (common.Address{}) {
		o.params.Recipient = deps.Wallet.Address()
	}

	o.intent = models.BridgeIntent{
		SourceChain:         params.SourceChain,
		DestinationChain:    params.DestinationChain,
		Token:               params.Token,
		OriginCurrency:      token.Address,
		DestinationCurrency: o.destCurrency,
		Sender:              deps.Wallet.Address(),
		Recipient:           o.params.Recipient,
	}
	o.sessCtx, o.cancel = context.WithCancel(context.Background())
	o.statusMessage = "Enter an amount"

	metrics.ActiveSessions.Inc()
	o.logger.InfoWithChain(params.SourceChain, "Bridge session %s: %s %s -> %s (%s)",
		o.sessionID, params.Token, source.Name, destination.Name, params.Purpose)
	return o, nil
}

// Subscribe registers fn for every state change. Snapshots are delivered in
// order on a separate goroutine. The returned function unsubscribes.
func (o *Orchestrator) Subscribe(fn func(Snapshot)) func() {
	return o.dispatcher.subscribe(fn)
}

// Snapshot returns the current session state
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// SetAmount records the amount to bridge and schedules a debounced quote
func (o *Orchestrator) SetAmount(amount string) error {
	amount = strings.TrimSpace(amount)
	base, parseErr := chains.ParsePositiveAmount(amount, o.token.Decimals)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}
	if err := o.checkEditableLocked(); err != nil {
		return err
	}
	if parseErr != nil {
		msg := "Enter an amount greater than zero."
		if errors.Is(parseErr, chains.ErrTooPrecise) {
			msg = fmt.Sprintf("%s supports at most %d decimal places.", o.token.Symbol, o.token.Decimals)
		}
		e := newError(KindInvalidAmount, CodeInvalidAmount, msg, parseErr)
		o.rejectAmountLocked(amount, e)
		return e
	}

	o.intent.Amount = amount
	o.intent.AmountBaseUnits = base
	o.generation++
	gen, epoch := o.generation, o.epoch
	o.quote = nil
	o.lastErr = nil
	o.transfer = nil
	o.explorerURL = ""
	o.transitionLocked(StateQuoting, "Fetching quote")

	if o.debounce != nil {
		o.debounce.Stop()
	}
	o.debounce = time.AfterFunc(o.opts.Debounce, func() {
		o.fireDebounced(epoch, gen)
	})

	o.publishLocked()
	return nil
}

// RequestQuote fetches a quote for the current amount immediately
func (o *Orchestrator) RequestQuote(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if err := o.checkEditableLocked(); err != nil {
		o.mu.Unlock()
		return err
	}
	if o.intent.AmountBaseUnits == nil {
		o.mu.Unlock()
		return newError(KindInvalidAmount, CodeInvalidAmount, "Enter an amount first.", nil)
	}
	if o.debounce != nil {
		o.debounce.Stop()
	}
	o.generation++
	gen, epoch, sessCtx := o.generation, o.epoch, o.sessCtx
	intent := o.intentLocked()
	o.quote = nil
	o.lastErr = nil
	o.transfer = nil
	o.explorerURL = ""
	o.transitionLocked(StateQuoting, "Fetching quote")
	o.publishLocked()
	o.mu.Unlock()

	ctx, cancel := scoped(ctx, sessCtx)
	defer cancel()

	_, err := o.fetchQuote(ctx, epoch, gen, intent)
	return err
}

// Reset cancels pending quotes, timers and polling and returns to idle.
// A deposit that was already broadcast is not affected.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	o.resetLocked()
	o.publishLocked()
	o.logger.Info("Bridge session reset, new session %s", o.sessionID)
}

// Close stops all session activity and waits for background work to finish
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.epoch++
	o.cancel()
	if o.debounce != nil {
		o.debounce.Stop()
	}
	o.mu.Unlock()

	o.wg.Wait()
	o.dispatcher.stop()
	metrics.ActiveSessions.Dec()
}

// RefreshBalances reads the owner's balances on both chains
func (o *Orchestrator) RefreshBalances(ctx context.Context) error {
	o.mu.Lock()
	epoch := o.epoch
	o.mu.Unlock()
	return o.refreshBalances(ctx, epoch)
}

func (o *Orchestrator) resetLocked() {
	o.epoch++
	o.cancel()
	o.sessCtx, o.cancel = context.WithCancel(context.Background())
	if o.debounce != nil {
		o.debounce.Stop()
		o.debounce = nil
	}
	o.generation++
	o.sessionID = uuid.NewString()
	o.quote = nil
	o.lastErr = nil
	o.transfer = nil
	o.explorerURL = ""
	o.executing = false
	o.intent.Amount = ""
	o.intent.AmountBaseUnits = nil
	o.transitionLocked(StateIdle, "Enter an amount")
}

// rejectAmountLocked drops the quote and pending requests of the previous
// amount so that a rejected edit can never be executed with stale values
func (o *Orchestrator) rejectAmountLocked(amount string, e *Error) {
	if o.debounce != nil {
		o.debounce.Stop()
		o.debounce = nil
	}
	o.generation++
	o.intent.Amount = amount
	o.intent.AmountBaseUnits = nil
	o.quote = nil
	o.lastErr = e
	if o.state == StateIdle {
		o.statusMessage = e.Message
	} else {
		o.transitionLocked(StateError, e.Message)
	}
	o.publishLocked()
}

// submittedLocked reports whether this session already broadcast a deposit.
// Such a session continues only after Reset, whatever the outcome.
func (o *Orchestrator) submittedLocked() bool {
	return o.transfer != nil
}

func (o *Orchestrator) checkEditableLocked() error {
	if o.executing || o.sending || o.state.InFlight() {
		return newError(KindInvalidState, CodeBusy, "A transfer is already in progress.", nil)
	}
	if !o.state.acceptsAmount() || o.submittedLocked() {
		return newError(KindInvalidState, CodeNotReady, "This transfer has finished. Start a new one.", nil)
	}
	return nil
}

func (o *Orchestrator) fireDebounced(epoch, gen uint64) {
	o.mu.Lock()
	if o.closed || epoch != o.epoch || gen != o.generation {
		o.mu.Unlock()
		return
	}
	ctx := o.sessCtx
	intent := o.intentLocked()
	o.wg.Add(1)
	o.mu.Unlock()
	defer o.wg.Done()

	_, _ = o.fetchQuote(ctx, epoch, gen, intent)
}

// fetchQuote requests a quote and applies it if gen is still the latest request
func (o *Orchestrator) fetchQuote(ctx context.Context, epoch, gen uint64, intent models.BridgeIntent) (*models.BridgeQuote, error) {
	ctx, span := o.tracer.Start(ctx, "bridge.quote", trace.WithAttributes(
		attribute.Int("bridge.source_chain", intent.SourceChain),
		attribute.Int("bridge.destination_chain", intent.DestinationChain),
		attribute.String("bridge.amount", intent.Amount),
		attribute.Int64("bridge.generation", int64(gen)),
	))
	defer span.End()

	quote, err := o.deps.Quotes.RequestQuote(ctx, intent)

	o.mu.Lock()
	defer o.mu.Unlock()

	if epoch != o.epoch || gen != o.generation {
		metrics.QuotesDiscarded.Inc()
		o.logger.Debug("Discarding quote for generation %d, latest is %d", gen, o.generation)
		span.SetAttributes(attribute.Bool("bridge.quote_superseded", true))
		return nil, ErrQuoteSuperseded
	}

	if err != nil {
		bErr := classifyQuoteError(err)
		metrics.QuoteErrors.WithLabelValues(bErr.Code).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, bErr.Code)
		o.logger.ErrorWithChain(intent.SourceChain, "Quote for %s %s failed: %v", intent.Amount, intent.Token, err)

		o.quote = nil
		o.lastErr = bErr
		o.transitionLocked(StateError, bErr.Message)
		o.publishLocked()
		return nil, bErr
	}

	now := o.opts.Now()
	q := *quote
	q.Generation = gen
	q.SourceChain = intent.SourceChain
	q.DestinationChain = intent.DestinationChain
	q.SourceAmount = new(big.Int).Set(intent.AmountBaseUnits)
	q.SourceAmountText = intent.Amount
	q.FetchedAt = now
	q.ExpiresAt = now.Add(o.opts.QuoteTTL)

	o.quote = &q
	o.lastErr = nil
	o.transitionLocked(StateReady, o.readyMessage(&q))
	o.publishLocked()
	return &q, nil
}

func (o *Orchestrator) readyMessage(q *models.BridgeQuote) string {
	out := q.DestAmountFormatted
	if out == "" && q.DestAmountEstimate != nil {
		out = chains.FormatBaseUnits(q.DestAmountEstimate, o.destDecimals)
	}
	msg := fmt.Sprintf("You receive about %s %s on %s", out, o.destSymbol, o.destination.Name)
	if q.FeeTotal != "" {
		msg += fmt.Sprintf(" (fees $%s)", q.FeeTotal)
	}
	return msg
}

func classifyQuoteError(err error) *Error {
	var unknown *relayclient.UnknownResponseError
	var status *relayclient.StatusCodeError
	switch {
	case errors.As(err, &unknown):
		return newError(KindUnknownQuoteResponse, CodeUnknownQuoteResponse,
			"The bridge returned a quote we could not use. Try again or use the bridge site.", err)
	case errors.Is(err, relayclient.ErrCircuitOpen):
		return newError(KindQuote, CodeQuotesUnavailable,
			"Quotes are temporarily unavailable. Try again in a few minutes.", err)
	case errors.As(err, &status) && status.StatusCode < 500:
		return newError(KindQuote, CodeQuoteRejected,
			"No route is available for this amount. Try a different amount.", err)
	default:
		return newError(KindQuote, CodeQuoteFailed,
			"Couldn't fetch a quote. Check your connection and try again.", err)
	}
}

// transitionLocked moves to a new state if the transition table allows it
func (o *Orchestrator) transitionLocked(to State, message string) bool {
	if !CanTransition(o.state, to) {
		o.logger.Error("Invalid bridge transition %s -> %s", o.state, to)
		return false
	}
	if o.state != to {
		o.logger.Debug("Bridge %s: %s -> %s", o.sessionID, o.state, to)
		metrics.StateTransitions.WithLabelValues(string(to)).Inc()
	}
	o.state = to
	o.statusMessage = message
	return true
}

// advance transitions and publishes unless the session was reset since epoch
func (o *Orchestrator) advance(epoch uint64, to State, message string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if epoch != o.epoch || o.closed {
		return false
	}
	if !o.transitionLocked(to, message) {
		return false
	}
	o.publishLocked()
	return true
}

// recordError attaches err to the session without changing state
func (o *Orchestrator) recordError(epoch uint64, err *Error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if epoch != o.epoch {
		return
	}
	o.lastErr = err
	o.publishLocked()
}

func (o *Orchestrator) publishLocked() {
	o.version++
	o.dispatcher.enqueue(o.snapshotLocked())
}

func (o *Orchestrator) intentLocked() models.BridgeIntent {
	intent := o.intent
	if o.intent.AmountBaseUnits != nil {
		intent.AmountBaseUnits = new(big.Int).Set(o.intent.AmountBaseUnits)
	}
	return intent
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	s := Snapshot{
		SessionID:        o.sessionID,
		Version:          o.version,
		Purpose:          o.params.Purpose,
		SourceChain:      o.params.SourceChain,
		DestinationChain: o.params.DestinationChain,
		Token:            string(o.params.Token),
		Amount:           o.intent.Amount,
		Status:           o.state,
		StatusMessage:    o.statusMessage,
		Error:            o.lastErr.view(),
		Quote:            o.quote,
		ExplorerURL:      o.explorerURL,
		ObservedChainID:  o.observedChain,
		FallbackURL: o.deps.Fallback.Build(fallback.Link{
			SourceChain:      o.params.SourceChain,
			DestinationChain: o.params.DestinationChain,
			Token:            o.token.Address,
			DestinationToken: o.destCurrency,
			Amount:           o.fallbackAmountLocked(),
			Recipient:        o.params.Recipient,
		}),
		UpdatedAt: o.opts.Now(),
	}
	if o.transfer != nil {
		record := *o.transfer
		s.Transfer = &record
		s.TxHash = record.TxHash.Hex()
	}
	if len(o.balances) > 0 {
		s.Balances = make(map[int]string, len(o.balances))
		for k, v := range o.balances {
			s.Balances[k] = v
		}
	}
	return s
}

// fallbackAmountLocked omits amounts that were rejected
func (o *Orchestrator) fallbackAmountLocked() string {
	if o.intent.AmountBaseUnits == nil {
		return ""
	}
	return o.intent.Amount
}

// scoped derives a context that also ends when the session context ends
func scoped(ctx, session context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(session, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
