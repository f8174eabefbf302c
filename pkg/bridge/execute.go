package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/speedrun-hq/bridgerunner/pkg/chains"
	"github.com/speedrun-hq/bridgerunner/pkg/chainswitch"
	"github.com/speedrun-hq/bridgerunner/pkg/contracts"
	"github.com/speedrun-hq/bridgerunner/pkg/metrics"
	"github.com/speedrun-hq/bridgerunner/pkg/models"
	"github.com/speedrun-hq/bridgerunner/pkg/wallet"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Execute submits the quoted transfer. It returns once the deposit is
// broadcast and handed to settlement polling; the outcome of settlement is
// observed through Subscribe or Snapshot. An expired quote is refreshed
// instead of submitted and Execute returns an expired_quote error.
func (o *Orchestrator) Execute(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if err := o.checkExecutableLocked(); err != nil {
		o.mu.Unlock()
		return err
	}
	o.executing = true
	epoch, sessCtx, sessionID := o.epoch, o.sessCtx, o.sessionID
	intent := o.intentLocked()
	quote := o.quote
	o.mu.Unlock()

	ctx, cancel := scoped(ctx, sessCtx)
	defer cancel()

	ctx, span := o.tracer.Start(ctx, "bridge.execute", trace.WithAttributes(
		attribute.String("bridge.session_id", sessionID),
		attribute.String("bridge.request_id", quote.RequestID),
		attribute.String("bridge.amount", intent.Amount),
	))
	defer span.End()

	err := o.execute(ctx, epoch, intent, quote)

	o.mu.Lock()
	if o.epoch == epoch {
		o.executing = false
	}
	o.mu.Unlock()

	var bErr *Error
	if err != nil && !(errors.As(err, &bErr) && (bErr.Benign || bErr.Kind == KindExpiredQuote)) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (o *Orchestrator) checkExecutableLocked() error {
	switch {
	case o.executing || o.sending || o.state.InFlight():
		return newError(KindInvalidState, CodeBusy, "A transfer is already in progress.", nil)
	case o.state.Terminal() || o.submittedLocked():
		return newError(KindInvalidState, CodeNotReady, "This transfer has finished. Start a new one.", nil)
	case o.quote == nil:
		return newError(KindQuote, CodeNoQuote, "Get a quote before continuing.", nil)
	case o.state != StateReady && o.state != StateWrongChain:
		return newError(KindInvalidState, CodeNotReady, "The quote is not ready yet.", nil)
	case o.intent.AmountBaseUnits == nil || o.intent.AmountBaseUnits.Sign() <= 0:
		return newError(KindInvalidAmount, CodeInvalidAmount, "Enter an amount greater than zero.", nil)
	}
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, epoch uint64, intent models.BridgeIntent, quote *models.BridgeQuote) error {
	if quote.Expired(o.opts.Now()) {
		return o.refreshExpired(ctx, epoch, intent)
	}

	if err := o.checkBalance(ctx, epoch, intent); err != nil {
		return err
	}

	observed, err := o.observeChain(ctx, epoch)
	if err != nil {
		return o.switchFailed(epoch, &chainswitch.SwitchError{Reason: chainswitch.ReasonTechnical, Target: quote.SourceChain, Err: err})
	}
	if observed != quote.SourceChain {
		if !o.advance(epoch, StateSwitching, fmt.Sprintf("Switch your wallet to %s", o.source.Name)) {
			return ErrSessionReset
		}
		if _, err := o.deps.Switcher.EnsureChain(ctx, quote.SourceChain); err != nil {
			return o.switchFailed(epoch, err)
		}
	}

	if !o.advance(epoch, StateConfirming, "Confirm the transfer in your wallet") {
		return ErrSessionReset
	}

	// the active chain may have changed since the check above
	observed, err = o.observeChain(ctx, epoch)
	if err != nil {
		return o.switchFailed(epoch, &chainswitch.SwitchError{Reason: chainswitch.ReasonTechnical, Target: quote.SourceChain, Err: err})
	}
	if observed != quote.SourceChain {
		return o.switchFailed(epoch, &chainswitch.SwitchError{Reason: chainswitch.ReasonUnverified, Target: quote.SourceChain, Observed: observed})
	}

	if quote.Expired(o.opts.Now()) {
		return o.refreshExpired(ctx, epoch, intent)
	}

	data, err := contracts.PackTransfer(quote.DepositAddress, intent.AmountBaseUnits)
	if err != nil {
		e := newError(KindSubmission, CodeSubmissionFailed, "Couldn't build the transfer. Try again.", err)
		o.submissionFailed(epoch, e)
		return e
	}

	return o.submit(ctx, epoch, intent, quote, data)
}

// refreshExpired replaces an expired quote instead of submitting it
func (o *Orchestrator) refreshExpired(ctx context.Context, epoch uint64, intent models.BridgeIntent) error {
	o.mu.Lock()
	if epoch != o.epoch {
		o.mu.Unlock()
		return ErrSessionReset
	}
	o.generation++
	gen := o.generation
	o.quote = nil
	o.transitionLocked(StateQuoting, "Quote expired, fetching a new one")
	o.publishLocked()
	o.mu.Unlock()

	o.logger.NoticeWithChain(intent.SourceChain, "Quote expired before submission, requesting a new one")
	if _, err := o.fetchQuote(ctx, epoch, gen, intent); err != nil {
		return err
	}

	e := &Error{
		Kind:    KindExpiredQuote,
		Code:    CodeExpiredQuote,
		Message: "The quote expired. Review the updated quote and confirm again.",
	}
	o.mu.Lock()
	if o.epoch == epoch && o.generation == gen {
		o.lastErr = e
		o.publishLocked()
	}
	o.mu.Unlock()
	return e
}

// checkBalance compares the amount with the owner's source balance in base units
func (o *Orchestrator) checkBalance(ctx context.Context, epoch uint64, intent models.BridgeIntent) error {
	balance, err := o.deps.Balances.TokenBalance(ctx, intent.SourceChain, intent.OriginCurrency, intent.Sender)
	if err != nil {
		e := newError(KindBalanceUnavailable, CodeBalanceUnavailable, "Couldn't read your balance. Try again.", err)
		o.recordError(epoch, e)
		return e
	}
	available, err := chains.ToBaseUnits(balance, o.token.Decimals)
	if err != nil {
		e := newError(KindBalanceUnavailable, CodeBalanceUnavailable, "Couldn't read your balance. Try again.", err)
		o.recordError(epoch, e)
		return e
	}

	o.mu.Lock()
	if epoch == o.epoch {
		o.balances[intent.SourceChain] = balance
	}
	o.mu.Unlock()

	if intent.AmountBaseUnits.Cmp(available) > 0 {
		e := newError(KindInsufficientBalance, CodeInsufficientBalance,
			fmt.Sprintf("Insufficient balance: you have %s %s on %s.", balance, o.token.Symbol, o.source.Name), nil)
		o.recordError(epoch, e)
		o.logger.InfoWithChain(intent.SourceChain, "Amount %s exceeds balance %s", intent.Amount, balance)
		return e
	}
	return nil
}

func (o *Orchestrator) observeChain(ctx context.Context, epoch uint64) (int, error) {
	observed, err := o.deps.Wallet.ActiveChainID(ctx)
	if err != nil {
		return 0, err
	}
	o.mu.Lock()
	if epoch == o.epoch && o.observedChain != observed {
		o.observedChain = observed
		o.publishLocked()
	}
	o.mu.Unlock()
	return observed, nil
}

func (o *Orchestrator) switchFailed(epoch uint64, err error) error {
	e := &Error{Kind: KindChainSwitch, Code: CodeChainSwitchFailed, Err: err}
	e.Message = fmt.Sprintf("Couldn't switch your wallet to %s. Try again, switch manually, or use the bridge site.", o.source.Name)

	observed := 0
	var switchErr *chainswitch.SwitchError
	if errors.As(err, &switchErr) {
		observed = switchErr.Observed
		switch switchErr.Reason {
		case chainswitch.ReasonRejected:
			e.Benign = true
			e.Message = fmt.Sprintf("Network switch declined. Switch to %s to continue, or use the bridge site.", o.source.Name)
		case chainswitch.ReasonUnverified:
			e.Message = fmt.Sprintf("Your wallet is not on %s. Switch manually, reconnect your wallet, or use the bridge site.", o.source.Name)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if epoch != o.epoch {
		return ErrSessionReset
	}
	if observed != 0 {
		o.observedChain = observed
	}
	o.lastErr = e
	o.transitionLocked(StateWrongChain, e.Message)
	o.publishLocked()
	return e
}

func (o *Orchestrator) submissionFailed(epoch uint64, e *Error) {
	metrics.SubmissionErrors.WithLabelValues(strconv.Itoa(o.params.SourceChain), e.Code).Inc()
	if e.Benign {
		o.logger.NoticeWithChain(o.params.SourceChain, "Transfer not submitted: %s", e.Message)
	} else {
		o.logger.ErrorWithChain(o.params.SourceChain, "Transfer submission failed: %v", e)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if epoch != o.epoch {
		return
	}
	o.lastErr = e
	o.transitionLocked(StateReady, e.Message)
	o.publishLocked()
}

// submit broadcasts the transfer and hands it to settlement polling
func (o *Orchestrator) submit(ctx context.Context, epoch uint64, intent models.BridgeIntent, quote *models.BridgeQuote, data []byte) error {
	o.mu.Lock()
	if epoch != o.epoch || o.closed {
		o.mu.Unlock()
		return ErrSessionReset
	}
	o.sending = true
	o.mu.Unlock()

	// a broadcast is final, so it is never interrupted by reset
	txHash, err := o.deps.Wallet.SendTransaction(context.WithoutCancel(ctx), intent.OriginCurrency, data, big.NewInt(0))

	o.mu.Lock()
	o.sending = false
	o.mu.Unlock()

	if err != nil {
		var e *Error
		if errors.Is(err, wallet.ErrUserRejected) {
			e = newError(KindSubmission, CodeSubmissionRejected, "You declined the transfer in your wallet.", err)
			e.Benign = true
		} else {
			e = newError(KindSubmission, CodeSubmissionFailed,
				"The transfer could not be sent. Try again, reconnect your wallet, or use the bridge site.", err)
		}
		o.submissionFailed(epoch, e)
		return e
	}

	metrics.TransfersSubmitted.WithLabelValues(strconv.Itoa(intent.SourceChain), strconv.Itoa(intent.DestinationChain)).Inc()
	explorer := o.source.ExplorerTx(txHash.Hex())

	o.mu.Lock()
	if epoch != o.epoch || o.closed {
		o.mu.Unlock()
		o.logger.NoticeWithChain(intent.SourceChain, "Deposit %s was broadcast after the session ended and cannot be cancelled: %s", txHash.Hex(), explorer)
		return ErrSessionReset
	}
	record := &models.BridgeTransferRecord{
		TxHash:           txHash,
		RequestID:        quote.RequestID,
		SourceChain:      intent.SourceChain,
		DestinationChain: intent.DestinationChain,
		AmountBaseUnits:  new(big.Int).Set(intent.AmountBaseUnits),
		SubmittedAt:      o.opts.Now(),
		Status:           models.TransferPending,
	}
	o.transfer = record
	o.explorerURL = explorer
	o.lastErr = nil
	o.transitionLocked(StateDepositing, "Deposit sent")
	o.publishLocked()
	sessCtx := o.sessCtx
	o.mu.Unlock()

	o.logger.InfoWithChain(intent.SourceChain, "Deposit of %s %s sent to %s: %s",
		intent.Amount, intent.Token, quote.DepositAddress.Hex(), txHash.Hex())

	if o.opts.WaitForReceipt {
		if err := o.awaitReceipt(ctx, epoch, record); err != nil {
			return err
		}
	}

	o.mu.Lock()
	if epoch != o.epoch || o.closed {
		o.mu.Unlock()
		return ErrSessionReset
	}
	o.transitionLocked(StateBridging, fmt.Sprintf("Bridging to %s", o.destination.Name))
	o.publishLocked()
	o.wg.Add(1)
	o.mu.Unlock()

	go o.awaitSettlement(sessCtx, epoch, quote.RequestID)
	return nil
}

// awaitReceipt fails the transfer if the deposit reverted. Wallets that cannot
// report receipts, and receipt lookups that time out, leave settlement polling
// as the source of truth.
func (o *Orchestrator) awaitReceipt(ctx context.Context, epoch uint64, record *models.BridgeTransferRecord) error {
	waiter, ok := o.deps.Wallet.(wallet.ReceiptWaiter)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, o.opts.ReceiptTimeout)
	defer cancel()

	success, err := waiter.WaitForReceipt(ctx, record.SourceChain, record.TxHash)
	if err != nil {
		o.mu.Lock()
		reset := epoch != o.epoch
		o.mu.Unlock()
		if reset {
			return ErrSessionReset
		}
		o.logger.NoticeWithChain(record.SourceChain, "No receipt for %s yet: %v", record.TxHash.Hex(), err)
		return nil
	}
	if success {
		return nil
	}

	e := newError(KindSubmission, CodeTransactionReverted,
		"The deposit transaction failed on-chain. No funds were bridged.",
		fmt.Errorf("transaction %s reverted", record.TxHash.Hex()))
	metrics.SubmissionErrors.WithLabelValues(strconv.Itoa(record.SourceChain), e.Code).Inc()
	o.logger.ErrorWithChain(record.SourceChain, "Deposit reverted: %s", record.TxHash.Hex())

	o.mu.Lock()
	defer o.mu.Unlock()
	if epoch != o.epoch {
		return ErrSessionReset
	}
	o.transfer.Status = models.TransferFailed
	o.transfer.Reason = "deposit reverted"
	o.lastErr = e
	o.transitionLocked(StateError, e.Message)
	o.publishLocked()
	return e
}
