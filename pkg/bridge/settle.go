package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/speedrun-hq/bridgerunner/pkg/metrics"
	"github.com/speedrun-hq/bridgerunner/pkg/models"
	"github.com/speedrun-hq/bridgerunner/pkg/settlement"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// awaitSettlement polls the relay until the deposit settles, then refreshes balances
func (o *Orchestrator) awaitSettlement(ctx context.Context, epoch uint64, requestID string) {
	defer o.wg.Done()

	ctx, span := o.tracer.Start(ctx, "bridge.settlement", trace.WithAttributes(
		attribute.String("bridge.request_id", requestID),
		attribute.Int("bridge.destination_chain", o.params.DestinationChain),
	))
	defer span.End()

	maxAttempts := o.deps.Poller.MaxAttempts()
	outcome, err := o.deps.Poller.Poll(ctx, requestID, func(a settlement.Attempt) {
		o.mu.Lock()
		defer o.mu.Unlock()
		if epoch != o.epoch || o.transfer == nil {
			return
		}
		o.transfer.PollAttempts = a.Number
		o.statusMessage = fmt.Sprintf("Waiting for delivery on %s (check %d of %d)", o.destination.Name, a.Number, maxAttempts)
		o.publishLocked()
	})
	if err != nil {
		o.logger.Debug("Settlement polling for %s stopped: %v", requestID, err)
		return
	}
	span.SetAttributes(
		attribute.String("bridge.settlement_status", string(outcome.Status)),
		attribute.Int("bridge.poll_attempts", outcome.Attempts),
	)

	o.mu.Lock()
	if epoch != o.epoch || o.transfer == nil {
		o.mu.Unlock()
		return
	}
	o.transfer.PollAttempts = outcome.Attempts
	o.transfer.Status = outcome.Status
	o.transfer.Reason = outcome.Reason
	metrics.SettlementOutcomes.WithLabelValues(strconv.Itoa(o.params.DestinationChain), string(outcome.Status)).Inc()

	switch outcome.Status {
	case models.TransferComplete:
		o.lastErr = nil
		o.transitionLocked(StateComplete, fmt.Sprintf("Bridge complete. Funds delivered on %s", o.destination.Name))
		o.logger.NoticeWithChain(o.params.DestinationChain, "Request %s settled after %d checks", requestID, outcome.Attempts)
	case models.TransferTimedOut:
		o.lastErr = &Error{
			Kind:     KindSettlementTimeout,
			Code:     CodeSettlementDelayed,
			Message:  "Your deposit went through. Delivery is taking longer than usual and funds typically arrive shortly.",
			Err:      errors.New(outcome.Reason),
			Advisory: true,
		}
		o.transitionLocked(StateSettlementDelayed, o.lastErr.Message)
		o.logger.NoticeWithChain(o.params.DestinationChain, "Request %s not confirmed yet: %s", requestID, outcome.Reason)
	case models.TransferRefunded:
		o.lastErr = newError(KindSettlement, CodeSettlementRefunded,
			fmt.Sprintf("The bridge refunded your deposit on %s.", o.source.Name), errors.New(outcome.Reason))
		o.transitionLocked(StateError, o.lastErr.Message)
		o.logger.ErrorWithChain(o.params.DestinationChain, "Request %s refunded: %s", requestID, outcome.Reason)
	default:
		o.lastErr = newError(KindSettlement, CodeSettlementFailed,
			fmt.Sprintf("The bridge could not deliver your funds: %s", outcome.Reason), errors.New(outcome.Reason))
		o.transitionLocked(StateError, o.lastErr.Message)
		o.logger.ErrorWithChain(o.params.DestinationChain, "Request %s failed: %s", requestID, outcome.Reason)
	}
	if o.lastErr != nil && !o.lastErr.Advisory {
		span.SetStatus(codes.Error, o.lastErr.Code)
	}
	o.publishLocked()
	o.mu.Unlock()

	if err := o.refreshBalances(ctx, epoch); err != nil {
		o.logger.Debug("Balance refresh after settlement failed: %v", err)
	}
}

// refreshBalances reads the sender's source balance and the recipient's
// destination balance and publishes them
func (o *Orchestrator) refreshBalances(ctx context.Context, epoch uint64) error {
	type target struct {
		chainID int
		token   common.Address
		owner   common.Address
		symbol  string
	}
	targets := []target{
		{o.params.SourceChain, o.token.Address, o.deps.Wallet.Address(), string(o.token.Symbol)},
		{o.params.DestinationChain, o.destCurrency, o.params.Recipient, o.destSymbol},
	}

	var errs []error
	results := make(map[int]string, len(targets))
	for _, t := range targets {
		balance, err := o.deps.Balances.TokenBalance(ctx, t.chainID, t.token, t.owner)
		if err != nil {
			errs = append(errs, fmt.Errorf("chain %d: %w", t.chainID, err))
			continue
		}
		results[t.chainID] = balance
		if d, err := decimal.NewFromString(balance); err == nil {
			metrics.TokenBalance.WithLabelValues(strconv.Itoa(t.chainID), t.symbol).Set(d.InexactFloat64())
		}
	}

	o.mu.Lock()
	if epoch == o.epoch && len(results) > 0 {
		for chainID, balance := range results {
			o.balances[chainID] = balance
		}
		o.publishLocked()
	}
	o.mu.Unlock()

	return errors.Join(errs...)
}
