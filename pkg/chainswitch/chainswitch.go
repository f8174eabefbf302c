// Package chainswitch asks a wallet to change its active network and verifies
// that the change took effect.
package chainswitch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/speedrun-hq/bridgerunner/pkg/logger"
	"github.com/speedrun-hq/bridgerunner/pkg/metrics"
	"github.com/speedrun-hq/bridgerunner/pkg/wallet"
)

// DefaultVerifyTimeout bounds the wait for a chain-changed notification
const DefaultVerifyTimeout = 5 * time.Second

// Reason classifies a failed switch
type Reason string

const (
	// ReasonRejected means the wallet owner declined the switch
	ReasonRejected Reason = "rejected"
	// ReasonTechnical means the switch request itself failed
	ReasonTechnical Reason = "technical"
	// ReasonUnverified means the wallet reported success but is still on another chain
	ReasonUnverified Reason = "unverified"
)

// SwitchError is returned when the wallet is not on the target chain after a switch attempt
type SwitchError struct {
	Reason   Reason
	Target   int
	Observed int
	Err      error
}

func (e *SwitchError) Error() string {
	switch e.Reason {
	case ReasonRejected:
		return fmt.Sprintf("switch to chain %d rejected", e.Target)
	case ReasonUnverified:
		return fmt.Sprintf("wallet still on chain %d after switching to chain %d", e.Observed, e.Target)
	default:
		return fmt.Sprintf("switch to chain %d failed: %v", e.Target, e.Err)
	}
}

func (e *SwitchError) Unwrap() error {
	return e.Err
}

// Result describes a successful EnsureChain call
type Result struct {
	// Switched is false when the wallet was already on the target chain
	Switched bool
	ChainID  int
}

// Coordinator switches the active network of a wallet
type Coordinator struct {
	wallet        wallet.Wallet
	verifyTimeout time.Duration
	logger        logger.Logger
}

// NewCoordinator creates a coordinator. A non-positive timeout selects DefaultVerifyTimeout.
func NewCoordinator(w wallet.Wallet, verifyTimeout time.Duration, logger logger.Logger) *Coordinator {
	if verifyTimeout <= 0 {
		verifyTimeout = DefaultVerifyTimeout
	}
	return &Coordinator{
		wallet:        w,
		verifyTimeout: verifyTimeout,
		logger:        logger,
	}
}

// EnsureChain makes target the wallet's active chain. It issues at most one
// switch request and never retries; a disagreeing wallet yields a SwitchError.
func (c *Coordinator) EnsureChain(ctx context.Context, target int) (Result, error) {
	current, err := c.wallet.ActiveChainID(ctx)
	if err != nil {
		return Result{}, c.fail(target, &SwitchError{Reason: ReasonTechnical, Target: target, Err: err})
	}
	if current == target {
		return Result{ChainID: target}, nil
	}

	c.logger.InfoWithChain(target, "Requesting wallet switch from chain %d", current)

	// subscribe before switching so the notification cannot be missed
	var changed chan int
	if notifier, ok := c.wallet.(wallet.ChainChangeNotifier); ok {
		changed = make(chan int, 8)
		unsubscribe := notifier.SubscribeChainChanged(func(chainID int) {
			select {
			case changed <- chainID:
			default:
			}
		})
		defer unsubscribe()
	}

	if err := c.wallet.RequestChainSwitch(ctx, target); err != nil {
		reason := ReasonTechnical
		if errors.Is(err, wallet.ErrUserRejected) {
			reason = ReasonRejected
		}
		return Result{}, c.fail(target, &SwitchError{Reason: reason, Target: target, Observed: current, Err: err})
	}

	if changed != nil {
		c.waitForEvent(ctx, target, changed)
	}

	observed, err := c.wallet.ActiveChainID(ctx)
	if err != nil {
		return Result{}, c.fail(target, &SwitchError{Reason: ReasonTechnical, Target: target, Err: err})
	}
	if observed != target {
		return Result{}, c.fail(target, &SwitchError{Reason: ReasonUnverified, Target: target, Observed: observed})
	}

	metrics.ChainSwitches.WithLabelValues(strconv.Itoa(target), "switched").Inc()
	c.logger.InfoWithChain(target, "Wallet switch verified")
	return Result{Switched: true, ChainID: target}, nil
}

// waitForEvent waits for a notification naming target, or until the verify timeout
func (c *Coordinator) waitForEvent(ctx context.Context, target int, changed <-chan int) {
	timer := time.NewTimer(c.verifyTimeout)
	defer timer.Stop()

	for {
		select {
		case chainID := <-changed:
			if chainID == target {
				return
			}
		case <-timer.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Coordinator) fail(target int, err *SwitchError) error {
	metrics.ChainSwitches.WithLabelValues(strconv.Itoa(target), string(err.Reason)).Inc()
	if err.Reason == ReasonRejected {
		c.logger.NoticeWithChain(target, "Chain switch declined by user")
	} else {
		c.logger.ErrorWithChain(target, "Chain switch failed: %v", err)
	}
	return err
}
