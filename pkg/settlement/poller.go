// Package settlement polls the relay status endpoint until a submitted
// transfer settles or the attempt budget runs out.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/speedrun-hq/bridgerunner/pkg/logger"
	"github.com/speedrun-hq/bridgerunner/pkg/metrics"
	"github.com/speedrun-hq/bridgerunner/pkg/models"
	"github.com/speedrun-hq/bridgerunner/pkg/relayclient"
)

const (
	// DefaultInterval is the delay before each status request
	DefaultInterval = 3 * time.Second

	// DefaultMaxAttempts bounds the number of status requests per transfer
	DefaultMaxAttempts = 60
)

// StatusSource fetches the relay's status for a request id
type StatusSource interface {
	Status(ctx context.Context, requestID string) (*relayclient.StatusResponse, error)
}

// Attempt is reported after every status request
type Attempt struct {
	Number int
	Status models.TransferStatus
	Err    error
}

// Outcome is the final result of polling. A TransferTimedOut status means the
// relay never confirmed within the budget; it is not a failure of the transfer.
type Outcome struct {
	Status   models.TransferStatus
	Attempts int
	Reason   string
	TxHashes []string
}

// Poller polls settlement status on a fixed interval
type Poller struct {
	source      StatusSource
	interval    time.Duration
	maxAttempts int
	logger      logger.Logger
}

// NewPoller creates a poller; non-positive values select the defaults
func NewPoller(source StatusSource, interval time.Duration, maxAttempts int, logger logger.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Poller{
		source:      source,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// MaxAttempts returns the attempt budget
func (p *Poller) MaxAttempts() int {
	return p.maxAttempts
}

// Poll waits one interval before each status request until the status is
// terminal or maxAttempts requests have been made. Failed requests count as
// attempts. When ctx ends Poll returns immediately with ctx's error and issues
// no further requests.
func (p *Poller) Poll(ctx context.Context, requestID string, onAttempt func(Attempt)) (Outcome, error) {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return Outcome{Status: models.TransferPending, Attempts: attempt - 1}, ctx.Err()
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return Outcome{Status: models.TransferPending, Attempts: attempt - 1}, ctx.Err()
		}

		metrics.PollAttempts.Inc()
		resp, err := p.source.Status(ctx, requestID)
		status := models.TransferPending
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{Status: models.TransferPending, Attempts: attempt}, ctx.Err()
			}
			lastErr = err
			p.logger.Debug("Status request %d/%d for %s failed: %v", attempt, p.maxAttempts, requestID, err)
		} else {
			status = resp.Normalized()
		}

		if onAttempt != nil {
			onAttempt(Attempt{Number: attempt, Status: status, Err: err})
		}

		if status.IsTerminal() {
			outcome := Outcome{Status: status, Attempts: attempt, TxHashes: resp.TxHashes}
			if status != models.TransferComplete {
				outcome.Reason = resp.Details
				if outcome.Reason == "" {
					outcome.Reason = fmt.Sprintf("relay reported %s", resp.Status)
				}
			}
			p.logger.Info("Request %s settled as %s after %d attempts", requestID, status, attempt)
			return outcome, nil
		}

		timer.Reset(p.interval)
	}

	reason := fmt.Sprintf("no terminal status after %d attempts", p.maxAttempts)
	if lastErr != nil {
		reason = fmt.Sprintf("%s (last error: %v)", reason, lastErr)
	}
	p.logger.Notice("Settlement of %s not confirmed yet: %s", requestID, reason)
	return Outcome{Status: models.TransferTimedOut, Attempts: p.maxAttempts, Reason: reason}, nil
}
