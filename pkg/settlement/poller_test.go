package settlement

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/speedrun-hq/bridgerunner/pkg/logger"
	"github.com/speedrun-hq/bridgerunner/pkg/models"
	"github.com/speedrun-hq/bridgerunner/pkg/relayclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource answers with the scripted statuses in order, repeating the last
type scriptedSource struct {
	mu        sync.Mutex
	responses []*relayclient.StatusResponse
	errs      []error
	calls     int32
}

func (s *scriptedSource) Status(ctx context.Context, requestID string) (*relayclient.StatusResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := int(atomic.AddInt32(&s.calls, 1)) - 1
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

func (s *scriptedSource) count() int {
	return int(atomic.LoadInt32(&s.calls))
}

func TestPollCompletesOnSecondAttempt(t *testing.T) {
	source := &scriptedSource{responses: []*relayclient.StatusResponse{
		{Status: "pending"},
		{Status: "success", TxHashes: []string{"0xfill"}},
	}}
	p := NewPoller(source, time.Millisecond, 60, &logger.EmptyLogger{})

	var attempts []Attempt
	outcome, err := p.Poll(context.Background(), "0xreq", func(a Attempt) { attempts = append(attempts, a) })
	require.NoError(t, err)

	assert.Equal(t, models.TransferComplete, outcome.Status)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Equal(t, []string{"0xfill"}, outcome.TxHashes)
	assert.Equal(t, 2, source.count())
	require.Len(t, attempts, 2)
	assert.Equal(t, models.TransferPending, attempts[0].Status)
}

func TestPollFailureCarriesReason(t *testing.T) {
	tests := []struct {
		name   string
		resp   *relayclient.StatusResponse
		status models.TransferStatus
		reason string
	}{
		{"failed with details", &relayclient.StatusResponse{Status: "failed", Details: "slippage"}, models.TransferFailed, "slippage"},
		{"refunded", &relayclient.StatusResponse{Status: "refunded"}, models.TransferRefunded, "relay reported refunded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &scriptedSource{responses: []*relayclient.StatusResponse{tt.resp}}
			p := NewPoller(source, time.Millisecond, 5, &logger.EmptyLogger{})

			outcome, err := p.Poll(context.Background(), "0xreq", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.status, outcome.Status)
			assert.Equal(t, tt.reason, outcome.Reason)
		})
	}
}

func TestPollTimesOutWithinBudget(t *testing.T) {
	source := &scriptedSource{
		responses: []*relayclient.StatusResponse{{Status: "pending"}},
		errs:      []error{errors.New("502"), nil, errors.New("timeout")},
	}
	p := NewPoller(source, time.Millisecond, 5, &logger.EmptyLogger{})

	outcome, err := p.Poll(context.Background(), "0xreq", nil)
	require.NoError(t, err)
	assert.Equal(t, models.TransferTimedOut, outcome.Status)
	assert.Equal(t, 5, outcome.Attempts)
	assert.Equal(t, 5, source.count(), "errors count against the attempt budget")
	assert.Contains(t, outcome.Reason, "no terminal status after 5 attempts")
}

func TestPollStopsOnCancel(t *testing.T) {
	source := &scriptedSource{responses: []*relayclient.StatusResponse{{Status: "pending"}}}
	p := NewPoller(source, 5*time.Millisecond, 1000, &logger.EmptyLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Poll(ctx, "0xreq", nil)
		done <- err
	}()

	require.Eventually(t, func() bool { return source.count() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poll did not stop after cancel")
	}

	stopped := source.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, source.count(), "no requests after cancel")
}

func TestNewPollerDefaults(t *testing.T) {
	p := NewPoller(&scriptedSource{}, 0, 0, &logger.EmptyLogger{})
	assert.Equal(t, DefaultInterval, p.interval)
	assert.Equal(t, DefaultMaxAttempts, p.MaxAttempts())
}
