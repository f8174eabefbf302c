package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	QuotesRequested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_quotes_requested_total",
		Help: "The total number of quote requests sent to the relay",
	}, []string{"source_chain", "destination_chain"})

	QuotesDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_quotes_discarded_total",
		Help: "Quote responses dropped because a newer request was issued",
	})

	QuoteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_quote_errors_total",
		Help: "Quote failures by error kind",
	}, []string{"kind"})

	QuoteLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bridge_quote_latency_seconds",
		Help:    "Time taken by the relay to return a quote",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	ChainSwitches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_chain_switch_total",
		Help: "Wallet network switch attempts by outcome",
	}, []string{"target_chain", "outcome"})

	TransfersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_transfers_submitted_total",
		Help: "Deposit transfers broadcast to the source chain",
	}, []string{"source_chain", "destination_chain"})

	SubmissionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_submission_errors_total",
		Help: "Failed or declined deposit submissions",
	}, []string{"source_chain", "reason"})

	SettlementOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_settlement_outcomes_total",
		Help: "Final settlement status of submitted transfers",
	}, []string{"destination_chain", "status"})

	PollAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_settlement_poll_attempts_total",
		Help: "Settlement status requests sent to the relay",
	})

	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_state_transitions_total",
		Help: "Orchestrator state transitions by target state",
	}, []string{"state"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_active_sessions",
		Help: "Bridge sessions that have not been closed",
	})

	TokenBalance = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bridge_token_balance",
		Help: "Last observed token balance of the session owner",
	}, []string{"chain_id", "token"})
)
