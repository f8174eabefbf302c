package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/speedrun-hq/bridgerunner/pkg/bridge"
	"github.com/speedrun-hq/bridgerunner/pkg/chainclient"
	"github.com/speedrun-hq/bridgerunner/pkg/chainswitch"
	"github.com/speedrun-hq/bridgerunner/pkg/circuitbreaker"
	"github.com/speedrun-hq/bridgerunner/pkg/config"
	"github.com/speedrun-hq/bridgerunner/pkg/fallback"
	"github.com/speedrun-hq/bridgerunner/pkg/health"
	"github.com/speedrun-hq/bridgerunner/pkg/logger"
	"github.com/speedrun-hq/bridgerunner/pkg/notify"
	"github.com/speedrun-hq/bridgerunner/pkg/relayclient"
	"github.com/speedrun-hq/bridgerunner/pkg/settlement"
	"github.com/speedrun-hq/bridgerunner/pkg/tracing"
	"github.com/speedrun-hq/bridgerunner/pkg/wallet"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	stdLogger := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)

	// Set up context with cancellation on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		stdLogger.Notice("Received termination signal, shutting down gracefully...")
		cancel()
	}()

	if err := run(ctx, cfg, stdLogger); err != nil {
		stdLogger.Error("Bridge session failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, stdLogger *logger.StdLogger) error {
	shutdownTracing, err := tracing.Init(ctx, cfg.OTLPEndpoint, stdLogger.WithScope("tracing"))
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %v", err)
	}
	defer shutdownTracing()

	s := cfg.Session
	clients := make([]*chainclient.Client, 0, 2)
	for _, chainID := range []int{s.SourceChain, s.DestinationChain} {
		d, _ := cfg.Registry.Chain(chainID)
		client, err := chainclient.Dial(ctx, chainID, d.RPCURL, 0, stdLogger.WithScope("rpc"))
		if err != nil {
			return err
		}
		stdLogger.InfoWithChain(chainID, "Connected to %s", d.Name)
		clients = append(clients, client)
	}

	keyed, err := wallet.NewKeyedWallet(cfg.PrivateKey, clients, s.SourceChain, stdLogger.WithScope("wallet"))
	if err != nil {
		return err
	}
	keyed.SetApprover(promptApprover(os.Stdin, os.Stdout))
	stdLogger.Info("Wallet address: %s", keyed.Address().Hex())

	breaker := circuitbreaker.NewCircuitBreaker(
		"relay",
		cfg.CircuitBreaker.Enabled,
		cfg.CircuitBreaker.Threshold,
		cfg.CircuitBreaker.WindowDuration,
		cfg.CircuitBreaker.ResetTimeout,
		stdLogger.WithScope("circuit"),
	)
	relay := relayclient.New(relayclient.Options{
		Endpoint:          cfg.Relay.APIEndpoint,
		RequestsPerSecond: cfg.Relay.RateLimit,
		Breaker:           breaker,
	}, stdLogger.WithScope("relay"))

	session, err := bridge.New(bridge.Params{
		SourceChain:      s.SourceChain,
		DestinationChain: s.DestinationChain,
		Token:            s.Token,
		Purpose:          s.Purpose,
		Recipient:        s.Recipient,
	}, bridge.Deps{
		Registry: cfg.Registry,
		Quotes:   relay,
		Wallet:   keyed,
		Balances: wallet.NewChainBalances(clients),
		Switcher: chainswitch.NewCoordinator(keyed, cfg.SwitchVerifyTimeout, stdLogger.WithScope("switch")),
		Poller:   settlement.NewPoller(relay, cfg.Settlement.PollInterval, cfg.Settlement.MaxAttempts, stdLogger.WithScope("settlement")),
		Fallback: fallback.NewBuilder(cfg.Relay.FallbackURL, cfg.Registry),
		Logger:   stdLogger.WithScope("bridge"),
	}, bridge.Options{
		Debounce:       s.QuoteDebounce,
		QuoteTTL:       s.QuoteTTL,
		WaitForReceipt: s.WaitForReceipt,
	})
	if err != nil {
		return err
	}
	defer session.Close()

	if cfg.NATSURL != "" {
		publisher, err := notify.Connect(cfg.NATSURL, stdLogger.WithScope("nats"))
		if err != nil {
			return err
		}
		detach := publisher.Attach(session)
		defer publisher.Close()
		defer detach()
	}

	server := health.NewServer(cfg.MetricsPort, cfg.MetricsAPIKey, session, relay.Breaker(), stdLogger.WithScope("health"))
	go server.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			stdLogger.Error("Failed to stop health server: %v", err)
		}
	}()

	if err := session.RefreshBalances(ctx); err != nil {
		stdLogger.Error("Failed to read balances: %v", err)
	}

	if s.Amount == "" {
		stdLogger.Notice("BRIDGE_AMOUNT not set, serving session status until shutdown")
		<-ctx.Done()
		return nil
	}
	return bridgeOnce(ctx, session, s.Amount, stdLogger)
}

// bridgeOnce quotes amount, executes the transfer and waits for settlement
func bridgeOnce(ctx context.Context, session *bridge.Orchestrator, amount string, log logger.Logger) error {
	ready := make(chan bridge.Snapshot, 1)
	done := make(chan bridge.Snapshot, 1)
	unsubscribe := session.Subscribe(func(snap bridge.Snapshot) {
		log.Debug("Session %s v%d: %s %s", snap.SessionID, snap.Version, snap.Status, snap.StatusMessage)
		switch {
		case snap.Status == bridge.StateReady && snap.Quote != nil:
			offer(ready, snap)
		case snap.Status.Terminal() || snap.Status == bridge.StateError:
			offer(done, snap)
		}
	})
	defer unsubscribe()

	if err := session.SetAmount(amount); err != nil {
		return err
	}

	select {
	case snap := <-ready:
		log.Info("Quote ready: %s", snap.StatusMessage)
	case snap := <-done:
		return sessionError(snap)
	case <-ctx.Done():
		return nil
	}

	err := session.Execute(ctx)
	if errors.Is(err, bridge.ErrExpiredQuote) {
		log.Notice("Quote expired, executing with the refreshed quote")
		err = session.Execute(ctx)
	}
	if err != nil {
		return err
	}

	select {
	case snap := <-done:
		if snap.Status == bridge.StateError {
			return sessionError(snap)
		}
		if snap.Error != nil {
			log.Notice("%s", snap.Error.Message)
		}
		log.Notice("Bridge finished: %s %s", snap.Status, snap.ExplorerURL)
		return nil
	case <-ctx.Done():
		return nil
	}
}

func offer(ch chan bridge.Snapshot, snap bridge.Snapshot) {
	select {
	case ch <- snap:
	default:
	}
}

func sessionError(snap bridge.Snapshot) error {
	if snap.Error == nil {
		return fmt.Errorf("session ended in %s", snap.Status)
	}
	if snap.FallbackURL != "" {
		return fmt.Errorf("%s (bridge manually at %s)", snap.Error.Message, snap.FallbackURL)
	}
	return errors.New(snap.Error.Message)
}

// promptApprover asks on the terminal before each signature
func promptApprover(in *os.File, out *os.File) wallet.Approver {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, req wallet.TxRequest) error {
		fmt.Fprintf(out, "Sign transaction to %s on chain %d? [y/N] ", req.To.Hex(), req.ChainID)
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("%w: %v", wallet.ErrUserRejected, err)
		}
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			return wallet.ErrUserRejected
		}
		return nil
	}
}
