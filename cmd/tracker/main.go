package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/angerman/encoins-relay/delegs"
	"github.com/angerman/encoins-relay/delegs/config"
	"github.com/angerman/encoins-relay/delegs/store/filestore"
	"github.com/angerman/encoins-relay/delegs/store/pgxstore"
	"github.com/angerman/encoins-relay/migrator"
	"github.com/angerman/encoins-relay/pkg/cardano"
	"github.com/angerman/encoins-relay/pkg/clock"
	"github.com/angerman/encoins-relay/pkg/keys"
	"github.com/angerman/encoins-relay/pkg/logger"
	"github.com/angerman/encoins-relay/pkg/pgxdb"
	"github.com/angerman/encoins-relay/web/handler"
)

func main() {
	// Load configuration
	cfg := config.New()

	// Initialize logger and set as default
	log := logger.NewFromConfig(logger.Config{
		LogLevel:         cfg.LogLevel,
		LogHumanFriendly: cfg.LogHumanFriendly,
	})
	slog.SetDefault(log)

	// Prepare context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TokenPolicyID == "" {
		log.ErrorContext(ctx, "RELAY_TOKEN_POLICY_ID must be set")
		os.Exit(1)
	}

	// Snapshot store backend
	store, storeCloser, err := newStore(ctx, cfg)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize snapshot store", slog.Any("error", err))
		os.Exit(1)
	}
	defer storeCloser()

	// HTTP client & indexer client
	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}
	indexer := cardano.NewClient(httpClient, cfg.IndexerURL)

	// Core components
	decoder := delegs.NewDecoder(indexer, keys.Fingerprint, cfg.CheckSignature)
	cache := delegs.NewStateCache(cfg.MaxStaleness, clock.SystemClock{})

	service := delegs.NewService(
		indexer,
		store,
		cache,
		decoder,
		cfg.Asset(),
		delegs.WithScanInterval(cfg.ScanInterval),
		delegs.WithFetchConcurrency(cfg.FetchConcurrency),
	)

	// Start service
	log.InfoContext(ctx, "Starting delegation tracker",
		slog.String("network", cfg.Network),
		slog.String("asset", cfg.Asset()),
		slog.String("store", cfg.StoreBackend),
		slog.Duration("scanInterval", cfg.ScanInterval),
		slog.Bool("checkSignature", cfg.CheckSignature),
	)
	events, done := service.Start(ctx)

	// Subscribe to events for logging
	subCloser := setupEventLogging(ctx, events, log)
	defer subCloser()

	// Read-side HTTP surface over the state cache
	mux := http.NewServeMux()
	stateHandler := handler.NewDelegationState(cache, cfg.MinTokenAmount, cfg.RewardTokenThreshold)
	stateHandler.AddRoutes(mux)
	loggedMux := logger.NewMiddleware(log)(mux)

	addr := net.JoinHostPort(cfg.HTTPHost, cfg.HTTPPort)
	server := &http.Server{
		Addr:    addr,
		Handler: loggedMux,
	}

	go func() {
		log.InfoContext(ctx, "Server started", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ErrorContext(ctx, "Server failed", slog.Any("error", err))
			stop()
		}
	}()

	// Wait for shutdown
	<-done
	_ = server.Shutdown(context.Background())
	log.InfoContext(ctx, "Delegation tracker stopped gracefully")
}

// newStore selects the snapshot store backend from configuration. The
// postgres backend applies schema migrations at startup.
func newStore(ctx context.Context, cfg config.Config) (delegs.ProgressStore, func(), error) {
	switch cfg.StoreBackend {
	case "postgres":
		db, err := pgxdb.NewConnection(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := migrator.ApplyMigrations(db, cfg.MigrationsDir); err != nil {
			db.Close()
			return nil, nil, err
		}
		store, closer := pgxstore.New(db)
		return store, closer, nil
	default:
		store, err := filestore.New(cfg.DelegationDir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

// setupEventLogging configures event handlers using slog directly
func setupEventLogging(ctx context.Context, events <-chan delegs.Event, log *slog.Logger) func() {
	return delegs.NewSubscriber(events,
		delegs.OnRecovered(func(event delegs.Recovered) {
			log.InfoContext(ctx, "Checkpoint recovered",
				slog.String("savedAt", event.At.Format(logger.TimeFormat)),
				slog.Int("delegations", event.Delegations),
				slog.String("lastTxId", event.LastTxID),
			)
		}),
		delegs.OnStartupFailed(func(event delegs.StartupFailed) {
			log.ErrorContext(ctx, "Startup failed, operator intervention required", slog.Any("error", event.Err))
		}),
		delegs.OnScanStarted(func(event delegs.ScanStarted) {
			log.InfoContext(ctx, "Scanning started",
				slog.Duration("interval", event.Interval),
			)
		}),
		delegs.OnCycleCompleted(func(event delegs.CycleCompleted) {
			if event.Fetched > 0 {
				log.InfoContext(ctx, "Scan cycle completed",
					slog.Int("fetched", event.Fetched),
					slog.Int("discovered", event.Discovered),
					slog.Int("skipped", event.Skipped),
					slog.Int("delegations", event.Delegations),
					slog.Int("endpoints", event.Endpoints),
					slog.String("lastTxId", event.LastTxID),
					slog.Duration("duration", event.Duration),
				)
			} else {
				log.InfoContext(ctx, "Scan cycle completed, no new transactions",
					slog.Int("delegations", event.Delegations),
					slog.Int("endpoints", event.Endpoints),
				)
			}
		}),
		delegs.OnCycleError(func(event delegs.CycleError) {
			log.ErrorContext(ctx, "Scan cycle failed", slog.Any("error", event.Err))
		}),
		delegs.OnShutdown(func(event delegs.Shutdown) {
			log.InfoContext(ctx, "Scanning stopped",
				slog.String("reason", event.Reason.Error()),
			)
		}),
	)
}
