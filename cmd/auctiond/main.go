package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomsrud/auctionhouse/internal/api"
	"github.com/tomsrud/auctionhouse/internal/auction"
	"github.com/tomsrud/auctionhouse/internal/clock"
	"github.com/tomsrud/auctionhouse/internal/config"
	"github.com/tomsrud/auctionhouse/internal/health"
	"github.com/tomsrud/auctionhouse/internal/leader"
	"github.com/tomsrud/auctionhouse/internal/ledger"
	"github.com/tomsrud/auctionhouse/internal/store"
	"github.com/tomsrud/auctionhouse/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/tomsrud/auctionhouse/internal/store/memory"
	_ "github.com/tomsrud/auctionhouse/internal/store/postgres"
	_ "github.com/tomsrud/auctionhouse/internal/store/stdsql"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration.
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup telemetry.
	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	// Open store using the configured driver.
	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "connected to store", slog.String("driver", cfg.Database.Driver))

	// Initialize managers. The ledger manager is the token gateway every
	// auction escrow, refund and settlement goes through.
	ledgerMgr := ledger.NewManager(repos.Accounts, repos.Events, logger, tp.TracerProvider)
	auctionMgr := auction.NewManager(repos.Auctions, repos.Events, ledgerMgr, cfg.Ledger.EscrowAccount, logger, tp.TracerProvider, clk)

	// Setup health checks.
	healthHandler := health.NewHandler(clk,
		health.Checker{
			Name:  "database",
			Check: repos.Ping,
		},
	)

	// The health endpoints run on all replicas; the API handlers answer 503
	// through readiness gating on non-leaders because the load balancer only
	// routes to ready replicas.
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler.LivenessHandler())
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler())
	api.NewServer(auctionMgr, ledgerMgr, cfg.Ledger.AdminAccount, logger).Routes(mux)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting http server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
			logger.ErrorContext(ctx, "http server error", slog.Any("error", listenErr))
		}
	}()

	// serve is the core work that only the leader should run.
	serve := func(ctx context.Context) {
		// Rehydrate open auctions from their records so in-flight auctions
		// survive leader failover.
		if n, recoverErr := auctionMgr.RecoverOpenAuctions(ctx); recoverErr != nil {
			logger.ErrorContext(ctx, "auction recovery failed", slog.Any("error", recoverErr))
			return
		} else if n > 0 {
			logger.InfoContext(ctx, "recovered open auctions", slog.Int("count", n))
		}

		healthHandler.SetReady(true)
		logger.InfoContext(ctx, "auctiond is running (leader)", slog.String("version", version))

		// Block until leadership is lost or process is shutting down.
		<-ctx.Done()
		healthHandler.SetReady(false)
	}

	if cfg.LeaderElection.Enabled {
		logger.InfoContext(ctx, "leader election enabled, waiting for leadership...")

		if leaderErr := leader.Run(ctx, leader.Config(cfg.LeaderElection), logger, serve, func() {
			logger.Info("lost leadership, shutting down...")
			cancel()
		}); leaderErr != nil {
			return fmt.Errorf("leader election: %w", leaderErr)
		}
	} else {
		// No leader election, run directly.
		if n, recoverErr := auctionMgr.RecoverOpenAuctions(ctx); recoverErr != nil {
			return fmt.Errorf("auction recovery: %w", recoverErr)
		} else if n > 0 {
			logger.InfoContext(ctx, "recovered open auctions", slog.Int("count", n))
		}

		healthHandler.SetReady(true)
		logger.InfoContext(ctx, "auctiond is running", slog.String("version", version))

		// Wait for shutdown signal.
		<-ctx.Done()
		logger.Info("shutting down...")
		healthHandler.SetReady(false)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}
