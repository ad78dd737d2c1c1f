package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/distadmin/service/config"
	"github.com/brojonat/distadmin/service/db"
	"github.com/brojonat/distadmin/service/metrics"
	natspkg "github.com/brojonat/distadmin/service/nats"
	"github.com/brojonat/distadmin/service/reconcile"
	"github.com/brojonat/distadmin/service/solana"
	"github.com/brojonat/distadmin/service/temporal"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	_ = godotenv.Load()

	// Load and validate configuration from environment
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting temporal worker",
		"temporal_host", cfg.TemporalHost,
		"namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
		"log_level", cfg.LogLevel,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	// Start metrics HTTP server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		logger.Info("starting metrics HTTP server", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}()

	signer, err := solanago.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath)
	if err != nil {
		logger.Error("failed to read keypair", "path", cfg.KeypairPath, "error", err)
		os.Exit(1)
	}

	// Reads, blockhashes and confirmation polling go to the primary endpoint;
	// admin transfers are submitted through the send endpoint.
	primary := solana.NewClient(
		solana.NewRPCClient(cfg.SolanaRPCURL, cfg.RPCRateLimit, metricsCollector),
		cfg.ProgramID,
		solana.EndpointLabel(cfg.SolanaRPCURL),
		metricsCollector,
		logger,
	)
	send := primary
	if cfg.SolanaSendRPCURL != cfg.SolanaRPCURL {
		send = solana.NewClient(
			solana.NewRPCClient(cfg.SolanaSendRPCURL, cfg.RPCRateLimit, metricsCollector),
			cfg.ProgramID,
			solana.EndpointLabel(cfg.SolanaSendRPCURL),
			metricsCollector,
			logger,
		)
	}

	reconciler, err := reconcile.New(reconcile.Config{
		ProgramID:   cfg.ProgramID,
		Base:        cfg.Base,
		Mint:        cfg.Mint,
		PriorityFee: cfg.PriorityFee,
		Signer:      signer.PublicKey(),
		Reader:      primary,
		Dispatcher: solana.NewBroadcastDispatcher(solana.BroadcastConfig{
			Primary:        primary,
			Send:           send,
			Signer:         signer,
			ConfirmTimeout: cfg.ConfirmTimeout,
			Metrics:        metricsCollector,
			Logger:         logger,
		}),
		Metrics: metricsCollector,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to create reconciler", "error", err)
		os.Exit(1)
	}
	logger.Info("initialized reconciler",
		"program_id", cfg.ProgramID.String(),
		"base", cfg.Base.String(),
		"mint", cfg.Mint.String(),
		"signer", signer.PublicKey().String(),
	)

	var recorders reconcile.MultiRecorder

	if cfg.NATSURL != "" {
		natsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer natsPublisher.Close()
		recorders = append(recorders, natspkg.NewRecorder(natsPublisher))
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}

	if cfg.DatabaseURL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := dbPool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}

		store := db.NewStore(dbPool)
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		recorders = append(recorders, db.NewRecorder(store, metricsCollector))
		logger.Info("connected to database")
	}

	workerConfig := temporal.WorkerConfig{
		TemporalHost:      cfg.TemporalHost,
		TemporalNamespace: cfg.TemporalNamespace,
		TaskQueue:         cfg.TemporalTaskQueue,
		Reconciler:        reconciler,
		Mint:              cfg.Mint,
		Metrics:           metricsCollector,
		Logger:            logger,
	}
	if len(recorders) > 0 {
		workerConfig.Recorder = recorders
	}

	worker, err := temporal.NewWorker(workerConfig)
	if err != nil {
		logger.Error("failed to create temporal worker", "error", err)
		os.Exit(1)
	}

	logger.Info("temporal worker initialized, all dependencies ready",
		"primary_endpoint", primary.Endpoint(),
		"send_endpoint", send.Endpoint(),
		"audit_sinks", len(recorders),
	)

	// Start worker in background
	workerErrors := make(chan error, 1)
	go func() {
		workerErrors <- worker.Start()
	}()

	// Wait for shutdown signal or worker error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-workerErrors:
		logger.Error("temporal worker error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		worker.Stop()
		logger.Info("shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
