package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/brojonat/distadmin/service/db"
	"github.com/brojonat/distadmin/service/metrics"
	natspkg "github.com/brojonat/distadmin/service/nats"
	"github.com/brojonat/distadmin/service/reconcile"
	"github.com/brojonat/distadmin/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

// targets identifies the distributor fleet.
type targets struct {
	programID solanago.PublicKey
	base      solanago.PublicKey
	mint      solanago.PublicKey
}

func parseTargets(c *cli.Context) (targets, error) {
	var t targets
	var errs []error
	var err error
	if t.programID, err = requiredKey(c, "program-id"); err != nil {
		errs = append(errs, err)
	}
	if t.base, err = requiredKey(c, "base"); err != nil {
		errs = append(errs, err)
	}
	if t.mint, err = requiredKey(c, "mint"); err != nil {
		errs = append(errs, err)
	}
	return t, errors.Join(errs...)
}

func requiredKey(c *cli.Context, flag string) (solanago.PublicKey, error) {
	value := c.String(flag)
	if value == "" {
		return solanago.PublicKey{}, fmt.Errorf("--%s is required", flag)
	}
	key, err := solanago.PublicKeyFromBase58(value)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("--%s: invalid public key %q: %w", flag, value, err)
	}
	return key, nil
}

// loadKeypair reads a solana-keygen JSON keypair. A leading ~ expands to the home directory.
func loadKeypair(path string) (solanago.PrivateKey, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	key, err := solanago.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keypair %s: %w", path, err)
	}
	return key, nil
}

func retryPolicy(c *cli.Context) reconcile.RetryPolicy {
	p := reconcile.DefaultRetryPolicy()
	p.MaxAttempts = c.Int("max-attempts")
	p.InitialInterval = c.Duration("retry-initial-interval")
	p.MaximumInterval = c.Duration("retry-max-interval")
	return p
}

// session owns everything a reconciliation run needs. Close releases
// connections in reverse order of creation.
type session struct {
	targets    targets
	reconciler *reconcile.Reconciler
	metrics    *metrics.Metrics
	closers    []func()
}

func (rt *session) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

func newSession(c *cli.Context, tgt targets, logger *slog.Logger) (*session, error) {
	rt := &session{
		targets: tgt,
		metrics: metrics.NewMetrics(prometheus.NewRegistry()),
	}

	rpcURL := c.String("rpc-url")
	rateLimit := c.Float64("rpc-rate-limit")
	primary := solana.NewClient(
		solana.NewRPCClient(rpcURL, rateLimit, rt.metrics),
		tgt.programID,
		solana.EndpointLabel(rpcURL),
		rt.metrics,
		logger,
	)

	cfg := reconcile.Config{
		ProgramID: tgt.programID,
		Base:      tgt.base,
		Mint:      tgt.mint,
		Retry:     retryPolicy(c),
		Reader:    primary,
		Out:       c.App.Writer,
		Metrics:   rt.metrics,
		Logger:    logger,
	}

	if c.Bool("bs58") {
		cfg.Dispatcher = solana.NewOfflineDispatcher()
	} else {
		signer, err := loadKeypair(c.String("keypair"))
		if err != nil {
			return nil, err
		}
		send := primary
		if sendURL := c.String("send-rpc-url"); sendURL != "" && sendURL != rpcURL {
			send = solana.NewClient(
				solana.NewRPCClient(sendURL, rateLimit, rt.metrics),
				tgt.programID,
				solana.EndpointLabel(sendURL),
				rt.metrics,
				logger,
			)
		}
		cfg.Signer = signer.PublicKey()
		cfg.Dispatcher = solana.NewBroadcastDispatcher(solana.BroadcastConfig{
			Primary:        primary,
			Send:           send,
			Signer:         signer,
			ConfirmTimeout: c.Duration("confirm-timeout"),
			Metrics:        rt.metrics,
			Logger:         logger,
		})
		if c.IsSet("priority-fee") {
			fee := c.Uint64("priority-fee")
			cfg.PriorityFee = &fee
		}
	}

	recorders, err := rt.openRecorders(c, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if len(recorders) > 0 {
		cfg.Recorder = recorders
	}

	rt.reconciler, err = reconcile.New(cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// openRecorders connects the optional audit sinks. A configured sink that
// cannot be reached is fatal so runs are never silently unaudited.
func (rt *session) openRecorders(c *cli.Context, logger *slog.Logger) (reconcile.MultiRecorder, error) {
	var recorders reconcile.MultiRecorder

	if natsURL := c.String("nats-url"); natsURL != "" {
		publisher, err := natspkg.NewPublisher(natsURL, rt.metrics, logger)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("failed to close NATS publisher", "error", err)
			}
		})
		recorders = append(recorders, natspkg.NewRecorder(publisher))
	}

	if c.String("database-url") != "" {
		store, closer, err := getStore(c)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, closer)
		if err := store.EnsureSchema(c.Context); err != nil {
			return nil, err
		}
		recorders = append(recorders, db.NewRecorder(store, rt.metrics))
	}

	return recorders, nil
}

// pushMetrics sends the run's metrics to the Pushgateway when one is configured.
func (rt *session) pushMetrics(c *cli.Context, logger *slog.Logger) {
	gateway := c.String("pushgateway-url")
	if gateway == "" {
		return
	}
	if err := rt.metrics.Push(gateway, "distadmin"); err != nil {
		logger.Warn("failed to push metrics", "error", err)
	}
}

// getStore opens the history database.
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db.NewStore(pool), pool.Close, nil
}
