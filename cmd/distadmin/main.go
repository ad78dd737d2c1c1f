package main

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// A missing .env file is fine; flags and the environment still apply.
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "distadmin",
		Usage: "Reconcile administrative settings across versioned merkle distributors",
		Description: `Pushes one administrative change (admin, clawback receiver or clawback start
timestamp) to every distributor version found in a directory of merkle-tree
files or in an inclusive version range. Versions that already hold the desired
value are skipped. With --bs58 nothing is signed: an unsigned base-58 message
is printed per version for multisig signing.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Before: func(c *cli.Context) error {
			slog.SetDefault(newLogger(c.App.ErrWriter, c.String("log-level"), c.Bool("json")))
			return nil
		},
		Commands: []*cli.Command{
			setAdminCommand(),
			setClawbackReceiverCommand(),
			setClawbackStartTsCommand(),
			historyCommand(),
			{
				Name:  "temporal",
				Usage: "Durable reconciliation through a Temporal worker",
				Subcommands: []*cli.Command{
					startReconcileCommand(),
					describeReconcileCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: globalFlags(),
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "rpc-url",
			Aliases: []string{"u"},
			Usage:   "Solana RPC URL for reads, blockhashes and confirmation polling",
			EnvVars: []string{"SOLANA_RPC_URL"},
			Value:   "https://api.mainnet-beta.solana.com",
		},
		&cli.StringFlag{
			Name:    "send-rpc-url",
			Usage:   "Separate RPC URL for admin transfers (defaults to --rpc-url)",
			EnvVars: []string{"SOLANA_SEND_RPC_URL"},
		},
		&cli.StringFlag{
			Name:    "program-id",
			Usage:   "Merkle distributor program id",
			EnvVars: []string{"PROGRAM_ID"},
		},
		&cli.StringFlag{
			Name:    "base",
			Usage:   "Base key the distributor PDAs are derived from",
			EnvVars: []string{"BASE"},
		},
		&cli.StringFlag{
			Name:    "mint",
			Usage:   "Token mint of the distributors",
			EnvVars: []string{"MINT"},
		},
		&cli.StringFlag{
			Name:    "keypair",
			Aliases: []string{"k"},
			Usage:   "Path to the admin keypair file (broadcast mode only)",
			EnvVars: []string{"KEYPAIR_PATH"},
			Value:   "~/.config/solana/id.json",
		},
		&cli.Uint64Flag{
			Name:    "priority-fee",
			Usage:   "Compute unit price in micro-lamports (broadcast mode only)",
			EnvVars: []string{"PRIORITY_FEE"},
		},
		&cli.BoolFlag{
			Name:    "bs58",
			Usage:   "Print unsigned base-58 messages instead of broadcasting",
			EnvVars: []string{"BS58"},
		},
		&cli.Float64Flag{
			Name:    "rpc-rate-limit",
			Usage:   "Client-side RPC requests per second per endpoint (0 disables)",
			EnvVars: []string{"RPC_RATE_LIMIT"},
		},
		&cli.IntFlag{
			Name:    "max-attempts",
			Usage:   "Attempts per version before giving up (0 retries until success)",
			EnvVars: []string{"MAX_ATTEMPTS"},
			Value:   10,
		},
		&cli.DurationFlag{
			Name:    "retry-initial-interval",
			Usage:   "Delay before the first retry",
			EnvVars: []string{"RETRY_INITIAL_INTERVAL"},
			Value:   time.Second,
		},
		&cli.DurationFlag{
			Name:    "retry-max-interval",
			Usage:   "Upper bound for the retry delay",
			EnvVars: []string{"RETRY_MAX_INTERVAL"},
			Value:   30 * time.Second,
		},
		&cli.DurationFlag{
			Name:    "confirm-timeout",
			Usage:   "How long to wait for confirmation when an operation requires it",
			EnvVars: []string{"CONFIRM_TIMEOUT"},
			Value:   90 * time.Second,
		},
		&cli.StringFlag{
			Name:    "nats-url",
			Usage:   "NATS server URL for outcome events (empty disables)",
			EnvVars: []string{"NATS_URL"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Database connection URL for run history (empty disables)",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "pushgateway-url",
			Usage:   "Prometheus Pushgateway URL to push run metrics to (empty disables)",
			EnvVars: []string{"PUSHGATEWAY_URL"},
		},
		&cli.StringFlag{
			Name:    "temporal-host",
			Usage:   "Temporal server address",
			EnvVars: []string{"TEMPORAL_HOST"},
			Value:   "localhost:7233",
		},
		&cli.StringFlag{
			Name:    "temporal-namespace",
			Usage:   "Temporal namespace",
			EnvVars: []string{"TEMPORAL_NAMESPACE"},
			Value:   "default",
		},
		&cli.StringFlag{
			Name:    "temporal-task-queue",
			Usage:   "Temporal task queue the worker listens on",
			EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
			Value:   "distadmin-reconcile",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			EnvVars: []string{"LOG_LEVEL"},
			Value:   "info",
		},
		&cli.BoolFlag{
			Name:    "json",
			Aliases: []string{"j"},
			Usage:   "Output in JSON format (history, describe and logs)",
		},
	}
}

// newLogger writes human-readable tinted logs, or JSON when jsonLogs is set.
// Logs never go to stdout; stdout carries the per-version console lines.
func newLogger(w io.Writer, levelStr string, jsonLogs bool) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := parseLevel(levelStr)
	if jsonLogs {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func parseLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
