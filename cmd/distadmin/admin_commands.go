package main

import (
	"fmt"
	"log/slog"

	"github.com/brojonat/distadmin/service/reconcile"
	"github.com/brojonat/distadmin/service/versions"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

// sourceFlags select the versions a command visits.
func sourceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "merkle-tree-path",
			Aliases: []string{"p"},
			Usage:   "Directory of merkle-tree files; one version per file",
		},
		&cli.Uint64Flag{
			Name:  "from-version",
			Usage: "First version of an inclusive range",
		},
		&cli.Uint64Flag{
			Name:  "to-version",
			Usage: "Last version of an inclusive range",
		},
		&cli.StringFlag{
			Name:  "version-path",
			Usage: "jq path of the version field inside a merkle-tree file",
			Value: versions.DefaultVersionPath,
		},
	}
}

// versionSource builds the Source named by the flags. Ranges are validated
// here; tree files are read when the source is resolved.
func versionSource(c *cli.Context) (versions.Source, error) {
	dir := c.String("merkle-tree-path")
	hasRange := c.IsSet("from-version") || c.IsSet("to-version")

	var source versions.Source
	switch {
	case dir != "" && hasRange:
		return nil, fmt.Errorf("use either --merkle-tree-path or --from-version/--to-version, not both")
	case dir != "":
		parser, err := versions.NewTreeParser(c.String("version-path"))
		if err != nil {
			return nil, err
		}
		source = versions.FromDirectory(dir, parser)
	case c.IsSet("from-version") && c.IsSet("to-version"):
		rng, err := versions.FromRange(c.Uint64("from-version"), c.Uint64("to-version"))
		if err != nil {
			return nil, err
		}
		source = rng
	case hasRange:
		return nil, fmt.Errorf("--from-version and --to-version must be given together")
	default:
		return nil, fmt.Errorf("one of --merkle-tree-path or --from-version/--to-version is required")
	}

	return source, nil
}

func setAdminCommand() *cli.Command {
	return &cli.Command{
		Name:  "set-admin",
		Usage: "Transfer the distributor admin to a new key",
		Flags: append(sourceFlags(),
			&cli.StringFlag{
				Name:     "new-admin",
				Usage:    "Public key of the new admin",
				Required: true,
			},
		),
		Action: func(c *cli.Context) error {
			return runOperation(c, func(targets) (reconcile.Operation, error) {
				key, err := solanago.PublicKeyFromBase58(c.String("new-admin"))
				if err != nil {
					return nil, fmt.Errorf("--new-admin: invalid public key: %w", err)
				}
				return reconcile.SetAdmin{NewAdmin: key}, nil
			})
		},
	}
}

func setClawbackReceiverCommand() *cli.Command {
	return &cli.Command{
		Name:  "set-clawback-receiver",
		Usage: "Point the clawback at the receiver's associated token account",
		Flags: append(sourceFlags(),
			&cli.StringFlag{
				Name:     "receiver",
				Usage:    "Wallet that owns the clawback token account",
				Required: true,
			},
		),
		Action: func(c *cli.Context) error {
			return runOperation(c, func(t targets) (reconcile.Operation, error) {
				key, err := solanago.PublicKeyFromBase58(c.String("receiver"))
				if err != nil {
					return nil, fmt.Errorf("--receiver: invalid public key: %w", err)
				}
				return reconcile.NewSetClawbackReceiver(key, t.mint)
			})
		},
	}
}

func setClawbackStartTsCommand() *cli.Command {
	return &cli.Command{
		Name:  "set-clawback-start-ts",
		Usage: "Change the clawback start timestamp",
		Flags: append(sourceFlags(),
			&cli.Int64Flag{
				Name:     "clawback-start-ts",
				Usage:    "New clawback start as a unix timestamp",
				Required: true,
			},
		),
		Action: func(c *cli.Context) error {
			return runOperation(c, func(targets) (reconcile.Operation, error) {
				return reconcile.SetClawbackStartTs{NewTs: c.Int64("clawback-start-ts")}, nil
			})
		},
	}
}

// runOperation resolves the version source, wires a session and reconciles
// every version. Any failed version makes the command exit non-zero.
func runOperation(c *cli.Context, build func(targets) (reconcile.Operation, error)) error {
	logger := slog.Default()

	named, err := versionSource(c)
	if err != nil {
		return err
	}
	// Tree files are parsed once, before any connection is opened.
	source, err := versions.Resolve(named)
	if err != nil {
		return err
	}

	tgt, err := parseTargets(c)
	if err != nil {
		return err
	}
	op, err := build(tgt)
	if err != nil {
		return err
	}

	sess, err := newSession(c, tgt, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	report, err := sess.reconciler.Run(c.Context, op, source)
	if report != nil {
		logger.Info(report.Summary(), "run_id", report.Run.ID)
	}
	sess.pushMetrics(c, logger)
	if err != nil {
		return err
	}
	return report.Err()
}
