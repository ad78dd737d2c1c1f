package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/brojonat/distadmin/service/db"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recorded runs, or the outcome history of one version",
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:  "version",
				Usage: "Show every recorded outcome for this airdrop version",
			},
			&cli.StringFlag{
				Name:  "kind",
				Usage: "Only outcomes of this operation kind (set_admin, set_clawback_receiver, set_clawback_start_ts)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of records",
				Value:   20,
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq expression applied to the JSON records (implies --json)",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			limit := int32(c.Int("limit"))
			asJSON := c.Bool("json") || c.String("jq") != ""

			if c.IsSet("version") {
				outcomes, err := store.ListOutcomesByVersion(c.Context, db.ListOutcomesByVersionParams{
					Version: c.Uint64("version"),
					Kind:    c.String("kind"),
					Limit:   limit,
				})
				if err != nil {
					return fmt.Errorf("failed to list outcomes: %w", err)
				}
				if asJSON {
					return outputJSON(c.App.Writer, outcomes, c.String("jq"))
				}
				printOutcomes(c.App.Writer, outcomes)
				fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d outcomes\n", len(outcomes))
				return nil
			}

			runs, err := store.ListRuns(c.Context, limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			if asJSON {
				return outputJSON(c.App.Writer, runs, c.String("jq"))
			}
			printRuns(c.App.Writer, runs)
			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d runs\n", len(runs))
			return nil
		},
	}
}

func printOutcomes(out io.Writer, outcomes []*db.Outcome) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECORDED\tVERSION\tKIND\tOUTCOME\tATTEMPTS\tSIGNATURE\tRUN")
	for _, o := range outcomes {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%s\t%s\n",
			o.RecordedAt.Format(time.RFC3339),
			o.Version,
			o.Kind,
			o.Outcome,
			o.Attempts,
			formatOptional(o.Signature),
			o.RunID,
		)
	}
	w.Flush()
}

func printRuns(out io.Writer, runs []*db.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tKIND\tTARGET\tMODE\tTOTAL\tFAILED\tSTARTED\tFINISHED")
	for _, r := range runs {
		finished := "running"
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.ID,
			r.Kind,
			r.Target,
			r.Mode,
			r.Total,
			r.Failed,
			r.StartedAt.Format(time.RFC3339),
			finished,
		)
	}
	w.Flush()
}

// outputJSON writes v as indented JSON. With a jq expression every result of
// the expression is written instead.
func outputJSON(w io.Writer, v interface{}, expr string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if expr == "" {
		return enc.Encode(v)
	}

	query, err := gojq.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid jq expression %q: %w", expr, err)
	}

	// gojq only walks plain JSON values.
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}

	iter := query.Run(doc)
	for {
		result, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, ok := result.(error); ok {
			return fmt.Errorf("jq: %w", err)
		}
		if err := enc.Encode(result); err != nil {
			return err
		}
	}
}

func formatOptional(s *string) string {
	if s != nil && *s != "" {
		return *s
	}
	return "-"
}
