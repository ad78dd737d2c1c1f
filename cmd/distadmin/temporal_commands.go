package main

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/brojonat/distadmin/service/reconcile"
	"github.com/brojonat/distadmin/service/temporal"
	"github.com/brojonat/distadmin/service/versions"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

func startReconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Start a durable reconcile workflow (broadcast mode only)",
		Flags: append(sourceFlags(),
			&cli.StringFlag{
				Name:     "operation",
				Aliases:  []string{"o"},
				Usage:    "Operation kind (set_admin, set_clawback_receiver, set_clawback_start_ts)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "value",
				Usage:    "Desired value: new admin, receiver wallet or unix timestamp",
				Required: true,
			},
		),
		Action: func(c *cli.Context) error {
			if c.Bool("bs58") {
				return fmt.Errorf("--bs58 is not supported for workflows; run the admin command directly")
			}

			spec := reconcile.OperationSpec{
				Kind:  reconcile.Kind(c.String("operation")),
				Value: c.String("value"),
			}
			// The worker derives the receiver token account from its own mint;
			// here the operation only needs to parse.
			if _, err := reconcile.OperationFromSpec(spec, solanago.PublicKey{}); err != nil {
				return err
			}

			source, err := versionSource(c)
			if err != nil {
				return err
			}
			input := temporal.ReconcileWorkflowInput{
				Operation: spec,
				Source:    source.Describe(),
				Retry:     temporal.RetryConfigFrom(retryPolicy(c)),
			}
			var count uint64
			switch src := source.(type) {
			case *versions.RangeSource:
				// Bounds only; the workflow walks the range in batches.
				input.Range = &temporal.VersionRange{From: src.From, To: src.To}
				count = src.Len()
			case *versions.DirectorySource:
				list, err := src.List()
				if err != nil {
					return err
				}
				input.Versions = list
				count = uint64(len(list))
			default:
				return fmt.Errorf("unsupported version source: %s", source.Describe())
			}

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			workflowID, err := temporalClient.StartReconcile(c.Context, input)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.App.Writer, "Workflow started: %s\n", workflowID)
			fmt.Fprintf(c.App.Writer, "  Operation: %s %s\n", spec.Kind, spec.Value)
			fmt.Fprintf(c.App.Writer, "  Versions:  %d (%s)\n", count, source.Describe())
			return nil
		},
	}
}

func describeReconcileCommand() *cli.Command {
	return &cli.Command{
		Name:      "describe",
		Usage:     "Show the status and progress of a reconcile workflow",
		Aliases:   []string{"desc"},
		ArgsUsage: "<workflow-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: workflow ID")
			}

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			status, err := temporalClient.DescribeReconcile(c.Context, c.Args().First())
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, status, "")
			}

			out := c.App.Writer
			fmt.Fprintf(out, "Workflow ID:  %s\n", status.WorkflowID)
			fmt.Fprintf(out, "Status:       %s\n", status.Status)
			if status.Progress == nil {
				fmt.Fprintln(out, "Progress:     unavailable")
				return nil
			}
			p := status.Progress
			fmt.Fprintf(out, "Progress:     %d/%d versions, %d failed\n", p.Completed, p.Total, p.Failed)

			outcomes := make([]string, 0, len(p.Counts))
			for outcome := range p.Counts {
				outcomes = append(outcomes, outcome)
			}
			sort.Strings(outcomes)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, outcome := range outcomes {
				fmt.Fprintf(w, "  %s\t%d\n", outcome, p.Counts[outcome])
			}
			return w.Flush()
		},
	}
}

func getTemporalClient(c *cli.Context) (*temporal.Client, error) {
	host := c.String("temporal-host")
	if host == "" {
		host = os.Getenv("TEMPORAL_HOST")
	}
	if host == "" {
		host = "localhost:7233"
	}

	namespace := c.String("temporal-namespace")
	if namespace == "" {
		namespace = "default"
	}

	return temporal.NewClient(host, namespace, c.String("temporal-task-queue"), slog.Default())
}
