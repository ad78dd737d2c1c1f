package temporal

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/brojonat/distadmin/service/reconcile"
	"github.com/brojonat/distadmin/service/solana"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// Application error types returned by ReconcileVersion. All are non-retryable.
const (
	ErrTypeAccountNotFound  = "AccountNotFound"
	ErrTypeDerivationFailed = "DerivationFailed"
	ErrTypePermanent        = "Permanent"
)

// ProgressQuery is the query name that returns the workflow's ReconcileProgress.
const ProgressQuery = "progress"

// RetryConfig mirrors reconcile.RetryPolicy in a workflow-serializable form.
type RetryConfig struct {
	MaxAttempts        int32         `json:"max_attempts"` // 0 retries until success
	InitialInterval    time.Duration `json:"initial_interval"`
	BackoffCoefficient float64       `json:"backoff_coefficient"`
	MaximumInterval    time.Duration `json:"maximum_interval"`
}

// RetryConfigFrom converts a reconcile.RetryPolicy.
func RetryConfigFrom(p reconcile.RetryPolicy) RetryConfig {
	return RetryConfig{
		MaxAttempts:        int32(p.MaxAttempts),
		InitialInterval:    p.InitialInterval,
		BackoffCoefficient: p.BackoffCoefficient,
		MaximumInterval:    p.MaximumInterval,
	}
}

func (c RetryConfig) policy() *temporalsdk.RetryPolicy {
	p := &temporalsdk.RetryPolicy{
		InitialInterval:        c.InitialInterval,
		BackoffCoefficient:     c.BackoffCoefficient,
		MaximumInterval:        c.MaximumInterval,
		MaximumAttempts:        c.MaxAttempts,
		NonRetryableErrorTypes: []string{ErrTypeAccountNotFound, ErrTypeDerivationFailed, ErrTypePermanent},
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = time.Second
	}
	if p.BackoffCoefficient < 1 {
		p.BackoffCoefficient = 2.0
	}
	return p
}

// DefaultBatchSize is the number of versions one workflow execution reconciles
// before continuing as new with the remainder.
const DefaultBatchSize = 500

// VersionRange is an inclusive [From, To] version range.
type VersionRange struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// ReconcileWorkflowInput contains the input parameters for a durable run.
// Exactly one of Versions and Range names the versions.
type ReconcileWorkflowInput struct {
	Operation reconcile.OperationSpec `json:"operation"`
	Versions  []uint64                `json:"versions,omitempty"`
	Range     *VersionRange           `json:"range,omitempty"`
	Source    string                  `json:"source"`
	Retry     RetryConfig             `json:"retry"`
	BatchSize int                     `json:"batch_size,omitempty"`
	// Carry is set on continued executions.
	Carry *ReconcileCarry `json:"carry,omitempty"`
}

// ReconcileCarry is the running tally handed from one execution to the next.
type ReconcileCarry struct {
	StartedAt time.Time      `json:"started_at"`
	Completed int            `json:"completed"`
	Counts    map[string]int `json:"counts"`
}

func (in ReconcileWorkflowInput) validate() error {
	if in.Range == nil {
		return nil
	}
	if len(in.Versions) > 0 {
		return errors.New("versions and range are mutually exclusive")
	}
	if in.Range.From > in.Range.To {
		return fmt.Errorf("invalid version range %d..=%d", in.Range.From, in.Range.To)
	}
	return nil
}

// remaining counts the versions left, saturating at MaxUint64.
func (in ReconcileWorkflowInput) remaining() uint64 {
	if in.Range == nil {
		return uint64(len(in.Versions))
	}
	n := in.Range.To - in.Range.From
	if n == math.MaxUint64 {
		return n
	}
	return n + 1
}

// split returns the versions for this execution and, when more remain,
// the input for the next one.
func (in ReconcileWorkflowInput) split() ([]uint64, *ReconcileWorkflowInput) {
	size := in.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	next := in
	if in.Range == nil {
		if len(in.Versions) <= size {
			return in.Versions, nil
		}
		next.Versions = in.Versions[size:]
		return in.Versions[:size], &next
	}

	batch := make([]uint64, 0, min(in.remaining(), uint64(size)))
	for v := in.Range.From; len(batch) < size; v++ {
		batch = append(batch, v)
		if v == in.Range.To {
			return batch, nil
		}
	}
	next.Range = &VersionRange{From: batch[len(batch)-1] + 1, To: in.Range.To}
	return batch, &next
}

// ReconcileProgress is returned by the progress query and as the workflow result.
// Total and Completed span the whole run; Results holds the current execution only.
type ReconcileProgress struct {
	RunID     string             `json:"run_id"`
	Total     uint64             `json:"total"`
	Completed int                `json:"completed"`
	Counts    map[string]int     `json:"counts"`
	Failed    int                `json:"failed"`
	Results   []reconcile.Result `json:"results"`
}

// ReconcileWorkflow walks the versions sequentially, one ReconcileVersion
// activity per version. Temporal's retry policy supplies the backoff between
// attempts; every attempt re-reads on-chain state first. Versions that end in a
// non-retryable error or exhaust their attempts are recorded and the run continues.
// After each batch the workflow continues as new, so history stays bounded for
// any range width.
func ReconcileWorkflow(ctx workflow.Context, input ReconcileWorkflowInput) (*ReconcileProgress, error) {
	logger := workflow.GetLogger(ctx)
	info := workflow.GetInfo(ctx)
	runID := info.WorkflowExecution.ID

	if err := input.validate(); err != nil {
		return nil, temporalsdk.NewNonRetryableApplicationError(err.Error(), ErrTypePermanent, nil)
	}
	batch, next := input.split()

	run := reconcile.Run{
		ID:        runID,
		Operation: input.Operation,
		Mode:      solana.ModeBroadcast.String(),
		Source:    input.Source,
		StartedAt: workflow.Now(ctx).UTC(),
	}
	report := reconcile.NewReport(run)
	if carry := input.Carry; carry != nil {
		run.StartedAt = carry.StartedAt
		report.Run = run
		report.Total = carry.Completed
		for outcome, n := range carry.Counts {
			report.Counts[reconcile.Outcome(outcome)] = n
		}
	}

	progress := &ReconcileProgress{
		RunID:     runID,
		Completed: report.Total,
		Counts:    make(map[string]int, len(report.Counts)),
		Failed:    report.Failed(),
	}
	progress.Total = uint64(progress.Completed) + input.remaining()
	if progress.Total < input.remaining() {
		progress.Total = math.MaxUint64
	}
	for outcome, n := range report.Counts {
		progress.Counts[string(outcome)] = n
	}

	logger.Info("ReconcileWorkflow started",
		"run_id", runID,
		"operation", string(input.Operation.Kind),
		"source", input.Source,
		"batch", len(batch),
		"completed", progress.Completed,
	)

	if err := workflow.SetQueryHandler(ctx, ProgressQuery, func() (*ReconcileProgress, error) {
		return progress, nil
	}); err != nil {
		return nil, fmt.Errorf("failed to register progress query: %w", err)
	}

	reconcileCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 3 * time.Minute,
		RetryPolicy:         input.Retry.policy(),
	})
	recordCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	if input.Carry == nil {
		if err := workflow.ExecuteActivity(recordCtx, a.RecordRun, RecordRunInput{Run: run}).Get(ctx, nil); err != nil {
			logger.Warn("failed to record run start", "run_id", runID, "error", err)
		}
	}

	for _, version := range batch {
		var result reconcile.Result
		err := workflow.ExecuteActivity(reconcileCtx, a.ReconcileVersion, ReconcileVersionInput{
			RunID:     runID,
			Operation: input.Operation,
			Version:   version,
		}).Get(ctx, &result)
		if err != nil {
			result = failedResult(runID, input.Operation, version, err)
			logger.Warn("version did not reconcile",
				"version", version,
				"outcome", string(result.Outcome),
				"error", err,
			)
		}
		result.Timestamp = workflow.Now(ctx).UTC()

		report.Add(result)
		progress.Completed++
		progress.Counts[string(result.Outcome)]++
		progress.Results = append(progress.Results, result)
		progress.Failed = report.Failed()

		if err := workflow.ExecuteActivity(recordCtx, a.RecordOutcome, result).Get(ctx, nil); err != nil {
			logger.Warn("failed to record outcome", "version", version, "error", err)
		}
	}

	if next != nil {
		next.Carry = &ReconcileCarry{
			StartedAt: run.StartedAt,
			Completed: progress.Completed,
			Counts:    progress.Counts,
		}
		logger.Info("ReconcileWorkflow continuing as new",
			"run_id", runID,
			"completed", progress.Completed,
			"remaining", next.remaining(),
		)
		return nil, workflow.NewContinueAsNewError(ctx, ReconcileWorkflow, *next)
	}

	report.FinishedAt = workflow.Now(ctx).UTC()
	if err := workflow.ExecuteActivity(recordCtx, a.RecordRun, RecordRunInput{Run: run, Report: report}).Get(ctx, nil); err != nil {
		logger.Warn("failed to record run finish", "run_id", runID, "error", err)
	}

	logger.Info("ReconcileWorkflow completed",
		"run_id", runID,
		"completed", progress.Completed,
		"failed", progress.Failed,
	)
	return progress, nil
}

// failedResult maps a terminal activity error onto an outcome.
func failedResult(runID string, spec reconcile.OperationSpec, version uint64, err error) reconcile.Result {
	result := reconcile.Result{
		RunID:   runID,
		Kind:    spec.Kind,
		Target:  spec.Value,
		Version: version,
		Outcome: reconcile.OutcomeRetryExhausted,
		Error:   err.Error(),
	}

	var appErr *temporalsdk.ApplicationError
	if errors.As(err, &appErr) {
		switch appErr.Type() {
		case ErrTypeAccountNotFound:
			result.Outcome = reconcile.OutcomeNotFound
		case ErrTypeDerivationFailed:
			result.Outcome = reconcile.OutcomeDerivationFailed
		case ErrTypePermanent:
			result.Outcome = reconcile.OutcomeFailed
		}
		var details reconcile.Result
		if appErr.HasDetails() && appErr.Details(&details) == nil {
			result.Address = details.Address
			result.Target = details.Target
			result.Attempts = details.Attempts
		}
	}
	return result
}
