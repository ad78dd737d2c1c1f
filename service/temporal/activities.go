package temporal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brojonat/distadmin/service/metrics"
	"github.com/brojonat/distadmin/service/reconcile"
	solanago "github.com/gagliardetto/solana-go"
	"go.temporal.io/sdk/activity"
	temporalsdk "go.temporal.io/sdk/temporal"
)

// ReconcileVersionInput contains parameters for the ReconcileVersion activity.
type ReconcileVersionInput struct {
	RunID     string                  `json:"run_id"`
	Operation reconcile.OperationSpec `json:"operation"`
	Version   uint64                  `json:"version"`
}

// RecordRunInput contains parameters for the RecordRun activity.
// Report is nil when the run starts.
type RecordRunInput struct {
	Run    reconcile.Run     `json:"run"`
	Report *reconcile.Report `json:"report,omitempty"`
}

// VersionReconciler performs a single Reading -> Dispatching pass per call.
// *reconcile.Reconciler satisfies it.
type VersionReconciler interface {
	ReconcileOnce(ctx context.Context, op reconcile.Operation, version uint64) reconcile.Result
}

// Activities holds the dependencies needed by Temporal activities.
// Following go-kit pattern, all dependencies are explicit.
type Activities struct {
	reconciler VersionReconciler
	mint       solanago.PublicKey
	recorder   reconcile.Recorder
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// recorder and metrics may be nil.
func NewActivities(reconciler VersionReconciler, mint solanago.PublicKey, recorder reconcile.Recorder, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		reconciler: reconciler,
		mint:       mint,
		recorder:   recorder,
		metrics:    m,
		logger:     logger,
	}
}

// ReconcileVersion runs one attempt for one version. Transient failures are
// returned as retryable errors so Temporal schedules the next attempt; terminal
// outcomes are non-retryable application errors carrying the partial result.
func (a *Activities) ReconcileVersion(ctx context.Context, input ReconcileVersionInput) (*reconcile.Result, error) {
	op, err := reconcile.OperationFromSpec(input.Operation, a.mint)
	if err != nil {
		return nil, temporalsdk.NewNonRetryableApplicationError(err.Error(), ErrTypePermanent, err)
	}

	attempt := int(activity.GetInfo(ctx).Attempt)
	logger := a.logger.With("version", input.Version, "operation", string(op.Kind()), "attempt", attempt)
	logger.DebugContext(ctx, "reconciling version")

	result := a.reconciler.ReconcileOnce(ctx, op, input.Version)
	result.RunID = input.RunID
	result.Attempts = attempt

	switch result.Outcome {
	case reconcile.OutcomeSkipped, reconcile.OutcomeUpdated, reconcile.OutcomePrinted:
		logger.InfoContext(ctx, "version reconciled", "outcome", string(result.Outcome), "signature", result.Signature)
		return &result, nil
	case reconcile.OutcomeNotFound:
		return nil, temporalsdk.NewNonRetryableApplicationError(result.Error, ErrTypeAccountNotFound, nil, result)
	case reconcile.OutcomeDerivationFailed:
		return nil, temporalsdk.NewNonRetryableApplicationError(result.Error, ErrTypeDerivationFailed, nil, result)
	case reconcile.OutcomeFailed:
		return nil, temporalsdk.NewNonRetryableApplicationError(result.Error, ErrTypePermanent, nil, result)
	default: // retry_pending
		if a.metrics != nil {
			a.metrics.RecordDispatchRetry(string(op.Kind()))
		}
		logger.WarnContext(ctx, "reconcile attempt failed", "error", result.Error)
		return nil, temporalsdk.NewApplicationError(result.Error, "Transient", result)
	}
}

// RecordOutcome forwards a final version result to metrics and the recorder chain.
func (a *Activities) RecordOutcome(ctx context.Context, result reconcile.Result) error {
	if a.metrics != nil {
		a.metrics.RecordReconcileOutcome(string(result.Kind), string(result.Outcome), result.Attempts)
	}
	if a.recorder == nil {
		return nil
	}
	if err := a.recorder.RecordOutcome(ctx, result); err != nil {
		return fmt.Errorf("failed to record outcome for version %d: %w", result.Version, err)
	}
	return nil
}

// RecordRun records the start of a run, or its end when input.Report is set.
func (a *Activities) RecordRun(ctx context.Context, input RecordRunInput) error {
	if a.recorder == nil {
		return nil
	}
	if input.Report == nil {
		if err := a.recorder.StartRun(ctx, input.Run); err != nil {
			return fmt.Errorf("failed to record run start: %w", err)
		}
		return nil
	}
	if err := a.recorder.FinishRun(ctx, input.Report); err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	return nil
}
