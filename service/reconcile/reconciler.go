package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/brojonat/distadmin/service/distributor"
	"github.com/brojonat/distadmin/service/metrics"
	"github.com/brojonat/distadmin/service/solana"
	"github.com/brojonat/distadmin/service/versions"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Outcome is the terminal state of one version.
type Outcome string

const (
	OutcomeSkipped          Outcome = "skipped"
	OutcomeUpdated          Outcome = "updated"
	OutcomePrinted          Outcome = "printed"
	OutcomeNotFound         Outcome = "not_found"
	OutcomeDerivationFailed Outcome = "derivation_failed"
	OutcomeRetryExhausted   Outcome = "retry_exhausted"
	OutcomeFailed           Outcome = "failed"

	// OutcomeRetryPending is only returned by ReconcileOnce, when the single
	// attempt hit a transient failure and the caller owns the retry.
	OutcomeRetryPending Outcome = "retry_pending"
)

// Failed reports whether the outcome should make the run exit non-zero.
// A missing account means the version was never initialized and is not a failure.
func (o Outcome) Failed() bool {
	switch o {
	case OutcomeDerivationFailed, OutcomeRetryExhausted, OutcomeFailed:
		return true
	default:
		return false
	}
}

// StateReader fetches the on-chain distributor record.
type StateReader interface {
	ReadDistributor(ctx context.Context, address solanago.PublicKey) (*distributor.MerkleDistributor, error)
}

// Dispatcher delivers one instruction list.
type Dispatcher interface {
	Mode() solana.DeliveryMode
	Dispatch(ctx context.Context, req solana.DispatchRequest) (*solana.DispatchResult, error)
}

// Result is the outcome of reconciling one version.
type Result struct {
	RunID     string    `json:"run_id"`
	Kind      Kind      `json:"kind"`
	Target    string    `json:"target"`
	Version   uint64    `json:"version"`
	Address   string    `json:"address,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Signature string    `json:"signature,omitempty"`
	Message   string    `json:"message,omitempty"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Config holds everything injected into a Reconciler once per run.
type Config struct {
	ProgramID solanago.PublicKey
	Base      solanago.PublicKey
	Mint      solanago.PublicKey

	// PriorityFee in micro-lamports per compute unit. Nil disables it.
	PriorityFee *uint64
	// Signer is the broadcast keypair's public key. Ignored in offline mode.
	Signer solanago.PublicKey
	Retry  RetryPolicy

	Reader     StateReader
	Dispatcher Dispatcher

	// Optional.
	Recorder Recorder
	Out      io.Writer
	Clock    clockwork.Clock
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Validate checks the required fields.
func (c Config) Validate() error {
	var errs []error
	if c.ProgramID.IsZero() {
		errs = append(errs, fmt.Errorf("program id is required"))
	}
	if c.Base.IsZero() {
		errs = append(errs, fmt.Errorf("base is required"))
	}
	if c.Mint.IsZero() {
		errs = append(errs, fmt.Errorf("mint is required"))
	}
	if c.Reader == nil {
		errs = append(errs, fmt.Errorf("state reader is required"))
	}
	if c.Dispatcher == nil {
		errs = append(errs, fmt.Errorf("dispatcher is required"))
	} else if c.Dispatcher.Mode() == solana.ModeBroadcast && c.Signer.IsZero() {
		errs = append(errs, fmt.Errorf("signer is required in broadcast mode"))
	}
	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("max attempts must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid reconciler config: %w", errors.Join(errs...))
	}
	return nil
}

// Reconciler drives each version from Reading to a terminal outcome.
// Versions are processed strictly one after another.
type Reconciler struct {
	cfg      Config
	recorder Recorder
	out      io.Writer
	clock    clockwork.Clock
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a Reconciler. Out defaults to stdout and Clock to the real clock.
func New(cfg Config) (*Reconciler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Reconciler{
		cfg:      cfg,
		recorder: cfg.Recorder,
		out:      cfg.Out,
		clock:    cfg.Clock,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
	if r.out == nil {
		r.out = os.Stdout
	}
	if r.clock == nil {
		r.clock = clockwork.NewRealClock()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r, nil
}

// Mode returns the delivery mode of the configured dispatcher.
func (r *Reconciler) Mode() solana.DeliveryMode {
	return r.cfg.Dispatcher.Mode()
}

// Run reconciles every version yielded by source. Source errors are fatal and
// returned before any network call; per-version failures land in the Report.
func (r *Reconciler) Run(ctx context.Context, op Operation, source versions.Source) (*Report, error) {
	seq, err := source.Versions()
	if err != nil {
		return nil, err
	}

	run := Run{
		ID:        uuid.NewString(),
		Operation: SpecOf(op),
		Target:    op.Target(),
		Mode:      r.Mode().String(),
		Source:    source.Describe(),
		StartedAt: r.clock.Now().UTC(),
	}
	report := NewReport(run)

	r.logger.InfoContext(ctx, "starting reconciliation run",
		"run_id", run.ID,
		"operation", string(op.Kind()),
		"target", run.Target,
		"mode", run.Mode,
		"source", run.Source,
	)
	if r.recorder != nil {
		if err := r.recorder.StartRun(ctx, run); err != nil {
			r.logger.WarnContext(ctx, "failed to record run start", "run_id", run.ID, "error", err)
		}
	}

	for version := range seq {
		if err := ctx.Err(); err != nil {
			r.finish(ctx, report)
			return report, err
		}
		result := r.Reconcile(ctx, op, version)
		result.RunID = run.ID
		report.Add(result)
		r.record(ctx, result)
	}

	r.finish(ctx, report)
	return report, ctx.Err()
}

func (r *Reconciler) finish(ctx context.Context, report *Report) {
	report.FinishedAt = r.clock.Now().UTC()
	r.logger.InfoContext(ctx, "reconciliation run finished",
		"run_id", report.Run.ID,
		"total", report.Total,
		"failed", report.Failed(),
		"duration", report.FinishedAt.Sub(report.Run.StartedAt).String(),
	)
	if r.recorder != nil {
		if err := r.recorder.FinishRun(context.WithoutCancel(ctx), report); err != nil {
			r.logger.WarnContext(ctx, "failed to record run finish", "run_id", report.Run.ID, "error", err)
		}
	}
}

func (r *Reconciler) record(ctx context.Context, result Result) {
	if r.metrics != nil {
		r.metrics.RecordReconcileOutcome(string(result.Kind), string(result.Outcome), result.Attempts)
	}
	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordOutcome(context.WithoutCancel(ctx), result); err != nil {
		r.logger.WarnContext(ctx, "failed to record outcome",
			"version", result.Version,
			"outcome", string(result.Outcome),
			"error", err,
		)
	}
}

// Reconcile drives one version to a terminal outcome, re-reading state
// before every retry so changes applied elsewhere short-circuit to a skip.
func (r *Reconciler) Reconcile(ctx context.Context, op Operation, version uint64) Result {
	return r.reconcile(ctx, op, version, false)
}

// ReconcileOnce makes a single attempt and reports OutcomeRetryPending on a
// transient failure instead of sleeping. Durable executors schedule the retry.
func (r *Reconciler) ReconcileOnce(ctx context.Context, op Operation, version uint64) Result {
	return r.reconcile(ctx, op, version, true)
}

func (r *Reconciler) reconcile(ctx context.Context, op Operation, version uint64, once bool) (result Result) {
	result = Result{
		Kind:    op.Kind(),
		Target:  op.Target(),
		Version: version,
	}
	defer func() { result.Timestamp = r.clock.Now().UTC() }()

	address, err := distributor.DeriveAddress(r.cfg.ProgramID, r.cfg.Base, r.cfg.Mint, version)
	if err != nil {
		r.printError(version, err)
		result.Outcome = OutcomeDerivationFailed
		result.Error = err.Error()
		return result
	}
	result.Address = address.PublicKey.String()

	for {
		result.Attempts++
		outcome, dispatched, err := r.Attempt(ctx, op, version, address.PublicKey)
		if err == nil {
			result.Outcome = outcome
			if dispatched != nil {
				if !dispatched.Signature.IsZero() {
					result.Signature = dispatched.Signature.String()
				}
				result.Message = dispatched.Message
			}
			return result
		}

		r.printError(version, err)
		r.logger.WarnContext(ctx, "reconcile attempt failed",
			"operation", string(op.Kind()),
			"version", version,
			"attempt", result.Attempts,
			"error", err,
		)

		switch {
		case errors.Is(err, solana.ErrAccountNotFound):
			result.Outcome = OutcomeNotFound
			result.Error = err.Error()
			return result
		case IsPermanent(err):
			result.Outcome = OutcomeFailed
			result.Error = err.Error()
			return result
		case once:
			result.Outcome = OutcomeRetryPending
			result.Error = err.Error()
			return result
		case r.cfg.Retry.Exhausted(result.Attempts):
			result.Outcome = OutcomeRetryExhausted
			result.Error = fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, result.Attempts, err).Error()
			return result
		}

		if r.metrics != nil {
			r.metrics.RecordDispatchRetry(string(op.Kind()))
		}
		select {
		case <-ctx.Done():
			result.Outcome = OutcomeFailed
			result.Error = ctx.Err().Error()
			return result
		case <-r.clock.After(r.cfg.Retry.Backoff(result.Attempts)):
		}
	}
}

// Attempt performs one Reading -> Building -> Dispatching pass.
// It returns OutcomeSkipped without building anything when the account already
// holds the desired value.
func (r *Reconciler) Attempt(ctx context.Context, op Operation, version uint64, address solanago.PublicKey) (Outcome, *solana.DispatchResult, error) {
	acct, err := r.cfg.Reader.ReadDistributor(ctx, address)
	if err != nil {
		return "", nil, err
	}

	if op.Satisfied(acct) {
		fmt.Fprintln(r.out, op.SkipMessage(version))
		return OutcomeSkipped, nil, nil
	}

	mode := r.cfg.Dispatcher.Mode()
	ixs := BuildInstructions(op, r.cfg.ProgramID, address, acct, r.cfg.Signer, r.cfg.PriorityFee, mode)
	profile := op.Kind().Profile()

	dispatched, err := r.cfg.Dispatcher.Dispatch(ctx, solana.DispatchRequest{
		Version:             version,
		Instructions:        ixs,
		Admin:               acct.Admin,
		DualEndpoint:        profile.DualEndpoint,
		WaitForConfirmation: profile.WaitForConfirmation,
	})
	if err != nil {
		if mode == solana.ModeOffline {
			return "", nil, Permanent(err)
		}
		return "", nil, err
	}

	if mode == solana.ModeOffline {
		fmt.Fprintln(r.out, dispatched.Message)
		return OutcomePrinted, dispatched, nil
	}

	fmt.Fprintln(r.out, op.SuccessMessage(version, dispatched.Signature))
	return OutcomeUpdated, dispatched, nil
}

func (r *Reconciler) printError(version uint64, err error) {
	fmt.Fprintf(r.out, "airdrop version %d %v\n", version, err)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether retrying err cannot change the result:
// signing failures and accounts that exist but are not distributors.
func IsPermanent(err error) bool {
	var p *permanentError
	if errors.As(err, &p) {
		return true
	}
	return errors.Is(err, solana.ErrSigning) ||
		errors.Is(err, solana.ErrUnexpectedOwner) ||
		errors.Is(err, distributor.ErrInvalidDiscriminator)
}
