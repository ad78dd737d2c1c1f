package db

import (
	"context"

	"github.com/brojonat/distadmin/service/metrics"
	"github.com/brojonat/distadmin/service/reconcile"
)

// HistoryStore is the subset of Store the Recorder writes to.
type HistoryStore interface {
	CreateRun(ctx context.Context, params CreateRunParams) (*Run, error)
	FinishRun(ctx context.Context, params FinishRunParams) error
	RecordOutcome(ctx context.Context, params RecordOutcomeParams) (*Outcome, error)
}

// Recorder persists reconciliation progress as run history.
type Recorder struct {
	store   HistoryStore
	metrics *metrics.Metrics
}

var _ reconcile.Recorder = (*Recorder)(nil)

// NewRecorder adapts a history store to reconcile.Recorder. metrics may be nil.
func NewRecorder(store HistoryStore, m *metrics.Metrics) *Recorder {
	return &Recorder{store: store, metrics: m}
}

func (r *Recorder) observe(op string, err error) error {
	if r.metrics != nil {
		r.metrics.RecordDBOperation(op, err)
	}
	return err
}

func (r *Recorder) StartRun(ctx context.Context, run reconcile.Run) error {
	_, err := r.store.CreateRun(ctx, CreateRunParams{
		ID:        run.ID,
		Kind:      string(run.Operation.Kind),
		Target:    run.Target,
		Mode:      run.Mode,
		Source:    run.Source,
		StartedAt: run.StartedAt,
	})
	return r.observe("create_run", err)
}

func (r *Recorder) RecordOutcome(ctx context.Context, result reconcile.Result) error {
	_, err := r.store.RecordOutcome(ctx, RecordOutcomeParams{
		RunID:      result.RunID,
		Kind:       string(result.Kind),
		Target:     result.Target,
		Version:    result.Version,
		Address:    result.Address,
		Outcome:    string(result.Outcome),
		Signature:  optional(result.Signature),
		Message:    optional(result.Message),
		Attempts:   int32(result.Attempts),
		Error:      optional(result.Error),
		RecordedAt: result.Timestamp,
	})
	return r.observe("record_outcome", err)
}

func (r *Recorder) FinishRun(ctx context.Context, report *reconcile.Report) error {
	counts := make(map[string]int, len(report.Counts))
	for outcome, n := range report.Counts {
		counts[string(outcome)] = n
	}
	err := r.store.FinishRun(ctx, FinishRunParams{
		ID:         report.Run.ID,
		FinishedAt: report.FinishedAt,
		Total:      int32(report.Total),
		Failed:     int32(report.Failed()),
		Counts:     counts,
	})
	return r.observe("finish_run", err)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
