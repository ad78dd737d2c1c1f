package nats

import (
	"context"

	"github.com/brojonat/distadmin/service/reconcile"
)

// Recorder publishes reconciliation progress as audit events.
type Recorder struct {
	publisher Publisher
}

var _ reconcile.Recorder = (*Recorder)(nil)

// NewRecorder adapts a Publisher to reconcile.Recorder.
func NewRecorder(publisher Publisher) *Recorder {
	return &Recorder{publisher: publisher}
}

func (r *Recorder) StartRun(ctx context.Context, run reconcile.Run) error {
	return r.publisher.PublishRun(ctx, FromRun(run))
}

func (r *Recorder) RecordOutcome(ctx context.Context, result reconcile.Result) error {
	return r.publisher.PublishOutcome(ctx, FromResult(result))
}

func (r *Recorder) FinishRun(ctx context.Context, report *reconcile.Report) error {
	return r.publisher.PublishRun(ctx, FromReport(report))
}
