package reconcile

import (
	"context"
	"errors"
	"time"
)

// Run describes one reconciliation run across a version source.
type Run struct {
	ID        string        `json:"id"`
	Operation OperationSpec `json:"operation"`
	Target    string        `json:"target"`
	Mode      string        `json:"mode"`
	Source    string        `json:"source"`
	StartedAt time.Time     `json:"started_at"`
}

// Recorder receives run progress for auditing. Failures are logged by the
// reconciler and never change an outcome.
type Recorder interface {
	StartRun(ctx context.Context, run Run) error
	RecordOutcome(ctx context.Context, result Result) error
	FinishRun(ctx context.Context, report *Report) error
}

// MultiRecorder fans out to every recorder in order.
type MultiRecorder []Recorder

func (m MultiRecorder) StartRun(ctx context.Context, run Run) error {
	var errs []error
	for _, r := range m {
		if err := r.StartRun(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiRecorder) RecordOutcome(ctx context.Context, result Result) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordOutcome(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiRecorder) FinishRun(ctx context.Context, report *Report) error {
	var errs []error
	for _, r := range m {
		if err := r.FinishRun(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
