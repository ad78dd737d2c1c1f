package nats

import (
	"time"

	"github.com/brojonat/distadmin/service/reconcile"
)

// OutcomeEvent is published once per reconciled version to
// "distributor.{kind}.{version}".
type OutcomeEvent struct {
	RunID string `json:"run_id"`

	// Operation
	Kind   string `json:"kind"`
	Target string `json:"target"`

	// Distributor
	Version uint64 `json:"version"`
	Address string `json:"address,omitempty"`

	// Result
	Outcome   string `json:"outcome"`
	Signature string `json:"signature,omitempty"`
	Message   string `json:"message,omitempty"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error,omitempty"`

	Timestamp   time.Time `json:"timestamp"`
	PublishedAt time.Time `json:"published_at"`
}

// FromResult converts a reconcile result to an OutcomeEvent for publishing.
func FromResult(result reconcile.Result) *OutcomeEvent {
	return &OutcomeEvent{
		RunID:       result.RunID,
		Kind:        string(result.Kind),
		Target:      result.Target,
		Version:     result.Version,
		Address:     result.Address,
		Outcome:     string(result.Outcome),
		Signature:   result.Signature,
		Message:     result.Message,
		Attempts:    result.Attempts,
		Error:       result.Error,
		Timestamp:   result.Timestamp,
		PublishedAt: time.Now().UTC(),
	}
}

// RunEvent announces the start or end of a run on "distributor.runs.{status}".
type RunEvent struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"` // "started" or "finished"

	Kind   string `json:"kind"`
	Target string `json:"target"`
	Mode   string `json:"mode"`
	Source string `json:"source"`

	// Counts is only set on "finished".
	Counts map[string]int `json:"counts,omitempty"`
	Failed int            `json:"failed"`

	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	PublishedAt time.Time  `json:"published_at"`
}

const (
	RunStarted  = "started"
	RunFinished = "finished"
)

// FromRun builds the "started" event for run.
func FromRun(run reconcile.Run) *RunEvent {
	return &RunEvent{
		RunID:       run.ID,
		Status:      RunStarted,
		Kind:        string(run.Operation.Kind),
		Target:      run.Target,
		Mode:        run.Mode,
		Source:      run.Source,
		StartedAt:   run.StartedAt,
		PublishedAt: time.Now().UTC(),
	}
}

// FromReport builds the "finished" event for report.
func FromReport(report *reconcile.Report) *RunEvent {
	event := FromRun(report.Run)
	event.Status = RunFinished
	event.Counts = make(map[string]int, len(report.Counts))
	for outcome, n := range report.Counts {
		event.Counts[string(outcome)] = n
	}
	event.Failed = report.Failed()
	finished := report.FinishedAt
	event.FinishedAt = &finished
	return event
}
