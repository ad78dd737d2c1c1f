package reconcile

import (
	"fmt"
	"time"
)

// Report summarizes a run.
type Report struct {
	Run        Run             `json:"run"`
	Total      int             `json:"total"`
	Results    []Result        `json:"results"`
	Counts     map[Outcome]int `json:"counts"`
	FinishedAt time.Time       `json:"finished_at"`
}

// NewReport starts an empty report for run.
func NewReport(run Run) *Report {
	return &Report{Run: run, Counts: make(map[Outcome]int)}
}

// Add appends a version result.
func (r *Report) Add(result Result) {
	r.Results = append(r.Results, result)
	r.Total++
	r.Counts[result.Outcome]++
}

// Failed counts results whose outcome fails the run.
func (r *Report) Failed() int {
	n := 0
	for outcome, count := range r.Counts {
		if outcome.Failed() {
			n += count
		}
	}
	return n
}

// Err returns a non-nil error when any version failed.
func (r *Report) Err() error {
	if n := r.Failed(); n > 0 {
		return fmt.Errorf("%d of %d versions failed", n, r.Total)
	}
	return nil
}

// Summary is a one-line digest for logs and console output.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d versions: %d updated, %d printed, %d skipped, %d not found, %d failed",
		r.Total,
		r.Counts[OutcomeUpdated],
		r.Counts[OutcomePrinted],
		r.Counts[OutcomeSkipped],
		r.Counts[OutcomeNotFound],
		r.Failed(),
	)
}
