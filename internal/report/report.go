// Package report defines the result model of a run and renders the run
// summary. One Run holds one Job per matrix row; jobs hold per-stage and
// per-step outcomes, including skipped work, so that disabled stages and
// condition-pruned steps stay visible in the output.
package report

import (
	"fmt"
	"io"
	"time"
)

// Status describes the outcome of a run, job, stage or step.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Run is the result of executing a pipeline's full matrix once.
type Run struct {
	ID         string
	Pipeline   string
	StartedAt  time.Time
	FinishedAt time.Time
	Jobs       []*Job
}

// Failed reports whether any job in the run failed.
func (r *Run) Failed() bool {
	for _, job := range r.Jobs {
		if job.Status == StatusFailed {
			return true
		}
	}
	return false
}

// FailedJobs returns the row names of all failed jobs, in matrix order.
func (r *Run) FailedJobs() []string {
	var rows []string
	for _, job := range r.Jobs {
		if job.Status == StatusFailed {
			rows = append(rows, job.Row)
		}
	}
	return rows
}

// Job is the execution of one matrix row.
type Job struct {
	ID         string
	Row        string
	Status     Status
	StartedAt  time.Time
	FinishedAt time.Time
	Stages     []*Stage
	Err        string
}

// Stage records the outcome of one stage within a job.
type Stage struct {
	Name   string
	Status Status
	Steps  []*Step
}

// Step records the outcome of one step.
type Step struct {
	Name     string
	Command  string
	Status   Status
	ExitCode int
	Duration time.Duration
	Err      string
}

// WriteSummary renders a human-readable summary of the run.
func WriteSummary(w io.Writer, run *Run) {
	fmt.Fprintf(w, "\nPipeline %s (run %s)\n", run.Pipeline, run.ID)
	for _, job := range run.Jobs {
		fmt.Fprintf(w, "  %-8s %s (%s)\n", job.Status, job.Row, job.FinishedAt.Sub(job.StartedAt).Round(time.Millisecond))
		for _, stage := range job.Stages {
			fmt.Fprintf(w, "    %-8s stage %s\n", stage.Status, stage.Name)
			for _, step := range stage.Steps {
				switch step.Status {
				case StatusFailed:
					fmt.Fprintf(w, "      %-8s %s (exit %d): %s\n", step.Status, step.Name, step.ExitCode, step.Err)
				default:
					fmt.Fprintf(w, "      %-8s %s (%s)\n", step.Status, step.Name, step.Duration.Round(time.Millisecond))
				}
			}
		}
	}
	if run.Failed() {
		fmt.Fprintf(w, "Result: FAILED (%d of %d jobs)\n", len(run.FailedJobs()), len(run.Jobs))
	} else {
		fmt.Fprintf(w, "Result: passed (%d jobs)\n", len(run.Jobs))
	}
}
