package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleRun() *Run {
	now := time.Now()
	return &Run{
		ID:        "run-1",
		Pipeline:  "python-matrix",
		StartedAt: now,
		Jobs: []*Job{
			{
				ID: "j1", Row: "py27", Status: StatusPassed,
				StartedAt: now, FinishedAt: now.Add(2 * time.Second),
				Stages: []*Stage{
					{Name: "install", Status: StatusPassed, Steps: []*Step{
						{Name: "tooling", Status: StatusPassed, Duration: time.Second},
					}},
					{Name: "build", Status: StatusSkipped},
				},
			},
			{
				ID: "j2", Row: "py35", Status: StatusFailed,
				StartedAt: now, FinishedAt: now.Add(time.Second),
				Stages: []*Stage{
					{Name: "install", Status: StatusFailed, Steps: []*Step{
						{Name: "tooling", Status: StatusFailed, ExitCode: 2, Err: "exit status 2"},
					}},
				},
				Err: "exit status 2",
			},
		},
	}
}

func TestFailed(t *testing.T) {
	run := sampleRun()
	require.True(t, run.Failed())
	require.Equal(t, []string{"py35"}, run.FailedJobs())

	run.Jobs[1].Status = StatusPassed
	require.False(t, run.Failed())
	require.Empty(t, run.FailedJobs())
}

func TestFailed_SkippedJobsDoNotFailTheRun(t *testing.T) {
	run := sampleRun()
	run.Jobs[1].Status = StatusSkipped
	require.False(t, run.Failed())
}

func TestWriteSummary(t *testing.T) {
	var sb strings.Builder
	WriteSummary(&sb, sampleRun())
	out := sb.String()

	require.Contains(t, out, "Pipeline python-matrix (run run-1)")
	require.Contains(t, out, "py27")
	require.Contains(t, out, "skipped")
	require.Contains(t, out, "stage build")
	require.Contains(t, out, "tooling (exit 2): exit status 2")
	require.Contains(t, out, "Result: FAILED (1 of 2 jobs)")
}

func TestWriteSummary_PassedRun(t *testing.T) {
	run := sampleRun()
	run.Jobs[1].Status = StatusPassed
	run.Jobs[1].Stages[0].Status = StatusPassed
	run.Jobs[1].Stages[0].Steps[0].Status = StatusPassed

	var sb strings.Builder
	WriteSummary(&sb, run)
	require.Contains(t, sb.String(), "Result: passed (2 jobs)")
}
