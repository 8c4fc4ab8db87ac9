package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vk/matrixrun/internal/config"
	"github.com/vk/matrixrun/internal/ctxlog"
	"github.com/vk/matrixrun/internal/expr"
	"github.com/vk/matrixrun/internal/registry"
	"github.com/vk/matrixrun/internal/report"
)

// job is the runtime state of one matrix row's execution.
type job struct {
	id    string
	runID string
	row   *config.Row
	rep   *report.Job

	workdir string
	env     []string
	scope   *expr.Scope
}

// expandJobs materializes one job per matrix row, in declaration order, and
// registers their report entries on the run.
func (e *Executor) expandJobs(run *report.Run) []*job {
	jobs := make([]*job, 0, len(e.model.Pipeline.Matrix))
	for _, row := range e.model.Pipeline.Matrix {
		id := uuid.NewString()
		rep := &report.Job{
			ID:     id,
			Row:    row.Name,
			Status: report.StatusPending,
		}
		run.Jobs = append(run.Jobs, rep)
		jobs = append(jobs, &job{
			id:    id,
			runID: run.ID,
			row:   row,
			rep:   rep,
		})
	}
	return jobs
}

// prepare creates the job's isolated working directory and composes its
// environment: host environment, pipeline globals, then the row's own
// variables, with optional PATH prefixes resolved against the row scope.
func (e *Executor) prepare(j *job) error {
	root := e.opts.WorkRoot
	if root == "" {
		root = filepath.Join(os.TempDir(), "matrixrun")
	}
	j.workdir = filepath.Join(root, j.runID, j.row.Name)
	if err := os.MkdirAll(j.workdir, 0o755); err != nil {
		return fmt.Errorf("failed to create job workdir: %w", err)
	}

	pipeline := e.model.Pipeline

	overlay := make(map[string]string, len(pipeline.Env)+len(j.row.Env))
	for k, v := range pipeline.Env {
		overlay[k] = v
	}
	for k, v := range j.row.Env {
		overlay[k] = v
	}

	j.scope = &expr.Scope{
		Pipeline: pipeline.Name,
		RowName:  j.row.Name,
		Env:      overlay,
		JobID:    j.id,
		JobName:  j.row.Name,
		Workdir:  j.workdir,
	}

	envMap := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			envMap[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range overlay {
		envMap[k] = v
	}

	if pipeline.PathPrefix != nil {
		prefixes, err := pipeline.PathPrefix.Resolve(j.scope)
		if err != nil {
			return fmt.Errorf("failed to resolve path_prefix: %w", err)
		}
		if len(prefixes) > 0 {
			sep := string(os.PathListSeparator)
			path := strings.Join(prefixes, sep)
			if existing := envMap["PATH"]; existing != "" {
				path = path + sep + existing
			}
			envMap["PATH"] = path
		}
	}

	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	j.env = make([]string, 0, len(keys))
	for _, k := range keys {
		j.env = append(j.env, k+"="+envMap[k])
	}

	return nil
}

// runJob walks the job's stages in resolved order. The first failing step
// fails the job and everything after it is recorded as skipped; disabled
// stages are recorded as skipped without touching any of their steps.
func (e *Executor) runJob(ctx context.Context, j *job, workerID int) {
	logger := ctxlog.FromContext(ctx).With("workerID", workerID, "row", j.rep.Row, "jobID", j.id)
	ctx = ctxlog.WithLogger(ctx, logger)

	j.rep.Status = report.StatusRunning
	j.rep.StartedAt = time.Now()
	defer func() { j.rep.FinishedAt = time.Now() }()

	logger.Info("Job started.")

	if err := e.prepare(j); err != nil {
		logger.Error("Job setup failed.", "error", err)
		e.failJob(j, err)
		j.markSkipped(e.order, "job setup failed")
		return
	}

	failed := false
	for _, stage := range e.order {
		stageRep := &report.Stage{Name: stage.Name}
		j.rep.Stages = append(j.rep.Stages, stageRep)

		if failed {
			stageRep.Status = report.StatusSkipped
			skipSteps(stageRep, stage)
			continue
		}
		if !stage.Enabled {
			logger.Info("Stage disabled, skipping.", "stage", stage.Name)
			stageRep.Status = report.StatusSkipped
			skipSteps(stageRep, stage)
			continue
		}

		stageRep.Status = report.StatusRunning
		for _, step := range stage.Steps {
			stepRep := &report.Step{Name: step.Name, Status: report.StatusPending}
			stageRep.Steps = append(stageRep.Steps, stepRep)

			if failed {
				stepRep.Status = report.StatusSkipped
				continue
			}

			if err := e.runStep(ctx, j, stage, step, stepRep); err != nil {
				logger.Error("Step failed.", "stage", stage.Name, "step", step.Name, "error", err)
				stepRep.Status = report.StatusFailed
				stepRep.Err = err.Error()
				failed = true
				e.failJob(j, err)
			}
		}

		if failed {
			stageRep.Status = report.StatusFailed
		} else {
			stageRep.Status = report.StatusPassed
		}
	}

	if !failed {
		j.rep.Status = report.StatusPassed
		logger.Info("Job passed.")
	} else {
		logger.Warn("Job failed.", "error", j.rep.Err)
	}
}

// runStep resolves one step against the job scope and dispatches it to its
// runner. A false `when` condition skips the step without failing it.
func (e *Executor) runStep(ctx context.Context, j *job, stage *config.Stage, step *config.Step, rep *report.Step) error {
	logger := ctxlog.FromContext(ctx).With("stage", stage.Name, "step", step.Name)

	if step.When != nil {
		ok, err := step.When.Decide(j.scope)
		if err != nil {
			return fmt.Errorf("step '%s/%s': evaluating when condition: %w", stage.Name, step.Name, err)
		}
		if !ok {
			logger.Debug("Condition false, skipping step.")
			rep.Status = report.StatusSkipped
			return nil
		}
	}

	var command string
	if step.Run != nil {
		resolved, err := step.Run.Resolve(j.scope)
		if err != nil {
			return fmt.Errorf("step '%s/%s': resolving run command: %w", stage.Name, step.Name, err)
		}
		command = strings.TrimSpace(resolved)
	}

	var args map[string]string
	if len(step.With) > 0 {
		args = make(map[string]string, len(step.With))
		for name, src := range step.With {
			resolved, err := src.Resolve(j.scope)
			if err != nil {
				return fmt.Errorf("step '%s/%s': resolving argument %q: %w", stage.Name, step.Name, name, err)
			}
			args[name] = resolved
		}
	}

	runnerName := step.Uses
	if runnerName == "" {
		runnerName = registry.DefaultRunner
	}
	runner, ok := e.reg.Runner(runnerName)
	if !ok {
		return fmt.Errorf("step '%s/%s': unknown runner %q", stage.Name, step.Name, runnerName)
	}

	sc := &registry.StepContext{
		RunID:   j.runID,
		JobID:   j.id,
		JobName: j.rep.Row,
		Stage:   stage.Name,
		Step:    step.Name,
		Command: command,
		Args:    args,
		Env:     j.env,
		Workdir: j.workdir,
		Output:  e.opts.Output.JobWriter(j.rep.Row),
	}

	rep.Command = command
	rep.Status = report.StatusRunning
	logger.Debug("Step started.", "command", command, "runner", runnerName)

	start := time.Now()
	err := runner.Run(ctx, sc)
	rep.Duration = time.Since(start)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			rep.ExitCode = exitErr.ExitCode()
		} else {
			rep.ExitCode = -1
		}
		return err
	}

	rep.Status = report.StatusPassed
	logger.Debug("Step passed.", "duration", rep.Duration)
	return nil
}

func (e *Executor) failJob(j *job, err error) {
	j.rep.Status = report.StatusFailed
	if j.rep.Err == "" {
		j.rep.Err = err.Error()
	}
	e.recordError(err)
}

// markSkipped records the full stage plan as skipped, for jobs that never
// got to run (canceled runs, failed setup).
func (j *job) markSkipped(order []*config.Stage, reason string) {
	if j.rep.Status == report.StatusPending {
		j.rep.Status = report.StatusSkipped
	}
	if j.rep.Err == "" {
		j.rep.Err = reason
	}
	for _, stage := range order {
		stageRep := &report.Stage{Name: stage.Name, Status: report.StatusSkipped}
		skipSteps(stageRep, stage)
		j.rep.Stages = append(j.rep.Stages, stageRep)
	}
}

func skipSteps(stageRep *report.Stage, stage *config.Stage) {
	for _, step := range stage.Steps {
		stageRep.Steps = append(stageRep.Steps, &report.Step{
			Name:   step.Name,
			Status: report.StatusSkipped,
		})
	}
}
