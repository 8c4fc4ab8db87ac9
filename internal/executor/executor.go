// Package executor runs a loaded pipeline: every matrix row becomes an
// independent job scheduled on a worker pool, and each job walks its stages
// strictly in dependency order. Rows share nothing; a failure inside a job
// fails that job fast and leaves the others running, unless fail-fast mode
// cancels the whole run.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vk/matrixrun/internal/config"
	"github.com/vk/matrixrun/internal/ctxlog"
	"github.com/vk/matrixrun/internal/graph"
	"github.com/vk/matrixrun/internal/registry"
	"github.com/vk/matrixrun/internal/report"
)

// Options control one executor instance.
type Options struct {
	// Workers caps how many jobs run concurrently. Values below 1 fall back
	// to DefaultWorkers.
	Workers int

	// FailFast cancels the remaining jobs as soon as any job fails. By
	// default rows are independent and the rest of the matrix finishes.
	FailFast bool

	// WorkRoot is the base directory under which per-job working
	// directories are created. Empty means the OS temp directory.
	WorkRoot string

	// Output receives command output from all jobs.
	Output OutputWriter
}

// DefaultWorkers is used when Options.Workers is not set.
const DefaultWorkers = 4

// Executor schedules the jobs of one pipeline run.
type Executor struct {
	model *config.Model
	reg   *registry.Registry
	opts  Options
	order []*config.Stage

	mu       sync.Mutex
	firstErr error
}

// New builds an executor for the given model, resolving the stage execution
// order up front. Unknown `needs` references and cycles are load-time
// errors, not run-time ones.
func New(model *config.Model, reg *registry.Registry, opts Options) (*Executor, error) {
	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers
	}
	if opts.Output == nil {
		opts.Output = NopOutput()
	}

	order, err := orderStages(model.Pipeline.Stages)
	if err != nil {
		return nil, err
	}

	return &Executor{
		model: model,
		reg:   reg,
		opts:  opts,
		order: order,
	}, nil
}

// orderStages arranges stages so that every stage runs after the stages it
// needs. Stages without explicit needs implicitly follow the previously
// declared stage, which yields the classic install-build-test chain.
func orderStages(stages []*config.Stage) ([]*config.Stage, error) {
	g := graph.New()
	byName := make(map[string]*config.Stage, len(stages))
	for _, stage := range stages {
		g.AddNode(stage.Name)
		byName[stage.Name] = stage
	}
	for i, stage := range stages {
		if len(stage.Needs) == 0 {
			if i > 0 {
				if err := g.AddEdge(stages[i-1].Name, stage.Name); err != nil {
					return nil, err
				}
			}
			continue
		}
		for _, need := range stage.Needs {
			if err := g.AddEdge(need, stage.Name); err != nil {
				return nil, err
			}
		}
	}

	if err := g.DetectCycles(); err != nil {
		return nil, fmt.Errorf("invalid stage ordering: %w", err)
	}
	names, err := g.TopoSort()
	if err != nil {
		return nil, fmt.Errorf("invalid stage ordering: %w", err)
	}

	ordered := make([]*config.Stage, 0, len(names))
	for _, name := range names {
		ordered = append(ordered, byName[name])
	}
	return ordered, nil
}

// StageOrder exposes the resolved execution order. Primarily for tests.
func (e *Executor) StageOrder() []string {
	names := make([]string, 0, len(e.order))
	for _, stage := range e.order {
		names = append(names, stage.Name)
	}
	return names
}

// Run executes the full matrix once and returns the assembled run report.
// The returned error is non-nil when any job failed; it wraps the first
// underlying failure, in matrix-scheduling order.
func (e *Executor) Run(ctx context.Context) (*report.Run, error) {
	logger := ctxlog.FromContext(ctx)

	run := &report.Run{
		ID:        uuid.NewString(),
		Pipeline:  e.model.Pipeline.Name,
		StartedAt: time.Now(),
	}

	jobs := e.expandJobs(run)
	logger.Info("Matrix expanded.", "rows", len(jobs), "stages", len(e.order), "workers", e.opts.Workers)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobChan := make(chan *job, len(jobs))
	for _, j := range jobs {
		jobChan <- j
	}
	close(jobChan)

	workers := e.opts.Workers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(workerID int) {
			defer wg.Done()
			e.worker(runCtx, cancel, jobChan, workerID)
		}(i)
	}

	logger.Debug("Waiting for all jobs to complete...")
	wg.Wait()
	run.FinishedAt = time.Now()

	if run.Failed() {
		err := e.firstError()
		if err == nil {
			err = errors.New("job failed")
		}
		return run, fmt.Errorf("run failed for %s: %w", strings.Join(run.FailedJobs(), ", "), err)
	}
	return run, nil
}

// worker is the processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, cancel context.CancelFunc, jobChan <-chan *job, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for j := range jobChan {
		if ctx.Err() != nil {
			logger.Warn("Run canceled, skipping job.", "workerID", workerID, "row", j.rep.Row)
			j.markSkipped(e.order, "run canceled before job started")
			continue
		}

		e.runJob(ctx, j, workerID)

		if j.rep.Status == report.StatusFailed && e.opts.FailFast {
			logger.Warn("Fail-fast triggered, canceling remaining jobs.", "row", j.rep.Row)
			cancel()
		}
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

func (e *Executor) recordError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.firstErr == nil {
		e.firstErr = err
	}
}

func (e *Executor) firstError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.firstErr
}
