package app

import (
	"context"

	"github.com/vk/matrixrun/internal/ctxlog"
	"github.com/vk/matrixrun/internal/executor"
	"github.com/vk/matrixrun/internal/report"
)

// Run executes the loaded pipeline's full matrix and writes the run summary.
// The returned error is non-nil when any job failed.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.cfg.HealthcheckPort > 0 {
		a.startHealthcheckServer()
		defer a.closeHealthcheckServer(ctx)
	}

	exec, err := executor.New(a.model, a.registry, executor.Options{
		Workers:  a.cfg.Workers,
		FailFast: a.cfg.FailFast,
		WorkRoot: a.cfg.WorkRoot,
		Output:   executor.PrefixedOutput(a.outW),
	})
	if err != nil {
		return err
	}

	a.logger.Info("🚀 Starting matrix execution...", "pipeline", a.model.Pipeline.Name)
	run, runErr := exec.Run(ctx)
	a.logger.Info("🏁 Matrix execution finished.")

	if run != nil {
		report.WriteSummary(a.outW, run)
	}

	a.logger.Debug("App.Run method finished.")
	return runErr
}
