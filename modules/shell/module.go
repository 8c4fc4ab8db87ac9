// Package shell provides the default step runner: it hands the resolved
// command line to the platform shell inside the job's working directory and
// environment. Only the exit code is interpreted; everything else is the
// command's own business.
package shell

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/vk/matrixrun/internal/ctxlog"
	"github.com/vk/matrixrun/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the runner with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("shell", &runner{})
}

type runner struct{}

// Run executes the step's command line through the platform shell. The
// wrapped exec.ExitError is preserved so callers can surface the exit code.
func (rn *runner) Run(ctx context.Context, sc *registry.StepContext) error {
	if sc.Command == "" {
		return fmt.Errorf("shell step %q has an empty command", sc.Step)
	}

	logger := ctxlog.FromContext(ctx)

	cmd := shellCommand(ctx, sc.Command)
	cmd.Dir = sc.Workdir
	cmd.Env = sc.Env
	cmd.Stdout = sc.Output
	cmd.Stderr = sc.Output

	logger.Info("▶ Running command.", "command", sc.Command)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("command %q failed: %w", sc.Command, err)
	}
	return nil
}

// shellCommand builds the platform-appropriate shell invocation: cmd.exe on
// Windows (where the original build matrices run), sh everywhere else.
func shellCommand(ctx context.Context, line string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", line)
	}
	return exec.CommandContext(ctx, "sh", "-c", line)
}
