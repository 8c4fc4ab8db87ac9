// Package sysinfo provides a diagnostic runner that prints a snapshot of the
// job's effective environment. It replaces ad-hoc `set`/`env` lines in
// pipeline files and keys the output to the job so interleaved logs stay
// attributable.
package sysinfo

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/vk/matrixrun/internal/ctxlog"
	"github.com/vk/matrixrun/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the runner with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("sysinfo", &runner{})
}

type runner struct{}

// Run prints platform information and the job's environment variables to
// the job output. The optional "only" argument restricts the dump to a
// comma-separated list of variable names.
func (rn *runner) Run(ctx context.Context, sc *registry.StepContext) error {
	ctxlog.FromContext(ctx).Debug("Collecting job environment snapshot.")

	var only map[string]struct{}
	if names, ok := sc.Args["only"]; ok && names != "" {
		only = make(map[string]struct{})
		for _, name := range strings.Split(names, ",") {
			only[strings.TrimSpace(name)] = struct{}{}
		}
	}

	fmt.Fprintf(sc.Output, "platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(sc.Output, "workdir:  %s\n", sc.Workdir)

	env := make([]string, len(sc.Env))
	copy(env, sc.Env)
	sort.Strings(env)
	for _, kv := range env {
		if only != nil {
			name, _, _ := strings.Cut(kv, "=")
			if _, keep := only[name]; !keep {
				continue
			}
		}
		fmt.Fprintln(sc.Output, kv)
	}
	return nil
}
