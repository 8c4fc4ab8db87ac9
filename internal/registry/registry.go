// Package registry holds the step runners available to pipelines. Built-in
// runner modules register themselves here during app startup; steps select a
// runner by name through their `uses` attribute, defaulting to "shell".
package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/vk/matrixrun/internal/config"
)

// DefaultRunner is the runner used by steps that declare a `run` command
// line and no explicit `uses`.
const DefaultRunner = "shell"

// StepContext carries everything a runner needs to execute one resolved
// step: identity for logging and reporting, the composed job environment,
// the per-job working directory, and a sink for command output.
type StepContext struct {
	RunID   string
	JobID   string
	JobName string
	Stage   string
	Step    string

	// Command is the fully interpolated command line. Empty for runners
	// that take their input from Args instead.
	Command string

	// Args are the resolved `with` arguments for built-in runners.
	Args map[string]string

	Env     []string
	Workdir string
	Output  io.Writer
}

// Arg returns the named argument, or an error naming the runner when the
// argument is missing or empty.
func (sc *StepContext) Arg(name string) (string, error) {
	if v, ok := sc.Args[name]; ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("step '%s/%s': required argument %q is missing", sc.Stage, sc.Step, name)
}

// Runner executes one step. Implementations must honor ctx cancellation and
// report failure through the returned error only.
type Runner interface {
	Run(ctx context.Context, sc *StepContext) error
}

// Module is the interface that all runner modules implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry maps runner names to their implementations for a single app
// instance.
type Registry struct {
	runners map[string]Runner
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		runners: make(map[string]Runner),
	}
}

// RegisterRunner registers a runner under the given name. Registering the
// same name twice is a programmer error and panics.
func (r *Registry) RegisterRunner(name string, runner Runner) {
	if _, exists := r.runners[name]; exists {
		panic(fmt.Sprintf("runner with name '%s' already registered", name))
	}
	slog.Debug("Registering step runner.", "name", name)
	r.runners[name] = runner
}

// Runner looks up a runner by name.
func (r *Registry) Runner(name string) (Runner, bool) {
	runner, ok := r.runners[name]
	return runner, ok
}

// Names returns all registered runner names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.runners))
	for name := range r.runners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateModel checks that every step in the model resolves to a registered
// runner, and that steps selecting the default shell runner actually carry a
// command line. A mismatch between pipeline and registered code is reported
// in full rather than at first occurrence.
func (r *Registry) ValidateModel(model *config.Model) error {
	var errs []string
	for _, stage := range model.Pipeline.Stages {
		for _, step := range stage.Steps {
			name := step.Uses
			if name == "" {
				name = DefaultRunner
			}
			if _, ok := r.runners[name]; !ok {
				errs = append(errs, fmt.Sprintf("step '%s/%s': unknown runner %q", stage.Name, step.Name, name))
			}
			if name == DefaultRunner && step.Run == nil {
				errs = append(errs, fmt.Sprintf("step '%s/%s': shell steps require a run command", stage.Name, step.Name))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("pipeline references unavailable runners:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
