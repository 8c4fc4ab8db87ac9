package config

import (
	"fmt"

	"github.com/vk/matrixrun/internal/expr"
)

// Model is the loaded, format-agnostic representation of one pipeline file
// (or directory of files merged together).
type Model struct {
	Pipeline *Pipeline
}

// Pipeline declares a build matrix and the stages every job runs.
type Pipeline struct {
	Name string

	// Env is applied to every job, below the row's own variables.
	Env map[string]string

	// PathPrefix entries are prepended to PATH for every job. Evaluated per
	// row, so entries may interpolate matrix values.
	PathPrefix expr.StringList

	Matrix []*Row
	Stages []*Stage
}

// Row is one fixed matrix combination. Rows are immutable after load and
// each becomes exactly one independent job per run.
type Row struct {
	Name string
	Env  map[string]string
}

// Stage is a named group of steps. Disabled stages are reported as skipped
// and never execute a command.
type Stage struct {
	Name    string
	Enabled bool

	// Needs lists stage names that must complete first. When empty, the
	// stage implicitly follows the previously declared stage.
	Needs []string

	Steps []*Step
}

// Step is a single command invocation. Run holds the command template for
// the default shell runner; Uses selects a built-in runner instead, with
// With carrying its arguments.
type Step struct {
	Name string
	Uses string
	Run  expr.String
	When expr.Condition
	With map[string]expr.String
}

// Validate checks structural invariants that every front-end must deliver:
// a named pipeline, at least one matrix row, unique row and stage names.
func (m *Model) Validate() error {
	if m.Pipeline == nil {
		return fmt.Errorf("no pipeline block found")
	}
	p := m.Pipeline
	if p.Name == "" {
		return fmt.Errorf("pipeline has no name")
	}
	if len(p.Matrix) == 0 {
		return fmt.Errorf("pipeline %q declares no matrix rows", p.Name)
	}

	rows := make(map[string]struct{}, len(p.Matrix))
	for _, row := range p.Matrix {
		if row.Name == "" {
			return fmt.Errorf("pipeline %q has a matrix row without a name", p.Name)
		}
		if _, dup := rows[row.Name]; dup {
			return fmt.Errorf("duplicate matrix row %q", row.Name)
		}
		rows[row.Name] = struct{}{}
	}

	stages := make(map[string]struct{}, len(p.Stages))
	for _, stage := range p.Stages {
		if stage.Name == "" {
			return fmt.Errorf("pipeline %q has a stage without a name", p.Name)
		}
		if _, dup := stages[stage.Name]; dup {
			return fmt.Errorf("duplicate stage %q", stage.Name)
		}
		stages[stage.Name] = struct{}{}
	}
	for _, stage := range p.Stages {
		for _, need := range stage.Needs {
			if _, ok := stages[need]; !ok {
				return fmt.Errorf("stage %q needs unknown stage %q", stage.Name, need)
			}
		}
	}

	return nil
}
