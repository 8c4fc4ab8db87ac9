// Package hclcfg loads pipeline definitions written in HCL and translates
// them into the format-agnostic config model.
package hclcfg

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/matrixrun/internal/config"
	"github.com/vk/matrixrun/internal/ctxlog"
	"github.com/vk/matrixrun/internal/expr"
	"github.com/vk/matrixrun/internal/fsutil"
)

// Loader is the HCL implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL pipeline loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses the given file, or every .hcl file under the given directory,
// and merges the discovered blocks into a single validated model.
func (l *Loader) Load(ctx context.Context, path string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := l.findFiles(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl pipeline files found at %s", path)
	}
	logger.Debug("Discovered HCL pipeline files.", "count", len(files))

	parser := hclparse.NewParser()

	var merged fileRoot
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		merged.Pipelines = append(merged.Pipelines, root.Pipelines...)
		merged.Matrices = append(merged.Matrices, root.Matrices...)
		merged.Stages = append(merged.Stages, root.Stages...)
	}

	model, err := translate(&merged)
	if err != nil {
		return nil, err
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("HCL loading complete.",
		"pipeline", model.Pipeline.Name,
		"rows", len(model.Pipeline.Matrix),
		"stages", len(model.Pipeline.Stages))
	return model, nil
}

func (l *Loader) findFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline path %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	return fsutil.FindFilesByExtension(path, ".hcl")
}

// translate converts decoded HCL blocks into the config model, wrapping
// dynamic attributes as deferred expressions.
func translate(root *fileRoot) (*config.Model, error) {
	if len(root.Pipelines) == 0 {
		return nil, fmt.Errorf("no pipeline block found")
	}
	if len(root.Pipelines) > 1 {
		return nil, fmt.Errorf("multiple pipeline blocks found; exactly one is allowed")
	}
	pb := root.Pipelines[0]

	pipeline := &config.Pipeline{
		Name: pb.Name,
		Env:  pb.Env,
	}
	if exprIsSet(pb.PathPrefix) {
		pipeline.PathPrefix = expr.ListFromExpression(pb.PathPrefix)
	}

	for _, mb := range root.Matrices {
		for _, rb := range mb.Rows {
			pipeline.Matrix = append(pipeline.Matrix, &config.Row{
				Name: rb.Name,
				Env:  rb.Env,
			})
		}
	}

	for _, sb := range root.Stages {
		stage := &config.Stage{
			Name:    sb.Name,
			Enabled: sb.Enabled == nil || *sb.Enabled,
			Needs:   sb.Needs,
		}
		for _, stb := range sb.Steps {
			step, err := translateStep(sb.Name, stb)
			if err != nil {
				return nil, err
			}
			stage.Steps = append(stage.Steps, step)
		}
		pipeline.Stages = append(pipeline.Stages, stage)
	}

	return &config.Model{Pipeline: pipeline}, nil
}

func translateStep(stageName string, stb *stepBlock) (*config.Step, error) {
	step := &config.Step{
		Name: stb.Name,
		Uses: stb.Uses,
	}
	if exprIsSet(stb.Run) {
		step.Run = expr.FromExpression(stb.Run)
	}
	if exprIsSet(stb.When) {
		step.When = expr.CondFromExpression(stb.When)
	}
	if stb.With != nil {
		attrs, diags := stb.With.Body.JustAttributes()
		if diags.HasErrors() {
			return nil, fmt.Errorf("step '%s/%s': invalid with block: %w", stageName, stb.Name, diags)
		}
		step.With = make(map[string]expr.String, len(attrs))
		for name, attr := range attrs {
			step.With[name] = expr.FromExpression(attr.Expr)
		}
	}
	return step, nil
}

// exprIsSet reports whether an optional expression attribute was actually
// written in the source. gohcl assigns a synthetic null expression to absent
// optional hcl.Expression fields, so a nil check is not enough.
func exprIsSet(e hcl.Expression) bool {
	if e == nil {
		return false
	}
	val, diags := e.Value(nil)
	if diags.HasErrors() {
		// Needs scope variables to evaluate, so it was written out.
		return true
	}
	return !val.IsNull()
}

var _ config.Loader = (*Loader)(nil)
