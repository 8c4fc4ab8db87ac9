// Package yamlcfg loads AppVeyor-flavoured YAML pipeline documents and
// translates them into the format-agnostic config model. The supported
// subset covers an environment matrix, an install section, a build switch
// and a test_script section; command lines are passed to the shell verbatim,
// so any conditional logic stays inside the line, as those files write it.
package yamlcfg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/vk/matrixrun/internal/config"
	"github.com/vk/matrixrun/internal/ctxlog"
	"github.com/vk/matrixrun/internal/expr"
)

// Loader is the YAML implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new YAML pipeline loader.
func NewLoader() *Loader {
	return &Loader{}
}

// document mirrors the top-level keys of an AppVeyor-flavoured file. The
// environment section is kept loose because it mixes the matrix list with
// scalar global variables.
type document struct {
	Environment map[string]any `yaml:"environment"`
	Install     []string       `yaml:"install"`
	Build       any            `yaml:"build"`
	TestScript  []string       `yaml:"test_script"`
}

// Load parses a single YAML pipeline file.
func (l *Loader) Load(ctx context.Context, path string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline path %s: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode YAML file %s: %w", path, err)
	}

	model, err := translate(path, &doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("YAML loading complete.",
		"pipeline", model.Pipeline.Name,
		"rows", len(model.Pipeline.Matrix),
		"stages", len(model.Pipeline.Stages))
	return model, nil
}

func translate(path string, doc *document) (*config.Model, error) {
	base := filepath.Base(path)
	pipeline := &config.Pipeline{
		Name: strings.TrimSuffix(base, filepath.Ext(base)),
	}

	globalEnv, rows, err := splitEnvironment(doc.Environment)
	if err != nil {
		return nil, err
	}
	pipeline.Env = globalEnv
	pipeline.Matrix = rows

	if len(doc.Install) > 0 {
		pipeline.Stages = append(pipeline.Stages, scriptStage("install", doc.Install))
	}
	if disabled, present := buildSwitch(doc.Build); present {
		pipeline.Stages = append(pipeline.Stages, &config.Stage{
			Name:    "build",
			Enabled: !disabled,
		})
	}
	if len(doc.TestScript) > 0 {
		pipeline.Stages = append(pipeline.Stages, scriptStage("test", doc.TestScript))
	}

	return &config.Model{Pipeline: pipeline}, nil
}

// splitEnvironment separates the matrix list from the scalar global
// variables sharing the environment section.
func splitEnvironment(env map[string]any) (map[string]string, []*config.Row, error) {
	var rows []*config.Row
	global := make(map[string]string)

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if key != "matrix" {
			global[key] = scalarString(env[key])
			continue
		}

		list, ok := env[key].([]any)
		if !ok {
			return nil, nil, fmt.Errorf("environment.matrix must be a list of mappings")
		}
		for i, item := range list {
			mapping, ok := item.(map[string]any)
			if !ok {
				return nil, nil, fmt.Errorf("environment.matrix entry %d is not a mapping", i+1)
			}
			row := &config.Row{
				Name: fmt.Sprintf("row-%d", i+1),
				Env:  make(map[string]string, len(mapping)),
			}
			for k, v := range mapping {
				row.Env[k] = scalarString(v)
			}
			rows = append(rows, row)
		}
	}

	if len(global) == 0 {
		global = nil
	}
	return global, rows, nil
}

// buildSwitch interprets the `build` key: absent means no build stage at
// all, while false/"off" declares an explicitly disabled one.
func buildSwitch(v any) (disabled, present bool) {
	switch b := v.(type) {
	case nil:
		return false, false
	case bool:
		return !b, true
	case string:
		switch strings.ToLower(b) {
		case "off", "false", "none":
			return true, true
		}
		return false, true
	default:
		return false, true
	}
}

func scriptStage(name string, lines []string) *config.Stage {
	stage := &config.Stage{
		Name:    name,
		Enabled: true,
	}
	for i, line := range lines {
		stage.Steps = append(stage.Steps, &config.Step{
			Name: fmt.Sprintf("line-%d", i+1),
			Run:  expr.Literal(line),
		})
	}
	return stage
}

func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}

var _ config.Loader = (*Loader)(nil)
