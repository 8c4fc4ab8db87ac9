package expr

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// Scope holds the values visible to a step's expressions: the matrix row it
// runs under, the job executing it, and the owning pipeline. Expressions
// address them as `matrix.*`, `job.*` and `pipeline.*`.
type Scope struct {
	Pipeline string

	// Matrix row identity and its environment variables.
	RowName string
	Env     map[string]string

	// Job identity, assigned per run.
	JobID   string
	JobName string
	Workdir string
}

func (s *Scope) evalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value, len(s.Env))
	for k, v := range s.Env {
		env[k] = cty.StringVal(v)
	}
	envVal := cty.MapValEmpty(cty.String)
	if len(env) > 0 {
		envVal = cty.MapVal(env)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"matrix": cty.ObjectVal(map[string]cty.Value{
				"name": cty.StringVal(s.RowName),
				"env":  envVal,
			}),
			"job": cty.ObjectVal(map[string]cty.Value{
				"id":      cty.StringVal(s.JobID),
				"name":    cty.StringVal(s.JobName),
				"workdir": cty.StringVal(s.Workdir),
			}),
			"pipeline": cty.ObjectVal(map[string]cty.Value{
				"name": cty.StringVal(s.Pipeline),
			}),
		},
	}
}
