package hclcfg

import (
	"github.com/hashicorp/hcl/v2"
)

// fileRoot decodes all top-level blocks a pipeline file may contain. Blocks
// can be split across multiple files in a directory; the loader merges them.
type fileRoot struct {
	Pipelines []*pipelineBlock `hcl:"pipeline,block"`
	Matrices  []*matrixBlock   `hcl:"matrix,block"`
	Stages    []*stageBlock    `hcl:"stage,block"`
	Remain    hcl.Body         `hcl:",remain"`
}

// pipelineBlock carries pipeline-wide settings. PathPrefix stays an
// expression so entries can interpolate matrix values per row.
type pipelineBlock struct {
	Name       string            `hcl:"name,label"`
	Env        map[string]string `hcl:"env,optional"`
	PathPrefix hcl.Expression    `hcl:"path_prefix,optional"`
}

type matrixBlock struct {
	Rows []*rowBlock `hcl:"row,block"`
}

type rowBlock struct {
	Name string            `hcl:"name,label"`
	Env  map[string]string `hcl:"env,optional"`
}

type stageBlock struct {
	Name    string       `hcl:"name,label"`
	Enabled *bool        `hcl:"enabled,optional"`
	Needs   []string     `hcl:"needs,optional"`
	Steps   []*stepBlock `hcl:"step,block"`
}

// stepBlock keeps Run and When as undecoded expressions; they are evaluated
// later, once per job, against that job's matrix scope.
type stepBlock struct {
	Name string         `hcl:"name,label"`
	Uses string         `hcl:"uses,optional"`
	Run  hcl.Expression `hcl:"run,optional"`
	When hcl.Expression `hcl:"when,optional"`
	With *withBlock     `hcl:"with,block"`
}

// withBlock holds free-form runner arguments as a raw body, decoded into
// named expressions by the translator.
type withBlock struct {
	Body hcl.Body `hcl:",remain"`
}
