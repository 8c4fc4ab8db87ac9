package expr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testScope() *Scope {
	return &Scope{
		Pipeline: "python-matrix",
		RowName:  "py35",
		Env: map[string]string{
			"PYTHON":         "C:\\Python35",
			"PYTHON_VERSION": "3.5",
			"IS_CONDA":       "0",
		},
		JobID:   "job-1",
		JobName: "py35",
		Workdir: "/tmp/job-1",
	}
}

func TestLiteral_ResolvesVerbatim(t *testing.T) {
	s, err := Literal("pip install -e .").Resolve(testScope())
	require.NoError(t, err)
	require.Equal(t, "pip install -e .", s)
}

func TestParseTemplate_InterpolatesMatrixEnv(t *testing.T) {
	tmpl, err := ParseTemplate(`nosetests${matrix.env.PYTHON_VERSION == "3.5" && matrix.env.IS_CONDA != "1" ? " --with-coverage" : ""}`, "test.hcl")
	require.NoError(t, err)

	s, err := tmpl.Resolve(testScope())
	require.NoError(t, err)
	require.Equal(t, "nosetests --with-coverage", s)

	condaScope := testScope()
	condaScope.Env["IS_CONDA"] = "1"
	s, err = tmpl.Resolve(condaScope)
	require.NoError(t, err)
	require.Equal(t, "nosetests", s)
}

func TestParseTemplate_ExposesJobAndPipeline(t *testing.T) {
	tmpl, err := ParseTemplate("${pipeline.name}/${job.name}/${job.id}", "test.hcl")
	require.NoError(t, err)

	s, err := tmpl.Resolve(testScope())
	require.NoError(t, err)
	require.Equal(t, "python-matrix/py35/job-1", s)
}

func TestParseTemplate_UnknownVariableFails(t *testing.T) {
	tmpl, err := ParseTemplate("${matrix.env.NO_SUCH_KEY}", "test.hcl")
	require.NoError(t, err)

	_, err = tmpl.Resolve(testScope())
	require.Error(t, err)
}

func TestParseCondition_Decides(t *testing.T) {
	cond, err := ParseCondition(`matrix.env.IS_CONDA == "1"`, "test.hcl")
	require.NoError(t, err)

	ok, err := cond.Decide(testScope())
	require.NoError(t, err)
	require.False(t, ok)

	condaScope := testScope()
	condaScope.Env["IS_CONDA"] = "1"
	ok, err = cond.Decide(condaScope)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestParseCondition_NonBooleanFails(t *testing.T) {
	cond, err := ParseCondition(`matrix.env.PYTHON`, "test.hcl")
	require.NoError(t, err)

	_, err = cond.Decide(testScope())
	require.Error(t, err)
}

func TestParseCondition_InvalidSyntaxRejected(t *testing.T) {
	_, err := ParseCondition(`matrix.env. ==`, "test.hcl")
	require.Error(t, err)
}

func TestScope_EmptyEnv(t *testing.T) {
	scope := &Scope{Pipeline: "p", RowName: "r"}

	cond, err := ParseCondition(`matrix.name == "r"`, "test.hcl")
	require.NoError(t, err)

	ok, err := cond.Decide(scope)
	require.NoError(t, err)
	require.True(t, ok)
}
