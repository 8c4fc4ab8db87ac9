package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/matrixrun/internal/config"
	"github.com/vk/matrixrun/internal/hclcfg"
	"github.com/vk/matrixrun/internal/registry"
	"github.com/vk/matrixrun/internal/report"
)

const matrixPipeline = `
pipeline "python-matrix" {
  env = {
    GIT_USER_EMAIL = "ci@example.com"
  }

  path_prefix = ["${matrix.env.PYTHON}"]
}

matrix {
  row "py27" {
    env = {
      PYTHON         = "C:\\Python27"
      PYTHON_VERSION = "2.7"
      IS_CONDA       = "0"
    }
  }

  row "py34" {
    env = {
      PYTHON         = "C:\\Python34"
      PYTHON_VERSION = "3.4"
      IS_CONDA       = "0"
    }
  }

  row "py35" {
    env = {
      PYTHON         = "C:\\Python35"
      PYTHON_VERSION = "3.5"
      IS_CONDA       = "0"
    }
  }

  row "conda35" {
    env = {
      PYTHON         = "C:\\Miniconda35"
      PYTHON_VERSION = "3.5"
      IS_CONDA       = "1"
    }
  }
}

stage "install" {
  step "conda-bootstrap" {
    run  = "conda install --yes pip"
    when = matrix.env.IS_CONDA == "1"
  }

  step "tooling" {
    run = "pip install nose wheel coverage"
  }
}

stage "build" {
  enabled = false

  step "compile" {
    run = "msbuild"
  }
}

stage "test" {
  needs = ["install", "build"]

  step "nose" {
    run = "nosetests${matrix.env.PYTHON_VERSION == "3.5" && matrix.env.IS_CONDA != "1" ? " --with-coverage" : ""}"
  }
}
`

func loadPipeline(t *testing.T, content string) *config.Model {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	model, err := hclcfg.NewLoader().Load(context.Background(), path)
	require.NoError(t, err)
	return model
}

// spyCall is one recorded runner invocation.
type spyCall struct {
	Row     string
	Stage   string
	Step    string
	Command string
	Env     []string
}

// spyRunner records every invocation instead of executing anything. Failures
// can be injected per step name.
type spyRunner struct {
	mu      sync.Mutex
	calls   []spyCall
	failOn  string
	failErr error
}

func (s *spyRunner) Run(_ context.Context, sc *registry.StepContext) error {
	s.mu.Lock()
	s.calls = append(s.calls, spyCall{
		Row:     sc.JobName,
		Stage:   sc.Stage,
		Step:    sc.Step,
		Command: sc.Command,
		Env:     sc.Env,
	})
	s.mu.Unlock()

	if s.failOn != "" && sc.Step == s.failOn {
		if s.failErr != nil {
			return s.failErr
		}
		return errors.New("injected failure")
	}
	return nil
}

func (s *spyRunner) rowCalls(row string) []spyCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []spyCall
	for _, c := range s.calls {
		if c.Row == row {
			out = append(out, c)
		}
	}
	return out
}

func newMatrixExecutor(t *testing.T, spy *spyRunner, opts Options) *Executor {
	t.Helper()
	model := loadPipeline(t, matrixPipeline)
	reg := registry.New()
	reg.RegisterRunner("shell", spy)
	if opts.WorkRoot == "" {
		opts.WorkRoot = t.TempDir()
	}
	e, err := New(model, reg, opts)
	require.NoError(t, err)
	return e
}

func jobByRow(t *testing.T, run *report.Run, row string) *report.Job {
	t.Helper()
	for _, j := range run.Jobs {
		if j.Row == row {
			return j
		}
	}
	t.Fatalf("no job for row %q", row)
	return nil
}

func TestRun_AllRowsPass(t *testing.T) {
	spy := &spyRunner{}
	e := newMatrixExecutor(t, spy, Options{})

	run, err := e.Run(context.Background())
	require.NoError(t, err)
	require.False(t, run.Failed())
	require.Len(t, run.Jobs, 4)
	for _, j := range run.Jobs {
		require.Equal(t, report.StatusPassed, j.Status, "row %s", j.Row)
	}
}

func TestRun_InstallRunsBeforeTestInEveryRow(t *testing.T) {
	spy := &spyRunner{}
	e := newMatrixExecutor(t, spy, Options{})

	_, err := e.Run(context.Background())
	require.NoError(t, err)

	for _, row := range []string{"py27", "py34", "py35", "conda35"} {
		calls := spy.rowCalls(row)
		require.NotEmpty(t, calls, "row %s", row)

		sawTest := false
		for _, c := range calls {
			if c.Stage == "test" {
				sawTest = true
			}
			if c.Stage == "install" {
				require.False(t, sawTest, "row %s ran install after test", row)
			}
		}
		require.True(t, sawTest, "row %s never reached test", row)
	}
}

func TestRun_CoverageFlagOnlyForPlainPython35(t *testing.T) {
	spy := &spyRunner{}
	e := newMatrixExecutor(t, spy, Options{})

	_, err := e.Run(context.Background())
	require.NoError(t, err)

	want := map[string]string{
		"py27":    "nosetests",
		"py34":    "nosetests",
		"py35":    "nosetests --with-coverage",
		"conda35": "nosetests",
	}
	for row, cmd := range want {
		calls := spy.rowCalls(row)
		var got string
		for _, c := range calls {
			if c.Step == "nose" {
				got = c.Command
			}
		}
		require.Equal(t, cmd, got, "row %s", row)
	}
}

func TestRun_CondaBootstrapOnlyInCondaRow(t *testing.T) {
	spy := &spyRunner{}
	e := newMatrixExecutor(t, spy, Options{})

	run, err := e.Run(context.Background())
	require.NoError(t, err)

	for _, row := range []string{"py27", "py34", "py35"} {
		for _, c := range spy.rowCalls(row) {
			require.NotEqual(t, "conda-bootstrap", c.Step, "row %s", row)
		}
	}

	var sawBootstrap bool
	for _, c := range spy.rowCalls("conda35") {
		if c.Step == "conda-bootstrap" {
			sawBootstrap = true
			require.Equal(t, "conda install --yes pip", c.Command)
		}
	}
	require.True(t, sawBootstrap)

	// The skipped condition is still visible in the report.
	install := jobByRow(t, run, "py27").Stages[0]
	require.Equal(t, "install", install.Name)
	require.Equal(t, report.StatusSkipped, install.Steps[0].Status)
	require.Equal(t, report.StatusPassed, install.Steps[1].Status)
}

func TestRun_DisabledStageExecutesNothing(t *testing.T) {
	spy := &spyRunner{}
	e := newMatrixExecutor(t, spy, Options{})

	run, err := e.Run(context.Background())
	require.NoError(t, err)

	spy.mu.Lock()
	for _, c := range spy.calls {
		require.NotEqual(t, "build", c.Stage)
	}
	spy.mu.Unlock()

	for _, j := range run.Jobs {
		var build *report.Stage
		for _, s := range j.Stages {
			if s.Name == "build" {
				build = s
			}
		}
		require.NotNil(t, build, "row %s", j.Row)
		require.Equal(t, report.StatusSkipped, build.Status)
		require.Len(t, build.Steps, 1)
		require.Equal(t, report.StatusSkipped, build.Steps[0].Status)
	}
}

func TestRun_JobEnvironmentCarriesRowAndPathPrefix(t *testing.T) {
	spy := &spyRunner{}
	e := newMatrixExecutor(t, spy, Options{})

	_, err := e.Run(context.Background())
	require.NoError(t, err)

	calls := spy.rowCalls("py35")
	require.NotEmpty(t, calls)
	env := calls[0].Env

	require.Contains(t, env, "PYTHON_VERSION=3.5")
	require.Contains(t, env, "GIT_USER_EMAIL=ci@example.com")

	var path string
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			path = strings.TrimPrefix(kv, "PATH=")
		}
	}
	require.True(t, strings.HasPrefix(path, "C:\\Python35"), "PATH=%s", path)
}

func TestRun_StepFailureSkipsRestOfJobOnly(t *testing.T) {
	spy := &spyRunner{failOn: "tooling"}
	e := newMatrixExecutor(t, spy, Options{})

	run, err := e.Run(context.Background())
	require.Error(t, err)
	require.ErrorContains(t, err, "run failed for")
	require.True(t, run.Failed())

	for _, j := range run.Jobs {
		require.Equal(t, report.StatusFailed, j.Status)

		var test *report.Stage
		for _, s := range j.Stages {
			if s.Name == "test" {
				test = s
			}
		}
		require.NotNil(t, test)
		require.Equal(t, report.StatusSkipped, test.Status)
	}

	// No row ever reached its test stage.
	spy.mu.Lock()
	for _, c := range spy.calls {
		require.NotEqual(t, "test", c.Stage)
	}
	spy.mu.Unlock()
}

func TestRun_RowsAreIndependentByDefault(t *testing.T) {
	spy := &spyRunner{failOn: "conda-bootstrap"}
	e := newMatrixExecutor(t, spy, Options{})

	run, err := e.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, []string{"conda35"}, run.FailedJobs())

	// conda-bootstrap only fires in the conda row, so the other three rows
	// still finish cleanly.
	for _, row := range []string{"py27", "py34", "py35"} {
		require.Equal(t, report.StatusPassed, jobByRow(t, run, row).Status)
	}
}

func TestRun_FailFastCancelsRemainingJobs(t *testing.T) {
	spy := &spyRunner{failOn: "tooling"}
	e := newMatrixExecutor(t, spy, Options{Workers: 1, FailFast: true})

	run, err := e.Run(context.Background())
	require.Error(t, err)

	require.Equal(t, report.StatusFailed, jobByRow(t, run, "py27").Status)
	for _, row := range []string{"py34", "py35", "conda35"} {
		j := jobByRow(t, run, row)
		require.Equal(t, report.StatusSkipped, j.Status, "row %s", row)
		require.Empty(t, spy.rowCalls(row), "row %s still ran steps", row)
	}
}

func stagesOnlyModel(stages ...*config.Stage) *config.Model {
	return &config.Model{
		Pipeline: &config.Pipeline{
			Name:   "p",
			Matrix: []*config.Row{{Name: "r"}},
			Stages: stages,
		},
	}
}

func TestNew_ImplicitChainFollowsDeclarationOrder(t *testing.T) {
	e, err := New(stagesOnlyModel(
		&config.Stage{Name: "install", Enabled: true},
		&config.Stage{Name: "build", Enabled: true},
		&config.Stage{Name: "test", Enabled: true},
	), registry.New(), Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"install", "build", "test"}, e.StageOrder())
}

func TestNew_ExplicitNeedsOverrideDeclarationOrder(t *testing.T) {
	e, err := New(stagesOnlyModel(
		&config.Stage{Name: "install", Enabled: true},
		&config.Stage{Name: "package", Enabled: true, Needs: []string{"test"}},
		&config.Stage{Name: "test", Enabled: true, Needs: []string{"install"}},
	), registry.New(), Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"install", "test", "package"}, e.StageOrder())
}

func TestNew_CyclicNeedsRejected(t *testing.T) {
	_, err := New(stagesOnlyModel(
		&config.Stage{Name: "a", Enabled: true, Needs: []string{"b"}},
		&config.Stage{Name: "b", Enabled: true, Needs: []string{"a"}},
	), registry.New(), Options{})
	require.ErrorContains(t, err, "invalid stage ordering")
}
