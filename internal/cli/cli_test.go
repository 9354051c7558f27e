package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leofalp/devforge/core/invoke"
	"github.com/leofalp/devforge/core/overview"
	"github.com/leofalp/devforge/internal/config"
	"github.com/leofalp/devforge/internal/pipeline"
	"github.com/leofalp/devforge/patterns/graph"
	"github.com/leofalp/devforge/providers/observability"
)

const genericReply = `{"project_name": "demo", "platforms": ["web"], "files": {"main.go": "package main"}, "needs_fixes": false}`

// stubModel answers every node with genericReply. hook, when set, runs
// before answering and may replace the outcome.
type stubModel struct {
	mu    sync.Mutex
	calls map[string]int
	hook  func(node string) error
}

func (m *stubModel) Invoke(ctx context.Context, _ invoke.Request) (*invoke.Response, error) {
	node := overview.NodeFromContext(ctx)
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[node]++
	m.mu.Unlock()
	if m.hook != nil {
		if err := m.hook(node); err != nil {
			return nil, err
		}
	}
	return &invoke.Response{Text: genericReply, Tier: "stub", Attempts: 1}, nil
}

func (m *stubModel) count(node string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[node]
}

type env struct {
	dir    string
	config string
	vars   map[string]string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	cfg := "checkpoint:\n  backend: file\n  path: " + filepath.Join(dir, "checkpoints") + "\n" +
		"output_dir: " + filepath.Join(dir, "out") + "\n" +
		"log:\n  level: error\n"
	path := filepath.Join(dir, "devforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return &env{dir: dir, config: path, vars: map[string]string{"GOOGLE_API_KEY": "test-key"}}
}

func (e *env) execute(t *testing.T, ctx context.Context, model pipeline.Model, args ...string) (string, error) {
	t.Helper()
	opts := &RootOptions{
		lookup: func(key string) (string, bool) {
			v, ok := e.vars[key]
			return v, ok
		},
		envFiles: []string{},
		newModel: func(*config.Config, observability.Provider) (pipeline.Model, error) {
			return model, nil
		},
	}
	cmd := newRootCommand(opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	if ctx == nil {
		ctx = context.Background()
	}
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "devforge", cmd.Use)

	for _, path := range [][]string{
		{"run"}, {"resume"}, {"graph"},
		{"checkpoints", "list"}, {"checkpoints", "show"}, {"checkpoints", "delete"},
	} {
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	for _, name := range []string{"backend", "log-level"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}

	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)
	for _, name := range []string{"requirements", "requirements-file", "run-id", "interactive", "max-parallel", "output"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), name)
	}
}

func TestRun_CompletesAndWritesArtifacts(t *testing.T) {
	e := newEnv(t)
	model := &stubModel{}

	out, err := e.execute(t, nil, model, "run", "--requirements", "a demo service", "--run-id", "run-1")
	require.NoError(t, err)
	assert.Equal(t, ExitSuccess, GetExitCode(err))
	assert.Contains(t, out, "run run-1")
	assert.Contains(t, out, "✓ analyze")
	assert.Contains(t, out, "mobile: skipped")
	assert.NotContains(t, out, "mobile: generated")
	assert.Contains(t, out, "diagnose: skipped, no blocking issues")
	assert.Contains(t, out, "dependencies: skipped, no dependency manifests")
	assert.Zero(t, model.count(pipeline.NodeRefactor))
	assert.Equal(t, 1, model.count(pipeline.NodeOptimize))
	assert.Contains(t, out, "completed")

	content, err := os.ReadFile(filepath.Join(e.dir, "out", "demo", "frontend", "main.go"))
	require.NoError(t, err)
	assert.Equal(t, "package main", string(content))
	assert.FileExists(t, filepath.Join(e.dir, "out", "demo", pipeline.ReportFile))

	out, err = e.execute(t, nil, model, "checkpoints", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "run-1")

	out, err = e.execute(t, nil, model, "checkpoints", "list", "run-1")
	require.NoError(t, err)
	assert.Contains(t, out, "analyze")
	assert.Contains(t, out, "finalize")

	out, err = e.execute(t, nil, model, "checkpoints", "show", "run-1", "approve")
	require.NoError(t, err)
	assert.Contains(t, out, `"run_id": "run-1"`)
	assert.Contains(t, out, `"approval": "approved"`)

	_, err = e.execute(t, nil, model, "checkpoints", "delete", "run-1")
	require.NoError(t, err)
	_, err = e.execute(t, nil, model, "checkpoints", "list", "run-1")
	require.Error(t, err)
}

func TestRun_InputErrors(t *testing.T) {
	e := newEnv(t)

	_, err := e.execute(t, nil, &stubModel{}, "run")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "no requirements")

	_, err = e.execute(t, nil, &stubModel{}, "run", "-f", filepath.Join(e.dir, "missing.md"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read requirements")

	e.vars = map[string]string{}
	_, err = e.execute(t, nil, &stubModel{}, "run", "-r", "demo")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "no API key")
}

func TestRun_BackendFlagOverridesConfig(t *testing.T) {
	e := newEnv(t)
	_, err := e.execute(t, nil, &stubModel{}, "--backend", "memory", "run", "-r", "demo", "--run-id", "mem-run", "--no-artifacts")
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(e.dir, "checkpoints", "mem-run"))
	assert.NoDirExists(t, filepath.Join(e.dir, "out"))

	_, err = e.execute(t, nil, &stubModel{}, "--backend", "tape", "run", "-r", "demo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tape")
}

func TestRun_FailureExitCode(t *testing.T) {
	e := newEnv(t)
	model := &stubModel{hook: func(node string) error {
		if node == pipeline.NodeAnalyze {
			return &invoke.Error{Kind: invoke.KindUnauthorized, Tier: "stub", Attempts: 1, Err: errors.New("bad key")}
		}
		return nil
	}}

	out, err := e.execute(t, nil, model, "run", "-r", "demo", "--run-id", "bad-run")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	var runErr *graph.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "bad-run", runErr.RunID)
	assert.Equal(t, graph.RunFailed, runErr.Status)
	assert.Contains(t, out, "✗ analyze")
	assert.Contains(t, out, "failed")
	assert.NoDirExists(t, filepath.Join(e.dir, "out"))
}

func TestRun_CancelThenResume(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := &stubModel{hook: func(node string) error {
		if node == pipeline.NodeDeploy {
			cancel()
		}
		return nil
	}}
	out, err := e.execute(t, ctx, first, "run", "-r", "demo", "--run-id", "run-c")
	require.Error(t, err)
	assert.Equal(t, ExitCancelled, GetExitCode(err))
	assert.Contains(t, out, "cancelled")
	assert.Contains(t, out, "devforge resume run-c")
	assert.Zero(t, first.count(pipeline.NodeTest), "no step may start after cancellation")

	second := &stubModel{}
	out, err = e.execute(t, nil, second, "resume", "run-c")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
	assert.Zero(t, second.count(pipeline.NodeAnalyze), "committed steps are not re-run")
	assert.Zero(t, second.count(pipeline.NodeDeploy), "committed steps are not re-run")
	assert.Equal(t, 1, second.count(pipeline.NodeTest))
}

func TestResume_UnknownRun(t *testing.T) {
	e := newEnv(t)
	_, err := e.execute(t, nil, &stubModel{}, "resume", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "no checkpoints for run nope")
}

func TestCheckpointsCommands_NoKeyNeeded(t *testing.T) {
	e := newEnv(t)
	e.vars = map[string]string{}

	out, err := e.execute(t, nil, nil, "checkpoints", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no runs")

	_, err = e.execute(t, nil, nil, "checkpoints", "show", "r", "n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no checkpoint for r/n")
}

func TestGraphCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"graph"})
	require.NoError(t, cmd.Execute())

	text := out.String()
	assert.Contains(t, text, "* analyze")
	assert.Contains(t, text, "on failure")
	assert.Contains(t, text, "END")
	assert.Contains(t, text, pipeline.NodeFinalize)
}

func TestPromptApprover(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  pipeline.Decision
	}{
		{"default yes", "\n", pipeline.Approved},
		{"explicit no", "no\n", pipeline.Cancelled},
		{"reprompts on garbage", "maybe\ny\n", pipeline.Approved},
		{"end of input", "", pipeline.Pending},
		{"answer without newline", "n", pipeline.Cancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			approve := PromptApprover(strings.NewReader(tt.input), &out)
			got, err := approve(context.Background(), map[string]any{"project_name": "demo"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "demo")
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCancelled, GetExitCode(WrapExitError(ExitCancelled, "run cancelled", context.Canceled)))

	err := WrapExitError(ExitFailure, "load configuration", config.ErrInvalid)
	assert.ErrorIs(t, err, config.ErrInvalid)
	assert.Equal(t, "load configuration: invalid configuration", err.Error())
}
