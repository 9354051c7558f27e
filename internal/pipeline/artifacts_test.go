package pipeline

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/leofalp/devforge/core/state"
)

func TestWriteArtifacts(testCase *testing.T) {
	dir := testCase.TempDir()
	values := state.Values{
		FieldProjectName:   "todo-app",
		FieldGeneratedCode: map[string]any{"backend/server.js": "require('express')", "frontend/src/App.jsx": "export {}"},
		FieldTests:         map[string]any{"backend/server.test.js": "test()"},
		FieldDeployment:    map[string]any{"files": map[string]any{"Dockerfile": "FROM node:20"}},
		FieldSummary:       "done",

		FieldIntegrationTests: map[string]any{"tests/integration/api.test.js": "test('api')"},
		FieldDependencyReport: map[string]any{"status": "unchanged"},
	}

	out, err := WriteArtifacts(dir, values)
	if err != nil {
		testCase.Fatalf("WriteArtifacts() error = %v", err)
	}
	if out.Dir != filepath.Join(dir, "todo-app") {
		testCase.Errorf("Dir = %q", out.Dir)
	}
	if len(out.Files) != 6 {
		testCase.Errorf("Files = %v, want 5 files and the report", out.Files)
	}
	if _, err := os.Stat(filepath.Join(out.Dir, "tests", "integration", "api.test.js")); err != nil {
		testCase.Errorf("integration test not written: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(out.Dir, "backend", "server.js"))
	if err != nil || string(raw) != "require('express')" {
		testCase.Errorf("server.js = %q, %v", raw, err)
	}

	raw, err = os.ReadFile(filepath.Join(out.Dir, ReportFile))
	if err != nil {
		testCase.Fatalf("read report: %v", err)
	}
	var report map[string]any
	if err := json.Unmarshal(raw, &report); err != nil {
		testCase.Fatalf("report is not JSON: %v", err)
	}
	if report[FieldSummary] != "done" {
		testCase.Errorf("report summary = %v", report[FieldSummary])
	}
	if dep, _ := report[FieldDependencyReport].(map[string]any); dep["status"] != "unchanged" {
		testCase.Errorf("report dependency_report = %v", report[FieldDependencyReport])
	}
}

func TestWriteArtifacts_RejectsEscapingPaths(testCase *testing.T) {
	dir := testCase.TempDir()
	values := state.Values{
		FieldProjectName:   "../outside",
		FieldGeneratedCode: map[string]any{"../../etc/passwd": "x", "ok.txt": "fine"},
	}

	out, err := WriteArtifacts(dir, values)
	if !errors.Is(err, ErrUnsafePath) {
		testCase.Fatalf("err = %v, want ErrUnsafePath", err)
	}
	if out.Dir != filepath.Join(dir, "project") {
		testCase.Errorf("Dir = %q, want the default project directory", out.Dir)
	}
	if _, err := os.Stat(filepath.Join(out.Dir, "ok.txt")); err != nil {
		testCase.Errorf("safe file not written: %v", err)
	}
}
