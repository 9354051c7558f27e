package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/leofalp/devforge/core/state"
)

var ErrUnsafePath = errors.New("artifact path escapes the output directory")

// ReportFile is written next to the generated files.
const ReportFile = "devforge-report.json"

// Artifacts describes what WriteArtifacts produced.
type Artifacts struct {
	Dir   string
	Files []string
	Bytes int
}

// WriteArtifacts writes the generated code, every test group and the
// deployment files of a finished run under dir/<project_name>, plus a JSON
// report with the analysis, reviews and summary. Paths that would leave the project
// directory are rejected; the remaining files are still written.
func WriteArtifacts(dir string, values state.Values) (*Artifacts, error) {
	project := stringField(values, FieldProjectName)
	if project == "" || !filepath.IsLocal(project) {
		project = "project"
	}
	out := &Artifacts{Dir: filepath.Join(dir, project)}
	if err := os.MkdirAll(out.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	var errs []error
	write := func(rel string, content string) {
		if !filepath.IsLocal(rel) {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnsafePath, rel))
			return
		}
		path := filepath.Join(out.Dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			errs = append(errs, err)
			return
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			errs = append(errs, err)
			return
		}
		out.Files = append(out.Files, rel)
		out.Bytes += len(content)
	}

	groups := []map[string]any{
		mapField(values, FieldGeneratedCode),
		mapField(values, FieldTests),
		mapField(values, FieldIntegrationTests),
		mapField(values, FieldPerformanceTests),
		mapOf(mapField(values, FieldDeployment)["files"]),
	}
	for _, files := range groups {
		for _, rel := range slices.Sorted(maps.Keys(files)) {
			write(rel, text(files[rel]))
		}
	}

	report := map[string]any{
		FieldProjectName:      project,
		FieldAnalysis:         values[FieldAnalysis],
		FieldPlan:             values[FieldPlan],
		FieldValidation:       values[FieldValidation],
		FieldSecurityReport:   values[FieldSecurityReport],
		FieldErrorAnalysis:    values[FieldErrorAnalysis],
		FieldDependencyReport: values[FieldDependencyReport],
		FieldSummary:          values[FieldSummary],
		FieldLogs:             values[FieldLogs],
		FieldErrors:           values[FieldErrors],
	}
	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		errs = append(errs, fmt.Errorf("encode report: %w", err))
	} else {
		write(ReportFile, string(raw))
	}

	return out, errors.Join(errs...)
}
