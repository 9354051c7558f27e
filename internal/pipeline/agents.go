package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/leofalp/devforge/core/invoke"
	"github.com/leofalp/devforge/core/parse"
	"github.com/leofalp/devforge/core/state"
	"github.com/leofalp/devforge/internal/utils"
	"github.com/leofalp/devforge/patterns/graph"
	"github.com/leofalp/devforge/providers/observability"
)

var ErrNoModel = errors.New("pipeline has no model")

// agent is a model-backed step: one prompt, one JSON object back.
type agent struct {
	name   string
	system string
	prompt func(in state.Values) string
	// apply turns the recovered object into the node's update.
	apply func(obj map[string]any, in state.Values) state.Values
	// output is the field that receives an empty value when the reply
	// carries no JSON.
	output string
	// skip, when set and true, short-circuits the node without a model call.
	// The returned update, which may be nil, is committed with a log entry
	// naming the reason.
	skip func(in state.Values) (reason string, update state.Values, ok bool)
}

func (p *Pipeline) modelNode(a agent) graph.Node {
	return graph.NodeFunc(func(ctx context.Context, in graph.NodeInput) (state.Values, error) {
		if a.skip != nil {
			if reason, update, ok := a.skip(in.State); ok {
				if update == nil {
					update = state.Values{}
				}
				update[FieldLogs] = a.name + ": skipped, " + reason
				return update, nil
			}
		}
		if p.model == nil {
			return nil, ErrNoModel
		}

		resp, err := p.model.Invoke(ctx, invoke.Request{
			System:      a.system,
			Prompt:      a.prompt(in.State),
			Temperature: p.temperature,
			MaxTokens:   p.maxTokens,
		})
		if err != nil {
			return nil, err
		}

		obj, ok := parse.Extract(resp.Text)
		if !ok {
			if observer := observability.ObserverFromContext(ctx); observer != nil {
				observer.Warn(ctx, "model reply contained no JSON object",
					observability.String(observability.AttrGraphNode, a.name),
					observability.String(observability.AttrInvokeTier, resp.Tier),
					observability.Int("reply_bytes", len(resp.Text)),
				)
			}
			return state.Values{
				a.output:  map[string]any{},
				FieldLogs: a.name + ": reply contained no JSON object, continuing with empty output",
			}, nil
		}

		update := a.apply(obj, in.State)
		if _, ok := update[FieldLogs]; !ok {
			update[FieldLogs] = fmt.Sprintf("%s: done (tier %s, %d attempt(s))", a.name, resp.Tier, resp.Attempts)
		}
		return update, nil
	})
}

func (p *Pipeline) approve(ctx context.Context, in graph.NodeInput) (state.Values, error) {
	decision, err := p.approver(ctx, mapField(in.State, FieldAnalysis))
	if err != nil {
		return nil, fmt.Errorf("approval: %w", err)
	}
	switch decision {
	case Approved, Cancelled, Pending:
	default:
		return nil, fmt.Errorf("approval: unknown decision %q", decision)
	}
	return state.Values{
		FieldApproval: string(decision),
		FieldLogs:     NodeApprove + ": " + string(decision),
	}, nil
}

func analyzeAgent() agent {
	return agent{
		name:   NodeAnalyze,
		system: analyzeSystem,
		output: FieldAnalysis,
		prompt: func(in state.Values) string {
			return "Project description:\n" + stringField(in, FieldRequirements)
		},
		apply: func(obj map[string]any, _ state.Values) state.Values {
			update := state.Values{FieldAnalysis: obj}
			if name := slug(stringOf(obj["project_name"])); name != "" {
				update[FieldProjectName] = name
			}
			return update
		},
	}
}

func planAgent() agent {
	return agent{
		name:   NodePlan,
		system: planSystem,
		output: FieldPlan,
		prompt: func(in state.Values) string {
			return section("Requirements", stringField(in, FieldRequirements)) +
				section("Analysis", mapField(in, FieldAnalysis))
		},
		apply: func(obj map[string]any, _ state.Values) state.Values {
			return state.Values{FieldPlan: obj}
		},
	}
}

func generatorAgent(component string) agent {
	a := agent{
		name:   component,
		system: fmt.Sprintf(generatorSystem, component),
		output: FieldGeneratedCode,
		prompt: func(in state.Values) string {
			return section("Analysis", mapField(in, FieldAnalysis)) +
				section("Plan", mapField(in, FieldPlan)) +
				"Generate the " + component + " part of the project.\n"
		},
		apply: func(obj map[string]any, _ state.Values) state.Values {
			code := prefixed(component, files(obj))
			return state.Values{
				FieldGeneratedCode: code,
				FieldLogs:          fmt.Sprintf("%s: generated %d file(s)", component, len(code)),
			}
		},
	}
	if component == NodeMobile {
		a.skip = func(in state.Values) (string, state.Values, bool) {
			if wantsMobile(mapField(in, FieldAnalysis)) {
				return "", nil, false
			}
			return "no mobile platform requested", nil, true
		}
	}
	return a
}

func (p *Pipeline) validateAgent() agent {
	return agent{
		name:   NodeValidate,
		system: validateSystem,
		output: FieldValidation,
		prompt: func(in state.Values) string {
			return section("Plan", mapField(in, FieldPlan)) +
				section("Generated files", codeDigest(mapField(in, FieldGeneratedCode), p.promptBudget))
		},
		apply: func(obj map[string]any, _ state.Values) state.Values {
			return state.Values{FieldValidation: obj}
		},
	}
}

func deployAgent() agent {
	return agent{
		name:   NodeDeploy,
		system: deploySystem,
		output: FieldDeployment,
		prompt: func(in state.Values) string {
			analysis := mapField(in, FieldAnalysis)
			return section("Deployment requirements", analysis["deployment"]) +
				section("Project files", slices.Sorted(maps.Keys(mapField(in, FieldGeneratedCode))))
		},
		apply: func(obj map[string]any, _ state.Values) state.Values {
			out := maps.Clone(obj)
			out["files"] = files(obj)
			return state.Values{FieldDeployment: out}
		},
	}
}

func (p *Pipeline) testAgent() agent {
	return agent{
		name:   NodeTest,
		system: testSystem,
		output: FieldTests,
		prompt: func(in state.Values) string {
			return section("Code under test", codeDigest(mapField(in, FieldGeneratedCode), p.promptBudget))
		},
		apply: func(obj map[string]any, _ state.Values) state.Values {
			tests := files(obj)
			return state.Values{
				FieldTests: tests,
				FieldLogs:  fmt.Sprintf("%s: generated %d test file(s)", NodeTest, len(tests)),
			}
		},
	}
}

func (p *Pipeline) integrationAgent() agent {
	return agent{
		name:   NodeIntegration,
		system: integrationSystem,
		output: FieldIntegrationTests,
		prompt: func(in state.Values) string {
			return section("API surface", mapField(in, FieldPlan)["api"]) +
				section("Code under test", codeDigest(mapField(in, FieldGeneratedCode), p.promptBudget))
		},
		apply: func(obj map[string]any, _ state.Values) state.Values {
			tests := prefixed("tests/integration", files(obj))
			return state.Values{
				FieldIntegrationTests: tests,
				FieldLogs:             fmt.Sprintf("%s: generated %d test file(s)", NodeIntegration, len(tests)),
			}
		},
		skip: skipWithoutCode,
	}
}

func (p *Pipeline) profileAgent() agent {
	return agent{
		name:   NodeProfile,
		system: profileSystem,
		output: FieldPerformanceTests,
		prompt: func(in state.Values) string {
			return section("Backend stack", mapOf(mapField(in, FieldAnalysis)["tech_stack"])["backend"]) +
				section("API surface", mapField(in, FieldPlan)["api"]) +
				section("Code to profile", codeDigest(mapField(in, FieldGeneratedCode), p.promptBudget))
		},
		apply: func(obj map[string]any, _ state.Values) state.Values {
			scripts := prefixed("tests/performance", files(obj))
			return state.Values{
				FieldPerformanceTests: scripts,
				FieldLogs:             fmt.Sprintf("%s: generated %d performance test file(s)", NodeProfile, len(scripts)),
			}
		},
		skip: skipWithoutCode,
	}
}

func (p *Pipeline) securityAgent() agent {
	return agent{
		name:   NodeSecurity,
		system: securitySystem,
		output: FieldSecurityReport,
		prompt: func(in state.Values) string {
			return section("Code to review", codeDigest(mapField(in, FieldGeneratedCode), p.promptBudget))
		},
		apply: func(obj map[string]any, _ state.Values) state.Values {
			return state.Values{
				FieldSecurityReport: obj,
				FieldLogs:           fmt.Sprintf("%s: %d finding(s), blocking: %t", NodeSecurity, len(listOf(obj["vulnerabilities"])), needsFixes(obj)),
			}
		},
	}
}

func (p *Pipeline) diagnoseAgent() agent {
	return agent{
		name:   NodeDiagnose,
		system: diagnoseSystem,
		output: FieldErrorAnalysis,
		prompt: func(in state.Values) string {
			return section("Validation report", mapField(in, FieldValidation)) +
				section("Security report", mapField(in, FieldSecurityReport)) +
				section("Current files", codeDigest(mapField(in, FieldGeneratedCode), p.promptBudget))
		},
		apply: func(obj map[string]any, _ state.Values) state.Values {
			fix := suggestsFixes(obj)
			return state.Values{
				FieldErrorAnalysis: obj,
				FieldNeedsFixes:    fix,
				FieldLogs:          fmt.Sprintf("%s: %d fix(es) suggested, refactor: %t", NodeDiagnose, len(listOf(obj["suggested_fixes"])), fix),
			}
		},
		skip: func(in state.Values) (string, state.Values, bool) {
			if needsFixes(mapField(in, FieldSecurityReport)) || blockingIssues(mapField(in, FieldValidation)) {
				return "", nil, false
			}
			return "no blocking issues", state.Values{
				FieldErrorAnalysis: map[string]any{"needs_fixes": false, "analysis": "no blocking issues", "suggested_fixes": []any{}},
				FieldNeedsFixes:    false,
			}, true
		},
	}
}

func (p *Pipeline) refactorAgent() agent {
	return agent{
		name:   NodeRefactor,
		system: refactorSystem,
		output: FieldGeneratedCode,
		prompt: func(in state.Values) string {
			analysis := mapField(in, FieldErrorAnalysis)
			return section("Diagnosis", analysis["analysis"]) +
				section("Suggested fixes", analysis["suggested_fixes"]) +
				section("Current files", codeDigest(mapField(in, FieldGeneratedCode), p.promptBudget))
		},
		apply: func(obj map[string]any, _ state.Values) state.Values {
			code := files(obj)
			return state.Values{
				FieldGeneratedCode: code,
				FieldLogs:          fmt.Sprintf("%s: rewrote %d file(s)", NodeRefactor, len(code)),
			}
		},
	}
}

func (p *Pipeline) optimizeAgent() agent {
	return agent{
		name:   NodeOptimize,
		system: optimizeSystem,
		output: FieldGeneratedCode,
		prompt: func(in state.Values) string {
			return section("Performance tests", slices.Sorted(maps.Keys(mapField(in, FieldPerformanceTests)))) +
				section("Current files", codeDigest(mapField(in, FieldGeneratedCode), p.promptBudget))
		},
		apply: func(obj map[string]any, _ state.Values) state.Values {
			code := files(obj)
			return state.Values{
				FieldGeneratedCode: code,
				FieldLogs:          fmt.Sprintf("%s: improved %d file(s)", NodeOptimize, len(code)),
			}
		},
	}
}

func (p *Pipeline) dependenciesAgent() agent {
	return agent{
		name:   NodeDependencies,
		system: dependenciesSystem,
		output: FieldDependencyReport,
		prompt: func(in state.Values) string {
			code := mapField(in, FieldGeneratedCode)
			return section("Dependency manifests", codeDigest(manifests(code), p.promptBudget)) +
				section("Project files", slices.Sorted(maps.Keys(code)))
		},
		apply: func(obj map[string]any, in state.Values) state.Values {
			// Only manifests that already exist may be rewritten.
			current := manifests(mapField(in, FieldGeneratedCode))
			updated := make(map[string]any)
			for path, content := range files(obj) {
				if _, ok := current[path]; ok {
					updated[path] = content
				}
			}
			report := maps.Clone(obj)
			delete(report, "files")
			return state.Values{
				FieldDependencyReport: report,
				FieldGeneratedCode:    updated,
				FieldLogs: fmt.Sprintf("%s: %s, %d unused, %d manifest(s) updated",
					NodeDependencies, cmp.Or(stringOf(obj["status"]), "reviewed"), len(listOf(obj["unused_dependencies"])), len(updated)),
			}
		},
		skip: func(in state.Values) (string, state.Values, bool) {
			if len(manifests(mapField(in, FieldGeneratedCode))) > 0 {
				return "", nil, false
			}
			return "no dependency manifests", state.Values{FieldDependencyReport: map[string]any{"status": "no_manifests"}}, true
		},
	}
}

func skipWithoutCode(in state.Values) (string, state.Values, bool) {
	if len(mapField(in, FieldGeneratedCode)) > 0 {
		return "", nil, false
	}
	return "no code generated", nil, true
}

func finalize(_ context.Context, in graph.NodeInput) (state.Values, error) {
	code := mapField(in.State, FieldGeneratedCode)
	tests := mapField(in.State, FieldTests)
	deployment := mapField(in.State, FieldDeployment)

	integration := mapField(in.State, FieldIntegrationTests)
	performance := mapField(in.State, FieldPerformanceTests)

	var b strings.Builder
	fmt.Fprintf(&b, "Project %s: %d source file(s), %d test file(s), %d deployment file(s).",
		stringField(in.State, FieldProjectName), len(code), len(tests)+len(integration)+len(performance), len(mapOf(deployment["files"])))
	if findings := listOf(mapField(in.State, FieldSecurityReport)["vulnerabilities"]); len(findings) > 0 {
		fmt.Fprintf(&b, " %d security finding(s) reviewed.", len(findings))
	}
	if issues := listOf(mapField(in.State, FieldValidation)["issues"]); len(issues) > 0 {
		fmt.Fprintf(&b, " %d validation issue(s) reported.", len(issues))
	}
	if fixes := listOf(mapField(in.State, FieldErrorAnalysis)["suggested_fixes"]); len(fixes) > 0 {
		fmt.Fprintf(&b, " %d fix(es) applied.", len(fixes))
	}
	if unused := listOf(mapField(in.State, FieldDependencyReport)["unused_dependencies"]); len(unused) > 0 {
		fmt.Fprintf(&b, " %d unused dependenc(ies) flagged.", len(unused))
	}
	if errs := listOf(in.State[FieldErrors]); len(errs) > 0 {
		fmt.Fprintf(&b, " %d step(s) failed and were degraded.", len(errs))
	}

	return state.Values{
		FieldSummary: b.String(),
		FieldLogs:    NodeFinalize + ": done",
	}, nil
}

// files reads the file map of a generator reply. Both {"files": {path:
// content}} and {"files": [{"path": ..., "content": ...}]} are accepted.
func files(obj map[string]any) map[string]any {
	out := make(map[string]any)
	switch v := obj["files"].(type) {
	case map[string]any:
		for path, content := range v {
			if path = cleanPath(path); path != "" {
				out[path] = text(content)
			}
		}
	case []any:
		for _, item := range v {
			entry := mapOf(item)
			if path := cleanPath(stringOf(entry["path"])); path != "" {
				out[path] = text(entry["content"])
			}
		}
	}
	return out
}

func prefixed(dir string, files map[string]any) map[string]any {
	out := make(map[string]any, len(files))
	for path, content := range files {
		if !strings.HasPrefix(path, dir+"/") {
			path = dir + "/" + path
		}
		out[path] = content
	}
	return out
}

func cleanPath(p string) string {
	return strings.TrimLeft(strings.TrimSpace(p), "/")
}

func wantsMobile(analysis map[string]any) bool {
	platforms := listOf(analysis["platforms"])
	if len(platforms) == 0 {
		_, ok := mapOf(analysis["tech_stack"])["mobile"]
		return ok
	}
	for _, p := range platforms {
		if strings.EqualFold(stringOf(p), "mobile") {
			return true
		}
	}
	return false
}

func needsFixes(report map[string]any) bool {
	if v, ok := report["needs_fixes"].(bool); ok {
		return v
	}
	for _, item := range listOf(report["vulnerabilities"]) {
		switch strings.ToLower(stringOf(mapOf(item)["severity"])) {
		case "critical", "high":
			return true
		}
	}
	return false
}

// blockingIssues reports whether a validation report rejects the code.
func blockingIssues(report map[string]any) bool {
	if valid, ok := report["valid"].(bool); ok && !valid {
		return true
	}
	for _, item := range listOf(report["issues"]) {
		switch strings.ToLower(stringOf(mapOf(item)["severity"])) {
		case "error", "critical", "high":
			return true
		}
	}
	return false
}

// suggestsFixes reports whether a diagnosis asks for a refactor: it must
// both say so and name at least one fix.
func suggestsFixes(analysis map[string]any) bool {
	fix, _ := analysis["needs_fixes"].(bool)
	return fix && len(listOf(analysis["suggested_fixes"])) > 0
}

// manifestNames are the dependency manifests the dependencies step reviews.
var manifestNames = []string{"package.json", "requirements.txt", "pyproject.toml", "go.mod", "Cargo.toml", "pom.xml", "build.gradle", "Gemfile"}

func manifests(code map[string]any) map[string]any {
	out := make(map[string]any)
	for path, content := range code {
		if slices.Contains(manifestNames, path[strings.LastIndex(path, "/")+1:]) {
			out[path] = content
		}
	}
	return out
}

// codeDigest renders files in path order until budget bytes are used.
func codeDigest(files map[string]any, budget int) string {
	if len(files) == 0 {
		return "(no files)"
	}
	paths := slices.Sorted(maps.Keys(files))
	var b strings.Builder
	for i, path := range paths {
		content := stringOf(files[path])
		if b.Len()+len(content) > budget && b.Len() > 0 {
			fmt.Fprintf(&b, "... %d more file(s) omitted\n", len(paths)-i)
			break
		}
		fmt.Fprintf(&b, "=== %s ===\n%s\n", path, content)
	}
	return b.String()
}

func section(title string, v any) string {
	body, ok := v.(string)
	if !ok {
		body = utils.JSONToString(v, true)
	}
	return title + ":\n" + body + "\n\n"
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func text(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return utils.JSONToString(v, true)
}

func stringField(values state.Values, name string) string { return stringOf(values[name]) }

func mapField(values state.Values, name string) map[string]any { return mapOf(values[name]) }

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func mapOf(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func listOf(v any) []any {
	l, _ := v.([]any)
	return l
}
