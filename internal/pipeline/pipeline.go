package pipeline

import (
	"context"
	"fmt"

	"github.com/leofalp/devforge/core/invoke"
	"github.com/leofalp/devforge/patterns/graph"
)

// Node names.
const (
	NodeAnalyze      = "analyze"
	NodeApprove      = "approve"
	NodePlan         = "plan"
	NodeFrontend     = "frontend"
	NodeBackend      = "backend"
	NodeMobile       = "mobile"
	NodeValidate     = "validate"
	NodeDeploy       = "deploy"
	NodeTest         = "test"
	NodeIntegration  = "integration"
	NodeProfile      = "profile"
	NodeSecurity     = "security"
	NodeDiagnose     = "diagnose"
	NodeRefactor     = "refactor"
	NodeOptimize     = "optimize"
	NodeDependencies = "dependencies"
	NodeFinalize     = "finalize"
)

// DefaultPromptBudget caps the bytes of generated code quoted into review
// prompts.
const DefaultPromptBudget = 24 * 1024

// Model answers single-turn prompts. *invoke.Invoker implements it.
type Model interface {
	Invoke(ctx context.Context, req invoke.Request) (*invoke.Response, error)
}

// Approver decides whether the analysed project goes ahead. Returning an
// error fails the approval node and with it the run.
type Approver func(ctx context.Context, analysis map[string]any) (Decision, error)

// AutoApprove approves every project.
func AutoApprove(context.Context, map[string]any) (Decision, error) {
	return Approved, nil
}

// Pipeline holds the collaborators of the workflow nodes.
type Pipeline struct {
	model        Model
	approver     Approver
	temperature  *float64
	maxTokens    *int
	promptBudget int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithApprover replaces AutoApprove.
func WithApprover(approver Approver) Option {
	return func(p *Pipeline) {
		if approver != nil {
			p.approver = approver
		}
	}
}

// WithTemperature sets the sampling temperature of every model request.
func WithTemperature(t float64) Option {
	return func(p *Pipeline) {
		p.temperature = &t
	}
}

// WithMaxTokens caps the reply length of every model request.
func WithMaxTokens(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxTokens = &n
		}
	}
}

// WithPromptBudget sets how many bytes of generated code review prompts
// may quote.
func WithPromptBudget(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.promptBudget = n
		}
	}
}

// New returns a Pipeline whose model-backed nodes call model. model may be
// nil when the graph is only inspected.
func New(model Model, opts ...Option) *Pipeline {
	p := &Pipeline{
		model:        model,
		approver:     AutoApprove,
		promptBudget: DefaultPromptBudget,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Graph builds the workflow graph.
func (p *Pipeline) Graph() (*graph.Graph, error) {
	schema, err := Schema()
	if err != nil {
		return nil, fmt.Errorf("pipeline schema: %w", err)
	}

	b := graph.NewGraph(schema).
		AddNode(NodeAnalyze, p.modelNode(analyzeAgent()),
			graph.WithWrites(FieldAnalysis, FieldProjectName, FieldLogs),
			graph.WithDescription("extract structured requirements")).
		AddNode(NodeApprove, graph.NodeFunc(p.approve),
			graph.WithWrites(FieldApproval, FieldLogs),
			graph.WithDescription("approve or cancel the analysed project")).
		AddNode(NodePlan, p.modelNode(planAgent()),
			graph.WithWrites(FieldPlan, FieldLogs),
			graph.WithDescription("architecture and implementation plan"))

	for _, component := range []string{NodeFrontend, NodeBackend, NodeMobile} {
		b.AddNode(component, p.modelNode(generatorAgent(component)),
			graph.WithWrites(FieldGeneratedCode, FieldLogs),
			graph.WithDescription("generate "+component+" code"))
	}

	b.AddNode(NodeValidate, p.modelNode(p.validateAgent()),
		graph.WithWrites(FieldValidation, FieldLogs),
		graph.WithDescription("review generated code for completeness")).
		AddNode(NodeDeploy, p.modelNode(deployAgent()),
			graph.WithWrites(FieldDeployment, FieldLogs),
			graph.WithDescription("container and deployment configuration")).
		AddNode(NodeTest, p.modelNode(p.testAgent()),
			graph.WithWrites(FieldTests, FieldLogs),
			graph.WithDescription("generate unit tests")).
		AddNode(NodeIntegration, p.modelNode(p.integrationAgent()),
			graph.WithWrites(FieldIntegrationTests, FieldLogs),
			graph.WithDescription("generate API, component and end-to-end tests")).
		AddNode(NodeProfile, p.modelNode(p.profileAgent()),
			graph.WithWrites(FieldPerformanceTests, FieldLogs),
			graph.WithDescription("load tests and benchmark configuration")).
		AddNode(NodeSecurity, p.modelNode(p.securityAgent()),
			graph.WithWrites(FieldSecurityReport, FieldLogs),
			graph.WithDescription("security review")).
		AddNode(NodeDiagnose, p.modelNode(p.diagnoseAgent()),
			graph.WithWrites(FieldErrorAnalysis, FieldNeedsFixes, FieldLogs),
			graph.WithDescription("analyse blocking issues and suggest fixes")).
		AddNode(NodeRefactor, p.modelNode(p.refactorAgent()),
			graph.WithWrites(FieldGeneratedCode, FieldLogs),
			graph.WithDescription("apply the suggested fixes")).
		AddNode(NodeOptimize, p.modelNode(p.optimizeAgent()),
			graph.WithWrites(FieldGeneratedCode, FieldLogs),
			graph.WithDescription("performance improvements")).
		AddNode(NodeDependencies, p.modelNode(p.dependenciesAgent()),
			graph.WithWrites(FieldDependencyReport, FieldGeneratedCode, FieldLogs),
			graph.WithDescription("prune and update dependency manifests")).
		AddNode(NodeFinalize, graph.NodeFunc(finalize),
			graph.WithWrites(FieldSummary, FieldLogs),
			graph.WithDescription("summarize the run"))

	b.AddEdge(NodeAnalyze, NodeApprove).
		AddBranch(NodeApprove,
			graph.Route{To: NodePlan, When: graph.FieldEquals(FieldApproval, string(Approved))},
			graph.Route{To: graph.End, When: graph.FieldEquals(FieldApproval, string(Cancelled))},
			graph.Route{To: graph.End, When: graph.FieldEquals(FieldApproval, string(Pending))},
		)

	for _, component := range []string{NodeFrontend, NodeBackend, NodeMobile} {
		b.AddEdge(NodePlan, component).
			AddEdge(component, NodeValidate).
			AddFallbackEdge(component, NodeValidate)
	}

	// Fixes, when needed, are applied before optimization; both paths then
	// share the rest of the pipeline.
	return b.AddEdge(NodeValidate, NodeDeploy).
		AddEdge(NodeDeploy, NodeTest).
		AddEdge(NodeTest, NodeIntegration).
		AddEdge(NodeIntegration, NodeProfile).
		AddEdge(NodeProfile, NodeSecurity).
		AddEdge(NodeSecurity, NodeDiagnose).
		AddBranch(NodeDiagnose,
			graph.Route{To: NodeRefactor, When: graph.FieldEquals(FieldNeedsFixes, true)},
			graph.Route{To: NodeOptimize, When: graph.FieldEquals(FieldNeedsFixes, false)},
		).
		AddEdge(NodeRefactor, NodeOptimize).
		AddEdge(NodeOptimize, NodeDependencies).
		AddEdge(NodeDependencies, NodeFinalize).
		AddEdge(NodeFinalize, graph.End).
		SetEntry(NodeAnalyze).
		Build()
}
