package pipeline

import (
	"github.com/leofalp/devforge/core/state"
)

// State fields.
const (
	FieldRequirements     = "requirements"
	FieldProjectName      = "project_name"
	FieldAnalysis         = "analysis"
	FieldApproval         = "approval"
	FieldPlan             = "plan"
	FieldGeneratedCode    = "generated_code"
	FieldValidation       = "validation"
	FieldDeployment       = "deployment"
	FieldTests            = "tests"
	FieldIntegrationTests = "integration_tests"
	FieldPerformanceTests = "performance_tests"
	FieldSecurityReport   = "security_report"
	FieldErrorAnalysis    = "error_analysis"
	FieldNeedsFixes       = "needs_fixes"
	FieldDependencyReport = "dependency_report"
	FieldSummary          = "summary"
	FieldLogs             = "logs"
	FieldErrors           = "errors"
)

// Decision is the outcome of the approval step.
type Decision string

const (
	Approved  Decision = "approved"
	Cancelled Decision = "cancelled"
	Pending   Decision = "pending"
)

// Schema returns the state schema of the workflow.
func Schema() (*state.Schema, error) {
	return state.NewSchema(
		state.Field{Name: FieldRequirements, Type: state.String, Description: "natural-language project description"},
		state.Field{Name: FieldProjectName, Type: state.String, Default: "project"},
		state.Field{Name: FieldAnalysis, Type: state.Map},
		state.Field{
			Name:    FieldApproval,
			Type:    state.String,
			Enum:    []any{string(Approved), string(Cancelled), string(Pending)},
			Default: string(Pending),
		},
		state.Field{Name: FieldPlan, Type: state.Map},
		state.Field{Name: FieldGeneratedCode, Type: state.Map, Policy: state.ShallowMerge, Description: "relative path -> file content"},
		state.Field{Name: FieldValidation, Type: state.Map},
		state.Field{Name: FieldDeployment, Type: state.Map},
		state.Field{Name: FieldTests, Type: state.Map, Policy: state.ShallowMerge, Description: "relative path -> test file content"},
		state.Field{Name: FieldIntegrationTests, Type: state.Map, Policy: state.ShallowMerge},
		state.Field{Name: FieldPerformanceTests, Type: state.Map, Policy: state.ShallowMerge, Description: "load test scripts and benchmark configuration"},
		state.Field{Name: FieldSecurityReport, Type: state.Map},
		state.Field{Name: FieldErrorAnalysis, Type: state.Map, Description: "diagnosis of blocking issues and suggested fixes"},
		state.Field{Name: FieldNeedsFixes, Type: state.Bool, Default: false},
		state.Field{Name: FieldDependencyReport, Type: state.Map},
		state.Field{Name: FieldSummary, Type: state.String},
		state.Field{Name: FieldLogs, Type: state.List, Policy: state.Append},
		state.Field{Name: FieldErrors, Type: state.List, Policy: state.Append},
	)
}

// InitialState returns the input of a new run.
func InitialState(requirements string) state.Values {
	return state.Values{FieldRequirements: requirements}
}
