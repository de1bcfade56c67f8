package validation

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/rendis/cmdkit/internal/expressions"
	"github.com/rendis/cmdkit/pkg/schema"
)

// Warning codes reported by WorkflowValidator. Warnings never block a save or run.
const (
	WarnUnresolvedVariable = "UNRESOLVED_VARIABLE"
	WarnUnusedVariable     = "UNUSED_VARIABLE"
	WarnIgnoredPolicy      = "IGNORED_POLICY"
)

// WorkflowValidator runs the two-stage validation pipeline:
// 1. Structural (JSON Schema over the export form)
// 2. Semantic (blank commands, variable names and references)
type WorkflowValidator struct {
	jsonSchema *JSONSchemaValidator
}

// NewWorkflowValidator creates a WorkflowValidator.
func NewWorkflowValidator() (*WorkflowValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &WorkflowValidator{jsonSchema: jsv}, nil
}

// Validate runs the pipeline and returns an aggregated result.
// Structural errors short-circuit the semantic stage.
func (wv *WorkflowValidator) Validate(wf *schema.Workflow) *schema.ValidationResult {
	if wf == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "workflow is nil")
		return r
	}

	result := validateStructural(wv.jsonSchema, wf)
	if !result.Valid() {
		return result
	}

	result.Merge(validateSemantic(wf))
	return result
}

var _ Validator = (*WorkflowValidator)(nil)

// ValidateWorkflow is Validate as an error.
func (wv *WorkflowValidator) ValidateWorkflow(wf *schema.Workflow) error {
	return wv.Validate(wf).ToError()
}

// ValidateInput delegates to the underlying JSONSchemaValidator.
func (wv *WorkflowValidator) ValidateInput(input map[string]any, inputSchema []byte) error {
	return wv.jsonSchema.ValidateInput(input, inputSchema)
}

// Schema exposes the underlying JSONSchemaValidator for import checks.
func (wv *WorkflowValidator) Schema() *JSONSchemaValidator {
	return wv.jsonSchema
}

func validateStructural(v *JSONSchemaValidator, wf *schema.Workflow) *schema.ValidationResult {
	return v.CheckExport(schema.NewWorkflowExport(wf, time.Now()))
}

func validateSemantic(wf *schema.Workflow) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	referenced := make(map[string]struct{})
	for i, cmd := range wf.Commands {
		path := fmt.Sprintf("/commands/%d", i)
		if strings.TrimSpace(cmd) == "" {
			result.AddError(path, schema.ErrCodeValidation, "command is blank")
			continue
		}
		for _, name := range expressions.Used(cmd, wf.Variables) {
			referenced[name] = struct{}{}
		}
		if missing := expressions.Unresolved(cmd, wf.Variables); len(missing) > 0 {
			result.AddWarning(path, WarnUnresolvedVariable,
				fmt.Sprintf("no default for %s; pass it with --vars", strings.Join(missing, ", ")))
		}
	}

	for _, name := range slices.Sorted(maps.Keys(wf.Variables)) {
		if _, ok := referenced[name]; !ok {
			result.AddWarning("/variables/"+name, WarnUnusedVariable,
				fmt.Sprintf("variable %q is not referenced by any command", name))
		}
	}

	if wf.Parallel && wf.ContinueOnError {
		result.AddWarning("/continueOnError", WarnIgnoredPolicy,
			"continueOnError has no effect on parallel workflows")
	}

	return result
}
