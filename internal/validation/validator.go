package validation

import "github.com/rendis/cmdkit/pkg/schema"

// Validator checks workflow definitions before they are stored or run.
// Uses JSON Schema Draft 2020-12 for export documents and skill parameters.
type Validator interface {
	ValidateWorkflow(wf *schema.Workflow) error
	ValidateInput(input map[string]any, inputSchema []byte) error
}
