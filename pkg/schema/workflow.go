package schema

import "time"

// ExportVersion is the version stamped on exported workflow documents.
const ExportVersion = "1.0"

// Workflow is a named, ordered list of shell command templates plus the
// execution mode and error policy used to run them.
type Workflow struct {
	ID              string            `json:"id,omitempty" yaml:"-"`
	Name            string            `json:"name" yaml:"name"`
	Description     string            `json:"description,omitempty" yaml:"description,omitempty"`
	Commands        []string          `json:"commands" yaml:"commands"`
	Parallel        bool              `json:"parallel" yaml:"parallel"`
	ContinueOnError bool              `json:"continueOnError" yaml:"continueOnError"`
	Variables       map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`
	ExecutionCount  int64             `json:"executionCount" yaml:"-"`
	LastExecuted    *time.Time        `json:"lastExecuted,omitempty" yaml:"-"`
	CreatedAt       time.Time         `json:"createdAt" yaml:"-"`
	UpdatedAt       time.Time         `json:"updatedAt" yaml:"-"`
}

// Clone returns a deep copy of the workflow definition.
func (w *Workflow) Clone() *Workflow {
	cp := *w
	cp.Commands = append([]string(nil), w.Commands...)
	if w.Variables != nil {
		cp.Variables = make(map[string]string, len(w.Variables))
		for k, v := range w.Variables {
			cp.Variables[k] = v
		}
	}
	if w.LastExecuted != nil {
		t := *w.LastExecuted
		cp.LastExecuted = &t
	}
	return &cp
}

// WorkflowExport is the portable document produced by `workflow export`
// and consumed by `workflow import`.
type WorkflowExport struct {
	Name            string            `json:"name" yaml:"name"`
	Description     string            `json:"description" yaml:"description"`
	Commands        []string          `json:"commands" yaml:"commands"`
	Parallel        bool              `json:"parallel" yaml:"parallel"`
	ContinueOnError bool              `json:"continueOnError" yaml:"continueOnError"`
	Variables       map[string]string `json:"variables" yaml:"variables"`
	Version         string            `json:"version" yaml:"version"`
	Exported        string            `json:"exported" yaml:"exported"`
}

// NewWorkflowExport builds an export document stamped with the given time.
func NewWorkflowExport(wf *Workflow, at time.Time) *WorkflowExport {
	vars := wf.Variables
	if vars == nil {
		vars = map[string]string{}
	}
	return &WorkflowExport{
		Name:            wf.Name,
		Description:     wf.Description,
		Commands:        append([]string(nil), wf.Commands...),
		Parallel:        wf.Parallel,
		ContinueOnError: wf.ContinueOnError,
		Variables:       vars,
		Version:         ExportVersion,
		Exported:        at.UTC().Format(time.RFC3339),
	}
}

// Workflow converts the export document back into a definition.
func (e *WorkflowExport) Workflow() *Workflow {
	wf := &Workflow{
		Name:            e.Name,
		Description:     e.Description,
		Commands:        append([]string(nil), e.Commands...),
		Parallel:        e.Parallel,
		ContinueOnError: e.ContinueOnError,
	}
	if len(e.Variables) > 0 {
		wf.Variables = make(map[string]string, len(e.Variables))
		for k, v := range e.Variables {
			wf.Variables[k] = v
		}
	}
	return wf
}
