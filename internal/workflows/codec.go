package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rendis/cmdkit/internal/store"
	"github.com/rendis/cmdkit/pkg/schema"
)

// Format is an export document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, yaml or yml. Empty means json.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", schema.NewErrorf(schema.ErrCodeValidation, "unknown format %q; use json or yaml", s)
	}
}

// FormatFromPath picks the format from a file extension, defaulting to json.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Export renders the named workflow as a portable document.
func (s *Service) Export(ctx context.Context, name string, format Format) ([]byte, error) {
	wf, err := s.store.GetWorkflow(ctx, name)
	if err != nil {
		return nil, err
	}
	doc := schema.NewWorkflowExport(wf, s.now())

	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, schema.NewError(schema.ErrCodeExecution, "encode yaml export").WithCause(err)
		}
		if err := enc.Close(); err != nil {
			return nil, schema.NewError(schema.ErrCodeExecution, "encode yaml export").WithCause(err)
		}
		return buf.Bytes(), nil
	default:
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeExecution, "encode json export").WithCause(err)
		}
		return append(out, '\n'), nil
	}
}

// Import decodes an export document, validates it and stores the workflow.
// An existing workflow of the same name is a CONFLICT unless overwrite is
// set, in which case its definition is replaced and its counters kept.
func (s *Service) Import(ctx context.Context, data []byte, format Format, overwrite bool) (*schema.Workflow, error) {
	exp, err := s.decodeExport(data, format)
	if err != nil {
		return nil, err
	}
	wf := exp.Workflow()

	result := s.validator.Validate(wf)
	if err := result.ToError(); err != nil {
		return nil, err
	}

	existing, err := s.store.GetWorkflow(ctx, wf.Name)
	switch {
	case err == nil && !overwrite:
		return nil, schema.NewErrorf(schema.ErrCodeConflict,
			"workflow %q already exists; use --overwrite to replace it", wf.Name)
	case err == nil:
		vars := wf.Variables
		if vars == nil {
			vars = map[string]string{}
		}
		update := store.WorkflowUpdate{
			Description:     &wf.Description,
			Commands:        wf.Commands,
			Parallel:        &wf.Parallel,
			ContinueOnError: &wf.ContinueOnError,
			Variables:       vars,
		}
		if err := s.store.UpdateWorkflow(ctx, wf.Name, update); err != nil {
			return nil, err
		}
		s.logger.Info("workflow replaced from import", "workflow", wf.Name)
		return s.store.GetWorkflow(ctx, existing.Name)
	case !schema.IsCode(err, schema.ErrCodeNotFound):
		return nil, err
	}

	if err := s.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, err
	}
	s.logger.Info("workflow imported", "workflow", wf.Name)
	return wf, nil
}

func (s *Service) decodeExport(data []byte, format Format) (*schema.WorkflowExport, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "import document is empty")
	}
	jsv := s.validator.Schema()

	var exp schema.WorkflowExport
	switch format {
	case FormatYAML:
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "import document is not valid YAML").WithCause(err)
		}
		if err := jsv.ValidateExport(doc); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &exp); err != nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "decode yaml import").WithCause(err)
		}
	default:
		if err := jsv.ValidateExportJSON(data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &exp); err != nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "decode json import").WithCause(err)
		}
	}
	return &exp, nil
}
