package validation

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/cmdkit/pkg/schema"
)

// CodeSchemaViolation marks issues raised by JSON Schema validation.
const CodeSchemaViolation = "SCHEMA_VIOLATION"

const exportSchemaURL = "https://cmdkit.dev/schemas/workflow-export.json"

//go:embed schemas/workflow-export.json
var exportSchemaJSON []byte

// JSONSchemaValidator checks export documents and skill parameters against
// Draft 2020-12 schemas. Safe for concurrent use.
type JSONSchemaValidator struct {
	export *jsonschema.Schema

	mu     sync.RWMutex
	params map[string]*jsonschema.Schema
}

func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	export, err := compileSchema(exportSchemaURL, exportSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("export schema: %w", err)
	}
	return &JSONSchemaValidator{
		export: export,
		params: make(map[string]*jsonschema.Schema),
	}, nil
}

// CheckExport validates a decoded export document, from JSON, YAML or a
// *schema.WorkflowExport, and reports each violation at its JSON pointer.
func (v *JSONSchemaValidator) CheckExport(doc any) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if doc == nil {
		result.AddError("/", schema.ErrCodeValidation, "export document is empty")
		return result
	}
	value, err := toJSONValue(doc)
	if err != nil {
		result.AddError("/", schema.ErrCodeValidation, "export document is not serializable: "+err.Error())
		return result
	}
	addViolations(result, v.export.Validate(value))
	return result
}

func (v *JSONSchemaValidator) ValidateExport(doc any) error {
	return v.CheckExport(doc).ToError()
}

// ValidateExportJSON validates raw JSON as an export document.
func (v *JSONSchemaValidator) ValidateExportJSON(data []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "export document is not valid JSON").WithCause(err)
	}
	result := &schema.ValidationResult{}
	addViolations(result, v.export.Validate(doc))
	return result.ToError()
}

// ValidateInput checks skill parameters against paramSchema. An empty
// schema accepts anything; compiled schemas are cached by their text.
func (v *JSONSchemaValidator) ValidateInput(input map[string]any, paramSchema []byte) error {
	if input == nil {
		return schema.NewError(schema.ErrCodeValidation, "input is nil")
	}
	if len(paramSchema) == 0 {
		return nil
	}

	compiled, err := v.paramSchema(paramSchema)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid input schema").WithCause(err)
	}
	value, err := toJSONValue(input)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "input is not serializable").WithCause(err)
	}

	result := &schema.ValidationResult{}
	addViolations(result, compiled.Validate(value))
	return result.ToError()
}

func (v *JSONSchemaValidator) paramSchema(raw []byte) (*jsonschema.Schema, error) {
	key := string(raw)

	v.mu.RLock()
	compiled, ok := v.params[key]
	v.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if compiled, ok := v.params[key]; ok {
		return compiled, nil
	}
	compiled, err := compileSchema(fmt.Sprintf("cmdkit://params/%d", len(v.params)), raw)
	if err != nil {
		return nil, err
	}
	v.params[key] = compiled
	return compiled, nil
}

// compileSchema uses a fresh compiler per schema so resource URLs never
// collide. Formats such as date-time are asserted.
func compileSchema(url string, raw []byte) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(url)
}

// toJSONValue re-decodes v so numbers are json.Number, as the validator
// requires.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}

// addViolations records every leaf cause of err as an error issue.
func addViolations(result *schema.ValidationResult, err error) {
	if err == nil {
		return
	}
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		result.AddError("/", CodeSchemaViolation, err.Error())
		return
	}
	if len(verr.Causes) > 0 {
		for _, cause := range verr.Causes {
			addViolations(result, cause)
		}
		return
	}
	result.AddError("/"+strings.Join(verr.InstanceLocation, "/"), CodeSchemaViolation, leafMessage(verr))
}

// leafMessage drops the "jsonschema validation failed with ..." preamble
// the library puts before the reason.
func leafMessage(verr *jsonschema.ValidationError) string {
	msg := verr.Error()
	if _, reason, ok := strings.Cut(msg, "\n"); ok {
		msg = reason
	}
	msg = strings.TrimSpace(msg)
	if _, after, ok := strings.Cut(msg, ": "); ok && strings.HasPrefix(msg, "- at ") {
		msg = after
	}
	return msg
}
