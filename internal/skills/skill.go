// Package skills holds named shell-out templates for external CLIs such as
// kubectl, docker and aws.
package skills

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/rendis/cmdkit/internal/expressions"
	"github.com/rendis/cmdkit/pkg/schema"
)

// Param is one named input of a skill template.
type Param struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Default     string `json:"default,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Skill is a command template run through the shell. Template placeholders
// use the ${name} form and are filled from Params.
type Skill struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Tool        string  `json:"tool"`
	Template    string  `json:"template"`
	Params      []Param `json:"params,omitempty"`
}

// Info is a summary of a registered skill for listing.
type Info struct {
	Name        string `json:"name"`
	Tool        string `json:"tool"`
	Description string `json:"description,omitempty"`
}

// InputSchema renders the JSON Schema every parameter map must satisfy.
func (s *Skill) InputSchema() []byte {
	props := make(map[string]any, len(s.Params))
	required := []string{}
	for _, p := range s.Params {
		prop := map[string]any{"type": "string"}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Required {
			prop["minLength"] = 1
			required = append(required, p.Name)
		}
		props[p.Name] = prop
	}
	doc := map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
	b, _ := json.Marshal(doc)
	return b
}

// withDefaults returns params overlaid on the declared defaults.
func (s *Skill) withDefaults(params map[string]string) map[string]string {
	defaults := make(map[string]string, len(s.Params))
	for _, p := range s.Params {
		if p.Default != "" {
			defaults[p.Name] = p.Default
		}
	}
	return expressions.MergeVars(defaults, params)
}

// Resolve fills the template with shell-quoted parameter values. Every
// placeholder must have a value.
func (s *Skill) Resolve(params map[string]string) (string, error) {
	quoted := make(map[string]string, len(params))
	for k, v := range s.withDefaults(params) {
		quoted[k] = ShellQuote(v)
	}
	cmd, err := expressions.SubstituteStrict(s.Template, quoted)
	if err != nil {
		var se *schema.Error
		if errors.As(err, &se) {
			se.Message = "skill " + s.Name + ": " + se.Message
			return "", se
		}
		return "", err
	}
	return cmd, nil
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_./:=@%+,-]+$`)

// ShellQuote returns v unchanged when it is a plain shell word and single-quoted otherwise.
func ShellQuote(v string) string {
	if shellSafe.MatchString(v) {
		return v
	}
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}
