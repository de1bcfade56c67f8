package schema

import (
	"cmp"
	"fmt"
	"slices"
)

// ValidationSeverity separates blocking errors from advisory warnings.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue is one problem found in a workflow definition. Path is a
// JSON pointer into the export document, e.g. /commands/2.
type ValidationIssue struct {
	Path     string             `json:"path"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

func (i ValidationIssue) String() string {
	if i.Path == "" || i.Path == "/" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// ValidationResult collects the issues of a structural and a semantic pass.
// Only errors block a save; warnings are reported alongside a stored workflow.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

func (r *ValidationResult) AddError(path, code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{Path: path, Code: code, Message: message, Severity: SeverityError})
}

func (r *ValidationResult) AddWarning(path, code, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{Path: path, Code: code, Message: message, Severity: SeverityWarning})
}

// Merge appends other's issues. A nil other is a no-op.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// HasWarning reports whether any warning carries code.
func (r *ValidationResult) HasWarning(code string) bool {
	return slices.ContainsFunc(r.Warnings, func(i ValidationIssue) bool { return i.Code == code })
}

// Issues returns errors before warnings, each group ordered by path.
func (r *ValidationResult) Issues() []ValidationIssue {
	byPath := func(a, b ValidationIssue) int { return cmp.Compare(a.Path, b.Path) }
	errs := slices.Clone(r.Errors)
	warns := slices.Clone(r.Warnings)
	slices.SortStableFunc(errs, byPath)
	slices.SortStableFunc(warns, byPath)
	return append(errs, warns...)
}

// ToError converts an invalid result to a VALIDATION_ERROR carrying every
// issue in its details. A valid result yields nil even with warnings.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}

	msg := r.Errors[0].String()
	if len(r.Errors) > 1 {
		msg = fmt.Sprintf("validation failed with %d errors", len(r.Errors))
	}

	return NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{
			"error_count":   len(r.Errors),
			"warning_count": len(r.Warnings),
			"errors":        r.Errors,
			"warnings":      r.Warnings,
		})
}
