package schema

import (
	"cmp"
	"fmt"
	"slices"
)

// ValidationSeverity separates blocking issues from advisory ones.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// Issue codes reported by bundle verification.
const (
	IssueFormSchema  = "FORM_SCHEMA"
	IssueFormBinding = "FORM_BINDING"
	IssueCoverage    = "FORM_COVERAGE"
	IssuePlaceholder = "UNRESOLVED_PLACEHOLDER"
	IssueDefaultEdge = "DEFAULT_EDGE"
	IssueInclusive   = "INCLUSIVE_ROUTING"
	IssueParallel    = "PARALLEL_ROUTING"
	IssueExpression  = "EXPRESSION_SYNTAX"
	IssueVariable    = "VARIABLE_AGREEMENT"
	IssueChecksum    = "CHECKSUM_MISMATCH"
)

// ValidationIssue is one problem found in a bundle. Path locates it, e.g.
// "forms[2].components[0]" or "graph.Flow_3".
type ValidationIssue struct {
	Path     string             `json:"path"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

// String renders the issue as "severity code path: message".
func (i ValidationIssue) String() string {
	return fmt.Sprintf("%-7s %-22s %s: %s", i.Severity, i.Code, i.Path, i.Message)
}

// ValidationResult collects the issues of one verification pass. Errors make
// a bundle invalid; warnings do not.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// Valid reports whether no error was recorded.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// AddError records an error at path.
func (r *ValidationResult) AddError(path, code, message string) {
	r.add(SeverityError, path, code, message)
}

// AddWarning records a warning at path.
func (r *ValidationResult) AddWarning(path, code, message string) {
	r.add(SeverityWarning, path, code, message)
}

func (r *ValidationResult) add(sev ValidationSeverity, path, code, message string) {
	issue := ValidationIssue{Path: path, Code: code, Message: message, Severity: sev}
	if sev == SeverityError {
		r.Errors = append(r.Errors, issue)
	} else {
		r.Warnings = append(r.Warnings, issue)
	}
}

// Merge appends the issues of other. A nil other is ignored.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// HasCode reports whether any error carries code.
func (r *ValidationResult) HasCode(code string) bool {
	return slices.ContainsFunc(r.Errors, func(i ValidationIssue) bool { return i.Code == code })
}

// Issues returns errors before warnings, each group ordered by path then
// code. The result does not alias r.
func (r *ValidationResult) Issues() []ValidationIssue {
	byLocation := func(a, b ValidationIssue) int {
		if c := cmp.Compare(a.Path, b.Path); c != 0 {
			return c
		}
		return cmp.Compare(a.Code, b.Code)
	}
	errs := slices.Clone(r.Errors)
	warns := slices.Clone(r.Warnings)
	slices.SortStableFunc(errs, byLocation)
	slices.SortStableFunc(warns, byLocation)
	return append(errs, warns...)
}

// Summary is a one-line verdict such as "invalid (2 errors, 1 warnings)".
func (r *ValidationResult) Summary() string {
	if r.Valid() {
		return fmt.Sprintf("valid (%d warnings)", len(r.Warnings))
	}
	return fmt.Sprintf("invalid (%d errors, %d warnings)", len(r.Errors), len(r.Warnings))
}

// ToError returns nil for a valid result, otherwise a VALIDATION_ERROR
// carrying every issue in its details.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}
	msg := r.Errors[0].Message
	if n := len(r.Errors); n > 1 {
		msg = fmt.Sprintf("verification failed with %d errors", n)
	}
	return NewError(ErrCodeValidation, msg).WithDetails(map[string]any{
		"error_count":   len(r.Errors),
		"warning_count": len(r.Warnings),
		"errors":        r.Errors,
		"warnings":      r.Warnings,
	})
}
