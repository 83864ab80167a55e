package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationResult_AddAndMerge(t *testing.T) {
	r := &ValidationResult{}
	assert.True(t, r.Valid())
	assert.NoError(t, r.ToError())

	r.AddWarning("graph.Flow_3", IssueDefaultEdge, "default flow has a condition")
	assert.True(t, r.Valid(), "warnings keep a result valid")

	other := &ValidationResult{}
	other.AddError("forms[1]", IssueFormBinding, "form id not bound")
	r.Merge(other)
	r.Merge(nil)

	assert.False(t, r.Valid())
	assert.True(t, r.HasCode(IssueFormBinding))
	assert.False(t, r.HasCode(IssueDefaultEdge), "HasCode only looks at errors")
	assert.Equal(t, SeverityError, r.Errors[0].Severity)
	assert.Equal(t, SeverityWarning, r.Warnings[0].Severity)
}

func TestValidationResult_Issues(t *testing.T) {
	r := &ValidationResult{}
	r.AddWarning("graph.Gateway_1", IssueInclusive, "w")
	r.AddError("forms[2]", IssuePlaceholder, "b")
	r.AddError("forms[0]", IssueFormSchema, "a")
	r.AddError("forms[0]", IssueChecksum, "c")

	var order []string
	for _, i := range r.Issues() {
		order = append(order, i.Path+"/"+i.Code)
	}
	assert.Equal(t, []string{
		"forms[0]/" + IssueChecksum,
		"forms[0]/" + IssueFormSchema,
		"forms[2]/" + IssuePlaceholder,
		"graph.Gateway_1/" + IssueInclusive,
	}, order)
	assert.Equal(t, "forms[2]", r.Errors[0].Path, "Issues does not reorder the result")
}

func TestValidationResult_Summary(t *testing.T) {
	r := &ValidationResult{}
	r.AddWarning("p", IssueParallel, "m")
	assert.Equal(t, "valid (1 warnings)", r.Summary())

	r.AddError("p", IssueVariable, "m")
	r.AddError("q", IssueVariable, "m")
	assert.Equal(t, "invalid (2 errors, 1 warnings)", r.Summary())
}

func TestValidationResult_ToError(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("forms[0]", IssueFormSchema, "missing components")

	err := r.ToError()
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeValidation))
	assert.Contains(t, err.Error(), "missing components")

	r.AddError("forms[1]", IssueFormSchema, "missing id")
	var e *Error
	require.True(t, errors.As(r.ToError(), &e))
	assert.Equal(t, "verification failed with 2 errors", e.Message)
	assert.Equal(t, 2, e.Details["error_count"])
}

func TestValidationIssue_String(t *testing.T) {
	i := ValidationIssue{Path: "graph.Flow_1", Code: IssueExpression, Message: "bad", Severity: SeverityError}
	assert.Equal(t, "error   EXPRESSION_SYNTAX      graph.Flow_1: bad", i.String())
}
