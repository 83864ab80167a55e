package forms

import "github.com/rendis/bpmnforms/pkg/schema"

// ExporterVersion is written into the exporter marker of generated forms.
const ExporterVersion = "1.0.0"

// Context carries the values substituted into one form.
type Context struct {
	FormID          string
	ServiceName     string
	StepName        string
	StepDescription string
	// NextTaskSummary is the human-readable list of next steps. It is
	// dropped when a chooser was injected.
	NextTaskSummary string
	References      []schema.Reference
}

// Result describes what Materialize did.
type Result struct {
	Form *schema.Form
	// ChooserInjected is true when chooser components replaced the slot.
	ChooserInjected bool
	// ChooserSlot is true when the template had a chooser slot.
	ChooserSlot bool
	// ReferencesSlot is true when the template had a references slot.
	ReferencesSlot bool
}

// Materialize clones template and resolves every placeholder for ctx. The
// chooser components are cloned before being spliced into the slot. The
// template is never modified.
func Materialize(template *schema.Form, ctx Context, chooser []*schema.Component) Result {
	form := template.Clone()
	if form == nil {
		form = &schema.Form{}
	}

	var res Result
	components, found := SpliceChooser(form.Components, schema.CloneComponents(chooser))
	res.ChooserSlot = found
	res.ChooserInjected = found && len(chooser) > 0

	refs := ReferencesHTML(ctx.References)
	components, res.ReferencesSlot = SpliceReferences(components, refs)
	form.Components = components

	summary := ctx.NextTaskSummary
	if res.ChooserInjected {
		summary = ""
	}
	newReplacer(ctx, summary, refs).substitute(form.Components)

	Stamp(form, ctx.FormID)
	res.Form = form
	return res
}

// Stamp sets the identity and platform markers of a generated form. Schema
// version and type keep template values when present.
func Stamp(form *schema.Form, formID string) {
	form.ID = formID
	if form.SchemaVersion == 0 {
		form.SchemaVersion = schema.FormSchemaVersion
	}
	if form.Type == "" {
		form.Type = schema.FormType
	}
	form.ExecutionPlatform = schema.FormExecutionPlatform
	if form.ExecutionPlatformVersion == "" {
		form.ExecutionPlatformVersion = schema.FormExecutionPlatformVersion
	}
	form.Exporter = &schema.Exporter{Name: schema.ExporterName, Version: ExporterVersion}
}

// Unresolved returns the string fields of form that still carry a reserved
// placeholder, as "<component id>.<field>" paths.
func Unresolved(form *schema.Form) []string {
	var out []string
	var walk func([]*schema.Component)
	walk = func(components []*schema.Component) {
		for _, c := range components {
			if c == nil {
				continue
			}
			fields := map[string]string{"id": c.ID, "key": c.Key, "label": c.Label, "text": c.Text, "description": c.Description}
			for _, name := range []string{"id", "key", "label", "text", "description"} {
				if ContainsPlaceholder(fields[name]) {
					out = append(out, c.ID+"."+name)
				}
			}
			for _, v := range c.Values {
				if ContainsPlaceholder(v.Label) || ContainsPlaceholder(v.Value) {
					out = append(out, c.ID+".values")
					break
				}
			}
			if c.Conditional != nil && ContainsPlaceholder(c.Conditional.Hide) {
				out = append(out, c.ID+".conditional")
			}
			if valueHasPlaceholder(c.Extra) {
				out = append(out, c.ID+".extra")
			}
			walk(c.Components)
		}
	}
	if form != nil {
		walk(form.Components)
	}
	return out
}

func valueHasPlaceholder(v any) bool {
	switch val := v.(type) {
	case string:
		return ContainsPlaceholder(val)
	case map[string]any:
		for _, item := range val {
			if valueHasPlaceholder(item) {
				return true
			}
		}
	case []any:
		for _, item := range val {
			if valueHasPlaceholder(item) {
				return true
			}
		}
	}
	return false
}
