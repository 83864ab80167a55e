package forms

import (
	"regexp"

	"github.com/rendis/bpmnforms/pkg/schema"
)

type replacement struct {
	re   *regexp.Regexp
	with string
}

// replacer applies every placeholder replacement to one string.
type replacer []replacement

func newReplacer(ctx Context, summary, refsHTML string) replacer {
	return replacer{
		{reServiceName, ctx.ServiceName},
		{reStepName, ctx.StepName},
		{reStepDescription, ctx.StepDescription},
		{reNextTasks, summary},
		{reReferences, refsHTML},
		{reChooser, ""},
	}
}

func (r replacer) apply(s string) string {
	if s == "" || !ContainsPlaceholder(s) {
		return s
	}
	for _, rep := range r {
		s = replaceLiteral(rep.re, s, rep.with)
	}
	return s
}

// substitute rewrites every string field of the component tree in place.
// Callers own the tree.
func (r replacer) substitute(components []*schema.Component) {
	for _, c := range components {
		if c == nil {
			continue
		}
		c.ID = r.apply(c.ID)
		c.Key = r.apply(c.Key)
		c.Label = r.apply(c.Label)
		c.Text = r.apply(c.Text)
		c.Description = r.apply(c.Description)
		for i := range c.Values {
			c.Values[i].Label = r.apply(c.Values[i].Label)
			c.Values[i].Value = r.apply(c.Values[i].Value)
		}
		if c.Conditional != nil {
			c.Conditional.Hide = r.apply(c.Conditional.Hide)
		}
		r.substituteMap(c.Validate)
		r.substituteMap(c.Extra)
		r.substitute(c.Components)
	}
}

func (r replacer) substituteMap(m map[string]any) {
	for k, v := range m {
		m[k] = r.substituteValue(v)
	}
}

func (r replacer) substituteValue(v any) any {
	switch val := v.(type) {
	case string:
		return r.apply(val)
	case map[string]any:
		r.substituteMap(val)
		return val
	case []any:
		for i, item := range val {
			val[i] = r.substituteValue(item)
		}
		return val
	default:
		return v
	}
}
