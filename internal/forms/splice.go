package forms

import (
	"html"
	"net/url"
	"strings"

	"github.com/rendis/bpmnforms/pkg/schema"
)

// ReferencesGroupLabel labels a container promoted to hold references.
const ReferencesGroupLabel = "References"

// isChooserSlot reports whether c is marked as the chooser slot on its key,
// label, text or id.
func isChooserSlot(c *schema.Component) bool {
	for _, s := range []string{c.Key, c.Label, c.Text, c.ID} {
		if s != "" && reChooser.MatchString(s) {
			return true
		}
	}
	return false
}

// SpliceChooser returns a new component list in which the first chooser
// slot (pre-order) is replaced by replacement, or removed when replacement
// is empty. Containers on the path to the slot are copied; the input is not
// modified. found is false when no slot exists.
func SpliceChooser(components, replacement []*schema.Component) (out []*schema.Component, found bool) {
	return splice(components, func(c *schema.Component) ([]*schema.Component, bool) {
		if !isChooserSlot(c) {
			return nil, false
		}
		return replacement, true
	})
}

// isReferencesText reports whether c is a text component holding the
// references token.
func isReferencesText(c *schema.Component) bool {
	return c.Type == schema.ComponentText && reReferences.MatchString(c.Text)
}

// SpliceReferences returns a new component list in which the references
// slot is rewritten to html. The slot is a text component carrying the
// token, or a container whose only child is one; a container is promoted to
// a "References" group. With empty html the slot (container included) is
// removed.
func SpliceReferences(components []*schema.Component, html string) (out []*schema.Component, found bool) {
	return splice(components, func(c *schema.Component) ([]*schema.Component, bool) {
		switch {
		case len(c.Components) == 1 && isReferencesText(c.Components[0]):
			if html == "" {
				return nil, true
			}
			container := shallow(c)
			container.Type = schema.ComponentGroup
			container.Label = ReferencesGroupLabel
			text := shallow(c.Components[0])
			text.Text = html
			container.Components = []*schema.Component{text}
			return []*schema.Component{container}, true
		case isReferencesText(c):
			if html == "" {
				return nil, true
			}
			text := shallow(c)
			text.Text = html
			return []*schema.Component{text}, true
		}
		return nil, false
	})
}

// splice walks components pre-order and replaces the first node match
// accepts with the nodes it returns.
func splice(components []*schema.Component, match func(*schema.Component) ([]*schema.Component, bool)) ([]*schema.Component, bool) {
	for i, c := range components {
		if c == nil {
			continue
		}
		if repl, ok := match(c); ok {
			out := make([]*schema.Component, 0, len(components)-1+len(repl))
			out = append(out, components[:i]...)
			out = append(out, repl...)
			out = append(out, components[i+1:]...)
			return out, true
		}
		if len(c.Components) == 0 {
			continue
		}
		if children, ok := splice(c.Components, match); ok {
			container := shallow(c)
			container.Components = children
			out := make([]*schema.Component, len(components))
			copy(out, components)
			out[i] = container
			return out, true
		}
	}
	return components, false
}

func shallow(c *schema.Component) *schema.Component {
	cp := *c
	return &cp
}

// ReferencesHTML renders references as an unordered list of links opening
// in a new tab. References without an absolute http or https URL are
// skipped; the result is empty when nothing remains.
func ReferencesHTML(refs []schema.Reference) string {
	var sb strings.Builder
	n := 0
	for _, r := range refs {
		link := strings.TrimSpace(r.URL)
		if !webLink(link) {
			continue
		}
		name := strings.TrimSpace(r.Name)
		if name == "" {
			name = link
		}
		if n == 0 {
			sb.WriteString("<ul>")
		}
		n++
		sb.WriteString(`<li><a href="`)
		sb.WriteString(html.EscapeString(link))
		sb.WriteString(`" target="_blank" rel="noopener noreferrer">`)
		sb.WriteString(html.EscapeString(name))
		sb.WriteString("</a></li>")
	}
	if n == 0 {
		return ""
	}
	sb.WriteString("</ul>")
	return sb.String()
}

func webLink(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Scheme, "http") || strings.EqualFold(u.Scheme, "https")
}
