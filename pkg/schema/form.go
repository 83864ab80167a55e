package schema

import (
	"encoding/json"
	"fmt"
)

// Camunda form document markers stamped onto every generated form.
const (
	FormSchemaVersion            = 16
	FormType                     = "default"
	FormExecutionPlatform        = "Camunda Cloud"
	FormExecutionPlatformVersion = "8.5.0"
	ExporterName                 = "bpmnforms"
)

// Form is a Camunda form document. Fields not modelled explicitly are kept
// in Extra so that templates round-trip without loss.
type Form struct {
	ID                       string
	Type                     string
	SchemaVersion            int
	ExecutionPlatform        string
	ExecutionPlatformVersion string
	Exporter                 *Exporter
	Components               []*Component
	Extra                    map[string]any
}

// Exporter identifies the tool that wrote a form document.
type Exporter struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Component is one node of a form's component tree.
type Component struct {
	ID          string
	Type        string
	Key         string
	Label       string
	Text        string
	Description string
	Values      []Option
	Components  []*Component
	Conditional *Conditional
	Validate    map[string]any
	Extra       map[string]any
}

// Option is a selectable value of a select, radio or checklist component.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Conditional holds a component's visibility rule.
type Conditional struct {
	Hide string `json:"hide,omitempty"`
}

// Component type tags used by the generator.
const (
	ComponentText      = "text"
	ComponentSelect    = "select"
	ComponentChecklist = "checklist"
	ComponentGroup     = "group"
)

var formKeys = []string{"id", "type", "schemaVersion", "executionPlatform", "executionPlatformVersion", "exporter", "components"}

var componentKeys = []string{"id", "type", "key", "label", "text", "description", "values", "components", "conditional", "validate"}

// ParseForm decodes a form document.
func ParseForm(data []byte) (*Form, error) {
	var f Form
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, NewError(ErrCodeParse, "invalid form document").WithCause(err)
	}
	return &f, nil
}

// Marshal encodes the form as indented JSON, the layout written to .form files.
func (f *Form) Marshal() ([]byte, error) {
	return json.MarshalIndent(f, "", "  ")
}

// Clone returns a deep copy sharing no substructure with f.
func (f *Form) Clone() *Form {
	if f == nil {
		return nil
	}
	out := &Form{
		ID:                       f.ID,
		Type:                     f.Type,
		SchemaVersion:            f.SchemaVersion,
		ExecutionPlatform:        f.ExecutionPlatform,
		ExecutionPlatformVersion: f.ExecutionPlatformVersion,
		Components:               CloneComponents(f.Components),
		Extra:                    cloneMap(f.Extra),
	}
	if f.Exporter != nil {
		exp := *f.Exporter
		out.Exporter = &exp
	}
	return out
}

// Clone returns a deep copy of the component and its children.
func (c *Component) Clone() *Component {
	if c == nil {
		return nil
	}
	out := &Component{
		ID:          c.ID,
		Type:        c.Type,
		Key:         c.Key,
		Label:       c.Label,
		Text:        c.Text,
		Description: c.Description,
		Components:  CloneComponents(c.Components),
		Validate:    cloneMap(c.Validate),
		Extra:       cloneMap(c.Extra),
	}
	if c.Values != nil {
		out.Values = append([]Option(nil), c.Values...)
	}
	if c.Conditional != nil {
		cond := *c.Conditional
		out.Conditional = &cond
	}
	return out
}

// CloneComponents deep-copies a component list.
func CloneComponents(in []*Component) []*Component {
	if in == nil {
		return nil
	}
	out := make([]*Component, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (f *Form) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(f.Extra)+len(formKeys))
	for k, v := range f.Extra {
		m[k] = v
	}
	putString(m, "id", f.ID)
	putString(m, "type", f.Type)
	if f.SchemaVersion != 0 {
		m["schemaVersion"] = f.SchemaVersion
	}
	putString(m, "executionPlatform", f.ExecutionPlatform)
	putString(m, "executionPlatformVersion", f.ExecutionPlatformVersion)
	if f.Exporter != nil {
		m["exporter"] = f.Exporter
	}
	components := f.Components
	if components == nil {
		components = []*Component{}
	}
	m["components"] = components
	return json.Marshal(m)
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Form) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields := []struct {
		key string
		dst any
	}{
		{"id", &f.ID},
		{"type", &f.Type},
		{"schemaVersion", &f.SchemaVersion},
		{"executionPlatform", &f.ExecutionPlatform},
		{"executionPlatformVersion", &f.ExecutionPlatformVersion},
		{"exporter", &f.Exporter},
		{"components", &f.Components},
	}
	for _, fld := range fields {
		if v, ok := raw[fld.key]; ok {
			if err := json.Unmarshal(v, fld.dst); err != nil {
				return fmt.Errorf("form field %q: %w", fld.key, err)
			}
		}
	}
	extra, err := leftovers(raw, formKeys)
	if err != nil {
		return err
	}
	f.Extra = extra
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c *Component) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(c.Extra)+len(componentKeys))
	for k, v := range c.Extra {
		m[k] = v
	}
	putString(m, "id", c.ID)
	putString(m, "type", c.Type)
	putString(m, "key", c.Key)
	putString(m, "label", c.Label)
	putString(m, "text", c.Text)
	putString(m, "description", c.Description)
	if c.Values != nil {
		m["values"] = c.Values
	}
	if c.Components != nil {
		m["components"] = c.Components
	}
	if c.Conditional != nil && c.Conditional.Hide != "" {
		m["conditional"] = c.Conditional
	}
	if len(c.Validate) > 0 {
		m["validate"] = c.Validate
	}
	return json.Marshal(m)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Component) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields := []struct {
		key string
		dst any
	}{
		{"id", &c.ID},
		{"type", &c.Type},
		{"key", &c.Key},
		{"label", &c.Label},
		{"text", &c.Text},
		{"description", &c.Description},
		{"values", &c.Values},
		{"components", &c.Components},
		{"conditional", &c.Conditional},
		{"validate", &c.Validate},
	}
	for _, fld := range fields {
		if v, ok := raw[fld.key]; ok {
			if err := json.Unmarshal(v, fld.dst); err != nil {
				return fmt.Errorf("component field %q: %w", fld.key, err)
			}
		}
	}
	extra, err := leftovers(raw, componentKeys)
	if err != nil {
		return err
	}
	c.Extra = extra
	return nil
}

func leftovers(raw map[string]json.RawMessage, known []string) (map[string]any, error) {
	for _, k := range known {
		delete(raw, k)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}

func putString(m map[string]any, key, val string) {
	if val != "" {
		m[key] = val
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
