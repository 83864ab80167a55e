package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rendis/bpmnforms/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const formSchemaURL = "https://bpmnforms.dev/schemas/form.json"

// formSchemaJSON describes the Camunda form documents the generator writes.
// Unknown properties are allowed: templates carry whatever the form editor
// produced.
const formSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://bpmnforms.dev/schemas/form.json",
  "type": "object",
  "required": ["id", "type", "schemaVersion", "components"],
  "properties": {
    "id": { "type": "string", "minLength": 1 },
    "type": { "type": "string", "minLength": 1 },
    "schemaVersion": { "type": "integer", "minimum": 1 },
    "executionPlatform": { "type": "string" },
    "executionPlatformVersion": { "type": "string" },
    "exporter": {
      "type": "object",
      "required": ["name", "version"],
      "properties": {
        "name": { "type": "string" },
        "version": { "type": "string" }
      }
    },
    "components": {
      "type": "array",
      "items": { "$ref": "#/$defs/component" }
    }
  },
  "$defs": {
    "component": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "id": { "type": "string" },
        "type": { "type": "string", "minLength": 1 },
        "key": { "type": "string", "minLength": 1 },
        "label": { "type": "string" },
        "text": { "type": "string" },
        "values": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["label", "value"],
            "properties": {
              "label": { "type": "string" },
              "value": { "type": "string", "minLength": 1 }
            }
          }
        },
        "conditional": {
          "type": "object",
          "properties": {
            "hide": { "type": "string" }
          }
        },
        "validate": { "type": "object" },
        "components": {
          "type": "array",
          "items": { "$ref": "#/$defs/component" }
        }
      },
      "allOf": [
        {
          "if": { "properties": { "type": { "enum": ["select", "checklist", "radio"] } } },
          "then": { "required": ["key", "values"] }
        }
      ]
    }
  }
}`

// FormSchemaValidator checks form documents and caller-supplied JSON
// Schemas (Draft 2020-12). It is safe for concurrent use.
type FormSchemaValidator struct {
	formSchema *jsonschema.Schema

	// mu guards the cache of dynamically compiled schemas.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewFormSchemaValidator creates a validator with the form schema pre-compiled.
func NewFormSchemaValidator() (*FormSchemaValidator, error) {
	c := newCompiler()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(formSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal form schema: %w", err)
	}
	if err := c.AddResource(formSchemaURL, schemaDoc); err != nil {
		return nil, fmt.Errorf("add form schema resource: %w", err)
	}

	compiled, err := c.Compile(formSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile form schema: %w", err)
	}

	return &FormSchemaValidator{
		formSchema: compiled,
		cache:      make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateForm validates a form document against the form schema.
func (v *FormSchemaValidator) ValidateForm(f *schema.Form) error {
	if f == nil {
		return schema.NewError(schema.ErrCodeValidation, "form document is nil")
	}

	doc, err := toJSONValue(f)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize form").WithCause(err)
	}

	if err := v.formSchema.Validate(doc); err != nil {
		return toSchemaError(err)
	}

	// Structural checks that JSON Schema cannot express: duplicate component ids.
	seen := make(map[string]bool)
	var dup string
	var walk func([]*schema.Component)
	walk = func(components []*schema.Component) {
		for _, c := range components {
			if c == nil || dup != "" {
				continue
			}
			if c.ID != "" {
				if seen[c.ID] {
					dup = c.ID
					return
				}
				seen[c.ID] = true
			}
			walk(c.Components)
		}
	}
	walk(f.Components)
	if dup != "" {
		return schema.NewErrorf(schema.ErrCodeValidation, "duplicate component id %q", dup)
	}

	return nil
}

// ValidateValues validates submitted form values against a JSON Schema
// provided as raw bytes. The schema is compiled and cached.
func (v *FormSchemaValidator) ValidateValues(values map[string]any, valuesSchema []byte) error {
	if values == nil {
		return schema.NewError(schema.ErrCodeValidation, "values are nil")
	}
	if len(valuesSchema) == 0 {
		return nil
	}

	compiled, err := v.getOrCompile(valuesSchema)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid values schema").WithCause(err)
	}

	doc, err := toJSONValue(values)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize values").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toSchemaError(err)
	}
	return nil
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (v *FormSchemaValidator) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	// Double-check after acquiring write lock.
	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	url := fmt.Sprintf("bpmnforms://values-schema/%d", len(v.cache))

	// Fresh compiler per dynamic schema to avoid resource collision.
	c := newCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

func newCompiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	return c
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toSchemaError converts a jsonschema.ValidationError into an Error listing
// every leaf violation.
func toSchemaError(err error) *schema.Error {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}

// ValuesSchema derives a JSON Schema for the values a form submits through
// its select and checklist components: a select key must be one of the
// option values, a checklist key a list of them.
func ValuesSchema(f *schema.Form) ([]byte, error) {
	props := make(map[string]any)
	var walk func([]*schema.Component)
	walk = func(components []*schema.Component) {
		for _, c := range components {
			if c == nil {
				continue
			}
			if c.Key != "" && len(c.Values) > 0 {
				enum := make([]string, 0, len(c.Values))
				for _, o := range c.Values {
					enum = append(enum, o.Value)
				}
				switch c.Type {
				case schema.ComponentChecklist:
					props[c.Key] = map[string]any{
						"type":  "array",
						"items": map[string]any{"enum": enum},
					}
				default:
					props[c.Key] = map[string]any{"enum": enum}
				}
			}
			walk(c.Components)
		}
	}
	if f != nil {
		walk(f.Components)
	}
	return json.Marshal(map[string]any{
		"$schema":    "https://json-schema.org/draft/2020-12/schema",
		"type":       "object",
		"properties": props,
	})
}
