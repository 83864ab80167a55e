// Package templates ships the default first-step and next-step form
// templates.
package templates

import (
	"embed"
	"os"

	"github.com/rendis/bpmnforms/pkg/schema"
)

//go:embed *.form
var files embed.FS

// Names of the embedded templates.
const (
	FirstStepFile = "first-step.form"
	NextStepFile  = "next-step.form"
)

// Pair is a first-step / next-step template pair.
type Pair struct {
	FirstStep *schema.Form
	NextStep  *schema.Form
}

// Default parses the embedded templates.
func Default() (Pair, error) {
	first, err := embedded(FirstStepFile)
	if err != nil {
		return Pair{}, err
	}
	next, err := embedded(NextStepFile)
	if err != nil {
		return Pair{}, err
	}
	return Pair{FirstStep: first, NextStep: next}, nil
}

// Load reads a template pair from disk. An empty path falls back to the
// embedded template of that flavor.
func Load(firstPath, nextPath string) (Pair, error) {
	def, err := Default()
	if err != nil {
		return Pair{}, err
	}
	if firstPath != "" {
		if def.FirstStep, err = File(firstPath); err != nil {
			return Pair{}, err
		}
	}
	if nextPath != "" {
		if def.NextStep, err = File(nextPath); err != nil {
			return Pair{}, err
		}
	}
	return def, nil
}

// File parses one template file.
func File(path string) (*schema.Form, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "read template %s", path).WithCause(err)
	}
	f, err := schema.ParseForm(data)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "parse template %s", path).WithCause(err)
	}
	return f, nil
}

func embedded(name string) (*schema.Form, error) {
	data, err := files.ReadFile(name)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "embedded template %s", name).WithCause(err)
	}
	return schema.ParseForm(data)
}
