// Package catalog loads a step catalog from a YAML file. The catalog maps
// step names to the description and references shown on generated forms.
//
//	steps:
//	  - name: Review request
//	    description: Check the request for completeness.
//	    references:
//	      - name: Review guide
//	        url: https://docs.example.com/review
package catalog

import (
	"bytes"
	"context"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/rendis/bpmnforms/internal/graph"
	"github.com/rendis/bpmnforms/internal/store"
	"github.com/rendis/bpmnforms/pkg/schema"
)

type document struct {
	Steps []store.CatalogEntry `yaml:"steps"`
}

// File is an in-memory step catalog. It is read-only after loading and
// safe for concurrent use.
type File struct {
	entries map[string]store.CatalogEntry
	order   []string
}

// Parse decodes a catalog from YAML bytes. Names are matched with
// store.CatalogKey; a later entry with the same key replaces an earlier one.
func Parse(data []byte) (*File, error) {
	f := &File{entries: make(map[string]store.CatalogEntry)}
	if len(bytes.TrimSpace(data)) == 0 {
		return f, nil
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeParse, "invalid step catalog").WithCause(err)
	}
	for i, e := range doc.Steps {
		key := store.CatalogKey(e.Name)
		if key == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "catalog step %d has no name", i+1)
		}
		for j, ref := range e.References {
			if ref.URL == "" {
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"catalog step %q: reference %d has no url", e.Name, j+1)
			}
		}
		if _, seen := f.entries[key]; !seen {
			f.order = append(f.order, key)
		}
		f.entries[key] = e
	}
	return f, nil
}

// Read decodes a catalog from r.
func Read(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeParse, "read step catalog").WithCause(err)
	}
	return Parse(data)
}

// Load reads a catalog file from disk.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "read step catalog %s", path).WithCause(err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeParse, "step catalog %s", path).WithCause(err)
	}
	return f, nil
}

// Len returns the number of distinct steps.
func (f *File) Len() int { return len(f.order) }

// Entries returns the steps in file order.
func (f *File) Entries() []store.CatalogEntry {
	out := make([]store.CatalogEntry, 0, len(f.order))
	for _, key := range f.order {
		out = append(out, f.entries[key])
	}
	return out
}

// Names returns the normalized step keys, sorted.
func (f *File) Names() []string {
	out := append([]string(nil), f.order...)
	sort.Strings(out)
	return out
}

// GetCatalogEntry implements store.CatalogReader, so a File can back a
// store.CatalogResolver.
func (f *File) GetCatalogEntry(_ context.Context, name string) (*store.CatalogEntry, error) {
	e, ok := f.entries[store.CatalogKey(name)]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "catalog entry %q not found", name)
	}
	return &e, nil
}

// Resolve looks the node up by display name, then by id. Unknown steps
// resolve to empty details.
func (f *File) Resolve(ctx context.Context, node *graph.Node) (schema.StepDetails, error) {
	return store.NewCatalogResolver(f).Resolve(ctx, node)
}

var _ store.CatalogReader = (*File)(nil)
