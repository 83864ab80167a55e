package store

import (
	"context"

	"github.com/rendis/bpmnforms/internal/graph"
	"github.com/rendis/bpmnforms/pkg/schema"
)

// CatalogResolver resolves step details from the step catalog by the node's
// display name, falling back to its id. A step missing from the catalog
// resolves to empty details without error.
type CatalogResolver struct {
	catalog CatalogReader
}

// NewCatalogResolver creates a resolver reading from catalog.
func NewCatalogResolver(catalog CatalogReader) *CatalogResolver {
	return &CatalogResolver{catalog: catalog}
}

// Resolve looks the node up in the catalog.
func (r *CatalogResolver) Resolve(ctx context.Context, node *graph.Node) (schema.StepDetails, error) {
	for _, name := range []string{node.DisplayName(), node.ID} {
		if CatalogKey(name) == "" {
			continue
		}
		entry, err := r.catalog.GetCatalogEntry(ctx, name)
		if schema.HasCode(err, schema.ErrCodeNotFound) {
			continue
		}
		if err != nil {
			return schema.StepDetails{}, schema.NewError(schema.ErrCodeResolve, "catalog lookup failed").
				WithNode(node.ID).WithCause(err)
		}
		return entry.Details(), nil
	}
	return schema.StepDetails{}, nil
}
