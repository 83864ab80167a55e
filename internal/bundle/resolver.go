package bundle

import (
	"context"

	"github.com/rendis/bpmnforms/internal/graph"
	"github.com/rendis/bpmnforms/pkg/schema"
)

// Resolver supplies the description and references shown on a step's form.
// It may perform I/O. Errors degrade the node to empty details.
type Resolver interface {
	Resolve(ctx context.Context, node *graph.Node) (schema.StepDetails, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, node *graph.Node) (schema.StepDetails, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, node *graph.Node) (schema.StepDetails, error) {
	return f(ctx, node)
}

// Chain tries resolvers in order and returns the first details that carry a
// description or references. Errors are remembered but do not stop the
// chain; the last one is returned only when nothing resolved.
type Chain []Resolver

// Resolve implements Resolver.
func (c Chain) Resolve(ctx context.Context, node *graph.Node) (schema.StepDetails, error) {
	var lastErr error
	for _, r := range c {
		if r == nil {
			continue
		}
		d, err := r.Resolve(ctx, node)
		if err != nil {
			lastErr = err
			continue
		}
		if d.Description != "" || len(d.References) > 0 {
			return d, nil
		}
	}
	return schema.StepDetails{}, lastErr
}
