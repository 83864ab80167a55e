// Package bundle runs a generation pass: one form per qualifying process
// node, chooser injection, routing enrichment and the resulting manifest.
package bundle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rendis/bpmnforms/internal/chooser"
	"github.com/rendis/bpmnforms/internal/classify"
	"github.com/rendis/bpmnforms/internal/forms"
	"github.com/rendis/bpmnforms/internal/graph"
	"github.com/rendis/bpmnforms/internal/logging"
	"github.com/rendis/bpmnforms/internal/routing"
	"github.com/rendis/bpmnforms/pkg/schema"
)

// Templates is the template pair a pass materializes.
type Templates struct {
	// FirstStep is used for start events.
	FirstStep *schema.Form
	// NextStep is used for user tasks and call activities.
	NextStep *schema.Form
}

// Options tune one generation pass.
type Options struct {
	ServiceName string
	// Binding selects how form ids are attached to nodes. Defaults to linked.
	Binding graph.BindingMode
}

// AssemblerDeps holds the collaborators of an Assembler. Every field is
// optional.
type AssemblerDeps struct {
	Logger   *slog.Logger
	Resolver Resolver
	Clock    func() time.Time
	NewID    func() string
}

// Assembler runs generation passes. It holds no per-pass state and may be
// reused, but a single pass mutates the provider it is given and must not
// run concurrently with other users of that provider.
type Assembler struct {
	logger   *slog.Logger
	resolver Resolver
	clock    func() time.Time
	newID    func() string
}

// NewAssembler creates an Assembler.
func NewAssembler(deps AssemblerDeps) *Assembler {
	a := &Assembler{
		logger:   deps.Logger,
		resolver: deps.Resolver,
		clock:    deps.Clock,
		newID:    deps.NewID,
	}
	if a.logger == nil {
		a.logger = slog.New(logging.NewCorrelationHandler(slog.NewTextHandler(os.Stderr, nil)))
	}
	if a.clock == nil {
		a.clock = time.Now
	}
	if a.newID == nil {
		a.newID = uuid.NewString
	}
	return a
}

// Assemble runs one generation pass over p and returns the bundle. p is
// enriched in place. Configuration errors are returned before any node is
// touched; resolver failures only degrade the affected node.
func (a *Assembler) Assemble(ctx context.Context, p graph.Provider, tmpl Templates, opts Options) (*schema.Bundle, error) {
	if err := validateConfig(p, tmpl); err != nil {
		return nil, err
	}
	if opts.Binding == "" {
		opts.Binding = graph.BindingLinked
	}

	id := a.newID()
	at := a.clock().UTC().Truncate(time.Second)
	ctx = logging.WithBundleID(ctx, id)

	nodes := QualifyingNodes(p)
	a.logger.InfoContext(ctx, "generation started",
		slog.String("service", opts.ServiceName),
		slog.Int("nodes", len(nodes)))

	b := &schema.Bundle{
		ID:          id,
		ServiceName: opts.ServiceName,
		GeneratedAt: at,
		Forms:       make([]schema.GeneratedForm, 0, len(nodes)),
	}
	alloc := chooser.NewAllocation()
	for _, slot := range Number(nodes) {
		form, err := a.generate(logging.WithNodeID(ctx, slot.Node.ID), p, tmpl, opts, slot, at, alloc)
		if err != nil {
			return nil, err
		}
		b.Forms = append(b.Forms, form)
	}

	serialized, err := p.Serialize()
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeGraph, "serialize enriched graph").WithCause(err)
	}
	b.Graph = string(serialized)

	manifest, err := BuildManifest(b)
	if err != nil {
		return nil, err
	}
	b.Manifest = manifest

	a.logger.InfoContext(ctx, "generation finished", slog.Int("forms", len(b.Forms)))
	return b, nil
}

func validateConfig(p graph.Provider, tmpl Templates) error {
	switch {
	case p == nil:
		return schema.NewError(schema.ErrCodeConfig, "graph provider is required")
	case tmpl.FirstStep == nil && tmpl.NextStep == nil:
		return schema.NewError(schema.ErrCodeConfig, "first-step and next-step templates are required")
	case tmpl.FirstStep == nil:
		return schema.NewError(schema.ErrCodeConfig, "first-step template is required")
	case tmpl.NextStep == nil:
		return schema.NewError(schema.ErrCodeConfig, "next-step template is required")
	}
	return nil
}

// generate classifies, builds, materializes, binds and enriches one node.
// Gateway variables are bound in alloc, shared by every form of the pass.
func (a *Assembler) generate(ctx context.Context, p graph.Provider, tmpl Templates, opts Options, slot Slot, at time.Time, alloc *chooser.Allocation) (schema.GeneratedForm, error) {
	node := slot.Node
	details := a.resolve(ctx, node)

	c := classify.Classify(p, node.ID)
	choice := chooser.NewPassBuilder(p, alloc).BuildAll(c.Targets)

	template := tmpl.NextStep
	if node.Kind == graph.KindStartEvent {
		template = tmpl.FirstStep
	}
	formID := forms.FormID(slot.Filename, at)
	res := forms.Materialize(template, forms.Context{
		FormID:          formID,
		ServiceName:     opts.ServiceName,
		StepName:        node.DisplayName(),
		StepDescription: details.Description,
		NextTaskSummary: NextTaskSummary(p, node.ID, c, choice),
		References:      details.References,
	}, choice.Components)

	if err := p.SetFormBinding(node.ID, graph.FormBinding{FormID: formID, Mode: opts.Binding}); err != nil {
		return schema.GeneratedForm{}, schema.NewError(schema.ErrCodeGraph, "bind form").WithNode(node.ID).WithCause(err)
	}

	enricher := routing.NewEnricher(p, alloc.Variables())
	if err := enricher.EnrichAll(c.Targets); err != nil {
		return schema.GeneratedForm{}, schema.NewError(schema.ErrCodeGraph, "enrich routing").WithNode(node.ID).WithCause(err)
	}
	if c.FansOut() {
		if err := enricher.Enrich(classify.Target{Gateway: c.Root}); err != nil {
			return schema.GeneratedForm{}, schema.NewError(schema.ErrCodeGraph, "enrich parallel root").WithNode(node.ID).WithCause(err)
		}
	}

	if !res.ChooserSlot && !choice.Empty() {
		a.logger.WarnContext(ctx, "template has no chooser slot; chooser dropped",
			slog.Int("components", len(choice.Components)))
	}
	a.logger.DebugContext(ctx, "form generated",
		slog.String("filename", slot.Filename),
		slog.Int("gateways", len(c.Targets)),
		slog.Bool("chooser", res.ChooserInjected))

	return schema.GeneratedForm{
		NodeID:   node.ID,
		Name:     node.DisplayName(),
		Filename: slot.Filename,
		FormID:   formID,
		Document: res.Form,
	}, nil
}

// resolve fetches step details, degrading to empty details when the
// resolver fails or panics.
func (a *Assembler) resolve(ctx context.Context, node *graph.Node) (details schema.StepDetails) {
	if a.resolver == nil {
		return schema.StepDetails{}
	}
	defer func() {
		if r := recover(); r != nil {
			a.logger.WarnContext(ctx, "step details resolver panicked; using empty details",
				slog.Any("panic", r))
			details = schema.StepDetails{}
		}
	}()
	details, err := a.resolver.Resolve(ctx, node)
	if err != nil {
		a.logger.WarnContext(ctx, "step details unavailable; using empty details",
			slog.String("error", err.Error()))
		return schema.StepDetails{}
	}
	return details
}

// QualifyingNodes returns the start events, user tasks and call activities
// of g ordered by position (x, then y, then id).
func QualifyingNodes(g graph.Reader) []*graph.Node {
	var out []*graph.Node
	for _, n := range g.Nodes() {
		switch n.Kind {
		case graph.KindStartEvent, graph.KindUserTask, graph.KindCallActivity:
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.ID < b.ID
	})
	return out
}

// Slot is a qualifying node with its assigned filename.
type Slot struct {
	Node     *graph.Node
	Filename string
}

// Number assigns filenames: the first start event gets "000-start.form",
// every other node is numbered from 001 in the given order.
func Number(nodes []*graph.Node) []Slot {
	out := make([]Slot, 0, len(nodes))
	startSeen := false
	next := 1
	for _, n := range nodes {
		if n.Kind == graph.KindStartEvent && !startSeen {
			startSeen = true
			out = append(out, Slot{Node: n, Filename: forms.StartFilename})
			continue
		}
		out = append(out, Slot{Node: n, Filename: forms.Filename(next, n.Name, n.ID)})
		next++
	}
	return out
}

// BuildManifest lists the bundle's forms with their checksums.
func BuildManifest(b *schema.Bundle) (schema.Manifest, error) {
	m := schema.Manifest{
		BundleID:    b.ID,
		Service:     b.ServiceName,
		GeneratedAt: b.GeneratedAt,
		Forms:       make([]schema.ManifestEntry, 0, len(b.Forms)),
	}
	for _, f := range b.Forms {
		sum, err := FormChecksum(f.Document)
		if err != nil {
			return schema.Manifest{}, schema.NewError(schema.ErrCodeValidation, "encode form").WithNode(f.NodeID).WithCause(err)
		}
		m.Forms = append(m.Forms, schema.ManifestEntry{
			NodeID:   f.NodeID,
			Name:     f.Name,
			Filename: f.Filename,
			FormID:   f.FormID,
			Checksum: sum,
		})
	}
	return m, nil
}

// FormChecksum is the SHA-256 hex digest of the form's file encoding.
func FormChecksum(f *schema.Form) (string, error) {
	data, err := f.Marshal()
	if err != nil {
		return "", err
	}
	return Checksum(data), nil
}

// Checksum is the SHA-256 hex digest of data.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
