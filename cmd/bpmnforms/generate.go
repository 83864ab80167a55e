package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rendis/bpmnforms/internal/bundle"
	"github.com/rendis/bpmnforms/internal/catalog"
	"github.com/rendis/bpmnforms/internal/export"
	"github.com/rendis/bpmnforms/internal/graph"
	"github.com/rendis/bpmnforms/internal/store"
	"github.com/rendis/bpmnforms/internal/templates"
)

type generateOptions struct {
	out           string
	service       string
	binding       string
	firstTemplate string
	nextTemplate  string
	catalogPath   string
	noSave        bool
}

func newGenerateCmd(a *app) *cobra.Command {
	var opts generateOptions
	cmd := &cobra.Command{
		Use:   "generate <process>",
		Short: "Generate forms and routing for a BPMN process",
		Long: `Generate reads a BPMN 2.0 XML file (or its JSON graph form), generates one
form per start event, user task and call activity, enriches the gateways
with routing expressions and writes the bundle to a directory.`,
		Example: `  bpmnforms generate process.bpmn --service orders --out ./forms
  bpmnforms generate process.bpmn --service orders --catalog steps.yaml --binding key`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, a, args[0], opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.out, "out", "o", "", "output directory (default: ./<bundle id>)")
	f.StringVar(&opts.service, "service", "", "service name substituted into the forms")
	f.StringVar(&opts.binding, "binding", "", "form binding: linked or key")
	f.StringVar(&opts.firstTemplate, "first-template", "", "first-step form template")
	f.StringVar(&opts.nextTemplate, "next-template", "", "next-step form template")
	f.StringVar(&opts.catalogPath, "catalog", "", "YAML step catalog consulted before the stored one")
	f.BoolVar(&opts.noSave, "no-save", false, "do not store the bundle")
	return cmd
}

func runGenerate(cmd *cobra.Command, a *app, path string, opts generateOptions) error {
	ctx := cmd.Context()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read process: %w", err)
	}
	p, err := bundle.ParseGraph(data)
	if err != nil {
		return err
	}

	service := firstNonEmpty(opts.service, a.cfg.ServiceName)
	if service == "" {
		return fmt.Errorf("a service name is required (--service or service_name in settings)")
	}
	binding := graph.BindingMode(firstNonEmpty(opts.binding, a.cfg.Binding))
	if binding != graph.BindingLinked && binding != graph.BindingKey {
		return fmt.Errorf("binding must be %q or %q, got %q", graph.BindingLinked, graph.BindingKey, binding)
	}

	pair, err := templates.Load(
		firstNonEmpty(opts.firstTemplate, a.cfg.FirstStepTemplate),
		firstNonEmpty(opts.nextTemplate, a.cfg.NextStepTemplate),
	)
	if err != nil {
		return err
	}

	var chain bundle.Chain
	if catalogPath := firstNonEmpty(opts.catalogPath, a.cfg.CatalogPath); catalogPath != "" {
		file, err := catalog.Load(catalogPath)
		if err != nil {
			return err
		}
		chain = append(chain, file)
	}

	var s *store.LibSQLStore
	if !opts.noSave {
		if s, err = a.openStore(ctx); err != nil {
			return err
		}
		defer s.Close()
		chain = append(chain, store.NewCatalogResolver(s))
	}

	assembler := bundle.NewAssembler(bundle.AssemblerDeps{Logger: a.logger, Resolver: chain})
	b, err := assembler.Assemble(ctx, p, bundle.Templates{FirstStep: pair.FirstStep, NextStep: pair.NextStep},
		bundle.Options{ServiceName: service, Binding: binding})
	if err != nil {
		return err
	}

	out := opts.out
	if out == "" {
		out = b.ID
	}
	files, err := export.WriteDir(out, b)
	if err != nil {
		return err
	}

	if s != nil {
		if err := s.SaveBundle(ctx, b); err != nil {
			return err
		}
		events := store.NewEventLog(s)
		if _, err := events.Append(ctx, b.ID, store.EventBundleGenerated, map[string]any{
			"service_name": b.ServiceName,
			"forms":        len(b.Forms),
		}); err != nil {
			return err
		}
		abs, _ := filepath.Abs(out)
		if _, err := events.Append(ctx, b.ID, store.EventBundleExported, map[string]any{
			"dir":   abs,
			"files": files,
		}); err != nil {
			return err
		}
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "bundle %s: %d forms written to %s\n", b.ID, len(b.Forms), out)
	for _, f := range b.Forms {
		fmt.Fprintf(w, "  %-24s %s\n", f.Filename, f.NodeID)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
