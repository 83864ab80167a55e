package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rendis/bpmnforms/internal/bundle"
	"github.com/rendis/bpmnforms/internal/catalog"
	"github.com/rendis/bpmnforms/internal/graph"
	"github.com/rendis/bpmnforms/internal/scheduler"
	"github.com/rendis/bpmnforms/internal/store"
	"github.com/rendis/bpmnforms/internal/templates"
	"github.com/rendis/bpmnforms/internal/validation"
	"github.com/rendis/bpmnforms/pkg/mcp"
)

func newServeCmd(a *app) *cobra.Command {
	var noPrune bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Long: `Serve exposes generate, verify, query, diagram and simulate as MCP tools
over stdio and prunes expired bundles on the configured cron schedule.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			pair, err := templates.Load(a.cfg.FirstStepTemplate, a.cfg.NextStepTemplate)
			if err != nil {
				return err
			}
			chain := bundle.Chain{}
			if a.cfg.CatalogPath != "" {
				file, err := catalog.Load(a.cfg.CatalogPath)
				if err != nil {
					return err
				}
				chain = append(chain, file)
			}
			chain = append(chain, store.NewCatalogResolver(s))

			verifier, err := validation.NewVerifier()
			if err != nil {
				return err
			}
			srv, err := mcp.NewServer(mcp.ServerDeps{
				Assembler: bundle.NewAssembler(bundle.AssemblerDeps{Logger: a.logger, Resolver: chain}),
				Verifier:  verifier,
				Templates: bundle.Templates{FirstStep: pair.FirstStep, NextStep: pair.NextStep},
				Store:     s,
				Events:    store.NewEventLog(s),
				Binding:   graph.BindingMode(a.cfg.Binding),
				Version:   version,
				Logger:    a.logger,
			})
			if err != nil {
				return err
			}

			if !noPrune {
				retention, err := a.cfg.retention()
				if err != nil {
					return err
				}
				pruner, err := scheduler.NewPruner(s, scheduler.PrunerConfig{
					Schedule:  a.cfg.PruneSchedule,
					Retention: retention,
				}, a.logger)
				if err != nil {
					return fmt.Errorf("pruner: %w", err)
				}
				if err := pruner.Start(ctx); err != nil {
					return err
				}
				defer pruner.Stop()
			}

			a.logger.Info("mcp server listening on stdio",
				slog.String("version", version),
				slog.String("db", a.cfg.DBPath))
			return srv.Serve(ctx)
		},
	}
	cmd.Flags().BoolVar(&noPrune, "no-prune", false, "disable the bundle pruner")
	return cmd
}
