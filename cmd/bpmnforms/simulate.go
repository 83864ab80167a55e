package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/bpmnforms/internal/bundle"
	"github.com/rendis/bpmnforms/internal/export"
	"github.com/rendis/bpmnforms/internal/routing"
	"github.com/rendis/bpmnforms/internal/validation"
)

func newSimulateCmd(_ *app) *cobra.Command {
	var nodeID string
	var sets []string
	cmd := &cobra.Command{
		Use:   "simulate <dir>",
		Short: "Show where values submitted on a form route the process",
		Long: `Simulate validates the values against the form bound to --node and follows
the routing expressions of the exported bundle to the next tasks.`,
		Example: `  bpmnforms simulate ./forms --node Task_Review --set nextTask=Task_Approve`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			vars, err := parseSets(sets)
			if err != nil {
				return err
			}
			b, err := export.ReadDir(args[0])
			if err != nil {
				return err
			}

			if f := b.Form(nodeID); f != nil {
				v, err := validation.NewVerifier()
				if err != nil {
					return err
				}
				valuesSchema, err := validation.ValuesSchema(f.Document)
				if err != nil {
					return err
				}
				if err := v.Forms().ValidateValues(vars, valuesSchema); err != nil {
					return fmt.Errorf("invalid values: %w", err)
				}
			}

			p, err := bundle.ParseGraph([]byte(b.Graph))
			if err != nil {
				return err
			}
			targets, err := routing.NewSimulator(p).Route(ctx, nodeID, vars)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(targets) == 0 {
				fmt.Fprintln(w, "no next nodes")
				return nil
			}
			for _, id := range targets {
				n := p.Node(id)
				line := fmt.Sprintf("%s\t%s\t%s", id, n.Kind, n.DisplayName())
				if n.Form != nil {
					line += "\tform=" + n.Form.FormID
				}
				fmt.Fprintln(w, line)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&nodeID, "node", "", "node whose form was submitted")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "submitted value as key=value; JSON values are decoded")
	_ = cmd.MarkFlagRequired("node")
	return cmd
}

// parseSets turns key=value pairs into variables. A value that parses as
// JSON keeps its JSON type; anything else is a string.
func parseSets(sets []string) (map[string]any, error) {
	vars := make(map[string]any, len(sets))
	for _, s := range sets {
		key, raw, ok := strings.Cut(s, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, want key=value", s)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		vars[key] = v
	}
	return vars, nil
}
