package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rendis/bpmnforms/internal/export"
	"github.com/rendis/bpmnforms/internal/store"
	"github.com/rendis/bpmnforms/internal/validation"
	"github.com/rendis/bpmnforms/pkg/schema"
)

// errInvalid makes the command exit non-zero after the report was printed.
var errInvalid = errors.New("bundle is invalid")

func newVerifyCmd(a *app) *cobra.Command {
	var record bool
	cmd := &cobra.Command{
		Use:   "verify <dir>",
		Short: "Verify an exported bundle directory",
		Long: `Verify checks the checksums of an exported bundle, validates every form
against the form schema and checks the routing of the enriched process.`,
		Example: `  bpmnforms verify ./forms
  bpmnforms verify ./forms --record`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			v, err := validation.NewVerifier()
			if err != nil {
				return err
			}
			res, err := export.VerifyDir(ctx, args[0], v)
			if err != nil {
				return err
			}
			printIssues(cmd.OutOrStdout(), res)

			if record {
				b, err := export.ReadDir(args[0])
				if err != nil {
					return err
				}
				s, err := a.openStore(ctx)
				if err != nil {
					return err
				}
				defer s.Close()
				if _, err := store.NewEventLog(s).Append(ctx, b.ID, store.EventBundleVerified, map[string]any{
					"valid":    res.Valid(),
					"errors":   len(res.Errors),
					"warnings": len(res.Warnings),
				}); err != nil {
					return err
				}
			}

			if !res.Valid() {
				cmd.SilenceErrors = true
				return errInvalid
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&record, "record", false, "append the result to the stored bundle's event log")
	return cmd
}

func printIssues(w io.Writer, res *schema.ValidationResult) {
	for _, issue := range res.Issues() {
		fmt.Fprintln(w, issue)
	}
	fmt.Fprintln(w, res.Summary())
}
