package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/veridocs/reviewctl/internal/checks"
)

var checksCmd = &cobra.Command{
	Use:   "checks",
	Short: "Run automated checks against content",
}

var checksRunCmd = &cobra.Command{
	Use:   "run <content-id>",
	Short: "Run the automated checkers against a content item",
	Long:  "Runs the link, glossary, and front matter schema checkers against a content file without touching any record. Exits non-zero when any check fails.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		results, err := newRunner().Run(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "checks run")
		}

		formatCheckResults(os.Stdout, results)

		if failures := checks.Failures(results); len(failures) > 0 {
			return &checks.FailedError{Failures: failures}
		}
		return nil
	},
}

func init() {
	checksCmd.AddCommand(checksRunCmd)
	rootCmd.AddCommand(checksCmd)
}

// formatCheckResults writes a tabular list of check results to out.
func formatCheckResults(out io.Writer, results []checks.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CHECK\tRESULT\tDETAIL")
	_, _ = fmt.Fprintln(w, "-----\t------\t------")

	for _, r := range results {
		status := "pass"
		if !r.Passed {
			status = "FAIL"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, status, r.Detail)
	}
	_ = w.Flush()
}
