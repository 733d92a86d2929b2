package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veridocs/reviewctl/internal/model"
	"github.com/veridocs/reviewctl/internal/tracker"
	"github.com/veridocs/reviewctl/internal/workflow"
)

var incidentCmd = &cobra.Command{
	Use:   "incident",
	Short: "Log and inspect hallucination incidents",
	Long:  "Commands for logging a hallucination found after publish and listing the incidents recorded against a record.",
}

// -- incident log --

var incidentLogCmd = &cobra.Command{
	Use:   "log <record-id>",
	Short: "Log a hallucination incident against a published record",
	Long: `Records a hallucination incident. The record moves to incident_logged;
with --reopen it continues straight to correction for a republish cycle.
With --file-issue the incident is also filed with the configured tracker.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initReadyStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		severity, _ := cmd.Flags().GetString("severity")
		failureMode, _ := cmd.Flags().GetString("failure-mode")
		impact, _ := cmd.Flags().GetString("impact")
		observed, _ := cmd.Flags().GetString("observed")
		expected, _ := cmd.Flags().GetString("expected")
		links, _ := cmd.Flags().GetStringSlice("link")
		reproduction, _ := cmd.Flags().GetString("reproduction")
		rootCause, _ := cmd.Flags().GetString("root-cause")
		fix, _ := cmd.Flags().GetString("fix")
		reopen, _ := cmd.Flags().GetBool("reopen")
		fileIssue, _ := cmd.Flags().GetBool("file-issue")
		actor, _ := cmd.Flags().GetString("actor")

		eng := newEngine(st)
		inc, rec, err := eng.LogIncident(ctx, args[0], workflow.IncidentParams{
			Severity:      model.RiskLevel(severity),
			FailureMode:   model.FailureMode(failureMode),
			Impact:        model.Impact(impact),
			ObservedText:  observed,
			ExpectedTruth: expected,
			SourceLinks:   links,
			Reproduction:  reproduction,
			RootCause:     rootCause,
			Fix:           fix,
			Reopen:        reopen,
			Actor:         actor,
		})
		if err != nil {
			return eris.Wrap(err, "incident log")
		}

		if fileIssue {
			trk, err := newTracker()
			if err != nil {
				return err
			}
			if trk == nil {
				return eris.New("incident log: --file-issue set but no tracker configured")
			}
			ref, err := trk.File(ctx, tracker.FromIncident(inc, cfg.Tracker.Labels, cfg.Tracker.Assignees))
			if err != nil {
				return eris.Wrap(err, "incident log: file issue")
			}
			zap.L().Info("incident filed with tracker",
				zap.String("incident_id", inc.ID),
				zap.String("ref", ref),
			)
			fmt.Fprintf(os.Stderr, "Filed issue: %s\n", ref)
		}

		out := struct {
			Incident *model.Incident     `json:"incident"`
			Record   *model.ReviewRecord `json:"record"`
		}{inc, rec}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

// -- incident list --

var incidentListCmd = &cobra.Command{
	Use:   "list <record-id>",
	Short: "List the incidents logged against a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initReadyStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		incidents, err := st.ListIncidents(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "incident list")
		}

		if len(incidents) == 0 {
			fmt.Fprintln(os.Stderr, "No incidents recorded.")
			return nil
		}

		formatIncidents(os.Stdout, incidents)
		return nil
	},
}

func init() {
	incidentLogCmd.Flags().String("severity", "", "incident severity (P0, P1, P2, P3)")
	incidentLogCmd.Flags().String("failure-mode", "", "failure mode (invented_entity, version_drift, wrong_default, schema_mismatch, other)")
	incidentLogCmd.Flags().String("impact", "", "impact (internal, customer_minor, customer_major)")
	incidentLogCmd.Flags().String("observed", "", "the text that was published")
	incidentLogCmd.Flags().String("expected", "", "what the system of record actually says")
	incidentLogCmd.Flags().StringSlice("link", nil, "system-of-record link (repeatable)")
	incidentLogCmd.Flags().String("reproduction", "", "how the defect was observed")
	incidentLogCmd.Flags().String("root-cause", "", "root cause analysis")
	incidentLogCmd.Flags().String("fix", "", "fix applied or planned")
	incidentLogCmd.Flags().Bool("reopen", false, "reopen the record into correction for republish")
	incidentLogCmd.Flags().Bool("file-issue", false, "file the incident with the configured issue tracker")
	incidentLogCmd.Flags().String("actor", "", "identity of the reporter")

	incidentCmd.AddCommand(incidentLogCmd)
	incidentCmd.AddCommand(incidentListCmd)
	rootCmd.AddCommand(incidentCmd)
}

// formatIncidents writes a tabular list of incidents to out.
func formatIncidents(out io.Writer, incidents []model.Incident) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tDATE\tSEVERITY\tFAILURE_MODE\tIMPACT\tREOPENED")
	_, _ = fmt.Fprintln(w, "--\t----\t--------\t------------\t------\t--------")

	for _, inc := range incidents {
		reopened := ""
		if inc.Reopened {
			reopened = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(inc.ID),
			inc.Date.Format("2006-01-02"),
			inc.Severity,
			inc.FailureMode,
			inc.Impact,
			reopened,
		)
	}
	_ = w.Flush()
}
