package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/veridocs/reviewctl/internal/model"
	"github.com/veridocs/reviewctl/internal/store"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect review records",
	Long:  "Commands for listing, viewing, and summarizing review records.",
}

// -- records list --

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List review records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initReadyStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		state, _ := cmd.Flags().GetString("state")
		risk, _ := cmd.Flags().GetString("risk")
		content, _ := cmd.Flags().GetString("content")
		limit, _ := cmd.Flags().GetInt("limit")
		includeArchived, _ := cmd.Flags().GetBool("archived")

		filter := store.RecordFilter{
			State:     model.WorkflowState(state),
			RiskLevel: model.RiskLevel(risk),
			ContentID: content,
			Limit:     limit,
		}
		if !includeArchived {
			archived := false
			filter.Archived = &archived
		}

		recs, err := st.ListRecords(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "records list")
		}

		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No records found.")
			return nil
		}

		formatRecordsList(os.Stdout, recs)
		return nil
	},
}

// -- records show --

var recordsShowCmd = &cobra.Command{
	Use:   "show <record-id>",
	Short: "Show full details of a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initReadyStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.GetRecord(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "records show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

// -- records stats --

var recordsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate record statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initReadyStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := st.ListRecords(ctx, store.RecordFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "records stats")
		}

		stats := computeRecordStats(recs)
		formatRecordStats(os.Stdout, stats)
		return nil
	},
}

func init() {
	recordsListCmd.Flags().String("state", "", "filter by workflow state (intake, sme_verification, published, ...)")
	recordsListCmd.Flags().String("risk", "", "filter by risk level (P0, P1, P2, P3)")
	recordsListCmd.Flags().String("content", "", "filter by content identifier")
	recordsListCmd.Flags().Int("limit", 50, "max number of records to display")
	recordsListCmd.Flags().Bool("archived", false, "include archived records")

	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsShowCmd)
	recordsCmd.AddCommand(recordsStatsCmd)
	rootCmd.AddCommand(recordsCmd)
}

// recordStats holds aggregate statistics computed from a set of records.
type recordStats struct {
	Total     int
	ByState   map[model.WorkflowState]int
	ByRisk    map[model.RiskLevel]int
	Overdue   int
	Archived  int
	AvgRounds float64
}

// computeRecordStats computes aggregate statistics from a list of records.
func computeRecordStats(recs []model.ReviewRecord) recordStats {
	s := recordStats{
		ByState: make(map[model.WorkflowState]int),
		ByRisk:  make(map[model.RiskLevel]int),
	}
	s.Total = len(recs)

	now := time.Now().UTC()
	var totalRounds int
	for _, r := range recs {
		s.ByState[r.State]++
		if r.RiskLevel != "" {
			s.ByRisk[r.RiskLevel]++
		}
		if r.Archived {
			s.Archived++
		}
		if r.SLADeadline != nil && r.SLADeadline.Before(now) {
			switch r.State {
			case model.StatePublished, model.StatePostMergeLogged:
			default:
				s.Overdue++
			}
		}
		totalRounds += r.CorrectionRounds
	}

	if s.Total > 0 {
		s.AvgRounds = float64(totalRounds) / float64(s.Total)
	}
	return s
}

// formatRecordsList writes a tabular list of records to out.
func formatRecordsList(out io.Writer, recs []model.ReviewRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCONTENT\tSTATE\tRISK\tROUNDS\tDEADLINE\tUPDATED")
	_, _ = fmt.Fprintln(w, "--\t-------\t-----\t----\t------\t--------\t-------")

	for _, r := range recs {
		content := r.ContentID
		if len(content) > 30 {
			content = content[:27] + "..."
		}

		deadline := ""
		if r.SLADeadline != nil {
			deadline = r.SLADeadline.Format("2006-01-02 15:04")
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			truncateID(r.ID),
			content,
			r.State,
			r.RiskLevel,
			r.CorrectionRounds,
			deadline,
			r.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatRecordStats writes aggregate stats to out.
func formatRecordStats(out io.Writer, s recordStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total records:\t%d\n", s.Total)
	for _, state := range []model.WorkflowState{
		model.StateIntake,
		model.StateAutomatedChecks,
		model.StateEditorialScreening,
		model.StateSMEVerification,
		model.StateCorrection,
		model.StateApproval,
		model.StatePublished,
		model.StateIncidentLogged,
		model.StatePostMergeLogged,
	} {
		if n := s.ByState[state]; n > 0 {
			_, _ = fmt.Fprintf(w, "  %s:\t%d\n", state, n)
		}
	}
	for _, risk := range []model.RiskLevel{model.RiskP0, model.RiskP1, model.RiskP2, model.RiskP3} {
		if n := s.ByRisk[risk]; n > 0 {
			_, _ = fmt.Fprintf(w, "%s:\t%d\n", risk, n)
		}
	}
	_, _ = fmt.Fprintf(w, "Overdue:\t%d\n", s.Overdue)
	_, _ = fmt.Fprintf(w, "Archived:\t%d\n", s.Archived)
	if s.AvgRounds > 0 {
		_, _ = fmt.Fprintf(w, "Avg correction rounds:\t%.1f\n", s.AvgRounds)
	}
	_ = w.Flush()
}
