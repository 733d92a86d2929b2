package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/veridocs/reviewctl/internal/model"
)

var advanceCmd = &cobra.Command{
	Use:   "advance <record-id> <state>",
	Short: "Advance a record to the next workflow state",
	Long: `Moves a record through the workflow. Valid target states:
automated_checks, editorial_screening, sme_verification, correction,
approval, published, post_merge_logged. The gate for the target state is
enforced; on failure the record stays put and the error names what to fix.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initReadyStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		actor, _ := cmd.Flags().GetString("actor")
		notes, _ := cmd.Flags().GetString("notes")

		eng := newEngine(st)
		to := model.WorkflowState(args[1])

		var rec *model.ReviewRecord
		if to == model.StatePostMergeLogged {
			rec, err = eng.CompletePostMerge(ctx, args[0], notes, actor)
		} else {
			rec, err = eng.Advance(ctx, args[0], to, actor)
		}
		if err != nil {
			return eris.Wrap(err, "advance")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive <record-id>",
	Short: "Archive a published record, making it immutable",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initReadyStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.ArchiveRecord(ctx, args[0]); err != nil {
			return eris.Wrap(err, "archive")
		}

		cmd.Printf("archived %s\n", args[0])
		return nil
	},
}

func init() {
	advanceCmd.Flags().String("actor", "", "identity of the actor driving the transition")
	advanceCmd.Flags().String("notes", "", "tuning notes for post_merge_logged")
	rootCmd.AddCommand(advanceCmd)
	rootCmd.AddCommand(archiveCmd)
}
