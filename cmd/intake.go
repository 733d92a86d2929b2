package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/veridocs/reviewctl/internal/model"
	"github.com/veridocs/reviewctl/internal/workflow"
)

var intakeCmd = &cobra.Command{
	Use:   "intake <content-id>",
	Short: "Create a review record for a content item",
	Long:  "Registers a content item for review. The author declares AI assistance, system-of-record sources, and model/prompt/retrieval context up front.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initReadyStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ai, _ := cmd.Flags().GetString("ai")
		sources, _ := cmd.Flags().GetStringSlice("source")
		risk, _ := cmd.Flags().GetString("risk")
		modelID, _ := cmd.Flags().GetString("model")
		promptVersion, _ := cmd.Flags().GetString("prompt-version")
		retrieval, _ := cmd.Flags().GetString("retrieval-context")
		author, _ := cmd.Flags().GetString("author")

		eng := newEngine(st)
		rec, err := eng.Intake(ctx, workflow.IntakeParams{
			ContentID:        args[0],
			AIAssist:         model.AssistMode(ai),
			Sources:          sources,
			RiskLevel:        model.RiskLevel(risk),
			Model:            modelID,
			PromptVersion:    promptVersion,
			RetrievalContext: retrieval,
			Author:           author,
		})
		if err != nil {
			return eris.Wrap(err, "intake")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

func init() {
	intakeCmd.Flags().String("ai", "", "AI assistance mode (full, partial, none)")
	intakeCmd.Flags().StringSlice("source", nil, "system-of-record reference (repeatable)")
	intakeCmd.Flags().String("risk", "", "risk level (P0, P1, P2, P3)")
	intakeCmd.Flags().String("model", "", "model identifier used to draft the content")
	intakeCmd.Flags().String("prompt-version", "", "prompt version used to draft the content")
	intakeCmd.Flags().String("retrieval-context", "", "retrieval context reference (repo@commit, snapshot id)")
	intakeCmd.Flags().String("author", "", "author identity")
	rootCmd.AddCommand(intakeCmd)
}
