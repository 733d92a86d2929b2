package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/veridocs/reviewctl/internal/model"
)

var riskCmd = &cobra.Command{
	Use:   "risk <record-id> <level>",
	Short: "Change a record's risk level",
	Long:  "Sets the record's risk level and attaches the matching advisory SLA deadline. Escalation is always allowed; a downgrade requires --justification.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initReadyStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		justification, _ := cmd.Flags().GetString("justification")
		actor, _ := cmd.Flags().GetString("actor")

		eng := newEngine(st)
		rec, err := eng.SetRisk(ctx, args[0], model.RiskLevel(args[1]), justification, actor)
		if err != nil {
			return eris.Wrap(err, "risk")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

func init() {
	riskCmd.Flags().String("justification", "", "reason for a risk downgrade")
	riskCmd.Flags().String("actor", "", "identity of the actor")
	rootCmd.AddCommand(riskCmd)
}
