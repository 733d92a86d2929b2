package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/veridocs/reviewctl/internal/model"
)

var approveCmd = &cobra.Command{
	Use:   "approve <record-id>",
	Short: "Record a role sign-off on a record",
	Long:  "Records an editorial or SME approval. Publishing requires one of each; approving the same role twice replaces the earlier sign-off.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initReadyStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		role, _ := cmd.Flags().GetString("role")
		approver, _ := cmd.Flags().GetString("as")
		if role == "" || approver == "" {
			return eris.New("approve: --role and --as are required")
		}

		eng := newEngine(st)
		rec, err := eng.Approve(ctx, args[0], model.Role(role), approver)
		if err != nil {
			return eris.Wrap(err, "approve")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

func init() {
	approveCmd.Flags().String("role", "", "approving role (editor, sme)")
	approveCmd.Flags().String("as", "", "approver identity")
	rootCmd.AddCommand(approveCmd)
}
