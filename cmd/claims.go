package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/veridocs/reviewctl/internal/draft"
	"github.com/veridocs/reviewctl/internal/model"
)

var claimsCmd = &cobra.Command{
	Use:   "claims",
	Short: "Manage claim annotations on a record",
	Long:  "Commands for listing, adding, marking, escalating, and drafting the factual claims attached to a review record.",
}

// -- claims list --

var claimsListCmd = &cobra.Command{
	Use:   "list <record-id>",
	Short: "List the claims on a record",
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
			return eris.Wrap(err, "claims list")
		}

		if len(rec.Claims) == 0 {
			fmt.Fprintln(os.Stderr, "No claims on record.")
			return nil
		}

		formatClaims(os.Stdout, rec.Claims)
		return nil
	},
}

// -- claims add --

var claimsAddCmd = &cobra.Command{
	Use:   "add <record-id> <text>",
	Short: "Attach a claim annotation to a record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initReadyStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		citation, _ := cmd.Flags().GetString("citation")
		severity, _ := cmd.Flags().GetString("severity")
		actor, _ := cmd.Flags().GetString("actor")

		eng := newEngine(st)
		rec, err := eng.AddClaim(ctx, args[0], args[1], citation, model.RiskLevel(severity), actor)
		if err != nil {
			return eris.Wrap(err, "claims add")
		}

		formatClaims(os.Stdout, rec.Claims)
		return nil
	},
}

// -- claims mark --

var claimsMarkCmd = &cobra.Command{
	Use:   "mark <record-id> <claim-id> <status>",
	Short: "Mark a claim verified, unclear, or incorrect",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initReadyStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		citation, _ := cmd.Flags().GetString("citation")
		actor, _ := cmd.Flags().GetString("actor")

		eng := newEngine(st)
		rec, err := eng.MarkClaim(ctx, args[0], args[1], model.ClaimStatus(args[2]), citation, actor)
		if err != nil {
			return eris.Wrap(err, "claims mark")
		}

		formatClaims(os.Stdout, rec.Claims)
		return nil
	},
}

// -- claims escalate --

var claimsEscalateCmd = &cobra.Command{
	Use:   "escalate <record-id> <claim-id>",
	Short: "Escalate a high-severity claim for SME attention",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initReadyStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		actor, _ := cmd.Flags().GetString("actor")

		eng := newEngine(st)
		rec, err := eng.EscalateClaim(ctx, args[0], args[1], actor)
		if err != nil {
			return eris.Wrap(err, "claims escalate")
		}

		formatClaims(os.Stdout, rec.Claims)
		return nil
	},
}

// -- claims draft --

var claimsDraftCmd = &cobra.Command{
	Use:   "draft <record-id>",
	Short: "Draft candidate claims from the content with a model",
	Long:  "Extracts candidate factual claims from the record's content file and attaches them. Drafted claims always start unclear; a human marks each one.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.Anthropic.Key == "" {
			return eris.New("claims draft: anthropic.key not configured")
		}

		st, err := initReadyStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		actor, _ := cmd.Flags().GetString("actor")

		rec, err := st.GetRecord(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "claims draft")
		}

		raw, err := os.ReadFile(filepath.Join(cfg.Checks.ContentDir, filepath.FromSlash(rec.ContentID)))
		if err != nil {
			return eris.Wrapf(err, "claims draft: read content %s", rec.ContentID)
		}

		drafter := draft.New(draft.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
		claims, err := drafter.DraftClaims(ctx, string(raw))
		if err != nil {
			return eris.Wrap(err, "claims draft")
		}

		eng := newEngine(st)
		for _, c := range claims {
			rec, err = eng.AddClaim(ctx, rec.ID, c.Text, "", "", actor)
			if err != nil {
				return eris.Wrap(err, "claims draft")
			}
		}

		fmt.Fprintf(os.Stderr, "Drafted %d claims.\n", len(claims))
		formatClaims(os.Stdout, rec.Claims)
		return nil
	},
}

func init() {
	claimsAddCmd.Flags().String("citation", "", "system-of-record citation for the claim")
	claimsAddCmd.Flags().String("severity", "", "claim severity (P0, P1, P2, P3)")
	claimsAddCmd.Flags().String("actor", "", "identity of the reviewer")

	claimsMarkCmd.Flags().String("citation", "", "system-of-record citation backing the mark")
	claimsMarkCmd.Flags().String("actor", "", "identity of the reviewer")

	claimsEscalateCmd.Flags().String("actor", "", "identity of the reviewer")
	claimsDraftCmd.Flags().String("actor", "", "identity of the reviewer")

	claimsCmd.AddCommand(claimsListCmd)
	claimsCmd.AddCommand(claimsAddCmd)
	claimsCmd.AddCommand(claimsMarkCmd)
	claimsCmd.AddCommand(claimsEscalateCmd)
	claimsCmd.AddCommand(claimsDraftCmd)
	rootCmd.AddCommand(claimsCmd)
}

// formatClaims writes a tabular list of claims to out.
func formatClaims(out io.Writer, claims []model.ClaimAnnotation) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSEVERITY\tESCALATED\tCITATION\tTEXT")
	_, _ = fmt.Fprintln(w, "--\t------\t--------\t---------\t--------\t----")

	for _, c := range claims {
		text := c.Text
		if len(text) > 50 {
			text = text[:47] + "..."
		}
		citation := c.Citation
		if len(citation) > 30 {
			citation = citation[:27] + "..."
		}
		escalated := ""
		if c.Escalated {
			escalated = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(c.ID),
			c.Status,
			c.Severity,
			escalated,
			citation,
			text,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
