package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veridocs/reviewctl/internal/model"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect and prune the review audit log",
}

// -- audit list --

var auditListCmd = &cobra.Command{
	Use:   "list <record-id>",
	Short: "List audit events for a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initReadyStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")

		events, err := st.ListAudit(ctx, args[0], limit)
		if err != nil {
			return eris.Wrap(err, "audit list")
		}

		if len(events) == 0 {
			fmt.Fprintln(os.Stderr, "No audit events.")
			return nil
		}

		formatAuditEvents(os.Stdout, events)
		return nil
	},
}

// -- audit add --

var auditAddCmd = &cobra.Command{
	Use:   "add <record-id> <text>",
	Short: "Append a comment or prompt context to the audit log",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initReadyStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		actor, _ := cmd.Flags().GetString("actor")
		asContext, _ := cmd.Flags().GetBool("context")

		eng := newEngine(st)
		if asContext {
			err = eng.RecordContext(ctx, args[0], actor, args[1])
		} else {
			err = eng.Comment(ctx, args[0], actor, args[1])
		}
		if err != nil {
			return eris.Wrap(err, "audit add")
		}
		return nil
	},
}

// -- audit purge --

var auditPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete audit events past the retention window",
	Long:  "Deletes audit events older than --older-than days. The window can never undercut the configured retention period; events inside it stay.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initReadyStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		days, _ := cmd.Flags().GetInt("older-than")
		if days == 0 {
			days = cfg.Audit.RetentionDays
		}
		if days < cfg.Audit.RetentionDays {
			return &model.RetentionViolationError{RetentionDays: cfg.Audit.RetentionDays}
		}

		cutoff := time.Now().UTC().AddDate(0, 0, -days)
		n, err := st.PurgeAudit(ctx, cutoff)
		if err != nil {
			return eris.Wrap(err, "audit purge")
		}

		zap.L().Info("audit log purged",
			zap.Int("deleted", n),
			zap.Time("cutoff", cutoff),
		)
		fmt.Printf("Purged %d audit events older than %s.\n", n, cutoff.Format("2006-01-02"))
		return nil
	},
}

func init() {
	auditListCmd.Flags().Int("limit", 100, "max number of events to display")
	auditAddCmd.Flags().String("actor", "", "identity of the author")
	auditAddCmd.Flags().Bool("context", false, "record as prompt/retrieval context instead of a comment")
	auditPurgeCmd.Flags().Int("older-than", 0, "purge events older than this many days (default: configured retention)")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditAddCmd)
	auditCmd.AddCommand(auditPurgeCmd)
	rootCmd.AddCommand(auditCmd)
}

// formatAuditEvents writes a tabular list of audit events to out.
func formatAuditEvents(out io.Writer, events []model.AuditEvent) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tKIND\tACTOR\tDETAIL")
	_, _ = fmt.Fprintln(w, "----\t----\t-----\t------")

	for _, ev := range events {
		detail := ev.Detail
		if len(detail) > 70 {
			detail = detail[:67] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			ev.CreatedAt.Format("2006-01-02 15:04:05"),
			ev.Kind,
			ev.Actor,
			detail,
		)
	}
	_ = w.Flush()
}
