package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ahjlabs/fireline/internal/permit"
	"github.com/ahjlabs/fireline/internal/printer"
	"github.com/ahjlabs/fireline/pkg/ledger"
)

var (
	reviewLane     string
	reviewName     string
	reviewDecision string
	reviewComments string
	reviewPriority string
	reviewReason   string
)

var reviewCmd = &cobra.Command{
	Use:   "review <permit-id> <status>",
	Short: "Transition a permit and record a department review",
	Long: `Move a permit to a new status, optionally recording the reviewing
department's decision on the way.

Examples:
  # Submit a draft for review
  fireline review PERMIT-001 SUBMITTED --by "Jane Doe"

  # Approve with the fire department's sign-off
  fireline review PERMIT-001 APPROVED --lane fire --by "Fire Marshal" \
    --decision Approved --comments "Meets NFPA 72"`,
	Args: cobra.ExactArgs(2),
	RunE: runReview,
}

func init() {
	reviewCmd.Flags().StringVar(&reviewLane, "lane", "", "Review lane (fire, building, electrical, ...)")
	reviewCmd.Flags().StringVar(&reviewName, "by", "", "Reviewer name (required)")
	reviewCmd.Flags().StringVar(&reviewDecision, "decision", "", "Review decision (defaults to Reviewed when a lane is set)")
	reviewCmd.Flags().StringVar(&reviewComments, "comments", "", "Review comments")
	reviewCmd.Flags().StringVar(&reviewPriority, "priority", "", "Review priority (defaults to Medium)")
	reviewCmd.Flags().StringVar(&reviewReason, "reason", "", "Reason recorded in the status history")
	reviewCmd.MarkFlagRequired("by")
	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, args []string) error {
	client, err := newLedgerClient()
	if err != nil {
		return err
	}
	defer client.Close()

	p, err := newService(client).UpdateStatus(context.Background(), args[0], ledger.PermitStatus(args[1]), permit.ReviewerInfo{
		Lane:     ledger.ReviewLane(reviewLane),
		Name:     reviewName,
		Decision: ledger.ReviewDecision(reviewDecision),
		Comments: reviewComments,
		Priority: ledger.Priority(reviewPriority),
		Reason:   reviewReason,
	})
	if err != nil {
		return printer.FaultError("Failed to update permit status", err)
	}

	printer.Success("Permit %s is now %s\n", p.PermitID, printer.StatusBadge(p.Status))
	return nil
}
