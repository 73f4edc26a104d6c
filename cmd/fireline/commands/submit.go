package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ahjlabs/fireline/internal/permit"
	"github.com/ahjlabs/fireline/internal/printer"
	"github.com/ahjlabs/fireline/pkg/ledger"
)

var (
	submitName   string
	submitReason string
)

var submitCmd = &cobra.Command{
	Use:   "submit <permit-id>",
	Short: "Submit a draft permit for review",
	Long: `Move a DRAFT permit to SUBMITTED. Shorthand for
'fireline review <permit-id> SUBMITTED'.`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitName, "by", "", "Submitter name (required)")
	submitCmd.Flags().StringVar(&submitReason, "reason", "", "Reason recorded in the status history")
	submitCmd.MarkFlagRequired("by")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	client, err := newLedgerClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx := context.Background()
	permitID, err := resolvePermitArg(ctx, client, args[0])
	if err != nil {
		return err
	}

	p, err := newService(client).UpdateStatus(ctx, permitID, ledger.StatusSubmitted, permit.ReviewerInfo{
		Name:   submitName,
		Reason: submitReason,
	})
	if err != nil {
		return printer.FaultError("Failed to submit permit", err)
	}

	printer.Success("Permit %s is now %s\n", p.PermitID, printer.StatusBadge(p.Status))
	return nil
}
