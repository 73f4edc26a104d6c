package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ahjlabs/fireline/internal/printer"
)

var aiReviewCmd = &cobra.Command{
	Use:   "ai-review <permit-id>",
	Short: "Run the advisory automated review",
	Long: `Score the permit's NFPA data with the automated reviewer and record
the result. The review is advisory; it never changes permit status. A
repeat review overwrites the previous result.`,
	Args: cobra.ExactArgs(1),
	RunE: runAIReview,
}

func init() {
	rootCmd.AddCommand(aiReviewCmd)
}

func runAIReview(cmd *cobra.Command, args []string) error {
	client, err := newLedgerClient()
	if err != nil {
		return err
	}
	defer client.Close()

	p, err := newService(client).PerformAIReview(context.Background(), args[0])
	if err != nil {
		return printer.FaultError("Failed to run AI review", err)
	}

	review := p.AIReview
	printer.Success("AI review for %s: score %.0f (confidence %.0f%%)\n",
		p.PermitID, review.Score, review.Confidence*100)
	for _, finding := range review.Findings {
		printer.Warning("%s\n", finding)
	}
	for _, rec := range review.Recommendations {
		printer.Info("  recommend: %s\n", rec)
	}
	return nil
}
