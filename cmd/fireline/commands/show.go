package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ahjlabs/fireline/internal/printer"
	"github.com/ahjlabs/fireline/pkg/ledger"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show <permit-id>",
	Short: "Show a permit",
	Long: `Display a permit's current state. The permit ID may be abbreviated
to any unique prefix of at least 3 characters.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
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

	p, err := newService(client).ReadPermit(ctx, permitID)
	if err != nil {
		return printer.FaultError("Failed to fetch permit", err)
	}

	if showJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}

	printer.Printf("Permit:      %s (%s)\n", p.PermitID, p.PermitType)
	printer.Printf("Status:      %s\n", printer.StatusBadge(p.Status))
	printer.Printf("Applicant:   %s <%s>\n", p.Applicant.Name, p.Applicant.Email)
	printer.Printf("Property:    %s (cost %.2f)\n", p.Property.Address, p.Property.ProjectCost)
	printer.Printf("Version:     %d (redlined: %v)\n", p.Version, p.IsRedlined)
	printer.Printf("Fees:        total %.2f, paid %v\n", p.Fees.TotalAmount, p.Fees.Paid)
	printer.Printf("Expires:     %s\n", p.ExpirationDate.Format("2006-01-02"))

	if len(p.Reviewers) > 0 {
		printer.Println()
		printer.Println("Reviews:")
		lanes := make([]string, 0, len(p.Reviewers))
		for lane := range p.Reviewers {
			lanes = append(lanes, string(lane))
		}
		sort.Strings(lanes)
		for _, lane := range lanes {
			entry := p.Reviewers[ledger.ReviewLane(lane)]
			line := fmt.Sprintf("  %-12s %-12s %s", lane, entry.Decision, entry.Reviewer)
			if entry.Comments != "" {
				line += fmt.Sprintf("  (%s)", entry.Comments)
			}
			printer.Println(line)
		}
	}

	if p.AIReview != nil {
		printer.Println()
		printer.Printf("AI review:   score %.0f, confidence %.0f%%, model %s\n",
			p.AIReview.Score, p.AIReview.Confidence*100, p.AIReview.ModelVersion)
	}

	return nil
}
