package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ahjlabs/fireline/internal/permit"
	"github.com/ahjlabs/fireline/internal/printer"
	"github.com/ahjlabs/fireline/pkg/ledger"
)

var (
	redlineBy     string
	redlineRole   string
	redlineReason string
)

var redlineCmd = &cobra.Command{
	Use:   "redline <permit-id> <nfpa-data.json>",
	Short: "Update a permit's NFPA data",
	Long: `Replace a permit's NFPA system data with the contents of a JSON file.
When the data actually changes, the permit is marked redlined, the field
level diff is recorded and the version bumps. Submitting identical data
records nothing.`,
	Args: cobra.ExactArgs(2),
	RunE: runRedline,
}

func init() {
	redlineCmd.Flags().StringVar(&redlineBy, "by", "", "Updater name (required)")
	redlineCmd.Flags().StringVar(&redlineRole, "role", "", "Updater role (ADMIN updates are self-approved)")
	redlineCmd.Flags().StringVar(&redlineReason, "reason", "", "Reason for the update")
	redlineCmd.MarkFlagRequired("by")
	rootCmd.AddCommand(redlineCmd)
}

func runRedline(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read NFPA data file: %w", err)
	}

	var nfpa ledger.NFPAData
	if err := json.Unmarshal(data, &nfpa); err != nil {
		return fmt.Errorf("failed to parse NFPA data: %w", err)
	}

	client, err := newLedgerClient()
	if err != nil {
		return err
	}
	defer client.Close()

	p, err := newService(client).UpdateNFPAData(context.Background(), args[0], nfpa, permit.UpdaterInfo{
		Name:   redlineBy,
		Role:   redlineRole,
		Reason: redlineReason,
	})
	if err != nil {
		return printer.FaultError("Failed to update NFPA data", err)
	}

	if p.IsRedlined && len(p.RedlineHistory) > 0 {
		last := p.RedlineHistory[len(p.RedlineHistory)-1]
		printer.Success("Permit %s updated to version %d (%d changes)\n", p.PermitID, p.Version, len(last.Changes))
		for _, change := range last.Changes {
			printer.Info("  %-12s %s: %s -> %s\n", change.ChangeType, change.Field, change.Old.Display(), change.New.Display())
		}
	} else {
		printer.Info("No changes detected for permit %s (version %d)\n", p.PermitID, p.Version)
	}
	return nil
}
