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
	createApplicationID string
	createType          string
	createApplicant     string
	createEmail         string
	createAddress       string
	createCost          float64
	createNFPAFile      string
)

var createCmd = &cobra.Command{
	Use:   "create <permit-id>",
	Short: "Create a new permit in DRAFT",
	Long: `Create a new fire-safety permit. The permit starts in DRAFT with the
mandatory fire, building and electrical review lanes pending.

NFPA system data can be supplied as a JSON file:

  fireline create PERMIT-001 --application APP-001 --type FIRE_ALARM \
    --applicant "Jane Doe" --nfpa-data system.json`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVar(&createApplicationID, "application", "", "Application ID (required)")
	createCmd.Flags().StringVar(&createType, "type", "", "Permit type (required)")
	createCmd.Flags().StringVar(&createApplicant, "applicant", "", "Applicant name (required)")
	createCmd.Flags().StringVar(&createEmail, "email", "", "Applicant email")
	createCmd.Flags().StringVar(&createAddress, "address", "", "Property address")
	createCmd.Flags().Float64Var(&createCost, "cost", 0, "Project cost")
	createCmd.Flags().StringVar(&createNFPAFile, "nfpa-data", "", "Path to a JSON file of NFPA system data")
	createCmd.MarkFlagRequired("application")
	createCmd.MarkFlagRequired("type")
	createCmd.MarkFlagRequired("applicant")
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	permitID := args[0]

	var nfpa ledger.NFPAData
	if createNFPAFile != "" {
		data, err := os.ReadFile(createNFPAFile)
		if err != nil {
			return fmt.Errorf("failed to read NFPA data file: %w", err)
		}
		if err := json.Unmarshal(data, &nfpa); err != nil {
			return fmt.Errorf("failed to parse NFPA data: %w", err)
		}
	}

	client, err := newLedgerClient()
	if err != nil {
		return err
	}
	defer client.Close()

	p, err := newService(client).CreatePermit(context.Background(), permit.CreatePermitInput{
		PermitID:      permitID,
		ApplicationID: createApplicationID,
		PermitType:    ledger.PermitType(createType),
		Applicant: ledger.Applicant{
			Name:  createApplicant,
			Email: createEmail,
		},
		Property: ledger.Property{
			Address:     createAddress,
			ProjectCost: createCost,
		},
		NFPAData: nfpa,
	})
	if err != nil {
		return printer.FaultError("Failed to create permit", err)
	}

	printer.Success("Created permit %s (%s) in %s\n", p.PermitID, p.PermitType, printer.StatusBadge(p.Status))
	printer.Info("  expires: %s\n", p.ExpirationDate.Format("2006-01-02"))
	return nil
}
