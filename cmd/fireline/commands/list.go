package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ahjlabs/fireline/internal/printer"
	"github.com/ahjlabs/fireline/pkg/ledger"
)

var (
	listStatus string
	listType   string
	listJSON   bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List permits by status or type",
	Long: `List permits matching a status or type filter.

Examples:
  fireline list --status UNDER_REVIEW
  fireline list --type FIRE_ALARM --json`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by permit status")
	listCmd.Flags().StringVar(&listType, "type", "", "Filter by permit type")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	if (listStatus == "") == (listType == "") {
		return fmt.Errorf("exactly one of --status or --type is required")
	}

	client, err := newLedgerClient()
	if err != nil {
		return err
	}
	defer client.Close()

	svc := newService(client)
	ctx := context.Background()

	var permits []*ledger.Permit
	if listStatus != "" {
		permits, err = svc.QueryPermitsByStatus(ctx, ledger.PermitStatus(listStatus))
	} else {
		permits, err = svc.QueryPermitsByType(ctx, ledger.PermitType(listType))
	}
	if err != nil {
		return printer.FaultError("Failed to list permits", err)
	}

	if listJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(permits)
	}

	if len(permits) == 0 {
		printer.Println("No permits found.")
		return nil
	}

	table := tablewriter.NewTable(os.Stdout)
	table.Header("PERMIT ID", "TYPE", "STATUS", "APPLICANT", "VERSION", "PAID")
	for _, p := range permits {
		table.Append([]string{
			p.PermitID,
			string(p.PermitType),
			string(p.Status),
			p.Applicant.Name,
			fmt.Sprintf("%d", p.Version),
			fmt.Sprintf("%v", p.Fees.Paid),
		})
	}
	return table.Render()
}
