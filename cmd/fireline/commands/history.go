package commands

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/ahjlabs/fireline/internal/printer"
	"github.com/ahjlabs/fireline/internal/timespec"
)

var (
	historyJSON  bool
	historySince string
	historyUntil string
)

var historyCmd = &cobra.Command{
	Use:   "history <permit-id>",
	Short: "Show a permit's revision history",
	Long: `List every committed revision of a permit, oldest first. Replaying
the revisions in order reconstructs every intermediate state of the
record.

The --since and --until flags narrow the range. Both accept a Go
duration relative to now ("24h" means 24 hours ago) or an RFC3339
timestamp.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output in JSON format")
	historyCmd.Flags().StringVar(&historySince, "since", "", "Only show revisions committed after this time")
	historyCmd.Flags().StringVar(&historyUntil, "until", "", "Only show revisions committed before this time")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	since, until, err := timespec.ParseRange(historySince, historyUntil)
	if err != nil {
		return printer.Error("Invalid time range", err.Error(), []string{
			"Use a duration like '24h' or an RFC3339 timestamp like '2026-03-01T13:00:00Z'",
		})
	}

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

	revisions, err := newService(client).GetPermitHistory(ctx, permitID)
	if err != nil {
		return printer.FaultError("Failed to fetch permit history", err)
	}

	filtered := revisions[:0]
	for _, rev := range revisions {
		if timespec.InRange(rev.Timestamp, since, until) {
			filtered = append(filtered, rev)
		}
	}

	if historyJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(filtered)
	}

	for _, rev := range filtered {
		printer.Printf("seq %-4d %s  tx %s\n", rev.Permit.Seq, rev.Timestamp.Format("2006-01-02 15:04:05"), rev.TxID)
		printer.Printf("         status %s, version %d\n", rev.Permit.Status, rev.Permit.Version)
	}
	printer.Printf("\n%d revisions\n", len(filtered))
	return nil
}
