package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ahjlabs/fireline/internal/documents"
	"github.com/ahjlabs/fireline/internal/printer"
	"github.com/ahjlabs/fireline/pkg/ledger"
)

var closeoutCmd = &cobra.Command{
	Use:   "closeout",
	Short: "Manage permit closeout",
	Long: `Drive the closeout workflow for an approved permit: initiate after
the final inspection, upload required documents, collect signatures and
close.`,
}

var (
	closeoutInitBy        string
	closeoutInitInspector string
	closeoutInitNotes     string
)

var closeoutInitCmd = &cobra.Command{
	Use:   "init <permit-id>",
	Short: "Initiate closeout after an approved final inspection",
	Args:  cobra.ExactArgs(1),
	RunE:  runCloseoutInit,
}

var closeoutUploadBy string

var closeoutUploadCmd = &cobra.Command{
	Use:   "upload <permit-id> <document-type> <file>",
	Short: "Upload a required closeout document",
	Long: `Upload a closeout document. When the upload completes the required
set, signature requests are issued automatically.

Document types: acceptance_card, as_built, test_reports,
commissioning_reports, safety_data_sheets, emergency_procedures.`,
	Args: cobra.ExactArgs(3),
	RunE: runCloseoutUpload,
}

var (
	signEmail   string
	signLicense string
	signCerts   []string
)

var closeoutSignCmd = &cobra.Command{
	Use:   "sign <signature-id> <signature-file>",
	Short: "Submit a signature for a pending request",
	Args:  cobra.ExactArgs(2),
	RunE:  runCloseoutSign,
}

var (
	closeBy    string
	closeNotes string
)

var closeoutCloseCmd = &cobra.Command{
	Use:   "close <permit-id>",
	Short: "Close a permit after review",
	Args:  cobra.ExactArgs(1),
	RunE:  runCloseoutClose,
}

var (
	rejectBy     string
	rejectReason string
)

var closeoutRejectCmd = &cobra.Command{
	Use:   "reject <permit-id>",
	Short: "Reject a closeout",
	Args:  cobra.ExactArgs(1),
	RunE:  runCloseoutReject,
}

var closeoutStatusCmd = &cobra.Command{
	Use:   "status <permit-id>",
	Short: "Show closeout progress and the next action",
	Args:  cobra.ExactArgs(1),
	RunE:  runCloseoutStatus,
}

func init() {
	closeoutInitCmd.Flags().StringVar(&closeoutInitBy, "by", "", "Initiator name (required)")
	closeoutInitCmd.Flags().StringVar(&closeoutInitInspector, "inspector", "", "Inspector who approved the final inspection (required)")
	closeoutInitCmd.Flags().StringVar(&closeoutInitNotes, "notes", "", "Inspection notes")
	closeoutInitCmd.MarkFlagRequired("by")
	closeoutInitCmd.MarkFlagRequired("inspector")

	closeoutUploadCmd.Flags().StringVar(&closeoutUploadBy, "by", "", "Uploader name (required)")
	closeoutUploadCmd.MarkFlagRequired("by")

	closeoutSignCmd.Flags().StringVar(&signEmail, "email", "", "Signer email (required)")
	closeoutSignCmd.Flags().StringVar(&signLicense, "license", "", "Signer license number")
	closeoutSignCmd.Flags().StringSliceVar(&signCerts, "cert", nil, "Signer certification (repeatable)")
	closeoutSignCmd.MarkFlagRequired("email")

	closeoutCloseCmd.Flags().StringVar(&closeBy, "by", "", "Closer name (required)")
	closeoutCloseCmd.Flags().StringVar(&closeNotes, "notes", "", "Closure notes")
	closeoutCloseCmd.MarkFlagRequired("by")

	closeoutRejectCmd.Flags().StringVar(&rejectBy, "by", "", "Rejector name (required)")
	closeoutRejectCmd.Flags().StringVar(&rejectReason, "reason", "", "Rejection reason")
	closeoutRejectCmd.MarkFlagRequired("by")

	closeoutCmd.AddCommand(closeoutInitCmd, closeoutUploadCmd, closeoutSignCmd,
		closeoutCloseCmd, closeoutRejectCmd, closeoutStatusCmd)
	rootCmd.AddCommand(closeoutCmd)
}

func runCloseoutInit(cmd *cobra.Command, args []string) error {
	client, err := newLedgerClient()
	if err != nil {
		return err
	}
	defer client.Close()

	record, err := newEngine(client).InitiateCloseout(context.Background(), args[0], closeoutInitBy, ledger.InspectionResults{
		Approved:    true,
		Inspector:   closeoutInitInspector,
		CompletedAt: time.Now().UTC(),
		Notes:       closeoutInitNotes,
	})
	if err != nil {
		return printer.FaultError("Failed to initiate closeout", err)
	}

	printer.Success("Closeout initiated for permit %s (risk: %s)\n", record.PermitID, record.RiskClass)
	printer.Info("  required documents (due %s):\n", record.DocumentDeadline.Format("2006-01-02"))
	for _, docType := range record.RequiredDocuments {
		printer.Info("    - %s\n", docType)
	}
	return nil
}

func runCloseoutUpload(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[2])
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	client, err := newLedgerClient()
	if err != nil {
		return err
	}
	defer client.Close()

	record, err := newEngine(client).UploadDocument(context.Background(), args[0], ledger.DocumentType(args[1]), documents.File{
		Name:    filepath.Base(args[2]),
		Content: content,
	}, closeoutUploadBy)
	if err != nil {
		return printer.FaultError("Failed to upload document", err)
	}

	doc := record.DocumentByType(ledger.DocumentType(args[1]))
	printer.Success("Uploaded %s (%s, completeness %d%%)\n", doc.Type, doc.Status, doc.Verification.Completeness.Score)
	printer.Info("Closeout status: %s\n", printer.CloseoutBadge(record.Status))

	if record.Status == ledger.CloseoutPendingSignatures {
		printer.Println()
		printer.Println("Signature requests issued:")
		for _, sig := range record.Signatures {
			printer.Info("  %s  %-10s %s (expires %s)\n",
				sig.SignatureID, sig.Role, sig.Signer.Email, sig.ExpiresAt.Format("2006-01-02"))
		}
	}
	return nil
}

func runCloseoutSign(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read signature file: %w", err)
	}

	client, err := newLedgerClient()
	if err != nil {
		return err
	}
	defer client.Close()

	record, err := newEngine(client).ProcessSignature(context.Background(), args[0], data, ledger.SignerCredentials{
		Email:          signEmail,
		LicenseNumber:  signLicense,
		Certifications: signCerts,
	})
	if err != nil {
		return printer.FaultError("Failed to process signature", err)
	}

	entry := record.SignatureByID(args[0])
	if entry.Status == ledger.SignatureVerified {
		printer.Success("Signature %s verified\n", entry.SignatureID)
	} else {
		printer.Warning("Signature %s %s: %s\n", entry.SignatureID, entry.Status, entry.Reason)
	}
	printer.Info("Closeout status: %s\n", printer.CloseoutBadge(record.Status))
	return nil
}

func runCloseoutClose(cmd *cobra.Command, args []string) error {
	client, err := newLedgerClient()
	if err != nil {
		return err
	}
	defer client.Close()

	record, err := newEngine(client).ClosePermit(context.Background(), args[0], closeBy, closeNotes)
	if err != nil {
		return printer.FaultError("Cannot close permit", err)
	}

	printer.Success("Permit %s closed\n", record.PermitID)
	if record.Certificate != nil {
		printer.Info("  certificate: %s\n", record.Certificate.CertificateID)
	}
	return nil
}

func runCloseoutReject(cmd *cobra.Command, args []string) error {
	client, err := newLedgerClient()
	if err != nil {
		return err
	}
	defer client.Close()

	record, err := newEngine(client).RejectCloseout(context.Background(), args[0], rejectBy, rejectReason)
	if err != nil {
		return printer.FaultError("Failed to reject closeout", err)
	}

	printer.Warning("Closeout for permit %s rejected\n", record.PermitID)
	return nil
}

func runCloseoutStatus(cmd *cobra.Command, args []string) error {
	client, err := newLedgerClient()
	if err != nil {
		return err
	}
	defer client.Close()

	progress, err := newEngine(client).Status(context.Background(), args[0])
	if err != nil {
		return printer.FaultError("Failed to fetch closeout status", err)
	}

	printer.Printf("Closeout:    %s\n", progress.CloseoutID)
	printer.Printf("Status:      %s (%d%%)\n", printer.CloseoutBadge(progress.Status), progress.PercentComplete)
	printer.Printf("Risk class:  %s\n", progress.RiskClass)
	printer.Printf("Documents:   %d/%d verified (due %s)\n",
		progress.VerifiedDocuments, progress.RequiredDocuments, progress.DocumentDeadline.Format("2006-01-02"))
	printer.Printf("Signatures:  %d pending\n", progress.PendingSignatures)
	printer.Printf("Next action: %s\n", progress.NextAction)
	if progress.EstimatedCompletion != nil {
		printer.Printf("Estimated:   %s\n", progress.EstimatedCompletion.Format("2006-01-02"))
	}

	if len(progress.Milestones) > 0 {
		printer.Println()
		printer.Println("Timeline:")
		for _, m := range progress.Milestones {
			printer.Printf("  %s  %s\n", m.At.Format("2006-01-02 15:04"), m.Name)
		}
	}
	return nil
}
