package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ahjlabs/fireline/internal/permit"
	"github.com/ahjlabs/fireline/internal/printer"
)

var (
	payMethod  string
	payTxID    string
	payAmount  float64
	payBy      string
	payReceipt string
)

var payCmd = &cobra.Command{
	Use:   "pay <permit-id>",
	Short: "Record the permit fee payment",
	Long: `Record the single payment against a permit's fees. A second payment
attempt fails and leaves the recorded transaction untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: runPay,
}

func init() {
	payCmd.Flags().StringVar(&payMethod, "method", "card", "Payment method")
	payCmd.Flags().StringVar(&payTxID, "transaction", "", "Transaction ID (required)")
	payCmd.Flags().Float64Var(&payAmount, "amount", 0, "Payment amount")
	payCmd.Flags().StringVar(&payBy, "by", "", "Payer name")
	payCmd.Flags().StringVar(&payReceipt, "receipt", "", "Receipt number")
	payCmd.MarkFlagRequired("transaction")
	rootCmd.AddCommand(payCmd)
}

func runPay(cmd *cobra.Command, args []string) error {
	client, err := newLedgerClient()
	if err != nil {
		return err
	}
	defer client.Close()

	p, err := newService(client).ProcessPayment(context.Background(), args[0], permit.PaymentInfo{
		Method:        payMethod,
		TransactionID: payTxID,
		Amount:        payAmount,
		PaidBy:        payBy,
		ReceiptNumber: payReceipt,
	})
	if err != nil {
		return printer.FaultError("Failed to process payment", err)
	}

	printer.Success("Payment recorded for permit %s (total: %.2f, transaction: %s)\n",
		p.PermitID, p.Fees.TotalAmount, p.Fees.TransactionID)
	return nil
}
