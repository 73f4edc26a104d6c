package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ahjlabs/fireline/internal/printer"
	"github.com/ahjlabs/fireline/pkg/ledger"
)

var watchCloseoutOnly bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Tail ledger events",
	Long: `Stream domain events as they are published. Delivery is at-least-once;
duplicate event IDs may appear.

Examples:
  # Watch all events on the default instance
  fireline watch

  # Watch only closeout workflow events
  fireline watch --closeout`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchCloseoutOnly, "closeout", false, "Watch only closeout events")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	client, err := newLedgerClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subs := make([]*ledger.EventSubscription, 0, 2)

	closeoutSub, err := client.SubscribeCloseoutEvents(ctx)
	if err != nil {
		return printer.FaultError("Failed to subscribe", err)
	}
	subs = append(subs, closeoutSub)

	var permitEvents <-chan *ledger.Event
	var permitErrors <-chan error
	if !watchCloseoutOnly {
		permitSub, err := client.SubscribePermitEvents(ctx)
		if err != nil {
			return printer.FaultError("Failed to subscribe", err)
		}
		subs = append(subs, permitSub)
		permitEvents = permitSub.Events()
		permitErrors = permitSub.Errors()
	}
	defer func() {
		for _, sub := range subs {
			sub.Close()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	printer.Step("Watching instance %s (Ctrl-C to stop)\n", resolveInstanceName())

	for {
		select {
		case ev, ok := <-permitEvents:
			if !ok {
				return nil
			}
			printEvent(ev)
		case ev, ok := <-closeoutSub.Events():
			if !ok {
				return nil
			}
			printEvent(ev)
		case err := <-permitErrors:
			printer.Warning("subscription error: %v\n", err)
		case err := <-closeoutSub.Errors():
			printer.Warning("subscription error: %v\n", err)
		case <-sigCh:
			printer.Println()
			return nil
		}
	}
}

func printEvent(ev *ledger.Event) {
	printer.Printf("%s  %-24s %s", ev.Timestamp.Format("15:04:05"), ev.Type, ev.PermitID)
	for k, v := range ev.Payload {
		printer.Printf("  %s=%s", k, v)
	}
	printer.Println()
}
