package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ahjlabs/fireline/internal/aireview"
	"github.com/ahjlabs/fireline/internal/archive"
	"github.com/ahjlabs/fireline/internal/closeout"
	"github.com/ahjlabs/fireline/internal/documents"
	"github.com/ahjlabs/fireline/internal/notify"
	"github.com/ahjlabs/fireline/internal/permit"
	"github.com/ahjlabs/fireline/internal/printer"
	"github.com/ahjlabs/fireline/internal/resolver"
	"github.com/ahjlabs/fireline/internal/signatures"
	"github.com/ahjlabs/fireline/pkg/ledger"
)

var (
	version string
	commit  string
	date    string

	redisURL     string
	instanceName string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fireline",
	Short: "Fireline - Fire-safety permit ledger",
	Long: `Fireline tracks fire-safety permits from application through review,
approval and closeout on a Redis-backed ledger.

Every write is an optimistic-concurrency commit with a full revision
history, and every committed change publishes a domain event.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis-url", "", "Redis URL (defaults to REDIS_URL env or redis://localhost:6379)")
	rootCmd.PersistentFlags().StringVar(&instanceName, "instance", "", "Instance name (defaults to FIRELINE_INSTANCE_NAME env or 'default')")
}

// resolveRedisURL applies the flag > env > default precedence.
func resolveRedisURL() string {
	if redisURL != "" {
		return redisURL
	}
	if env := os.Getenv("REDIS_URL"); env != "" {
		return env
	}
	return "redis://localhost:6379"
}

// resolveInstanceName applies the flag > env > default precedence.
func resolveInstanceName() string {
	if instanceName != "" {
		return instanceName
	}
	if env := os.Getenv("FIRELINE_INSTANCE_NAME"); env != "" {
		return env
	}
	return "default"
}

// newLedgerClient connects to the Redis ledger for the resolved instance.
func newLedgerClient() (*ledger.Client, error) {
	opts, err := redis.ParseURL(resolveRedisURL())
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return ledger.NewClient(opts, resolveInstanceName())
}

// resolvePermitArg expands a permit ID argument, accepting unique prefixes
// so `fireline show PERMIT-0` works when only one permit matches.
func resolvePermitArg(ctx context.Context, client *ledger.Client, arg string) (string, error) {
	permitID, err := resolver.ResolvePermitID(ctx, client, arg)
	if err != nil {
		var ambiguous *resolver.AmbiguousError
		if errors.As(err, &ambiguous) {
			fmt.Fprintln(os.Stderr, resolver.FormatAmbiguousError(ambiguous))
			return "", fmt.Errorf("ambiguous permit ID '%s'", arg)
		}
		if resolver.IsNotFoundError(err) {
			return "", printer.Error("Permit not found", err.Error(), []string{
				"Check the permit ID with 'fireline list --status <status>'",
			})
		}
		return "", err
	}
	return permitID, nil
}

// newService builds a permit service over the client.
func newService(client *ledger.Client) *permit.Service {
	return permit.NewService(client, client, aireview.NewAnalyzer(), nil)
}

// newEngine builds a closeout engine over the client with the default
// thresholds and collaborators.
func newEngine(client *ledger.Client) *closeout.Engine {
	return closeout.NewEngine(
		client,
		newService(client),
		documents.NewLocalManager(),
		signatures.NewLocalManager(),
		closeout.DefaultConfig(),
		closeout.WithPublisher(client),
		closeout.WithNotifier(notify.NewLogSender()),
		closeout.WithArchiver(archive.NewRedisStore(client.Redis(), resolveInstanceName())),
	)
}
