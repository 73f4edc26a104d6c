package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ahjlabs/fireline/internal/aireview"
	"github.com/ahjlabs/fireline/internal/archive"
	"github.com/ahjlabs/fireline/internal/closeout"
	"github.com/ahjlabs/fireline/internal/config"
	"github.com/ahjlabs/fireline/internal/documents"
	"github.com/ahjlabs/fireline/internal/httpapi"
	"github.com/ahjlabs/fireline/internal/metrics"
	"github.com/ahjlabs/fireline/internal/notify"
	"github.com/ahjlabs/fireline/internal/permit"
	"github.com/ahjlabs/fireline/internal/printer"
	"github.com/ahjlabs/fireline/internal/signatures"
	"github.com/ahjlabs/fireline/pkg/ledger"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the permit ledger HTTP API configured by fireline.yml. The server
shuts down gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "fireline.yml", "Path to configuration file")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}
	if cfg.Server == nil {
		return printer.Error("Server section missing",
			"The serve command needs a server section in the configuration.",
			[]string{"Add server.addr and server.jwt_signing_key to " + serveConfigPath})
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return err
	}
	client, err := ledger.NewClient(opts, cfg.Instance)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		return printer.Error("Cannot reach Redis",
			"The ledger backend is not responding.",
			[]string{"Check redis.url in " + serveConfigPath, "Verify the Redis server is running"})
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	svc := permit.NewService(client, client, aireview.NewAnalyzer(), m)

	sigs := signatures.NewLocalManager().
		WithTTL(time.Duration(*cfg.Closeout.SignatureExpiryDays) * 24 * time.Hour)
	engine := closeout.NewEngine(client, svc,
		documents.NewLocalManager(), sigs,
		closeout.Config{
			DocumentDeadlineDays:    *cfg.Closeout.DocumentDeadlineDays,
			ComplexCostThreshold:    *cfg.Closeout.ComplexCostThreshold,
			ManualReviewCostCeiling: *cfg.Closeout.ManualReviewCostCeiling,
			RiskOverrides:           cfg.Closeout.TypedRiskOverrides(),
		},
		closeout.WithPublisher(client),
		closeout.WithNotifier(notify.NewLogSender()),
		closeout.WithArchiver(archive.NewRedisStore(client.Redis(), cfg.Instance)),
		closeout.WithMetrics(m),
	)

	api := httpapi.NewServer(svc, engine, []byte(cfg.Server.JWTSigningKey), registry)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		printer.Step("Serving on %s (instance: %s)\n", cfg.Server.Addr, cfg.Instance)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-sigCh:
		printer.Println()
		printer.Step("Shutting down\n")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}

	printer.Success("Server stopped\n")
	return nil
}
