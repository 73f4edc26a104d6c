package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/ahjlabs/fireline/internal/aireview"
	"github.com/ahjlabs/fireline/internal/archive"
	"github.com/ahjlabs/fireline/internal/closeout"
	"github.com/ahjlabs/fireline/internal/documents"
	"github.com/ahjlabs/fireline/internal/httpapi"
	"github.com/ahjlabs/fireline/internal/metrics"
	"github.com/ahjlabs/fireline/internal/notify"
	"github.com/ahjlabs/fireline/internal/permit"
	"github.com/ahjlabs/fireline/internal/signatures"
	"github.com/ahjlabs/fireline/pkg/ledger"
)

func main() {
	// 1. Load environment variables
	instanceName := os.Getenv("FIRELINE_INSTANCE_NAME")
	redisURL := os.Getenv("REDIS_URL")
	addr := os.Getenv("FIRELINE_ADDR")
	signingKey := os.Getenv("FIRELINE_JWT_SIGNING_KEY")

	if instanceName == "" || redisURL == "" {
		fmt.Fprintf(os.Stderr, "Error: FIRELINE_INSTANCE_NAME and REDIS_URL must be set\n")
		os.Exit(1)
	}
	if addr == "" {
		addr = ":8080"
	}
	if signingKey == "" {
		fmt.Fprintf(os.Stderr, "Error: FIRELINE_JWT_SIGNING_KEY must be set\n")
		os.Exit(1)
	}

	// 2. Parse Redis URL
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid REDIS_URL: %v\n", err)
		os.Exit(1)
	}

	// 3. Create ledger client
	client, err := ledger.NewClient(redisOpts, instanceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create ledger client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	// 4. Verify Redis connectivity
	ctx := context.Background()
	if err := client.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Redis not accessible: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("permitd starting for instance '%s' on %s\n", instanceName, addr)

	// 5. Wire the service, engine and HTTP API
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	svc := permit.NewService(client, client, aireview.NewAnalyzer(), m)
	engine := closeout.NewEngine(client, svc,
		documents.NewLocalManager(), signatures.NewLocalManager(),
		closeout.DefaultConfig(),
		closeout.WithPublisher(client),
		closeout.WithNotifier(notify.NewLogSender()),
		closeout.WithArchiver(archive.NewRedisStore(client.Redis(), instanceName)),
		closeout.WithMetrics(m),
	)

	api := httpapi.NewServer(svc, engine, []byte(signingKey), registry)

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 6. Setup graceful shutdown
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	// 7. Start the event audit watcher
	go auditEvents(runCtx, client)

	// 8. Start the HTTP server
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	// 9. Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		fmt.Printf("Received signal %v, shutting down gracefully...\n", sig)
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
			os.Exit(1)
		}
	case runErr := <-errCh:
		if runErr != nil && !errors.Is(runErr, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", runErr)
			os.Exit(1)
		}
	}

	fmt.Println("permitd stopped")
}

// auditEvents tails both event channels and logs every published event,
// giving operators a durable audit trail in the daemon log.
func auditEvents(ctx context.Context, client *ledger.Client) {
	permitSub, err := client.SubscribePermitEvents(ctx)
	if err != nil {
		log.Printf("[permitd] Failed to subscribe to permit events: %v", err)
		return
	}
	defer permitSub.Close()

	closeoutSub, err := client.SubscribeCloseoutEvents(ctx)
	if err != nil {
		log.Printf("[permitd] Failed to subscribe to closeout events: %v", err)
		return
	}
	defer closeoutSub.Close()

	for {
		select {
		case ev, ok := <-permitSub.Events():
			if !ok {
				return
			}
			log.Printf("[audit] %s %s %s", ev.Type, ev.PermitID, ev.ID)
		case ev, ok := <-closeoutSub.Events():
			if !ok {
				return
			}
			log.Printf("[audit] %s %s %s", ev.Type, ev.PermitID, ev.ID)
		case err := <-permitSub.Errors():
			log.Printf("[permitd] Permit event subscription error: %v", err)
		case err := <-closeoutSub.Errors():
			log.Printf("[permitd] Closeout event subscription error: %v", err)
		case <-ctx.Done():
			return
		}
	}
}
