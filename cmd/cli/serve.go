package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/redforge/riskscan/internal/api"
	"github.com/redforge/riskscan/internal/config"
	"github.com/redforge/riskscan/internal/health"
	"github.com/redforge/riskscan/internal/identity"
	"github.com/redforge/riskscan/internal/logging"
	"github.com/redforge/riskscan/internal/metrics"
	"github.com/redforge/riskscan/internal/scanning"
	"github.com/redforge/riskscan/internal/scans"
	"github.com/redforge/riskscan/internal/schedule"
	"github.com/redforge/riskscan/internal/store"
	"github.com/redforge/riskscan/internal/workers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the riskscan API server",
	Long: `Start the REST API server with the scan worker pool, the recurring
scan scheduler, and Prometheus metrics. The server runs until it
receives SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	resolver, err := scanning.NewDNSResolver(cfg.Scanning.DNSTimeout)
	if err != nil {
		logging.Warn("DNS resolver unavailable, hostname targets will be rejected", "error", err)
		resolver = nil
	}

	var validatorResolver scanning.Resolver
	if resolver != nil {
		validatorResolver = resolver
	}
	validator := scanning.NewValidator(validatorResolver)
	executor := scanning.NewExecutor(cfg.Scanning.Binary, validator)

	pool := workers.New(cfg.Workers)
	pool.Start()
	defer func() {
		if err := pool.Shutdown(); err != nil {
			logging.Error("worker pool shutdown failed", "error", err)
		}
	}()

	service := scans.NewService(st, validator, executor, pool)

	var scheduler *schedule.Scheduler
	if cfg.Schedule.Enabled {
		scheduler = schedule.New(st, service)
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
		defer scheduler.Stop()
	}

	if cfg.Metrics.Enabled {
		go metrics.Global().StartPeriodicUpdates(ctx, cfg.Metrics.SystemInterval)
	}

	checker := health.NewChecker(executor, st, validatorResolver)

	server := api.NewServer(cfg.Server, api.Dependencies{
		Scans:     service,
		Scheduler: scheduler,
		Checker:   checker,
		Resolver:  buildResolver(cfg),
		Version:   versionString(),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info("shutdown signal received")
	if err := server.Stop(context.Background()); err != nil {
		logging.Error("server shutdown failed", "error", err)
	}
	return nil
}

// openStore builds the configured store backend.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		st, err := store.NewPostgresStore(ctx, cfg.Store.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return st, nil
	default:
		return store.NewMemoryStore(), nil
	}
}

// buildResolver chains the configured authentication methods. API keys
// are checked first, bearer tokens second.
func buildResolver(cfg *config.Config) identity.Resolver {
	var resolvers []identity.Resolver
	if len(cfg.Identity.APIKeys) > 0 {
		resolvers = append(resolvers, identity.NewAPIKeyResolver(cfg.Identity.APIKeys))
	}
	if cfg.Identity.JWT.JWKSURL != "" {
		resolvers = append(resolvers, identity.NewJWTResolver(cfg.Identity.JWT))
	}
	return identity.NewChainResolver(resolvers...)
}
