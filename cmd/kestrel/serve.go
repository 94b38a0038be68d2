package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/opensource-finance/kestrel/internal/accumulator"
	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/costshare"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/formula"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/worker"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API (and the async worker when enabled)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host, _ = cmd.Flags().GetString("host")
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port, _ = cmd.Flags().GetInt("port")
			}
			if cmd.Flags().Changed("worker") {
				cfg.Worker.Enabled, _ = cmd.Flags().GetBool("worker")
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("host", "", "HTTP server host")
	cmd.Flags().Int("port", 0, "HTTP server port")
	cmd.Flags().Bool("worker", false, "run the async eligibility worker")
	return cmd
}

func runServe(parent context.Context, cfg *domain.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	if cfg.Tracing.Enabled {
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		slog.Info("trace propagation enabled", "service_name", cfg.Tracing.ServiceName)
	}

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Rule Engine and load stored rules
	engine, err := rules.NewEngine(cfg.Engine)
	if err != nil {
		return fmt.Errorf("failed to initialize rule engine: %w", err)
	}
	defer engine.Close()
	loadStoredRules(ctx, repo, engine, cfg.Worker.TenantIDs)

	formulas := formula.NewEvaluator(cfg.Engine)
	processor := decision.NewProcessor(formulas, repo, busImpl)

	// Initialize async Worker
	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, repo, engine)
		workerCfg := worker.Config{
			TenantIDs:   cfg.Worker.TenantIDs,
			WorkerCount: cfg.Worker.Concurrency,
		}
		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, api.Dependencies{
		Repo:         repo,
		Cache:        cacheImpl,
		Bus:          busImpl,
		Engine:       engine,
		Processor:    processor,
		Formulas:     formulas,
		Profiles:     costshare.NewProfiles(repo, cacheImpl, cfg.Cache.ProfileTTL),
		Accumulators: accumulator.NewService(repo),
		Version:      Version,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"tenants", len(engine.Tenants()),
	)

	// Wait for shutdown signal or server failure
	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case serveErr = <-errCh:
		slog.Error("server failed", "error", serveErr)
	}

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
	return serveErr
}

// loadStoredRules loads every tenant with stored rules plus the configured
// worker tenants. A tenant whose rules fail to load starts empty; rules can
// be fixed and reloaded through the API.
func loadStoredRules(ctx context.Context, repo domain.Repository, engine *rules.Engine, extra []string) {
	tenants, err := repo.ListRuleTenants(ctx)
	if err != nil {
		slog.Warn("failed to list rule tenants", "error", err)
	}
	for _, tenantID := range extra {
		if !slices.Contains(tenants, tenantID) {
			tenants = append(tenants, tenantID)
		}
	}

	if len(tenants) == 0 {
		slog.Info("no rules in database - configure via POST /rules API")
		return
	}

	for _, tenantID := range tenants {
		set, err := engine.Reload(ctx, repo, tenantID)
		if err != nil {
			slog.Error("failed to load rules",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		slog.Info("rules loaded",
			"tenant_id", tenantID,
			"rules_count", set.Len(),
			"skipped", set.Skipped,
		)
	}
}
