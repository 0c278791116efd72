package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/alis-tech/crm-invoice-sync/internal/config"
	"github.com/alis-tech/crm-invoice-sync/internal/crm"
	"github.com/alis-tech/crm-invoice-sync/internal/espo"
	"github.com/alis-tech/crm-invoice-sync/internal/httpapi"
	"github.com/alis-tech/crm-invoice-sync/internal/invoice"
	"github.com/alis-tech/crm-invoice-sync/internal/reconcile"
	"github.com/alis-tech/crm-invoice-sync/internal/resolver"
	"github.com/alis-tech/crm-invoice-sync/internal/sync"
	"github.com/alis-tech/crm-invoice-sync/internal/worker"
	"github.com/alis-tech/crm-invoice-sync/pkg/utils"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "syncd",
		Short: "Migrates legacy CRM sales orders into invoices in the new CRM",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "path to config file")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the sync loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "once",
		Short: "Run a single sync cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce()
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap loads the environment, configuration and logger, and wires the
// whole sync graph.
func bootstrap() (*config.Config, *zap.Logger, *worker.SyncWorker, error) {
	// .env is optional; credentials may come from the real environment.
	gotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		ErrorLogPath: cfg.Logger.ErrorLogPath,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initialize logger: %w", err)
	}

	oldClient := espo.NewClient(espo.Config{
		BaseURL: cfg.OldCRM.BaseURL,
		APIKey:  cfg.OldCRM.APIKey,
		Timeout: cfg.OldCRM.Timeout,
	}, logger.Named("old_crm"))
	newClient := espo.NewClient(espo.Config{
		BaseURL: cfg.NewCRM.BaseURL,
		APIKey:  cfg.NewCRM.APIKey,
		Timeout: cfg.NewCRM.Timeout,
	}, logger.Named("new_crm"))

	legacy := crm.NewLegacyStore(oldClient, cfg.Sync.PageSize)
	target := crm.NewTargetStore(newClient, cfg.Sync.PageSize)

	companyResolver := resolver.New(target, cfg.Sync.FuzzyThreshold, logger)
	builder := invoice.NewBuilder(target, cfg.Sync.AssignedUserID, cfg.Sync.TaxRates, logger)
	reconciler := reconcile.New(target, legacy, cfg.Sync.ReconcileDelay, logger)

	pipeline := sync.NewPipeline(
		legacy,
		companyResolver,
		builder,
		reconciler,
		cfg.Sync.CreatedAfter,
		cfg.Sync.InvoiceURLTemplate,
		logger,
	)

	backoff := sync.NewBackoff(cfg.Backoff.Base, cfg.Backoff.Cap)
	syncWorker := worker.NewSyncWorker(pipeline, backoff, cfg.Sync.CycleInterval, logger)

	return cfg, logger, syncWorker, nil
}

func run() error {
	cfg, logger, syncWorker, err := bootstrap()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return err
	}
	defer logger.Sync()

	logger.Info("Starting CRM invoice sync",
		zap.String("old_crm", cfg.OldCRM.BaseURL),
		zap.String("new_crm", cfg.NewCRM.BaseURL))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := worker.NewManager(logger)
	manager.Register(syncWorker)
	if err := manager.StartAll(ctx); err != nil {
		logger.Error("Failed to start workers", zap.Error(err))
		return err
	}

	server := httpapi.NewServer(cfg.Server.Host, cfg.Server.Port, syncWorker, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("Status server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("Shutting down", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Status server shutdown failed", zap.Error(err))
	}
	manager.StopAll()
	return nil
}

func runOnce() error {
	_, logger, syncWorker, err := bootstrap()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return err
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, err := syncWorker.RunOnce(ctx)
	if err != nil {
		logger.Error("Cycle failed",
			zap.String("stage", string(sync.ErrorStage(err))),
			zap.Error(err))
		return err
	}
	logger.Info("Cycle finished",
		zap.String("cycle_id", report.CycleID),
		zap.Int("orders", report.OrdersFetched),
		zap.Int("invoices", report.InvoicesCreated),
		zap.Int("reconciled", report.Reconciled.Finished))
	return nil
}
