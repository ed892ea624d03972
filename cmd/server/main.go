package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/fieldops/fieldsync/internal/api"
	"github.com/fieldops/fieldsync/internal/config"
	"github.com/fieldops/fieldsync/internal/db"
	"github.com/fieldops/fieldsync/internal/notify"
	"github.com/fieldops/fieldsync/internal/platform"
	"github.com/fieldops/fieldsync/internal/scheduler"
	syncengine "github.com/fieldops/fieldsync/internal/sync"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})
	logger.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.DBConnectionString == "" || cfg.PlatformToken == "" {
		logger.Fatal("Missing required configuration (DB_CONNECTION_STRING and PLATFORM_TOKEN must be set)")
	}

	store, err := db.NewPostgresStore(cfg.DBConnectionString)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	if err := retry(3, 5*time.Second, store.Migrate); err != nil {
		logger.Fatalf("Failed to run migrations after retries: %v", err)
	}

	syncCfg := config.SyncConfigFromEnv()
	platformCfg := config.DefaultPlatformConfig()
	platformCfg.BaseURL = cfg.PlatformBaseURL

	creds := platform.NewStaticProvider(cfg.PlatformToken)
	client := platform.NewClient(platformCfg, creds, logger)
	registry := platform.DefaultRegistry()
	tracker := syncengine.NewTracker(store, logger)
	loop := syncengine.NewLoop(client, store, tracker, creds, syncCfg, logger)
	notifier := notify.NewWebhookNotifier(cfg.NotifyWebhookURL, syncCfg.NotifyTimeout, logger)
	orchestrator := syncengine.NewOrchestrator(registry, tracker, loop, notifier, cfg.NotifyChannel, syncCfg, logger)

	handler := api.NewHandler(orchestrator, tracker, registry, logger)
	router := api.SetupRouter(handler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := scheduler.New(logger, ctx)
	for _, tenantID := range cfg.SyncTenants {
		tenant := tenantID
		if _, err := runner.Add(cfg.SyncCron, func(jobCtx context.Context) {
			if _, err := orchestrator.SyncTenant(jobCtx, tenant, nil); err != nil {
				logger.WithError(err).WithField("tenant", tenant).Error("Scheduled sync pass failed to start")
			}
		}); err != nil {
			logger.Fatalf("Failed to schedule sync for tenant %s: %v", tenant, err)
		}
	}
	if len(cfg.SyncTenants) > 0 {
		runner.Start()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()
	if len(cfg.SyncTenants) > 0 {
		runner.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	logger.Info("Server exited properly")
}

// retry retries a function up to a certain number of attempts with a delay between attempts
func retry(attempts int, sleep time.Duration, fn func() error) error {
	if err := fn(); err != nil {
		if attempts--; attempts > 0 {
			time.Sleep(sleep)
			return retry(attempts, sleep, fn)
		}
		return err
	}
	return nil
}
