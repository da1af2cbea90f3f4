package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/metacat-dev/metacat/pkg/adapters/source"
	_ "github.com/metacat-dev/metacat/pkg/adapters/source/mssql"
	_ "github.com/metacat-dev/metacat/pkg/adapters/source/mysql"
	_ "github.com/metacat-dev/metacat/pkg/adapters/source/postgres"
	"github.com/metacat-dev/metacat/pkg/config"
	"github.com/metacat-dev/metacat/pkg/crypto"
	"github.com/metacat-dev/metacat/pkg/database"
	"github.com/metacat-dev/metacat/pkg/handlers"
	"github.com/metacat-dev/metacat/pkg/logging"
	"github.com/metacat-dev/metacat/pkg/middleware"
	"github.com/metacat-dev/metacat/pkg/repositories"
	"github.com/metacat-dev/metacat/pkg/scheduler"
	"github.com/metacat-dev/metacat/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.URL())))

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.URL(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrationDB, err := sql.Open("pgx", cfg.Database.URL())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(migrationDB, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = migrationDB.Close()

	encryptor, err := crypto.NewCredentialEncryptor(cfg.CredentialsKey)
	if err != nil {
		logger.Fatal("Failed to initialize credential encryption", zap.Error(err))
	}

	location, err := cfg.Scheduler.Location()
	if err != nil {
		logger.Fatal("Invalid scheduler timezone", zap.Error(err))
	}

	datasourceRepo := repositories.NewDatasourceRepository(db)
	catalogRepo := repositories.NewCatalogRepository(db)
	historyRepo := repositories.NewHistoryRepository(db)
	taskRepo := repositories.NewTaskRepository(db)

	// Any record still running at this point was orphaned by a previous
	// process; close it out so the ledger only holds live runs.
	if reconciled, err := historyRepo.FailStaleRunning(ctx,
		"interrupted by service restart"); err != nil {
		logger.Error("Failed to reconcile stale extraction records", zap.Error(err))
	} else if reconciled > 0 {
		logger.Warn("Reconciled stale extraction records", zap.Int("count", reconciled))
	}

	factory := source.NewConnectorFactory()

	datasourceService := services.NewDatasourceService(datasourceRepo, factory, encryptor, cfg.Connector.Timeout(), logger)
	extractionService := services.NewExtractionService(datasourceService, factory, catalogRepo, historyRepo, logger)
	catalogService := services.NewCatalogService(catalogRepo, logger)
	annotationService := services.NewAnnotationService(catalogRepo, logger)
	taskService := services.NewTaskService(taskRepo, datasourceService, extractionService, location, logger)
	historyService := services.NewHistoryService(historyRepo, logger)
	overviewService := services.NewOverviewService(datasourceRepo, catalogRepo, taskRepo, historyRepo, logger)

	driver := scheduler.NewDriver(taskRepo, extractionService, scheduler.Options{
		Tick:          cfg.Scheduler.Tick(),
		MaxConcurrent: int64(cfg.Scheduler.MaxConcurrentExtractions),
		Location:      location,
	}, logger)
	driver.Start()
	defer driver.Stop()

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)
	handlers.NewDatasourcesHandler(datasourceService, extractionService, logger).RegisterRoutes(mux)
	handlers.NewTablesHandler(catalogService, annotationService, logger).RegisterRoutes(mux)
	handlers.NewTasksHandler(taskService, logger).RegisterRoutes(mux)
	handlers.NewHistoryHandler(historyService, logger).RegisterRoutes(mux)
	handlers.NewOverviewHandler(overviewService, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting metacat",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
