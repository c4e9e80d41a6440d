package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nimbusbank/approval-engine/internal/config"
	httpserver "github.com/nimbusbank/approval-engine/internal/interfaces/http"
	"github.com/nimbusbank/approval-engine/internal/repository"
	"github.com/nimbusbank/approval-engine/internal/workflow"
	"github.com/nimbusbank/approval-engine/pkg/database"
	"github.com/nimbusbank/approval-engine/pkg/utils"
	"go.uber.org/zap"
)

func main() {
	configPath := "configs/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting approval workflow engine",
		zap.Int("port", cfg.Server.Port),
		zap.String("database", cfg.Database.Path))

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Fatal("Failed to create data directory", zap.Error(err))
		}
	}

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.Run(repository.Migrations()); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	definitionRepo := repository.NewDefinitionRepository(db.DB, logger)
	requestRepo := repository.NewRequestRepository(db.DB, logger)
	stageRepo := repository.NewStageRepository(db.DB, logger)
	approvalRepo := repository.NewApprovalRepository(db.DB, logger)
	auditRepo := repository.NewAuditRepository(db.DB, logger)

	definitions := workflow.NewDefinitionStore(db, definitionRepo, logger)
	engine := workflow.NewEngine(
		db,
		definitionRepo,
		requestRepo,
		stageRepo,
		approvalRepo,
		auditRepo,
		cfg.Engine.LockTimeout,
		cfg.Engine.BulkWorkers,
		logger,
	)

	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, engine, definitions, utils.NewKVLogger(logger))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Approval workflow engine stopped")
}
