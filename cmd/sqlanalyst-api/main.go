package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sqlanalyst/sqlanalyst/internal/analyst"
	"github.com/sqlanalyst/sqlanalyst/internal/api"
	"github.com/sqlanalyst/sqlanalyst/internal/auth"
	"github.com/sqlanalyst/sqlanalyst/internal/config"
	"github.com/sqlanalyst/sqlanalyst/internal/export"
	"github.com/sqlanalyst/sqlanalyst/internal/inference"
	"github.com/sqlanalyst/sqlanalyst/internal/observability"
	"github.com/sqlanalyst/sqlanalyst/internal/prompt"
	"github.com/sqlanalyst/sqlanalyst/internal/session"
	s3store "github.com/sqlanalyst/sqlanalyst/internal/storage/s3"
	"github.com/sqlanalyst/sqlanalyst/internal/warehouse"
)

func main() {
	cfg, err := config.LoadFromEnv("sqlanalyst-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	pool, err := warehouse.Open(context.Background(), warehouse.ConfigFrom(cfg.Warehouse))
	if err != nil {
		logger.Error("failed to open warehouse", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = pool.Close() }()

	client, err := inference.NewFromConfig(cfg.Inference, logger)
	if err != nil {
		logger.Error("failed to initialize inference client", slog.Any("error", err))
		os.Exit(1)
	}

	basePrompt, promptSource, err := prompt.Resolve(prompt.Options{
		File:         cfg.Agent.SystemPromptFile,
		Env:          cfg.Agent.SystemPrompt,
		SchemaPrefix: cfg.Agent.SchemaPrefix,
	})
	if err != nil {
		logger.Error("failed to resolve system prompt", slog.Any("error", err))
		os.Exit(1)
	}
	agent, err := analyst.NewAgent(analyst.Config{
		Client:       client,
		SystemPrompt: prompt.Build(basePrompt),
		MaxLoops:     cfg.Agent.MaxLoops,
		Logger:       logger,
	})
	if err != nil {
		logger.Error("failed to initialize analyst", slog.Any("error", err))
		os.Exit(1)
	}

	store, err := session.Open(cfg.Session)
	if err != nil {
		logger.Error("failed to open session store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()
	manager, err := analyst.NewManager(analyst.ManagerConfig{
		Agent:          agent,
		Pool:           pool,
		Store:          store,
		MaxRows:        cfg.Warehouse.MaxRows,
		MaxSessions:    cfg.Session.MaxSessions,
		IdleTTL:        cfg.Session.IdleTTL,
		TokenRetention: cfg.Session.TokenRetention,
		Logger:         logger,
	})
	if err != nil {
		logger.Error("failed to initialize session manager", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = manager.Close() }()

	deps := api.Dependencies{
		Logger:     logger,
		Sessions:   manager,
		Warehouse:  pool,
		LLMEnabled: true,
		Readiness: api.CombineReadinessChecks(
			api.CheckWarehouse(pool),
			api.CheckObjectStoreConfig(cfg),
		),
		DependencyTimeout: 2 * time.Second,
	}

	if cfg.Export.ArchiveEnabled {
		objectStore, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		archiver, err := export.NewArchiver(objectStore, logger)
		if err != nil {
			logger.Error("failed to initialize export archiver", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Archiver = archiver
	}

	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go manager.Run(ctx, cfg.Session.SweepInterval)

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("warehouse_driver", pool.Driver()),
			slog.String("prompt_source", string(promptSource)),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
