// Package main is the entry point for the specializer service.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flexinfer/mentatlab/services/specializer-go/internal/api"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/config"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/credentials"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/deployer"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/flowstore"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/graph"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/service"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/specializer"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/templatesource"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/tracing"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/validator"
)

// version is set at build time.
var version = "dev"

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("starting specializer",
		slog.String("version", version),
		slog.String("port", cfg.Port),
		slog.String("template_source", cfg.TemplateSource),
		slog.String("flowstore", cfg.FlowStoreType),
	)

	ctx := context.Background()

	tp, err := tracing.Init(ctx, tracing.Config{
		ServiceName:    cfg.TracingServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.TracingEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	v, err := validator.New()
	if err != nil {
		logger.Error("failed to create validator", "error", err)
		os.Exit(1)
	}

	// The service refuses to start without a usable template.
	src, err := templateSource(ctx, cfg)
	if err != nil {
		logger.Error("failed to configure template source", "error", err)
		os.Exit(1)
	}
	holder, err := templatesource.NewHolder(ctx, src, v, logger)
	if err != nil {
		logger.Error("failed to load template", "source", src.Name(), "error", err)
		os.Exit(1)
	}
	logger.Info("template loaded",
		slog.String("source", src.Name()),
		slog.String("version", holder.Current().Version),
	)

	if cfg.TemplateSource == "file" && cfg.TemplateWatch {
		watcher, err := templatesource.NewWatcher(templatesource.WatcherConfig{
			Holder: holder,
			Path:   cfg.TemplatePath,
			Logger: logger,
		})
		if err != nil {
			logger.Warn("template hot reload unavailable", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	// Initialize FlowStore based on configuration
	store, err := newFlowStore(cfg, logger)
	if err != nil {
		logger.Error("failed to open flowstore", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	engine := specializer.New(specializer.Config{
		Credentials: credentials.Set{
			Cache:           graph.CredentialRef{ID: cfg.CacheCredentialID, Name: cfg.CacheCredentialName},
			RelationalStore: graph.CredentialRef{ID: cfg.RelationalCredentialID, Name: cfg.RelationalCredentialName},
			OpenAI:          graph.CredentialRef{ID: cfg.OpenAICredentialID, Name: cfg.OpenAICredentialName},
			Gemini:          graph.CredentialRef{ID: cfg.GeminiCredentialID, Name: cfg.GeminiCredentialName},
		},
		WebhookBaseURL: cfg.WebhookBaseURL,
		Logger:         logger,
	})

	opts := service.Options{
		Templates: holder,
		Engine:    engine,
		Store:     store,
		Validator: v,
		Logger:    logger,
	}
	if cfg.DeployEnabled {
		client, err := deployer.New(deployer.Config{
			BaseURL:           cfg.DeployBaseURL,
			APIKey:            cfg.DeployAPIKey,
			Timeout:           cfg.DeployTimeout,
			RequestsPerSecond: cfg.DeployRPS,
			Activate:          cfg.DeployActivate,
			Logger:            logger,
		})
		if err != nil {
			logger.Error("failed to create deployer", "error", err)
			os.Exit(1)
		}
		opts.Deployer = client
		logger.Info("deployment enabled", slog.String("base_url", cfg.DeployBaseURL))
	}
	svc := service.New(opts)

	// Initialize API handlers
	handlers := api.NewHandlers(svc, cfg, logger)
	server := api.NewServer(handlers)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

func templateSource(ctx context.Context, cfg *config.Config) (templatesource.Source, error) {
	switch cfg.TemplateSource {
	case "file":
		return templatesource.FileSource{Path: cfg.TemplatePath}, nil
	case "s3":
		return templatesource.NewS3Source(ctx, templatesource.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Bucket:          cfg.S3Bucket,
			Key:             cfg.S3Key,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			UseSSL:          cfg.S3UseSSL,
		})
	default:
		return templatesource.EmbeddedSource{}, nil
	}
}

func newFlowStore(cfg *config.Config, logger *slog.Logger) (flowstore.FlowStore, error) {
	switch cfg.FlowStoreType {
	case "redis":
		store, err := flowstore.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		logger.Info("using Redis flowstore", slog.String("url", cfg.RedisURL))
		return store, nil
	case "sqlite":
		store, err := flowstore.NewSQLiteStore(flowstore.SQLiteConfig{Path: cfg.SQLitePath})
		if err != nil {
			return nil, err
		}
		logger.Info("using SQLite flowstore", slog.String("path", cfg.SQLitePath))
		return store, nil
	default:
		logger.Info("using in-memory flowstore")
		return flowstore.NewMemoryStore(), nil
	}
}
