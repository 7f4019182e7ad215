package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hl-fury/xai-narrative-service/internal/api"
	"github.com/hl-fury/xai-narrative-service/internal/config"
	"github.com/hl-fury/xai-narrative-service/internal/examples"
	"github.com/hl-fury/xai-narrative-service/internal/history"
	historymem "github.com/hl-fury/xai-narrative-service/internal/history/memory"
	historysqlite "github.com/hl-fury/xai-narrative-service/internal/history/sqlite"
	"github.com/hl-fury/xai-narrative-service/internal/models"
	"github.com/hl-fury/xai-narrative-service/internal/pipeline"
	"github.com/hl-fury/xai-narrative-service/internal/provider"
	"github.com/hl-fury/xai-narrative-service/internal/provider/gemini"
	"github.com/hl-fury/xai-narrative-service/internal/server"
	"github.com/hl-fury/xai-narrative-service/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracer("xai-narrative-service", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := examples.Load(cfg.Examples.Path, examples.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to load example corpus: %v", err)
	}

	registry := models.New(cfg.Models.CheckpointRoot, cfg.Models.Remote, cfg.Models.LocalEnabled)

	providers := provider.NewRegistry()
	if cfg.Providers.Gemini.APIKey != "" {
		var opts []gemini.ClientOption
		if cfg.Providers.Gemini.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(cfg.Providers.Gemini.BaseURL))
		}
		if cfg.Providers.Gemini.DefaultModel != "" {
			opts = append(opts, gemini.WithDefaultModel(cfg.Providers.Gemini.DefaultModel))
		}
		providers.Register(gemini.NewClient(cfg.Providers.Gemini.APIKey, opts...))
		logger.Info("gemini provider configured")
	} else {
		logger.Warn("no gemini API key configured; only the demo model will serve requests")
	}

	var pipeOpts []pipeline.Option
	pipeOpts = append(pipeOpts, pipeline.WithLogger(logger))
	if cfg.Pipeline.DraftCount > 0 {
		pipeOpts = append(pipeOpts, pipeline.WithDraftCount(cfg.Pipeline.DraftCount))
	}
	pipe, err := pipeline.New(providers, pipeOpts...)
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}

	hist, err := newHistoryStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open history store: %v", err)
	}
	defer hist.Close()

	srv := server.New(cfg.Server.Port, logger, cfg.Server.CORSOrigins)
	handler := api.NewHandler(store, registry, pipe, hist, logger)
	srv.Router.Mount("/api", handler.Routes())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case sig := <-sigChan:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func newHistoryStore(cfg *config.Config) (history.Store, error) {
	switch cfg.History.Type {
	case "sqlite":
		path := cfg.History.SQLite.Path
		if path == "" {
			path = "./data/history.db"
		}
		return historysqlite.New(path)
	default:
		return historymem.New(), nil
	}
}
