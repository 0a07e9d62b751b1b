package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nightcouncil/werewolf-server/internal/agent"
	"github.com/nightcouncil/werewolf-server/internal/config"
	"github.com/nightcouncil/werewolf-server/internal/engine"
	"github.com/nightcouncil/werewolf-server/internal/repository"
	"github.com/nightcouncil/werewolf-server/internal/scheduler"
	"github.com/nightcouncil/werewolf-server/internal/server"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting werewolf server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Persistence: Postgres when configured, in-memory otherwise.
	var store repository.Store
	if cfg.Database.URL != "" {
		db, err := repository.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		pg := repository.NewPGStore(db, logger)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to ensure schema", zap.Error(err))
		}
		store = pg
		logger.Info("database store initialized")
	} else {
		store = repository.NewMemStore()
		logger.Warn("no database configured; using in-memory store")
	}

	gw := agent.NewHTTPGateway(cfg.Agent, logger)
	logger.Info("agent gateway initialized",
		zap.String("base_url", cfg.Agent.BaseURL),
		zap.String("model", cfg.Agent.Model),
	)

	eng := engine.New(store, nil, gw, engine.Config{
		Match:             cfg.MatchConfig(),
		Workers:           cfg.Game.AgentWorkers,
		CallTimeout:       cfg.Game.AgentCallTimeout,
		RecentEventWindow: cfg.Game.RecentEventWindow,
	}, logger)

	sched := scheduler.NewTimerScheduler(eng.HandleJob, logger)
	defer sched.Stop()
	eng.SetScheduler(sched)
	logger.Info("scheduler initialized")

	hub := server.NewHub(store, logger)
	eng.SetEventSink(hub.Publish)

	httpServer := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: server.New(eng, hub, logger),
	}

	go func() {
		logger.Info("starting HTTP server", zap.String("address", cfg.Server.Address))
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Error("HTTP server error", zap.Error(serveErr))
		}
	}()

	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	logger.Info("shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("werewolf server stopped")
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
