package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/aigoflow/mmss-service/internal/config"
	"github.com/aigoflow/mmss-service/internal/llm"
	"github.com/aigoflow/mmss-service/internal/repository"
	"github.com/aigoflow/mmss-service/internal/rules"
	"github.com/aigoflow/mmss-service/internal/services"
	"github.com/aigoflow/mmss-service/internal/store"
	"github.com/aigoflow/mmss-service/pkg/server"
)

func main() {
	var envFile = flag.String("env", "", "Optional .env file to load")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*envFile)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize database
	_ = os.MkdirAll(filepath.Dir(cfg.DBPath), 0755)
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	db.Event("info", "startup", "Server starting", map[string]interface{}{
		"http_addr": cfg.HTTPAddr,
		"db_path":   cfg.DBPath,
		"nats_url":  cfg.NatsURL,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo := repository.NewSQLiteRepository(db)

	// Load rule presets and keep them in sync with the rules dir
	engine := rules.NewEngine()
	loaded, err := engine.LoadDir(cfg.RulesDir)
	if err != nil {
		slog.Warn("Failed to load rule presets", "dir", cfg.RulesDir, "error", err)
	}
	slog.Info("Rule presets loaded", "dir", cfg.RulesDir, "rules", loaded)
	go func() {
		if err := engine.Watch(ctx, cfg.RulesDir); err != nil {
			slog.Warn("Rule watcher stopped", "error", err)
		}
	}()

	// NATS is optional; without it tasks run on the in-process dispatcher
	var conn *nats.Conn
	if cfg.NATSEnabled() {
		conn, err = services.ConnectNATS(cfg)
		if err != nil {
			db.Event("error", "nats.failed", "NATS connection failed", map[string]interface{}{
				"nats_url": cfg.NatsURL,
				"error":    err.Error(),
			})
			slog.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer conn.Drain()
	}
	monitoring := services.NewMonitoringService(conn, cfg)

	var natsService *services.NATSDispatcher
	if conn != nil {
		natsService, err = services.NewNATSDispatcher(conn, cfg, monitoring)
		if err != nil {
			slog.Error("Failed to create NATS dispatcher", "error", err)
			os.Exit(1)
		}
	}

	scripts := services.NewScriptRunner(cfg.PythonBin, cfg.ScriptTimeout)
	tasks, err := services.NewTaskService(ctx, repo, engine, scripts, monitoring)
	if err != nil {
		slog.Error("Failed to initialize task service", "error", err)
		os.Exit(1)
	}

	var local *services.LocalDispatcher
	if natsService != nil {
		natsService.SetRunner(tasks)
		tasks.SetDispatcher(natsService)
		// Pending tasks are still queued in the stream
		if _, err := tasks.RecoverInterrupted(ctx); err != nil {
			slog.Error("Failed to recover tasks", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := natsService.Start(ctx); err != nil {
				db.Event("error", "nats.failed", "NATS dispatcher failed", map[string]interface{}{
					"error": err.Error(),
				})
				slog.Error("NATS dispatcher failed", "error", err)
				stop()
			}
		}()
	} else {
		local = services.NewLocalDispatcher(tasks, monitoring, cfg.Concurrency, cfg.QueueSize)
		tasks.SetDispatcher(local)
		local.Start(ctx)

		pending, err := tasks.RecoverInterrupted(ctx)
		if err != nil {
			slog.Error("Failed to recover tasks", "error", err)
			os.Exit(1)
		}
		go func() {
			if n, err := local.Resume(ctx, pending); err != nil {
				slog.Warn("Stopped re-queueing pending tasks", "queued", n, "remaining", len(pending)-n, "error", err)
			}
		}()
	}

	if err := monitoring.Start(ctx); err != nil {
		slog.Warn("Monitoring service failed", "error", err)
	}

	var gateway llm.Gateway = llm.DisabledGateway{}
	if cfg.OpenAIAPIKey != "" {
		gateway = llm.NewOpenAIGateway(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, cfg.LLMTimeout)
	}
	planner := services.NewPlannerService(gateway, tasks)

	healthService := services.NewHealthService(conn, cfg, cfg.OpenAIAPIKey != "", scripts.Enabled())
	go func() {
		if err := healthService.Start(ctx); err != nil {
			db.Event("error", "health.failed", "Health service failed", map[string]interface{}{
				"error": err.Error(),
			})
			slog.Error("Health service failed", "error", err)
		}
	}()

	db.Event("info", "server.ready", "Server ready to accept requests", map[string]interface{}{
		"http_addr":  cfg.HTTPAddr,
		"dispatcher": monitoring.Report().Dispatcher,
		"llm":        cfg.OpenAIAPIKey != "",
		"scripts":    scripts.Enabled(),
	})

	httpServer := server.NewServer(cfg.HTTPAddr, tasks, planner, healthService, monitoring)
	if err := httpServer.Start(ctx); err != nil {
		db.Event("error", "http.failed", "HTTP server failed", map[string]interface{}{
			"error": err.Error(),
		})
		slog.Error("HTTP server failed", "error", err)
	}

	stop()
	if local != nil {
		local.Wait()
	}
	db.Event("info", "shutdown", "Server stopped", nil)
	slog.Info("Shutting down server")
}
