package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rss-stash/rss-stash/app/api"
	"github.com/rss-stash/rss-stash/app/cfg"
	"github.com/rss-stash/rss-stash/app/database"
	"github.com/rss-stash/rss-stash/app/ingest"
	"github.com/rss-stash/rss-stash/app/orchestrator"
	"github.com/rss-stash/rss-stash/app/publish"
	"github.com/rss-stash/rss-stash/app/session"
	"github.com/rss-stash/rss-stash/app/source"
	"github.com/rss-stash/rss-stash/app/sweep"
	"github.com/rss-stash/rss-stash/app/target"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting RSS Stash", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "migration_version", version, "dirty", dirty)

	configCache := source.NewConfigCache(appCfg.SourcesDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load source configurations", "dir", appCfg.SourcesDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Source configurations loaded", "count", configCache.GetConfigCount(), "dir", appCfg.SourcesDir)

	stateRepo := database.NewStateRepo(db)
	cookieRepo := database.NewCookieRepo(db)

	// Ensure every configured source has its state row before the first cycle.
	for name := range configCache.GetConfigs() {
		if _, err := stateRepo.LoadState(name); err != nil {
			slog.Error("Failed to register source state", "source", name, "error", err)
			os.Exit(1)
		}
	}

	targetClient := target.NewClient(appCfg.TargetURL, appCfg.TargetToken, appCfg.UserAgent, appCfg.HTTPTimeout)
	sessionManager := session.NewManager(cookieRepo, appCfg.UserAgent)
	ingestor := ingest.NewIngestor(&http.Client{}, appCfg.UserAgent)
	pipeline := publish.NewPipeline(targetClient, stateRepo)
	sweeper := sweep.NewSweeper(targetClient, stateRepo)

	orch := orchestrator.NewOrchestrator(configCache, stateRepo, sessionManager, ingestor, pipeline, sweeper, targetClient)

	orchCtx, cancelOrch := context.WithCancel(context.Background())
	defer cancelOrch()

	orchErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting orchestrator", "interval", appCfg.CycleInterval, "workers", appCfg.WorkerCount)
		if err := orch.Run(orchCtx); err != nil {
			orchErrChan <- err
		}
	}()

	apiHandler := api.NewHandler(configCache, stateRepo)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("HTTP server error", "error", err)
	case err := <-orchErrChan:
		// Only a state persistence failure stops the loop; shutting down is
		// safer than continuing with state that can no longer be recorded.
		slog.Error("Orchestrator stopped with error", "error", err)
	}

	slog.Info("Shutting down")

	cancelOrch()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("Shutdown complete")
}
