package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/apresai/panelcast/internal/app"
	"github.com/apresai/panelcast/internal/config"
	"github.com/apresai/panelcast/internal/mcpserver"
	"github.com/apresai/panelcast/internal/observability"
)

var version = "dev"

func main() {
	logger := observability.InitLogger(os.Getenv("PANELCAST_VERBOSE") != "")
	logger.Info("Panelcast MCP server starting", "version", version)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracer, err := observability.InitTracer(ctx, "panelcast-mcp", version)
	if err != nil {
		logger.Warn("Failed to init tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Error("Tracer shutdown error", "error", err)
			}
		}()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.MCPAddr == "" {
		cfg.MCPAddr = ":8000"
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to build providers", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	manager, err := a.JobManager(ctx, ctx)
	if err != nil {
		logger.Error("Failed to create job manager", "error", err)
		os.Exit(1)
	}
	defer manager.Store().Close()

	srv := mcpserver.New(mcpserver.Config{Addr: cfg.MCPAddr, Version: version}, manager, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, waiting for active jobs")
	case err := <-errCh:
		logger.Error("Server error", "error", err)
	}

	// Jobs see the canceled context and record their failure before exit.
	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("MCP shutdown", "error", err)
	}
	done := make(chan struct{})
	go func() {
		manager.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("Timed out waiting for jobs", "running", manager.Running())
	}
	logger.Info("Shutdown complete")
}
