package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/apresai/panelcast/internal/app"
	"github.com/apresai/panelcast/internal/httpapi"
	"github.com/apresai/panelcast/internal/jobs"
	"github.com/apresai/panelcast/internal/mcpserver"
	"github.com/apresai/panelcast/internal/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API (and optionally MCP) with async session jobs",
	RunE:  runServe,
}

var (
	flagAddr    string
	flagMCPAddr string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "HTTP listen address (env PANELCAST_HTTP_ADDR, default :8001)")
	serveCmd.Flags().StringVar(&flagMCPAddr, "mcp-addr", "", "Also serve MCP tools on this address (env PANELCAST_MCP_ADDR)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := observability.InitLogger(flagVerbose)
	if cmd.Flags().Changed("addr") {
		cfg.HTTPAddr = flagAddr
	}
	if cmd.Flags().Changed("mcp-addr") {
		cfg.MCPAddr = flagMCPAddr
	}

	shutdownTracer, err := observability.InitTracer(ctx, "panelcast", Version)
	if err != nil {
		logger.Warn("Failed to init tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownTracer(flushCtx)
		}()
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// Jobs inherit the signal context so shutdown marks in-flight jobs failed.
	manager, err := a.JobManager(ctx, ctx)
	if err != nil {
		return err
	}
	defer manager.Store().Close()

	audioDir := filepath.Join(cfg.OutputDir, "audio")
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		return fmt.Errorf("create audio dir: %w", err)
	}

	api := httpapi.New(httpapi.Deps{
		Completer:      a.Completer,
		Provider:       a.Provider,
		Cast:           a.Orchestrator.Cast(),
		Voices:         a.Orchestrator.Voices(),
		Runner:         a.Orchestrator,
		Jobs:           manager,
		AudioDir:       audioDir,
		CallTimeout:    cfg.CallTimeout,
		Metrics:        a.Metrics,
		Logger:         logger,
		Version:        Version,
		AllowAnyOrigin: cfg.AllowAnyOrigin,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(api.Router(), "panelcast-http"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr, "model", cfg.ModelProvider, "tts", cfg.TTSProvider)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var mcpSrv *mcpserver.Server
	if cfg.MCPAddr != "" {
		mcpSrv = mcpserver.New(mcpserver.Config{Addr: cfg.MCPAddr, Version: Version}, manager, logger)
		go func() {
			if err := mcpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("mcp server: %w", err)
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case serveErr = <-errCh:
		logger.Error("Server failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", "error", err)
	}
	if mcpSrv != nil {
		if err := mcpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("MCP shutdown", "error", err)
		}
	}
	waitJobs(shutdownCtx, manager, logger.Warn)
	return serveErr
}

// waitJobs blocks until every job goroutine has recorded its outcome or ctx
// expires.
func waitJobs(ctx context.Context, manager *jobs.Manager, warn func(string, ...any)) {
	done := make(chan struct{})
	go func() {
		manager.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		warn("Timed out waiting for jobs", "running", manager.Running())
	}
}
