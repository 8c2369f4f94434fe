// Package mcpserver exposes podcast jobs as MCP tools over streamable HTTP.
package mcpserver

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/apresai/panelcast/internal/jobs"
)

// Config holds server configuration.
type Config struct {
	Addr    string // e.g. ":8000"
	Name    string
	Version string
}

// Server is the MCP server for podcast generation.
type Server struct {
	cfg      Config
	mcp      *server.MCPServer
	http     *server.StreamableHTTPServer
	handlers *Handlers
	log      *slog.Logger
}

// New creates the MCP server and registers its tools.
func New(cfg Config, manager *jobs.Manager, logger *slog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.Name == "" {
		cfg.Name = "panelcast"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if logger == nil {
		logger = slog.Default()
	}
	handlers := NewHandlers(manager, logger)

	mcpServer := server.NewMCPServer(
		cfg.Name,
		cfg.Version,
		server.WithToolCapabilities(true),
	)

	tools := ToolDefs()
	mcpServer.AddTool(tools[0], handlers.HandleGeneratePodcast)
	mcpServer.AddTool(tools[1], handlers.HandleGetPodcast)
	mcpServer.AddTool(tools[2], handlers.HandleListPodcasts)

	return &Server{
		cfg:      cfg,
		mcp:      mcpServer,
		handlers: handlers,
		log:      logger,
		http: server.NewStreamableHTTPServer(mcpServer,
			server.WithStateLess(true),
		),
	}
}

// Start serves MCP over HTTP until Shutdown.
func (s *Server) Start() error {
	s.log.Info("Starting MCP server", "addr", s.cfg.Addr)
	return s.http.Start(s.cfg.Addr)
}

// Shutdown stops accepting requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
