package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/apresai/panelcast/internal/jobs"
	"github.com/apresai/panelcast/internal/session"
)

var tracer = otel.Tracer("panelcast/mcp")

// ToolDefs returns the MCP tool definitions.
func ToolDefs() []mcp.Tool {
	return []mcp.Tool{
		{
			Name: "generate_podcast",
			Description: "Generate a three-person panel episode (host, advisor, analyst) from session context. " +
				"Starts an async job and returns its ID. Use get_podcast to check progress.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"context": map[string]any{
						"type":        "string",
						"description": "Session context the panel discusses, e.g. framed JSON metrics",
					},
					"sources": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "URLs or server-side file paths to load as context (alternative to context)",
					},
					"turns": map[string]any{
						"type":        "integer",
						"description": fmt.Sprintf("Advisor/analyst exchange pairs (%d-%d)", session.MinTurns, session.MaxTurns),
						"default":     session.DefaultTurns,
					},
					"prefix": map[string]any{
						"type":        "string",
						"description": "Output file name prefix",
						"default":     session.DefaultPrefix,
					},
				},
			},
		},
		{
			Name:        "get_podcast",
			Description: "Get the status and details of a podcast job by ID. Use this to check on a running generation or retrieve a completed episode's audio URL and transcript.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"podcast_id": map[string]any{
						"type":        "string",
						"description": "The podcast ID returned from generate_podcast",
					},
				},
				Required: []string{"podcast_id"},
			},
		},
		{
			Name:        "list_podcasts",
			Description: "List podcast jobs, newest first. Returns IDs, status, and audio URLs.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of results (default 20)",
						"default":     20,
					},
					"cursor": map[string]any{
						"type":        "string",
						"description": "Pagination cursor from a previous list_podcasts call",
					},
				},
			},
		},
	}
}

// Handlers contains tool handler implementations.
type Handlers struct {
	jobs *jobs.Manager
	log  *slog.Logger
}

// NewHandlers creates tool handlers.
func NewHandlers(manager *jobs.Manager, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{jobs: manager, log: logger}
}

// HandleGeneratePodcast starts a podcast job.
func (h *Handlers) HandleGeneratePodcast(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.generate_podcast")
	defer span.End()

	jobReq := jobs.Request{
		Context: mcp.ParseString(req, "context", ""),
		Sources: parseStringsParam(req, "sources"),
		Turns:   parseIntParam(req, "turns", session.DefaultTurns),
		Prefix:  mcp.ParseString(req, "prefix", session.DefaultPrefix),
		Owner:   "mcp-server",
	}
	span.SetAttributes(
		attribute.Int("turns", jobReq.Turns),
		attribute.Int("sources", len(jobReq.Sources)),
		attribute.Int("context_bytes", len(jobReq.Context)),
	)

	if strings.TrimSpace(jobReq.Context) == "" && len(jobReq.Sources) == 0 {
		span.SetStatus(codes.Error, "missing input")
		return mcp.NewToolResultError("either context or sources is required"), nil
	}

	job, err := h.jobs.Start(ctx, jobReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start job failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to start job: %v", err)), nil
	}

	span.SetAttributes(attribute.String("podcast_id", job.ID))
	h.log.InfoContext(ctx, "Podcast generation started", "podcast_id", job.ID, "turns", job.Turns)

	return jsonResult(map[string]any{
		"podcast_id": job.ID,
		"status":     job.Status,
		"turns":      job.Turns,
		"message":    "Podcast generation started. Use get_podcast with this podcast_id to check progress.",
	})
}

// HandleGetPodcast returns job details.
func (h *Handlers) HandleGetPodcast(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.get_podcast")
	defer span.End()

	id := mcp.ParseString(req, "podcast_id", "")
	if id == "" {
		span.SetStatus(codes.Error, "missing podcast_id")
		return mcp.NewToolResultError("podcast_id is required"), nil
	}
	span.SetAttributes(attribute.String("podcast_id", id))

	job, err := h.jobs.Store().Get(ctx, id)
	if errors.Is(err, jobs.ErrNotFound) {
		span.SetStatus(codes.Error, "not found")
		return mcp.NewToolResultError(fmt.Sprintf("podcast %s not found", id)), nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get podcast failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to get podcast: %v", err)), nil
	}

	result := summarize(job)
	result["progress_percent"] = job.Percent
	result["stage_message"] = job.Message
	result["turns"] = job.Turns
	if job.Error != "" {
		result["error"] = job.Error
		result["error_kind"] = job.ErrorKind
	}
	if job.Model != "" {
		result["model"] = job.Model
	}
	if job.TTSProvider != "" {
		result["tts_provider"] = job.TTSProvider
	}
	if r := job.Result; r != nil {
		result["transcript_url"] = r.TranscriptURL
		result["file_size_mb"] = r.SizeMB
		result["lines"] = r.Lines
		result["transcript"] = r.Transcript
	}
	return jsonResult(result)
}

// HandleListPodcasts returns a paginated list of jobs.
func (h *Handlers) HandleListPodcasts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.list_podcasts")
	defer span.End()

	limit := parseIntParam(req, "limit", 20)
	cursor := mcp.ParseString(req, "cursor", "")
	span.SetAttributes(
		attribute.Int("limit", limit),
		attribute.String("cursor", cursor),
	)

	items, nextCursor, err := h.jobs.Store().List(ctx, limit, cursor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list podcasts failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to list podcasts: %v", err)), nil
	}
	span.SetAttributes(attribute.Int("result_count", len(items)))

	podcasts := make([]map[string]any, 0, len(items))
	for _, job := range items {
		podcasts = append(podcasts, summarize(job))
	}

	result := map[string]any{
		"podcasts": podcasts,
		"count":    len(podcasts),
	}
	if nextCursor != "" {
		result["next_cursor"] = nextCursor
	}
	return jsonResult(result)
}

func summarize(job jobs.Job) map[string]any {
	p := map[string]any{
		"podcast_id": job.ID,
		"status":     job.Status,
		"created_at": job.CreatedAt,
	}
	if r := job.Result; r != nil {
		p["audio_url"] = r.AudioURL
		p["duration_seconds"] = r.Duration
	}
	return p
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func parseIntParam(req mcp.CallToolRequest, key string, defaultVal int) int {
	args := req.GetArguments()
	if args == nil {
		return defaultVal
	}
	raw, ok := args[key]
	if !ok {
		return defaultVal
	}
	switch v := raw.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return defaultVal
	}
}

func parseStringsParam(req mcp.CallToolRequest, key string) []string {
	args := req.GetArguments()
	if args == nil {
		return nil
	}
	switch v := args[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case []string:
		return v
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{strings.TrimSpace(v)}
	}
	return nil
}
