package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/panelcast/internal/jobs"
	"github.com/apresai/panelcast/internal/session"
)

type fakeRunner struct {
	reqs []session.Request
}

func (f *fakeRunner) Run(_ context.Context, req session.Request) (session.Summary, error) {
	f.reqs = append(f.reqs, req)
	audio := filepath.Join(req.OutputDir, "ep.wav")
	transcript := filepath.Join(req.OutputDir, "ep.txt")
	if err := os.WriteFile(audio, []byte("RIFF"), 0o644); err != nil {
		return session.Summary{}, err
	}
	if err := os.WriteFile(transcript, []byte("Host Alex: Welcome."), 0o644); err != nil {
		return session.Summary{}, err
	}
	return session.Summary{SessionID: "S1", AudioPath: audio, TranscriptPath: transcript, Duration: 2, Turns: 7}, nil
}

func callTool(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultJSON(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	var text string
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		text = c.Text
	case *mcp.TextContent:
		text = c.Text
	default:
		t.Fatalf("unexpected content %T", c)
	}
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	return out
}

func newHandlers(t *testing.T) (*Handlers, *jobs.Manager, *fakeRunner) {
	t.Helper()
	runner := &fakeRunner{}
	manager := jobs.NewManager(context.Background(), jobs.NewMemoryStore(),
		jobs.NewLocalStorage(t.TempDir(), "https://cdn.test"), runner,
		jobs.Options{WorkDir: t.TempDir(), ProgressInterval: -1})
	return NewHandlers(manager, nil), manager, runner
}

func TestToolDefs(t *testing.T) {
	names := []string{}
	for _, tool := range ToolDefs() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"generate_podcast", "get_podcast", "list_podcasts"}, names)
}

func TestGenerateAndGetPodcast(t *testing.T) {
	h, manager, runner := newHandlers(t)
	ctx := context.Background()

	res, err := h.HandleGeneratePodcast(ctx, callTool(map[string]any{"context": "[data.json]\n{}", "turns": float64(2)}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	started := resultJSON(t, res)
	id := started["podcast_id"].(string)
	assert.Equal(t, "submitted", started["status"])
	manager.Wait()

	require.Len(t, runner.reqs, 1)
	assert.Equal(t, 2, runner.reqs[0].Turns)
	assert.Equal(t, session.DefaultPrefix, runner.reqs[0].Prefix)

	res, err = h.HandleGetPodcast(ctx, callTool(map[string]any{"podcast_id": id}))
	require.NoError(t, err)
	got := resultJSON(t, res)
	assert.Equal(t, "complete", got["status"])
	assert.Equal(t, "https://cdn.test/audio/"+id+".wav", got["audio_url"])

	res, err = h.HandleListPodcasts(ctx, callTool(nil))
	require.NoError(t, err)
	list := resultJSON(t, res)
	assert.Equal(t, float64(1), list["count"])
}

func TestGeneratePodcastRequiresInput(t *testing.T) {
	h, _, _ := newHandlers(t)
	res, err := h.HandleGeneratePodcast(context.Background(), callTool(map[string]any{"turns": float64(3)}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = h.HandleGetPodcast(context.Background(), callTool(map[string]any{"podcast_id": "missing"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestParseStringsParam(t *testing.T) {
	req := callTool(map[string]any{"sources": []any{" a.json ", "", 3, "https://x"}})
	assert.Equal(t, []string{"a.json", "https://x"}, parseStringsParam(req, "sources"))
	assert.Equal(t, []string{"b.pdf"}, parseStringsParam(callTool(map[string]any{"sources": "b.pdf"}), "sources"))
	assert.Nil(t, parseStringsParam(callTool(nil), "sources"))
}
