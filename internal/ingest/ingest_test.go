package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectSource(t *testing.T) {
	assert.Equal(t, SourceURL, DetectSource("https://example.com/a"))
	assert.Equal(t, SourcePDF, DetectSource("report.PDF"))
	assert.Equal(t, SourceText, DetectSource("data.json"))
}

func TestLoadFramesSources(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "data.json")
	b := filepath.Join(dir, "metric_data.json")
	require.NoError(t, os.WriteFile(a, []byte(`{"wait": 4.2}`), 0o644))
	require.NoError(t, os.WriteFile(b, []byte(`{"aht": 310}`), 0o644))

	bundle, err := Load(context.Background(), []string{a, filepath.Join(dir, "missing.json"), b}, nil)
	require.NoError(t, err)
	assert.Equal(t, "[data.json]\n{\"wait\": 4.2}\n\n[metric_data.json]\n{\"aht\": 310}\n\n", bundle.Context)
	assert.Len(t, bundle.Sources, 2)
	assert.Equal(t, []string{filepath.Join(dir, "missing.json")}, bundle.Skipped)
}

func TestLoadNothingReadable(t *testing.T) {
	_, err := Load(context.Background(), []string{filepath.Join(t.TempDir(), "nope.json")}, nil)
	assert.True(t, errors.Is(err, ErrNoContext))

	_, err = Load(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNoContext)
}

func TestTextIngesterRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o644))
	_, err := (&TextIngester{}).Ingest(context.Background(), path)
	assert.Error(t, err)
}

func TestTextIngesterRejectsBrokenJSON(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "kpis.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"wait": [4.1, `), 0o644))
	_, err := (&TextIngester{}).Ingest(context.Background(), bad)
	assert.ErrorContains(t, err, "not valid JSON")

	notes := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(notes, []byte("# Weekly ops\nWait time {rose"), 0o644))
	c, err := (&TextIngester{}).Ingest(context.Background(), notes)
	require.NoError(t, err)
	assert.Equal(t, "# Weekly ops", c.Title)
	assert.Equal(t, "notes.md", c.Source)
}

func TestListContextFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.json", "a.pdf", "notes.md", "song.mp3", ".hidden.json"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o755))

	files, err := ListContextFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "b.json", "notes.md"}, files)
}

func TestURLIngesterBodyFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<html><head><title>Ops Board</title><script>var x=1;</script></head>` +
			`<body><nav>Home</nav><div>Wait time 4.2</div></body></html>`))
	}))
	defer srv.Close()

	c, err := (&URLIngester{Client: srv.Client()}).Ingest(context.Background(), srv.URL+"/board")
	require.NoError(t, err)
	assert.Contains(t, c.Text, "Wait time 4.2")
	assert.NotContains(t, c.Text, "var x")
	assert.Equal(t, srv.URL+"/board", c.Source)

	_, err = (&URLIngester{Client: srv.Client()}).Ingest(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)
}
