// Package ingest assembles the session context from files, URLs, and PDFs.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type SourceType string

const (
	SourceURL  SourceType = "url"
	SourcePDF  SourceType = "pdf"
	SourceText SourceType = "text"

	// maxInputSize is the maximum allowed size for input content (25 MB).
	maxInputSize = 25 * 1024 * 1024
)

func (s SourceType) String() string {
	return string(s)
}

// ErrNoContext is returned when none of the sources could be read.
var ErrNoContext = errors.New("no readable context source")

type Content struct {
	Text      string
	Title     string
	Source    string
	WordCount int
}

// Frame renders the content as one labeled block of session context.
func (c Content) Frame() string {
	return "[" + c.Source + "]\n" + c.Text + "\n\n"
}

type Ingester interface {
	Ingest(ctx context.Context, source string) (*Content, error)
}

func DetectSource(input string) SourceType {
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		return SourceURL
	}
	if strings.HasSuffix(strings.ToLower(input), ".pdf") {
		return SourcePDF
	}
	return SourceText
}

func NewIngester(input string) Ingester {
	switch DetectSource(input) {
	case SourceURL:
		return &URLIngester{}
	case SourcePDF:
		return &PDFIngester{}
	default:
		return &TextIngester{}
	}
}

// Bundle is the assembled context for one session.
type Bundle struct {
	Context string
	Sources []Content
	Skipped []string
}

// Load reads every source in order and frames the readable ones. Sources
// that cannot be read are skipped with a warning; it is an error only when
// nothing could be read.
func Load(ctx context.Context, sources []string, log *slog.Logger) (*Bundle, error) {
	if log == nil {
		log = slog.Default()
	}
	var (
		b  Bundle
		sb strings.Builder
	)
	for _, src := range sources {
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := NewIngester(src).Ingest(ctx, src)
		if err != nil {
			log.WarnContext(ctx, "Skipping context source", "source", src, "error", err)
			b.Skipped = append(b.Skipped, src)
			continue
		}
		b.Sources = append(b.Sources, *content)
		sb.WriteString(content.Frame())
	}
	if len(b.Sources) == 0 {
		if len(b.Skipped) > 0 {
			return nil, fmt.Errorf("%w: could not read %s", ErrNoContext, strings.Join(b.Skipped, ", "))
		}
		return nil, ErrNoContext
	}
	b.Context = sb.String()
	return &b, nil
}

// contextExts are the file types offered as context sources.
var contextExts = map[string]bool{".json": true, ".txt": true, ".md": true, ".csv": true, ".pdf": true}

// ListContextFiles returns the candidate context files in dir, sorted by name.
func ListContextFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if contextExts[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func titleFromText(text string, maxLen int) string {
	line := text
	if idx := strings.IndexByte(text, '\n'); idx > 0 {
		line = text[:idx]
	}
	line = strings.TrimSpace(line)
	if len(line) > maxLen {
		line = line[:maxLen] + "..."
	}
	if line == "" {
		return "Untitled"
	}
	return line
}

func validateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", path)
	}
	if info.Size() > maxInputSize {
		return fmt.Errorf("%s is too large (%d MB, max %d MB)", path, info.Size()/(1024*1024), maxInputSize/(1024*1024))
	}
	return nil
}
