package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/ledongthuc/pdf"
)

// TextIngester reads text, markdown, CSV and JSON metric exports verbatim.
// JSON files must parse; a truncated export is skipped rather than framed.
type TextIngester struct{}

func (t *TextIngester) Ingest(_ context.Context, source string) (*Content, error) {
	if err := validateFile(source); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}

	if strings.EqualFold(filepath.Ext(source), ".json") {
		var doc any
		if err := sonic.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%s is not valid JSON: %w", source, err)
		}
	}
	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("file %s is empty", source)
	}
	return fileContent(source, text), nil
}

// PDFIngester extracts the plain text of every readable page.
type PDFIngester struct{}

func (p *PDFIngester) Ingest(ctx context.Context, source string) (*Content, error) {
	if err := validateFile(source); err != nil {
		return nil, err
	}
	f, r, err := pdf.Open(source)
	if err != nil {
		return nil, fmt.Errorf("open PDF %s: %w", source, err)
	}
	defer f.Close()

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		// Pages that fail to decode are dropped; the rest still make context.
		if text, err := page.GetPlainText(nil); err == nil && strings.TrimSpace(text) != "" {
			pages = append(pages, strings.TrimSpace(text))
		}
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no text in PDF %s (scanned or image-only)", source)
	}
	return fileContent(source, strings.Join(pages, "\n")), nil
}

func fileContent(source, text string) *Content {
	return &Content{
		Text:      text,
		Title:     titleFromText(text, 80),
		Source:    filepath.Base(source),
		WordCount: wordCount(text),
	}
}
