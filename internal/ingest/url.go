package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// URLIngester fetches a page and extracts its article text. Pages where
// readability finds no article fall back to the visible body text.
type URLIngester struct {
	Client *http.Client
}

func (u *URLIngester) Ingest(ctx context.Context, source string) (*Content, error) {
	parsed, err := url.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %s: %w", source, err)
	}

	client := u.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %s: %w", source, err)
	}
	req.Header.Set("User-Agent", "panelcast")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not fetch URL %s: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("could not fetch URL %s: HTTP %d", source, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxInputSize))
	if err != nil {
		return nil, fmt.Errorf("could not read URL %s: %w", source, err)
	}

	var title, text string
	if article, err := readability.FromReader(bytes.NewReader(body), parsed); err == nil {
		title, text = article.Title, strings.TrimSpace(article.TextContent)
	}
	if text == "" {
		title, text, err = bodyText(body)
		if err != nil {
			return nil, fmt.Errorf("could not parse %s: %w", source, err)
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no readable content extracted from %s", source)
	}
	if title == "" {
		title = titleFromText(text, 80)
	}

	return &Content{
		Text:      text,
		Title:     title,
		Source:    source,
		WordCount: wordCount(text),
	}, nil
}

// bodyText returns the page title and the body text with scripts and page
// chrome removed.
func bodyText(body []byte) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	doc.Find("script, style, noscript, nav, header, footer, aside").Remove()

	var parts []string
	doc.Find("body").Each(func(_ int, s *goquery.Selection) {
		if t := strings.Join(strings.Fields(s.Text()), " "); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.TrimSpace(doc.Find("title").First().Text()), strings.Join(parts, "\n"), nil
}
