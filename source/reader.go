package source

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultMaxChars caps the page text handed to a prompt.
const DefaultMaxChars = 24000

// truncationMarker is appended to cut text.
const truncationMarker = "\n\n[Content truncated...]"

// Reader fetches a page and returns its main text as markdown.
type Reader struct {
	fetcher   *Fetcher
	converter *Converter
	maxChars  int
}

// NewReader creates a reader. maxChars <= 0 uses DefaultMaxChars.
func NewReader(fetcher *Fetcher, converter *Converter, maxChars int) *Reader {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Reader{fetcher: fetcher, converter: converter, maxChars: maxChars}
}

// Read fetches rawURL and converts the content under selector.
func (r *Reader) Read(ctx context.Context, rawURL, selector string) (string, error) {
	page, err := r.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}

	text, err := r.converter.PageText(page, selector)
	if err != nil {
		return "", fmt.Errorf("convert %s: %w", rawURL, err)
	}
	if text == "" {
		return "", fmt.Errorf("no content at %s", rawURL)
	}

	return Truncate(text, r.maxChars), nil
}

// Truncate shortens content to at most maxChars bytes plus a marker,
// preferring a paragraph boundary in the second half of the window.
func Truncate(content string, maxChars int) string {
	if maxChars <= 0 || len(content) <= maxChars {
		return content
	}

	cut := maxChars
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	truncated := content[:cut]

	if lastPara := strings.LastIndex(truncated, "\n\n"); lastPara > maxChars/2 {
		return truncated[:lastPara] + truncationMarker
	}
	return truncated + truncationMarker
}
