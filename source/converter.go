package source

import (
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"
)

var excessiveLinesRe = regexp.MustCompile(`\n{4,}`)

// mainSelectors are tried in order when no selector is configured.
var mainSelectors = []string{"main", "article", "[role=main]", "body"}

// chromeSelector matches navigation and page furniture that never holds release notes.
const chromeSelector = "nav, header, footer, aside, script, style, noscript, iframe, object, embed, form, button, " +
	".nav, .navbar, .navigation, .sidebar, .menu, .toc, .table-of-contents, .breadcrumb, " +
	".ad, .advertisement, .social, .share, .comments, .related"

// Document is a converted page.
type Document struct {
	Title    string
	Markdown string
}

// Converter turns HTML into markdown, keeping only the main content area.
type Converter struct {
	converter *md.Converter
}

// NewConverter creates a converter with GitHub-flavoured markdown output.
func NewConverter() *Converter {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &Converter{converter: converter}
}

// Convert extracts the element matched by selector (or the first main content
// area when selector is empty), strips page chrome, and converts it to markdown.
func (c *Converter) Convert(html, selector string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	var content *goquery.Selection
	if selector != "" {
		content = doc.Find(selector).First()
		if content.Length() == 0 {
			return nil, fmt.Errorf("selector %q matched nothing", selector)
		}
	} else {
		for _, sel := range mainSelectors {
			if found := doc.Find(sel).First(); found.Length() > 0 {
				content = found
				break
			}
		}
		if content == nil {
			content = doc.Selection
		}
	}

	content.Find(chromeSelector).Remove()

	markup, err := goquery.OuterHtml(content)
	if err != nil {
		return nil, fmt.Errorf("render content: %w", err)
	}

	markdown, err := c.converter.ConvertString(markup)
	if err != nil {
		return nil, fmt.Errorf("convert to markdown: %w", err)
	}
	markdown = cleanMarkdown(markdown)

	if title == "" {
		title = markdownTitle(markdown)
	}

	return &Document{Title: title, Markdown: markdown}, nil
}

// PageText returns prompt-ready text for a page: markdown for HTML, the body
// itself for plain text and markdown sources.
func (c *Converter) PageText(page *Page, selector string) (string, error) {
	ct := strings.ToLower(page.ContentType)
	if ct != "" && !strings.Contains(ct, "html") {
		return strings.TrimSpace(page.Body), nil
	}

	doc, err := c.Convert(page.Body, selector)
	if err != nil {
		return "", err
	}
	return doc.Markdown, nil
}

// cleanMarkdown collapses runs of blank lines and trailing spaces.
func cleanMarkdown(content string) string {
	content = excessiveLinesRe.ReplaceAllString(content, "\n\n\n")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// markdownTitle returns the first H1 heading.
func markdownTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
